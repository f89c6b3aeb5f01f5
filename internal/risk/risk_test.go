package risk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyEdgeBot/internal/domain"
	"polyEdgeBot/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mutableClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *mutableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *mutableClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

var day1 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// fakeLedger serves fixed aggregates; the test mutates them between refreshes.
type fakeLedger struct {
	mu            sync.Mutex
	agg           domain.LedgerAggregate
	realizedToday float64
	open          int
	tradesToday   int
	recent        []domain.Trade
	err           error
	recentSince   time.Time
	recentLimit   int
}

func (f *fakeLedger) CreateTrade(context.Context, *domain.Trade) error     { return nil }
func (f *fakeLedger) CloseTrade(context.Context, *domain.Trade) error      { return nil }
func (f *fakeLedger) OpenTrades(context.Context) ([]domain.Trade, error)   { return nil, nil }
func (f *fakeLedger) ClosedTrades(context.Context) ([]domain.Trade, error) { return nil, nil }
func (f *fakeLedger) RecentClosedTrades(_ context.Context, since time.Time, limit int) ([]domain.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recentSince, f.recentLimit = since, limit
	return f.recent, f.err
}
func (f *fakeLedger) PortfolioAggregate(context.Context) (domain.LedgerAggregate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agg, f.err
}
func (f *fakeLedger) RealizedPNLSince(context.Context, time.Time) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.realizedToday, f.err
}
func (f *fakeLedger) CountOpenTrades(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open, f.err
}
func (f *fakeLedger) CountTradesSince(context.Context, time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tradesToday, f.err
}

func (f *fakeLedger) set(fn func(f *fakeLedger)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

type fakeRiskStore struct {
	mu        sync.Mutex
	breakers  []domain.CircuitBreaker
	snapshots []domain.PortfolioState
	lookupErr error
}

func (s *fakeRiskStore) CreateCircuitBreaker(_ context.Context, cb *domain.CircuitBreaker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb.ID = "cb"
	s.breakers = append(s.breakers, *cb)
	return nil
}
func (s *fakeRiskStore) AnyActiveCircuitBreaker(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return false, s.lookupErr
	}
	for _, b := range s.breakers {
		if b.Status == domain.BreakerActive {
			return true, nil
		}
	}
	return false, nil
}
func (s *fakeRiskStore) ListCircuitBreakers(context.Context, bool) ([]domain.CircuitBreaker, error) {
	return s.breakers, nil
}
func (s *fakeRiskStore) ClearCircuitBreaker(context.Context, string, time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.breakers {
		s.breakers[i].Status = domain.BreakerCleared
	}
	return nil
}
func (s *fakeRiskStore) SaveSnapshot(_ context.Context, st domain.PortfolioState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, st)
	return nil
}

type fakeNotifier struct{ messages []string }

func (n *fakeNotifier) Notify(_ context.Context, msg string) error {
	n.messages = append(n.messages, msg)
	return nil
}

type fixture struct {
	ledger   *fakeLedger
	store    *fakeRiskStore
	notifier *fakeNotifier
	clock    *mutableClock
	tracker  *PortfolioTracker
	manager  *RiskManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ledger:   &fakeLedger{agg: domain.LedgerAggregate{TotalCapital: 50000, AvailableCapital: 50000}},
		store:    &fakeRiskStore{},
		notifier: &fakeNotifier{},
		clock:    &mutableClock{t: day1},
	}
	f.tracker = NewPortfolioTracker(f.ledger, f.store, f.clock, &mockLogger{})
	f.manager = NewRiskManager(RiskConfig{
		MinEdgeSize:           0.03,
		MaxDailyTrades:        20,
		DailyDrawdownLimitPct: 8,
		KellyFraction:         0.5,
		MaxPositionSizePct:    2,
		ConsecutiveLossLimit:  3,
		LossLookback:          time.Hour,
	}, f.tracker, f.store, f.ledger, f.notifier, f.clock, &mockLogger{})
	_, err := f.tracker.RefreshState(context.Background())
	require.NoError(t, err)
	return f
}

func goodSignal() *domain.Signal {
	return &domain.Signal{ID: "s1", MarketID: "m1", Direction: domain.BuyYes, EdgeSize: 0.05, FairValue: 0.60, ObservedPrice: 0.55}
}

func TestKellyFraction(t *testing.T) {
	tests := []struct {
		name         string
		winProb      float64
		price        float64
		wantFraction float64
	}{
		{"positive edge", 0.60, 0.55, 0.05 / 0.45},
		{"capped", 0.90, 0.50, 0.25},
		{"no edge", 0.50, 0.55, 0},
		{"price out of range", 0.60, 1.0, 0},
		{"zero price", 0.60, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.wantFraction, KellyFraction(tt.winProb, tt.price), 1e-12)
		})
	}
}

func TestSizer_NeverExceedsReserve(t *testing.T) {
	s := Sizer{KellyMultiplier: 1, MaxPositionSizePct: 100}
	for _, available := range []float64{0, 1, 100, 1000, 12500, 50000} {
		for _, p := range []float64{0.55, 0.7, 0.99} {
			stake := s.Stake(p, 0.5, 50000, available)
			assert.LessOrEqual(t, stake, 0.95*available+1e-9, "available=%v p=%v", available, p)
			assert.GreaterOrEqual(t, stake, 0.0)
		}
	}

	assert.InDelta(t, 950, s.Stake(0.9, 0.5, 50000, 1000), 1e-9, "reserve binds")
	assert.InDelta(t, 12500, s.Stake(0.9, 0.5, 50000, 50000), 1e-9, "kelly cap binds")
}

func TestSizePosition(t *testing.T) {
	f := newFixture(t)

	// Full Kelly 0.05/0.45 = 0.111, half = 0.0556 -> 2778; capped by 2% of 50000.
	assert.InDelta(t, 1000, f.manager.SizePosition(context.Background(), goodSignal()), 1e-9)

	small := goodSignal()
	small.FairValue, small.EdgeSize = 0.56, 0.01
	// 0.5 * 0.01/0.45 * 50000 = 555.56
	assert.InDelta(t, 0.5*0.01/0.45*50000, f.manager.SizePosition(context.Background(), small), 1e-6)

	f.ledger.set(func(l *fakeLedger) { l.agg.AvailableCapital = 500 })
	_, err := f.tracker.RefreshState(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 475, f.manager.SizePosition(context.Background(), goodSignal()), 1e-9)

	none := goodSignal()
	none.EdgeSize = 0
	assert.Zero(t, f.manager.SizePosition(context.Background(), none))
}

func TestValidateSignal(t *testing.T) {
	ctx := context.Background()

	t.Run("accepts", func(t *testing.T) {
		f := newFixture(t)
		assert.True(t, f.manager.ValidateSignal(ctx, goodSignal()))
	})

	t.Run("edge below minimum", func(t *testing.T) {
		f := newFixture(t)
		s := goodSignal()
		s.EdgeSize = 0.02
		assert.False(t, f.manager.ValidateSignal(ctx, s))
	})

	t.Run("daily trade limit", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.set(func(l *fakeLedger) { l.tradesToday = 20 })
		_, err := f.tracker.RefreshState(ctx)
		require.NoError(t, err)
		assert.False(t, f.manager.ValidateSignal(ctx, goodSignal()))
	})

	t.Run("breaker active regardless of edge", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.manager.TriggerCircuitBreaker(ctx, "manual test"))
		s := goodSignal()
		s.EdgeSize = 0.9
		assert.False(t, f.manager.ValidateSignal(ctx, s))
		assert.Len(t, f.notifier.messages, 1)
	})

	t.Run("breaker lookup failure fails safe", func(t *testing.T) {
		f := newFixture(t)
		f.store.lookupErr = errors.New("db down")
		assert.False(t, f.manager.ValidateSignal(ctx, goodSignal()))
	})

	t.Run("portfolio never loaded", func(t *testing.T) {
		f := newFixture(t)
		fresh := NewPortfolioTracker(f.ledger, f.store, f.clock, &mockLogger{})
		m := NewRiskManager(f.manager.config, fresh, f.store, f.ledger, f.notifier, f.clock, &mockLogger{})
		assert.False(t, m.ValidateSignal(ctx, goodSignal()))
	})
}

func TestDrawdownScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The loss lands in the ledger, then the coordinator reports it.
	f.ledger.set(func(l *fakeLedger) { l.realizedToday = -4500 })
	require.NoError(t, f.manager.UpdatePortfolio(ctx, -4500))

	state := f.tracker.State()
	assert.InDelta(t, 9.0, state.DailyDrawdownPct, 1e-9)
	require.Len(t, f.store.breakers, 1)
	assert.Contains(t, f.store.breakers[0].Reason, "daily drawdown 9.00%")
	assert.False(t, f.manager.ValidateSignal(ctx, goodSignal()))

	// A second breach does not stack breakers.
	require.NoError(t, f.manager.UpdatePortfolio(ctx, 0))
	assert.Len(t, f.store.breakers, 1)

	// Even with the breaker cleared, the drawdown check alone still rejects.
	require.NoError(t, f.store.ClearCircuitBreaker(ctx, "cb", day1))
	assert.False(t, f.manager.ValidateSignal(ctx, goodSignal()))
}

func TestPortfolioTracker_DrawdownInvariants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	steps := []float64{0, 250, -1000, -500, 300, 2000, -3000}
	prevMax := 0.0
	for _, realized := range steps {
		f.ledger.set(func(l *fakeLedger) { l.realizedToday = realized })
		state, err := f.tracker.RefreshState(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, state.DailyDrawdownPct, 0.0)
		assert.GreaterOrEqual(t, state.MaxDrawdownPct, prevMax)
		assert.GreaterOrEqual(t, state.MaxDrawdownPct, state.DailyDrawdownPct)
		prevMax = state.MaxDrawdownPct
	}
	assert.InDelta(t, 6.0, prevMax, 1e-9)

	// New UTC day resets the running max.
	f.clock.Set(day1.Add(24 * time.Hour))
	f.ledger.set(func(l *fakeLedger) { l.realizedToday = 0 })
	state, err := f.tracker.RefreshState(ctx)
	require.NoError(t, err)
	assert.Zero(t, state.MaxDrawdownPct)

	assert.Len(t, f.store.snapshots, len(steps)+2, "one snapshot per refresh")
}

func TestPortfolioTracker_LedgerErrorKeepsState(t *testing.T) {
	f := newFixture(t)
	before := f.tracker.State()

	f.ledger.set(func(l *fakeLedger) { l.err = errors.New("db down"); l.agg.TotalCapital = 1 })
	_, err := f.tracker.RefreshState(context.Background())
	require.Error(t, err)
	assert.Equal(t, before, f.tracker.State())
}

func TestPortfolioTracker_UpdatePNLDoesNotDoubleCountMax(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The close is already in the ledger when the P&L is reported.
	f.ledger.set(func(l *fakeLedger) {
		l.realizedToday = -1000
		l.agg.TotalCapital = 49000
		l.agg.AvailableCapital = 49000
	})
	refreshed, err := f.tracker.RefreshState(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1000.0/49000*100, refreshed.DailyDrawdownPct, 1e-9)

	state, err := f.tracker.UpdatePNL(ctx, -1000)
	require.NoError(t, err)
	assert.InDelta(t, refreshed.DailyDrawdownPct, state.DailyDrawdownPct, 1e-9)
	assert.InDelta(t, state.DailyDrawdownPct, state.MaxDrawdownPct, 1e-9)

	last := f.store.snapshots[len(f.store.snapshots)-1]
	assert.InDelta(t, state.DailyDrawdownPct, last.MaxDrawdownPct, 1e-9)
}

func TestDailyDrawdownPct(t *testing.T) {
	tests := []struct {
		name     string
		realized float64
		total    float64
		want     float64
	}{
		{"profit", 500, 50000, 0},
		{"loss", -4000, 50000, 8},
		{"depleted account", 0, 0, 100},
		{"negative capital", -60000, -10000, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DailyDrawdownPct(tt.realized, tt.total), 1e-9)
		})
	}
}

func TestRefreshPortfolio_TripsWhenCapitalDepleted(t *testing.T) {
	f := newFixture(t)
	f.ledger.set(func(l *fakeLedger) { l.agg = domain.LedgerAggregate{} })

	require.NoError(t, f.manager.RefreshPortfolio(context.Background()))
	require.Len(t, f.store.breakers, 1)
	assert.False(t, f.manager.ValidateSignal(context.Background(), goodSignal()))
}

func TestPortfolioTracker_ConcurrentReadersSeeWholeStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s := f.tracker.State()
				// Total and available always move together in this test.
				assert.InDelta(t, s.TotalCapital, s.AvailableCapital, 1e-9)
			}
		}()
	}
	for i := 0; i < 200; i++ {
		v := float64(50000 + i)
		f.ledger.set(func(l *fakeLedger) { l.agg = domain.LedgerAggregate{TotalCapital: v, AvailableCapital: v} })
		_, err := f.tracker.RefreshState(ctx)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}

func TestCheckConsecutiveLosses(t *testing.T) {
	ctx := context.Background()
	loss := func(pnl float64) domain.Trade { return domain.Trade{PNL: pnl, Status: domain.TradeClosed} }

	t.Run("streak stops at first profit", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.set(func(l *fakeLedger) { l.recent = []domain.Trade{loss(-10), loss(-5), loss(20), loss(-1), loss(-1)} })
		streak, err := f.manager.CheckConsecutiveLosses(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, streak)
		assert.Empty(t, f.store.breakers)
		assert.Equal(t, day1.Add(-time.Hour), f.ledger.recentSince)
		assert.Equal(t, 5, f.ledger.recentLimit)
	})

	t.Run("break-even ends streak", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.set(func(l *fakeLedger) { l.recent = []domain.Trade{loss(-1), loss(0), loss(-1), loss(-1)} })
		streak, err := f.manager.CheckConsecutiveLosses(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, streak)
	})

	t.Run("three losses trip breaker", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.set(func(l *fakeLedger) { l.recent = []domain.Trade{loss(-1), loss(-2), loss(-3)} })
		streak, err := f.manager.CheckConsecutiveLosses(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, streak)
		require.Len(t, f.store.breakers, 1)
		assert.Equal(t, "3 consecutive losses - cooldown activated", f.store.breakers[0].Reason)
		assert.False(t, f.manager.ValidateSignal(ctx, goodSignal()))
	})

	t.Run("ledger error", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.set(func(l *fakeLedger) { l.err = errors.New("db down") })
		_, err := f.manager.CheckConsecutiveLosses(ctx)
		assert.Error(t, err)
	})
}

func TestRefreshPortfolio_TripsOnBreach(t *testing.T) {
	f := newFixture(t)
	f.ledger.set(func(l *fakeLedger) { l.realizedToday = -5000 })
	require.NoError(t, f.manager.RefreshPortfolio(context.Background()))
	assert.Len(t, f.store.breakers, 1)
}

var _ ports.TradeLedger = (*fakeLedger)(nil)
var _ ports.RiskStore = (*fakeRiskStore)(nil)
