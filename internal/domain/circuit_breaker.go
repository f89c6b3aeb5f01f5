package domain

import "time"

// BreakerStatus is the state of a circuit breaker record.
type BreakerStatus string

const (
	BreakerActive  BreakerStatus = "active"
	BreakerCleared BreakerStatus = "cleared"
)

// CircuitBreaker halts new trading while Active. Only an operator clears it.
type CircuitBreaker struct {
	ID          string
	Reason      string
	TriggeredAt time.Time
	Status      BreakerStatus
	ClearedAt   time.Time // Zero until cleared
}
