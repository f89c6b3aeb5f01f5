package ports

import "errors"

// Standard application-level errors.
// Adapters wrap infrastructure errors with these so callers can use errors.Is.
var (
	// General Errors
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Market data
	ErrInvalidMarket  = errors.New("market data is invalid for this operation")
	ErrNoRatings      = errors.New("no matchup ratings for market")
	ErrInvalidLambda  = errors.New("scoring rate must be positive and finite")
	ErrStrategyFailed = errors.New("strategy failed")

	// Execution
	ErrExecutionFailed = errors.New("trade execution failed")
	ErrAlreadyExecuted = errors.New("signal already executed")
	ErrTradeNotOpen    = errors.New("trade is not open")

	// Store
	ErrStoreUnavailable = errors.New("store unavailable")
)
