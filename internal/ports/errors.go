package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Market Data Errors
	ErrMismatchedAsset   = errors.New("tick asset does not match builder asset")
	ErrFeedUnavailable   = errors.New("market data feed is unavailable")
	ErrConnectionFailed  = errors.New("failed to connect to the market data feed")
	ErrRateLimited       = errors.New("API rate limit exceeded")
	ErrSubscriptionError = errors.New("failed to subscribe to market data stream")

	// Validation Errors
	ErrNoTrades = errors.New("no trade outcomes to validate")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
)
