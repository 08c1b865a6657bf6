package ports

import "errors"

// Standard application-level errors.
// Adapters wrap infrastructure errors with one of these so callers can use errors.Is.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange Specific Errors
	ErrExchangeUnavailable = errors.New("exchange API is unavailable")
	ErrConnectionFailed    = errors.New("failed to connect to the exchange")
	ErrRateLimited         = errors.New("API rate limit exceeded")
	ErrInvalidSymbol       = errors.New("symbol not recognized by the exchange")
	ErrInvalidInterval     = errors.New("interval not recognized by the exchange")
	ErrEmptyResponse       = errors.New("exchange returned no data")
	ErrDecode              = errors.New("malformed market data record")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)
