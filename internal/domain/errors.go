package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.
// Callers add context with fmt.Errorf("...: %w", err) and match with errors.Is.

var (
	// Ledger errors
	ErrInvalidTransaction = errors.New("invalid transaction")

	// Catalog errors (detected at load, never at command time)
	ErrConfig = errors.New("invalid configuration")

	// Lookup errors
	ErrNotFound = errors.New("not found")

	// Command errors
	ErrInvalidOperation = errors.New("invalid operation")
	ErrInvalidCheckIn   = errors.New("invalid check-in")

	// Challenge lifecycle errors
	ErrNotActive      = errors.New("challenge is not active")
	ErrAlreadyStarted = errors.New("challenge already started")
	ErrExpired        = errors.New("challenge has expired")

	// Persistence errors
	ErrStorage         = errors.New("storage failure")
	ErrVersionConflict = errors.New("progress was modified concurrently")
)

// ErrorCode returns a stable machine-readable code for err, used as the
// HTTP error type and as a metrics label.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrVersionConflict):
		return "VERSION_CONFLICT"
	case errors.Is(err, ErrStorage):
		return "STORAGE_ERROR"
	case errors.Is(err, ErrInvalidTransaction):
		return "INVALID_TRANSACTION"
	case errors.Is(err, ErrConfig):
		return "CONFIG_ERROR"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidOperation):
		return "INVALID_OPERATION"
	case errors.Is(err, ErrInvalidCheckIn):
		return "INVALID_CHECK_IN"
	case errors.Is(err, ErrNotActive):
		return "NOT_ACTIVE"
	case errors.Is(err, ErrAlreadyStarted):
		return "ALREADY_STARTED"
	case errors.Is(err, ErrExpired):
		return "EXPIRED"
	}
	return "UNKNOWN"
}
