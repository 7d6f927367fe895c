package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

var (
	// ErrLedgerUnavailable is returned when the ledger cannot be queried. Callers decide on retries.
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrPersistRead marks corrupt or unreadable persisted state. Recovered with the default state.
	ErrPersistRead = errors.New("persisted state unreadable")

	// ErrPersistWrite marks a failed save. Logged; the computed price is still returned.
	ErrPersistWrite = errors.New("persisted state write failed")

	// ErrMetricComputation marks a risk metric that failed and was treated as 0.
	ErrMetricComputation = errors.New("metric computation failed")

	// ErrPerformanceUnavailable is returned when fewer than 2 price samples exist.
	ErrPerformanceUnavailable = errors.New("performance unavailable: need at least 2 price samples")

	// ErrInsufficientBalance is returned when a sender cannot cover a transfer.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrTreasuryRestricted is returned when a wallet flow touches the treasury account.
	ErrTreasuryRestricted = errors.New("treasury account is restricted")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)

// LedgerError wraps a failed ledger call. Always matches ErrLedgerUnavailable.
type LedgerError struct {
	Op  string // e.g. "balanceOf", "getLogs"
	Err error
}

func (e *LedgerError) Error() string {
	return "ledger " + e.Op + ": " + e.Err.Error()
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

func (e *LedgerError) Is(target error) bool {
	return target == ErrLedgerUnavailable
}

// IsRetriable reports true: every ledger operation is safe to re-run from scratch.
func (e *LedgerError) IsRetriable() bool {
	return true
}

// NewLedgerError creates a new ledger error
func NewLedgerError(op string, err error) *LedgerError {
	return &LedgerError{Op: op, Err: err}
}

// PersistError wraps a failed read or write of the shared state file.
type PersistError struct {
	Op   string // "read" or "write"
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return "persist " + e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

func (e *PersistError) Is(target error) bool {
	switch target {
	case ErrPersistRead:
		return e.Op == "read"
	case ErrPersistWrite:
		return e.Op == "write"
	}
	return false
}

func (e *PersistError) IsRetriable() bool {
	return e.Op == "write"
}

// MetricError records a risk metric that failed and fell back to its neutral value.
type MetricError struct {
	Metric string
	Err    error
}

func (e *MetricError) Error() string {
	return "metric " + e.Metric + ": " + e.Err.Error()
}

func (e *MetricError) Unwrap() error {
	return e.Err
}

func (e *MetricError) Is(target error) bool {
	return target == ErrMetricComputation
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
