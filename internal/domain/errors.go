package domain

import "errors"

// Ledger-level errors. Batch callers recover these locally and continue.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrMissingPosition   = errors.New("no position held under this allocation")
	ErrConcurrentUpdate  = errors.New("row was modified concurrently")
)

// Invariant violations. These are surfaced to the caller as explicit rejections.
var (
	ErrCopyTradingActive  = errors.New("portfolio is copy-trading")
	ErrAllocationExceeded = errors.New("strategy allocation total exceeds 100%")
	ErrStrategyActive     = errors.New("strategy is already active on this portfolio")
	ErrSelfDirected       = errors.New("portfolio has self-directed strategies")
	ErrSelfFollow         = errors.New("portfolio cannot copy itself")
	ErrAlreadyFollowing   = errors.New("portfolio already copies this leader")
	ErrKYCRequired        = errors.New("kyc verification required")
)

// Input and lookup errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrValidation    = errors.New("validation failed")
)

var invariantErrors = []error{
	ErrCopyTradingActive,
	ErrAllocationExceeded,
	ErrStrategyActive,
	ErrSelfDirected,
	ErrSelfFollow,
	ErrAlreadyFollowing,
	ErrKYCRequired,
}

// IsInvariantViolation reports whether err is a domain rule the user must be told about.
func IsInvariantViolation(err error) bool {
	for _, target := range invariantErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsLedgerRecoverable reports whether err is a ledger fault that a batch
// operation skips instead of aborting on.
func IsLedgerRecoverable(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrMissingPosition)
}
