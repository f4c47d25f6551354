package dca

import "errors"

var (
	// ErrNotEnabled indicates a queue or execution attempt without DCA enabled.
	ErrNotEnabled = errors.New("dca: not enabled for user")
	// ErrEntryNotFound indicates a queue index past the end of the user's queue.
	ErrEntryNotFound = errors.New("dca: queue entry not found")
	// ErrAlreadyExecuted indicates an entry whose one-way executed flag is set.
	ErrAlreadyExecuted = errors.New("dca: entry already executed")
	// ErrNotTriggered indicates the trigger policy declined execution.
	ErrNotTriggered = errors.New("dca: trigger conditions not met")
	// ErrBelowMinimum indicates an order smaller than the configured floor.
	ErrBelowMinimum = errors.New("dca: amount below configured minimum")
	// ErrInvalidAmount indicates a non-positive order amount.
	ErrInvalidAmount = errors.New("dca: amount must be positive")
	// ErrInvalidSlippage indicates a slippage bound above 100%.
	ErrInvalidSlippage = errors.New("dca: slippage bps out of range")
	// ErrInvalidTickStrategy indicates negative deltas or windows.
	ErrInvalidTickStrategy = errors.New("dca: invalid tick strategy")
	// ErrNoExecutor indicates execution without a pool executor wired.
	ErrNoExecutor = errors.New("dca: pool executor not configured")
	// ErrInsufficientSavings indicates no source balance left to convert.
	ErrInsufficientSavings = errors.New("dca: insufficient savings balance")

	errNilState = errors.New("dca engine: state not configured")
)
