package ledger

import "errors"

var (
	// ErrInsufficientBalance indicates a withdrawal larger than the stored balance.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	// ErrUnauthorized indicates a caller that is neither the balance owner nor a registered module.
	ErrUnauthorized = errors.New("ledger: caller not authorized")
	// ErrInvalidAmount indicates a non-positive amount.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	// ErrFeeAboveCeiling indicates a treasury fee rate above the hard cap.
	ErrFeeAboveCeiling = errors.New("ledger: treasury fee exceeds ceiling")
	// ErrTreasuryNotConfigured indicates settlement without a treasury address.
	ErrTreasuryNotConfigured = errors.New("ledger: treasury not configured")

	errNilState = errors.New("ledger: state not configured")
)
