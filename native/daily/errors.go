package daily

import "errors"

var (
	// ErrInvalidToken indicates a missing or malformed asset symbol.
	ErrInvalidToken = errors.New("daily savings: invalid token")
	// ErrInvalidAmount indicates a zero daily amount or non-positive goal.
	ErrInvalidAmount = errors.New("daily savings: invalid amount")
	// ErrInvalidPenalty indicates a penalty above the configured ceiling.
	ErrInvalidPenalty = errors.New("daily savings: penalty exceeds ceiling")
	// ErrInvalidEndTime indicates an end time at or before the current time.
	ErrInvalidEndTime = errors.New("daily savings: end time must be in the future")
	// ErrNotConfigured indicates an operation against an absent schedule.
	ErrNotConfigured = errors.New("daily savings: not configured")

	errNilState = errors.New("daily savings engine: state not configured")
)
