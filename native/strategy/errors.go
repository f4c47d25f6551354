package strategy

import "errors"

var (
	// ErrInvalidPercentage indicates a savings percentage above 100%.
	ErrInvalidPercentage = errors.New("strategy: percentage exceeds 10000 bps")
	// ErrMaxPercentageTooLow indicates a cap below the configured percentage.
	ErrMaxPercentageTooLow = errors.New("strategy: max percentage below percentage")
	// ErrInvalidSpecificToken indicates the SPECIFIC token type without a token.
	ErrInvalidSpecificToken = errors.New("strategy: specific token required")
	// ErrInvalidDCATarget indicates DCA enablement without a target token.
	ErrInvalidDCATarget = errors.New("strategy: dca target token required")

	errNilState = errors.New("strategy engine: state not configured")
)
