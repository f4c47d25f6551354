package strategy

import "strings"

// TokenType selects which side of a trade the savings percentage applies to.
type TokenType uint8

const (
	// TokenTypeInput withholds savings from the trade input before execution.
	TokenTypeInput TokenType = iota
	// TokenTypeOutput withholds savings from the realized trade output.
	TokenTypeOutput
	// TokenTypeSpecific withholds savings denominated in a fixed token,
	// regardless of the traded pair.
	TokenTypeSpecific
)

// Valid reports whether the token type is one of the recognised variants.
func (t TokenType) Valid() bool {
	switch t {
	case TokenTypeInput, TokenTypeOutput, TokenTypeSpecific:
		return true
	default:
		return false
	}
}

func (t TokenType) String() string {
	switch t {
	case TokenTypeInput:
		return "INPUT"
	case TokenTypeOutput:
		return "OUTPUT"
	case TokenTypeSpecific:
		return "SPECIFIC"
	default:
		return "UNKNOWN"
	}
}

// ParseTokenType resolves the textual representation used by the RPC surface.
func ParseTokenType(value string) (TokenType, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "INPUT":
		return TokenTypeInput, true
	case "OUTPUT":
		return TokenTypeOutput, true
	case "SPECIFIC":
		return TokenTypeSpecific, true
	default:
		return 0, false
	}
}

// UserStrategyConfig is the per-user savings configuration. The record is
// read and written as one atomic unit; it is never deleted, only zeroed.
type UserStrategyConfig struct {
	PercentageBps    uint32
	AutoIncrementBps uint32
	MaxPercentageBps uint32
	RoundUp          bool
	TokenType        TokenType
	SpecificToken    string
	EnableDCA        bool
	DCATargetToken   string
}

// Clone returns a copy so callers never alias the stored record.
func (c *UserStrategyConfig) Clone() *UserStrategyConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Active reports whether the configuration withholds anything at all.
func (c *UserStrategyConfig) Active() bool {
	return c != nil && c.PercentageBps > 0
}
