package hook

import (
	"math/big"

	"nestegg/crypto"
	"nestegg/native/strategy"
)

// SwapContext is the transient state bridging the two callback phases of one
// trade. PreTrade produces it, PostTrade consumes it; it must never outlive
// the trade or leak into another. The context is handed back to the exchange
// as an explicit value rather than stored ambiently, so the two phases stay
// decoupled without ordering bugs.
type SwapContext struct {
	Trader         crypto.Address
	PairKey        [32]byte
	HasStrategy    bool
	PercentageBps  uint32
	RoundUp        bool
	EnableDCA      bool
	DCATargetToken string
	TokenType      strategy.TokenType
	SpecificToken  string
	InputToken     string
	InputAmount    *big.Int
	PendingSave    *big.Int
	ObservedTick   int64

	consumed bool
}

// Consumed reports whether the post-trade phase has already finalised this
// context.
func (c *SwapContext) Consumed() bool {
	return c == nil || c.consumed
}

// consume zeroes the context so any later access observes an empty record.
// The transition is one-way.
func (c *SwapContext) consume() {
	if c == nil {
		return
	}
	*c = SwapContext{consumed: true}
}
