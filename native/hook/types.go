package hook

import (
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// TradeParams describes the trade about to be executed by the external
// exchange engine, as handed to the pre-trade callback.
type TradeParams struct {
	TokenIn  string
	TokenOut string
	AmountIn *big.Int
}

// TradeResult carries the realized amounts after execution, as handed to the
// post-trade callback.
type TradeResult struct {
	AmountIn  *big.Int
	AmountOut *big.Int
}

// Adjustment instructs the exchange how much of the tradable input to
// withhold before executing the trade. A zero adjustment leaves the trade
// untouched.
type Adjustment struct {
	WithheldInput *big.Int
}

// ZeroAdjustment is the fast-path response when no strategy applies.
func ZeroAdjustment() Adjustment {
	return Adjustment{WithheldInput: big.NewInt(0)}
}

// PoolObserver supplies the current price tick for a pair. The exchange/pool
// engine implements it; the interceptor performs no price discovery of its
// own.
type PoolObserver interface {
	CurrentTick(pairKey [32]byte) (int64, error)
}

// PairKey derives the canonical identifier for a token pair. The key is
// direction-independent so both trade directions observe the same pool.
func PairKey(tokenA, tokenB string) [32]byte {
	first := strings.ToUpper(strings.TrimSpace(tokenA))
	second := strings.ToUpper(strings.TrimSpace(tokenB))
	if second < first {
		first, second = second, first
	}
	return ethcrypto.Keccak256Hash([]byte(first), []byte("/"), []byte(second))
}
