package strategy

import "math/big"

// BpsDenominator is the basis-point scale shared by every percentage in the
// savings engine.
const BpsDenominator = 10_000

var bpsDenominator = big.NewInt(BpsDenominator)

// CalculateSavingsAmount computes the savings withheld from the supplied
// amount at the given basis-point rate. The computation is the single source
// of truth for every settlement path and must stay bit-for-bit reproducible:
// floor division, an optional +1 when rounding up left a remainder, and a
// clamp so the result never exceeds the amount itself. Zero amount or zero
// rate always yields zero.
func CalculateSavingsAmount(amount *big.Int, percentageBps uint32, roundUp bool) *big.Int {
	if amount == nil || amount.Sign() <= 0 || percentageBps == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(percentageBps)))
	save, remainder := new(big.Int).QuoRem(product, bpsDenominator, new(big.Int))
	if roundUp && remainder.Sign() != 0 {
		save.Add(save, big.NewInt(1))
	}
	if save.Cmp(amount) > 0 {
		save.Set(amount)
	}
	return save
}

// NextPercentage advances the savings rate by the auto-increment step, a
// one-way ratchet capped at the configured maximum.
func NextPercentage(current, increment, max uint32) uint32 {
	if increment == 0 {
		return current
	}
	next := uint64(current) + uint64(increment)
	if next > uint64(max) {
		return max
	}
	return uint32(next)
}
