package dca

// triggerInput captures everything the canonical trigger policy needs. Both
// the per-order and the cycle-level checks build one of these, so there is a
// single policy rather than two diverging rule sets.
type triggerInput struct {
	executed      bool
	executionTick int64
	deadline      int64
	currentTick   int64
	now           int64
	favorableUp   bool
	policy        *TickStrategy
}

// evaluateTrigger applies the canonical trigger policy:
//  1. an executed order never fires again;
//  2. past the deadline the order fires unconditionally, so expiry always
//     overrides price gating and no order starves;
//  3. without price improvement gating, any movement of at least tickDelta
//     in either direction fires;
//  4. with gating, only favorable movement of at least minTickImprovement
//     fires.
func evaluateTrigger(in triggerInput) bool {
	if in.executed {
		return false
	}
	if in.deadline > 0 && in.now > in.deadline {
		return true
	}
	policy := in.policy
	if policy == nil {
		policy = &TickStrategy{}
	}
	movement := in.currentTick - in.executionTick
	if !policy.OnlyImprovePrice {
		abs := movement
		if abs < 0 {
			abs = -abs
		}
		return abs >= policy.TickDelta
	}
	favorable := movement
	if !in.favorableUp {
		favorable = -movement
	}
	if favorable <= 0 {
		return false
	}
	min := policy.MinTickImprovement
	if min <= 0 {
		min = 1
	}
	return favorable >= min
}

// favorableUp reports whether a rising tick favors the from->to direction.
// The tick quotes the price of the canonically first token of the pair in
// units of the second, so selling the first token benefits from a rising
// tick and buying it benefits from a falling one.
func favorableUp(fromToken, toToken string) bool {
	return fromToken < toToken
}

// favorableMovement returns the tick movement in the favorable direction,
// clamped at zero.
func favorableMovement(executionTick, currentTick int64, up bool) int64 {
	movement := currentTick - executionTick
	if !up {
		movement = -movement
	}
	if movement < 0 {
		return 0
	}
	return movement
}
