package dca

import "testing"

func TestTriggerExecutedNeverFires(t *testing.T) {
	fire := evaluateTrigger(triggerInput{
		executed:    true,
		deadline:    10,
		now:         100,
		currentTick: 500,
		policy:      &TickStrategy{TickDelta: 1},
	})
	if fire {
		t.Fatalf("executed order must never fire")
	}
}

func TestTriggerDeadlineOverridesPriceGating(t *testing.T) {
	policy := &TickStrategy{TickDelta: 100, OnlyImprovePrice: true, MinTickImprovement: 50}
	in := triggerInput{
		executionTick: 1000,
		currentTick:   1000, // no movement at all
		deadline:      500,
		now:           501,
		favorableUp:   true,
		policy:        policy,
	}
	if !evaluateTrigger(in) {
		t.Fatalf("past the deadline the order must fire unconditionally")
	}
	in.now = 500
	if evaluateTrigger(in) {
		t.Fatalf("at the deadline without movement the order must wait")
	}
}

func TestTriggerMovementEitherDirection(t *testing.T) {
	policy := &TickStrategy{TickDelta: 10}
	base := triggerInput{executionTick: 1000, deadline: 9999, now: 0, policy: policy}

	base.currentTick = 1010
	if !evaluateTrigger(base) {
		t.Fatalf("upward movement of tickDelta must fire")
	}
	base.currentTick = 990
	if !evaluateTrigger(base) {
		t.Fatalf("downward movement of tickDelta must fire")
	}
	base.currentTick = 1009
	if evaluateTrigger(base) {
		t.Fatalf("movement below tickDelta must not fire")
	}
}

func TestTriggerOnlyImprovePrice(t *testing.T) {
	policy := &TickStrategy{TickDelta: 10, OnlyImprovePrice: true, MinTickImprovement: 5}
	base := triggerInput{executionTick: 1000, deadline: 9999, now: 0, favorableUp: true, policy: policy}

	base.currentTick = 1005
	if !evaluateTrigger(base) {
		t.Fatalf("favorable movement at minTickImprovement must fire")
	}
	base.currentTick = 1004
	if evaluateTrigger(base) {
		t.Fatalf("favorable movement below minTickImprovement must not fire")
	}
	base.currentTick = 980
	if evaluateTrigger(base) {
		t.Fatalf("adverse movement must not fire under price gating")
	}
	base.favorableUp = false
	if !evaluateTrigger(base) {
		t.Fatalf("the same movement is favorable in the opposite direction")
	}
}

func TestTriggerMinImprovementDefaultsToOne(t *testing.T) {
	policy := &TickStrategy{OnlyImprovePrice: true}
	in := triggerInput{executionTick: 1000, currentTick: 1001, deadline: 9999, favorableUp: true, policy: policy}
	if !evaluateTrigger(in) {
		t.Fatalf("one favorable tick must satisfy the default threshold")
	}
	in.currentTick = 1000
	if evaluateTrigger(in) {
		t.Fatalf("zero movement must not fire")
	}
}

func TestFavorableMovementClampsAtZero(t *testing.T) {
	if got := favorableMovement(1000, 900, true); got != 0 {
		t.Fatalf("adverse movement = %d, want 0", got)
	}
	if got := favorableMovement(1000, 1100, true); got != 100 {
		t.Fatalf("favorable movement = %d, want 100", got)
	}
	if got := favorableMovement(1000, 900, false); got != 100 {
		t.Fatalf("downward favorable movement = %d, want 100", got)
	}
}
