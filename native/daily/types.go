package daily

import "math/big"

// YieldRoute selects where accrued daily savings are put to work. The
// integrations themselves live outside this engine; the route only picks the
// adapter invoked after each accrual.
type YieldRoute uint8

const (
	// YieldRouteNone keeps accruals idle in the savings ledger.
	YieldRouteNone YieldRoute = iota
	// YieldRouteExternal forwards accruals to the wired yield adapter.
	YieldRouteExternal
)

// Config is the per-(user, token) recurring contribution schedule with goal
// tracking and the early-withdrawal penalty.
type Config struct {
	Token         string
	Enabled       bool
	DailyAmount   *big.Int
	GoalAmount    *big.Int
	CurrentAmount *big.Int
	PenaltyBps    uint32
	StartTime     int64
	LastExecution int64
	EndTime       int64
	Route         YieldRoute
}

// Clone returns a copy with duplicated big.Int values.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	if c.DailyAmount != nil {
		clone.DailyAmount = new(big.Int).Set(c.DailyAmount)
	}
	if c.GoalAmount != nil {
		clone.GoalAmount = new(big.Int).Set(c.GoalAmount)
	}
	if c.CurrentAmount != nil {
		clone.CurrentAmount = new(big.Int).Set(c.CurrentAmount)
	}
	return &clone
}

// GoalReached reports whether the tracked contribution total has met the goal.
func (c *Config) GoalReached() bool {
	if c == nil || c.GoalAmount == nil || c.CurrentAmount == nil {
		return false
	}
	return c.CurrentAmount.Cmp(c.GoalAmount) >= 0
}
