package dca

import "math/big"

// Settings carries the per-user DCA enablement and trade guardrails.
type Settings struct {
	Enabled        bool
	TargetToken    string
	MinAmount      *big.Int
	MaxSlippageBps uint32
}

// Clone returns a copy with duplicated big.Int values.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	clone := *s
	if s.MinAmount != nil {
		clone.MinAmount = new(big.Int).Set(s.MinAmount)
	}
	return &clone
}

// TickStrategy is the per-user singleton trigger policy for queued
// conversions.
type TickStrategy struct {
	TickDelta          int64
	TickExpirySecs     int64
	OnlyImprovePrice   bool
	MinTickImprovement int64
	DynamicSizing      bool
	CustomSlippageBps  uint32
}

// Clone returns a copy of the strategy.
func (t *TickStrategy) Clone() *TickStrategy {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

// QueueEntry is one pending conversion. Entries are append-only per user and
// are never removed; Executed transitions false to true exactly once.
type QueueEntry struct {
	FromToken         string
	ToToken           string
	Amount            *big.Int
	ExecutionTick     int64
	Deadline          int64
	Executed          bool
	CustomSlippageBps uint32
}

// Clone returns a copy with duplicated big.Int values.
func (q *QueueEntry) Clone() *QueueEntry {
	if q == nil {
		return nil
	}
	clone := *q
	if q.Amount != nil {
		clone.Amount = new(big.Int).Set(q.Amount)
	}
	return &clone
}

// CycleMarker records the tick and time of the user's last DCA cycle. The
// cycle-level trigger evaluates the same policy as queued orders against this
// marker instead of a specific entry.
type CycleMarker struct {
	Tick int64
	At   int64
}
