package strategy

import (
	"strconv"

	"nestegg/core/events"
	"nestegg/core/types"
	"nestegg/crypto"
	nativecommon "nestegg/native/common"
)

const (
	eventStrategyUpdated = "savings.strategy.updated"
	eventStrategyCleared = "savings.strategy.cleared"
)

type engineState interface {
	StrategyConfig(addr crypto.Address) (*UserStrategyConfig, bool, error)
	PutStrategyConfig(addr crypto.Address, cfg *UserStrategyConfig) error
}

type strategyEvent struct {
	evt *types.Event
}

func (e strategyEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e strategyEvent) Event() *types.Event { return e.evt }

// Engine owns the per-user strategy records and the savings rate ratchet.
type Engine struct {
	state        engineState
	emitter      events.Emitter
	pauses       nativecommon.PauseView
	globalMaxBps uint32
}

// NewEngine constructs a strategy engine with a no-op emitter and the full
// 10000 bps range allowed.
func NewEngine() *Engine {
	return &Engine{
		emitter:      events.NoopEmitter{},
		globalMaxBps: BpsDenominator,
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetGlobalMaxBps installs the protocol-wide savings percentage ceiling.
// Zero restores the full range.
func (e *Engine) SetGlobalMaxBps(bps uint32) {
	if e == nil {
		return
	}
	if bps == 0 || bps > BpsDenominator {
		bps = BpsDenominator
	}
	e.globalMaxBps = bps
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(strategyEvent{evt: evt})
}

// SetStrategy validates and overwrites the user's configuration as one atomic
// unit. The record is created on the first call and never deleted afterwards.
func (e *Engine) SetStrategy(user crypto.Address, cfg *UserStrategyConfig) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ModuleStrategy); err != nil {
		return err
	}
	if cfg == nil {
		return ErrInvalidPercentage
	}
	if cfg.PercentageBps > BpsDenominator || cfg.PercentageBps > e.maxBps() {
		return ErrInvalidPercentage
	}
	if cfg.MaxPercentageBps < cfg.PercentageBps {
		return ErrMaxPercentageTooLow
	}
	if !cfg.TokenType.Valid() {
		return ErrInvalidSpecificToken
	}
	stored := cfg.Clone()
	if stored.MaxPercentageBps > e.maxBps() {
		stored.MaxPercentageBps = e.maxBps()
	}
	if stored.TokenType == TokenTypeSpecific {
		normalized, err := types.NormalizeToken(stored.SpecificToken)
		if err != nil {
			return ErrInvalidSpecificToken
		}
		stored.SpecificToken = normalized
	} else {
		stored.SpecificToken = ""
	}
	if stored.EnableDCA {
		normalized, err := types.NormalizeToken(stored.DCATargetToken)
		if err != nil {
			return ErrInvalidDCATarget
		}
		stored.DCATargetToken = normalized
	} else {
		stored.DCATargetToken = ""
	}
	if err := e.state.PutStrategyConfig(user, stored); err != nil {
		return err
	}
	e.emit(types.NewEvent(eventStrategyUpdated, map[string]string{
		"user":       user.String(),
		"percentage": strconv.FormatUint(uint64(stored.PercentageBps), 10),
		"maxPct":     strconv.FormatUint(uint64(stored.MaxPercentageBps), 10),
		"tokenType":  stored.TokenType.String(),
	}))
	return nil
}

// Config loads the user's strategy record. The boolean reports whether a
// record has ever been written.
func (e *Engine) Config(user crypto.Address) (*UserStrategyConfig, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	cfg, ok, err := e.state.StrategyConfig(user)
	if err != nil || !ok {
		return nil, ok, err
	}
	return cfg.Clone(), true, nil
}

// ClearStrategy zeroes the user's configuration in place. The record itself
// survives so auto-increment history and token selections can be audited.
func (e *Engine) ClearStrategy(user crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ModuleStrategy); err != nil {
		return err
	}
	if err := e.state.PutStrategyConfig(user, &UserStrategyConfig{}); err != nil {
		return err
	}
	e.emit(types.NewEvent(eventStrategyCleared, map[string]string{
		"user": user.String(),
	}))
	return nil
}

// ApplyAutoIncrement ratchets the stored percentage after a trade for which
// the strategy applied. It returns the percentage now in effect.
func (e *Engine) ApplyAutoIncrement(user crypto.Address) (uint32, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	cfg, ok, err := e.state.StrategyConfig(user)
	if err != nil {
		return 0, err
	}
	if !ok || cfg == nil {
		return 0, nil
	}
	next := NextPercentage(cfg.PercentageBps, cfg.AutoIncrementBps, cfg.MaxPercentageBps)
	if next == cfg.PercentageBps {
		return next, nil
	}
	updated := cfg.Clone()
	updated.PercentageBps = next
	if err := e.state.PutStrategyConfig(user, updated); err != nil {
		return cfg.PercentageBps, err
	}
	return next, nil
}

func (e *Engine) maxBps() uint32 {
	if e == nil || e.globalMaxBps == 0 {
		return BpsDenominator
	}
	return e.globalMaxBps
}
