package daily

import (
	"math/big"
	"strconv"
	"time"

	"nestegg/core/events"
	"nestegg/core/types"
	"nestegg/crypto"
	nativecommon "nestegg/native/common"
	"nestegg/native/ledger"
)

const (
	// MaxPenaltyBps is the ceiling on the early-withdrawal penalty rate.
	MaxPenaltyBps uint32 = 3_000

	secondsPerDay  int64 = 86_400
	bpsDenominator       = 10_000
)

const (
	eventConfigured = "daily.configured"
	eventExecuted   = "daily.executed"
	eventSkipped    = "daily.skipped"
	eventWithdrawn  = "daily.withdrawn"
	eventDisabled   = "daily.disabled"
)

type engineState interface {
	DailyConfig(addr crypto.Address, token string) (*Config, bool, error)
	PutDailyConfig(addr crypto.Address, cfg *Config) error
	DailyTokenIndex(addr crypto.Address) ([]string, error)
	AppendDailyToken(addr crypto.Address, token string) error
}

// WalletSource pulls contribution funds from the user's external wallet into
// the savings custody. The exchange-side wallet integration implements it.
type WalletSource interface {
	Pull(owner crypto.Address, token string, amount *big.Int) error
}

// YieldAdapter is the capability interface for external yield integrations.
// Both calls are best-effort from the engine's perspective; failures degrade
// to diagnostics.
type YieldAdapter interface {
	Deposit(owner crypto.Address, token string, amount *big.Int) error
	Withdraw(owner crypto.Address, token string, amount *big.Int) error
}

type dailyEvent struct {
	evt *types.Event
}

func (e dailyEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e dailyEvent) Event() *types.Event { return e.evt }

// Engine owns the recurring-contribution schedules. Time-based accrual has no
// timers: days passed are derived from stored timestamps at call time.
type Engine struct {
	state      engineState
	vault      *ledger.Ledger
	wallet     WalletSource
	yield      YieldAdapter
	emitter    events.Emitter
	guard      *nativecommon.ReentrancyGuard
	pauses     nativecommon.PauseView
	moduleAddr crypto.Address
	nowFn      func() int64
}

// NewEngine constructs a daily-savings engine operating under the supplied
// module address for ledger authorization.
func NewEngine(moduleAddr crypto.Address, vault *ledger.Ledger) *Engine {
	return &Engine{
		vault:      vault,
		moduleAddr: moduleAddr,
		emitter:    events.NoopEmitter{},
		guard:      &nativecommon.ReentrancyGuard{},
		nowFn:      func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetWalletSource wires the external wallet the contributions draw from.
func (e *Engine) SetWalletSource(wallet WalletSource) {
	if e == nil {
		return
	}
	e.wallet = wallet
}

// SetYieldAdapter wires the external yield integration dispatched by routed
// schedules.
func (e *Engine) SetYieldAdapter(adapter YieldAdapter) {
	if e == nil {
		return
	}
	e.yield = adapter
}

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(dailyEvent{evt: evt})
}

// Configure creates or replaces the schedule for (user, token). The tracked
// contribution total is seeded from any pre-existing savings balance for the
// token as-is: the treasury fee was already charged when that balance was
// deposited and is not applied a second time.
func (e *Engine) Configure(user crypto.Address, token string, dailyAmount, goalAmount *big.Int, penaltyBps uint32, endTime int64, route YieldRoute) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ModuleDaily); err != nil {
		return err
	}
	normalized, err := types.NormalizeToken(token)
	if err != nil {
		return ErrInvalidToken
	}
	if dailyAmount == nil || dailyAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if goalAmount == nil || goalAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if penaltyBps > MaxPenaltyBps {
		return ErrInvalidPenalty
	}
	now := e.now()
	if endTime <= now {
		return ErrInvalidEndTime
	}
	seed, err := e.vault.BalanceOf(user, normalized)
	if err != nil {
		return err
	}
	cfg := &Config{
		Token:         normalized,
		Enabled:       true,
		DailyAmount:   new(big.Int).Set(dailyAmount),
		GoalAmount:    new(big.Int).Set(goalAmount),
		CurrentAmount: new(big.Int).Set(seed),
		PenaltyBps:    penaltyBps,
		StartTime:     now,
		LastExecution: now,
		EndTime:       endTime,
		Route:         route,
	}
	if err := e.state.PutDailyConfig(user, cfg); err != nil {
		return err
	}
	if err := e.state.AppendDailyToken(user, normalized); err != nil {
		return err
	}
	e.emit(types.NewEvent(eventConfigured, map[string]string{
		"user":    user.String(),
		"token":   normalized,
		"daily":   dailyAmount.String(),
		"goal":    goalAmount.String(),
		"penalty": strconv.FormatUint(uint64(penaltyBps), 10),
		"endTime": strconv.FormatInt(endTime, 10),
	}))
	return nil
}

// ConfigFor returns the schedule for (user, token).
func (e *Engine) ConfigFor(user crypto.Address, token string) (*Config, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	normalized, err := types.NormalizeToken(token)
	if err != nil {
		return nil, false, ErrInvalidToken
	}
	cfg, ok, err := e.state.DailyConfig(user, normalized)
	if err != nil || !ok {
		return nil, ok, err
	}
	return cfg.Clone(), true, nil
}

// ExecuteForToken accrues every full day elapsed since the last execution,
// pulling the gross amount from the user's wallet into the savings ledger.
// Background semantics apply: a wallet shortfall or settlement failure
// degrades to a no-op returning zero with a diagnostic event, because the
// sweep must never fail its caller. Reentrant calls fail with ErrReentrancy.
func (e *Engine) ExecuteForToken(user crypto.Address, token string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.guard.Enter(); err != nil {
		return nil, err
	}
	defer e.guard.Exit()
	return e.executeForToken(user, token)
}

func (e *Engine) executeForToken(user crypto.Address, token string) (*big.Int, error) {
	if err := nativecommon.Guard(e.pauses, nativecommon.ModuleDaily); err != nil {
		return nil, err
	}
	normalized, err := types.NormalizeToken(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	cfg, ok, err := e.state.DailyConfig(user, normalized)
	if err != nil {
		return nil, err
	}
	zero := big.NewInt(0)
	if !ok || !cfg.Enabled || cfg.DailyAmount == nil || cfg.DailyAmount.Sign() <= 0 {
		return zero, nil
	}
	now := e.now()
	if cfg.EndTime > 0 && now > cfg.EndTime {
		return zero, nil
	}
	daysPassed := (now - cfg.LastExecution) / secondsPerDay
	if daysPassed <= 0 {
		return zero, nil
	}
	remaining := new(big.Int).Sub(cfg.GoalAmount, cfg.CurrentAmount)
	if remaining.Sign() <= 0 {
		return zero, nil
	}
	gross := new(big.Int).Mul(cfg.DailyAmount, big.NewInt(daysPassed))
	feeBps, err := e.vault.CurrentFeeBps()
	if err != nil {
		return nil, err
	}
	gross = clampGrossToGoal(gross, remaining, feeBps)

	if e.wallet != nil {
		if err := e.wallet.Pull(user, normalized, gross); err != nil {
			e.emitSkip(user, normalized, gross, "wallet_insufficient", err)
			return zero, nil
		}
	}
	net, fee, err := e.vault.Deposit(user, normalized, gross)
	if err != nil {
		e.emitSkip(user, normalized, gross, "settlement_failed", err)
		return zero, nil
	}

	updated := cfg.Clone()
	updated.LastExecution = now
	updated.CurrentAmount.Add(updated.CurrentAmount, net)
	if updated.CurrentAmount.Cmp(updated.GoalAmount) > 0 {
		updated.CurrentAmount.Set(updated.GoalAmount)
	}
	if err := e.state.PutDailyConfig(user, updated); err != nil {
		return nil, err
	}

	if updated.Route == YieldRouteExternal && e.yield != nil {
		if err := e.yield.Deposit(user, normalized, net); err != nil {
			e.emitSkip(user, normalized, net, "yield_deposit_failed", err)
		}
	}

	e.emit(types.NewEvent(eventExecuted, map[string]string{
		"user":  user.String(),
		"token": normalized,
		"days":  strconv.FormatInt(daysPassed, 10),
		"gross": gross.String(),
		"net":   net.String(),
		"fee":   fee.String(),
	}))
	return net, nil
}

// Execute sweeps every token configured for the user and aggregates the net
// amounts saved. The sweep walks the persisted per-user token index, so its
// cost is proportional to the number of configured tokens.
func (e *Engine) Execute(user crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.guard.Enter(); err != nil {
		return nil, err
	}
	defer e.guard.Exit()
	tokens, err := e.state.DailyTokenIndex(user)
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, token := range tokens {
		net, err := e.executeForToken(user, token)
		if err != nil {
			return nil, err
		}
		total.Add(total, net)
	}
	return total, nil
}

// Withdraw releases savings ahead of or after goal completion. Before the
// goal is met a penalty of amount*penaltyBps/10000 is forfeited to the
// treasury; after completion the full amount is released. This is a direct,
// user-initiated path: shortfalls are hard failures, and reentrant calls
// fail with ErrReentrancy.
func (e *Engine) Withdraw(user crypto.Address, token string, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.guard.Enter(); err != nil {
		return nil, err
	}
	defer e.guard.Exit()
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	normalized, err := types.NormalizeToken(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	cfg, ok, err := e.state.DailyConfig(user, normalized)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotConfigured
	}

	penalty := big.NewInt(0)
	if !cfg.GoalReached() && cfg.PenaltyBps > 0 {
		penalty = new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(cfg.PenaltyBps)))
		penalty.Quo(penalty, big.NewInt(bpsDenominator))
	}
	netAmount := new(big.Int).Sub(amount, penalty)

	if cfg.Route == YieldRouteExternal && e.yield != nil {
		if err := e.yield.Withdraw(user, normalized, amount); err != nil {
			e.emitSkip(user, normalized, amount, "yield_withdraw_failed", err)
		}
	}
	if err := e.vault.Withdraw(e.moduleAddr, user, normalized, amount); err != nil {
		return nil, err
	}
	if penalty.Sign() > 0 {
		if err := e.vault.Forfeit(e.moduleAddr, normalized, penalty); err != nil {
			return nil, err
		}
	}

	updated := cfg.Clone()
	updated.CurrentAmount.Sub(updated.CurrentAmount, amount)
	if updated.CurrentAmount.Sign() < 0 {
		updated.CurrentAmount.SetInt64(0)
	}
	if err := e.state.PutDailyConfig(user, updated); err != nil {
		return nil, err
	}

	e.emit(types.NewEvent(eventWithdrawn, map[string]string{
		"user":    user.String(),
		"token":   normalized,
		"amount":  amount.String(),
		"penalty": penalty.String(),
		"net":     netAmount.String(),
	}))
	return netAmount, nil
}

// Disable clears the enabled flag and the scheduled daily amount, halting
// future accrual without forfeiting the tracked contribution total.
func (e *Engine) Disable(user crypto.Address, token string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	normalized, err := types.NormalizeToken(token)
	if err != nil {
		return ErrInvalidToken
	}
	cfg, ok, err := e.state.DailyConfig(user, normalized)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotConfigured
	}
	updated := cfg.Clone()
	updated.Enabled = false
	updated.DailyAmount = big.NewInt(0)
	if err := e.state.PutDailyConfig(user, updated); err != nil {
		return err
	}
	e.emit(types.NewEvent(eventDisabled, map[string]string{
		"user":  user.String(),
		"token": normalized,
	}))
	return nil
}

func (e *Engine) emitSkip(user crypto.Address, token string, amount *big.Int, reason string, cause error) {
	attrs := map[string]string{
		"user":   user.String(),
		"token":  token,
		"reason": reason,
	}
	if amount != nil {
		attrs["amount"] = amount.String()
	}
	if cause != nil {
		attrs["error"] = cause.Error()
	}
	e.emit(types.NewEvent(eventSkipped, attrs))
}

// clampGrossToGoal reduces the gross contribution so the net credit cannot
// overshoot the remaining goal headroom by more than the fee rounding unit;
// the caller clamps the tracked total to the goal afterwards.
func clampGrossToGoal(gross, remaining *big.Int, feeBps uint32) *big.Int {
	denom := int64(bpsDenominator) - int64(feeBps)
	if denom <= 0 {
		denom = 1
	}
	grossCap := new(big.Int).Mul(remaining, big.NewInt(bpsDenominator))
	grossCap.Quo(grossCap, big.NewInt(denom))
	if gross.Cmp(grossCap) > 0 {
		return grossCap
	}
	return gross
}
