package dca

import (
	"math/big"
	"strconv"
	"time"

	"nestegg/core/events"
	"nestegg/core/types"
	"nestegg/crypto"
	nativecommon "nestegg/native/common"
	"nestegg/native/hook"
	"nestegg/native/ledger"
)

const (
	defaultTickExpirySecs int64 = 86_400
	maxDynamicMultiple    int64 = 4

	eventOrderQueued   = "dca.order.queued"
	eventOrderExecuted = "dca.order.executed"
	eventOrderSkipped  = "dca.order.skipped"
)

type engineState interface {
	DCASettings(addr crypto.Address) (*Settings, bool, error)
	PutDCASettings(addr crypto.Address, settings *Settings) error
	DCATickStrategy(addr crypto.Address) (*TickStrategy, bool, error)
	PutDCATickStrategy(addr crypto.Address, strategy *TickStrategy) error
	DCAQueueLen(addr crypto.Address) (int, error)
	DCAQueueEntry(addr crypto.Address, index int) (*QueueEntry, bool, error)
	AppendDCAQueueEntry(addr crypto.Address, entry *QueueEntry) (int, error)
	UpdateDCAQueueEntry(addr crypto.Address, index int, entry *QueueEntry) error
	DCACycleMarker(addr crypto.Address) (*CycleMarker, bool, error)
	PutDCACycleMarker(addr crypto.Address, marker *CycleMarker) error
}

// PoolExecutor performs the actual conversion on the external exchange. The
// returned amount is the realized output after slippage.
type PoolExecutor interface {
	ExecuteSwap(pairKey [32]byte, fromToken, toToken string, amountIn *big.Int, maxSlippageBps uint32) (*big.Int, error)
}

type dcaEvent struct {
	evt *types.Event
}

func (e dcaEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e dcaEvent) Event() *types.Event { return e.evt }

// Engine owns the per-user conversion queues and the tick-conditional
// trigger policy. Orders draw from the savings ledger as a registered module
// and deposit proceeds back through the same fee-settling path.
type Engine struct {
	state      engineState
	vault      *ledger.Ledger
	executor   PoolExecutor
	observer   hook.PoolObserver
	emitter    events.Emitter
	guard      *nativecommon.ReentrancyGuard
	pauses     nativecommon.PauseView
	moduleAddr crypto.Address
	nowFn      func() int64
}

// NewEngine constructs a DCA engine operating under the supplied module
// address for ledger authorization.
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

// SetExecutor wires the external pool execution collaborator.
func (e *Engine) SetExecutor(executor PoolExecutor) {
	if e == nil {
		return
	}
	e.executor = executor
}

// SetObserver wires the external price-tick source.
func (e *Engine) SetObserver(observer hook.PoolObserver) {
	if e == nil {
		return
	}
	e.observer = observer
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
	e.emitter.Emit(dcaEvent{evt: evt})
}

// Enable switches DCA on for the user with the supplied target asset and
// trade guardrails.
func (e *Engine) Enable(user crypto.Address, targetToken string, minAmount *big.Int, maxSlippageBps uint32) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ModuleDCA); err != nil {
		return err
	}
	normalized, err := types.NormalizeToken(targetToken)
	if err != nil {
		return err
	}
	if maxSlippageBps > 10_000 {
		return ErrInvalidSlippage
	}
	settings := &Settings{
		Enabled:        true,
		TargetToken:    normalized,
		MaxSlippageBps: maxSlippageBps,
	}
	if minAmount != nil && minAmount.Sign() > 0 {
		settings.MinAmount = new(big.Int).Set(minAmount)
	}
	return e.state.PutDCASettings(user, settings)
}

// Disable switches DCA off without touching queued orders.
func (e *Engine) Disable(user crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	settings, ok, err := e.state.DCASettings(user)
	if err != nil || !ok {
		return err
	}
	settings = settings.Clone()
	settings.Enabled = false
	return e.state.PutDCASettings(user, settings)
}

// Settings returns the user's DCA settings record.
func (e *Engine) Settings(user crypto.Address) (*Settings, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	settings, ok, err := e.state.DCASettings(user)
	if err != nil || !ok {
		return nil, ok, err
	}
	return settings.Clone(), true, nil
}

// SetTickStrategy configures the user's trigger policy singleton.
func (e *Engine) SetTickStrategy(user crypto.Address, policy *TickStrategy) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ModuleDCA); err != nil {
		return err
	}
	if policy == nil || policy.TickDelta < 0 || policy.TickExpirySecs < 0 || policy.MinTickImprovement < 0 {
		return ErrInvalidTickStrategy
	}
	if policy.CustomSlippageBps > 10_000 {
		return ErrInvalidSlippage
	}
	return e.state.PutDCATickStrategy(user, policy.Clone())
}

// TickStrategyFor returns the user's trigger policy.
func (e *Engine) TickStrategyFor(user crypto.Address) (*TickStrategy, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	policy, ok, err := e.state.DCATickStrategy(user)
	if err != nil || !ok {
		return nil, ok, err
	}
	return policy.Clone(), true, nil
}

// Queue appends a conversion order, observing the current tick from the pool
// collaborator at enqueue time.
func (e *Engine) Queue(user crypto.Address, fromToken, toToken string, amount *big.Int) (int, error) {
	tick := int64(0)
	if e != nil && e.observer != nil {
		observed, err := e.observer.CurrentTick(hook.PairKey(fromToken, toToken))
		if err == nil {
			tick = observed
		}
	}
	return e.queue(user, fromToken, toToken, amount, tick)
}

// QueueFromSwap implements the hook queuer contract: it appends an order with
// the tick captured during the originating trade.
func (e *Engine) QueueFromSwap(user crypto.Address, fromToken, toToken string, amount *big.Int, observedTick int64) error {
	_, err := e.queue(user, fromToken, toToken, amount, observedTick)
	return err
}

func (e *Engine) queue(user crypto.Address, fromToken, toToken string, amount *big.Int, observedTick int64) (int, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ModuleDCA); err != nil {
		return 0, err
	}
	from, err := types.NormalizeToken(fromToken)
	if err != nil {
		return 0, err
	}
	to, err := types.NormalizeToken(toToken)
	if err != nil {
		return 0, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	settings, ok, err := e.state.DCASettings(user)
	if err != nil {
		return 0, err
	}
	if !ok || !settings.Enabled {
		return 0, ErrNotEnabled
	}
	if settings.MinAmount != nil && amount.Cmp(settings.MinAmount) < 0 {
		return 0, ErrBelowMinimum
	}
	policy, _, err := e.state.DCATickStrategy(user)
	if err != nil {
		return 0, err
	}
	expiry := defaultTickExpirySecs
	slippage := settings.MaxSlippageBps
	if policy != nil {
		if policy.TickExpirySecs > 0 {
			expiry = policy.TickExpirySecs
		}
		if policy.CustomSlippageBps > 0 {
			slippage = policy.CustomSlippageBps
		}
	}
	entry := &QueueEntry{
		FromToken:         from,
		ToToken:           to,
		Amount:            new(big.Int).Set(amount),
		ExecutionTick:     observedTick,
		Deadline:          e.now() + expiry,
		CustomSlippageBps: slippage,
	}
	index, err := e.state.AppendDCAQueueEntry(user, entry)
	if err != nil {
		return 0, err
	}
	e.emit(types.NewEvent(eventOrderQueued, map[string]string{
		"user":     user.String(),
		"from":     from,
		"to":       to,
		"amount":   amount.String(),
		"tick":     strconv.FormatInt(observedTick, 10),
		"deadline": strconv.FormatInt(entry.Deadline, 10),
		"index":    strconv.Itoa(index),
	}))
	return index, nil
}

// QueueLen returns the number of orders ever queued for the user.
func (e *Engine) QueueLen(user crypto.Address) (int, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.DCAQueueLen(user)
}

// QueueEntryAt returns a copy of the order at the supplied index.
func (e *Engine) QueueEntryAt(user crypto.Address, index int) (*QueueEntry, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	entry, ok, err := e.state.DCAQueueEntry(user, index)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrEntryNotFound
	}
	return entry.Clone(), nil
}

// ShouldExecuteAtTick reports whether the order at the supplied index fires
// under the canonical trigger policy at the given tick.
func (e *Engine) ShouldExecuteAtTick(user crypto.Address, index int, currentTick int64) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	entry, ok, err := e.state.DCAQueueEntry(user, index)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrEntryNotFound
	}
	policy, _, err := e.state.DCATickStrategy(user)
	if err != nil {
		return false, err
	}
	return evaluateTrigger(triggerInput{
		executed:      entry.Executed,
		executionTick: entry.ExecutionTick,
		deadline:      entry.Deadline,
		currentTick:   currentTick,
		now:           e.now(),
		favorableUp:   favorableUp(entry.FromToken, entry.ToToken),
		policy:        policy,
	}), nil
}

// ShouldExecuteCycle reports whether a new DCA cycle should begin for the
// user, evaluating the same trigger policy against the stored last-cycle
// marker and the tick currently observed from the pool. The observed tick is
// returned for the caller to thread into the subsequent execution.
func (e *Engine) ShouldExecuteCycle(user crypto.Address, pairKey [32]byte) (bool, int64, error) {
	if e == nil || e.state == nil {
		return false, 0, errNilState
	}
	settings, ok, err := e.state.DCASettings(user)
	if err != nil {
		return false, 0, err
	}
	if !ok || !settings.Enabled {
		return false, 0, nil
	}
	currentTick := int64(0)
	if e.observer != nil {
		observed, err := e.observer.CurrentTick(pairKey)
		if err != nil {
			return false, 0, err
		}
		currentTick = observed
	}
	marker, ok, err := e.state.DCACycleMarker(user)
	if err != nil {
		return false, 0, err
	}
	if !ok {
		// No cycle has ever run; start the first one.
		return true, currentTick, nil
	}
	policy, _, err := e.state.DCATickStrategy(user)
	if err != nil {
		return false, 0, err
	}
	expiry := defaultTickExpirySecs
	if policy != nil && policy.TickExpirySecs > 0 {
		expiry = policy.TickExpirySecs
	}
	fire := evaluateTrigger(triggerInput{
		executionTick: marker.Tick,
		deadline:      marker.At + expiry,
		currentTick:   currentTick,
		now:           e.now(),
		favorableUp:   true,
		policy:        policy,
	})
	return fire, currentTick, nil
}

// ExecuteQueued runs the order at the supplied index when its trigger fires.
// The executed amount honours dynamic sizing and is capped by the user's
// available savings balance for the source token. Funds are withdrawn and the
// order is marked executed before the pool is invoked; proceeds are deposited
// back through the fee-settling ledger path for the target token, and a
// failing swap unwinds both the mark and the debit. Reentrant calls fail with
// ErrReentrancy.
func (e *Engine) ExecuteQueued(user crypto.Address, index int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.guard.Enter(); err != nil {
		return nil, err
	}
	defer e.guard.Exit()
	if err := nativecommon.Guard(e.pauses, nativecommon.ModuleDCA); err != nil {
		return nil, err
	}
	if e.executor == nil {
		return nil, ErrNoExecutor
	}
	entry, ok, err := e.state.DCAQueueEntry(user, index)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrEntryNotFound
	}
	if entry.Executed {
		return nil, ErrAlreadyExecuted
	}
	pairKey := hook.PairKey(entry.FromToken, entry.ToToken)
	currentTick := entry.ExecutionTick
	if e.observer != nil {
		observed, err := e.observer.CurrentTick(pairKey)
		if err == nil {
			currentTick = observed
		}
	}
	policy, _, err := e.state.DCATickStrategy(user)
	if err != nil {
		return nil, err
	}
	up := favorableUp(entry.FromToken, entry.ToToken)
	fire := evaluateTrigger(triggerInput{
		executed:      entry.Executed,
		executionTick: entry.ExecutionTick,
		deadline:      entry.Deadline,
		currentTick:   currentTick,
		now:           e.now(),
		favorableUp:   up,
		policy:        policy,
	})
	if !fire {
		return nil, ErrNotTriggered
	}

	amount := e.sizedAmount(entry, policy, currentTick, up)
	balance, err := e.vault.BalanceOf(user, entry.FromToken)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(balance) > 0 {
		amount = new(big.Int).Set(balance)
	}
	if amount.Sign() <= 0 {
		return nil, ErrInsufficientSavings
	}

	// Withdraw first and persist the executed mark before the pool runs, so
	// the funds backing the order are out of reach while control is outside
	// the engine.
	if err := e.vault.Withdraw(e.moduleAddr, user, entry.FromToken, amount); err != nil {
		return nil, err
	}
	updated := entry.Clone()
	updated.Executed = true
	if err := e.state.UpdateDCAQueueEntry(user, index, updated); err != nil {
		_ = e.vault.Refund(e.moduleAddr, user, entry.FromToken, amount)
		return nil, err
	}

	proceeds, err := e.executor.ExecuteSwap(pairKey, entry.FromToken, entry.ToToken, amount, entry.CustomSlippageBps)
	if err != nil {
		// Unwind: the order returns to pending and the debit is restored
		// without a second fee split.
		_ = e.state.UpdateDCAQueueEntry(user, index, entry.Clone())
		_ = e.vault.Refund(e.moduleAddr, user, entry.FromToken, amount)
		e.emit(types.NewEvent(eventOrderSkipped, map[string]string{
			"user":   user.String(),
			"index":  strconv.Itoa(index),
			"reason": "swap_failed",
			"error":  err.Error(),
		}))
		return nil, err
	}
	if proceeds != nil && proceeds.Sign() > 0 {
		if _, _, err := e.vault.Deposit(user, entry.ToToken, proceeds); err != nil {
			return nil, err
		}
	}

	if err := e.state.PutDCACycleMarker(user, &CycleMarker{Tick: currentTick, At: e.now()}); err != nil {
		return nil, err
	}
	e.emit(types.NewEvent(eventOrderExecuted, map[string]string{
		"user":     user.String(),
		"index":    strconv.Itoa(index),
		"from":     entry.FromToken,
		"to":       entry.ToToken,
		"amount":   amount.String(),
		"proceeds": proceeds.String(),
		"tick":     strconv.FormatInt(currentTick, 10),
	}))
	return proceeds, nil
}

// sizedAmount applies dynamic sizing: the executed amount grows with the
// magnitude of favorable tick movement in whole multiples of tickDelta,
// monotonic non-decreasing and clamped to a fixed multiple of the base
// order. The caller caps the result at the available balance.
func (e *Engine) sizedAmount(entry *QueueEntry, policy *TickStrategy, currentTick int64, up bool) *big.Int {
	base := new(big.Int).Set(entry.Amount)
	if policy == nil || !policy.DynamicSizing || policy.TickDelta <= 0 {
		return base
	}
	favorable := favorableMovement(entry.ExecutionTick, currentTick, up)
	multiple := favorable / policy.TickDelta
	if multiple <= 1 {
		return base
	}
	if multiple > maxDynamicMultiple {
		multiple = maxDynamicMultiple
	}
	return base.Mul(base, big.NewInt(multiple))
}
