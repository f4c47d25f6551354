package hook

import (
	"math/big"

	"nestegg/core/events"
	"nestegg/core/types"
	"nestegg/crypto"
	nativecommon "nestegg/native/common"
	"nestegg/native/ledger"
	"nestegg/native/strategy"
)

const (
	eventTradeSettled      = "savings.trade.settled"
	eventSettlementSkipped = "savings.settlement.skipped"
)

// DCAQueuer accepts a conversion order produced by a settled trade. The DCA
// scheduler implements it.
type DCAQueuer interface {
	QueueFromSwap(user crypto.Address, fromToken, toToken string, amount *big.Int, observedTick int64) error
}

type hookEvent struct {
	evt *types.Event
}

func (e hookEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e hookEvent) Event() *types.Event { return e.evt }

// Interceptor is the two-phase callback invoked by the exchange around each
// trade. One full Idle -> PreTrade -> PostTrade -> Idle cycle runs per trade;
// the exchange guarantees each phase is invoked at most once, in order.
type Interceptor struct {
	strategies *strategy.Engine
	vault      *ledger.Ledger
	queuer     DCAQueuer
	observer   PoolObserver
	emitter    events.Emitter
	guard      *nativecommon.ReentrancyGuard
	pauses     nativecommon.PauseView
}

// NewInterceptor constructs an interceptor bound to the strategy engine and
// savings ledger. The DCA queuer and pool observer are optional collaborators
// wired via setters.
func NewInterceptor(strategies *strategy.Engine, vault *ledger.Ledger) *Interceptor {
	return &Interceptor{
		strategies: strategies,
		vault:      vault,
		emitter:    events.NoopEmitter{},
		guard:      &nativecommon.ReentrancyGuard{},
	}
}

// SetDCAQueuer wires the scheduler that receives conversion orders for
// strategies with DCA enabled.
func (i *Interceptor) SetDCAQueuer(q DCAQueuer) {
	if i == nil {
		return
	}
	i.queuer = q
}

// SetPoolObserver wires the external price-tick source.
func (i *Interceptor) SetPoolObserver(o PoolObserver) {
	if i == nil {
		return
	}
	i.observer = o
}

// SetEmitter configures the event emitter used by the interceptor.
func (i *Interceptor) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		i.emitter = events.NoopEmitter{}
		return
	}
	i.emitter = emitter
}

func (i *Interceptor) SetPauses(p nativecommon.PauseView) {
	if i == nil {
		return
	}
	i.pauses = p
}

func (i *Interceptor) emit(evt *types.Event) {
	if i == nil || i.emitter == nil || evt == nil {
		return
	}
	i.emitter.Emit(hookEvent{evt: evt})
}

// PreTrade is the first callback phase. It loads the trader's strategy and,
// for input-denominated savings, returns an adjustment instructing the
// exchange to withhold the computed amount before execution. The returned
// context must be handed back to PostTrade for the same trade.
func (i *Interceptor) PreTrade(trader crypto.Address, pairKey [32]byte, params TradeParams) (*SwapContext, Adjustment, error) {
	if i == nil || i.strategies == nil || i.vault == nil {
		return nil, ZeroAdjustment(), errNotConfigured
	}
	if err := i.guard.Enter(); err != nil {
		return nil, ZeroAdjustment(), err
	}
	defer i.guard.Exit()

	tokenIn, err := types.NormalizeToken(params.TokenIn)
	if err != nil {
		return nil, ZeroAdjustment(), ErrInvalidTrade
	}
	if _, err := types.NormalizeToken(params.TokenOut); err != nil {
		return nil, ZeroAdjustment(), ErrInvalidTrade
	}

	empty := &SwapContext{Trader: trader, PairKey: pairKey}

	// A paused savings module must never block the primary trade; it only
	// stops new value from being withheld.
	if err := nativecommon.Guard(i.pauses, nativecommon.ModuleSavings); err != nil {
		return empty, ZeroAdjustment(), nil
	}
	cfg, ok, err := i.strategies.Config(trader)
	if err != nil {
		i.emitSkipped(trader, tokenIn, nil, "config_error", err)
		return empty, ZeroAdjustment(), nil
	}
	if !ok || !cfg.Active() {
		return empty, ZeroAdjustment(), nil
	}

	ctx := &SwapContext{
		Trader:         trader,
		PairKey:        pairKey,
		HasStrategy:    true,
		PercentageBps:  cfg.PercentageBps,
		RoundUp:        cfg.RoundUp,
		EnableDCA:      cfg.EnableDCA,
		DCATargetToken: cfg.DCATargetToken,
		TokenType:      cfg.TokenType,
		SpecificToken:  cfg.SpecificToken,
		InputToken:     tokenIn,
		InputAmount:    amountOrZero(params.AmountIn),
		PendingSave:    big.NewInt(0),
		ObservedTick:   i.observeTick(pairKey),
	}

	if cfg.TokenType != strategy.TokenTypeInput {
		// Output-denominated savings depend on the realized trade output
		// and are deferred to the post-trade phase.
		return ctx, ZeroAdjustment(), nil
	}

	save := strategy.CalculateSavingsAmount(ctx.InputAmount, cfg.PercentageBps, cfg.RoundUp)
	if save.Sign() > 0 && save.Cmp(ctx.InputAmount) >= 0 {
		// Withholding the whole input would cancel the trade; save half so
		// the trade still executes with nonzero size.
		save = new(big.Int).Rsh(ctx.InputAmount, 1)
	}
	ctx.PendingSave = save
	return ctx, Adjustment{WithheldInput: new(big.Int).Set(save)}, nil
}

// PostTrade is the second callback phase. It settles the savings amount into
// the ledger and ratchets the strategy percentage. The context is consumed
// unconditionally before control returns, even when settlement fails; a
// failing secondary effect is reported as a diagnostic event and never blocks
// the primary trade.
func (i *Interceptor) PostTrade(ctx *SwapContext, trader crypto.Address, params TradeParams, result TradeResult) error {
	if i == nil || i.strategies == nil || i.vault == nil {
		return errNotConfigured
	}
	if err := i.guard.Enter(); err != nil {
		return err
	}
	defer i.guard.Exit()

	if ctx.Consumed() {
		return ErrContextConsumed
	}
	if !ctx.Trader.Equal(trader) {
		return ErrContextMismatch
	}
	defer ctx.consume()

	if !ctx.HasStrategy {
		return nil
	}

	token, gross := i.settlementAmount(ctx, params, result)
	if gross.Sign() <= 0 {
		return nil
	}

	net, fee, err := i.vault.Deposit(trader, token, gross)
	if err != nil {
		i.emitSkipped(trader, token, gross, "settlement_failed", err)
		return nil
	}
	i.emit(types.NewEvent(eventTradeSettled, map[string]string{
		"trader": trader.String(),
		"token":  token,
		"gross":  gross.String(),
		"net":    net.String(),
		"fee":    fee.String(),
	}))

	if _, err := i.strategies.ApplyAutoIncrement(trader); err != nil {
		i.emitSkipped(trader, token, gross, "auto_increment_failed", err)
	}

	if ctx.EnableDCA && i.queuer != nil && ctx.DCATargetToken != "" && ctx.DCATargetToken != token {
		if err := i.queuer.QueueFromSwap(trader, token, ctx.DCATargetToken, net, ctx.ObservedTick); err != nil {
			i.emitSkipped(trader, token, net, "dca_queue_failed", err)
		}
	}
	return nil
}

func (i *Interceptor) settlementAmount(ctx *SwapContext, params TradeParams, result TradeResult) (string, *big.Int) {
	switch ctx.TokenType {
	case strategy.TokenTypeInput:
		return ctx.InputToken, amountOrZero(ctx.PendingSave)
	case strategy.TokenTypeSpecific:
		return ctx.SpecificToken, strategy.CalculateSavingsAmount(amountOrZero(result.AmountOut), ctx.PercentageBps, ctx.RoundUp)
	default:
		token, err := types.NormalizeToken(params.TokenOut)
		if err != nil {
			return "", big.NewInt(0)
		}
		return token, strategy.CalculateSavingsAmount(amountOrZero(result.AmountOut), ctx.PercentageBps, ctx.RoundUp)
	}
}

func (i *Interceptor) observeTick(pairKey [32]byte) int64 {
	if i.observer == nil {
		return 0
	}
	tick, err := i.observer.CurrentTick(pairKey)
	if err != nil {
		return 0
	}
	return tick
}

func (i *Interceptor) emitSkipped(trader crypto.Address, token string, amount *big.Int, reason string, cause error) {
	attrs := map[string]string{
		"trader": trader.String(),
		"reason": reason,
	}
	if token != "" {
		attrs["token"] = token
	}
	if amount != nil {
		attrs["amount"] = amount.String()
	}
	if cause != nil {
		attrs["error"] = cause.Error()
	}
	i.emit(types.NewEvent(eventSettlementSkipped, attrs))
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
