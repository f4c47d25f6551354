package ledger

import (
	"math/big"

	"nestegg/core/events"
	"nestegg/core/types"
	"nestegg/crypto"
	nativecommon "nestegg/native/common"
)

const (
	// MaxTreasuryFeeBps is the hard ceiling on the treasury fee rate.
	MaxTreasuryFeeBps uint32 = 500

	bpsDenominator = 10_000
)

const (
	eventDeposit   = "savings.deposit"
	eventWithdrawn = "savings.withdrawn"
	eventRefund    = "savings.refund"
	eventForfeit   = "savings.forfeit"
)

type ledgerState interface {
	SavingsBalance(owner crypto.Address, token string) (*big.Int, error)
	SetSavingsBalance(owner crypto.Address, token string, amount *big.Int) error
	TreasuryAddress() (crypto.Address, bool, error)
	TreasuryFeeBps() (uint32, error)
	ModuleAuthorized(addr crypto.Address) (bool, error)
	ReceiptTokenID(token string) (uint64, bool, error)
	SetReceiptTokenID(token string, id uint64) error
}

type ledgerEvent struct {
	evt *types.Event
}

func (e ledgerEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e ledgerEvent) Event() *types.Event { return e.evt }

// Ledger owns per-(owner, token) savings balances, including the treasury
// account, and performs the fee split applied to every deposit. Balances are
// mutated only through Deposit, Withdraw, Refund, and Forfeit; every other
// path is rejected. Each mutating entry point rejects reentrant calls.
type Ledger struct {
	state    ledgerState
	receipts ReceiptLedger
	emitter  events.Emitter
	guard    *nativecommon.ReentrancyGuard
	pauses   nativecommon.PauseView
}

// NewLedger constructs a ledger with no receipt surface and a no-op emitter.
func NewLedger() *Ledger {
	return &Ledger{
		receipts: NoopReceiptLedger{},
		emitter:  events.NoopEmitter{},
		guard:    &nativecommon.ReentrancyGuard{},
	}
}

// SetState wires the ledger to the external persistence layer.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// SetReceiptLedger configures the external receipt token ledger. Passing nil
// restores the no-op implementation.
func (l *Ledger) SetReceiptLedger(receipts ReceiptLedger) {
	if receipts == nil {
		l.receipts = NoopReceiptLedger{}
		return
	}
	l.receipts = receipts
}

// SetEmitter configures the event emitter used by the ledger.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) SetPauses(p nativecommon.PauseView) {
	if l == nil {
		return
	}
	l.pauses = p
}

func (l *Ledger) emit(evt *types.Event) {
	if l == nil || l.emitter == nil || evt == nil {
		return
	}
	l.emitter.Emit(ledgerEvent{evt: evt})
}

// SplitFee computes the treasury fee for a gross deposit at the supplied
// rate. The invariant net+fee == gross holds exactly for every input.
func SplitFee(gross *big.Int, feeBps uint32) (net, fee *big.Int) {
	if gross == nil || gross.Sign() <= 0 {
		return big.NewInt(0), big.NewInt(0)
	}
	fee = new(big.Int).Mul(gross, new(big.Int).SetUint64(uint64(feeBps)))
	fee.Quo(fee, big.NewInt(bpsDenominator))
	net = new(big.Int).Sub(gross, fee)
	return net, fee
}

// BalanceOf returns the stored savings balance for the owner and token.
func (l *Ledger) BalanceOf(owner crypto.Address, token string) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	normalized, err := types.NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	return l.state.SavingsBalance(owner, normalized)
}

// CurrentFeeBps returns the treasury fee rate applied to deposits.
func (l *Ledger) CurrentFeeBps() (uint32, error) {
	if l == nil || l.state == nil {
		return 0, errNilState
	}
	return l.state.TreasuryFeeBps()
}

// Deposit credits a gross savings amount to the owner, routing the treasury
// fee in the same settlement. Receipt tokens are minted in lock-step with the
// net credit. Returns the net and fee portions.
func (l *Ledger) Deposit(owner crypto.Address, token string, gross *big.Int) (*big.Int, *big.Int, error) {
	if l == nil || l.state == nil {
		return nil, nil, errNilState
	}
	if err := l.guard.Enter(); err != nil {
		return nil, nil, err
	}
	defer l.guard.Exit()
	if err := nativecommon.Guard(l.pauses, nativecommon.ModuleSavings); err != nil {
		return nil, nil, err
	}
	if gross == nil || gross.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	normalized, err := types.NormalizeToken(token)
	if err != nil {
		return nil, nil, err
	}
	feeBps, err := l.state.TreasuryFeeBps()
	if err != nil {
		return nil, nil, err
	}
	if feeBps > MaxTreasuryFeeBps {
		return nil, nil, ErrFeeAboveCeiling
	}
	treasury, haveTreasury, err := l.state.TreasuryAddress()
	if err != nil {
		return nil, nil, err
	}
	net, fee := SplitFee(gross, feeBps)
	if fee.Sign() > 0 && !haveTreasury {
		return nil, nil, ErrTreasuryNotConfigured
	}

	prevOwner, err := l.state.SavingsBalance(owner, normalized)
	if err != nil {
		return nil, nil, err
	}
	var prevTreasury *big.Int
	if fee.Sign() > 0 {
		prevTreasury, err = l.state.SavingsBalance(treasury, normalized)
		if err != nil {
			return nil, nil, err
		}
	}
	if err := l.state.SetSavingsBalance(owner, normalized, new(big.Int).Add(prevOwner, net)); err != nil {
		return nil, nil, err
	}
	if fee.Sign() > 0 {
		if err := l.state.SetSavingsBalance(treasury, normalized, new(big.Int).Add(prevTreasury, fee)); err != nil {
			// Roll the user credit back so the fee transfer and balance
			// credit either both commit or neither does.
			_ = l.state.SetSavingsBalance(owner, normalized, prevOwner)
			return nil, nil, err
		}
	}
	if err := l.mintReceipt(owner, normalized, net); err != nil {
		_ = l.state.SetSavingsBalance(owner, normalized, prevOwner)
		if fee.Sign() > 0 {
			_ = l.state.SetSavingsBalance(treasury, normalized, prevTreasury)
		}
		return nil, nil, err
	}

	l.emit(types.NewEvent(eventDeposit, map[string]string{
		"owner": owner.String(),
		"token": normalized,
		"gross": gross.String(),
		"fee":   fee.String(),
		"net":   net.String(),
	}))
	return net, fee, nil
}

// Withdraw debits the owner's balance 1:1. The caller must be the owner or a
// registered module; withdrawal-specific fees (e.g. the daily-savings
// penalty) are the caller's policy and are not applied here. Withdrawals are
// deliberately not pause-guarded. Reentrant calls fail with ErrReentrancy.
func (l *Ledger) Withdraw(caller, owner crypto.Address, token string, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := l.guard.Enter(); err != nil {
		return err
	}
	defer l.guard.Exit()
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := l.authorize(caller, owner); err != nil {
		return err
	}
	normalized, err := types.NormalizeToken(token)
	if err != nil {
		return err
	}
	balance, err := l.state.SavingsBalance(owner, normalized)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := l.state.SetSavingsBalance(owner, normalized, new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	if err := l.burnReceipt(owner, normalized, amount); err != nil {
		// Restore the balance; the receipt supply and the ledger must not
		// drift apart.
		_ = l.state.SetSavingsBalance(owner, normalized, balance)
		return err
	}
	l.emit(types.NewEvent(eventWithdrawn, map[string]string{
		"owner":  owner.String(),
		"token":  normalized,
		"amount": amount.String(),
	}))
	return nil
}

// Refund restores a previously withdrawn amount to the owner without the
// treasury fee split, minting the matching receipt amount. Only registered
// modules may refund; it backs module-side rollback when an external
// settlement fails after funds already left custody.
func (l *Ledger) Refund(caller, owner crypto.Address, token string, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := l.guard.Enter(); err != nil {
		return err
	}
	defer l.guard.Exit()
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	authorized, err := l.state.ModuleAuthorized(caller)
	if err != nil {
		return err
	}
	if !authorized {
		return ErrUnauthorized
	}
	normalized, err := types.NormalizeToken(token)
	if err != nil {
		return err
	}
	balance, err := l.state.SavingsBalance(owner, normalized)
	if err != nil {
		return err
	}
	if err := l.state.SetSavingsBalance(owner, normalized, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	if err := l.mintReceipt(owner, normalized, amount); err != nil {
		_ = l.state.SetSavingsBalance(owner, normalized, balance)
		return err
	}
	l.emit(types.NewEvent(eventRefund, map[string]string{
		"owner":  owner.String(),
		"token":  normalized,
		"amount": amount.String(),
	}))
	return nil
}

// Forfeit moves an already-debited amount to the treasury. Only registered
// modules may forfeit; it backs caller-side withdrawal policies such as the
// daily-savings early-withdrawal penalty.
func (l *Ledger) Forfeit(caller crypto.Address, token string, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := l.guard.Enter(); err != nil {
		return err
	}
	defer l.guard.Exit()
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	authorized, err := l.state.ModuleAuthorized(caller)
	if err != nil {
		return err
	}
	if !authorized {
		return ErrUnauthorized
	}
	normalized, err := types.NormalizeToken(token)
	if err != nil {
		return err
	}
	treasury, haveTreasury, err := l.state.TreasuryAddress()
	if err != nil {
		return err
	}
	if !haveTreasury {
		return ErrTreasuryNotConfigured
	}
	balance, err := l.state.SavingsBalance(treasury, normalized)
	if err != nil {
		return err
	}
	if err := l.state.SetSavingsBalance(treasury, normalized, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	l.emit(types.NewEvent(eventForfeit, map[string]string{
		"token":  normalized,
		"amount": amount.String(),
	}))
	return nil
}

func (l *Ledger) authorize(caller, owner crypto.Address) error {
	if caller.Equal(owner) {
		return nil
	}
	authorized, err := l.state.ModuleAuthorized(caller)
	if err != nil {
		return err
	}
	if !authorized {
		return ErrUnauthorized
	}
	return nil
}

func (l *Ledger) receiptID(token string) (uint64, error) {
	id, ok, err := l.state.ReceiptTokenID(token)
	if err != nil {
		return 0, err
	}
	if ok {
		return id, nil
	}
	id, err = l.receipts.Register(token)
	if err != nil {
		return 0, err
	}
	if err := l.state.SetReceiptTokenID(token, id); err != nil {
		return 0, err
	}
	return id, nil
}

func (l *Ledger) mintReceipt(owner crypto.Address, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	id, err := l.receiptID(token)
	if err != nil {
		return err
	}
	return l.receipts.Mint(owner.Bytes(), id, amount)
}

func (l *Ledger) burnReceipt(owner crypto.Address, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	id, err := l.receiptID(token)
	if err != nil {
		return err
	}
	return l.receipts.Burn(owner.Bytes(), id, amount)
}
