package ledger

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"nestegg/crypto"
	nativecommon "nestegg/native/common"
)

type mockState struct {
	balances   map[string]*big.Int
	treasury   crypto.Address
	hasTreas   bool
	feeBps     uint32
	modules    map[string]bool
	receiptIDs map[string]uint64
}

func newMockState() *mockState {
	return &mockState{
		balances:   make(map[string]*big.Int),
		modules:    make(map[string]bool),
		receiptIDs: make(map[string]uint64),
	}
}

func balKey(owner crypto.Address, token string) string {
	return owner.String() + "/" + token
}

func (m *mockState) SavingsBalance(owner crypto.Address, token string) (*big.Int, error) {
	if bal, ok := m.balances[balKey(owner, token)]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) SetSavingsBalance(owner crypto.Address, token string, amount *big.Int) error {
	m.balances[balKey(owner, token)] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) TreasuryAddress() (crypto.Address, bool, error) {
	return m.treasury, m.hasTreas, nil
}

func (m *mockState) TreasuryFeeBps() (uint32, error) { return m.feeBps, nil }

func (m *mockState) ModuleAuthorized(addr crypto.Address) (bool, error) {
	return m.modules[addr.String()], nil
}

func (m *mockState) ReceiptTokenID(token string) (uint64, bool, error) {
	id, ok := m.receiptIDs[token]
	return id, ok, nil
}

func (m *mockState) SetReceiptTokenID(token string, id uint64) error {
	m.receiptIDs[token] = id
	return nil
}

func testAddr(b byte) crypto.Address {
	return crypto.NewAddress(crypto.SavePrefix, bytes.Repeat([]byte{b}, 20))
}

func newTestLedger(state *mockState) *Ledger {
	l := NewLedger()
	l.SetState(state)
	return l
}

func TestSplitFeeExact(t *testing.T) {
	cases := []struct {
		gross   int64
		feeBps  uint32
		wantNet int64
		wantFee int64
	}{
		{10_000, 10, 9990, 10},
		{100, 10, 100, 0},
		{999, 10, 999, 0},
		{1000, 10, 999, 1},
		{12345, 500, 11728, 617},
		{1, 0, 1, 0},
	}
	for _, tc := range cases {
		net, fee := SplitFee(big.NewInt(tc.gross), tc.feeBps)
		if net.Int64() != tc.wantNet || fee.Int64() != tc.wantFee {
			t.Fatalf("SplitFee(%d, %d) = (%s, %s), want (%d, %d)", tc.gross, tc.feeBps, net, fee, tc.wantNet, tc.wantFee)
		}
		sum := new(big.Int).Add(net, fee)
		if sum.Int64() != tc.gross {
			t.Fatalf("net+fee = %s, want %d", sum, tc.gross)
		}
	}
}

func TestDepositRoutesFee(t *testing.T) {
	state := newMockState()
	state.feeBps = 10
	state.treasury = testAddr(0xEE)
	state.hasTreas = true
	l := newTestLedger(state)
	owner := testAddr(0x01)

	net, fee, err := l.Deposit(owner, "usdc", big.NewInt(100_000))
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if net.Int64() != 99_900 || fee.Int64() != 100 {
		t.Fatalf("split = (%s, %s), want (99900, 100)", net, fee)
	}
	bal, _ := l.BalanceOf(owner, "USDC")
	if bal.Int64() != 99_900 {
		t.Fatalf("owner balance = %s", bal)
	}
	treasuryBal, _ := l.BalanceOf(state.treasury, "USDC")
	if treasuryBal.Int64() != 100 {
		t.Fatalf("treasury balance = %s", treasuryBal)
	}
}

func TestDepositWithoutTreasury(t *testing.T) {
	state := newMockState()
	state.feeBps = 10
	l := newTestLedger(state)

	if _, _, err := l.Deposit(testAddr(0x01), "USDC", big.NewInt(10_000)); !errors.Is(err, ErrTreasuryNotConfigured) {
		t.Fatalf("got %v, want ErrTreasuryNotConfigured", err)
	}
	// A zero-fee deposit needs no treasury at all.
	state.feeBps = 0
	net, fee, err := l.Deposit(testAddr(0x01), "USDC", big.NewInt(10_000))
	if err != nil {
		t.Fatalf("zero-fee deposit: %v", err)
	}
	if net.Int64() != 10_000 || fee.Sign() != 0 {
		t.Fatalf("zero-fee split = (%s, %s)", net, fee)
	}
}

func TestDepositRejectsFeeAboveCeiling(t *testing.T) {
	state := newMockState()
	state.feeBps = MaxTreasuryFeeBps + 1
	l := newTestLedger(state)
	if _, _, err := l.Deposit(testAddr(0x01), "USDC", big.NewInt(100)); !errors.Is(err, ErrFeeAboveCeiling) {
		t.Fatalf("got %v, want ErrFeeAboveCeiling", err)
	}
}

func TestDepositRejectsNonPositive(t *testing.T) {
	l := newTestLedger(newMockState())
	if _, _, err := l.Deposit(testAddr(0x01), "USDC", big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: got %v", err)
	}
	if _, _, err := l.Deposit(testAddr(0x01), "USDC", nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("nil amount: got %v", err)
	}
}

func TestDepositPaused(t *testing.T) {
	state := newMockState()
	l := newTestLedger(state)
	l.SetPauses(&mockPauses{paused: map[string]bool{nativecommon.ModuleSavings: true}})
	if _, _, err := l.Deposit(testAddr(0x01), "USDC", big.NewInt(100)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("got %v, want ErrModulePaused", err)
	}
}

type mockPauses struct {
	paused map[string]bool
}

func (m *mockPauses) IsPaused(module string) bool { return m.paused[module] }

func TestWithdrawOwnerAndModule(t *testing.T) {
	state := newMockState()
	l := newTestLedger(state)
	owner := testAddr(0x01)
	module := testAddr(0xAA)
	stranger := testAddr(0xBB)
	state.modules[module.String()] = true

	if _, _, err := l.Deposit(owner, "USDC", big.NewInt(1000)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	if err := l.Withdraw(stranger, owner, "USDC", big.NewInt(100)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("stranger withdraw: got %v", err)
	}
	if err := l.Withdraw(owner, owner, "USDC", big.NewInt(400)); err != nil {
		t.Fatalf("owner withdraw: %v", err)
	}
	if err := l.Withdraw(module, owner, "USDC", big.NewInt(400)); err != nil {
		t.Fatalf("module withdraw: %v", err)
	}
	bal, _ := l.BalanceOf(owner, "USDC")
	if bal.Int64() != 200 {
		t.Fatalf("balance after withdrawals = %s", bal)
	}
	if err := l.Withdraw(owner, owner, "USDC", big.NewInt(500)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("overdraw: got %v", err)
	}
}

func TestWithdrawWorksWhilePaused(t *testing.T) {
	state := newMockState()
	l := newTestLedger(state)
	owner := testAddr(0x01)
	if _, _, err := l.Deposit(owner, "USDC", big.NewInt(1000)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	l.SetPauses(&mockPauses{paused: map[string]bool{nativecommon.ModuleSavings: true}})
	if err := l.Withdraw(owner, owner, "USDC", big.NewInt(1000)); err != nil {
		t.Fatalf("withdraw under pause must succeed: %v", err)
	}
}

// reenteringReceipts calls back into the ledger from within the receipt burn
// that runs while a withdrawal is in flight.
type reenteringReceipts struct {
	ledger    *Ledger
	owner     crypto.Address
	nestedErr error
}

func (r *reenteringReceipts) Register(token string) (uint64, error) { return 1, nil }

func (r *reenteringReceipts) Mint(owner []byte, id uint64, amount *big.Int) error { return nil }

func (r *reenteringReceipts) Burn(owner []byte, id uint64, amount *big.Int) error {
	r.nestedErr = r.ledger.Withdraw(r.owner, r.owner, "USDC", big.NewInt(1))
	return nil
}

func TestWithdrawRejectsNestedCall(t *testing.T) {
	state := newMockState()
	l := newTestLedger(state)
	owner := testAddr(0x01)
	receipts := &reenteringReceipts{ledger: l, owner: owner}
	l.SetReceiptLedger(receipts)

	if _, _, err := l.Deposit(owner, "USDC", big.NewInt(1000)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := l.Withdraw(owner, owner, "USDC", big.NewInt(400)); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if !errors.Is(receipts.nestedErr, nativecommon.ErrReentrancy) {
		t.Fatalf("nested withdraw: got %v, want ErrReentrancy", receipts.nestedErr)
	}
	bal, _ := l.BalanceOf(owner, "USDC")
	if bal.Int64() != 600 {
		t.Fatalf("balance = %s, want a single debit leaving 600", bal)
	}
}

func TestRefundModuleOnly(t *testing.T) {
	state := newMockState()
	l := newTestLedger(state)
	owner := testAddr(0x01)
	module := testAddr(0xAA)
	state.modules[module.String()] = true

	if err := l.Refund(owner, owner, "USDC", big.NewInt(100)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("owner refund: got %v, want ErrUnauthorized", err)
	}
	if err := l.Refund(module, owner, "USDC", big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero refund: got %v", err)
	}
	if err := l.Refund(module, owner, "USDC", big.NewInt(100)); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	bal, _ := l.BalanceOf(owner, "USDC")
	if bal.Int64() != 100 {
		t.Fatalf("balance = %s, want 100", bal)
	}
}

func TestRefundSkipsFeeSplit(t *testing.T) {
	state := newMockState()
	state.feeBps = 100
	state.treasury = testAddr(0xEE)
	state.hasTreas = true
	l := newTestLedger(state)
	owner := testAddr(0x01)
	module := testAddr(0xAA)
	state.modules[module.String()] = true

	if _, _, err := l.Deposit(owner, "USDC", big.NewInt(10_000)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := l.Withdraw(module, owner, "USDC", big.NewInt(500)); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if err := l.Refund(module, owner, "USDC", big.NewInt(500)); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	bal, _ := l.BalanceOf(owner, "USDC")
	if bal.Int64() != 9_900 {
		t.Fatalf("balance = %s, want the full net 9900 restored", bal)
	}
	treasuryBal, _ := l.BalanceOf(state.treasury, "USDC")
	if treasuryBal.Int64() != 100 {
		t.Fatalf("treasury = %s, want only the deposit fee 100", treasuryBal)
	}
}

func TestForfeitModuleOnly(t *testing.T) {
	state := newMockState()
	state.treasury = testAddr(0xEE)
	state.hasTreas = true
	l := newTestLedger(state)
	module := testAddr(0xAA)
	state.modules[module.String()] = true

	if err := l.Forfeit(testAddr(0x01), "USDC", big.NewInt(50)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-module forfeit: got %v", err)
	}
	if err := l.Forfeit(module, "USDC", big.NewInt(50)); err != nil {
		t.Fatalf("Forfeit: %v", err)
	}
	treasuryBal, _ := l.BalanceOf(state.treasury, "USDC")
	if treasuryBal.Int64() != 50 {
		t.Fatalf("treasury balance = %s, want 50", treasuryBal)
	}
}
