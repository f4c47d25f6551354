package dca

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"nestegg/crypto"
	nativecommon "nestegg/native/common"
	"nestegg/native/ledger"
)

type mockState struct {
	settings map[string]*Settings
	policies map[string]*TickStrategy
	queues   map[string][]*QueueEntry
	markers  map[string]*CycleMarker

	balances map[string]*big.Int
	modules  map[string]bool
}

func newMockState() *mockState {
	return &mockState{
		settings: make(map[string]*Settings),
		policies: make(map[string]*TickStrategy),
		queues:   make(map[string][]*QueueEntry),
		markers:  make(map[string]*CycleMarker),
		balances: make(map[string]*big.Int),
		modules:  make(map[string]bool),
	}
}

func (m *mockState) DCASettings(addr crypto.Address) (*Settings, bool, error) {
	s, ok := m.settings[addr.String()]
	return s, ok, nil
}

func (m *mockState) PutDCASettings(addr crypto.Address, settings *Settings) error {
	m.settings[addr.String()] = settings
	return nil
}

func (m *mockState) DCATickStrategy(addr crypto.Address) (*TickStrategy, bool, error) {
	p, ok := m.policies[addr.String()]
	return p, ok, nil
}

func (m *mockState) PutDCATickStrategy(addr crypto.Address, policy *TickStrategy) error {
	m.policies[addr.String()] = policy
	return nil
}

func (m *mockState) DCAQueueLen(addr crypto.Address) (int, error) {
	return len(m.queues[addr.String()]), nil
}

func (m *mockState) DCAQueueEntry(addr crypto.Address, index int) (*QueueEntry, bool, error) {
	queue := m.queues[addr.String()]
	if index < 0 || index >= len(queue) {
		return nil, false, nil
	}
	return queue[index].Clone(), true, nil
}

func (m *mockState) AppendDCAQueueEntry(addr crypto.Address, entry *QueueEntry) (int, error) {
	m.queues[addr.String()] = append(m.queues[addr.String()], entry.Clone())
	return len(m.queues[addr.String()]) - 1, nil
}

func (m *mockState) UpdateDCAQueueEntry(addr crypto.Address, index int, entry *QueueEntry) error {
	m.queues[addr.String()][index] = entry.Clone()
	return nil
}

func (m *mockState) DCACycleMarker(addr crypto.Address) (*CycleMarker, bool, error) {
	marker, ok := m.markers[addr.String()]
	return marker, ok, nil
}

func (m *mockState) PutDCACycleMarker(addr crypto.Address, marker *CycleMarker) error {
	m.markers[addr.String()] = marker
	return nil
}

// ledger state
func (m *mockState) SavingsBalance(owner crypto.Address, token string) (*big.Int, error) {
	if bal, ok := m.balances[owner.String()+"/"+token]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) SetSavingsBalance(owner crypto.Address, token string, amount *big.Int) error {
	m.balances[owner.String()+"/"+token] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) TreasuryAddress() (crypto.Address, bool, error) {
	return crypto.Address{}, false, nil
}

func (m *mockState) TreasuryFeeBps() (uint32, error) { return 0, nil }

func (m *mockState) ModuleAuthorized(addr crypto.Address) (bool, error) {
	return m.modules[addr.String()], nil
}

func (m *mockState) ReceiptTokenID(token string) (uint64, bool, error) { return 0, false, nil }

func (m *mockState) SetReceiptTokenID(token string, id uint64) error { return nil }

type mockObserver struct {
	tick int64
	err  error
}

func (m *mockObserver) CurrentTick(pairKey [32]byte) (int64, error) {
	return m.tick, m.err
}

type mockExecutor struct {
	proceeds *big.Int
	err      error
	calls    []executedSwap
}

type executedSwap struct {
	from     string
	to       string
	amountIn *big.Int
	slippage uint32
}

func (m *mockExecutor) ExecuteSwap(pairKey [32]byte, fromToken, toToken string, amountIn *big.Int, maxSlippageBps uint32) (*big.Int, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.calls = append(m.calls, executedSwap{from: fromToken, to: toToken, amountIn: new(big.Int).Set(amountIn), slippage: maxSlippageBps})
	return new(big.Int).Set(m.proceeds), nil
}

func testAddr(b byte) crypto.Address {
	return crypto.NewAddress(crypto.SavePrefix, bytes.Repeat([]byte{b}, 20))
}

func newTestEngine(state *mockState) (*Engine, crypto.Address) {
	moduleAddr := testAddr(0xAA)
	state.modules[moduleAddr.String()] = true
	vault := ledger.NewLedger()
	vault.SetState(state)
	engine := NewEngine(moduleAddr, vault)
	engine.SetState(state)
	engine.SetNowFunc(func() int64 { return 1_000_000 })
	return engine, moduleAddr
}

func TestQueueRequiresEnabledSettings(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	user := testAddr(0x01)

	if _, err := engine.queue(user, "USDC", "BTC", big.NewInt(100), 0); !errors.Is(err, ErrNotEnabled) {
		t.Fatalf("queue without settings: got %v", err)
	}
	if err := engine.Enable(user, "BTC", big.NewInt(500), 100); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if _, err := engine.queue(user, "USDC", "BTC", big.NewInt(100), 0); !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("below minimum: got %v", err)
	}
	index, err := engine.queue(user, "USDC", "BTC", big.NewInt(500), 42)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if index != 0 {
		t.Fatalf("index = %d, want 0", index)
	}
	entry, err := engine.QueueEntryAt(user, 0)
	if err != nil {
		t.Fatalf("QueueEntryAt: %v", err)
	}
	if entry.ExecutionTick != 42 {
		t.Fatalf("execution tick = %d, want 42", entry.ExecutionTick)
	}
	if entry.Deadline != 1_000_000+defaultTickExpirySecs {
		t.Fatalf("deadline = %d", entry.Deadline)
	}
	if entry.CustomSlippageBps != 100 {
		t.Fatalf("slippage = %d, want settings default 100", entry.CustomSlippageBps)
	}
}

func TestQueueHonoursPolicyOverrides(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	user := testAddr(0x01)
	if err := engine.Enable(user, "BTC", nil, 100); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if err := engine.SetTickStrategy(user, &TickStrategy{TickExpirySecs: 3600, CustomSlippageBps: 50}); err != nil {
		t.Fatalf("SetTickStrategy: %v", err)
	}
	if _, err := engine.queue(user, "USDC", "BTC", big.NewInt(500), 0); err != nil {
		t.Fatalf("queue: %v", err)
	}
	entry, _ := engine.QueueEntryAt(user, 0)
	if entry.Deadline != 1_000_000+3600 {
		t.Fatalf("deadline = %d, want policy expiry applied", entry.Deadline)
	}
	if entry.CustomSlippageBps != 50 {
		t.Fatalf("slippage = %d, want policy override 50", entry.CustomSlippageBps)
	}
}

func TestDisableKeepsQueuedOrders(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	user := testAddr(0x01)
	if err := engine.Enable(user, "BTC", nil, 100); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if _, err := engine.queue(user, "USDC", "BTC", big.NewInt(500), 0); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := engine.Disable(user); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	length, _ := engine.QueueLen(user)
	if length != 1 {
		t.Fatalf("queue length after disable = %d, want 1", length)
	}
	if _, err := engine.queue(user, "USDC", "BTC", big.NewInt(500), 0); !errors.Is(err, ErrNotEnabled) {
		t.Fatalf("queue after disable: got %v", err)
	}
}

func TestExecuteQueuedFullCycle(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	user := testAddr(0x01)
	observer := &mockObserver{tick: 150}
	executor := &mockExecutor{proceeds: big.NewInt(900)}
	engine.SetObserver(observer)
	engine.SetExecutor(executor)

	state.balances[user.String()+"/USDC"] = big.NewInt(10_000)
	if err := engine.Enable(user, "BTC", nil, 100); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if err := engine.SetTickStrategy(user, &TickStrategy{TickDelta: 10}); err != nil {
		t.Fatalf("SetTickStrategy: %v", err)
	}
	if _, err := engine.queue(user, "USDC", "BTC", big.NewInt(1000), 100); err != nil {
		t.Fatalf("queue: %v", err)
	}

	proceeds, err := engine.ExecuteQueued(user, 0)
	if err != nil {
		t.Fatalf("ExecuteQueued: %v", err)
	}
	if proceeds.Int64() != 900 {
		t.Fatalf("proceeds = %s, want 900", proceeds)
	}
	usdcBal := state.balances[user.String()+"/USDC"]
	if usdcBal.Int64() != 9_000 {
		t.Fatalf("source balance = %s, want 9000", usdcBal)
	}
	btcBal := state.balances[user.String()+"/BTC"]
	if btcBal.Int64() != 900 {
		t.Fatalf("target balance = %s, want 900", btcBal)
	}
	entry, _ := engine.QueueEntryAt(user, 0)
	if !entry.Executed {
		t.Fatalf("entry not marked executed")
	}
	if _, err := engine.ExecuteQueued(user, 0); !errors.Is(err, ErrAlreadyExecuted) {
		t.Fatalf("re-execute: got %v", err)
	}
	marker, ok, _ := state.DCACycleMarker(user)
	if !ok || marker.Tick != 150 {
		t.Fatalf("cycle marker = %+v", marker)
	}
}

func TestExecuteQueuedNotTriggered(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	user := testAddr(0x01)
	engine.SetObserver(&mockObserver{tick: 105})
	engine.SetExecutor(&mockExecutor{proceeds: big.NewInt(1)})

	if err := engine.Enable(user, "BTC", nil, 100); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if err := engine.SetTickStrategy(user, &TickStrategy{TickDelta: 10}); err != nil {
		t.Fatalf("SetTickStrategy: %v", err)
	}
	if _, err := engine.queue(user, "USDC", "BTC", big.NewInt(1000), 100); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if _, err := engine.ExecuteQueued(user, 0); !errors.Is(err, ErrNotTriggered) {
		t.Fatalf("got %v, want ErrNotTriggered", err)
	}
}

func TestExecuteQueuedDynamicSizing(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	user := testAddr(0x01)
	// BTC < USDC lexicographically, so for USDC -> BTC a rising tick is
	// adverse and a falling tick favorable... from < to is false, so
	// favorable movement is downward.
	engine.SetObserver(&mockObserver{tick: 70})
	executor := &mockExecutor{proceeds: big.NewInt(1)}
	engine.SetExecutor(executor)

	state.balances[user.String()+"/USDC"] = big.NewInt(100_000)
	if err := engine.Enable(user, "BTC", nil, 100); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if err := engine.SetTickStrategy(user, &TickStrategy{TickDelta: 10, DynamicSizing: true}); err != nil {
		t.Fatalf("SetTickStrategy: %v", err)
	}
	if _, err := engine.queue(user, "USDC", "BTC", big.NewInt(1000), 100); err != nil {
		t.Fatalf("queue: %v", err)
	}

	if _, err := engine.ExecuteQueued(user, 0); err != nil {
		t.Fatalf("ExecuteQueued: %v", err)
	}
	// 30 favorable ticks at tickDelta 10 triples the base order.
	if executor.calls[0].amountIn.Int64() != 3000 {
		t.Fatalf("sized amount = %s, want 3000", executor.calls[0].amountIn)
	}
}

func TestExecuteQueuedDynamicSizingClamped(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	user := testAddr(0x01)
	engine.SetObserver(&mockObserver{tick: 0})
	executor := &mockExecutor{proceeds: big.NewInt(1)}
	engine.SetExecutor(executor)

	state.balances[user.String()+"/USDC"] = big.NewInt(100_000)
	if err := engine.Enable(user, "BTC", nil, 100); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if err := engine.SetTickStrategy(user, &TickStrategy{TickDelta: 10, DynamicSizing: true}); err != nil {
		t.Fatalf("SetTickStrategy: %v", err)
	}
	if _, err := engine.queue(user, "USDC", "BTC", big.NewInt(1000), 1000); err != nil {
		t.Fatalf("queue: %v", err)
	}

	if _, err := engine.ExecuteQueued(user, 0); err != nil {
		t.Fatalf("ExecuteQueued: %v", err)
	}
	// 1000 favorable ticks would be a 100x multiple; the clamp holds it at 4x.
	if executor.calls[0].amountIn.Int64() != 4000 {
		t.Fatalf("sized amount = %s, want clamp at 4000", executor.calls[0].amountIn)
	}
}

func TestExecuteQueuedCapsAtBalance(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	user := testAddr(0x01)
	engine.SetObserver(&mockObserver{tick: 150})
	executor := &mockExecutor{proceeds: big.NewInt(1)}
	engine.SetExecutor(executor)

	state.balances[user.String()+"/USDC"] = big.NewInt(600)
	if err := engine.Enable(user, "BTC", nil, 100); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if err := engine.SetTickStrategy(user, &TickStrategy{TickDelta: 10}); err != nil {
		t.Fatalf("SetTickStrategy: %v", err)
	}
	if _, err := engine.queue(user, "USDC", "BTC", big.NewInt(1000), 100); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if _, err := engine.ExecuteQueued(user, 0); err != nil {
		t.Fatalf("ExecuteQueued: %v", err)
	}
	if executor.calls[0].amountIn.Int64() != 600 {
		t.Fatalf("amount = %s, want balance cap 600", executor.calls[0].amountIn)
	}
}

func TestExecuteQueuedSwapFailureLeavesBalance(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	user := testAddr(0x01)
	engine.SetObserver(&mockObserver{tick: 150})
	engine.SetExecutor(&mockExecutor{err: errors.New("pool offline")})

	state.balances[user.String()+"/USDC"] = big.NewInt(10_000)
	if err := engine.Enable(user, "BTC", nil, 100); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if err := engine.SetTickStrategy(user, &TickStrategy{TickDelta: 10}); err != nil {
		t.Fatalf("SetTickStrategy: %v", err)
	}
	if _, err := engine.queue(user, "USDC", "BTC", big.NewInt(1000), 100); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if _, err := engine.ExecuteQueued(user, 0); err == nil {
		t.Fatalf("swap failure must surface")
	}
	if state.balances[user.String()+"/USDC"].Int64() != 10_000 {
		t.Fatalf("balance must be untouched on swap failure")
	}
	entry, _ := engine.QueueEntryAt(user, 0)
	if entry.Executed {
		t.Fatalf("entry must stay pending on swap failure")
	}
}

// reenteringExecutor re-enters the engine from within the swap, the window
// where control sits outside the module while an order is in flight.
type reenteringExecutor struct {
	engine    *Engine
	user      crypto.Address
	proceeds  *big.Int
	nestedErr error
	midEntry  *QueueEntry
}

func (x *reenteringExecutor) ExecuteSwap(pairKey [32]byte, fromToken, toToken string, amountIn *big.Int, maxSlippageBps uint32) (*big.Int, error) {
	x.midEntry, _ = x.engine.QueueEntryAt(x.user, 0)
	_, x.nestedErr = x.engine.ExecuteQueued(x.user, 0)
	return new(big.Int).Set(x.proceeds), nil
}

func TestExecuteQueuedRejectsNestedExecution(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	user := testAddr(0x01)
	engine.SetObserver(&mockObserver{tick: 150})
	executor := &reenteringExecutor{engine: engine, user: user, proceeds: big.NewInt(900)}
	engine.SetExecutor(executor)

	state.balances[user.String()+"/USDC"] = big.NewInt(10_000)
	if err := engine.Enable(user, "BTC", nil, 100); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if err := engine.SetTickStrategy(user, &TickStrategy{TickDelta: 10}); err != nil {
		t.Fatalf("SetTickStrategy: %v", err)
	}
	if _, err := engine.queue(user, "USDC", "BTC", big.NewInt(1000), 100); err != nil {
		t.Fatalf("queue: %v", err)
	}

	proceeds, err := engine.ExecuteQueued(user, 0)
	if err != nil {
		t.Fatalf("ExecuteQueued: %v", err)
	}
	if proceeds.Int64() != 900 {
		t.Fatalf("proceeds = %s, want 900", proceeds)
	}
	if !errors.Is(executor.nestedErr, nativecommon.ErrReentrancy) {
		t.Fatalf("nested call: got %v, want ErrReentrancy", executor.nestedErr)
	}
	if executor.midEntry == nil || !executor.midEntry.Executed {
		t.Fatalf("entry must be marked executed before the swap runs")
	}
	if got := state.balances[user.String()+"/USDC"].Int64(); got != 9_000 {
		t.Fatalf("source balance = %d, want a single debit leaving 9000", got)
	}
	if got := state.balances[user.String()+"/BTC"].Int64(); got != 900 {
		t.Fatalf("target balance = %d, want a single credit of 900", got)
	}
}

func TestShouldExecuteCycleFirstRun(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	user := testAddr(0x01)
	engine.SetObserver(&mockObserver{tick: 77})
	if err := engine.Enable(user, "BTC", nil, 100); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	fire, tick, err := engine.ShouldExecuteCycle(user, [32]byte{})
	if err != nil {
		t.Fatalf("ShouldExecuteCycle: %v", err)
	}
	if !fire || tick != 77 {
		t.Fatalf("first cycle = (%v, %d), want (true, 77)", fire, tick)
	}
}
