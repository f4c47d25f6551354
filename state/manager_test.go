package state

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"nestegg/crypto"
	"nestegg/native/daily"
	"nestegg/native/dca"
	"nestegg/native/ledger"
	"nestegg/native/strategy"
	"nestegg/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func testAddr(b byte) crypto.Address {
	return crypto.NewAddress(crypto.SavePrefix, bytes.Repeat([]byte{b}, 20))
}

func TestStrategyConfigRoundTrip(t *testing.T) {
	m := newTestManager(t)
	addr := testAddr(0x01)

	_, ok, err := m.StrategyConfig(addr)
	require.NoError(t, err)
	require.False(t, ok)

	cfg := &strategy.UserStrategyConfig{
		PercentageBps:    1_000,
		AutoIncrementBps: 250,
		MaxPercentageBps: 2_000,
		RoundUp:          true,
		TokenType:        strategy.TokenTypeSpecific,
		SpecificToken:    "DAI",
		EnableDCA:        true,
		DCATargetToken:   "BTC",
	}
	require.NoError(t, m.PutStrategyConfig(addr, cfg))

	got, ok, err := m.StrategyConfig(addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, cfg, got)
}

func TestSavingsBalanceDefaultsToZero(t *testing.T) {
	m := newTestManager(t)
	addr := testAddr(0x01)

	bal, err := m.SavingsBalance(addr, "USDC")
	require.NoError(t, err)
	require.Zero(t, bal.Sign())

	require.NoError(t, m.SetSavingsBalance(addr, "USDC", big.NewInt(12_345)))
	bal, err = m.SavingsBalance(addr, "USDC")
	require.NoError(t, err)
	require.Equal(t, int64(12_345), bal.Int64())

	// Tokens are part of the key.
	other, err := m.SavingsBalance(addr, "ETH")
	require.NoError(t, err)
	require.Zero(t, other.Sign())
}

func TestTreasuryRecords(t *testing.T) {
	m := newTestManager(t)

	_, ok, err := m.TreasuryAddress()
	require.NoError(t, err)
	require.False(t, ok)

	treasury := testAddr(0xEE)
	require.NoError(t, m.SetTreasuryAddress(treasury))
	got, ok, err := m.TreasuryAddress()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, treasury.String(), got.String())

	bps, err := m.TreasuryFeeBps()
	require.NoError(t, err)
	require.Zero(t, bps)

	require.NoError(t, m.SetTreasuryFeeBps(ledger.MaxTreasuryFeeBps))
	bps, err = m.TreasuryFeeBps()
	require.NoError(t, err)
	require.Equal(t, ledger.MaxTreasuryFeeBps, bps)

	require.ErrorIs(t, m.SetTreasuryFeeBps(ledger.MaxTreasuryFeeBps+1), ledger.ErrFeeAboveCeiling)
}

func TestModuleAuthorization(t *testing.T) {
	m := newTestManager(t)
	module := testAddr(0xAA)

	ok, err := m.ModuleAuthorized(module)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.SetModuleAuthorized(module, true))
	ok, err = m.ModuleAuthorized(module)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, m.SetModuleAuthorized(module, false))
	ok, err = m.ModuleAuthorized(module)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReceiptTokenIDRoundTrip(t *testing.T) {
	m := newTestManager(t)

	_, ok, err := m.ReceiptTokenID("USDC")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.SetReceiptTokenID("USDC", 7))
	id, ok, err := m.ReceiptTokenID("USDC")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7), id)
}

func TestDCASettingsRoundTrip(t *testing.T) {
	m := newTestManager(t)
	addr := testAddr(0x02)

	settings := &dca.Settings{
		Enabled:        true,
		TargetToken:    "BTC",
		MinAmount:      big.NewInt(500),
		MaxSlippageBps: 100,
	}
	require.NoError(t, m.PutDCASettings(addr, settings))

	got, ok, err := m.DCASettings(addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, settings, got)
}

func TestDCASettingsWithoutMinimum(t *testing.T) {
	m := newTestManager(t)
	addr := testAddr(0x02)

	require.NoError(t, m.PutDCASettings(addr, &dca.Settings{Enabled: true, TargetToken: "BTC"}))
	got, ok, err := m.DCASettings(addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, got.MinAmount)
}

func TestDCATickStrategyRoundTrip(t *testing.T) {
	m := newTestManager(t)
	addr := testAddr(0x03)

	policy := &dca.TickStrategy{
		TickDelta:          25,
		TickExpirySecs:     3_600,
		OnlyImprovePrice:   true,
		MinTickImprovement: 5,
		DynamicSizing:      true,
		CustomSlippageBps:  75,
	}
	require.NoError(t, m.PutDCATickStrategy(addr, policy))

	got, ok, err := m.DCATickStrategy(addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, policy, got)
}

func TestDCAQueueAppendOnly(t *testing.T) {
	m := newTestManager(t)
	addr := testAddr(0x04)

	length, err := m.DCAQueueLen(addr)
	require.NoError(t, err)
	require.Zero(t, length)

	first := &dca.QueueEntry{
		FromToken:         "USDC",
		ToToken:           "BTC",
		Amount:            big.NewInt(1_000),
		ExecutionTick:     100,
		Deadline:          2_000_000,
		CustomSlippageBps: 50,
	}
	index, err := m.AppendDCAQueueEntry(addr, first)
	require.NoError(t, err)
	require.Zero(t, index)

	second := &dca.QueueEntry{FromToken: "ETH", ToToken: "BTC", Amount: big.NewInt(42), ExecutionTick: 101, Deadline: 2_000_100}
	index, err = m.AppendDCAQueueEntry(addr, second)
	require.NoError(t, err)
	require.Equal(t, 1, index)

	length, err = m.DCAQueueLen(addr)
	require.NoError(t, err)
	require.Equal(t, 2, length)

	got, ok, err := m.DCAQueueEntry(addr, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first, got)

	_, ok, err = m.DCAQueueEntry(addr, 2)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDCAQueueUpdateBounds(t *testing.T) {
	m := newTestManager(t)
	addr := testAddr(0x04)

	entry := &dca.QueueEntry{FromToken: "USDC", ToToken: "BTC", Amount: big.NewInt(100), ExecutionTick: 7, Deadline: 99}
	require.ErrorIs(t, m.UpdateDCAQueueEntry(addr, 0, entry), dca.ErrEntryNotFound)

	_, err := m.AppendDCAQueueEntry(addr, entry)
	require.NoError(t, err)

	executed := entry
	executed.Executed = true
	require.NoError(t, m.UpdateDCAQueueEntry(addr, 0, executed))

	got, ok, err := m.DCAQueueEntry(addr, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.Executed)

	require.ErrorIs(t, m.UpdateDCAQueueEntry(addr, 1, entry), dca.ErrEntryNotFound)
	require.ErrorIs(t, m.UpdateDCAQueueEntry(addr, -1, entry), dca.ErrEntryNotFound)
}

func TestDCACycleMarkerRoundTrip(t *testing.T) {
	m := newTestManager(t)
	addr := testAddr(0x05)

	_, ok, err := m.DCACycleMarker(addr)
	require.NoError(t, err)
	require.False(t, ok)

	marker := &dca.CycleMarker{Tick: 150, At: 1_000_000}
	require.NoError(t, m.PutDCACycleMarker(addr, marker))
	got, ok, err := m.DCACycleMarker(addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, marker, got)
}

func TestDailyConfigRoundTrip(t *testing.T) {
	m := newTestManager(t)
	addr := testAddr(0x06)

	cfg := &daily.Config{
		Token:         "USDC",
		Enabled:       true,
		DailyAmount:   big.NewInt(10),
		GoalAmount:    big.NewInt(100),
		CurrentAmount: big.NewInt(40),
		PenaltyBps:    500,
		StartTime:     1_000_000,
		LastExecution: 1_086_400,
		EndTime:       3_000_000,
		Route:         daily.YieldRouteExternal,
	}
	require.NoError(t, m.PutDailyConfig(addr, cfg))

	got, ok, err := m.DailyConfig(addr, "USDC")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, cfg, got)

	_, ok, err = m.DailyConfig(addr, "ETH")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDailyTokenIndexDeduplicates(t *testing.T) {
	m := newTestManager(t)
	addr := testAddr(0x06)

	tokens, err := m.DailyTokenIndex(addr)
	require.NoError(t, err)
	require.Empty(t, tokens)

	require.NoError(t, m.AppendDailyToken(addr, "USDC"))
	require.NoError(t, m.AppendDailyToken(addr, "ETH"))
	require.NoError(t, m.AppendDailyToken(addr, "USDC"))

	tokens, err = m.DailyTokenIndex(addr)
	require.NoError(t, err)
	require.Equal(t, []string{"USDC", "ETH"}, tokens)
}

func TestPauseSwitches(t *testing.T) {
	m := newTestManager(t)

	require.False(t, m.IsPaused("savings"))
	require.NoError(t, m.SetPaused("savings", true))
	require.True(t, m.IsPaused("savings"))
	require.False(t, m.IsPaused("dca"))
	require.NoError(t, m.SetPaused("savings", false))
	require.False(t, m.IsPaused("savings"))
}
