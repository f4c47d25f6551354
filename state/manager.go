package state

import (
	"encoding/binary"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"nestegg/crypto"
	"nestegg/native/daily"
	"nestegg/native/dca"
	"nestegg/native/ledger"
	"nestegg/native/strategy"
	"nestegg/storage"
)

var (
	strategyPrefix    = []byte("nestegg/strategy/")
	balancePrefix     = []byte("nestegg/balance/")
	treasuryAddrKey   = []byte("nestegg/treasury/address")
	treasuryFeeKey    = []byte("nestegg/treasury/feeBps")
	modulePrefix      = []byte("nestegg/module/")
	receiptPrefix     = []byte("nestegg/receipt/")
	dcaSettingsPrefix = []byte("nestegg/dca/settings/")
	dcaPolicyPrefix   = []byte("nestegg/dca/policy/")
	dcaQueueLenPrefix = []byte("nestegg/dca/queue/len/")
	dcaQueuePrefix    = []byte("nestegg/dca/queue/entry/")
	dcaCyclePrefix    = []byte("nestegg/dca/cycle/")
	dailyPrefix       = []byte("nestegg/daily/config/")
	dailyIndexPrefix  = []byte("nestegg/daily/index/")
	pausePrefix       = []byte("nestegg/pause/")
)

func kvKey(parts ...[]byte) []byte {
	size := 0
	for _, p := range parts {
		size += len(p)
	}
	buf := make([]byte, 0, size)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return ethcrypto.Keccak256(buf)
}

func indexBytes(index int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(index))
	return buf
}

// Manager persists every module's records over a key-value database using
// RLP-encoded stored records. It is the single implementation behind the
// narrow state interfaces each engine declares.
type Manager struct {
	mu sync.RWMutex
	db storage.Database
}

// NewManager wraps the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func (m *Manager) get(key []byte, out interface{}) (bool, error) {
	data, ok, err := m.db.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) put(key []byte, in interface{}) error {
	encoded, err := rlp.EncodeToBytes(in)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// --- strategy records ---

type storedStrategyConfig struct {
	PercentageBps    uint32
	AutoIncrementBps uint32
	MaxPercentageBps uint32
	RoundUp          bool
	TokenType        uint8
	SpecificToken    string
	EnableDCA        bool
	DCATargetToken   string
}

// StrategyConfig returns the stored savings strategy for the address.
func (m *Manager) StrategyConfig(addr crypto.Address) (*strategy.UserStrategyConfig, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := new(storedStrategyConfig)
	ok, err := m.get(kvKey(strategyPrefix, addr.Bytes()), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &strategy.UserStrategyConfig{
		PercentageBps:    stored.PercentageBps,
		AutoIncrementBps: stored.AutoIncrementBps,
		MaxPercentageBps: stored.MaxPercentageBps,
		RoundUp:          stored.RoundUp,
		TokenType:        strategy.TokenType(stored.TokenType),
		SpecificToken:    stored.SpecificToken,
		EnableDCA:        stored.EnableDCA,
		DCATargetToken:   stored.DCATargetToken,
	}, true, nil
}

// PutStrategyConfig stores the savings strategy for the address.
func (m *Manager) PutStrategyConfig(addr crypto.Address, cfg *strategy.UserStrategyConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(kvKey(strategyPrefix, addr.Bytes()), &storedStrategyConfig{
		PercentageBps:    cfg.PercentageBps,
		AutoIncrementBps: cfg.AutoIncrementBps,
		MaxPercentageBps: cfg.MaxPercentageBps,
		RoundUp:          cfg.RoundUp,
		TokenType:        uint8(cfg.TokenType),
		SpecificToken:    cfg.SpecificToken,
		EnableDCA:        cfg.EnableDCA,
		DCATargetToken:   cfg.DCATargetToken,
	})
}

// --- savings balances and treasury ---

// SavingsBalance returns the savings balance for (owner, token), zero when
// absent.
func (m *Manager) SavingsBalance(owner crypto.Address, token string) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	amount := new(big.Int)
	ok, err := m.get(kvKey(balancePrefix, owner.Bytes(), []byte(token)), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// SetSavingsBalance stores the savings balance for (owner, token).
func (m *Manager) SetSavingsBalance(owner crypto.Address, token string, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if amount == nil {
		amount = big.NewInt(0)
	}
	return m.put(kvKey(balancePrefix, owner.Bytes(), []byte(token)), amount)
}

// TreasuryAddress returns the configured fee sink, reporting absence when no
// treasury has been set.
func (m *Manager) TreasuryAddress() (crypto.Address, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var raw []byte
	ok, err := m.get(kvKey(treasuryAddrKey), &raw)
	if err != nil || !ok {
		return crypto.Address{}, false, err
	}
	if len(raw) != 20 {
		return crypto.Address{}, false, nil
	}
	return crypto.NewAddress(crypto.SavePrefix, raw), true, nil
}

// SetTreasuryAddress stores the fee sink address.
func (m *Manager) SetTreasuryAddress(addr crypto.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(kvKey(treasuryAddrKey), addr.Bytes())
}

// TreasuryFeeBps returns the treasury fee rate, zero when unset.
func (m *Manager) TreasuryFeeBps() (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var bps uint32
	if _, err := m.get(kvKey(treasuryFeeKey), &bps); err != nil {
		return 0, err
	}
	return bps, nil
}

// SetTreasuryFeeBps stores the treasury fee rate, rejecting rates above the
// ledger ceiling.
func (m *Manager) SetTreasuryFeeBps(bps uint32) error {
	if bps > ledger.MaxTreasuryFeeBps {
		return ledger.ErrFeeAboveCeiling
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(kvKey(treasuryFeeKey), bps)
}

// ModuleAuthorized reports whether the address is a registered module allowed
// to move third-party savings.
func (m *Manager) ModuleAuthorized(addr crypto.Address) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var authorized bool
	ok, err := m.get(kvKey(modulePrefix, addr.Bytes()), &authorized)
	if err != nil || !ok {
		return false, err
	}
	return authorized, nil
}

// SetModuleAuthorized registers or revokes a module address.
func (m *Manager) SetModuleAuthorized(addr crypto.Address, authorized bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(kvKey(modulePrefix, addr.Bytes()), authorized)
}

// ReceiptTokenID returns the receipt series registered for the token.
func (m *Manager) ReceiptTokenID(token string) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var id uint64
	ok, err := m.get(kvKey(receiptPrefix, []byte(token)), &id)
	if err != nil || !ok {
		return 0, false, err
	}
	return id, true, nil
}

// SetReceiptTokenID stores the receipt series for the token.
func (m *Manager) SetReceiptTokenID(token string, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(kvKey(receiptPrefix, []byte(token)), id)
}

// --- DCA records ---

type storedDCASettings struct {
	Enabled        bool
	TargetToken    string
	MinAmount      *big.Int
	MaxSlippageBps uint32
}

type storedTickStrategy struct {
	TickDelta          uint64
	TickExpirySecs     uint64
	OnlyImprovePrice   bool
	MinTickImprovement uint64
	DynamicSizing      bool
	CustomSlippageBps  uint32
}

type storedQueueEntry struct {
	FromToken         string
	ToToken           string
	Amount            *big.Int
	ExecutionTick     uint64
	Deadline          uint64
	Executed          bool
	CustomSlippageBps uint32
}

type storedCycleMarker struct {
	Tick uint64
	At   uint64
}

// DCASettings returns the stored settings record for the address.
func (m *Manager) DCASettings(addr crypto.Address) (*dca.Settings, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := new(storedDCASettings)
	ok, err := m.get(kvKey(dcaSettingsPrefix, addr.Bytes()), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	settings := &dca.Settings{
		Enabled:        stored.Enabled,
		TargetToken:    stored.TargetToken,
		MaxSlippageBps: stored.MaxSlippageBps,
	}
	if stored.MinAmount != nil && stored.MinAmount.Sign() > 0 {
		settings.MinAmount = stored.MinAmount
	}
	return settings, true, nil
}

// PutDCASettings stores the settings record for the address.
func (m *Manager) PutDCASettings(addr crypto.Address, settings *dca.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(kvKey(dcaSettingsPrefix, addr.Bytes()), &storedDCASettings{
		Enabled:        settings.Enabled,
		TargetToken:    settings.TargetToken,
		MinAmount:      settings.MinAmount,
		MaxSlippageBps: settings.MaxSlippageBps,
	})
}

// DCATickStrategy returns the stored trigger policy for the address.
func (m *Manager) DCATickStrategy(addr crypto.Address) (*dca.TickStrategy, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := new(storedTickStrategy)
	ok, err := m.get(kvKey(dcaPolicyPrefix, addr.Bytes()), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &dca.TickStrategy{
		TickDelta:          int64(stored.TickDelta),
		TickExpirySecs:     int64(stored.TickExpirySecs),
		OnlyImprovePrice:   stored.OnlyImprovePrice,
		MinTickImprovement: int64(stored.MinTickImprovement),
		DynamicSizing:      stored.DynamicSizing,
		CustomSlippageBps:  stored.CustomSlippageBps,
	}, true, nil
}

// PutDCATickStrategy stores the trigger policy for the address.
func (m *Manager) PutDCATickStrategy(addr crypto.Address, policy *dca.TickStrategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(kvKey(dcaPolicyPrefix, addr.Bytes()), &storedTickStrategy{
		TickDelta:          uint64(policy.TickDelta),
		TickExpirySecs:     uint64(policy.TickExpirySecs),
		OnlyImprovePrice:   policy.OnlyImprovePrice,
		MinTickImprovement: uint64(policy.MinTickImprovement),
		DynamicSizing:      policy.DynamicSizing,
		CustomSlippageBps:  policy.CustomSlippageBps,
	})
}

// DCAQueueLen returns the number of orders ever appended for the address. The
// queue is append-only, so the length doubles as the next index.
func (m *Manager) DCAQueueLen(addr crypto.Address) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queueLen(addr)
}

func (m *Manager) queueLen(addr crypto.Address) (int, error) {
	var length uint64
	if _, err := m.get(kvKey(dcaQueueLenPrefix, addr.Bytes()), &length); err != nil {
		return 0, err
	}
	return int(length), nil
}

// DCAQueueEntry returns the order at the supplied index.
func (m *Manager) DCAQueueEntry(addr crypto.Address, index int) (*dca.QueueEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queueEntry(addr, index)
}

func (m *Manager) queueEntry(addr crypto.Address, index int) (*dca.QueueEntry, bool, error) {
	if index < 0 {
		return nil, false, nil
	}
	stored := new(storedQueueEntry)
	ok, err := m.get(kvKey(dcaQueuePrefix, addr.Bytes(), indexBytes(index)), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	entry := &dca.QueueEntry{
		FromToken:         stored.FromToken,
		ToToken:           stored.ToToken,
		ExecutionTick:     int64(stored.ExecutionTick),
		Deadline:          int64(stored.Deadline),
		Executed:          stored.Executed,
		CustomSlippageBps: stored.CustomSlippageBps,
	}
	if stored.Amount != nil {
		entry.Amount = stored.Amount
	} else {
		entry.Amount = big.NewInt(0)
	}
	return entry, true, nil
}

// AppendDCAQueueEntry appends an order and returns its index.
func (m *Manager) AppendDCAQueueEntry(addr crypto.Address, entry *dca.QueueEntry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	length, err := m.queueLen(addr)
	if err != nil {
		return 0, err
	}
	if err := m.writeQueueEntry(addr, length, entry); err != nil {
		return 0, err
	}
	if err := m.put(kvKey(dcaQueueLenPrefix, addr.Bytes()), uint64(length+1)); err != nil {
		return 0, err
	}
	return length, nil
}

// UpdateDCAQueueEntry overwrites the order at an existing index.
func (m *Manager) UpdateDCAQueueEntry(addr crypto.Address, index int, entry *dca.QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	length, err := m.queueLen(addr)
	if err != nil {
		return err
	}
	if index < 0 || index >= length {
		return dca.ErrEntryNotFound
	}
	return m.writeQueueEntry(addr, index, entry)
}

func (m *Manager) writeQueueEntry(addr crypto.Address, index int, entry *dca.QueueEntry) error {
	return m.put(kvKey(dcaQueuePrefix, addr.Bytes(), indexBytes(index)), &storedQueueEntry{
		FromToken:         entry.FromToken,
		ToToken:           entry.ToToken,
		Amount:            entry.Amount,
		ExecutionTick:     uint64(entry.ExecutionTick),
		Deadline:          uint64(entry.Deadline),
		Executed:          entry.Executed,
		CustomSlippageBps: entry.CustomSlippageBps,
	})
}

// DCACycleMarker returns the last-cycle marker for the address.
func (m *Manager) DCACycleMarker(addr crypto.Address) (*dca.CycleMarker, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := new(storedCycleMarker)
	ok, err := m.get(kvKey(dcaCyclePrefix, addr.Bytes()), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &dca.CycleMarker{Tick: int64(stored.Tick), At: int64(stored.At)}, true, nil
}

// PutDCACycleMarker stores the last-cycle marker for the address.
func (m *Manager) PutDCACycleMarker(addr crypto.Address, marker *dca.CycleMarker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(kvKey(dcaCyclePrefix, addr.Bytes()), &storedCycleMarker{
		Tick: uint64(marker.Tick),
		At:   uint64(marker.At),
	})
}

// --- daily savings records ---

type storedDailyConfig struct {
	Token         string
	Enabled       bool
	DailyAmount   *big.Int
	GoalAmount    *big.Int
	CurrentAmount *big.Int
	PenaltyBps    uint32
	StartTime     uint64
	LastExecution uint64
	EndTime       uint64
	Route         uint8
}

// DailyConfig returns the stored schedule for (addr, token).
func (m *Manager) DailyConfig(addr crypto.Address, token string) (*daily.Config, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := new(storedDailyConfig)
	ok, err := m.get(kvKey(dailyPrefix, addr.Bytes(), []byte(token)), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	cfg := &daily.Config{
		Token:         stored.Token,
		Enabled:       stored.Enabled,
		DailyAmount:   stored.DailyAmount,
		GoalAmount:    stored.GoalAmount,
		CurrentAmount: stored.CurrentAmount,
		PenaltyBps:    stored.PenaltyBps,
		StartTime:     int64(stored.StartTime),
		LastExecution: int64(stored.LastExecution),
		EndTime:       int64(stored.EndTime),
		Route:         daily.YieldRoute(stored.Route),
	}
	if cfg.DailyAmount == nil {
		cfg.DailyAmount = big.NewInt(0)
	}
	if cfg.GoalAmount == nil {
		cfg.GoalAmount = big.NewInt(0)
	}
	if cfg.CurrentAmount == nil {
		cfg.CurrentAmount = big.NewInt(0)
	}
	return cfg, true, nil
}

// PutDailyConfig stores the schedule keyed by its own token symbol.
func (m *Manager) PutDailyConfig(addr crypto.Address, cfg *daily.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(kvKey(dailyPrefix, addr.Bytes(), []byte(cfg.Token)), &storedDailyConfig{
		Token:         cfg.Token,
		Enabled:       cfg.Enabled,
		DailyAmount:   cfg.DailyAmount,
		GoalAmount:    cfg.GoalAmount,
		CurrentAmount: cfg.CurrentAmount,
		PenaltyBps:    cfg.PenaltyBps,
		StartTime:     uint64(cfg.StartTime),
		LastExecution: uint64(cfg.LastExecution),
		EndTime:       uint64(cfg.EndTime),
		Route:         uint8(cfg.Route),
	})
}

// DailyTokenIndex returns every token the address has ever configured a
// schedule for.
func (m *Manager) DailyTokenIndex(addr crypto.Address) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dailyTokens(addr)
}

func (m *Manager) dailyTokens(addr crypto.Address) ([]string, error) {
	var tokens []string
	if _, err := m.get(kvKey(dailyIndexPrefix, addr.Bytes()), &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// AppendDailyToken records the token in the address index, ignoring
// duplicates.
func (m *Manager) AppendDailyToken(addr crypto.Address, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tokens, err := m.dailyTokens(addr)
	if err != nil {
		return err
	}
	for _, existing := range tokens {
		if existing == token {
			return nil
		}
	}
	tokens = append(tokens, token)
	return m.put(kvKey(dailyIndexPrefix, addr.Bytes()), tokens)
}

// --- pause switches ---

// IsPaused reports whether the module's mutating entry points are halted.
// Read errors degrade to not-paused so a storage fault cannot freeze trades.
func (m *Manager) IsPaused(module string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var paused bool
	ok, err := m.get(kvKey(pausePrefix, []byte(module)), &paused)
	if err != nil || !ok {
		return false
	}
	return paused
}

// SetPaused toggles the pause switch for the module.
func (m *Manager) SetPaused(module string, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(kvKey(pausePrefix, []byte(module)), paused)
}
