package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/wallet-aggregator/internal/errors"
	"github.com/wallet-aggregator/internal/models"
	"github.com/wallet-aggregator/internal/storage"
	"github.com/wallet-aggregator/internal/types"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// memWallets is an in-memory WalletStore
type memWallets struct {
	mu      sync.Mutex
	wallets []*models.Wallet
	listErr error
}

func (m *memWallets) Create(ctx context.Context, w *models.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.wallets {
		if existing.Address == w.Address && existing.ChainFamily == w.ChainFamily {
			return apperrors.NewInvalidParameterError("address", "wallet already exists")
		}
	}
	w.ID = fmt.Sprintf("w%d", len(m.wallets)+1)
	w.CreatedAt = time.Now()
	cp := *w
	m.wallets = append(m.wallets, &cp)
	return nil
}

func (m *memWallets) Get(ctx context.Context, id string) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		if w.ID == id {
			cp := *w
			return &cp, nil
		}
	}
	return nil, apperrors.NewNotFoundError("wallet", id)
}

func (m *memWallets) List(ctx context.Context, family types.ChainFamily) ([]*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.Wallet
	for _, w := range m.wallets {
		if family == "" || w.ChainFamily == family {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memWallets) Update(ctx context.Context, id string, upd models.WalletUpdate) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		if w.ID == id {
			if upd.Tag != nil {
				w.Tag = *upd.Tag
			}
			if upd.Visible != nil {
				w.Visible = *upd.Visible
			}
			cp := *w
			return &cp, nil
		}
	}
	return nil, apperrors.NewNotFoundError("wallet", id)
}

func (m *memWallets) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.wallets {
		if w.ID == id {
			m.wallets = append(m.wallets[:i], m.wallets[i+1:]...)
			return nil
		}
	}
	return apperrors.NewNotFoundError("wallet", id)
}

func (m *memWallets) add(id, tag string, family types.ChainFamily, visible bool) *models.Wallet {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := &models.Wallet{ID: id, Address: "addr-" + id, ChainFamily: family, Tag: tag, Visible: visible}
	m.wallets = append(m.wallets, w)
	return w
}

type memToken struct {
	id  int64
	rec types.TokenRecord
}

type linkKey struct {
	walletID string
	tokenID  int64
}

// memHoldings is an in-memory holdings store enforcing the chain foreign key
type memHoldings struct {
	mu        sync.Mutex
	wallets   *memWallets
	chains    map[string]types.ChainInfo
	tokens    map[types.TokenKey]*memToken
	nextID    int64
	links     map[linkKey]models.WalletToken
	positions map[string]models.Position
	calls     []string
	failOn    string
}

func newMemHoldings(wallets *memWallets) *memHoldings {
	return &memHoldings{
		wallets:   wallets,
		chains:    make(map[string]types.ChainInfo),
		tokens:    make(map[types.TokenKey]*memToken),
		links:     make(map[linkKey]models.WalletToken),
		positions: make(map[string]models.Position),
	}
}

var errInjected = errors.New("injected failure")

func (m *memHoldings) record(call string) error {
	m.calls = append(m.calls, call)
	if m.failOn != "" && strings.HasPrefix(call, m.failOn) {
		return apperrors.NewDatabaseError(call, errInjected)
	}
	return nil
}

func (m *memHoldings) UpsertChain(ctx context.Context, chain types.ChainInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("chain:" + chain.ChainID); err != nil {
		return err
	}
	m.chains[chain.ChainID] = chain
	return nil
}

func (m *memHoldings) UpsertToken(ctx context.Context, tok types.TokenRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("token:" + tok.ChainID + "/" + tok.Symbol); err != nil {
		return 0, err
	}
	if _, ok := m.chains[tok.ChainID]; !ok {
		return 0, apperrors.NewDatabaseError("upsert token", fmt.Errorf("chain %s does not exist", tok.ChainID))
	}
	if t, ok := m.tokens[tok.Key()]; ok {
		t.rec = tok
		return t.id, nil
	}
	m.nextID++
	m.tokens[tok.Key()] = &memToken{id: m.nextID, rec: tok}
	return m.nextID, nil
}

func (m *memHoldings) tokenByID(id int64) (types.TokenRecord, bool) {
	for _, t := range m.tokens {
		if t.id == id {
			return t.rec, true
		}
	}
	return types.TokenRecord{}, false
}

func (m *memHoldings) UpsertWalletToken(ctx context.Context, link models.WalletToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(fmt.Sprintf("link:%s/%d", link.WalletID, link.TokenID)); err != nil {
		return err
	}
	if _, ok := m.tokenByID(link.TokenID); !ok {
		return apperrors.NewDatabaseError("upsert wallet token", fmt.Errorf("token %d does not exist", link.TokenID))
	}
	m.links[linkKey{link.WalletID, link.TokenID}] = link
	return nil
}

func inScope(chainID string, scope []string) bool {
	if scope == nil {
		return true
	}
	for _, c := range scope {
		if c == chainID {
			return true
		}
	}
	return false
}

func (m *memHoldings) ZeroStaleWalletTokens(ctx context.Context, walletID string, chainIDs []string, keep []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("zero-tokens:" + walletID); err != nil {
		return 0, err
	}
	kept := make(map[int64]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}
	var n int64
	for k, link := range m.links {
		tok, _ := m.tokenByID(k.tokenID)
		if k.walletID != walletID || kept[k.tokenID] || link.Amount.IsZero() || !inScope(tok.ChainID, chainIDs) {
			continue
		}
		link.Amount, link.USDValue, link.RawAmount = decimal.Zero, decimal.Zero, "0"
		m.links[k] = link
		n++
	}
	return n, nil
}

func positionStoreKey(p models.Position) string {
	return p.WalletID + "|" + storage.PositionKey(p.ProtocolName, p.ChainID, p.PositionType, p.TokenNames)
}

func (m *memHoldings) UpsertPosition(ctx context.Context, p models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("position:" + p.ProtocolName); err != nil {
		return err
	}
	m.positions[positionStoreKey(p)] = p
	return nil
}

func (m *memHoldings) ZeroStalePositions(ctx context.Context, walletID string, chainIDs []string, keep []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("zero-positions:" + walletID); err != nil {
		return 0, err
	}
	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		kept[walletID+"|"+k] = true
	}
	var n int64
	for k, p := range m.positions {
		if p.WalletID != walletID || kept[k] || p.USDValue.IsZero() || !inScope(p.ChainID, chainIDs) {
			continue
		}
		p.Amount, p.USDValue = decimal.Zero, decimal.Zero
		m.positions[k] = p
		n++
	}
	return n, nil
}

func (m *memHoldings) walletMatches(walletID string, f models.HoldingFilter) (*models.Wallet, bool) {
	w, err := m.wallets.Get(context.Background(), walletID)
	if err != nil {
		return nil, false
	}
	if f.WalletID != "" && f.WalletID != walletID {
		return nil, false
	}
	if f.VisibleOnly && !w.Visible {
		return nil, false
	}
	return w, true
}

func (m *memHoldings) ListHoldings(ctx context.Context, f models.HoldingFilter) ([]storage.HoldingRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.HoldingRow
	for k, link := range m.links {
		if !link.Amount.IsPositive() {
			continue
		}
		tok, _ := m.tokenByID(k.tokenID)
		if f.ChainID != "" && tok.ChainID != f.ChainID {
			continue
		}
		if f.Query != "" && !strings.Contains(strings.ToLower(tok.Symbol+" "+tok.Name), strings.ToLower(f.Query)) {
			continue
		}
		w, ok := m.walletMatches(k.walletID, f)
		if !ok {
			continue
		}
		tok.Amount = link.Amount
		tok.RawAmount = link.RawAmount
		out = append(out, storage.HoldingRow{WalletID: w.ID, Tag: w.Tag, Token: tok})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Token.ChainID != b.Token.ChainID {
			return a.Token.ChainID < b.Token.ChainID
		}
		if a.Token.Symbol != b.Token.Symbol {
			return a.Token.Symbol < b.Token.Symbol
		}
		return a.WalletID < b.WalletID
	})
	return out, nil
}

func (m *memHoldings) ListPositions(ctx context.Context, f models.HoldingFilter) ([]types.PositionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.PositionRecord
	for _, p := range m.positions {
		if p.USDValue.IsZero() {
			continue
		}
		if f.ChainID != "" && p.ChainID != f.ChainID {
			continue
		}
		w, ok := m.walletMatches(p.WalletID, f)
		if !ok {
			continue
		}
		out = append(out, types.PositionRecord{
			WalletID:     w.ID,
			WalletTag:    w.Tag,
			ProtocolName: p.ProtocolName,
			ChainID:      p.ChainID,
			PositionType: p.PositionType,
			TokenNames:   p.TokenNames,
			Amount:       p.Amount,
			PriceUSD:     p.PriceUSD,
			USDValue:     p.USDValue,
			LogoRef:      p.LogoRef,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProtocolName != out[j].ProtocolName {
			return out[i].ProtocolName < out[j].ProtocolName
		}
		return out[i].WalletID < out[j].WalletID
	})
	return out, nil
}

// linkAmount returns the stored amount of a wallet's token
func (m *memHoldings) linkAmount(walletID, chainID, symbol string) (decimal.Decimal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[types.TokenKey{ChainID: chainID, Symbol: symbol}]
	if !ok {
		return decimal.Zero, false
	}
	link, ok := m.links[linkKey{walletID, t.id}]
	return link.Amount, ok
}

// memSettings is an in-memory SettingsStore
type memSettings struct {
	values map[string]string
	err    error
}

func (m *memSettings) Get(ctx context.Context, key string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memSettings) Set(ctx context.Context, key, value string) error {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}

// memSnapshots is an in-memory SnapshotStore
type memSnapshots struct {
	rows []models.Snapshot
}

func (m *memSnapshots) Latest(ctx context.Context) (*models.Snapshot, error) {
	if len(m.rows) == 0 {
		return nil, nil
	}
	s := m.rows[len(m.rows)-1]
	return &s, nil
}

func (m *memSnapshots) Insert(ctx context.Context, s *models.Snapshot) error {
	if s.Date.IsZero() {
		s.Date = time.Now().UTC()
	}
	s.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, *s)
	return nil
}

func (m *memSnapshots) List(ctx context.Context, from, to time.Time) ([]models.Snapshot, error) {
	var out []models.Snapshot
	for _, s := range m.rows {
		if !s.Date.Before(from) && !s.Date.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

// memHistory records exported balance points
type memHistory struct {
	batches [][]storage.TokenBalancePoint
}

func (m *memHistory) InsertBatch(ctx context.Context, points []storage.TokenBalancePoint) error {
	m.batches = append(m.batches, points)
	return nil
}

type countingInvalidator struct {
	calls int32
}

func (c *countingInvalidator) Invalidate(ctx context.Context) {
	atomic.AddInt32(&c.calls, 1)
}

func (c *countingInvalidator) count() int {
	return int(atomic.LoadInt32(&c.calls))
}
