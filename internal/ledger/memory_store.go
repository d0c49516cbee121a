package ledger

import (
	"context"
	"sort"
	"sync"

	"asset-pool-ledger/internal/money"
)

// MemoryStore is an in-process Store. Transactions run one at a time under a
// single mutex against a private copy of the state, which replaces the
// committed state only when fn succeeds. Readers must not be called from
// inside WithTx.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	assets        map[string]Asset
	wallets       map[string]Wallet
	contributions map[string]Contribution
	purchases     map[string]AssetPurchase
	withdrawals   map[string]Withdrawal
	transactions  []Transaction
	shares        []ProfitShare
	distributions []ProfitDistribution
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		assets:        make(map[string]Asset),
		wallets:       make(map[string]Wallet),
		contributions: make(map[string]Contribution),
		purchases:     make(map[string]AssetPurchase),
		withdrawals:   make(map[string]Withdrawal),
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		assets:        make(map[string]Asset, len(s.assets)),
		wallets:       make(map[string]Wallet, len(s.wallets)),
		contributions: make(map[string]Contribution, len(s.contributions)),
		purchases:     make(map[string]AssetPurchase, len(s.purchases)),
		withdrawals:   make(map[string]Withdrawal, len(s.withdrawals)),
		transactions:  append([]Transaction(nil), s.transactions...),
		shares:        append([]ProfitShare(nil), s.shares...),
		distributions: append([]ProfitDistribution(nil), s.distributions...),
	}
	for k, v := range s.assets {
		c.assets[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.contributions {
		c.contributions[k] = v
	}
	for k, v := range s.purchases {
		c.purchases[k] = v
	}
	for k, v := range s.withdrawals {
		c.withdrawals[k] = v
	}
	return c
}

// WithTx runs fn against a copy of the state and commits it if fn succeeds.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *MemoryStore) read() *memState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Committed state is never mutated in place, so readers can work on the
// snapshot without holding the lock.

func (s *MemoryStore) GetAsset(ctx context.Context, assetID string) (*Asset, error) {
	a, ok := s.read().assets[assetID]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s *MemoryStore) ListAssets(ctx context.Context) ([]*Asset, error) {
	st := s.read()
	out := make([]*Asset, 0, len(st.assets))
	for _, a := range st.assets {
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) GetWallet(ctx context.Context, userID string) (*Wallet, error) {
	w, ok := s.read().wallets[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &w, nil
}

func (s *MemoryStore) GetWithdrawal(ctx context.Context, withdrawalID string) (*Withdrawal, error) {
	w, ok := s.read().withdrawals[withdrawalID]
	if !ok {
		return nil, ErrNotFound
	}
	return &w, nil
}

func (s *MemoryStore) ListAssetContributions(ctx context.Context, assetID string) ([]*Contribution, error) {
	return s.read().contributionsWhere(func(c *Contribution) bool { return c.AssetID == assetID }), nil
}

func (s *MemoryStore) ListUserContributions(ctx context.Context, userID string) ([]*Contribution, error) {
	return s.read().contributionsWhere(func(c *Contribution) bool { return c.UserID == userID }), nil
}

func (s *MemoryStore) ListAssetDistributions(ctx context.Context, assetID string) ([]*ProfitDistribution, error) {
	return s.read().distributionsFor(assetID), nil
}

func (s *MemoryStore) ListAssetProfitShares(ctx context.Context, assetID string) ([]*ProfitShare, error) {
	return s.read().sharesWhere(func(p *ProfitShare) bool { return p.AssetID == assetID }), nil
}

func (s *MemoryStore) ListUserProfitShares(ctx context.Context, userID string) ([]*ProfitShare, error) {
	return s.read().sharesWhere(func(p *ProfitShare) bool { return p.UserID == userID }), nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	st := s.read()
	var out []*Transaction
	for i := len(st.transactions) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if t := st.transactions[i]; t.UserID == userID {
			out = append(out, &t)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListUserWithdrawals(ctx context.Context, userID string) ([]*Withdrawal, error) {
	st := s.read()
	var out []*Withdrawal
	for _, w := range st.withdrawals {
		if w.UserID == userID {
			w := w
			out = append(out, &w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) GetPurchase(ctx context.Context, userID, assetID string) (*AssetPurchase, error) {
	return (&memTx{state: s.read()}).FindPurchase(ctx, userID, assetID)
}

func (s *MemoryStore) GetPoolRecords(ctx context.Context, assetID string) (*PoolRecords, error) {
	st := s.read()
	a, ok := st.assets[assetID]
	if !ok {
		return nil, ErrNotFound
	}
	return &PoolRecords{
		Asset:         &a,
		Contributions: st.contributionsWhere(func(c *Contribution) bool { return c.AssetID == assetID }),
		Distributions: st.distributionsFor(assetID),
		Shares:        st.sharesWhere(func(p *ProfitShare) bool { return p.AssetID == assetID }),
	}, nil
}

func (s *memState) distributionsFor(assetID string) []*ProfitDistribution {
	var out []*ProfitDistribution
	for _, d := range s.distributions {
		if d.AssetID == assetID {
			d := d
			out = append(out, &d)
		}
	}
	return out
}

func (s *memState) contributionsWhere(match func(*Contribution) bool) []*Contribution {
	var out []*Contribution
	for _, c := range s.contributions {
		c := c
		if match(&c) {
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memState) sharesWhere(match func(*ProfitShare) bool) []*ProfitShare {
	var out []*ProfitShare
	for _, p := range s.shares {
		p := p
		if match(&p) {
			out = append(out, &p)
		}
	}
	return out
}

// memTx mutates a private copy of the state.
type memTx struct {
	state *memState
}

func (t *memTx) LockAsset(ctx context.Context, assetID string) (*Asset, error) {
	a, ok := t.state.assets[assetID]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (t *memTx) InsertAsset(ctx context.Context, asset *Asset) error {
	t.state.assets[asset.ID] = *asset
	return nil
}

func (t *memTx) UpdateAsset(ctx context.Context, asset *Asset) error {
	if _, ok := t.state.assets[asset.ID]; !ok {
		return ErrNotFound
	}
	t.state.assets[asset.ID] = *asset
	return nil
}

func (t *memTx) LockWallet(ctx context.Context, userID string) (*Wallet, error) {
	w, ok := t.state.wallets[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &w, nil
}

func (t *memTx) InsertWallet(ctx context.Context, wallet *Wallet) error {
	if _, ok := t.state.wallets[wallet.UserID]; !ok {
		t.state.wallets[wallet.UserID] = *wallet
	}
	return nil
}

func (t *memTx) UpdateWallet(ctx context.Context, wallet *Wallet) error {
	if _, ok := t.state.wallets[wallet.UserID]; !ok {
		return ErrNotFound
	}
	t.state.wallets[wallet.UserID] = *wallet
	return nil
}

func (t *memTx) ListContributions(ctx context.Context, assetID string) ([]*Contribution, error) {
	return t.state.contributionsWhere(func(c *Contribution) bool { return c.AssetID == assetID }), nil
}

func (t *memTx) FindContribution(ctx context.Context, userID, assetID string) (*Contribution, error) {
	for _, c := range t.state.contributions {
		if c.UserID == userID && c.AssetID == assetID {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) InsertContribution(ctx context.Context, c *Contribution) error {
	t.state.contributions[c.ID] = *c
	return nil
}

func (t *memTx) UpdateContribution(ctx context.Context, c *Contribution) error {
	if _, ok := t.state.contributions[c.ID]; !ok {
		return ErrNotFound
	}
	t.state.contributions[c.ID] = *c
	return nil
}

func (t *memTx) InsertTransaction(ctx context.Context, tr *Transaction) error {
	t.state.transactions = append(t.state.transactions, *tr)
	return nil
}

func (t *memTx) InsertProfitShare(ctx context.Context, ps *ProfitShare) error {
	t.state.shares = append(t.state.shares, *ps)
	return nil
}

func (t *memTx) InsertProfitDistribution(ctx context.Context, d *ProfitDistribution) error {
	t.state.distributions = append(t.state.distributions, *d)
	return nil
}

func (t *memTx) FindPurchase(ctx context.Context, userID, assetID string) (*AssetPurchase, error) {
	for _, p := range t.state.purchases {
		if p.UserID == userID && p.AssetID == assetID {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) InsertPurchase(ctx context.Context, p *AssetPurchase) error {
	t.state.purchases[p.ID] = *p
	return nil
}

func (t *memTx) LockWithdrawal(ctx context.Context, withdrawalID string) (*Withdrawal, error) {
	w, ok := t.state.withdrawals[withdrawalID]
	if !ok {
		return nil, ErrNotFound
	}
	return &w, nil
}

func (t *memTx) InsertWithdrawal(ctx context.Context, w *Withdrawal) error {
	t.state.withdrawals[w.ID] = *w
	return nil
}

func (t *memTx) UpdateWithdrawal(ctx context.Context, w *Withdrawal) error {
	if _, ok := t.state.withdrawals[w.ID]; !ok {
		return ErrNotFound
	}
	t.state.withdrawals[w.ID] = *w
	return nil
}

func (t *memTx) PendingWithdrawalTotal(ctx context.Context, userID string) (money.Money, error) {
	total := money.Zero
	for _, w := range t.state.withdrawals {
		if w.UserID == userID && w.Status == WithdrawalStatusPending {
			total = total.Add(w.Amount)
		}
	}
	return total, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Tx    = (*memTx)(nil)
)
