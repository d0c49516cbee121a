package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"asset-pool-ledger/internal/money"
)

// Config holds the ledger's monetary rules
type Config struct {
	Currency            string      `json:"currency"`
	MinimumContribution money.Money `json:"minimum_contribution"`
	EntryFee            money.Money `json:"entry_fee"`
	DefaultPlatformFee  money.Ratio `json:"default_platform_fee"`
}

// DefaultConfig returns the standard rules: a 1.00 minimum, a 1.00 entry fee
// and a 15% platform fee.
func DefaultConfig() Config {
	return Config{
		Currency:            money.DefaultCurrency,
		MinimumContribution: money.MustParse("1.00"),
		EntryFee:            money.MustParse("1.00"),
		DefaultPlatformFee:  money.MustParseRatio("0.15"),
	}
}

// Publisher receives ledger events once the producing transaction committed.
type Publisher interface {
	PublishContributionApplied(assetID, userID, applied, excess, remaining string)
	PublishPoolFunded(assetID, collected string, contributors int)
	PublishPoolAvailable(assetID, totalExcess string, contributors int)
	PublishProfitDistributed(assetID, revenue, platform, contributor string, shares int)
	PublishAssetPurchased(assetID, userID, price string)
	PublishDeposit(userID, amount string)
}

// Ledger runs every pool and wallet mutation as one store transaction.
type Ledger struct {
	store  Store
	locker Locker
	events Publisher
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

// Option customizes a Ledger
type Option func(*Ledger)

// WithLocker replaces the in-process per-asset locker.
func WithLocker(locker Locker) Option {
	return func(l *Ledger) { l.locker = locker }
}

// WithPublisher sets the event sink.
func WithPublisher(p Publisher) Option {
	return func(l *Ledger) { l.events = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a Ledger over store
func New(store Store, cfg Config, logger zerolog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		locker: NewLocalLocker(),
		events: nopPublisher{},
		cfg:    cfg,
		logger: logger.With().Str("component", "Ledger").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the active monetary rules.
func (l *Ledger) Config() Config { return l.cfg }

// Store exposes the underlying store to collaborating services.
func (l *Ledger) Store() Store { return l.store }

// withAssetLock serializes fn against every other operation on the asset,
// then runs it as one store transaction.
func (l *Ledger) withAssetLock(ctx context.Context, assetID string, fn func(tx Tx) error) error {
	unlock, err := l.locker.Lock(ctx, assetLockKey(assetID))
	if err != nil {
		return fmt.Errorf("lock asset %s: %w", assetID, err)
	}
	defer unlock()

	return l.store.WithTx(ctx, fn)
}

func assetLockKey(assetID string) string { return "asset:" + assetID }

func newID() string { return uuid.New().String() }

func (l *Ledger) display(m money.Money) string { return m.Display(l.cfg.Currency) }

// lockWallet loads the wallet for update, mapping a missing row.
func lockWallet(ctx context.Context, tx Tx, userID string) (*Wallet, error) {
	w, err := tx.LockWallet(ctx, userID)
	if err != nil {
		return nil, notFound(err, ErrWalletNotFound, userID)
	}
	return w, nil
}

// lockAsset loads the asset for update, mapping a missing row.
func lockAsset(ctx context.Context, tx Tx, assetID string) (*Asset, error) {
	a, err := tx.LockAsset(ctx, assetID)
	if err != nil {
		return nil, notFound(err, ErrAssetNotFound, assetID)
	}
	return a, nil
}

// findContribution returns nil without error when the pair has no record.
func findContribution(ctx context.Context, tx Tx, userID, assetID string) (*Contribution, error) {
	c, err := tx.FindContribution(ctx, userID, assetID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return c, err
}

type nopPublisher struct{}

func (nopPublisher) PublishContributionApplied(string, string, string, string, string) {}
func (nopPublisher) PublishPoolFunded(string, string, int)                             {}
func (nopPublisher) PublishPoolAvailable(string, string, int)                          {}
func (nopPublisher) PublishProfitDistributed(string, string, string, string, int)      {}
func (nopPublisher) PublishAssetPurchased(string, string, string)                      {}
func (nopPublisher) PublishDeposit(string, string)                                     {}
