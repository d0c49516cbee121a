package ledger

import (
	"context"

	"asset-pool-ledger/internal/money"
)

// Store is the persistence boundary the ledger runs against. Implementations
// must give WithTx serializable semantics: two transactions touching the same
// asset or wallet behave as if run one after the other. A transaction that
// returns an error leaves no trace. WithTx may call fn more than once when the
// backend reports a serialization conflict, so fn must derive everything it
// returns from what it reads through tx.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Reader serves read models outside of any transaction.
type Reader interface {
	GetAsset(ctx context.Context, assetID string) (*Asset, error)
	ListAssets(ctx context.Context) ([]*Asset, error)
	GetWallet(ctx context.Context, userID string) (*Wallet, error)
	GetWithdrawal(ctx context.Context, withdrawalID string) (*Withdrawal, error)
	ListAssetContributions(ctx context.Context, assetID string) ([]*Contribution, error)
	ListUserContributions(ctx context.Context, userID string) ([]*Contribution, error)
	ListAssetDistributions(ctx context.Context, assetID string) ([]*ProfitDistribution, error)
	ListAssetProfitShares(ctx context.Context, assetID string) ([]*ProfitShare, error)
	ListUserProfitShares(ctx context.Context, userID string) ([]*ProfitShare, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]*Transaction, error)
	ListUserWithdrawals(ctx context.Context, userID string) ([]*Withdrawal, error)
	GetPurchase(ctx context.Context, userID, assetID string) (*AssetPurchase, error)
	// GetPoolRecords reads the asset and every row hanging off it from one
	// consistent snapshot. Writes committed while it runs are not seen.
	GetPoolRecords(ctx context.Context, assetID string) (*PoolRecords, error)
}

// PoolRecords is everything stored about one pool at a single point in time.
type PoolRecords struct {
	Asset         *Asset
	Contributions []*Contribution
	Distributions []*ProfitDistribution
	Shares        []*ProfitShare
}

// Tx is a unit of work. Lock* methods read a row for update; the row stays
// locked against other writers until the transaction ends. Every Lock*/Find*
// method returns ErrNotFound when the row is missing.
type Tx interface {
	LockAsset(ctx context.Context, assetID string) (*Asset, error)
	InsertAsset(ctx context.Context, asset *Asset) error
	UpdateAsset(ctx context.Context, asset *Asset) error

	LockWallet(ctx context.Context, userID string) (*Wallet, error)
	// InsertWallet creates the wallet unless one already exists for the
	// user, in which case the stored wallet is left untouched.
	InsertWallet(ctx context.Context, wallet *Wallet) error
	UpdateWallet(ctx context.Context, wallet *Wallet) error

	// ListContributions returns the pool's contributions ordered by ID,
	// locked for update.
	ListContributions(ctx context.Context, assetID string) ([]*Contribution, error)
	FindContribution(ctx context.Context, userID, assetID string) (*Contribution, error)
	InsertContribution(ctx context.Context, c *Contribution) error
	UpdateContribution(ctx context.Context, c *Contribution) error

	InsertTransaction(ctx context.Context, t *Transaction) error
	InsertProfitShare(ctx context.Context, s *ProfitShare) error
	InsertProfitDistribution(ctx context.Context, d *ProfitDistribution) error

	FindPurchase(ctx context.Context, userID, assetID string) (*AssetPurchase, error)
	InsertPurchase(ctx context.Context, p *AssetPurchase) error

	LockWithdrawal(ctx context.Context, withdrawalID string) (*Withdrawal, error)
	InsertWithdrawal(ctx context.Context, w *Withdrawal) error
	UpdateWithdrawal(ctx context.Context, w *Withdrawal) error
	// PendingWithdrawalTotal sums the user's PENDING withdrawal amounts.
	PendingWithdrawalTotal(ctx context.Context, userID string) (money.Money, error)
}

// Locker serializes operations on one key across goroutines (and, for the
// Redis implementation, across processes). It narrows the window in which the
// store has to resolve conflicts; it is not a substitute for WithTx.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}
