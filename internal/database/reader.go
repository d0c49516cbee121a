package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"asset-pool-ledger/internal/ledger"
)

// Read models run directly on the pool outside any transaction.

func (s *Store) GetAsset(ctx context.Context, assetID string) (*ledger.Asset, error) {
	return getAsset(ctx, s.db.Pool, assetID)
}

func (s *Store) ListAssets(ctx context.Context) ([]*ledger.Asset, error) {
	rows, err := s.db.Pool.Query(ctx, `SELECT `+assetColumns+` FROM assets ORDER BY created_at, id`)
	return collect(rows, err, scanAsset)
}

func (s *Store) GetWallet(ctx context.Context, userID string) (*ledger.Wallet, error) {
	return scanWallet(s.db.Pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
}

func (s *Store) GetWithdrawal(ctx context.Context, withdrawalID string) (*ledger.Withdrawal, error) {
	return scanWithdrawal(s.db.Pool.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, withdrawalID))
}

func (s *Store) ListAssetContributions(ctx context.Context, assetID string) ([]*ledger.Contribution, error) {
	return listAssetContributions(ctx, s.db.Pool, assetID)
}

func (s *Store) ListUserContributions(ctx context.Context, userID string) ([]*ledger.Contribution, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT `+contributionColumns+` FROM contributions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	return collect(rows, err, scanContribution)
}

func (s *Store) ListAssetDistributions(ctx context.Context, assetID string) ([]*ledger.ProfitDistribution, error) {
	return listAssetDistributions(ctx, s.db.Pool, assetID)
}

func (s *Store) ListAssetProfitShares(ctx context.Context, assetID string) ([]*ledger.ProfitShare, error) {
	return listAssetProfitShares(ctx, s.db.Pool, assetID)
}

func (s *Store) ListUserProfitShares(ctx context.Context, userID string) ([]*ledger.ProfitShare, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT `+shareColumns+` FROM profit_shares WHERE user_id = $1 ORDER BY created_at, id`, userID)
	return collect(rows, err, scanShare)
}

func (s *Store) ListTransactions(ctx context.Context, userID string, limit int) ([]*ledger.Transaction, error) {
	var lim any = limit
	if limit <= 0 {
		lim = nil // LIMIT NULL returns every row
	}
	rows, err := s.db.Pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 ORDER BY created_at DESC, id LIMIT $2`,
		userID, lim)
	return collect(rows, err, scanTransaction)
}

func (s *Store) ListUserWithdrawals(ctx context.Context, userID string) ([]*ledger.Withdrawal, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	return collect(rows, err, scanWithdrawal)
}

func (s *Store) GetPurchase(ctx context.Context, userID, assetID string) (*ledger.AssetPurchase, error) {
	return scanPurchase(s.db.Pool.QueryRow(ctx,
		`SELECT `+purchaseColumns+` FROM asset_purchases WHERE user_id = $1 AND asset_id = $2`, userID, assetID))
}

// GetPoolRecords reads one pool inside a REPEATABLE READ READ ONLY
// transaction so every row comes from the same snapshot.
func (s *Store) GetPoolRecords(ctx context.Context, assetID string) (*ledger.PoolRecords, error) {
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only, nothing to keep

	var r ledger.PoolRecords
	if r.Asset, err = getAsset(ctx, tx, assetID); err != nil {
		return nil, err
	}
	if r.Contributions, err = listAssetContributions(ctx, tx, assetID); err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	if r.Distributions, err = listAssetDistributions(ctx, tx, assetID); err != nil {
		return nil, fmt.Errorf("list distributions: %w", err)
	}
	if r.Shares, err = listAssetProfitShares(ctx, tx, assetID); err != nil {
		return nil, fmt.Errorf("list profit shares: %w", err)
	}
	return &r, nil
}

func getAsset(ctx context.Context, q querier, assetID string) (*ledger.Asset, error) {
	return scanAsset(q.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1`, assetID))
}

func listAssetContributions(ctx context.Context, q querier, assetID string) ([]*ledger.Contribution, error) {
	rows, err := q.Query(ctx,
		`SELECT `+contributionColumns+` FROM contributions WHERE asset_id = $1 ORDER BY id`, assetID)
	return collect(rows, err, scanContribution)
}

func listAssetDistributions(ctx context.Context, q querier, assetID string) ([]*ledger.ProfitDistribution, error) {
	rows, err := q.Query(ctx,
		`SELECT `+distributionColumns+` FROM profit_distributions WHERE asset_id = $1 ORDER BY created_at, id`, assetID)
	return collect(rows, err, scanDistribution)
}

func listAssetProfitShares(ctx context.Context, q querier, assetID string) ([]*ledger.ProfitShare, error) {
	rows, err := q.Query(ctx,
		`SELECT `+shareColumns+` FROM profit_shares WHERE asset_id = $1 ORDER BY created_at, id`, assetID)
	return collect(rows, err, scanShare)
}
