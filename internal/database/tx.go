package database

import (
	"context"
	"fmt"

	"asset-pool-ledger/internal/ledger"
	"asset-pool-ledger/internal/money"
)

// pgTx implements ledger.Tx over one pgx transaction. Amounts travel as
// fixed-point strings cast to NUMERIC server side.
type pgTx struct {
	q querier
}

// ============================================================================
// ASSETS
// ============================================================================

func (t *pgTx) LockAsset(ctx context.Context, assetID string) (*ledger.Asset, error) {
	return scanAsset(t.q.QueryRow(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE id = $1 FOR UPDATE`, assetID))
}

func (t *pgTx) InsertAsset(ctx context.Context, a *ledger.Asset) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO assets (id, title, target_price, platform_fee_ratio, current_collected, status,
			total_revenue, total_profit_distributed, purchased_at, available_at, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, $7::numeric, $8::numeric, $9, $10, $11, $12)`,
		a.ID, a.Title, a.TargetPrice.String(), a.PlatformFeeRatio.String(), a.CurrentCollected.String(), string(a.Status),
		a.TotalRevenue.String(), a.TotalProfitDistributed.String(), a.PurchasedAt, a.AvailableAt, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateAsset(ctx context.Context, a *ledger.Asset) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE assets SET current_collected = $2::numeric, status = $3, total_revenue = $4::numeric,
			total_profit_distributed = $5::numeric, purchased_at = $6, available_at = $7, updated_at = $8
		WHERE id = $1`,
		a.ID, a.CurrentCollected.String(), string(a.Status), a.TotalRevenue.String(),
		a.TotalProfitDistributed.String(), a.PurchasedAt, a.AvailableAt, a.UpdatedAt)
	return affected(tag.RowsAffected(), err, "update asset")
}

// ============================================================================
// WALLETS
// ============================================================================

func (t *pgTx) LockWallet(ctx context.Context, userID string) (*ledger.Wallet, error) {
	return scanWallet(t.q.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID))
}

func (t *pgTx) InsertWallet(ctx context.Context, w *ledger.Wallet) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO wallets (user_id, balance, withdrawable_balance, total_deposited, total_withdrawn,
			total_profit_received, created_at, updated_at)
		VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7, $8)
		ON CONFLICT (user_id) DO NOTHING`,
		w.UserID, w.Balance.String(), w.WithdrawableBalance.String(), w.TotalDeposited.String(),
		w.TotalWithdrawn.String(), w.TotalProfitReceived.String(), w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateWallet(ctx context.Context, w *ledger.Wallet) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE wallets SET balance = $2::numeric, withdrawable_balance = $3::numeric,
			total_deposited = $4::numeric, total_withdrawn = $5::numeric,
			total_profit_received = $6::numeric, updated_at = $7
		WHERE user_id = $1`,
		w.UserID, w.Balance.String(), w.WithdrawableBalance.String(), w.TotalDeposited.String(),
		w.TotalWithdrawn.String(), w.TotalProfitReceived.String(), w.UpdatedAt)
	return affected(tag.RowsAffected(), err, "update wallet")
}

// ============================================================================
// CONTRIBUTIONS
// ============================================================================

func (t *pgTx) ListContributions(ctx context.Context, assetID string) ([]*ledger.Contribution, error) {
	rows, err := t.q.Query(ctx,
		`SELECT `+contributionColumns+` FROM contributions WHERE asset_id = $1 ORDER BY id FOR UPDATE`, assetID)
	return collect(rows, err, scanContribution)
}

func (t *pgTx) FindContribution(ctx context.Context, userID, assetID string) (*ledger.Contribution, error) {
	return scanContribution(t.q.QueryRow(ctx,
		`SELECT `+contributionColumns+` FROM contributions WHERE user_id = $1 AND asset_id = $2 FOR UPDATE`,
		userID, assetID))
}

func (t *pgTx) InsertContribution(ctx context.Context, c *ledger.Contribution) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO contributions (id, user_id, asset_id, amount, excess_amount, is_investment,
			profit_share_ratio, total_profit_received, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7::numeric, $8::numeric, $9, $10, $11)`,
		c.ID, c.UserID, c.AssetID, c.Amount.String(), c.ExcessAmount.String(), c.IsInvestment,
		c.ProfitShareRatio.String(), c.TotalProfitReceived.String(), string(c.Status), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert contribution: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateContribution(ctx context.Context, c *ledger.Contribution) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE contributions SET amount = $2::numeric, excess_amount = $3::numeric, is_investment = $4,
			profit_share_ratio = $5::numeric, total_profit_received = $6::numeric, status = $7, updated_at = $8
		WHERE id = $1`,
		c.ID, c.Amount.String(), c.ExcessAmount.String(), c.IsInvestment, c.ProfitShareRatio.String(),
		c.TotalProfitReceived.String(), string(c.Status), c.UpdatedAt)
	return affected(tag.RowsAffected(), err, "update contribution")
}

// ============================================================================
// AUDIT RECORDS
// ============================================================================

func (t *pgTx) InsertTransaction(ctx context.Context, tr *ledger.Transaction) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO transactions (id, user_id, type, amount, balance_before, balance_after,
			asset_id, reference_id, description, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, NULLIF($7, ''), NULLIF($8, ''), $9, $10)`,
		tr.ID, tr.UserID, string(tr.Type), tr.Amount.String(), tr.BalanceBefore.String(), tr.BalanceAfter.String(),
		tr.AssetID, tr.ReferenceID, tr.Description, tr.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (t *pgTx) InsertProfitShare(ctx context.Context, s *ledger.ProfitShare) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO profit_shares (id, distribution_id, contribution_id, asset_id, user_id, amount,
			share_ratio, sale_proceeds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9)`,
		s.ID, s.DistributionID, s.ContributionID, s.AssetID, s.UserID, s.Amount.String(),
		s.ShareRatio.String(), s.SaleProceeds.String(), s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert profit share: %w", err)
	}
	return nil
}

func (t *pgTx) InsertProfitDistribution(ctx context.Context, d *ledger.ProfitDistribution) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO profit_distributions (id, asset_id, total_revenue, platform_profit, contributor_profit,
			residual, distributed_shares, created_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7, $8)`,
		d.ID, d.AssetID, d.TotalRevenue.String(), d.PlatformProfit.String(), d.ContributorProfit.String(),
		d.Residual.String(), d.DistributedShares, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert profit distribution: %w", err)
	}
	return nil
}

// ============================================================================
// PURCHASES
// ============================================================================

func (t *pgTx) FindPurchase(ctx context.Context, userID, assetID string) (*ledger.AssetPurchase, error) {
	return scanPurchase(t.q.QueryRow(ctx,
		`SELECT `+purchaseColumns+` FROM asset_purchases WHERE user_id = $1 AND asset_id = $2`, userID, assetID))
}

func (t *pgTx) InsertPurchase(ctx context.Context, p *ledger.AssetPurchase) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO asset_purchases (id, asset_id, user_id, price, source, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)`,
		p.ID, p.AssetID, p.UserID, p.Price.String(), string(p.Source), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

// ============================================================================
// WITHDRAWALS
// ============================================================================

func (t *pgTx) LockWithdrawal(ctx context.Context, withdrawalID string) (*ledger.Withdrawal, error) {
	return scanWithdrawal(t.q.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, withdrawalID))
}

func (t *pgTx) InsertWithdrawal(ctx context.Context, w *ledger.Withdrawal) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO withdrawals (id, user_id, amount, currency, network, destination, status,
			tx_hash, failure_reason, failure_detail, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		w.ID, w.UserID, w.Amount.String(), w.Currency, w.Network, w.Destination, string(w.Status),
		w.TxHash, w.FailureReason, w.FailureDetail, w.CreatedAt, w.UpdatedAt, w.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateWithdrawal(ctx context.Context, w *ledger.Withdrawal) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE withdrawals SET status = $2, tx_hash = $3, failure_reason = $4, failure_detail = $5,
			updated_at = $6, completed_at = $7
		WHERE id = $1`,
		w.ID, string(w.Status), w.TxHash, w.FailureReason, w.FailureDetail, w.UpdatedAt, w.CompletedAt)
	return affected(tag.RowsAffected(), err, "update withdrawal")
}

func (t *pgTx) PendingWithdrawalTotal(ctx context.Context, userID string) (money.Money, error) {
	var total money.Money
	err := t.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM withdrawals WHERE user_id = $1 AND status = $2`,
		userID, string(ledger.WithdrawalStatusPending)).Scan(&total)
	if err != nil {
		return money.Zero, fmt.Errorf("sum pending withdrawals: %w", err)
	}
	return total, nil
}

// affected turns a zero-row UPDATE into ledger.ErrNotFound.
func affected(rows int64, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, ledger.ErrNotFound)
	}
	return nil
}

var _ ledger.Tx = (*pgTx)(nil)
