package database

import (
	"github.com/jackc/pgx/v5"

	"asset-pool-ledger/internal/ledger"
)

// Column lists shared by every query on a table

const assetColumns = `id, title, target_price, platform_fee_ratio, current_collected, status,
	total_revenue, total_profit_distributed, purchased_at, available_at, created_at, updated_at`

const walletColumns = `user_id, balance, withdrawable_balance, total_deposited, total_withdrawn,
	total_profit_received, created_at, updated_at`

const contributionColumns = `id, user_id, asset_id, amount, excess_amount, is_investment,
	profit_share_ratio, total_profit_received, status, created_at, updated_at`

const transactionColumns = `id, user_id, type, amount, balance_before, balance_after,
	COALESCE(asset_id, ''), COALESCE(reference_id, ''), description, created_at`

const distributionColumns = `id, asset_id, total_revenue, platform_profit, contributor_profit,
	residual, distributed_shares, created_at`

const shareColumns = `id, distribution_id, contribution_id, asset_id, user_id, amount,
	share_ratio, sale_proceeds, created_at`

const purchaseColumns = `id, asset_id, user_id, price, source, created_at`

const withdrawalColumns = `id, user_id, amount, currency, network, destination, status,
	tx_hash, failure_reason, failure_detail, created_at, updated_at, completed_at`

func scanAsset(row pgx.Row) (*ledger.Asset, error) {
	var a ledger.Asset
	var status string
	err := row.Scan(&a.ID, &a.Title, &a.TargetPrice, &a.PlatformFeeRatio, &a.CurrentCollected, &status,
		&a.TotalRevenue, &a.TotalProfitDistributed, &a.PurchasedAt, &a.AvailableAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, noRows(err)
	}
	a.Status = ledger.AssetStatus(status)
	return &a, nil
}

func scanWallet(row pgx.Row) (*ledger.Wallet, error) {
	var w ledger.Wallet
	err := row.Scan(&w.UserID, &w.Balance, &w.WithdrawableBalance, &w.TotalDeposited, &w.TotalWithdrawn,
		&w.TotalProfitReceived, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, noRows(err)
	}
	return &w, nil
}

func scanContribution(row pgx.Row) (*ledger.Contribution, error) {
	var c ledger.Contribution
	var status string
	err := row.Scan(&c.ID, &c.UserID, &c.AssetID, &c.Amount, &c.ExcessAmount, &c.IsInvestment,
		&c.ProfitShareRatio, &c.TotalProfitReceived, &status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, noRows(err)
	}
	c.Status = ledger.ContributionStatus(status)
	return &c, nil
}

func scanTransaction(row pgx.Row) (*ledger.Transaction, error) {
	var t ledger.Transaction
	var kind string
	err := row.Scan(&t.ID, &t.UserID, &kind, &t.Amount, &t.BalanceBefore, &t.BalanceAfter,
		&t.AssetID, &t.ReferenceID, &t.Description, &t.CreatedAt)
	if err != nil {
		return nil, noRows(err)
	}
	t.Type = ledger.TransactionType(kind)
	return &t, nil
}

func scanDistribution(row pgx.Row) (*ledger.ProfitDistribution, error) {
	var d ledger.ProfitDistribution
	err := row.Scan(&d.ID, &d.AssetID, &d.TotalRevenue, &d.PlatformProfit, &d.ContributorProfit,
		&d.Residual, &d.DistributedShares, &d.CreatedAt)
	if err != nil {
		return nil, noRows(err)
	}
	return &d, nil
}

func scanShare(row pgx.Row) (*ledger.ProfitShare, error) {
	var s ledger.ProfitShare
	err := row.Scan(&s.ID, &s.DistributionID, &s.ContributionID, &s.AssetID, &s.UserID, &s.Amount,
		&s.ShareRatio, &s.SaleProceeds, &s.CreatedAt)
	if err != nil {
		return nil, noRows(err)
	}
	return &s, nil
}

func scanPurchase(row pgx.Row) (*ledger.AssetPurchase, error) {
	var p ledger.AssetPurchase
	var source string
	if err := row.Scan(&p.ID, &p.AssetID, &p.UserID, &p.Price, &source, &p.CreatedAt); err != nil {
		return nil, noRows(err)
	}
	p.Source = ledger.AccessSource(source)
	return &p, nil
}

func scanWithdrawal(row pgx.Row) (*ledger.Withdrawal, error) {
	var w ledger.Withdrawal
	var status string
	err := row.Scan(&w.ID, &w.UserID, &w.Amount, &w.Currency, &w.Network, &w.Destination, &status,
		&w.TxHash, &w.FailureReason, &w.FailureDetail, &w.CreatedAt, &w.UpdatedAt, &w.CompletedAt)
	if err != nil {
		return nil, noRows(err)
	}
	w.Status = ledger.WithdrawalStatus(status)
	return &w, nil
}

// collect runs a query and scans every row with scan.
func collect[T any](rows pgx.Rows, err error, scan func(pgx.Row) (*T, error)) ([]*T, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
