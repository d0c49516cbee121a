package database

import (
	"context"
	"fmt"
)

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Msg("Running database migrations...")

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Int("count", len(migrations)).Msg("Database migrations completed")
	return nil
}

var migrations = []string{
	// Funding pools
	`CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		target_price NUMERIC(20, 2) NOT NULL CHECK (target_price > 0),
		platform_fee_ratio NUMERIC(12, 8) NOT NULL CHECK (platform_fee_ratio >= 0 AND platform_fee_ratio < 1),
		current_collected NUMERIC(20, 2) NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL,
		total_revenue NUMERIC(20, 2) NOT NULL DEFAULT 0,
		total_profit_distributed NUMERIC(20, 2) NOT NULL DEFAULT 0,
		purchased_at TIMESTAMPTZ,
		available_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_assets_status ON assets(status)`,

	// Wallets, one per user
	`CREATE TABLE IF NOT EXISTS wallets (
		user_id TEXT PRIMARY KEY,
		balance NUMERIC(20, 2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		withdrawable_balance NUMERIC(20, 2) NOT NULL DEFAULT 0 CHECK (withdrawable_balance >= 0),
		total_deposited NUMERIC(20, 2) NOT NULL DEFAULT 0,
		total_withdrawn NUMERIC(20, 2) NOT NULL DEFAULT 0,
		total_profit_received NUMERIC(20, 2) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	// Contributions, one live record per (user, asset)
	`CREATE TABLE IF NOT EXISTS contributions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES wallets(user_id),
		asset_id TEXT NOT NULL REFERENCES assets(id),
		amount NUMERIC(20, 2) NOT NULL,
		excess_amount NUMERIC(20, 2) NOT NULL DEFAULT 0,
		is_investment BOOLEAN NOT NULL DEFAULT FALSE,
		profit_share_ratio NUMERIC(12, 8) NOT NULL DEFAULT 0,
		total_profit_received NUMERIC(20, 2) NOT NULL DEFAULT 0 CHECK (total_profit_received <= excess_amount),
		status VARCHAR(30) NOT NULL DEFAULT 'ACTIVE',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, asset_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contributions_asset ON contributions(asset_id)`,

	// Append-only wallet ledger
	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type VARCHAR(30) NOT NULL,
		amount NUMERIC(20, 2) NOT NULL,
		balance_before NUMERIC(20, 2) NOT NULL,
		balance_after NUMERIC(20, 2) NOT NULL,
		asset_id TEXT,
		reference_id TEXT,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_user_created ON transactions(user_id, created_at DESC)`,

	// Sale events
	`CREATE TABLE IF NOT EXISTS profit_distributions (
		id TEXT PRIMARY KEY,
		asset_id TEXT NOT NULL REFERENCES assets(id),
		total_revenue NUMERIC(20, 2) NOT NULL,
		platform_profit NUMERIC(20, 2) NOT NULL,
		contributor_profit NUMERIC(20, 2) NOT NULL,
		residual NUMERIC(20, 2) NOT NULL DEFAULT 0,
		distributed_shares INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (platform_profit + contributor_profit = total_revenue)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_profit_distributions_asset ON profit_distributions(asset_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS profit_shares (
		id TEXT PRIMARY KEY,
		distribution_id TEXT NOT NULL REFERENCES profit_distributions(id),
		contribution_id TEXT NOT NULL REFERENCES contributions(id),
		asset_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		amount NUMERIC(20, 2) NOT NULL CHECK (amount > 0),
		share_ratio NUMERIC(12, 8) NOT NULL,
		sale_proceeds NUMERIC(20, 2) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_profit_shares_user ON profit_shares(user_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_profit_shares_asset ON profit_shares(asset_id)`,

	// Resales and contributor access
	`CREATE TABLE IF NOT EXISTS asset_purchases (
		id TEXT PRIMARY KEY,
		asset_id TEXT NOT NULL REFERENCES assets(id),
		user_id TEXT NOT NULL,
		price NUMERIC(20, 2) NOT NULL,
		source TEXT NOT NULL DEFAULT 'PURCHASE',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (asset_id, user_id)
	)`,
	`ALTER TABLE asset_purchases ADD COLUMN IF NOT EXISTS source TEXT NOT NULL DEFAULT 'PURCHASE'`,

	// Payout requests
	`CREATE TABLE IF NOT EXISTS withdrawals (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES wallets(user_id),
		amount NUMERIC(20, 2) NOT NULL CHECK (amount > 0),
		currency VARCHAR(10) NOT NULL,
		network VARCHAR(20) NOT NULL DEFAULT '',
		destination TEXT NOT NULL,
		status VARCHAR(20) NOT NULL,
		tx_hash TEXT NOT NULL DEFAULT '',
		failure_reason VARCHAR(40) NOT NULL DEFAULT '',
		failure_detail TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_withdrawals_user_status ON withdrawals(user_id, status)`,
}
