// Package ledger implements the contribution-pooling and profit-distribution
// state machine: contributions accumulate toward a funding goal, the pool
// closes once the goal is met, and each later sale pays down what is still
// owed to the investors who funded more than the entry fee.
package ledger

import (
	"time"

	"asset-pool-ledger/internal/money"
)

// AssetStatus is the lifecycle state of a funding pool
type AssetStatus string

const (
	AssetStatusRequested  AssetStatus = "REQUESTED"
	AssetStatusApproved   AssetStatus = "APPROVED"
	AssetStatusCollecting AssetStatus = "COLLECTING"
	AssetStatusPaused     AssetStatus = "PAUSED"
	AssetStatusRejected   AssetStatus = "REJECTED"
	AssetStatusPurchased  AssetStatus = "PURCHASED"
	AssetStatusAvailable  AssetStatus = "AVAILABLE"
)

// Payable reports whether sale events may be distributed against the asset.
func (s AssetStatus) Payable() bool {
	return s == AssetStatusPurchased || s == AssetStatusAvailable
}

// ContributionStatus tracks whether an investor is still owed profit
type ContributionStatus string

const (
	ContributionStatusActive    ContributionStatus = "ACTIVE"
	ContributionStatusConverted ContributionStatus = "CONVERTED_TO_INVESTMENT" // fully repaid, terminal
)

// TransactionType tags each wallet ledger entry
type TransactionType string

const (
	TxTypeDeposit            TransactionType = "DEPOSIT"
	TxTypeContribution       TransactionType = "CONTRIBUTION"
	TxTypeProfitDistribution TransactionType = "PROFIT_DISTRIBUTION"
	TxTypePurchase           TransactionType = "PURCHASE"
	TxTypeWithdrawal         TransactionType = "WITHDRAWAL"
)

// WithdrawalStatus is the state of a payout request
type WithdrawalStatus string

const (
	WithdrawalStatusPending   WithdrawalStatus = "PENDING"
	WithdrawalStatusCompleted WithdrawalStatus = "COMPLETED"
	WithdrawalStatusFailed    WithdrawalStatus = "FAILED"
)

// Asset is a funding pool and, once purchased, the thing being resold.
type Asset struct {
	ID                     string      `json:"id"`
	Title                  string      `json:"title"`
	TargetPrice            money.Money `json:"target_price"`
	PlatformFeeRatio       money.Ratio `json:"platform_fee_ratio"`
	CurrentCollected       money.Money `json:"current_collected"`
	Status                 AssetStatus `json:"status"`
	TotalRevenue           money.Money `json:"total_revenue"`
	TotalProfitDistributed money.Money `json:"total_profit_distributed"`
	PurchasedAt            *time.Time  `json:"purchased_at,omitempty"`
	AvailableAt            *time.Time  `json:"available_at,omitempty"`
	CreatedAt              time.Time   `json:"created_at"`
	UpdatedAt              time.Time   `json:"updated_at"`
}

// FundingGoal is the target price inflated by the platform fee.
func (a *Asset) FundingGoal() money.Money {
	return a.TargetPrice.Mul(money.OneRatio.Add(a.PlatformFeeRatio))
}

// RemainingNeeded is the gap left before the pool closes, never negative.
func (a *Asset) RemainingNeeded() money.Money {
	return money.Max(money.Zero, a.FundingGoal().Sub(a.CurrentCollected))
}

// Contribution is one contributor's cumulative stake in one pool.
type Contribution struct {
	ID                  string             `json:"id"`
	UserID              string             `json:"user_id"`
	AssetID             string             `json:"asset_id"`
	Amount              money.Money        `json:"amount"`
	ExcessAmount        money.Money        `json:"excess_amount"`
	IsInvestment        bool               `json:"is_investment"`
	ProfitShareRatio    money.Ratio        `json:"profit_share_ratio"` // stamped at full funding, reporting only
	TotalProfitReceived money.Money        `json:"total_profit_received"`
	Status              ContributionStatus `json:"status"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// RemainingOwed is what the contribution may still receive.
func (c *Contribution) RemainingOwed() money.Money {
	return money.Max(money.Zero, c.ExcessAmount.Sub(c.TotalProfitReceived))
}

// StillOwed reports whether the contribution takes part in distributions.
func (c *Contribution) StillOwed() bool {
	return c.IsInvestment &&
		c.Status == ContributionStatusActive &&
		c.TotalProfitReceived.LessThan(c.ExcessAmount)
}

// Wallet holds a user's two balances. They are never merged implicitly.
type Wallet struct {
	UserID              string      `json:"user_id"`
	Balance             money.Money `json:"balance"`              // spendable, funds contributions
	WithdrawableBalance money.Money `json:"withdrawable_balance"` // earned from distributions
	TotalDeposited      money.Money `json:"total_deposited"`
	TotalWithdrawn      money.Money `json:"total_withdrawn"`
	TotalProfitReceived money.Money `json:"total_profit_received"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// Transaction is an immutable wallet ledger entry.
type Transaction struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Type          TransactionType `json:"type"`
	Amount        money.Money     `json:"amount"`
	BalanceBefore money.Money     `json:"balance_before"`
	BalanceAfter  money.Money     `json:"balance_after"`
	AssetID       string          `json:"asset_id,omitempty"`
	ReferenceID   string          `json:"reference_id,omitempty"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ProfitShare records one contributor's payout within one sale event.
type ProfitShare struct {
	ID             string      `json:"id"`
	DistributionID string      `json:"distribution_id"`
	ContributionID string      `json:"contribution_id"`
	AssetID        string      `json:"asset_id"`
	UserID         string      `json:"user_id"`
	Amount         money.Money `json:"amount"`
	ShareRatio     money.Ratio `json:"share_ratio"` // remaining-debt weight used this round
	SaleProceeds   money.Money `json:"sale_proceeds"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ProfitDistribution is the aggregate record of one sale event.
type ProfitDistribution struct {
	ID                string      `json:"id"`
	AssetID           string      `json:"asset_id"`
	TotalRevenue      money.Money `json:"total_revenue"`
	PlatformProfit    money.Money `json:"platform_profit"`
	ContributorProfit money.Money `json:"contributor_profit"`
	Residual          money.Money `json:"residual"` // moved to platform because every debt was covered
	DistributedShares int         `json:"distributed_shares"`
	CreatedAt         time.Time   `json:"created_at"`
}

// AccessSource records how a user came to hold an asset.
type AccessSource string

const (
	AccessSourcePurchase     AccessSource = "PURCHASE"     // bought on resale
	AccessSourceContribution AccessSource = "CONTRIBUTION" // granted when the pool was processed
)

// AssetPurchase is a user's access record for an asset: a resale to a buyer,
// or the access a contributor is granted when the funded asset is processed.
type AssetPurchase struct {
	ID        string       `json:"id"`
	AssetID   string       `json:"asset_id"`
	UserID    string       `json:"user_id"`
	Price     money.Money  `json:"price"`
	Source    AccessSource `json:"source"`
	CreatedAt time.Time    `json:"created_at"`
}

// Withdrawal is a payout request against the withdrawable balance.
type Withdrawal struct {
	ID            string           `json:"id"`
	UserID        string           `json:"user_id"`
	Amount        money.Money      `json:"amount"`
	Currency      string           `json:"currency"`
	Network       string           `json:"network"`
	Destination   string           `json:"destination"`
	Status        WithdrawalStatus `json:"status"`
	TxHash        string           `json:"tx_hash,omitempty"`
	FailureReason string           `json:"failure_reason,omitempty"`
	FailureDetail string           `json:"failure_detail,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
}
