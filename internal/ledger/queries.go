package ledger

import (
	"context"
	"errors"

	"asset-pool-ledger/internal/money"
)

// ContributionStats summarizes a pool for display.
type ContributionStats struct {
	AssetID             string          `json:"asset_id"`
	Status              AssetStatus     `json:"status"`
	FundingGoal         money.Money     `json:"funding_goal"`
	CurrentCollected    money.Money     `json:"current_collected"`
	RemainingNeeded     money.Money     `json:"remaining_needed"`
	ContributorCount    int             `json:"contributor_count"`
	InvestorCount       int             `json:"investor_count"`
	TotalAmount         money.Money     `json:"total_amount"`
	TotalExcess         money.Money     `json:"total_excess"`
	TotalProfitReceived money.Money     `json:"total_profit_received"`
	Contributions       []*Contribution `json:"contributions"`
}

// DistributionHistory lists every sale event on a pool with running totals.
type DistributionHistory struct {
	AssetID                string                `json:"asset_id"`
	TotalRevenue           money.Money           `json:"total_revenue"`
	TotalPlatformProfit    money.Money           `json:"total_platform_profit"`
	TotalContributorProfit money.Money           `json:"total_contributor_profit"`
	TotalShares            int                   `json:"total_shares"`
	Distributions          []*ProfitDistribution `json:"distributions"`
}

// UserProfitSummary groups a user's profit shares by asset.
type UserProfitSummary struct {
	UserID  string                 `json:"user_id"`
	Total   money.Money            `json:"total"`
	ByAsset map[string]money.Money `json:"by_asset"`
	Shares  []*ProfitShare         `json:"shares"`
}

// AccessType says why a user can or cannot open an asset.
type AccessType string

const (
	AccessTypePurchase            AccessType = "PURCHASE"
	AccessTypeContribution        AccessType = "CONTRIBUTION"
	AccessTypeContributionPending AccessType = "CONTRIBUTION_PENDING" // pool not yet processed
	AccessTypeNone                AccessType = "NONE"
)

// AssetAccess answers whether a user holds an asset.
type AssetAccess struct {
	AssetID      string         `json:"asset_id"`
	UserID       string         `json:"user_id"`
	HasAccess    bool           `json:"has_access"`
	AccessType   AccessType     `json:"access_type"`
	Purchase     *AssetPurchase `json:"purchase,omitempty"`
	Contribution *Contribution  `json:"contribution,omitempty"`
	Message      string         `json:"message,omitempty"`
}

// Asset returns one pool.
func (l *Ledger) Asset(ctx context.Context, assetID string) (*Asset, error) {
	a, err := l.store.GetAsset(ctx, assetID)
	if err != nil {
		return nil, notFound(err, ErrAssetNotFound, assetID)
	}
	return a, nil
}

// Assets returns every pool.
func (l *Ledger) Assets(ctx context.Context) ([]*Asset, error) {
	return l.store.ListAssets(ctx)
}

// Wallet returns a user's balances.
func (l *Ledger) Wallet(ctx context.Context, userID string) (*Wallet, error) {
	w, err := l.store.GetWallet(ctx, userID)
	if err != nil {
		return nil, notFound(err, ErrWalletNotFound, userID)
	}
	return w, nil
}

// Transactions returns the newest wallet entries first.
func (l *Ledger) Transactions(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return l.store.ListTransactions(ctx, userID, limit)
}

// AssetContributionStats aggregates the contributions on a pool.
func (l *Ledger) AssetContributionStats(ctx context.Context, assetID string) (*ContributionStats, error) {
	asset, err := l.Asset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	contributions, err := l.store.ListAssetContributions(ctx, assetID)
	if err != nil {
		return nil, err
	}

	stats := &ContributionStats{
		AssetID:          assetID,
		Status:           asset.Status,
		FundingGoal:      asset.FundingGoal(),
		CurrentCollected: asset.CurrentCollected,
		RemainingNeeded:  asset.RemainingNeeded(),
		ContributorCount: len(contributions),
		Contributions:    contributions,
	}
	for _, c := range contributions {
		stats.TotalAmount = stats.TotalAmount.Add(c.Amount)
		stats.TotalExcess = stats.TotalExcess.Add(c.ExcessAmount)
		stats.TotalProfitReceived = stats.TotalProfitReceived.Add(c.TotalProfitReceived)
		if c.IsInvestment && c.ExcessAmount.IsPositive() {
			stats.InvestorCount++
		}
	}
	return stats, nil
}

// UserContributions lists a user's stakes across pools.
func (l *Ledger) UserContributions(ctx context.Context, userID string) ([]*Contribution, error) {
	return l.store.ListUserContributions(ctx, userID)
}

// AssetDistributionHistory lists a pool's sale events.
func (l *Ledger) AssetDistributionHistory(ctx context.Context, assetID string) (*DistributionHistory, error) {
	if _, err := l.Asset(ctx, assetID); err != nil {
		return nil, err
	}
	distributions, err := l.store.ListAssetDistributions(ctx, assetID)
	if err != nil {
		return nil, err
	}

	h := &DistributionHistory{AssetID: assetID, Distributions: distributions}
	for _, d := range distributions {
		h.TotalRevenue = h.TotalRevenue.Add(d.TotalRevenue)
		h.TotalPlatformProfit = h.TotalPlatformProfit.Add(d.PlatformProfit)
		h.TotalContributorProfit = h.TotalContributorProfit.Add(d.ContributorProfit)
		h.TotalShares += d.DistributedShares
	}
	return h, nil
}

// UserProfitShares lists every share paid to a user.
func (l *Ledger) UserProfitShares(ctx context.Context, userID string) (*UserProfitSummary, error) {
	shares, err := l.store.ListUserProfitShares(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &UserProfitSummary{UserID: userID, ByAsset: make(map[string]money.Money), Shares: shares}
	for _, s := range shares {
		summary.Total = summary.Total.Add(s.Amount)
		summary.ByAsset[s.AssetID] = summary.ByAsset[s.AssetID].Add(s.Amount)
	}
	return summary, nil
}

// CheckAccess reports whether userID holds assetID, either by purchase or as a
// contributor to a processed pool.
func (l *Ledger) CheckAccess(ctx context.Context, userID, assetID string) (*AssetAccess, error) {
	asset, err := l.Asset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	access := &AssetAccess{AssetID: assetID, UserID: userID, AccessType: AccessTypeNone}

	purchase, err := l.store.GetPurchase(ctx, userID, assetID)
	switch {
	case err == nil:
		access.HasAccess = true
		access.Purchase = purchase
		access.AccessType = AccessTypePurchase
		if purchase.Source == AccessSourceContribution {
			access.AccessType = AccessTypeContribution
		}
		return access, nil
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	contributions, err := l.store.ListAssetContributions(ctx, assetID)
	if err != nil {
		return nil, err
	}
	for _, c := range contributions {
		if c.UserID != userID {
			continue
		}
		access.Contribution = c
		if asset.Status == AssetStatusAvailable {
			access.Message = "asset processed but access was not granted"
			return access, nil
		}
		access.AccessType = AccessTypeContributionPending
		access.Message = "access is granted once the asset is processed"
		return access, nil
	}
	return access, nil
}
