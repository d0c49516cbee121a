package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"asset-pool-ledger/internal/money"
)

// DistributionOutcome reports one sale event.
type DistributionOutcome struct {
	Success           bool           `json:"success"`
	Reason            RejectReason   `json:"reason,omitempty"`
	Message           string         `json:"message"`
	AssetID           string         `json:"asset_id"`
	DistributionID    string         `json:"distribution_id,omitempty"`
	TotalRevenue      money.Money    `json:"total_revenue"`
	PlatformProfit    money.Money    `json:"platform_profit"`
	ContributorProfit money.Money    `json:"contributor_profit"`
	Residual          money.Money    `json:"residual"`
	DistributedCount  int            `json:"distributed_count"`
	Shares            []*ProfitShare `json:"shares,omitempty"`
}

// DistributeProfit splits saleProceeds into the platform cut and the
// contributor cut, then pays the contributor cut down across every investor
// still owed, weighted by what each is still owed right now. Nobody is paid
// past their excess; whatever no investor can absorb is platform profit.
func (l *Ledger) DistributeProfit(ctx context.Context, assetID string, saleProceeds money.Money) (*DistributionOutcome, error) {
	out := &DistributionOutcome{AssetID: assetID}
	if !saleProceeds.IsPositive() {
		out.Reason = ReasonInvalidAmount
		out.Message = "sale proceeds must be positive"
		return out, nil
	}

	err := l.withAssetLock(ctx, assetID, func(tx Tx) error {
		asset, err := lockAsset(ctx, tx, assetID)
		if err != nil {
			return err
		}
		if !asset.Status.Payable() {
			out = &DistributionOutcome{
				AssetID: assetID,
				Reason:  ReasonNotPayable,
				Message: fmt.Sprintf("asset is %s, not available for resale", strings.ToLower(string(asset.Status))),
			}
			return nil
		}

		out, err = l.distribute(ctx, tx, asset, saleProceeds)
		return err
	})
	if err != nil {
		l.logger.Error().Err(err).
			Str("asset_id", assetID).
			Str("proceeds", saleProceeds.String()).
			Msg("Profit distribution failed")
		return nil, err
	}

	l.reportDistribution(out)
	return out, nil
}

// distribute runs the allocation inside tx. asset must already be locked and
// payable.
func (l *Ledger) distribute(ctx context.Context, tx Tx, asset *Asset, proceeds money.Money) (*DistributionOutcome, error) {
	platformProfit := proceeds.Mul(asset.PlatformFeeRatio)
	contributorPool := proceeds.Sub(platformProfit)

	contributions, err := tx.ListContributions(ctx, asset.ID)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	owed := make([]*Contribution, 0, len(contributions))
	claims := make([]money.Money, 0, len(contributions))
	for _, c := range contributions {
		if c.StillOwed() {
			owed = append(owed, c)
			claims = append(claims, c.RemainingOwed())
		}
	}
	totalOwed := money.Sum(claims...)

	// Terminal state: every investor repaid, the whole sale is platform profit
	var shares []money.Money
	residual := contributorPool
	if len(owed) > 0 {
		shares, residual = money.Allocate(contributorPool, claims)
	}
	paid := contributorPool.Sub(residual)
	platformProfit = platformProfit.Add(residual)

	now := l.now()
	dist := &ProfitDistribution{
		ID:                newID(),
		AssetID:           asset.ID,
		TotalRevenue:      proceeds,
		PlatformProfit:    platformProfit,
		ContributorProfit: paid,
		Residual:          residual,
		CreatedAt:         now,
	}
	for _, s := range shares {
		if s.IsPositive() {
			dist.DistributedShares++
		}
	}
	if err := tx.InsertProfitDistribution(ctx, dist); err != nil {
		return nil, fmt.Errorf("insert distribution: %w", err)
	}

	// Lock wallets in user order so concurrent distributions on different
	// assets acquire shared wallets in the same sequence.
	wallets, err := lockPayeeWallets(ctx, tx, owed, shares)
	if err != nil {
		return nil, err
	}

	out := &DistributionOutcome{
		Success:           true,
		AssetID:           asset.ID,
		DistributionID:    dist.ID,
		TotalRevenue:      proceeds,
		PlatformProfit:    platformProfit,
		ContributorProfit: paid,
		Residual:          residual,
		DistributedCount:  dist.DistributedShares,
	}
	for i, c := range owed {
		share := shares[i]
		if !share.IsPositive() {
			continue
		}

		wallet := wallets[c.UserID]
		if err := l.creditWithdrawable(ctx, tx, wallet, entry{
			kind:        TxTypeProfitDistribution,
			amount:      share,
			assetID:     asset.ID,
			referenceID: dist.ID,
			description: fmt.Sprintf("Profit share from %s", asset.Title),
		}); err != nil {
			return nil, err
		}

		c.TotalProfitReceived = c.TotalProfitReceived.Add(share)
		if c.TotalProfitReceived.GreaterThanOrEqual(c.ExcessAmount) {
			c.Status = ContributionStatusConverted
		}
		c.UpdatedAt = now
		if err := tx.UpdateContribution(ctx, c); err != nil {
			return nil, fmt.Errorf("update contribution %s: %w", c.ID, err)
		}

		ps := &ProfitShare{
			ID:             newID(),
			DistributionID: dist.ID,
			ContributionID: c.ID,
			AssetID:        asset.ID,
			UserID:         c.UserID,
			Amount:         share,
			ShareRatio:     money.RatioOf(claims[i], totalOwed),
			SaleProceeds:   proceeds,
			CreatedAt:      now,
		}
		if err := tx.InsertProfitShare(ctx, ps); err != nil {
			return nil, fmt.Errorf("insert profit share: %w", err)
		}
		out.Shares = append(out.Shares, ps)
	}

	asset.TotalRevenue = asset.TotalRevenue.Add(proceeds)
	asset.TotalProfitDistributed = asset.TotalProfitDistributed.Add(paid)
	asset.UpdatedAt = now
	if err := tx.UpdateAsset(ctx, asset); err != nil {
		return nil, fmt.Errorf("update asset: %w", err)
	}

	if paid.IsZero() {
		out.Message = "no investors owed, proceeds recorded as platform profit"
	} else {
		out.Message = fmt.Sprintf("distributed %s across %d investors", l.display(paid), out.DistributedCount)
	}
	return out, nil
}

func lockPayeeWallets(ctx context.Context, tx Tx, owed []*Contribution, shares []money.Money) (map[string]*Wallet, error) {
	userIDs := make([]string, 0, len(owed))
	for i, c := range owed {
		if shares[i].IsPositive() {
			userIDs = append(userIDs, c.UserID)
		}
	}
	sort.Strings(userIDs)

	wallets := make(map[string]*Wallet, len(userIDs))
	for _, id := range userIDs {
		if _, ok := wallets[id]; ok {
			continue
		}
		w, err := lockWallet(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		wallets[id] = w
	}
	return wallets, nil
}

func (l *Ledger) reportDistribution(out *DistributionOutcome) {
	if !out.Success {
		l.logger.Info().
			Str("asset_id", out.AssetID).
			Str("reason", string(out.Reason)).
			Msg("Profit distribution rejected")
		return
	}

	l.logger.Info().
		Str("asset_id", out.AssetID).
		Str("revenue", out.TotalRevenue.String()).
		Str("platform_profit", out.PlatformProfit.String()).
		Str("contributor_profit", out.ContributorProfit.String()).
		Str("residual", out.Residual.String()).
		Int("distributed_count", out.DistributedCount).
		Msg("Profit distributed")
	l.events.PublishProfitDistributed(out.AssetID, out.TotalRevenue.String(), out.PlatformProfit.String(),
		out.ContributorProfit.String(), out.DistributedCount)
}
