package ledger

import (
	"context"
	"fmt"
	"strings"

	"asset-pool-ledger/internal/money"
)

// ContributionOutcome reports what a contribute call did. A rejected call has
// Success false, a Reason, and changed nothing.
type ContributionOutcome struct {
	Success         bool         `json:"success"`
	Reason          RejectReason `json:"reason,omitempty"`
	Message         string       `json:"message"`
	AssetID         string       `json:"asset_id"`
	UserID          string       `json:"user_id"`
	ContributionID  string       `json:"contribution_id,omitempty"`
	RequestedAmount money.Money  `json:"requested_amount"`
	AppliedAmount   money.Money  `json:"applied_amount"`
	ExcessAmount    money.Money  `json:"excess_amount"`
	FullyFunded     bool         `json:"fully_funded"`
	RemainingNeeded money.Money  `json:"remaining_needed"`
}

func (o *ContributionOutcome) reject(reason RejectReason, msg string) {
	o.Success = false
	o.Reason = reason
	o.Message = msg
}

// closeout summarizes a pool that reached its goal.
type closeout struct {
	contributors int
	investors    int
	collected    money.Money
	totalExcess  money.Money
}

// Contribute applies one contribution from userID to assetID as a single
// transaction. The applied amount is clipped to the remaining gap, the first
// EntryFee of a new contributor is excluded from the excess, and the pool
// closes (COLLECTING -> PURCHASED) when the goal is reached.
func (l *Ledger) Contribute(ctx context.Context, userID, assetID string, requested money.Money) (*ContributionOutcome, error) {
	out := &ContributionOutcome{AssetID: assetID, UserID: userID, RequestedAmount: requested}
	if requested.LessThan(l.cfg.MinimumContribution) {
		out.reject(ReasonMinimumNotMet, fmt.Sprintf("minimum contribution is %s", l.display(l.cfg.MinimumContribution)))
		l.logRejection(out)
		return out, nil
	}

	var closed *closeout
	err := l.withAssetLock(ctx, assetID, func(tx Tx) error {
		// Reset per attempt; the store may retry.
		*out = ContributionOutcome{AssetID: assetID, UserID: userID, RequestedAmount: requested}
		closed = nil

		asset, err := lockAsset(ctx, tx, assetID)
		if err != nil {
			return err
		}
		if asset.Status != AssetStatusCollecting {
			out.reject(ReasonNotCollecting, fmt.Sprintf("asset is %s, not accepting contributions", strings.ToLower(string(asset.Status))))
			return nil
		}

		wallet, err := lockWallet(ctx, tx, userID)
		if err != nil {
			return err
		}
		if wallet.Balance.LessThan(requested) {
			out.reject(ReasonInsufficientBalance, fmt.Sprintf("insufficient balance: have %s, need %s",
				l.display(wallet.Balance), l.display(requested)))
			return nil
		}

		remaining := asset.RemainingNeeded()
		if remaining.IsZero() {
			out.reject(ReasonFullyFunded, "asset is already fully funded")
			return nil
		}

		// 1. Clip to the gap so the pool never overshoots its goal
		applied := money.Min(requested, remaining)

		// 2. Entry fee applies once per contributor per pool
		existing, err := findContribution(ctx, tx, userID, assetID)
		if err != nil {
			return fmt.Errorf("find contribution: %w", err)
		}
		excess := applied
		if existing == nil {
			excess = money.Max(money.Zero, applied.Sub(l.cfg.EntryFee))
		}

		// 3. Upsert the contribution record
		now := l.now()
		contribution := existing
		if contribution == nil {
			contribution = &Contribution{
				ID:        newID(),
				UserID:    userID,
				AssetID:   assetID,
				Status:    ContributionStatusActive,
				CreatedAt: now,
			}
		}
		contribution.Amount = contribution.Amount.Add(applied)
		contribution.ExcessAmount = contribution.ExcessAmount.Add(excess)
		contribution.IsInvestment = contribution.IsInvestment || contribution.ExcessAmount.IsPositive()
		contribution.UpdatedAt = now
		if existing == nil {
			err = tx.InsertContribution(ctx, contribution)
		} else {
			err = tx.UpdateContribution(ctx, contribution)
		}
		if err != nil {
			return fmt.Errorf("save contribution: %w", err)
		}

		// 4. Debit the contributor
		if err := l.debitBalance(ctx, tx, wallet, entry{
			kind:        TxTypeContribution,
			amount:      applied,
			assetID:     assetID,
			referenceID: contribution.ID,
			description: fmt.Sprintf("Contribution to %s", asset.Title),
		}); err != nil {
			return err
		}

		// 5. Accumulate the pool and close it out on reaching the goal
		asset.CurrentCollected = asset.CurrentCollected.Add(applied)
		asset.UpdatedAt = now
		fullyFunded := asset.CurrentCollected.GreaterThanOrEqual(asset.FundingGoal())
		if fullyFunded {
			asset.Status = AssetStatusPurchased
			asset.PurchasedAt = &now
			closed, err = l.closePool(ctx, tx, asset)
			if err != nil {
				return err
			}
		}
		if err := tx.UpdateAsset(ctx, asset); err != nil {
			return fmt.Errorf("update asset: %w", err)
		}

		out.Success = true
		out.ContributionID = contribution.ID
		out.AppliedAmount = applied
		out.ExcessAmount = excess
		out.FullyFunded = fullyFunded
		out.RemainingNeeded = asset.RemainingNeeded()
		if fullyFunded {
			out.Message = "contribution applied, asset fully funded"
		} else {
			out.Message = fmt.Sprintf("contribution applied, %s still needed", l.display(out.RemainingNeeded))
		}
		return nil
	})
	if err != nil {
		l.logger.Error().Err(err).
			Str("asset_id", assetID).
			Str("user_id", userID).
			Str("requested", requested.String()).
			Msg("Contribution failed")
		return nil, err
	}

	if !out.Success {
		l.logRejection(out)
		return out, nil
	}

	l.logger.Info().
		Str("asset_id", assetID).
		Str("user_id", userID).
		Str("applied", out.AppliedAmount.String()).
		Str("excess", out.ExcessAmount.String()).
		Bool("fully_funded", out.FullyFunded).
		Msg("Contribution applied")
	l.events.PublishContributionApplied(assetID, userID, out.AppliedAmount.String(), out.ExcessAmount.String(), out.RemainingNeeded.String())
	if closed != nil {
		l.logger.Info().
			Str("asset_id", assetID).
			Int("contributors", closed.contributors).
			Int("investors", closed.investors).
			Str("total_excess", closed.totalExcess.String()).
			Msg("Pool fully funded")
		l.events.PublishPoolFunded(assetID, closed.collected.String(), closed.contributors)
	}
	return out, nil
}

// closePool flags every contribution as an investment and stamps each
// positive-excess contribution with its reporting share of the total excess.
func (l *Ledger) closePool(ctx context.Context, tx Tx, asset *Asset) (*closeout, error) {
	contributions, err := tx.ListContributions(ctx, asset.ID)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}

	summary := &closeout{contributors: len(contributions), collected: asset.CurrentCollected}
	for _, c := range contributions {
		summary.totalExcess = summary.totalExcess.Add(c.ExcessAmount)
	}

	now := l.now()
	for _, c := range contributions {
		c.IsInvestment = true
		c.ProfitShareRatio = money.ZeroRatio
		if c.ExcessAmount.IsPositive() {
			c.ProfitShareRatio = money.RatioOf(c.ExcessAmount, summary.totalExcess)
			summary.investors++
		}
		c.UpdatedAt = now
		if err := tx.UpdateContribution(ctx, c); err != nil {
			return nil, fmt.Errorf("stamp contribution %s: %w", c.ID, err)
		}
	}
	return summary, nil
}

func (l *Ledger) logRejection(out *ContributionOutcome) {
	l.logger.Info().
		Str("asset_id", out.AssetID).
		Str("user_id", out.UserID).
		Str("requested", out.RequestedAmount.String()).
		Str("reason", string(out.Reason)).
		Msg("Contribution rejected")
}
