package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"asset-pool-ledger/internal/money"
)

// PurchaseOutcome reports a resale and the distribution it triggered.
type PurchaseOutcome struct {
	Success      bool                 `json:"success"`
	Reason       RejectReason         `json:"reason,omitempty"`
	Message      string               `json:"message"`
	AssetID      string               `json:"asset_id"`
	UserID       string               `json:"user_id"`
	PurchaseID   string               `json:"purchase_id,omitempty"`
	Price        money.Money          `json:"price"`
	Distribution *DistributionOutcome `json:"distribution,omitempty"`
}

// Purchase sells an available asset to buyerID for price and distributes the
// proceeds in the same transaction. Contributors to the pool and repeat
// buyers are turned away.
func (l *Ledger) Purchase(ctx context.Context, buyerID, assetID string, price money.Money) (*PurchaseOutcome, error) {
	if !price.IsPositive() {
		return &PurchaseOutcome{
			AssetID: assetID, UserID: buyerID, Price: price,
			Reason: ReasonInvalidAmount, Message: "price must be positive",
		}, nil
	}

	var out *PurchaseOutcome
	err := l.withAssetLock(ctx, assetID, func(tx Tx) error {
		out = &PurchaseOutcome{AssetID: assetID, UserID: buyerID, Price: price}

		asset, err := lockAsset(ctx, tx, assetID)
		if err != nil {
			return err
		}
		if asset.Status != AssetStatusAvailable {
			out.Reason = ReasonNotAvailable
			out.Message = fmt.Sprintf("asset is %s, not available for purchase", strings.ToLower(string(asset.Status)))
			return nil
		}

		contribution, err := findContribution(ctx, tx, buyerID, assetID)
		if err != nil {
			return fmt.Errorf("find contribution: %w", err)
		}
		if contribution != nil {
			out.Reason = ReasonAlreadyContributed
			out.Message = "contributors already have access to this asset"
			return nil
		}
		if _, err := tx.FindPurchase(ctx, buyerID, assetID); err == nil {
			out.Reason = ReasonAlreadyPurchased
			out.Message = "asset already purchased"
			return nil
		} else if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("find purchase: %w", err)
		}

		wallet, err := lockWallet(ctx, tx, buyerID)
		if err != nil {
			return err
		}
		if wallet.Balance.LessThan(price) {
			out.Reason = ReasonInsufficientBalance
			out.Message = fmt.Sprintf("insufficient balance: have %s, need %s", l.display(wallet.Balance), l.display(price))
			return nil
		}

		purchase := &AssetPurchase{
			ID:        newID(),
			AssetID:   assetID,
			UserID:    buyerID,
			Price:     price,
			Source:    AccessSourcePurchase,
			CreatedAt: l.now(),
		}
		if err := tx.InsertPurchase(ctx, purchase); err != nil {
			return fmt.Errorf("insert purchase: %w", err)
		}
		if err := l.debitBalance(ctx, tx, wallet, entry{
			kind:        TxTypePurchase,
			amount:      price,
			assetID:     assetID,
			referenceID: purchase.ID,
			description: fmt.Sprintf("Purchase of %s", asset.Title),
		}); err != nil {
			return err
		}

		dist, err := l.distribute(ctx, tx, asset, price)
		if err != nil {
			return err
		}

		out.Success = true
		out.PurchaseID = purchase.ID
		out.Distribution = dist
		out.Message = "purchase completed"
		return nil
	})
	if err != nil {
		l.logger.Error().Err(err).Str("asset_id", assetID).Str("user_id", buyerID).Msg("Purchase failed")
		return nil, err
	}

	if !out.Success {
		l.logger.Info().
			Str("asset_id", assetID).
			Str("user_id", buyerID).
			Str("reason", string(out.Reason)).
			Msg("Purchase rejected")
		return out, nil
	}

	l.logger.Info().Str("asset_id", assetID).Str("user_id", buyerID).Str("price", price.String()).Msg("Asset purchased")
	l.events.PublishAssetPurchased(assetID, buyerID, price.String())
	l.reportDistribution(out.Distribution)
	return out, nil
}
