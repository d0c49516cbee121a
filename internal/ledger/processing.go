package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"asset-pool-ledger/internal/money"
)

// NewPool describes an approved funding request.
type NewPool struct {
	Title            string       `json:"title"`
	TargetPrice      money.Money  `json:"target_price"`
	PlatformFeeRatio *money.Ratio `json:"platform_fee_ratio,omitempty"` // nil uses the configured default
}

// OpenPool creates an asset in COLLECTING. Approval happens upstream.
func (l *Ledger) OpenPool(ctx context.Context, req NewPool) (*Asset, error) {
	fee := l.cfg.DefaultPlatformFee
	if req.PlatformFeeRatio != nil {
		fee = *req.PlatformFeeRatio
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if !req.TargetPrice.IsPositive() {
		return nil, fmt.Errorf("%w: target price must be positive", ErrInvalidInput)
	}
	if fee.IsNegative() || fee.Cmp(money.OneRatio) >= 0 {
		return nil, fmt.Errorf("%w: platform fee ratio must be in [0, 1)", ErrInvalidInput)
	}

	now := l.now()
	asset := &Asset{
		ID:               newID(),
		Title:            strings.TrimSpace(req.Title),
		TargetPrice:      req.TargetPrice,
		PlatformFeeRatio: fee,
		Status:           AssetStatusCollecting,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := l.store.WithTx(ctx, func(tx Tx) error {
		return tx.InsertAsset(ctx, asset)
	}); err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	l.logger.Info().
		Str("asset_id", asset.ID).
		Str("target_price", asset.TargetPrice.String()).
		Str("funding_goal", asset.FundingGoal().String()).
		Msg("Pool opened")
	return asset, nil
}

// ProcessingOutcome reports an administrative transition to AVAILABLE.
type ProcessingOutcome struct {
	Success        bool         `json:"success"`
	Reason         RejectReason `json:"reason,omitempty"`
	Message        string       `json:"message"`
	AssetID        string       `json:"asset_id"`
	PreviousStatus AssetStatus  `json:"previous_status"`
	Status         AssetStatus  `json:"status"`
	Contributors   int          `json:"contributors"`
	Investors      int          `json:"investors"`
	AccessGranted  int          `json:"access_granted"` // contributors given an access record
	TotalExcess    money.Money  `json:"total_excess"`   // owed through future distributions
}

// ProcessFundedAsset opens a purchased asset for resale. A pool still in
// COLLECTING is closed out first exactly as reaching the goal would.
func (l *Ledger) ProcessFundedAsset(ctx context.Context, assetID string) (*ProcessingOutcome, error) {
	var out *ProcessingOutcome
	err := l.withAssetLock(ctx, assetID, func(tx Tx) error {
		asset, err := lockAsset(ctx, tx, assetID)
		if err != nil {
			return err
		}
		out = &ProcessingOutcome{AssetID: assetID, PreviousStatus: asset.Status, Status: asset.Status}

		now := l.now()
		switch asset.Status {
		case AssetStatusPurchased:
		case AssetStatusCollecting:
			if _, err := l.closePool(ctx, tx, asset); err != nil {
				return err
			}
			asset.PurchasedAt = &now
		default:
			out.Reason = ReasonInvalidTransition
			out.Message = fmt.Sprintf("asset is %s, cannot be made available", strings.ToLower(string(asset.Status)))
			return nil
		}

		contributions, err := tx.ListContributions(ctx, assetID)
		if err != nil {
			return fmt.Errorf("list contributions: %w", err)
		}
		out.Contributors = len(contributions)
		out.TotalExcess = money.Zero
		for _, c := range contributions {
			if c.ExcessAmount.IsPositive() {
				out.Investors++
			}
			out.TotalExcess = out.TotalExcess.Add(c.ExcessAmount)

			granted, err := l.grantContributorAccess(ctx, tx, c, now)
			if err != nil {
				return err
			}
			if granted {
				out.AccessGranted++
			}
		}

		asset.Status = AssetStatusAvailable
		asset.AvailableAt = &now
		asset.UpdatedAt = now
		if err := tx.UpdateAsset(ctx, asset); err != nil {
			return fmt.Errorf("update asset: %w", err)
		}

		out.Success = true
		out.Status = asset.Status
		out.Message = fmt.Sprintf("asset available, %s owed to %d investors", l.display(out.TotalExcess), out.Investors)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Success {
		l.logger.Info().
			Str("asset_id", assetID).
			Str("previous_status", string(out.PreviousStatus)).
			Int("contributors", out.Contributors).
			Str("total_excess", out.TotalExcess.String()).
			Msg("Asset made available")
		l.events.PublishPoolAvailable(assetID, out.TotalExcess.String(), out.Contributors)
	}
	return out, nil
}

// grantContributorAccess records that the contributor holds the asset. The
// entry fee is what they paid for it.
func (l *Ledger) grantContributorAccess(ctx context.Context, tx Tx, c *Contribution, now time.Time) (bool, error) {
	if _, err := tx.FindPurchase(ctx, c.UserID, c.AssetID); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, fmt.Errorf("find access for %s: %w", c.UserID, err)
	}
	err := tx.InsertPurchase(ctx, &AssetPurchase{
		ID:        newID(),
		AssetID:   c.AssetID,
		UserID:    c.UserID,
		Price:     l.cfg.EntryFee,
		Source:    AccessSourceContribution,
		CreatedAt: now,
	})
	if err != nil {
		return false, fmt.Errorf("grant access to %s: %w", c.UserID, err)
	}
	return true, nil
}

// Deposit credits the spendable balance, creating the wallet on first use.
func (l *Ledger) Deposit(ctx context.Context, userID string, amount money.Money) (*Wallet, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: deposit must be positive", ErrInvalidInput)
	}

	var wallet *Wallet
	err := l.store.WithTx(ctx, func(tx Tx) error {
		w, err := tx.LockWallet(ctx, userID)
		if errors.Is(err, ErrNotFound) {
			// A concurrent first deposit may insert the row first; lock
			// whichever wallet ends up stored.
			now := l.now()
			if err := tx.InsertWallet(ctx, &Wallet{UserID: userID, CreatedAt: now, UpdatedAt: now}); err != nil {
				return fmt.Errorf("create wallet: %w", err)
			}
			w, err = tx.LockWallet(ctx, userID)
		}
		if err != nil {
			return fmt.Errorf("load wallet: %w", err)
		}

		w.TotalDeposited = w.TotalDeposited.Add(amount)
		if err := l.creditBalance(ctx, tx, w, entry{
			kind:        TxTypeDeposit,
			amount:      amount,
			description: "Deposit",
		}); err != nil {
			return err
		}
		wallet = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info().Str("user_id", userID).Str("amount", amount.String()).Msg("Deposit credited")
	l.events.PublishDeposit(userID, amount.String())
	return wallet, nil
}
