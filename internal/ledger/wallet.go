package ledger

import (
	"context"
	"fmt"

	"asset-pool-ledger/internal/money"
)

// entry describes one wallet mutation and the audit row it produces.
type entry struct {
	kind        TransactionType
	amount      money.Money
	assetID     string
	referenceID string
	description string
}

// debitBalance takes amount from the spendable balance. Callers check the
// balance first.
func (l *Ledger) debitBalance(ctx context.Context, tx Tx, w *Wallet, e entry) error {
	before := w.Balance
	w.Balance = w.Balance.Sub(e.amount)
	w.UpdatedAt = l.now()
	if err := tx.UpdateWallet(ctx, w); err != nil {
		return fmt.Errorf("update wallet %s: %w", w.UserID, err)
	}
	return l.appendTransaction(ctx, tx, w.UserID, e, before, w.Balance)
}

// creditBalance adds amount to the spendable balance.
func (l *Ledger) creditBalance(ctx context.Context, tx Tx, w *Wallet, e entry) error {
	before := w.Balance
	w.Balance = w.Balance.Add(e.amount)
	w.UpdatedAt = l.now()
	if err := tx.UpdateWallet(ctx, w); err != nil {
		return fmt.Errorf("update wallet %s: %w", w.UserID, err)
	}
	return l.appendTransaction(ctx, tx, w.UserID, e, before, w.Balance)
}

// creditWithdrawable adds earned profit to the withdrawable balance.
func (l *Ledger) creditWithdrawable(ctx context.Context, tx Tx, w *Wallet, e entry) error {
	before := w.WithdrawableBalance
	w.WithdrawableBalance = w.WithdrawableBalance.Add(e.amount)
	w.TotalProfitReceived = w.TotalProfitReceived.Add(e.amount)
	w.UpdatedAt = l.now()
	if err := tx.UpdateWallet(ctx, w); err != nil {
		return fmt.Errorf("update wallet %s: %w", w.UserID, err)
	}
	return l.appendTransaction(ctx, tx, w.UserID, e, before, w.WithdrawableBalance)
}

func (l *Ledger) appendTransaction(ctx context.Context, tx Tx, userID string, e entry, before, after money.Money) error {
	t := &Transaction{
		ID:            newID(),
		UserID:        userID,
		Type:          e.kind,
		Amount:        e.amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		AssetID:       e.assetID,
		ReferenceID:   e.referenceID,
		Description:   e.description,
		CreatedAt:     l.now(),
	}
	if err := tx.InsertTransaction(ctx, t); err != nil {
		return fmt.Errorf("insert %s transaction: %w", e.kind, err)
	}
	return nil
}
