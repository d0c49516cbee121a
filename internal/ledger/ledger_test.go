package ledger

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"asset-pool-ledger/internal/money"
)

// ============================================================================
// Test helpers
// ============================================================================

var m = money.MustParse

func newTestLedger(t *testing.T) (*Ledger, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return New(store, DefaultConfig(), zerolog.Nop()), store
}

func openPool(t *testing.T, l *Ledger, target, fee string) *Asset {
	t.Helper()
	ratio := money.MustParseRatio(fee)
	asset, err := l.OpenPool(context.Background(), NewPool{
		Title:            "Test asset",
		TargetPrice:      m(target),
		PlatformFeeRatio: &ratio,
	})
	if err != nil {
		t.Fatalf("OpenPool: %v", err)
	}
	return asset
}

func deposit(t *testing.T, l *Ledger, userID, amount string) {
	t.Helper()
	if _, err := l.Deposit(context.Background(), userID, m(amount)); err != nil {
		t.Fatalf("Deposit(%s): %v", userID, err)
	}
}

func contribute(t *testing.T, l *Ledger, userID, assetID, amount string) *ContributionOutcome {
	t.Helper()
	out, err := l.Contribute(context.Background(), userID, assetID, m(amount))
	if err != nil {
		t.Fatalf("Contribute(%s, %s): %v", userID, amount, err)
	}
	return out
}

func mustAsset(t *testing.T, l *Ledger, assetID string) *Asset {
	t.Helper()
	a, err := l.Asset(context.Background(), assetID)
	if err != nil {
		t.Fatalf("Asset: %v", err)
	}
	return a
}

func mustWallet(t *testing.T, l *Ledger, userID string) *Wallet {
	t.Helper()
	w, err := l.Wallet(context.Background(), userID)
	if err != nil {
		t.Fatalf("Wallet: %v", err)
	}
	return w
}

func contributionOf(t *testing.T, store *MemoryStore, userID, assetID string) *Contribution {
	t.Helper()
	list, err := store.ListAssetContributions(context.Background(), assetID)
	if err != nil {
		t.Fatalf("ListAssetContributions: %v", err)
	}
	for _, c := range list {
		if c.UserID == userID {
			return c
		}
	}
	t.Fatalf("no contribution for %s on %s", userID, assetID)
	return nil
}

func assertMoney(t *testing.T, label string, got money.Money, expected string) {
	t.Helper()
	if !got.Equal(m(expected)) {
		t.Errorf("Expected %s %s, got %s", label, expected, got)
	}
}

// fundTwoInvestorPool builds the reference pool: goal 6.00 at a 15% fee,
// user-a with excess 3.00 and user-b with excess 1.00, made available.
func fundTwoInvestorPool(t *testing.T, l *Ledger) *Asset {
	t.Helper()
	asset := openPool(t, l, "5.22", "0.15")
	deposit(t, l, "user-a", "10.00")
	deposit(t, l, "user-b", "10.00")

	if out := contribute(t, l, "user-a", asset.ID, "4.00"); !out.Success || out.FullyFunded {
		t.Fatalf("Expected first contribution to apply without funding, got %+v", out)
	}
	if out := contribute(t, l, "user-b", asset.ID, "2.00"); !out.Success || !out.FullyFunded {
		t.Fatalf("Expected second contribution to fund the pool, got %+v", out)
	}

	res, err := l.ProcessFundedAsset(context.Background(), asset.ID)
	if err != nil || !res.Success {
		t.Fatalf("ProcessFundedAsset: %v %+v", err, res)
	}
	return mustAsset(t, l, asset.ID)
}
