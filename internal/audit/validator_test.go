package audit

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"asset-pool-ledger/internal/ledger"
	"asset-pool-ledger/internal/money"
)

// ============================================================================
// Test helpers
// ============================================================================

var m = money.MustParse

// fundedPool builds a pool funded by two investors (excess 3.00 and 1.00)
// with two sales distributed against it.
func fundedPool(t *testing.T) (*ledger.Ledger, *ledger.MemoryStore, string) {
	t.Helper()
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	l := ledger.New(store, ledger.DefaultConfig(), zerolog.Nop())

	fee := money.MustParseRatio("0.15")
	asset, err := l.OpenPool(ctx, ledger.NewPool{Title: "Audit asset", TargetPrice: m("5.22"), PlatformFeeRatio: &fee})
	if err != nil {
		t.Fatalf("OpenPool: %v", err)
	}
	for _, u := range []string{"user-a", "user-b"} {
		if _, err := l.Deposit(ctx, u, m("10.00")); err != nil {
			t.Fatalf("Deposit: %v", err)
		}
	}
	if _, err := l.Contribute(ctx, "user-a", asset.ID, m("4.00")); err != nil {
		t.Fatalf("Contribute: %v", err)
	}
	if _, err := l.Contribute(ctx, "user-b", asset.ID, m("2.00")); err != nil {
		t.Fatalf("Contribute: %v", err)
	}
	if _, err := l.ProcessFundedAsset(ctx, asset.ID); err != nil {
		t.Fatalf("ProcessFundedAsset: %v", err)
	}
	for i := 0; i < 2; i++ {
		if out, err := l.DistributeProfit(ctx, asset.ID, m("1.00")); err != nil || !out.Success {
			t.Fatalf("DistributeProfit: %v %+v", err, out)
		}
	}
	return l, store, asset.ID
}

func snapshot(t *testing.T, store *ledger.MemoryStore, assetID string) PoolSnapshot {
	t.Helper()
	s, err := Snapshot(context.Background(), store, assetID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return s
}

func hasError(r *ValidationResult, substr string) bool {
	for _, e := range r.Errors {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

// ============================================================================
// ValidatePool
// ============================================================================

func TestValidatePool_CleanPool(t *testing.T) {
	_, store, assetID := fundedPool(t)

	result := NewValidator().ValidatePool(snapshot(t, store, assetID))
	if !result.IsValid {
		t.Errorf("Expected clean pool to pass, got %v", result.Errors)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", result.Warnings)
	}
}

func TestValidatePool_CollectingPool(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	l := ledger.New(store, ledger.DefaultConfig(), zerolog.Nop())
	asset, _ := l.OpenPool(ctx, ledger.NewPool{Title: "Open", TargetPrice: m("100.00")})
	l.Deposit(ctx, "user-a", m("10.00"))
	l.Contribute(ctx, "user-a", asset.ID, m("5.00"))

	result := NewValidator().ValidatePool(snapshot(t, store, asset.ID))
	if !result.IsValid {
		t.Errorf("Expected collecting pool to pass, got %v", result.Errors)
	}
}

func TestValidatePool_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PoolSnapshot)
		want   string
	}{
		{
			name:   "collected drift",
			mutate: func(s *PoolSnapshot) { s.Asset.CurrentCollected = s.Asset.CurrentCollected.Add(m("0.01")) },
			want:   "Collected mismatch",
		},
		{
			name: "received over cap",
			mutate: func(s *PoolSnapshot) {
				s.Contributions[0].TotalProfitReceived = s.Contributions[0].ExcessAmount.Add(m("0.01"))
			},
			want: "exceeds excess",
		},
		{
			name: "converted while owed",
			mutate: func(s *PoolSnapshot) {
				s.Contributions[0].Status = ledger.ContributionStatusConverted
			},
			want: "status CONVERTED_TO_INVESTMENT",
		},
		{
			name:   "distribution does not balance",
			mutate: func(s *PoolSnapshot) { s.Distributions[0].PlatformProfit = s.Distributions[0].PlatformProfit.Add(m("0.01")) },
			want:   "!= revenue",
		},
		{
			name:   "missing share",
			mutate: func(s *PoolSnapshot) { s.Shares = s.Shares[1:] },
			want:   "shares sum to",
		},
		{
			name:   "revenue drift",
			mutate: func(s *PoolSnapshot) { s.Asset.TotalRevenue = m("99.00") },
			want:   "Revenue mismatch",
		},
		{
			name:   "distributed drift",
			mutate: func(s *PoolSnapshot) { s.Asset.TotalProfitDistributed = m("0.01") },
			want:   "Distributed mismatch",
		},
		{
			name:   "not flagged as investment",
			mutate: func(s *PoolSnapshot) { s.Contributions[1].IsInvestment = false },
			want:   "not flagged as investment",
		},
		{
			name: "distribution before funding",
			mutate: func(s *PoolSnapshot) {
				s.Asset.Status = ledger.AssetStatusCollecting
			},
			want: "has 2 distributions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, store, assetID := fundedPool(t)
			snap := snapshot(t, store, assetID)
			tt.mutate(&snap)

			result := NewValidator().ValidatePool(snap)
			if result.IsValid {
				t.Fatal("Expected audit failure")
			}
			if !hasError(result, tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, result.Errors)
			}
		})
	}
}

func TestValidatePool_RatioDriftIsWarning(t *testing.T) {
	_, store, assetID := fundedPool(t)
	snap := snapshot(t, store, assetID)
	snap.Contributions[0].ProfitShareRatio = money.MustParseRatio("0.5")

	result := NewValidator().ValidatePool(snap)
	if !result.IsValid {
		t.Errorf("Expected ratio drift to only warn, got %v", result.Errors)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("Expected 1 warning, got %v", result.Warnings)
	}
}

// ============================================================================
// Scheduler
// ============================================================================

type recordingPublisher struct {
	mu     sync.Mutex
	failed map[string][]string
}

func (p *recordingPublisher) PublishAuditFailed(assetID string, violations []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failed == nil {
		p.failed = make(map[string][]string)
	}
	p.failed[assetID] = violations
}

func (p *recordingPublisher) PublishError(source, message string, err error) {}

func TestScheduler_RunOnce(t *testing.T) {
	_, store, assetID := fundedPool(t)
	pub := &recordingPublisher{}
	s := NewScheduler(store, pub, zerolog.Nop())

	report, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Pools != 1 || len(report.Failed) != 0 {
		t.Fatalf("Expected 1 clean pool, got %+v", report)
	}

	// Corrupt the stored asset behind the ledger's back
	err = store.WithTx(context.Background(), func(tx ledger.Tx) error {
		a, err := tx.LockAsset(context.Background(), assetID)
		if err != nil {
			return err
		}
		a.TotalRevenue = a.TotalRevenue.Add(m("1.00"))
		return tx.UpdateAsset(context.Background(), a)
	})
	if err != nil {
		t.Fatalf("corrupt asset: %v", err)
	}

	report, err = s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(report.Failed) != 1 || report.Failed[0].AssetID != assetID {
		t.Fatalf("Expected the pool to fail audit, got %+v", report)
	}
	if len(pub.failed[assetID]) == 0 {
		t.Error("Expected AUDIT_FAILED to be published")
	}
	if s.LastReport() != report {
		t.Error("Expected LastReport to return the latest run")
	}
}

// saleDuringRead sells the asset once, right after the first pool read returns
type saleDuringRead struct {
	*ledger.MemoryStore
	l    *ledger.Ledger
	t    *testing.T
	sold bool
}

func (r *saleDuringRead) sell(assetID string) {
	if r.sold {
		return
	}
	r.sold = true
	if out, err := r.l.DistributeProfit(context.Background(), assetID, m("1.00")); err != nil || !out.Success {
		r.t.Fatalf("DistributeProfit: %v %+v", err, out)
	}
}

func (r *saleDuringRead) GetAsset(ctx context.Context, assetID string) (*ledger.Asset, error) {
	a, err := r.MemoryStore.GetAsset(ctx, assetID)
	r.sell(assetID)
	return a, err
}

func (r *saleDuringRead) GetPoolRecords(ctx context.Context, assetID string) (*ledger.PoolRecords, error) {
	records, err := r.MemoryStore.GetPoolRecords(ctx, assetID)
	r.sell(assetID)
	return records, err
}

func TestScheduler_SaleDuringAuditIsNotAFailure(t *testing.T) {
	l, store, assetID := fundedPool(t)
	reader := &saleDuringRead{MemoryStore: store, l: l, t: t}
	pub := &recordingPublisher{}

	report, err := NewScheduler(reader, pub, zerolog.Nop()).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !reader.sold {
		t.Fatal("Expected the sale to run during the audit")
	}
	if len(report.Failed) != 0 {
		t.Fatalf("Expected no failures, got %v", report.Failed[0].Errors)
	}
	if len(pub.failed) != 0 {
		t.Errorf("Expected no AUDIT_FAILED events, got %v", pub.failed)
	}

	after := snapshot(t, store, assetID)
	if !after.Asset.TotalRevenue.Equal(m("3.00")) {
		t.Errorf("Expected revenue 3.00 after the sale, got %s", after.Asset.TotalRevenue)
	}
	if result := NewValidator().ValidatePool(after); !result.IsValid {
		t.Errorf("Expected pool to stay valid after the sale, got %v", result.Errors)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(ledger.NewMemoryStore(), nil, zerolog.Nop())

	if err := s.Start("not a schedule"); err == nil {
		t.Fatal("Expected invalid schedule to fail")
	}
	if err := s.Start("@every 1h"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start("@every 1h"); err == nil {
		t.Error("Expected second Start to fail")
	}
	s.Stop()
	s.Stop()
}
