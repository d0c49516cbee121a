// Package audit re-checks the ledger's money invariants against stored state.
// It reports violations and never repairs them.
package audit

import (
	"context"
	"fmt"

	"asset-pool-ledger/internal/ledger"
	"asset-pool-ledger/internal/money"
)

// ValidationResult holds the result of auditing one pool
type ValidationResult struct {
	AssetID  string   `json:"asset_id"`
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`   // Broken invariants
	Warnings []string `json:"warnings"` // Drift worth a look
}

func (r *ValidationResult) fail(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.IsValid = false
}

func (r *ValidationResult) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// PoolSnapshot is everything stored about one pool
type PoolSnapshot = ledger.PoolRecords

// Validator checks pool snapshots
type Validator struct {
	// ratioTolerance bounds how far stamped ratios may sum from 1
	ratioTolerance money.Ratio
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{ratioTolerance: money.MustParseRatio("0.000001")}
}

// ValidatePool checks a single pool snapshot
func (v *Validator) ValidatePool(s PoolSnapshot) *ValidationResult {
	a := s.Asset
	result := &ValidationResult{
		AssetID:  a.ID,
		IsValid:  true,
		Errors:   []string{},
		Warnings: []string{},
	}

	// === CONTRIBUTIONS ===

	total := money.Zero
	totalExcess := money.Zero
	received := make(map[string]money.Money, len(s.Contributions))
	for _, c := range s.Contributions {
		total = total.Add(c.Amount)
		totalExcess = totalExcess.Add(c.ExcessAmount)
		received[c.ID] = money.Zero

		if c.ExcessAmount.GreaterThan(c.Amount) {
			result.fail("Contribution %s: excess %s exceeds amount %s", c.ID, c.ExcessAmount, c.Amount)
		}
		if c.TotalProfitReceived.GreaterThan(c.ExcessAmount) {
			result.fail("Contribution %s: received %s exceeds excess %s", c.ID, c.TotalProfitReceived, c.ExcessAmount)
		}
		converted := c.Status == ledger.ContributionStatusConverted
		repaid := c.ExcessAmount.IsPositive() && c.TotalProfitReceived.Equal(c.ExcessAmount)
		if converted != repaid {
			result.fail("Contribution %s: status %s but received %s of %s", c.ID, c.Status, c.TotalProfitReceived, c.ExcessAmount)
		}
	}

	if !total.Equal(a.CurrentCollected) {
		result.fail("Collected mismatch: contributions sum to %s, asset records %s", total, a.CurrentCollected)
	}
	if a.CurrentCollected.GreaterThan(a.FundingGoal()) {
		result.fail("Overfunded: collected %s exceeds goal %s", a.CurrentCollected, a.FundingGoal())
	}

	// === FUNDING ===

	funded := a.Status.Payable()
	if funded {
		ratioSum := money.ZeroRatio
		for _, c := range s.Contributions {
			if !c.IsInvestment {
				result.fail("Contribution %s: not flagged as investment after funding", c.ID)
			}
			ratioSum = ratioSum.Add(c.ProfitShareRatio)
		}
		if totalExcess.IsPositive() {
			drift := ratioSum.Sub(money.OneRatio)
			if drift.IsNegative() {
				drift = money.ZeroRatio.Sub(drift)
			}
			if drift.Cmp(v.ratioTolerance) > 0 {
				result.warn("Stamped ratios sum to %s, expected 1", ratioSum)
			}
		}
	} else if len(s.Distributions) > 0 {
		result.fail("Asset is %s but has %d distributions", a.Status, len(s.Distributions))
	}

	// === DISTRIBUTIONS ===

	revenue := money.Zero
	paid := money.Zero
	sharesByDistribution := make(map[string]money.Money, len(s.Distributions))
	for _, d := range s.Distributions {
		revenue = revenue.Add(d.TotalRevenue)
		paid = paid.Add(d.ContributorProfit)
		sharesByDistribution[d.ID] = money.Zero

		if !d.PlatformProfit.Add(d.ContributorProfit).Equal(d.TotalRevenue) {
			result.fail("Distribution %s: platform %s + contributors %s != revenue %s",
				d.ID, d.PlatformProfit, d.ContributorProfit, d.TotalRevenue)
		}
	}

	for _, p := range s.Shares {
		if _, ok := received[p.ContributionID]; !ok {
			result.fail("Profit share %s references unknown contribution %s", p.ID, p.ContributionID)
			continue
		}
		received[p.ContributionID] = received[p.ContributionID].Add(p.Amount)
		sharesByDistribution[p.DistributionID] = sharesByDistribution[p.DistributionID].Add(p.Amount)
	}

	for _, c := range s.Contributions {
		if !received[c.ID].Equal(c.TotalProfitReceived) {
			result.fail("Contribution %s: shares sum to %s, record says %s", c.ID, received[c.ID], c.TotalProfitReceived)
		}
	}
	for _, d := range s.Distributions {
		if !sharesByDistribution[d.ID].Equal(d.ContributorProfit) {
			result.fail("Distribution %s: shares sum to %s, record says %s", d.ID, sharesByDistribution[d.ID], d.ContributorProfit)
		}
	}

	if !revenue.Equal(a.TotalRevenue) {
		result.fail("Revenue mismatch: distributions sum to %s, asset records %s", revenue, a.TotalRevenue)
	}
	if !paid.Equal(a.TotalProfitDistributed) {
		result.fail("Distributed mismatch: distributions sum to %s, asset records %s", paid, a.TotalProfitDistributed)
	}
	if a.TotalProfitDistributed.GreaterThan(totalExcess) {
		result.fail("Distributed %s exceeds total excess %s", a.TotalProfitDistributed, totalExcess)
	}

	return result
}

// Snapshot reads one pool's state from r. All rows come from a single
// consistent read so a sale committing mid-audit cannot split the pool.
func Snapshot(ctx context.Context, r ledger.Reader, assetID string) (PoolSnapshot, error) {
	records, err := r.GetPoolRecords(ctx, assetID)
	if err != nil {
		return PoolSnapshot{}, fmt.Errorf("read pool %s: %w", assetID, err)
	}
	return *records, nil
}
