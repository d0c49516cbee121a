package money

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Allocate splits pool across claims in proportion to each claim, capping
// every share at its claim. The split is exact to the cent: each share is
// floored to the minor unit and the cents left over go one at a time to the
// largest fractional remainders, ties resolved by position in claims.
//
// When pool covers every claim in full each claim is paid exactly and the
// surplus is returned as residual. Otherwise residual is zero and the shares
// sum to pool.
func Allocate(pool Money, claims []Money) (shares []Money, residual Money) {
	shares = make([]Money, len(claims))
	if !pool.IsPositive() {
		return shares, Max(pool, Zero)
	}

	owed := make([]int64, len(claims))
	var total int64
	for i, c := range claims {
		if c.IsPositive() {
			owed[i] = c.Cents()
			total += owed[i]
		}
	}
	if total == 0 {
		return shares, pool
	}

	available := pool.Cents()
	if available >= total {
		for i := range claims {
			shares[i] = FromCents(owed[i])
		}
		return shares, FromCents(available - total)
	}

	type part struct {
		index int
		rem   decimal.Decimal
	}
	parts := make([]part, 0, len(claims))
	floors := make([]int64, len(claims))
	var placed int64
	poolD := decimal.NewFromInt(available)
	totalD := decimal.NewFromInt(total)
	for i, o := range owed {
		if o == 0 {
			continue
		}
		q, r := poolD.Mul(decimal.NewFromInt(o)).QuoRem(totalD, 0)
		floors[i] = q.IntPart()
		placed += floors[i]
		parts = append(parts, part{index: i, rem: r})
	}

	// available < total keeps every floor strictly below its claim, so one
	// extra cent never breaks a cap.
	sort.SliceStable(parts, func(a, b int) bool {
		return parts[a].rem.GreaterThan(parts[b].rem)
	})
	// Flooring loses less than a cent per claim, so the leftover is always
	// shorter than parts.
	for k := int64(0); k < available-placed; k++ {
		floors[parts[k].index]++
	}

	for i := range claims {
		shares[i] = FromCents(floors[i])
	}
	return shares, Zero
}
