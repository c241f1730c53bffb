package voucher

import (
	"sort"
	"strings"

	"github.com/gerai-id/backend-gerai/internal/money"
)

// Ranked pairs an eligible voucher with the discount it would yield against
// the current subtotal.
type Ranked struct {
	Voucher  Voucher
	Discount money.Amount
}

// Discount computes the monetary benefit of applying v to subtotal. Percent
// vouchers floor; fixed vouchers cap at the subtotal so the net never goes
// below zero. Unknown kinds yield no discount.
func Discount(v Voucher, subtotal money.Amount) money.Amount {
	switch v.Kind {
	case KindPercent:
		return subtotal.Percent(v.Value)
	case KindFixed:
		if v.Value < 0 {
			return 0
		}
		return money.Min(money.Amount(v.Value), subtotal)
	default:
		return 0
	}
}

// Rank orders already-eligible vouchers best-first by discount. Ties break on
// fewer restrictions (unrestricted scope first), then earlier end date, then
// code order, so the result never depends on input order.
func Rank(vouchers []Voucher, subtotal money.Amount) []Ranked {
	out := make([]Ranked, 0, len(vouchers))
	for _, v := range vouchers {
		out = append(out, Ranked{Voucher: v, Discount: Discount(v, subtotal)})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Discount != b.Discount {
			return a.Discount > b.Discount
		}
		au, bu := a.Voucher.Scope.Unrestricted(), b.Voucher.Scope.Unrestricted()
		if au != bu {
			return au
		}
		if !a.Voucher.EndAt.Equal(b.Voucher.EndAt) {
			return a.Voucher.EndAt.Before(b.Voucher.EndAt)
		}
		return strings.Compare(a.Voucher.Code, b.Voucher.Code) < 0
	})
	return out
}
