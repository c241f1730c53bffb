package promo

import (
	"strings"
	"time"

	"github.com/gerai-id/backend-gerai/internal/money"
)

// Winner is the entry that won the price competition for one unit.
type Winner struct {
	Price money.Amount
	Attr  Attribution
}

// Index maps units to their winning promotion entry. It is built once per
// request from an active-promotions snapshot and is safe for concurrent reads.
type Index struct {
	winners map[Unit]candidate
}

type candidate struct {
	price   money.Amount
	attr    Attribution
	startAt time.Time
}

// BuildIndex filters promotions active at now, discards entries priced above
// the declared base for their unit, and keeps the single best entry per unit.
// The winner is the lowest adjusted price; equal prices go to the promotion
// with the earlier start, then to the smaller promotion id, so rebuilding from
// identical input always yields an identical index.
//
// basePrices carries the declared base price per unit. Entries for units
// without a declared base are kept; the resolver re-checks them against the
// node it resolves.
func BuildIndex(promotions []Promotion, basePrices map[Unit]money.Amount, now time.Time) *Index {
	ix := &Index{winners: make(map[Unit]candidate)}
	for _, p := range promotions {
		if !p.ActiveAt(now) {
			continue
		}
		attr := Attribution{PromotionID: p.ID, Kind: p.Kind, Name: p.Name}
		for _, e := range p.Entries {
			if e.Price < 0 {
				continue
			}
			if base, ok := basePrices[e.Unit]; ok && e.Price > base {
				// A promotion may never raise a price. Dropped, not applied.
				continue
			}
			next := candidate{price: e.Price, attr: attr, startAt: p.StartAt}
			cur, exists := ix.winners[e.Unit]
			if !exists || next.beats(cur) {
				ix.winners[e.Unit] = next
			}
		}
	}
	return ix
}

// beats reports whether c wins over other under the total order: lower price,
// then earlier start, then smaller promotion id.
func (c candidate) beats(other candidate) bool {
	if c.price != other.price {
		return c.price < other.price
	}
	if !c.startAt.Equal(other.startAt) {
		return c.startAt.Before(other.startAt)
	}
	return strings.Compare(c.attr.PromotionID.String(), other.attr.PromotionID.String()) < 0
}

// Lookup returns the winning entry for the exact unit, if any. Fallback across
// specificity levels is the resolver's job.
func (ix *Index) Lookup(u Unit) (Winner, bool) {
	if ix == nil {
		return Winner{}, false
	}
	c, ok := ix.winners[u]
	if !ok {
		return Winner{}, false
	}
	return Winner{Price: c.price, Attr: c.attr}, true
}

// Len reports how many units have a winning entry.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.winners)
}
