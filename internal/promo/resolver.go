package promo

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gerai-id/backend-gerai/internal/money"
	"github.com/gerai-id/backend-gerai/internal/obs"
)

// ProductTree is the base-price snapshot the caller supplies for one product.
// The engine never invents a price: every node carries its own base.
type ProductTree struct {
	ProductID uuid.UUID
	BasePrice money.Amount
	Variants  []VariantNode
}

// VariantNode is one variant with its sub-variant combinations.
type VariantNode struct {
	VariantID uuid.UUID
	BasePrice money.Amount
	Combos    []CombinationNode
}

// CombinationNode is the most specific priceable unit.
type CombinationNode struct {
	CombinationID uuid.UUID
	BasePrice     money.Amount
}

// BasePricesOf flattens a tree into the per-unit map the index builder uses
// to validate entries at build time.
func BasePricesOf(tree ProductTree) map[Unit]money.Amount {
	out := map[Unit]money.Amount{
		ProductUnit(tree.ProductID): tree.BasePrice,
	}
	for _, v := range tree.Variants {
		out[VariantUnit(tree.ProductID, v.VariantID)] = v.BasePrice
		for _, c := range v.Combos {
			out[CombinationUnit(tree.ProductID, v.VariantID, c.CombinationID)] = c.BasePrice
		}
	}
	return out
}

// ResolvedPrice is the outcome for a single unit. Winner is nil when no
// promotion applied; an entry equal to the base price still attributes.
type ResolvedPrice struct {
	Unit           Unit         `json:"-"`
	BasePrice      money.Amount `json:"basePrice"`
	EffectivePrice money.Amount `json:"effectivePrice"`
	Winner         *Attribution `json:"promotion,omitempty"`
}

// ResolvedVariant pairs a variant's resolved price with its combinations.
type ResolvedVariant struct {
	VariantID uuid.UUID       `json:"variantId"`
	Price     ResolvedPrice   `json:"price"`
	Combos    []ResolvedCombo `json:"combinations,omitempty"`
}

// ResolvedCombo is a resolved combination price.
type ResolvedCombo struct {
	CombinationID uuid.UUID     `json:"combinationId"`
	Price         ResolvedPrice `json:"price"`
}

// ResolvedTree mirrors the input tree with effective prices and attribution.
type ResolvedTree struct {
	ProductID uuid.UUID         `json:"productId"`
	Price     ResolvedPrice     `json:"price"`
	Variants  []ResolvedVariant `json:"variants,omitempty"`
}

// Resolver applies a promotion index to product trees. Strict mode turns
// invariant violations into panics; otherwise they degrade to no-discount and
// are logged for investigation.
type Resolver struct {
	Strict bool
	Log    zerolog.Logger
}

// Resolve computes the effective price for every unit in the tree. Each node
// tries its own specificity level first and falls back towards the product
// level, so one product-level entry can price every variant and combination
// that has nothing more specific. Exactly one promotion applies per unit.
func (rs Resolver) Resolve(tree ProductTree, ix *Index) ResolvedTree {
	productUnit := ProductUnit(tree.ProductID)
	out := ResolvedTree{
		ProductID: tree.ProductID,
		Price:     rs.resolveUnit(tree.BasePrice, ix, productUnit),
	}
	for _, v := range tree.Variants {
		variantUnit := VariantUnit(tree.ProductID, v.VariantID)
		rv := ResolvedVariant{
			VariantID: v.VariantID,
			Price:     rs.resolveUnit(v.BasePrice, ix, variantUnit, productUnit),
		}
		for _, c := range v.Combos {
			comboUnit := CombinationUnit(tree.ProductID, v.VariantID, c.CombinationID)
			rv.Combos = append(rv.Combos, ResolvedCombo{
				CombinationID: c.CombinationID,
				Price:         rs.resolveUnit(c.BasePrice, ix, comboUnit, variantUnit, productUnit),
			})
		}
		out.Variants = append(out.Variants, rv)
	}
	return out
}

// resolveUnit tries each lookup unit from most to least specific. An entry
// that would raise the node's price is invalid data: it is skipped and the
// fallback continues, matching how the index treats such entries at build
// time when the base was known.
func (rs Resolver) resolveUnit(base money.Amount, ix *Index, units ...Unit) ResolvedPrice {
	resolved := ResolvedPrice{Unit: units[0], BasePrice: base, EffectivePrice: base}
	for _, u := range units {
		w, ok := ix.Lookup(u)
		if !ok {
			continue
		}
		if w.Price > base {
			rs.invariant(u, base, w)
			continue
		}
		attr := w.Attr
		resolved.EffectivePrice = w.Price
		resolved.Winner = &attr
		break
	}
	return resolved
}

func (rs Resolver) invariant(u Unit, base money.Amount, w Winner) {
	if rs.Strict {
		panic(fmt.Sprintf("promo: entry %s for unit %v prices above base (%d > %d)",
			w.Attr.PromotionID, u, w.Price, base))
	}
	if obs.PriceInvariantSkips != nil {
		obs.PriceInvariantSkips.Inc()
	}
	rs.Log.Warn().
		Str("promotion_id", w.Attr.PromotionID.String()).
		Str("product_id", u.ProductID.String()).
		Int64("adjusted", w.Price.Int64()).
		Int64("base", base.Int64()).
		Msg("promotion entry prices above base, skipped")
}

// Resolve is a convenience wrapper using a lenient resolver with a silent logger.
func Resolve(tree ProductTree, ix *Index) ResolvedTree {
	return Resolver{Log: zerolog.Nop()}.Resolve(tree, ix)
}
