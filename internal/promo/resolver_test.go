package promo

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gerai-id/backend-gerai/internal/money"
)

// Scenario A: a product-level event price covers variants without their own entry.
func TestResolveProductLevelFallback(t *testing.T) {
	prod := uuid.New()
	v1 := uuid.New()
	tree := ProductTree{
		ProductID: prod,
		BasePrice: 100_000,
		Variants:  []VariantNode{{VariantID: v1, BasePrice: 100_000}},
	}
	e1 := activePromotion("11111111-1111-1111-1111-111111111111", KindEvent,
		Entry{Unit: ProductUnit(prod), Price: 90_000})

	got := Resolve(tree, BuildIndex([]Promotion{e1}, nil, testNow))

	require.Equal(t, money.Amount(90_000), got.Price.EffectivePrice)
	require.Len(t, got.Variants, 1)
	v := got.Variants[0].Price
	require.Equal(t, money.Amount(90_000), v.EffectivePrice)
	require.NotNil(t, v.Winner)
	require.Equal(t, e1.ID, v.Winner.PromotionID)
	require.Equal(t, KindEvent, v.Winner.Kind)
}

// Scenario B: a more specific entry overrides only its own variant; siblings
// keep resolving through the product level.
func TestResolveSpecificityWithoutLeakage(t *testing.T) {
	prod := uuid.New()
	v1 := uuid.New()
	v2 := uuid.New()
	tree := ProductTree{
		ProductID: prod,
		BasePrice: 100_000,
		Variants: []VariantNode{
			{VariantID: v1, BasePrice: 100_000},
			{VariantID: v2, BasePrice: 100_000},
		},
	}
	e1 := activePromotion("11111111-1111-1111-1111-111111111111", KindEvent,
		Entry{Unit: ProductUnit(prod), Price: 90_000})
	c1 := activePromotion("22222222-2222-2222-2222-222222222222", KindCampaign,
		Entry{Unit: VariantUnit(prod, v1), Price: 80_000})

	got := Resolve(tree, BuildIndex([]Promotion{e1, c1}, nil, testNow))

	require.Equal(t, money.Amount(80_000), got.Variants[0].Price.EffectivePrice)
	require.Equal(t, c1.ID, got.Variants[0].Price.Winner.PromotionID)
	require.Equal(t, KindCampaign, got.Variants[0].Price.Winner.Kind)

	require.Equal(t, money.Amount(90_000), got.Variants[1].Price.EffectivePrice)
	require.Equal(t, e1.ID, got.Variants[1].Price.Winner.PromotionID)
}

func TestResolveCombinationFallbackChain(t *testing.T) {
	prod, v1, c1, c2 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	tree := ProductTree{
		ProductID: prod,
		BasePrice: 100_000,
		Variants: []VariantNode{{
			VariantID: v1,
			BasePrice: 110_000,
			Combos: []CombinationNode{
				{CombinationID: c1, BasePrice: 120_000},
				{CombinationID: c2, BasePrice: 120_000},
			},
		}},
	}
	p := activePromotion("11111111-1111-1111-1111-111111111111", KindCampaign,
		Entry{Unit: VariantUnit(prod, v1), Price: 95_000},
		Entry{Unit: CombinationUnit(prod, v1, c1), Price: 85_000},
	)

	got := Resolve(tree, BuildIndex([]Promotion{p}, nil, testNow))

	combos := got.Variants[0].Combos
	require.Equal(t, money.Amount(85_000), combos[0].Price.EffectivePrice)
	require.Equal(t, money.Amount(95_000), combos[1].Price.EffectivePrice, "combo without entry falls back to its variant")
	require.Equal(t, money.Amount(95_000), got.Variants[0].Price.EffectivePrice)
}

func TestResolveNoPromotionKeepsBase(t *testing.T) {
	prod := uuid.New()
	tree := ProductTree{ProductID: prod, BasePrice: 100_000}

	got := Resolve(tree, BuildIndex(nil, nil, testNow))
	require.Equal(t, money.Amount(100_000), got.Price.EffectivePrice)
	require.Nil(t, got.Price.Winner)
}

// An entry at exactly base price still attributes: "on promotion at full
// price" is distinguishable from "not on promotion".
func TestResolveEqualToBaseStillAttributes(t *testing.T) {
	prod := uuid.New()
	tree := ProductTree{ProductID: prod, BasePrice: 100_000}
	p := activePromotion("11111111-1111-1111-1111-111111111111", KindEvent,
		Entry{Unit: ProductUnit(prod), Price: 100_000})

	got := Resolve(tree, BuildIndex([]Promotion{p}, nil, testNow))
	require.Equal(t, money.Amount(100_000), got.Price.EffectivePrice)
	require.NotNil(t, got.Price.Winner)
	require.Equal(t, p.ID, got.Price.Winner.PromotionID)
}

func TestResolveSkipsEntryAboveNodeBase(t *testing.T) {
	prod, v1 := uuid.New(), uuid.New()
	// The variant's base is below the product's: an entry validated against
	// the product base can still be invalid for the cheaper variant.
	tree := ProductTree{
		ProductID: prod,
		BasePrice: 100_000,
		Variants:  []VariantNode{{VariantID: v1, BasePrice: 70_000}},
	}
	p := activePromotion("11111111-1111-1111-1111-111111111111", KindEvent,
		Entry{Unit: ProductUnit(prod), Price: 90_000})

	got := Resolver{Log: zerolog.Nop()}.Resolve(tree, BuildIndex([]Promotion{p}, nil, testNow))
	require.Equal(t, money.Amount(70_000), got.Variants[0].Price.EffectivePrice)
	require.Nil(t, got.Variants[0].Price.Winner)
}

func TestResolveStrictPanicsOnInvariantViolation(t *testing.T) {
	prod, v1 := uuid.New(), uuid.New()
	tree := ProductTree{
		ProductID: prod,
		BasePrice: 100_000,
		Variants:  []VariantNode{{VariantID: v1, BasePrice: 70_000}},
	}
	p := activePromotion("11111111-1111-1111-1111-111111111111", KindEvent,
		Entry{Unit: ProductUnit(prod), Price: 90_000})
	ix := BuildIndex([]Promotion{p}, nil, testNow)

	require.Panics(t, func() {
		Resolver{Strict: true}.Resolve(tree, ix)
	})
}

func TestResolveInvariants(t *testing.T) {
	prod, v1, c1 := uuid.New(), uuid.New(), uuid.New()
	tree := ProductTree{
		ProductID: prod,
		BasePrice: 100_000,
		Variants: []VariantNode{{
			VariantID: v1,
			BasePrice: 95_000,
			Combos:    []CombinationNode{{CombinationID: c1, BasePrice: 99_000}},
		}},
	}
	promos := []Promotion{
		activePromotion("11111111-1111-1111-1111-111111111111", KindEvent,
			Entry{Unit: ProductUnit(prod), Price: 90_000}),
		activePromotion("22222222-2222-2222-2222-222222222222", KindCampaign,
			Entry{Unit: CombinationUnit(prod, v1, c1), Price: 50_000}),
	}
	got := Resolve(tree, BuildIndex(promos, nil, testNow))

	check := func(p ResolvedPrice) {
		require.True(t, p.EffectivePrice >= 0)
		require.True(t, p.EffectivePrice <= p.BasePrice)
	}
	check(got.Price)
	for _, v := range got.Variants {
		check(v.Price)
		for _, c := range v.Combos {
			check(c.Price)
		}
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	prod, v1 := uuid.New(), uuid.New()
	tree := ProductTree{
		ProductID: prod,
		BasePrice: 100_000,
		Variants:  []VariantNode{{VariantID: v1, BasePrice: 100_000}},
	}
	promos := []Promotion{
		activePromotion("11111111-1111-1111-1111-111111111111", KindEvent,
			Entry{Unit: ProductUnit(prod), Price: 90_000}),
		activePromotion("22222222-2222-2222-2222-222222222222", KindCampaign,
			Entry{Unit: VariantUnit(prod, v1), Price: 80_000}),
	}
	first := Resolve(tree, BuildIndex(promos, nil, testNow))
	second := Resolve(tree, BuildIndex(promos, nil, testNow))
	require.True(t, reflect.DeepEqual(first, second))
}
