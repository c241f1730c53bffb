package promo

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gerai-id/backend-gerai/internal/money"
)

var (
	testNow   = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	weekAgo   = testNow.AddDate(0, 0, -7)
	weekAhead = testNow.AddDate(0, 0, 7)
)

func activePromotion(id string, kind Kind, entries ...Entry) Promotion {
	return Promotion{
		ID:      uuid.MustParse(id),
		Name:    "promo " + id[:8],
		Kind:    kind,
		StartAt: weekAgo,
		EndAt:   weekAhead,
		Entries: entries,
	}
}

func TestBuildIndexFiltersInactive(t *testing.T) {
	prod := uuid.New()
	unit := ProductUnit(prod)
	expired := activePromotion("11111111-1111-1111-1111-111111111111", KindEvent, Entry{Unit: unit, Price: 90_000})
	expired.EndAt = testNow.Add(-time.Hour)
	upcoming := activePromotion("22222222-2222-2222-2222-222222222222", KindEvent, Entry{Unit: unit, Price: 80_000})
	upcoming.StartAt = testNow.Add(time.Hour)

	ix := BuildIndex([]Promotion{expired, upcoming}, nil, testNow)
	_, ok := ix.Lookup(unit)
	require.False(t, ok)
	require.Zero(t, ix.Len())
}

func TestBuildIndexWindowIsHalfOpen(t *testing.T) {
	prod := uuid.New()
	unit := ProductUnit(prod)
	p := activePromotion("11111111-1111-1111-1111-111111111111", KindEvent, Entry{Unit: unit, Price: 90_000})

	atStart := BuildIndex([]Promotion{p}, nil, p.StartAt)
	_, ok := atStart.Lookup(unit)
	require.True(t, ok, "promotion should be active at its start instant")

	atEnd := BuildIndex([]Promotion{p}, nil, p.EndAt)
	_, ok = atEnd.Lookup(unit)
	require.False(t, ok, "promotion should be inactive at its end instant")
}

func TestBuildIndexDiscardsPriceIncreases(t *testing.T) {
	prod := uuid.New()
	unit := ProductUnit(prod)
	p := activePromotion("11111111-1111-1111-1111-111111111111", KindCampaign,
		Entry{Unit: unit, Price: 120_000})
	base := map[Unit]money.Amount{unit: 100_000}

	ix := BuildIndex([]Promotion{p}, base, testNow)
	_, ok := ix.Lookup(unit)
	require.False(t, ok, "entry above base must be dropped, not applied")
}

func TestBuildIndexLowestPriceWins(t *testing.T) {
	prod := uuid.New()
	unit := ProductUnit(prod)
	cheap := activePromotion("22222222-2222-2222-2222-222222222222", KindCampaign, Entry{Unit: unit, Price: 80_000})
	pricey := activePromotion("11111111-1111-1111-1111-111111111111", KindEvent, Entry{Unit: unit, Price: 90_000})

	// Result must not depend on snapshot order.
	for _, promos := range [][]Promotion{{cheap, pricey}, {pricey, cheap}} {
		ix := BuildIndex(promos, nil, testNow)
		w, ok := ix.Lookup(unit)
		require.True(t, ok)
		require.Equal(t, money.Amount(80_000), w.Price)
		require.Equal(t, cheap.ID, w.Attr.PromotionID)
	}
}

func TestBuildIndexTieBreaks(t *testing.T) {
	prod := uuid.New()
	unit := ProductUnit(prod)

	earlier := activePromotion("99999999-9999-9999-9999-999999999999", KindEvent, Entry{Unit: unit, Price: 90_000})
	earlier.StartAt = weekAgo.AddDate(0, 0, -1)
	later := activePromotion("11111111-1111-1111-1111-111111111111", KindCampaign, Entry{Unit: unit, Price: 90_000})

	ix := BuildIndex([]Promotion{later, earlier}, nil, testNow)
	w, ok := ix.Lookup(unit)
	require.True(t, ok)
	require.Equal(t, earlier.ID, w.Attr.PromotionID, "equal price goes to the earlier start")

	// Same price, same start: smaller id wins regardless of input order.
	a := activePromotion("11111111-1111-1111-1111-111111111111", KindEvent, Entry{Unit: unit, Price: 90_000})
	b := activePromotion("22222222-2222-2222-2222-222222222222", KindEvent, Entry{Unit: unit, Price: 90_000})
	for _, promos := range [][]Promotion{{a, b}, {b, a}} {
		ix := BuildIndex(promos, nil, testNow)
		w, ok := ix.Lookup(unit)
		require.True(t, ok)
		require.Equal(t, a.ID, w.Attr.PromotionID)
	}
}

func TestLookupIsExactSpecificity(t *testing.T) {
	prod := uuid.New()
	variant := uuid.New()
	p := activePromotion("11111111-1111-1111-1111-111111111111", KindEvent,
		Entry{Unit: ProductUnit(prod), Price: 90_000})

	ix := BuildIndex([]Promotion{p}, nil, testNow)
	_, ok := ix.Lookup(VariantUnit(prod, variant))
	require.False(t, ok, "a product-level entry must not answer variant-level lookups")
	_, ok = ix.Lookup(ProductUnit(prod))
	require.True(t, ok)
}

func TestUnitLevel(t *testing.T) {
	prod, variant, combo := uuid.New(), uuid.New(), uuid.New()
	require.Equal(t, 0, ProductUnit(prod).Level())
	require.Equal(t, 1, VariantUnit(prod, variant).Level())
	require.Equal(t, 2, CombinationUnit(prod, variant, combo).Level())
}
