package promo

import (
	"time"

	"github.com/google/uuid"

	"github.com/gerai-id/backend-gerai/internal/money"
)

// Kind distinguishes the two administrative flavours of promotions. They are
// structurally identical for pricing; the kind only matters for attribution.
type Kind string

const (
	KindEvent    Kind = "event"
	KindCampaign Kind = "campaign"
)

// Unit identifies the granularity a price override applies to: a product, a
// product variant, or a variant combination. Absent levels are the zero UUID.
type Unit struct {
	ProductID     uuid.UUID
	VariantID     uuid.UUID
	CombinationID uuid.UUID
}

// ProductUnit returns the product-level unit.
func ProductUnit(productID uuid.UUID) Unit {
	return Unit{ProductID: productID}
}

// VariantUnit returns the variant-level unit.
func VariantUnit(productID, variantID uuid.UUID) Unit {
	return Unit{ProductID: productID, VariantID: variantID}
}

// CombinationUnit returns the combination-level unit.
func CombinationUnit(productID, variantID, combinationID uuid.UUID) Unit {
	return Unit{ProductID: productID, VariantID: variantID, CombinationID: combinationID}
}

// Level reports the specificity of the unit. Higher is more specific.
func (u Unit) Level() int {
	switch {
	case u.CombinationID != uuid.Nil:
		return 2
	case u.VariantID != uuid.Nil:
		return 1
	default:
		return 0
	}
}

// Entry proposes an adjusted price for a single unit during a promotion.
type Entry struct {
	Unit  Unit
	Price money.Amount
}

// Promotion is a time-boxed set of price overrides.
type Promotion struct {
	ID      uuid.UUID
	Name    string
	Kind    Kind
	StartAt time.Time
	EndAt   time.Time
	Entries []Entry
}

// ActiveAt reports whether the promotion window contains now. The window is
// half-open: a promotion ending at midnight is no longer active at midnight.
func (p Promotion) ActiveAt(now time.Time) bool {
	return !now.Before(p.StartAt) && now.Before(p.EndAt)
}

// Attribution names the promotion that produced an effective price, for
// display badges and audit trails.
type Attribution struct {
	PromotionID uuid.UUID `json:"promotionId"`
	Kind        Kind      `json:"kind"`
	Name        string    `json:"name"`
}

// Input is the write-side shape for creating or replacing a promotion.
type Input struct {
	Name    string
	Kind    Kind
	StartAt time.Time
	EndAt   time.Time
	Entries []Entry
}
