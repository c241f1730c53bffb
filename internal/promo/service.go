package promo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/gerai-id/backend-gerai/internal/cache"
	"github.com/gerai-id/backend-gerai/internal/events"
	"github.com/gerai-id/backend-gerai/internal/lock"
	"github.com/gerai-id/backend-gerai/internal/obs"
)

// Store is the persistence surface the promotion service needs.
type Store interface {
	ListActive(ctx context.Context, now time.Time) ([]Promotion, error)
	List(ctx context.Context, limit, offset int32) ([]Promotion, int64, error)
	Get(ctx context.Context, id uuid.UUID) (Promotion, error)
	Create(ctx context.Context, in Input) (Promotion, error)
	Update(ctx context.Context, id uuid.UUID, in Input) (Promotion, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ProductSource loads base-price trees for resolution.
type ProductSource interface {
	Tree(ctx context.Context, productID uuid.UUID) (ProductTree, error)
}

// Service resolves effective prices and manages promotion rules.
type Service struct {
	Promotions Store
	Products   ProductSource
	Cache      *cache.Cache
	Bus        *events.Bus
	Strict     bool
	Log        zerolog.Logger

	// Lock, when set, serializes snapshot rebuilds per product so a cold
	// cache does not fan out into concurrent recomputes.
	Lock *lock.Locker

	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ResolvePricing computes the effective price for every unit of a product.
// A zero `at` means "now" and is served from the snapshot cache when warm;
// historical or future instants always resolve fresh.
func (s *Service) ResolvePricing(ctx context.Context, productID uuid.UUID, at time.Time) (ResolvedTree, error) {
	ctx, span := otel.Tracer("promo.Service").Start(ctx, "PromoService.ResolvePricing")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID.String()))

	result := "error"
	defer func() {
		if obs.PriceResolutionTotal != nil {
			obs.PriceResolutionTotal.WithLabelValues(result).Inc()
		}
	}()

	cacheable := at.IsZero()
	asOf := at
	if cacheable {
		asOf = s.now()
	}

	key := cache.KeyPricingSnapshot(productID)
	if cacheable {
		var snap ResolvedTree
		found, err := s.Cache.GetJSON(ctx, key, &snap)
		if err != nil {
			s.Log.Warn().Err(err).Str("product_id", productID.String()).Msg("snapshot cache read failed")
		}
		if obs.PromoSnapshotCache != nil {
			label := "miss"
			if found {
				label = "hit"
			}
			obs.PromoSnapshotCache.WithLabelValues(label).Inc()
		}
		if found {
			result = "cache_hit"
			return snap, nil
		}

		if s.Lock != nil {
			var built ResolvedTree
			var buildErr error
			lockErr := s.Lock.WithLock(ctx, key+":build", 5*time.Second, func(ctx context.Context) error {
				// Another request may have finished the snapshot while we waited.
				if found, _ := s.Cache.GetJSON(ctx, key, &built); found {
					return nil
				}
				built, buildErr = s.resolveFresh(ctx, productID, asOf)
				if buildErr != nil {
					return nil
				}
				if err := s.Cache.SetJSON(ctx, key, built); err != nil {
					s.Log.Warn().Err(err).Str("product_id", productID.String()).Msg("snapshot cache write failed")
				}
				return nil
			})
			if buildErr != nil {
				return ResolvedTree{}, buildErr
			}
			if lockErr == nil {
				result = "resolved"
				return built, nil
			}
			s.Log.Warn().Err(lockErr).Str("product_id", productID.String()).Msg("snapshot build lock failed")
		}
	}

	resolved, err := s.resolveFresh(ctx, productID, asOf)
	if err != nil {
		return ResolvedTree{}, err
	}

	if cacheable {
		if err := s.Cache.SetJSON(ctx, key, resolved); err != nil {
			s.Log.Warn().Err(err).Str("product_id", productID.String()).Msg("snapshot cache write failed")
		}
	}
	result = "resolved"
	return resolved, nil
}

func (s *Service) resolveFresh(ctx context.Context, productID uuid.UUID, asOf time.Time) (ResolvedTree, error) {
	tree, err := s.Products.Tree(ctx, productID)
	if err != nil {
		return ResolvedTree{}, fmt.Errorf("load product tree: %w", err)
	}
	promotions, err := s.Promotions.ListActive(ctx, asOf)
	if err != nil {
		return ResolvedTree{}, fmt.Errorf("load active promotions: %w", err)
	}

	ix := BuildIndex(promotions, BasePricesOf(tree), asOf)
	return Resolver{Strict: s.Strict, Log: s.Log}.Resolve(tree, ix), nil
}

// ListPromotions returns one page of promotion rules with the total count.
func (s *Service) ListPromotions(ctx context.Context, limit, offset int32) ([]Promotion, int64, error) {
	return s.Promotions.List(ctx, limit, offset)
}

// GetPromotion loads a single promotion with entries.
func (s *Service) GetPromotion(ctx context.Context, id uuid.UUID) (Promotion, error) {
	return s.Promotions.Get(ctx, id)
}

// CreatePromotion stores a new promotion and emits the change event.
func (s *Service) CreatePromotion(ctx context.Context, in Input) (Promotion, error) {
	if err := validateInput(in); err != nil {
		return Promotion{}, err
	}
	created, err := s.Promotions.Create(ctx, in)
	if err != nil {
		return Promotion{}, err
	}
	s.emit(ctx, events.TopicPromotionCreated, created)
	return created, nil
}

// UpdatePromotion replaces a promotion's definition and entries.
func (s *Service) UpdatePromotion(ctx context.Context, id uuid.UUID, in Input) (Promotion, error) {
	if err := validateInput(in); err != nil {
		return Promotion{}, err
	}
	updated, err := s.Promotions.Update(ctx, id, in)
	if err != nil {
		return Promotion{}, err
	}
	s.emit(ctx, events.TopicPromotionUpdated, updated)
	return updated, nil
}

// DeletePromotion removes a promotion; its snapshot invalidation rides on the
// emitted event.
func (s *Service) DeletePromotion(ctx context.Context, id uuid.UUID) error {
	existing, err := s.Promotions.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Promotions.Delete(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, events.TopicPromotionDeleted, existing)
	return nil
}

type promotionEventPayload struct {
	Name       string      `json:"name"`
	Kind       Kind        `json:"kind"`
	ProductIDs []uuid.UUID `json:"productIds"`
}

// emit publishes the rule change. Failures are logged, never surfaced: the
// write already committed.
func (s *Service) emit(ctx context.Context, topic string, p Promotion) {
	if s.Bus == nil {
		return
	}
	payload := promotionEventPayload{Name: p.Name, Kind: p.Kind, ProductIDs: touchedProducts(p)}
	if _, err := s.Bus.Emit(ctx, topic, p.ID, payload); err != nil {
		s.Log.Error().Err(err).Str("topic", topic).Str("promotion_id", p.ID.String()).Msg("emit promotion event")
	}
}

func touchedProducts(p Promotion) []uuid.UUID {
	seen := map[uuid.UUID]struct{}{}
	out := make([]uuid.UUID, 0, 1)
	for _, e := range p.Entries {
		if _, ok := seen[e.Unit.ProductID]; ok {
			continue
		}
		seen[e.Unit.ProductID] = struct{}{}
		out = append(out, e.Unit.ProductID)
	}
	return out
}

func validateInput(in Input) error {
	if in.Name == "" {
		return errors.New("promo: name is required")
	}
	if in.Kind != KindEvent && in.Kind != KindCampaign {
		return fmt.Errorf("promo: unknown kind %q", in.Kind)
	}
	if !in.EndAt.After(in.StartAt) {
		return errors.New("promo: endAt must be after startAt")
	}
	for _, e := range in.Entries {
		if e.Unit.ProductID == uuid.Nil {
			return errors.New("promo: entry product id is required")
		}
		if e.Unit.CombinationID != uuid.Nil && e.Unit.VariantID == uuid.Nil {
			return errors.New("promo: combination entry needs a variant id")
		}
		if e.Price < 0 {
			return errors.New("promo: entry price must not be negative")
		}
	}
	return nil
}
