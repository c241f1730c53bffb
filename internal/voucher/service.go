package voucher

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
	"github.com/gerai-id/backend-gerai/internal/money"
	"github.com/gerai-id/backend-gerai/internal/obs"
)

// Store is the persistence surface the voucher service needs.
type Store interface {
	GetByCode(ctx context.Context, code string) (Voucher, error)
	ListActive(ctx context.Context, now time.Time) ([]Voucher, error)
	List(ctx context.Context, limit, offset int32) ([]Voucher, int64, error)
	Create(ctx context.Context, in Input) (Voucher, error)
	Update(ctx context.Context, code string, in Input) (Voucher, error)
	Delete(ctx context.Context, code string) error
	Redeem(ctx context.Context, voucherID, userID uuid.UUID, amount money.Amount) error
}

// Suggestion is one ranked eligible voucher offered to the shopper.
type Suggestion struct {
	Code     string       `json:"code"`
	Kind     DiscountKind `json:"kind"`
	Value    int64        `json:"value"`
	Discount int64        `json:"discount"`
	EndAt    time.Time    `json:"endAt"`
}

// Evaluation explains a single voucher's verdict against a cart.
type Evaluation struct {
	Code     string  `json:"code"`
	Verdict  Verdict `json:"verdict"`
	Discount int64   `json:"discount"`
}

// Service evaluates, ranks, and redeems vouchers.
type Service struct {
	Vouchers     Store
	Cache        *cache.Cache
	Bus          *events.Bus
	SuggestLimit int
	Log          zerolog.Logger

	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// EligibleForCart evaluates every active voucher against the cart and returns
// the best suggestions, ranked by discount. The eligibility here is advisory:
// redemption re-checks atomically against the database.
func (s *Service) EligibleForCart(ctx context.Context, user UserContext, cart CartContext) ([]Suggestion, error) {
	ctx, span := otel.Tracer("voucher.Service").Start(ctx, "VoucherService.EligibleForCart")
	defer span.End()

	now := s.now()
	vouchers, err := s.activeVouchers(ctx, now)
	if err != nil {
		return nil, err
	}

	eligibleSet := make([]Voucher, 0, len(vouchers))
	for _, v := range vouchers {
		verdict := Evaluate(v, user, cart, now)
		if obs.VoucherEvaluationTotal != nil {
			obs.VoucherEvaluationTotal.WithLabelValues(outcomeLabel(verdict)).Inc()
		}
		if verdict.Eligible {
			eligibleSet = append(eligibleSet, v)
		}
	}

	start := time.Now()
	ranked := Rank(eligibleSet, cart.Subtotal)
	if obs.VoucherRankLatency != nil {
		obs.VoucherRankLatency.Observe(obs.DurationMillis(time.Since(start)))
	}
	span.SetAttributes(
		attribute.Int("voucher.candidates", len(vouchers)),
		attribute.Int("voucher.eligible", len(eligibleSet)),
	)

	limit := s.SuggestLimit
	if limit <= 0 || limit > len(ranked) {
		limit = len(ranked)
	}
	out := make([]Suggestion, 0, limit)
	for _, r := range ranked[:limit] {
		out = append(out, Suggestion{
			Code:     r.Voucher.Code,
			Kind:     r.Voucher.Kind,
			Value:    r.Voucher.Value,
			Discount: r.Discount.Int64(),
			EndAt:    r.Voucher.EndAt,
		})
	}
	return out, nil
}

// Preview evaluates one voucher by code without consuming anything.
func (s *Service) Preview(ctx context.Context, code string, user UserContext, cart CartContext) (Evaluation, error) {
	v, err := s.Vouchers.GetByCode(ctx, code)
	if err != nil {
		return Evaluation{}, err
	}
	verdict := Evaluate(v, user, cart, s.now())
	eval := Evaluation{Code: v.Code, Verdict: verdict}
	if verdict.Eligible {
		eval.Discount = Discount(v, cart.Subtotal).Int64()
	}
	return eval, nil
}

// RedeemResult reports the applied discount after a successful redemption.
type RedeemResult struct {
	Code     string `json:"code"`
	Discount int64  `json:"discount"`
	Total    int64  `json:"total"`
}

// Redeem applies a voucher to a cart and records the redemption. The engine
// verdict is a pre-check for a precise rejection reason; the database write
// is what actually enforces the cap and the once-per-user rule under
// concurrency.
func (s *Service) Redeem(ctx context.Context, code string, user UserContext, cart CartContext) (RedeemResult, error) {
	ctx, span := otel.Tracer("voucher.Service").Start(ctx, "VoucherService.Redeem")
	defer span.End()
	span.SetAttributes(attribute.String("voucher.code", code))

	result := "error"
	defer func() {
		if obs.VoucherRedemptionTotal != nil {
			obs.VoucherRedemptionTotal.WithLabelValues(result).Inc()
		}
	}()

	v, err := s.Vouchers.GetByCode(ctx, code)
	if err != nil {
		return RedeemResult{}, err
	}
	now := s.now()
	if verdict := Evaluate(v, user, cart, now); verdict.Rejected() {
		result = "rejected"
		s.emitDenied(ctx, v, user, verdict.Reason)
		return RedeemResult{}, &RejectionError{Code: v.Code, Reason: verdict.Reason}
	}

	discount := Discount(v, cart.Subtotal)
	if err := s.Vouchers.Redeem(ctx, v.ID, user.ID, discount); err != nil {
		if errors.Is(err, ErrRedemptionDenied) {
			// Lost the race. Re-evaluate against fresh state so the caller
			// gets the precise reason instead of a generic conflict.
			result = "denied"
			reason := ReasonUsageLimitReached
			if fresh, freshErr := s.Vouchers.GetByCode(ctx, code); freshErr == nil {
				if verdict := Evaluate(fresh, user, cart, now); verdict.Rejected() {
					reason = verdict.Reason
				}
			}
			s.emitDenied(ctx, v, user, reason)
			return RedeemResult{}, &RejectionError{Code: v.Code, Reason: reason}
		}
		return RedeemResult{}, fmt.Errorf("record redemption: %w", err)
	}

	total, err := cart.Subtotal.Sub(discount)
	if err != nil {
		total = 0
	}
	result = "redeemed"
	s.emit(ctx, events.TopicVoucherRedeemed, v, map[string]any{
		"code":     v.Code,
		"userId":   user.ID,
		"discount": discount.Int64(),
	})
	return RedeemResult{Code: v.Code, Discount: discount.Int64(), Total: total.Int64()}, nil
}

// ListVouchers returns one page of voucher rules with the total count.
func (s *Service) ListVouchers(ctx context.Context, limit, offset int32) ([]Voucher, int64, error) {
	return s.Vouchers.List(ctx, limit, offset)
}

// GetVoucher loads one voucher rule by code.
func (s *Service) GetVoucher(ctx context.Context, code string) (Voucher, error) {
	return s.Vouchers.GetByCode(ctx, code)
}

// CreateVoucher stores a new voucher rule and emits the change event.
func (s *Service) CreateVoucher(ctx context.Context, in Input) (Voucher, error) {
	if err := validateInput(in); err != nil {
		return Voucher{}, err
	}
	created, err := s.Vouchers.Create(ctx, in)
	if err != nil {
		return Voucher{}, err
	}
	s.emit(ctx, events.TopicVoucherCreated, created, map[string]any{"code": created.Code})
	return created, nil
}

// UpdateVoucher replaces a voucher rule identified by code.
func (s *Service) UpdateVoucher(ctx context.Context, code string, in Input) (Voucher, error) {
	if err := validateInput(in); err != nil {
		return Voucher{}, err
	}
	updated, err := s.Vouchers.Update(ctx, code, in)
	if err != nil {
		return Voucher{}, err
	}
	s.emit(ctx, events.TopicVoucherUpdated, updated, map[string]any{"code": updated.Code})
	return updated, nil
}

// DeleteVoucher removes a voucher rule.
func (s *Service) DeleteVoucher(ctx context.Context, code string) error {
	existing, err := s.Vouchers.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	if err := s.Vouchers.Delete(ctx, code); err != nil {
		return err
	}
	s.emit(ctx, events.TopicVoucherDeleted, existing, map[string]any{"code": existing.Code})
	return nil
}

// activeVouchers reads the active rule set through the cache. Redemption
// counters in the cached copy may lag; Evaluate treats them as advisory and
// the database enforces the real cap.
func (s *Service) activeVouchers(ctx context.Context, now time.Time) ([]Voucher, error) {
	var vouchers []Voucher
	found, err := s.Cache.GetJSON(ctx, cache.KeyActiveVouchers, &vouchers)
	if err != nil {
		s.Log.Warn().Err(err).Msg("voucher cache read failed")
	}
	if found {
		return vouchers, nil
	}
	vouchers, err = s.Vouchers.ListActive(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("load active vouchers: %w", err)
	}
	if err := s.Cache.SetJSON(ctx, cache.KeyActiveVouchers, vouchers); err != nil {
		s.Log.Warn().Err(err).Msg("voucher cache write failed")
	}
	return vouchers, nil
}

func (s *Service) emit(ctx context.Context, topic string, v Voucher, payload map[string]any) {
	if s.Bus == nil {
		return
	}
	if _, err := s.Bus.Emit(ctx, topic, v.ID, payload); err != nil {
		s.Log.Error().Err(err).Str("topic", topic).Str("code", v.Code).Msg("emit voucher event")
	}
}

func (s *Service) emitDenied(ctx context.Context, v Voucher, user UserContext, reason Reason) {
	if s.Bus == nil {
		return
	}
	payload := map[string]any{"code": v.Code, "userId": user.ID, "reason": reason}
	if _, err := s.Bus.Emit(ctx, events.TopicVoucherDenied, v.ID, payload); err != nil {
		s.Log.Error().Err(err).Str("code", v.Code).Msg("emit denial event")
	}
}

// RejectionError carries the engine's typed reason across the service
// boundary so handlers can render a precise message.
type RejectionError struct {
	Code   string
	Reason Reason
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("voucher %s rejected: %s", e.Code, e.Reason)
}

func outcomeLabel(v Verdict) string {
	if v.Eligible {
		return "eligible"
	}
	return string(v.Reason)
}

func validateInput(in Input) error {
	if in.Code == "" {
		return errors.New("voucher: code is required")
	}
	if in.Kind != KindPercent && in.Kind != KindFixed {
		return fmt.Errorf("voucher: unknown kind %q", in.Kind)
	}
	if in.Kind == KindPercent && (in.Value < 0 || in.Value > 100) {
		return errors.New("voucher: percent value must be between 0 and 100")
	}
	if in.Kind == KindFixed && in.Value < 0 {
		return errors.New("voucher: fixed value must not be negative")
	}
	if in.MinOrder < 0 {
		return errors.New("voucher: minimum order must not be negative")
	}
	// The window is inclusive on both ends, so a single-instant window is legal.
	if in.EndAt.Before(in.StartAt) {
		return errors.New("voucher: endAt must not be before startAt")
	}
	if in.UsageLimit < 0 {
		return errors.New("voucher: usage limit must not be negative")
	}
	return nil
}
