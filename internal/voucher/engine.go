package voucher

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gerai-id/backend-gerai/internal/money"
)

var (
	// ErrDuplicateCode signals a voucher code collision on create.
	ErrDuplicateCode = errors.New("voucher: code already exists")
	// ErrRedemptionDenied signals the store refused to record a redemption,
	// either because the cap is exhausted or the user already redeemed.
	ErrRedemptionDenied = errors.New("voucher: redemption denied")
)

// DiscountKind selects how a voucher's value is interpreted.
type DiscountKind string

const (
	KindPercent DiscountKind = "percent"
	KindFixed   DiscountKind = "fixed_amount"
)

// Reason explains why a voucher was rejected. Reasons are values, not errors:
// the caller renders a precise user-facing message from them.
type Reason string

const (
	ReasonDisabled          Reason = "disabled"
	ReasonAlreadyUsed       Reason = "already_used"
	ReasonUserGroupMismatch Reason = "user_group_mismatch"
	ReasonNotStartedYet     Reason = "not_started_yet"
	ReasonExpired           Reason = "expired"
	ReasonUsageLimitReached Reason = "usage_limit_reached"
	ReasonBelowMinimumOrder Reason = "below_minimum_order"
	ReasonScopeMismatch     Reason = "scope_mismatch"
)

// Verdict is the typed outcome of evaluating one voucher.
type Verdict struct {
	Eligible bool   `json:"eligible"`
	Reason   Reason `json:"reason,omitempty"`
}

func eligible() Verdict         { return Verdict{Eligible: true} }
func rejected(r Reason) Verdict { return Verdict{Reason: r} }

// Rejected reports whether the verdict carries a rejection reason.
func (v Verdict) Rejected() bool { return !v.Eligible }

// UserGroups restricts who may redeem a voucher. When no restriction is set
// the voucher is open to everyone; legacy rows with an empty group spec must
// not silently exclude all users.
type UserGroups struct {
	All          bool
	NewUsersOnly bool
	Levels       []string
	UserIDs      []uuid.UUID
}

func (g UserGroups) unrestricted() bool {
	return !g.All && !g.NewUsersOnly && len(g.Levels) == 0 && len(g.UserIDs) == 0
}

// Scope restricts which carts a voucher applies to. Dimensions are OR-ed: the
// cart only needs to intersect one non-empty dimension.
type Scope struct {
	ProductIDs  []uuid.UUID
	CategoryIDs []uuid.UUID
	BrandIDs    []uuid.UUID
	EventIDs    []uuid.UUID
	CampaignIDs []uuid.UUID
}

// Unrestricted reports whether every dimension is empty.
func (s Scope) Unrestricted() bool {
	return len(s.ProductIDs) == 0 && len(s.CategoryIDs) == 0 && len(s.BrandIDs) == 0 &&
		len(s.EventIDs) == 0 && len(s.CampaignIDs) == 0
}

// Voucher is a user-redeemable discount code with eligibility rules and a
// usage cap. UsageLimit zero means unlimited.
type Voucher struct {
	ID         uuid.UUID
	Code       string
	Kind       DiscountKind
	Value      int64
	MinOrder   money.Amount
	StartAt    time.Time
	EndAt      time.Time
	UsageLimit int32
	UsedCount  int32
	Active     bool
	Groups     UserGroups
	Scope      Scope
	UsedBy     []uuid.UUID
}

// Input is the write-side shape for creating or replacing a voucher rule.
// Usage counters are never part of the write payload.
type Input struct {
	Code       string
	Kind       DiscountKind
	Value      int64
	MinOrder   money.Amount
	StartAt    time.Time
	EndAt      time.Time
	UsageLimit int32
	Active     bool
	Groups     UserGroups
	Scope      Scope
}

// UserContext identifies the already-verified user evaluating vouchers.
type UserContext struct {
	ID    uuid.UUID
	Level string
	IsNew bool
}

// CartContext is the post-resolution, pre-voucher snapshot of the cart.
type CartContext struct {
	Subtotal    money.Amount
	ProductIDs  []uuid.UUID
	CategoryIDs []uuid.UUID
	BrandIDs    []uuid.UUID
	EventIDs    []uuid.UUID
	CampaignIDs []uuid.UUID
}

// Evaluate checks a single voucher against the user and cart at the given
// instant. Checks run in a fixed order so the reported reason is stable: the
// first failing check wins. The voucher window is inclusive on both ends,
// unlike promotion windows.
func Evaluate(v Voucher, user UserContext, cart CartContext, now time.Time) Verdict {
	if !v.Active {
		return rejected(ReasonDisabled)
	}
	for _, used := range v.UsedBy {
		if used == user.ID {
			return rejected(ReasonAlreadyUsed)
		}
	}
	if !groupMatches(v.Groups, user) {
		return rejected(ReasonUserGroupMismatch)
	}
	if now.Before(v.StartAt) {
		return rejected(ReasonNotStartedYet)
	}
	if now.After(v.EndAt) {
		return rejected(ReasonExpired)
	}
	if v.UsageLimit > 0 && v.UsedCount >= v.UsageLimit {
		return rejected(ReasonUsageLimitReached)
	}
	if cart.Subtotal < v.MinOrder {
		return rejected(ReasonBelowMinimumOrder)
	}
	if !scopeMatches(v.Scope, cart) {
		return rejected(ReasonScopeMismatch)
	}
	return eligible()
}

func groupMatches(g UserGroups, user UserContext) bool {
	if g.All || g.unrestricted() {
		return true
	}
	if g.NewUsersOnly {
		return user.IsNew
	}
	if len(g.Levels) > 0 {
		for _, lvl := range g.Levels {
			if lvl == user.Level {
				return true
			}
		}
		return false
	}
	for _, id := range g.UserIDs {
		if id == user.ID {
			return true
		}
	}
	return false
}

func scopeMatches(s Scope, cart CartContext) bool {
	if s.Unrestricted() {
		return true
	}
	return intersects(s.ProductIDs, cart.ProductIDs) ||
		intersects(s.CategoryIDs, cart.CategoryIDs) ||
		intersects(s.BrandIDs, cart.BrandIDs) ||
		intersects(s.EventIDs, cart.EventIDs) ||
		intersects(s.CampaignIDs, cart.CampaignIDs)
}

func intersects(a, b []uuid.UUID) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
