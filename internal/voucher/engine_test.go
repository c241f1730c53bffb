package voucher

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gerai-id/backend-gerai/internal/money"
)

var evalNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func openVoucher() Voucher {
	return Voucher{
		ID:      uuid.New(),
		Code:    "WELCOME10",
		Kind:    KindPercent,
		Value:   10,
		StartAt: evalNow.AddDate(0, 0, -7),
		EndAt:   evalNow.AddDate(0, 0, 7),
		Active:  true,
	}
}

func shopper() UserContext {
	return UserContext{ID: uuid.New(), Level: "silver"}
}

func TestEvaluateHappyPath(t *testing.T) {
	got := Evaluate(openVoucher(), shopper(), CartContext{Subtotal: 250_000}, evalNow)
	require.True(t, got.Eligible)
	require.Empty(t, got.Reason)
}

func TestEvaluateDisabled(t *testing.T) {
	v := openVoucher()
	v.Active = false
	got := Evaluate(v, shopper(), CartContext{Subtotal: 250_000}, evalNow)
	require.Equal(t, ReasonDisabled, got.Reason)
}

// Scenario F: a user already in the redemption history is rejected even when
// everything else passes.
func TestEvaluateAlreadyUsed(t *testing.T) {
	user := shopper()
	v := openVoucher()
	v.UsedBy = []uuid.UUID{uuid.New(), user.ID}
	got := Evaluate(v, user, CartContext{Subtotal: 250_000}, evalNow)
	require.Equal(t, ReasonAlreadyUsed, got.Reason)
}

func TestEvaluateUserGroups(t *testing.T) {
	user := shopper()

	t.Run("empty group spec is unrestricted", func(t *testing.T) {
		got := Evaluate(openVoucher(), user, CartContext{Subtotal: 1}, evalNow)
		require.True(t, got.Eligible)
	})

	t.Run("all flag wins over other restrictions", func(t *testing.T) {
		v := openVoucher()
		v.Groups = UserGroups{All: true, Levels: []string{"gold"}}
		require.True(t, Evaluate(v, user, CartContext{Subtotal: 1}, evalNow).Eligible)
	})

	t.Run("new users only", func(t *testing.T) {
		v := openVoucher()
		v.Groups = UserGroups{NewUsersOnly: true}
		require.Equal(t, ReasonUserGroupMismatch, Evaluate(v, user, CartContext{Subtotal: 1}, evalNow).Reason)
		fresh := user
		fresh.IsNew = true
		require.True(t, Evaluate(v, fresh, CartContext{Subtotal: 1}, evalNow).Eligible)
	})

	t.Run("level membership", func(t *testing.T) {
		v := openVoucher()
		v.Groups = UserGroups{Levels: []string{"gold", "platinum"}}
		require.Equal(t, ReasonUserGroupMismatch, Evaluate(v, user, CartContext{Subtotal: 1}, evalNow).Reason)
		v.Groups.Levels = append(v.Groups.Levels, "silver")
		require.True(t, Evaluate(v, user, CartContext{Subtotal: 1}, evalNow).Eligible)
	})

	t.Run("specific user ids", func(t *testing.T) {
		v := openVoucher()
		v.Groups = UserGroups{UserIDs: []uuid.UUID{uuid.New()}}
		require.Equal(t, ReasonUserGroupMismatch, Evaluate(v, user, CartContext{Subtotal: 1}, evalNow).Reason)
		v.Groups.UserIDs = append(v.Groups.UserIDs, user.ID)
		require.True(t, Evaluate(v, user, CartContext{Subtotal: 1}, evalNow).Eligible)
	})
}

func TestEvaluateWindowInclusiveBothEnds(t *testing.T) {
	v := openVoucher()

	got := Evaluate(v, shopper(), CartContext{Subtotal: 1}, v.StartAt)
	require.True(t, got.Eligible, "start date is inclusive")

	got = Evaluate(v, shopper(), CartContext{Subtotal: 1}, v.EndAt)
	require.True(t, got.Eligible, "end date is inclusive")

	got = Evaluate(v, shopper(), CartContext{Subtotal: 1}, v.StartAt.Add(-time.Second))
	require.Equal(t, ReasonNotStartedYet, got.Reason)

	got = Evaluate(v, shopper(), CartContext{Subtotal: 1}, v.EndAt.Add(time.Second))
	require.Equal(t, ReasonExpired, got.Reason)
}

func TestEvaluateUsageLimit(t *testing.T) {
	v := openVoucher()
	v.UsageLimit = 5
	v.UsedCount = 5
	require.Equal(t, ReasonUsageLimitReached, Evaluate(v, shopper(), CartContext{Subtotal: 1}, evalNow).Reason)

	v.UsedCount = 4
	require.True(t, Evaluate(v, shopper(), CartContext{Subtotal: 1}, evalNow).Eligible)

	// Zero means unlimited.
	v.UsageLimit = 0
	v.UsedCount = 1_000_000
	require.True(t, Evaluate(v, shopper(), CartContext{Subtotal: 1}, evalNow).Eligible)
}

// Scenario C: minimum order 500k, subtotal 400k.
func TestEvaluateBelowMinimumOrder(t *testing.T) {
	v := openVoucher()
	v.MinOrder = 500_000
	got := Evaluate(v, shopper(), CartContext{Subtotal: 400_000}, evalNow)
	require.Equal(t, ReasonBelowMinimumOrder, got.Reason)

	require.True(t, Evaluate(v, shopper(), CartContext{Subtotal: 500_000}, evalNow).Eligible)
}

func TestEvaluateScope(t *testing.T) {
	brandX := uuid.New()
	v := openVoucher()
	v.Scope = Scope{BrandIDs: []uuid.UUID{brandX}}

	t.Run("cross-dimension is OR", func(t *testing.T) {
		// Cart carries brand X in an unrelated category: still a match.
		cart := CartContext{Subtotal: 100_000, BrandIDs: []uuid.UUID{brandX}, CategoryIDs: []uuid.UUID{uuid.New()}}
		require.True(t, Evaluate(v, shopper(), cart, evalNow).Eligible)
	})

	t.Run("no intersection on any dimension", func(t *testing.T) {
		cart := CartContext{Subtotal: 100_000, BrandIDs: []uuid.UUID{uuid.New()}}
		require.Equal(t, ReasonScopeMismatch, Evaluate(v, shopper(), cart, evalNow).Reason)
	})

	t.Run("empty scope is unrestricted", func(t *testing.T) {
		open := openVoucher()
		cart := CartContext{Subtotal: 100_000}
		require.True(t, Evaluate(open, shopper(), cart, evalNow).Eligible)
	})
}

// The first failing check determines the reason: a disabled voucher reports
// Disabled even when the user also already used it and the cart is too small.
func TestEvaluateReasonOrder(t *testing.T) {
	user := shopper()
	v := openVoucher()
	v.Active = false
	v.UsedBy = []uuid.UUID{user.ID}
	v.MinOrder = 1_000_000

	got := Evaluate(v, user, CartContext{Subtotal: 1}, evalNow)
	require.Equal(t, ReasonDisabled, got.Reason)

	v.Active = true
	got = Evaluate(v, user, CartContext{Subtotal: 1}, evalNow)
	require.Equal(t, ReasonAlreadyUsed, got.Reason)
}

func TestEvaluateIsPure(t *testing.T) {
	v := openVoucher()
	user := shopper()
	cart := CartContext{Subtotal: 250_000}
	first := Evaluate(v, user, cart, evalNow)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Evaluate(v, user, cart, evalNow))
	}
}

func TestDiscountAmounts(t *testing.T) {
	// Scenario D: 10% of 250k.
	pct := openVoucher()
	require.Equal(t, money.Amount(25_000), Discount(pct, 250_000))

	// Scenario E: fixed 100k capped at 50k subtotal.
	fixed := openVoucher()
	fixed.Kind = KindFixed
	fixed.Value = 100_000
	require.Equal(t, money.Amount(50_000), Discount(fixed, 50_000))

	unknown := openVoucher()
	unknown.Kind = DiscountKind("mystery")
	require.Equal(t, money.Amount(0), Discount(unknown, 250_000))
}
