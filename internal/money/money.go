package money

import (
	"errors"
	"fmt"
	"math"
)

// Amount is a monetary value in minor units. The storefront prices everything
// in whole rupiah, so there is no fractional component to carry.
type Amount int64

var (
	// ErrNegative is returned when an operation would produce a negative amount.
	ErrNegative = errors.New("money: negative amount")
	// ErrOverflow is returned when an operation would overflow int64.
	ErrOverflow = errors.New("money: overflow")
)

// New validates v as a non-negative amount.
func New(v int64) (Amount, error) {
	if v < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegative, v)
	}
	return Amount(v), nil
}

// Int64 returns the raw minor-unit value.
func (a Amount) Int64() int64 { return int64(a) }

// Add returns a+b, reporting overflow instead of wrapping.
func (a Amount) Add(b Amount) (Amount, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, ErrOverflow
	}
	sum := a + b
	if sum < 0 {
		return 0, ErrNegative
	}
	return sum, nil
}

// Sub returns a-b and fails when the result would go below zero.
func (a Amount) Sub(b Amount) (Amount, error) {
	if b > a {
		return 0, fmt.Errorf("%w: %d - %d", ErrNegative, a, b)
	}
	return a - b, nil
}

// Percent returns floor(a × pct / 100). Values of pct outside [0, 100] are
// clamped so a misconfigured discount can never inflate the amount.
func (a Amount) Percent(pct int64) Amount {
	if a <= 0 || pct <= 0 {
		return 0
	}
	if pct > 100 {
		pct = 100
	}
	if a > math.MaxInt64/Amount(pct) {
		// Falls back to float math only when int64 would overflow; the loss of
		// precision at that magnitude is below one minor unit per trillion.
		return Amount(math.Floor(float64(a) / 100 * float64(pct)))
	}
	return a * Amount(pct) / 100
}

// Min returns the smaller of the two amounts.
func Min(a, b Amount) Amount {
	if a < b {
		return a
	}
	return b
}
