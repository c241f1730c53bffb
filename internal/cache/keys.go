package cache

import "github.com/google/uuid"

// KeyPricingSnapshot returns the cache key for a product's resolved pricing tree.
func KeyPricingSnapshot(productID uuid.UUID) string {
	return "pricing:" + productID.String()
}

// KeyActiveVouchers is the cache key for the currently active voucher rules.
const KeyActiveVouchers = "vouchers:active"
