package events

// Topic constants for domain events emitted by the pricing platform.
const (
	TopicPromotionCreated = "promotion.created"
	TopicPromotionUpdated = "promotion.updated"
	TopicPromotionDeleted = "promotion.deleted"
	TopicVoucherCreated   = "voucher.created"
	TopicVoucherUpdated   = "voucher.updated"
	TopicVoucherDeleted   = "voucher.deleted"
	TopicVoucherRedeemed  = "voucher.redeemed"
	TopicVoucherDenied    = "voucher.redemption_denied"
)

// DefaultTopics returns the canonical list of topics downstream consumers may subscribe to.
func DefaultTopics() []string {
	return []string{
		TopicPromotionCreated,
		TopicPromotionUpdated,
		TopicPromotionDeleted,
		TopicVoucherCreated,
		TopicVoucherUpdated,
		TopicVoucherDeleted,
		TopicVoucherRedeemed,
		TopicVoucherDenied,
	}
}
