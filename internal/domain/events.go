package domain

const (
	EventDeliveryCreated       = "delivery.created"
	EventDeliveryClaimed       = "delivery.claimed"
	EventDeliveryStatusChanged = "delivery.status_changed"
	EventDeliveryCancelled     = "delivery.cancelled"
	EventDeliveryDeleted       = "delivery.deleted"
	EventPaymentOrderOpened    = "payment.order_opened"
	EventPaymentCompleted      = "payment.completed"
	EventPaymentFailed         = "payment.failed"
	EventPrincipalBlocked      = "principal.blocked"
	EventPrincipalUnblocked    = "principal.unblocked"
	EventPorterApproved        = "porter.approved"
)

// Broadcast topics fanned out to connected clients.
const (
	TopicDeliveries = "deliveries"
	TopicPorters    = "porters"
	TopicAdmin      = "admin"
	topicUserPrefix = "users."
)

func UserTopic(principalID string) string {
	return topicUserPrefix + principalID
}
