package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/aksh-ita757/SMART-MART/internal/order/domain"
)

const TopicOrderStatus = "order.status"

// StatusEvent is published on every order status transition. Keying by
// order id keeps one order's events in delivery order for subscribers.
type StatusEvent struct {
	EventID string        `json:"eventId"`
	OrderID int64         `json:"orderId"`
	BuyerID int64         `json:"buyerId"`
	Status  domain.Status `json:"status"`
	Message string        `json:"message"`
	At      time.Time     `json:"timestamp"`
}

func NewStatusEvent(orderID, buyerID int64, status domain.Status, message string) StatusEvent {
	return StatusEvent{
		EventID: uuid.NewString(),
		OrderID: orderID,
		BuyerID: buyerID,
		Status:  status,
		Message: message,
		At:      time.Now().UTC(),
	}
}

var statusMessages = map[domain.Status]string{
	domain.StatusPaid:       "Payment confirmed",
	domain.StatusProcessing: "Your order is being processed",
	domain.StatusShipped:    "Your order has been shipped!",
	domain.StatusDelivered:  "Your order has been delivered",
	domain.StatusCancelled:  "Your order has been cancelled",
	domain.StatusFailed:     "Order processing failed",
}

// MessageFor returns the buyer-facing text for a transition.
func MessageFor(status domain.Status) string {
	if m, ok := statusMessages[status]; ok {
		return m
	}
	return "Order status updated"
}
