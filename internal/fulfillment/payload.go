package fulfillment

import (
	"fmt"

	invdomain "github.com/aksh-ita757/SMART-MART/internal/inventory/domain"
)

// JobPayload is the wire body of a fulfillment job. Headers carry trace
// context from the submitting request into the worker.
type JobPayload struct {
	OrderID int64                    `json:"orderId"`
	Items   []invdomain.ItemQuantity `json:"items"`
	Headers map[string]string        `json:"headers,omitempty"`
}

// JobID derives the queue idempotency key for an order.
func JobID(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}
