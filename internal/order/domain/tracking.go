package domain

import "time"

// TimelineStep is one stage of the fulfillment journey shown to the buyer.
type TimelineStep struct {
	Status  Status `json:"status"`
	Label   string `json:"label"`
	Reached bool   `json:"reached"`
	Current bool   `json:"current"`
}

var happyPath = []struct {
	status Status
	label  string
}{
	{StatusPending, "Order placed, awaiting payment"},
	{StatusPaid, "Payment confirmed"},
	{StatusProcessing, "Order being prepared"},
	{StatusShipped, "Order shipped"},
	{StatusDelivered, "Order delivered"},
}

// Timeline renders the happy path with the reached/current markers for the
// order's present status. Cancelled and failed orders get a single extra
// step appended after the last reached stage.
func (o Order) Timeline() []TimelineStep {
	rank := map[Status]int{
		StatusPending:    0,
		StatusPaid:       1,
		StatusProcessing: 2,
		StatusShipped:    3,
		StatusDelivered:  4,
	}

	cur, onPath := rank[o.Status]
	steps := make([]TimelineStep, 0, len(happyPath)+1)
	for i, s := range happyPath {
		steps = append(steps, TimelineStep{
			Status:  s.status,
			Label:   s.label,
			Reached: onPath && i <= cur,
			Current: onPath && i == cur,
		})
	}
	if !onPath {
		label := "Order cancelled"
		if o.Status == StatusFailed {
			label = "Order failed"
			if o.FailureReason != "" {
				label = "Order failed: " + o.FailureReason
			}
		}
		steps = append(steps, TimelineStep{Status: o.Status, Label: label, Reached: true, Current: true})
	}
	return steps
}

// EstimatedDelivery is five days from creation for in-flight orders, zero
// for terminal ones.
func (o Order) EstimatedDelivery() time.Time {
	if o.Status == StatusCancelled || o.Status == StatusFailed || o.Status == StatusDelivered {
		return time.Time{}
	}
	return o.CreatedAt.Add(5 * 24 * time.Hour)
}
