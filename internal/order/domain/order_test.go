package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderTotals(t *testing.T) {
	o := NewOrder(7, []OrderItem{
		{ProductID: 1, Quantity: 2, PriceCents: 500},
		{ProductID: 2, Quantity: 1, PriceCents: 1250},
	}, "42 Market St", "555-0101")

	assert.Equal(t, int64(7), o.BuyerID)
	assert.Equal(t, int64(2250), o.TotalCents)
	assert.Equal(t, StatusPending, o.Status)
	assert.False(t, o.CreatedAt.IsZero())
	assert.Equal(t, o.CreatedAt, o.UpdatedAt)
}

func TestOrderNumber(t *testing.T) {
	assert.Equal(t, "ORD-000042", Order{ID: 42}.OrderNumber())
	assert.Equal(t, "ORD-1234567", Order{ID: 1234567}.OrderNumber())
}

func TestValidate(t *testing.T) {
	items := []SubmitItem{{ProductID: 1, Quantity: 1}}

	require.NoError(t, Validate(1, items, "addr", "555"))

	cases := []struct {
		name    string
		buyerID int64
		items   []SubmitItem
		address string
		phone   string
	}{
		{"missing buyer", 0, items, "addr", "555"},
		{"no items", 1, nil, "addr", "555"},
		{"missing address", 1, items, "", "555"},
		{"missing phone", 1, items, "addr", ""},
		{"zero quantity", 1, []SubmitItem{{ProductID: 1, Quantity: 0}}, "addr", "555"},
		{"negative quantity", 1, []SubmitItem{{ProductID: 1, Quantity: -2}}, "addr", "555"},
		{"bad product id", 1, []SubmitItem{{ProductID: 0, Quantity: 1}}, "addr", "555"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.buyerID, tc.items, tc.address, tc.phone)
			require.Error(t, err)
			assert.IsType(t, ValidationError{}, err)
		})
	}
}

func TestTimelineHappyPath(t *testing.T) {
	o := Order{Status: StatusProcessing}
	steps := o.Timeline()
	require.Len(t, steps, 5)

	assert.True(t, steps[0].Reached)
	assert.True(t, steps[1].Reached)
	assert.True(t, steps[2].Reached)
	assert.True(t, steps[2].Current)
	assert.False(t, steps[3].Reached)
	assert.False(t, steps[4].Reached)
}

func TestTimelineFailed(t *testing.T) {
	o := Order{Status: StatusFailed, FailureReason: "insufficient stock"}
	steps := o.Timeline()
	require.Len(t, steps, 6)

	last := steps[5]
	assert.Equal(t, StatusFailed, last.Status)
	assert.Equal(t, "Order failed: insufficient stock", last.Label)
	assert.True(t, last.Current)
	for _, s := range steps[:5] {
		assert.False(t, s.Reached)
	}
}

func TestTimelineCancelled(t *testing.T) {
	steps := Order{Status: StatusCancelled}.Timeline()
	require.Len(t, steps, 6)
	assert.Equal(t, "Order cancelled", steps[5].Label)
}

func TestEstimatedDelivery(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	o := Order{Status: StatusPaid, CreatedAt: created}
	assert.Equal(t, created.Add(5*24*time.Hour), o.EstimatedDelivery())

	for _, s := range []Status{StatusCancelled, StatusFailed, StatusDelivered} {
		assert.True(t, Order{Status: s, CreatedAt: created}.EstimatedDelivery().IsZero())
	}
}
