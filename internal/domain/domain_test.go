package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseItemType(t *testing.T) {
	tests := []struct {
		in   string
		want ItemType
	}{
		{"venue", ItemTypeVenue},
		{"Venues", ItemTypeVenue},
		{" studio ", ItemTypeStudio},
		{"dishes", ItemTypeDish},
		{"cuisine", ItemTypeDish},
		{"decorations", ItemTypeDecoration},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseItemType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseItemType("photographer")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "itemType", ve.Field)
}

func TestItemType_PluralAndBookable(t *testing.T) {
	assert.Equal(t, "venues", ItemTypeVenue.Plural())
	assert.Equal(t, "dishes", ItemTypeDish.Plural())
	assert.True(t, ItemTypeVenue.Bookable())
	assert.True(t, ItemTypeStudio.Bookable())
	assert.False(t, ItemTypeDish.Bookable())
	assert.False(t, ItemTypeDecoration.Bookable())
}

func TestLineID(t *testing.T) {
	id := NewLineID(ItemTypeVenue, "v1")
	assert.Equal(t, LineID("venue:v1"), id)

	kind, itemID, err := ParseLineID(string(id))
	require.NoError(t, err)
	assert.Equal(t, ItemTypeVenue, kind)
	assert.Equal(t, "v1", itemID)

	for _, bad := range []string{"venue", "venue:", "bogus:1"} {
		_, _, err := ParseLineID(bad)
		assert.Error(t, err, bad)
	}
}

func TestBookingRange(t *testing.T) {
	r, err := NewBookingRange("2025-06-01", "2025-06-02")
	require.NoError(t, err)
	assert.NoError(t, r.Validate())

	same, err := NewBookingRange("2025-06-01", "2025-06-01")
	require.NoError(t, err)
	assert.Error(t, same.Validate())

	_, err = NewBookingRange("06/01/2025", "2025-06-02")
	assert.Error(t, err)

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"2025-06-01","till":"2025-06-02"}`, string(b))

	var decoded BookingRange
	require.NoError(t, json.Unmarshal([]byte(`{"from":"2025-06-01T00:00:00Z","till":"2025-06-02"}`), &decoded))
	assert.True(t, decoded.Equal(*r))
}

func TestCartCandidate_Validate(t *testing.T) {
	booking := &BookingRange{From: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), Till: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)}
	valid := CartCandidate{ItemID: "d1", ItemType: ItemTypeDish, Name: "Soup", Price: 10, Quantity: 1}

	tests := []struct {
		name   string
		mutate func(c *CartCandidate)
		field  string
	}{
		{"missing id", func(c *CartCandidate) { c.ItemID = " " }, "itemId"},
		{"unknown type", func(c *CartCandidate) { c.ItemType = "band" }, "itemType"},
		{"zero quantity", func(c *CartCandidate) { c.Quantity = 0 }, "quantity"},
		{"negative price", func(c *CartCandidate) { c.Price = -1 }, "price"},
		{"booking on dish", func(c *CartCandidate) { c.Booking = booking }, "bookingRange"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			var ve *ValidationError
			require.ErrorAs(t, c.Validate(), &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	assert.NoError(t, valid.Validate())
	venue := CartCandidate{ItemID: "v1", ItemType: ItemTypeVenue, Price: 500, Quantity: 1, Booking: booking}
	assert.NoError(t, venue.Validate())
}

func TestCartLine_CloneDetachesBooking(t *testing.T) {
	orig := CartLine{ItemID: "v1", ItemType: ItemTypeVenue, Price: 500, Quantity: 2, Booking: &BookingRange{From: time.Unix(0, 0)}}
	clone := orig.Clone()
	clone.Booking.From = time.Unix(100, 0)

	assert.Equal(t, time.Unix(0, 0), orig.Booking.From)
	assert.Equal(t, 1000.0, orig.Subtotal())
}

func TestOrderStatus(t *testing.T) {
	assert.True(t, CanTransitionTo(OrderStatusDraft, OrderStatusPending))
	assert.True(t, CanTransitionTo(OrderStatusProcessing, OrderStatusCancelled))
	assert.False(t, CanTransitionTo(OrderStatusCompleted, OrderStatusCancelled))
	assert.False(t, CanTransitionTo(OrderStatusDraft, OrderStatusCompleted))

	assert.True(t, OrderStatusConfirmed.Paid())
	assert.False(t, OrderStatusPending.Paid())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.False(t, OrderStatus("shipped").Valid())
}

func TestOrderLine_Booking(t *testing.T) {
	assert.Nil(t, OrderLine{ItemType: ItemTypeDish}.Booking())
	assert.Nil(t, OrderLine{BookedFrom: "soon", BookedTill: "later"}.Booking())

	r := OrderLine{BookedFrom: "2025-06-01", BookedTill: "2025-06-03"}.Booking()
	require.NotNil(t, r)
	assert.Equal(t, 3, r.Till.Day())
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"unauthenticated", fmt.Errorf("fetch cart: %w", ErrUnauthenticated), "please log in to continue"},
		{"auth", &AuthError{Reason: AuthAccountLocked}, "account is locked"},
		{"validation", ErrEmptyCart, "invalid cart: cart is empty, nothing to checkout"},
		{"rejected", &StaleStateError{Op: "add", Err: &ServerRejectedError{StatusCode: 409, Message: "Item already booked"}}, "Item already booked"},
		{"transport", &TransportError{Op: "fetch", Err: errors.New("dial tcp")}, "something went wrong, try again"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}
