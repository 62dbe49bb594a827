package domain

import (
	"fmt"
	"strings"
)

// LineID identifies a cart line by its (itemType, itemId) pair.
type LineID string

func NewLineID(t ItemType, itemID string) LineID {
	return LineID(fmt.Sprintf("%s:%s", t, itemID))
}

// Canonical rewrites id with its item type in canonical form, so
// "cuisine:d1" and "dish:d1" address the same line. Malformed ids are
// returned unchanged.
func (id LineID) Canonical() LineID {
	kind, itemID, err := ParseLineID(string(id))
	if err != nil {
		return id
	}
	return NewLineID(kind, itemID)
}

// ParseLineID splits a line id back into its parts.
func ParseLineID(s string) (ItemType, string, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return "", "", &ValidationError{Field: "lineId", Reason: fmt.Sprintf("malformed line id %q", s)}
	}
	t, err := ParseItemType(kind)
	if err != nil {
		return "", "", err
	}
	return t, id, nil
}

type CartLine struct {
	ItemID   string        `json:"itemId"`
	ItemType ItemType      `json:"itemType"`
	Name     string        `json:"name"`
	Image    string        `json:"image,omitempty"`
	Price    float64       `json:"price"`
	Quantity int           `json:"quantity"`
	Booking  *BookingRange `json:"bookingRange,omitempty"`
}

func (l CartLine) ID() LineID {
	return NewLineID(l.ItemType, l.ItemID)
}

func (l CartLine) Subtotal() float64 {
	return l.Price * float64(l.Quantity)
}

// Clone returns a copy that shares no pointers with l.
func (l CartLine) Clone() CartLine {
	if l.Booking != nil {
		b := *l.Booking
		l.Booking = &b
	}
	return l
}

// CartCandidate is a catalog selection about to be added to the cart.
type CartCandidate struct {
	ItemID   string
	ItemType ItemType
	Name     string
	Image    string
	Price    float64
	Quantity int
	Booking  *BookingRange
}

// Validate rejects candidates the cart must never accept. Booking order
// (from < till) is checked by callers.
func (c CartCandidate) Validate() error {
	if strings.TrimSpace(c.ItemID) == "" {
		return &ValidationError{Field: "itemId", Reason: "required"}
	}
	kind, err := ParseItemType(string(c.ItemType))
	if err != nil {
		return err
	}
	if c.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if c.Price < 0 {
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if c.Booking != nil && !kind.Bookable() {
		return &ValidationError{Field: "bookingRange", Reason: fmt.Sprintf("%s items cannot be booked", kind)}
	}
	return nil
}

// Line builds the cart line with the item type in canonical form.
func (c CartCandidate) Line() CartLine {
	kind := c.ItemType
	if parsed, err := ParseItemType(string(kind)); err == nil {
		kind = parsed
	}
	return CartLine{
		ItemID:   c.ItemID,
		ItemType: kind,
		Name:     c.Name,
		Image:    c.Image,
		Price:    c.Price,
		Quantity: c.Quantity,
		Booking:  c.Booking,
	}.Clone()
}
