package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of booking dates.
const DateLayout = "2006-01-02"

type ItemType string

const (
	ItemTypeVenue      ItemType = "venue"
	ItemTypeStudio     ItemType = "studio"
	ItemTypeDish       ItemType = "dish"
	ItemTypeDecoration ItemType = "decoration"
)

// ItemTypes lists the catalog kinds in display order.
var ItemTypes = []ItemType{ItemTypeVenue, ItemTypeStudio, ItemTypeDish, ItemTypeDecoration}

// ParseItemType normalizes a user or server supplied tag. "cuisine" is an
// alias of dish.
func ParseItemType(s string) (ItemType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "venue", "venues":
		return ItemTypeVenue, nil
	case "studio", "studios":
		return ItemTypeStudio, nil
	case "dish", "dishes", "cuisine", "cuisines":
		return ItemTypeDish, nil
	case "decoration", "decorations":
		return ItemTypeDecoration, nil
	}
	return "", &ValidationError{Field: "itemType", Reason: fmt.Sprintf("unknown item type %q", s)}
}

// Bookable reports whether lines of this type may carry a booking range.
func (t ItemType) Bookable() bool {
	return t == ItemTypeVenue || t == ItemTypeStudio
}

// Plural is the collection segment used by the catalog endpoints.
func (t ItemType) Plural() string {
	switch t {
	case ItemTypeDish:
		return "dishes"
	default:
		return string(t) + "s"
	}
}

func (t ItemType) String() string {
	return string(t)
}

func (t *ItemType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseItemType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// BookingRange is the reserved service period of a venue or studio line.
type BookingRange struct {
	From time.Time
	Till time.Time
}

func NewBookingRange(from, till string) (*BookingRange, error) {
	f, err := time.Parse(DateLayout, from)
	if err != nil {
		return nil, &ValidationError{Field: "bookingRange.from", Reason: "expected YYYY-MM-DD"}
	}
	t, err := time.Parse(DateLayout, till)
	if err != nil {
		return nil, &ValidationError{Field: "bookingRange.till", Reason: "expected YYYY-MM-DD"}
	}
	return &BookingRange{From: f, Till: t}, nil
}

// Validate checks From < Till.
func (r BookingRange) Validate() error {
	if !r.From.Before(r.Till) {
		return &ValidationError{Field: "bookingRange", Reason: "from must be before till"}
	}
	return nil
}

func (r BookingRange) Equal(o BookingRange) bool {
	return r.From.Equal(o.From) && r.Till.Equal(o.Till)
}

type bookingRangeJSON struct {
	From string `json:"from"`
	Till string `json:"till"`
}

func (r BookingRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(bookingRangeJSON{
		From: r.From.Format(DateLayout),
		Till: r.Till.Format(DateLayout),
	})
}

func (r *BookingRange) UnmarshalJSON(b []byte) error {
	var raw bookingRangeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := parseBookingRange(raw.From, raw.Till)
	if err != nil {
		return err
	}
	*r = *parsed
	return nil
}

// parseBookingRange accepts plain dates as well as RFC 3339 timestamps,
// which some backend endpoints return.
func parseBookingRange(from, till string) (*BookingRange, error) {
	f, err := parseDate(from)
	if err != nil {
		return nil, fmt.Errorf("booking from: %w", err)
	}
	t, err := parseDate(till)
	if err != nil {
		return nil, fmt.Errorf("booking till: %w", err)
	}
	return &BookingRange{From: f, Till: t}, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
