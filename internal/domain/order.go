package domain

import "time"

type OrderStatus string

const (
	OrderStatusDraft      OrderStatus = "draft"
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusDraft:      {OrderStatusPending, OrderStatusCancelled},
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusCompleted, OrderStatusCancelled},
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// Paid reports whether the order has moved past the payment step.
func (s OrderStatus) Paid() bool {
	switch s {
	case OrderStatusConfirmed, OrderStatusProcessing, OrderStatusCompleted:
		return true
	}
	return false
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusDraft, OrderStatusPending, OrderStatusConfirmed,
		OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether a status update from s to next is legal.
func CanTransitionTo(s, next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) String() string {
	return string(s)
}

// OrderLine is the payload shape of one order item. Booking fields are only
// ever set for venue and studio lines.
type OrderLine struct {
	ItemID     string   `json:"itemId"`
	ItemType   ItemType `json:"itemType"`
	Name       string   `json:"name,omitempty"`
	Image      string   `json:"image,omitempty"`
	Price      float64  `json:"price,omitempty"`
	Quantity   int      `json:"quantity"`
	BookedFrom string   `json:"bookedFrom,omitempty"`
	BookedTill string   `json:"bookedTill,omitempty"`
}

// Booking parses the booking fields, returning nil when absent or invalid.
func (l OrderLine) Booking() *BookingRange {
	if l.BookedFrom == "" || l.BookedTill == "" {
		return nil
	}
	r, err := parseBookingRange(l.BookedFrom, l.BookedTill)
	if err != nil {
		return nil
	}
	return r
}

type Order struct {
	ID              string      `json:"id"`
	Items           []OrderLine `json:"items"`
	Status          OrderStatus `json:"status"`
	PaymentStatus   string      `json:"paymentStatus,omitempty"`
	PaymentType     string      `json:"paymentType,omitempty"`
	TotalAmount     float64     `json:"totalAmount"`
	PaidAmount      float64     `json:"paidAmount"`
	RemainingAmount float64     `json:"remainingAmount"`
	CreatedAt       time.Time   `json:"createdAt"`
}
