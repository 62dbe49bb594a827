package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/domain"
)

// Remote persists the cart on the backend for the signed-in user.
type Remote interface {
	Fetch(ctx context.Context) ([]domain.CartLine, error)
	Add(ctx context.Context, line domain.CartLine) error
	UpdateQuantity(ctx context.Context, id domain.LineID, quantity int) error
	SetBooking(ctx context.Context, id domain.LineID, r domain.BookingRange) error
	Remove(ctx context.Context, id domain.LineID) error
	Clear(ctx context.Context) error
}

// APIRemote is the Remote backed by the shop REST API.
type APIRemote struct {
	client *api.Client
}

func NewAPIRemote(client *api.Client) *APIRemote {
	return &APIRemote{client: client}
}

// payload accepts {"items": [...]} and the legacy bare array.
type payload struct {
	Items []domain.CartLine `json:"items"`
}

func (p *payload) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		return json.Unmarshal(b, &p.Items)
	}
	type plain payload
	return json.Unmarshal(b, (*plain)(p))
}

type addItemRequest struct {
	ItemID   string               `json:"itemId"`
	ItemType domain.ItemType      `json:"itemType"`
	Name     string               `json:"name"`
	Image    string               `json:"image,omitempty"`
	Price    float64              `json:"price"`
	Quantity int                  `json:"quantity"`
	Booking  *domain.BookingRange `json:"bookingRange,omitempty"`
}

func (r *APIRemote) Fetch(ctx context.Context) ([]domain.CartLine, error) {
	var p payload
	if err := r.client.Get(ctx, "/api/cart", &p); err != nil {
		return nil, err
	}
	return p.Items, nil
}

func (r *APIRemote) Add(ctx context.Context, line domain.CartLine) error {
	req := addItemRequest{
		ItemID:   line.ItemID,
		ItemType: line.ItemType,
		Name:     line.Name,
		Image:    line.Image,
		Price:    line.Price,
		Quantity: line.Quantity,
		Booking:  line.Booking,
	}
	return r.client.Post(ctx, "/api/cart/items", req, nil)
}

func (r *APIRemote) UpdateQuantity(ctx context.Context, id domain.LineID, quantity int) error {
	return r.client.Patch(ctx, itemPath(id), map[string]int{"quantity": quantity}, nil)
}

func (r *APIRemote) SetBooking(ctx context.Context, id domain.LineID, br domain.BookingRange) error {
	return r.client.Put(ctx, itemPath(id)+"/booking", br, nil)
}

func (r *APIRemote) Remove(ctx context.Context, id domain.LineID) error {
	return r.client.Delete(ctx, itemPath(id), nil)
}

func (r *APIRemote) Clear(ctx context.Context) error {
	return r.client.Delete(ctx, "/api/cart", nil)
}

func itemPath(id domain.LineID) string {
	return "/api/cart/items/" + url.PathEscape(string(id))
}
