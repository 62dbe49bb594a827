// Package checkout turns the signed-in user's cart into a draft order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/google/uuid"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
)

var ErrOrderNotPaid = errors.New("order has not been paid yet")

type API interface {
	Get(ctx context.Context, path string, out any, opts ...api.RequestOption) error
	Post(ctx context.Context, path string, body, out any, opts ...api.RequestOption) error
}

// CartReader is the part of the cart checkout needs. Settled must wait for
// in-flight cart changes so an order never carries a line that is about to
// be rolled back.
type CartReader interface {
	Settled(ctx context.Context) ([]domain.CartLine, error)
	ClearCart(ctx context.Context) error
}

type SessionReader interface {
	IsAuthenticated() bool
}

type Service struct {
	api     API
	cart    CartReader
	session SessionReader
	logger  *slog.Logger
	newKey  func() string
}

func NewService(client API, cart CartReader, session SessionReader, log *slog.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		api:     client,
		cart:    cart,
		session: session,
		logger:  log,
		newKey:  uuid.NewString,
	}
}

type createOrderRequest struct {
	Items []domain.OrderLine `json:"items"`
}

// Checkout creates a draft order from the current cart. The cart itself is
// left alone; it is cleared by Finalize once the order is paid.
func (s *Service) Checkout(ctx context.Context) (*domain.Order, error) {
	if !s.session.IsAuthenticated() {
		return nil, domain.ErrUnauthenticated
	}
	lines, err := s.cart.Settled(ctx)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, domain.ErrEmptyCart
	}

	req := createOrderRequest{Items: OrderLines(lines)}
	key := s.newKey()
	log := logger.FromContext(ctx, s.logger).With("idempotency_key", key, "items", len(req.Items))

	var order domain.Order
	if err := s.api.Post(ctx, "/api/orders", req, &order, api.WithHeader("Idempotency-Key", key)); err != nil {
		log.WarnContext(ctx, "create order failed", "error", err)
		return nil, err
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusDraft
	}
	log.InfoContext(ctx, "order created", "order_id", order.ID, "total", order.TotalAmount)
	return &order, nil
}

// Finalize runs after the payment step. It re-reads the order and empties
// the cart once the backend reports the order as paid. Calling it again is
// harmless.
func (s *Service) Finalize(ctx context.Context, orderID string) (*domain.Order, error) {
	if orderID == "" {
		return nil, &domain.ValidationError{Field: "orderId", Reason: "required"}
	}
	if !s.session.IsAuthenticated() {
		return nil, domain.ErrUnauthenticated
	}

	var order domain.Order
	if err := s.api.Get(ctx, "/api/orders/"+url.PathEscape(orderID), &order); err != nil {
		return nil, err
	}
	if !order.Status.Paid() {
		return &order, fmt.Errorf("order %s is %s: %w", order.ID, order.Status, ErrOrderNotPaid)
	}
	lines, err := s.cart.Settled(ctx)
	if err != nil {
		return &order, err
	}
	if len(lines) == 0 {
		return &order, nil
	}
	if err := s.cart.ClearCart(ctx); err != nil {
		return &order, fmt.Errorf("clear cart after payment: %w", err)
	}
	logger.FromContext(ctx, s.logger).InfoContext(ctx, "cart cleared after payment", "order_id", order.ID)
	return &order, nil
}

// OrderLines maps cart lines to order items. Booking dates travel only with
// venue and studio lines.
func OrderLines(lines []domain.CartLine) []domain.OrderLine {
	out := make([]domain.OrderLine, 0, len(lines))
	for _, l := range lines {
		item := domain.OrderLine{
			ItemID:   l.ItemID,
			ItemType: l.ItemType,
			Quantity: l.Quantity,
		}
		if l.ItemType.Bookable() && l.Booking != nil {
			item.BookedFrom = l.Booking.From.Format(domain.DateLayout)
			item.BookedTill = l.Booking.Till.Format(domain.DateLayout)
		}
		out = append(out, item)
	}
	return out
}
