// Package orders reads the signed-in user's orders and, for admins, moves
// them through their lifecycle.
package orders

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
)

type Service struct {
	client *api.Client
	logger *slog.Logger
}

func NewService(client *api.Client, log *slog.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{client: client, logger: log}
}

// ListMine returns one page of the user's orders. Page numbers start at 1;
// 0 asks for the server default.
func (s *Service) ListMine(ctx context.Context, page int) (domain.Page[domain.Order], error) {
	var opts []api.RequestOption
	if page > 0 {
		opts = append(opts, api.WithQuery(url.Values{"page": {strconv.Itoa(page)}}))
	}
	env, err := s.client.DoEnvelope(ctx, http.MethodGet, "/api/orders/me", nil, opts...)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}
	return api.DecodePage[domain.Order](env.Data)
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	if id == "" {
		return nil, &domain.ValidationError{Field: "orderId", Reason: "required"}
	}
	var order domain.Order
	if err := s.client.Get(ctx, "/api/orders/"+url.PathEscape(id), &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateStatus moves an order from one status to the next. Illegal moves
// are refused before anything is sent.
func (s *Service) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error) {
	if id == "" {
		return nil, &domain.ValidationError{Field: "orderId", Reason: "required"}
	}
	if !to.Valid() {
		return nil, &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", to)}
	}
	if !domain.CanTransitionTo(from, to) {
		return nil, &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("cannot move order from %s to %s", from, to)}
	}

	var order domain.Order
	if err := s.client.Patch(ctx, "/api/orders/"+url.PathEscape(id)+"/status", map[string]domain.OrderStatus{"status": to}, &order); err != nil {
		return nil, err
	}
	logger.FromContext(ctx, s.logger).InfoContext(ctx, "order status updated", "order_id", id, "from", from, "to", to)
	return &order, nil
}
