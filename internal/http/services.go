package http

import (
	"context"

	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/domain"
)

type SessionService interface {
	Current() domain.Session
	IsAuthenticated() bool
	Login(ctx context.Context, email, password string) (*domain.User, error)
	Signup(ctx context.Context, name, email, password, confirmPassword string) (*domain.User, error)
	RefreshAuth(ctx context.Context, token string) (*domain.User, error)
	Logout(ctx context.Context)
}

type CartService interface {
	Lines() []domain.CartLine
	Total() float64
	Count() int
	FetchCartItems(ctx context.Context) error
	AddToCart(ctx context.Context, c domain.CartCandidate) error
	UpdateQuantity(ctx context.Context, id domain.LineID, quantity int) error
	SetBookingRange(ctx context.Context, id domain.LineID, r domain.BookingRange) error
	RemoveFromCart(ctx context.Context, id domain.LineID) error
	ClearCart(ctx context.Context) error
}

type CheckoutService interface {
	Checkout(ctx context.Context) (*domain.Order, error)
	Finalize(ctx context.Context, orderID string) (*domain.Order, error)
}

type OrdersService interface {
	ListMine(ctx context.Context, page int) (domain.Page[domain.Order], error)
	Get(ctx context.Context, id string) (*domain.Order, error)
}

type CatalogService interface {
	List(ctx context.Context, kind domain.ItemType, q catalog.Query) (domain.Page[domain.CatalogEntity], error)
	Get(ctx context.Context, kind domain.ItemType, id string) (*domain.CatalogEntity, error)
	SearchAll(ctx context.Context, term string) (map[domain.ItemType][]domain.CatalogEntity, error)
}
