package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Services struct {
	Session  SessionService
	Cart     CartService
	Checkout CheckoutService
	Orders   OrdersService
	Catalog  CatalogService
}

// NewRouter builds the local gateway the UI talks to.
func NewRouter(s Services, log *slog.Logger, timeout time.Duration) http.Handler {
	sessionHandler := NewSessionHandler(s.Session, s.Cart, timeout)
	cartHandler := NewCartHandler(s.Cart, timeout)
	checkoutHandler := NewCheckoutHandler(s.Checkout, timeout)
	ordersHandler := NewOrdersHandler(s.Orders, timeout)
	catalogHandler := NewCatalogHandler(s.Catalog, timeout)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(log))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", sessionHandler.Get)
			r.Post("/login", sessionHandler.Login)
			r.Post("/signup", sessionHandler.Signup)
			r.Post("/oauth", sessionHandler.OAuth)
			r.Post("/logout", sessionHandler.Logout)
		})

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/search", catalogHandler.Search)
			r.Get("/{kind}", catalogHandler.List)
			r.Get("/{kind}/{id}", catalogHandler.Get)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireSession(s.Session))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.ClearCart)
				r.Post("/refresh", cartHandler.Refresh)
				r.Post("/items", cartHandler.AddItem)
				r.Patch("/items/{line_id}", cartHandler.UpdateQuantity)
				r.Put("/items/{line_id}/booking", cartHandler.SetBooking)
				r.Delete("/items/{line_id}", cartHandler.RemoveItem)
			})
			r.Post("/checkout", checkoutHandler.Checkout)
			r.Post("/checkout/{order_id}/finalize", checkoutHandler.Finalize)
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordersHandler.ListOrders)
				r.Get("/{order_id}", ordersHandler.GetOrder)
			})
		})
	})

	return otelhttp.NewHandler(r, "storefront-gateway")
}
