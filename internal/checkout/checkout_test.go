package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/api/apitest"
	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/session"
)

const email = "groom@example.com"

type env struct {
	srv      *apitest.Server
	sessions *session.Manager
	cart     *cart.Cart
	svc      *Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddAccount(apitest.Account{User: domain.User{ID: "u1", Email: email}, Password: "pw"})

	client, err := api.NewClient(api.Options{BaseURL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	sessions := session.NewManager(client, nil)
	client.SetAuthenticator(sessions)
	c := cart.New(cart.NewAPIRemote(client), sessions, nil)
	return &env{srv: srv, sessions: sessions, cart: c, svc: NewService(client, c, sessions, nil)}
}

func (e *env) login(t *testing.T) {
	t.Helper()
	_, err := e.sessions.Login(context.Background(), email, "pw")
	require.NoError(t, err)
}

func booking(t *testing.T, from, till string) *domain.BookingRange {
	t.Helper()
	r, err := domain.NewBookingRange(from, till)
	require.NoError(t, err)
	return r
}

func TestOrderLines_StripsBookingFromNonBookable(t *testing.T) {
	r := booking(t, "2026-05-01", "2026-05-02")
	lines := []domain.CartLine{
		{ItemID: "v1", ItemType: domain.ItemTypeVenue, Price: 500, Quantity: 1, Booking: r},
		{ItemID: "s1", ItemType: domain.ItemTypeStudio, Price: 200, Quantity: 2},
		{ItemID: "d1", ItemType: domain.ItemTypeDish, Price: 10, Quantity: 30, Booking: r},
	}

	got := OrderLines(lines)
	assert.Equal(t, []domain.OrderLine{
		{ItemID: "v1", ItemType: domain.ItemTypeVenue, Quantity: 1, BookedFrom: "2026-05-01", BookedTill: "2026-05-02"},
		{ItemID: "s1", ItemType: domain.ItemTypeStudio, Quantity: 2},
		{ItemID: "d1", ItemType: domain.ItemTypeDish, Quantity: 30},
	}, got)
}

func TestCheckout_Guards(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.Checkout(ctx)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	e.login(t)
	_, err = e.svc.Checkout(ctx)
	require.ErrorIs(t, err, domain.ErrEmptyCart)
	assert.Zero(t, e.srv.CountRequests(http.MethodPost, "/api/orders"))
}

func TestCheckout_CreatesDraftOrder(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	ctx := context.Background()

	v := domain.CartCandidate{ItemID: "v1", ItemType: domain.ItemTypeVenue, Name: "Lake Hall", Price: 500, Quantity: 1,
		Booking: booking(t, "2026-08-14", "2026-08-15")}
	require.NoError(t, e.cart.AddToCart(ctx, v))
	require.NoError(t, e.cart.AddToCart(ctx, domain.CartCandidate{ItemID: "d1", ItemType: domain.ItemTypeDish, Name: "Cake", Price: 40, Quantity: 2}))

	order, err := e.svc.Checkout(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDraft, order.Status)
	assert.InDelta(t, 580.0, order.TotalAmount, 0.001)
	assert.Len(t, e.cart.Lines(), 2, "checkout leaves the cart alone")

	req, ok := e.srv.LastRequest(http.MethodPost, "/api/orders")
	require.True(t, ok)
	assert.NotEmpty(t, req.Header.Get("Idempotency-Key"))
	var body struct {
		Items []map[string]any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(req.Body, &body))
	require.Len(t, body.Items, 2)
	assert.Equal(t, "2026-08-14", body.Items[0]["bookedFrom"])
	assert.NotContains(t, body.Items[1], "bookedFrom")
}

func TestCheckout_WaitsForPendingCartChange(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	ctx := context.Background()
	require.NoError(t, e.cart.AddToCart(ctx, domain.CartCandidate{ItemID: "d2", ItemType: domain.ItemTypeDish, Price: 15, Quantity: 1}))

	e.srv.Hold()
	e.srv.FailNext(http.MethodPost, "/api/cart/items", http.StatusConflict, "item no longer available")
	added := make(chan error, 1)
	go func() {
		added <- e.cart.AddToCart(ctx, domain.CartCandidate{ItemID: "d1", ItemType: domain.ItemTypeDish, Price: 40, Quantity: 2})
	}()
	require.Eventually(t, func() bool {
		return e.srv.CountRequests(http.MethodPost, "/api/cart/items") == 2
	}, time.Second, 5*time.Millisecond)

	type result struct {
		order *domain.Order
		err   error
	}
	checkedOut := make(chan result, 1)
	go func() {
		order, err := e.svc.Checkout(ctx)
		checkedOut <- result{order, err}
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, e.srv.CountRequests(http.MethodPost, "/api/orders"), "order must not be built from an unconfirmed line")

	e.srv.Release()
	var stale *domain.StaleStateError
	require.ErrorAs(t, <-added, &stale)

	res := <-checkedOut
	require.NoError(t, res.err)
	require.Len(t, res.order.Items, 1)
	assert.Equal(t, "d2", res.order.Items[0].ItemID)
}

func TestCheckout_RejectionIsVerbatim(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	ctx := context.Background()
	require.NoError(t, e.cart.AddToCart(ctx, domain.CartCandidate{ItemID: "v1", ItemType: domain.ItemTypeVenue, Price: 500, Quantity: 1}))

	e.srv.FailNext(http.MethodPost, "/api/orders", http.StatusConflict, "Venue is already booked for these dates")
	_, err := e.svc.Checkout(ctx)

	var rejected *domain.ServerRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Venue is already booked for these dates", err.Error())
	assert.Len(t, e.cart.Lines(), 1)
}

func TestFinalize(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	ctx := context.Background()
	require.NoError(t, e.cart.AddToCart(ctx, domain.CartCandidate{ItemID: "d1", ItemType: domain.ItemTypeDish, Price: 40, Quantity: 1}))

	order, err := e.svc.Checkout(ctx)
	require.NoError(t, err)

	_, err = e.svc.Finalize(ctx, order.ID)
	require.ErrorIs(t, err, ErrOrderNotPaid)
	assert.Len(t, e.cart.Lines(), 1)

	e.srv.SetOrderStatus(order.ID, domain.OrderStatusConfirmed)
	got, err := e.svc.Finalize(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, got.Status)
	assert.Empty(t, e.cart.Lines())
	assert.Empty(t, e.srv.Cart(email))

	clears := e.srv.CountRequests(http.MethodDelete, "/api/cart")
	_, err = e.svc.Finalize(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, clears, e.srv.CountRequests(http.MethodDelete, "/api/cart"))
}

func TestFinalize_UnknownOrder(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	_, err := e.svc.Finalize(context.Background(), "missing")
	var rejected *domain.ServerRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusNotFound, rejected.StatusCode)
}
