package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

type CartHandler struct {
	cart    CartService
	timeout time.Duration
}

func NewCartHandler(cart CartService, timeout time.Duration) *CartHandler {
	return &CartHandler{
		cart:    cart,
		timeout: timeout,
	}
}

type AddItemRequestDTO struct {
	ItemID       string               `json:"itemId"`
	ItemType     string               `json:"itemType"`
	Name         string               `json:"name"`
	Image        string               `json:"image"`
	Price        float64              `json:"price"`
	Quantity     int                  `json:"quantity"`
	BookingRange *domain.BookingRange `json:"bookingRange"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartResponseDTO struct {
	Items []domain.CartLine `json:"items"`
	Total float64           `json:"total"`
	Count int               `json:"count"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.view())
}

// POST /api/v1/cart/refresh
func (h *CartHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.cart.FetchCartItems(ctx); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.view())
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	kind, err := domain.ParseItemType(req.ItemType)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if req.BookingRange != nil {
		if err := req.BookingRange.Validate(); err != nil {
			handleError(w, r, err)
			return
		}
	}

	err = h.cart.AddToCart(ctx, domain.CartCandidate{
		ItemID:   req.ItemID,
		ItemType: kind,
		Name:     req.Name,
		Image:    req.Image,
		Price:    req.Price,
		Quantity: req.Quantity,
		Booking:  req.BookingRange,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, h.view())
}

// PATCH /api/v1/cart/items/{line_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := lineID(w, r)
	if !ok {
		return
	}
	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := h.cart.UpdateQuantity(ctx, id, req.Quantity); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.view())
}

// PUT /api/v1/cart/items/{line_id}/booking
func (h *CartHandler) SetBooking(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := lineID(w, r)
	if !ok {
		return
	}
	var req domain.BookingRange
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "bookingRange needs from and till dates")
		return
	}
	if err := h.cart.SetBookingRange(ctx, id, req); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.view())
}

// DELETE /api/v1/cart/items/{line_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := lineID(w, r)
	if !ok {
		return
	}
	if err := h.cart.RemoveFromCart(ctx, id); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.view())
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.cart.ClearCart(ctx); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.view())
}

func (h *CartHandler) view() CartResponseDTO {
	lines := h.cart.Lines()
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return CartResponseDTO{Items: lines, Total: h.cart.Total(), Count: h.cart.Count()}
}

func lineID(w http.ResponseWriter, r *http.Request) (domain.LineID, bool) {
	raw := chi.URLParam(r, "line_id")
	kind, itemID, err := domain.ParseLineID(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_line_id", "line_id must look like venue:<id>")
		return "", false
	}
	return domain.NewLineID(kind, itemID), true
}
