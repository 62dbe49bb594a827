package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
)

type SessionHandler struct {
	sessions SessionService
	cart     CartService
	timeout  time.Duration
}

func NewSessionHandler(sessions SessionService, cart CartService, timeout time.Duration) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		cart:     cart,
		timeout:  timeout,
	}
}

type LoginRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignupRequestDTO struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type OAuthRequestDTO struct {
	Token string `json:"token"`
}

type SessionResponseDTO struct {
	Authenticated bool         `json:"authenticated"`
	User          *domain.User `json:"user,omitempty"`
}

// GET /api/v1/session
func (h *SessionHandler) Get(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.view())
}

// POST /api/v1/session/login
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req LoginRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if _, err := h.sessions.Login(ctx, req.Email, req.Password); err != nil {
		handleError(w, r, err)
		return
	}
	h.loadCart(ctx)
	respondJSON(w, http.StatusOK, h.view())
}

// POST /api/v1/session/signup
func (h *SessionHandler) Signup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SignupRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if _, err := h.sessions.Signup(ctx, req.Name, req.Email, req.Password, req.ConfirmPassword); err != nil {
		handleError(w, r, err)
		return
	}
	h.loadCart(ctx)
	respondJSON(w, http.StatusCreated, h.view())
}

// POST /api/v1/session/oauth
func (h *SessionHandler) OAuth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req OAuthRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if _, err := h.sessions.RefreshAuth(ctx, req.Token); err != nil {
		handleError(w, r, err)
		return
	}
	h.loadCart(ctx)
	respondJSON(w, http.StatusOK, h.view())
}

// POST /api/v1/session/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(r.Context())
	respondJSON(w, http.StatusOK, h.view())
}

// loadCart reads the signed-in user's server cart. The session stands even
// when this fails; POST /cart/refresh retries.
func (h *SessionHandler) loadCart(ctx context.Context) {
	if err := h.cart.FetchCartItems(ctx); err != nil {
		logger.FromContext(ctx, nil).WarnContext(ctx, "load cart after sign-in failed", "error", err)
	}
}

func (h *SessionHandler) view() SessionResponseDTO {
	s := h.sessions.Current()
	return SessionResponseDTO{Authenticated: s.IsAuthenticated(), User: s.User}
}
