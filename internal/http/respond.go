package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/checkout"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleError converts a client-core error into an HTTP status and the
// message a user should see.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *domain.ValidationError
		auth       *domain.AuthError
		rejected   *domain.ServerRejectedError
		transport  *domain.TransportError
	)

	var (
		httpStatus int
		code       string
	)
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		httpStatus, code = http.StatusUnauthorized, "unauthenticated"
	case errors.As(err, &validation):
		httpStatus, code = http.StatusBadRequest, "invalid_argument"
	case errors.As(err, &auth):
		code = string(auth.Reason)
		switch auth.Reason {
		case domain.AuthAccountLocked:
			httpStatus = http.StatusLocked
		case domain.AuthEmailUnverified:
			httpStatus = http.StatusForbidden
		default:
			httpStatus = http.StatusUnauthorized
		}
	case errors.Is(err, checkout.ErrOrderNotPaid):
		httpStatus, code = http.StatusConflict, "order_not_paid"
	case errors.As(err, &rejected):
		httpStatus, code = rejected.StatusCode, rejected.Code
		if httpStatus < 400 || httpStatus >= 500 {
			httpStatus = http.StatusBadGateway
		}
		if code == "" {
			code = "rejected"
		}
	case errors.Is(err, context.DeadlineExceeded):
		httpStatus, code = http.StatusGatewayTimeout, "timeout"
	case errors.As(err, &transport):
		httpStatus, code = http.StatusBadGateway, "upstream_unavailable"
	default:
		httpStatus, code = http.StatusInternalServerError, "internal_error"
	}

	log := logger.FromContext(r.Context(), slog.Default())
	if httpStatus >= 500 {
		log.ErrorContext(r.Context(), "request failed", "status", httpStatus, "error", err)
	} else {
		log.DebugContext(r.Context(), "request rejected", "status", httpStatus, "error", err)
	}
	respondError(w, httpStatus, code, domain.UserMessage(err))
}
