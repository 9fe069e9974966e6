package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/cartstore"
	"github.com/fjod/storefront-checkout/internal/checkout"
	"github.com/fjod/storefront-checkout/internal/gate"
	"github.com/fjod/storefront-checkout/pkg/circuitbreaker"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// ValidationResponse carries the invalid fields in report order and what the page should do about them.
type ValidationResponse struct {
	ErrorResponse
	Directives *gate.Directives `json:"directives"`
}

// RedirectResponse tells the browser to navigate. It is not an error.
type RedirectResponse struct {
	Status      string `json:"status"`
	RedirectURL string `json:"redirect_url"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func respondRedirect(w http.ResponseWriter, location string) {
	respondJSON(w, http.StatusOK, RedirectResponse{Status: "redirect", RedirectURL: location})
}

// handleError maps checkout errors to HTTP responses. Messages come from
// domain.UserMessage so nothing internal reaches the buyer.
func (h *CheckoutHandler) handleError(w http.ResponseWriter, err error, directives *gate.Directives) {
	if redirect, ok := domain.AsRedirect(err); ok {
		respondRedirect(w, redirect.Location)
		return
	}

	var invalid *domain.ValidationError
	var declined *domain.ProviderDeclinedError
	switch {
	case errors.As(err, &invalid):
		if directives == nil {
			directives = &gate.Directives{Invalid: invalid.Issues}
		}
		respondJSON(w, http.StatusUnprocessableEntity, ValidationResponse{
			ErrorResponse: ErrorResponse{Error: domain.UserMessage(err), Code: "invalid_fields"},
			Directives:    directives,
		})
	case errors.As(err, &declined):
		respondJSON(w, http.StatusPaymentRequired, ErrorResponse{
			Error:   domain.UserMessage(err),
			Code:    "payment_declined",
			Details: declined.Code,
		})
	case errors.Is(err, domain.ErrSubmitInProgress):
		respondError(w, http.StatusConflict, "submit_in_progress", domain.UserMessage(err))
	case errors.Is(err, domain.ErrOrderAlreadyPlaced):
		respondError(w, http.StatusConflict, "order_already_placed", domain.UserMessage(err))
	case errors.Is(err, domain.ErrNoPaymentMethod):
		respondError(w, http.StatusBadRequest, "no_payment_method", domain.UserMessage(err))
	case errors.Is(err, domain.ErrUnknownMethod):
		respondError(w, http.StatusBadRequest, "unknown_payment_method", err.Error())
	case errors.Is(err, domain.ErrExpressViaWidget):
		respondError(w, http.StatusBadRequest, "express_via_widget", err.Error())
	case errors.Is(err, checkout.ErrUnknownField):
		respondError(w, http.StatusBadRequest, "unknown_field", err.Error())
	case errors.Is(err, checkout.ErrPageNotMounted):
		respondError(w, http.StatusNotFound, "page_not_mounted", err.Error())
	case errors.Is(err, cartstore.ErrCartNotFound):
		respondError(w, http.StatusNotFound, "cart_not_found", err.Error())
	case errors.Is(err, domain.ErrConfiguration), circuitbreaker.IsOpen(err):
		h.logger.Error("checkout unavailable", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", domain.GenericRetryMessage)
	default:
		h.logger.Error("checkout request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", domain.GenericRetryMessage)
	}
}
