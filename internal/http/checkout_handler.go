package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/checkout"
	"github.com/fjod/storefront-checkout/internal/gate"
	"github.com/fjod/storefront-checkout/internal/payment"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CheckoutHandler struct {
	registry *checkout.Registry
	timeout  time.Duration
	logger   *zap.Logger
}

func NewCheckoutHandler(registry *checkout.Registry, timeout time.Duration, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		registry: registry,
		timeout:  timeout,
		logger:   logger,
	}
}

type MountRequestDTO struct {
	CartID string `json:"cart_id"`
}

type FieldRequestDTO struct {
	Value string `json:"value"`
}

type BlurResponseDTO struct {
	Field   domain.FieldName `json:"field"`
	Valid   bool             `json:"valid"`
	Message string           `json:"message,omitempty"`
}

type InvalidRequestDTO struct {
	Message string `json:"message"`
}

type MethodRequestDTO struct {
	Method domain.PaymentMethod `json:"method"`
}

type SubmitRequestDTO struct {
	PaymentMethodID string `json:"payment_method_id"`
	ReturnURL       string `json:"return_url"`
}

type ExpressErrorRequestDTO struct {
	Method  domain.PaymentMethod `json:"method"`
	Code    string               `json:"code"`
	Message string               `json:"message"`
}

type SubmitResponseDTO struct {
	Status string        `json:"status"`
	Order  *domain.Order `json:"order,omitempty"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// page resolves the page mounted for the caller's tab.
func (h *CheckoutHandler) page(w http.ResponseWriter, r *http.Request) (*checkout.Page, bool) {
	page, err := h.registry.Get(getSessionID(r.Context()))
	if err != nil {
		h.handleError(w, err, nil)
		return nil, false
	}
	return page, true
}

// fieldName builds the form field from the route. Email lives outside the address forms.
func fieldName(r *http.Request) domain.FieldName {
	kind := domain.AddressKind(chi.URLParam(r, "kind"))
	field := domain.FieldName(chi.URLParam(r, "field"))
	if field == domain.FieldEmail {
		return domain.FieldEmail
	}
	if !kind.Valid() {
		return ""
	}
	return kind.Field(field)
}

func (h *CheckoutHandler) respondOutcome(w http.ResponseWriter, out *payment.Outcome) {
	if out.Status == payment.OutcomeRedirecting {
		respondRedirect(w, out.RedirectURL)
		return
	}
	respondJSON(w, http.StatusOK, SubmitResponseDTO{Status: string(out.Status), Order: out.Order})
}

// POST /api/v1/checkout/mount
func (h *CheckoutHandler) Mount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req MountRequestDTO
	if !decode(w, r, &req) {
		return
	}
	if req.CartID == "" {
		respondError(w, http.StatusBadRequest, "missing_cart_id", "cart_id is required")
		return
	}

	page, err := h.registry.Mount(ctx, getSessionID(r.Context()), req.CartID)
	if err != nil {
		h.handleError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, page.State())
}

// DELETE /api/v1/checkout/mount
func (h *CheckoutHandler) Unmount(w http.ResponseWriter, r *http.Request) {
	if !h.registry.Remove(getSessionID(r.Context())) {
		h.handleError(w, checkout.ErrPageNotMounted, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/checkout/state
func (h *CheckoutHandler) State(w http.ResponseWriter, r *http.Request) {
	page, ok := h.page(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, page.State())
}

// PUT /api/v1/checkout/fields/{kind}/{field}
func (h *CheckoutHandler) EditField(w http.ResponseWriter, r *http.Request) {
	page, ok := h.page(w, r)
	if !ok {
		return
	}
	var req FieldRequestDTO
	if !decode(w, r, &req) {
		return
	}
	if err := page.EditField(fieldName(r), req.Value); err != nil {
		h.handleError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, page.State())
}

// POST /api/v1/checkout/fields/{kind}/{field}/blur
func (h *CheckoutHandler) BlurField(w http.ResponseWriter, r *http.Request) {
	page, ok := h.page(w, r)
	if !ok {
		return
	}
	field := fieldName(r)
	msg, valid, err := page.BlurField(field)
	if err != nil {
		h.handleError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, BlurResponseDTO{Field: field, Valid: valid, Message: msg})
}

// POST /api/v1/checkout/fields/{kind}/{field}/invalid
func (h *CheckoutHandler) ReportInvalid(w http.ResponseWriter, r *http.Request) {
	page, ok := h.page(w, r)
	if !ok {
		return
	}
	var req InvalidRequestDTO
	if !decode(w, r, &req) {
		return
	}
	if err := page.ReportInvalid(fieldName(r), req.Message); err != nil {
		h.handleError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/checkout/refresh
func (h *CheckoutHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	page, ok := h.page(w, r)
	if !ok {
		return
	}
	if err := page.Refresh(ctx); err != nil {
		h.handleError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, page.State())
}

// PUT /api/v1/checkout/payment-method
func (h *CheckoutHandler) SelectMethod(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	page, ok := h.page(w, r)
	if !ok {
		return
	}
	var req MethodRequestDTO
	if !decode(w, r, &req) {
		return
	}
	if err := page.SelectMethod(ctx, req.Method); err != nil {
		h.handleError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, page.State())
}

// POST /api/v1/checkout/submit
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	page, ok := h.page(w, r)
	if !ok {
		return
	}
	var req SubmitRequestDTO
	if !decode(w, r, &req) {
		return
	}

	directives := &gate.Directives{}
	out, err := page.Submit(ctx, payment.SubmitInput{
		Reporter:        directives,
		PaymentMethodID: req.PaymentMethodID,
		ReturnURL:       req.ReturnURL,
	})
	if err != nil {
		h.handleError(w, err, directives)
		return
	}
	h.respondOutcome(w, out)
}

// GET /api/v1/checkout/express?apple_pay=true&google_pay=false
func (h *CheckoutHandler) ExpressConfig(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	page, ok := h.page(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	applePay, _ := strconv.ParseBool(q.Get("apple_pay"))
	googlePay, _ := strconv.ParseBool(q.Get("google_pay"))

	opts, err := page.ExpressConfig(ctx, payment.Device{ApplePay: applePay, GooglePay: googlePay})
	if err != nil {
		h.handleError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, opts)
}

// POST /api/v1/checkout/express/click
func (h *CheckoutHandler) ExpressClick(w http.ResponseWriter, r *http.Request) {
	page, ok := h.page(w, r)
	if !ok {
		return
	}
	directives := &gate.Directives{}
	if err := page.ExpressClick(payment.SubmitInput{Reporter: directives}); err != nil {
		h.handleError(w, err, directives)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /api/v1/checkout/express/confirm
func (h *CheckoutHandler) CompleteExpress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	page, ok := h.page(w, r)
	if !ok {
		return
	}
	var req MethodRequestDTO
	if !decode(w, r, &req) {
		return
	}
	out, err := page.CompleteExpress(ctx, req.Method)
	if err != nil {
		h.handleError(w, err, nil)
		return
	}
	h.respondOutcome(w, out)
}

// POST /api/v1/checkout/express/error
func (h *CheckoutHandler) ExpressFailed(w http.ResponseWriter, r *http.Request) {
	page, ok := h.page(w, r)
	if !ok {
		return
	}
	var req ExpressErrorRequestDTO
	if !decode(w, r, &req) {
		return
	}
	h.handleError(w, page.ExpressFailed(req.Method, req.Code, req.Message), nil)
}
