package payment

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/gate"
	"github.com/fjod/storefront-checkout/internal/selector"
	"go.uber.org/zap"
)

// Engine confirms the payment for one checkout page. At most one confirmation
// runs at a time; the submitting flag also disables the submit control.
type Engine struct {
	gate     *gate.Gate
	selector *selector.Selector
	provider Provider
	orders   OrderPlacer
	ledger   Ledger
	express  []domain.PaymentMethod
	logger   *zap.Logger

	submitting atomic.Bool
}

type Option func(*Engine)

func WithLedger(l Ledger) Option {
	return func(e *Engine) { e.ledger = l }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithExpressMethods sets the wallet and bank methods the merchant enabled.
func WithExpressMethods(methods []domain.PaymentMethod) Option {
	return func(e *Engine) { e.express = methods }
}

func NewEngine(g *gate.Gate, sel *selector.Selector, provider Provider, orders OrderPlacer, opts ...Option) *Engine {
	e := &Engine{
		gate:     g,
		selector: sel,
		provider: provider,
		orders:   orders,
		ledger:   NopLedger{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Submitting() bool {
	return e.submitting.Load()
}

// acquire takes the submitting guard. The returned release keeps the guard when
// the attempt ended in a navigation, since the page is about to unload.
func (e *Engine) acquire() (release func(*Outcome, error), ok bool) {
	if !e.submitting.CompareAndSwap(false, true) {
		return nil, false
	}
	return func(out *Outcome, err error) {
		if domain.IsRedirect(err) || (err == nil && out != nil && out.Status == OutcomeRedirecting) {
			return
		}
		e.submitting.Store(false)
	}, true
}

// Submit confirms the payment with the selected method. The field gate runs
// first, whatever the method, and always before the provider is contacted.
func (e *Engine) Submit(ctx context.Context, cart *domain.Cart, in SubmitInput) (out *Outcome, err error) {
	release, ok := e.acquire()
	if !ok {
		return nil, domain.ErrSubmitInProgress
	}
	defer func() { release(out, err) }()

	if err := e.gate.Run(cart, in.Reporter); err != nil {
		return nil, err
	}
	method, selected := e.selector.Selected()
	if !selected {
		return nil, domain.ErrNoPaymentMethod
	}

	logger := e.logger.With(zap.String("cart_id", cart.ID), zap.String("method", string(method)))
	switch method.Family() {
	case domain.FamilyInline:
		out, err = e.confirmInline(ctx, cart, method, in, logger)
	case domain.FamilyRedirect:
		out, err = e.confirmRedirect(ctx, cart, method, in, logger)
	case domain.FamilyExpress:
		return nil, domain.ErrExpressViaWidget
	default:
		return nil, domain.ErrUnknownMethod
	}

	if err != nil && !domain.IsRedirect(err) {
		logger.Warn("payment confirmation failed", zap.Error(err))
	}
	return out, err
}

// Finalize places the order for a cart whose payment was authorized off-site.
// It is a no-op for carts that are not authorized or already completed.
func (e *Engine) Finalize(ctx context.Context, cart *domain.Cart) (out *Outcome, err error) {
	if !cart.IsPaymentAuthorized() || cart.IsCompleted() {
		return nil, nil
	}
	release, ok := e.acquire()
	if !ok {
		return nil, domain.ErrSubmitInProgress
	}
	defer func() { release(out, err) }()

	method := domain.MethodCard
	if session := cart.ActiveSession(); session != nil {
		if m, known := domain.MethodForProvider(session.ProviderID); known {
			method = m
		}
	}
	logger := e.logger.With(zap.String("cart_id", cart.ID), zap.String("method", string(method)))
	logger.Info("finalizing authorized payment")

	attemptID, err := e.beginAttempt(ctx, cart, method, logger)
	if err != nil {
		return nil, err
	}
	return e.placeOrder(ctx, cart, attemptID, logger)
}

// beginAttempt opens a ledger row. Ledger faults never block the payment, except
// a prior order for the same session.
func (e *Engine) beginAttempt(ctx context.Context, cart *domain.Cart, method domain.PaymentMethod, logger *zap.Logger) (string, error) {
	id, err := e.ledger.Begin(ctx, cart, method)
	if errors.Is(err, domain.ErrOrderAlreadyPlaced) {
		return "", err
	}
	if err != nil {
		logger.Error("failed to record payment attempt", zap.Error(err))
		return "", nil
	}
	return id, nil
}

func (e *Engine) record(ctx context.Context, attemptID string, status domain.AttemptStatus, detail string, logger *zap.Logger) {
	if attemptID == "" {
		return
	}
	if err := e.ledger.Transition(ctx, attemptID, status, detail); err != nil {
		logger.Error("failed to update payment attempt",
			zap.String("attempt_id", attemptID),
			zap.String("status", status.String()),
			zap.Error(err))
	}
}

// placeOrder completes the cart. A redirect from the backend is returned unchanged.
func (e *Engine) placeOrder(ctx context.Context, cart *domain.Cart, attemptID string, logger *zap.Logger) (*Outcome, error) {
	e.record(ctx, attemptID, domain.AttemptAuthorized, "", logger)

	order, err := e.orders.PlaceOrder(ctx, cart.ID)
	if err != nil {
		if domain.IsRedirect(err) {
			return nil, err
		}
		e.record(ctx, attemptID, domain.AttemptFailed, err.Error(), logger)
		return nil, fmt.Errorf("place order: %w", err)
	}

	if attemptID != "" {
		if err := e.ledger.Complete(ctx, attemptID, order); err != nil {
			logger.Error("failed to record placed order", zap.String("order_id", order.ID), zap.Error(err))
		}
	}
	logger.Info("order placed", zap.String("order_id", order.ID))
	return &Outcome{Status: OutcomeOrderPlaced, Order: order}, nil
}

// clientSecret returns the secret of the active session, which must belong to
// the provider of the selected method.
func clientSecret(cart *domain.Cart, method domain.PaymentMethod) (string, error) {
	session := cart.ActiveSession()
	if session == nil {
		return "", fmt.Errorf("no active payment session: %w", domain.ErrConfiguration)
	}
	if session.ProviderID != method.ProviderID() {
		return "", fmt.Errorf("active payment session belongs to %s, not %s: %w",
			session.ProviderID, method.ProviderID(), domain.ErrConfiguration)
	}
	secret := session.ClientSecret()
	if secret == "" {
		return "", fmt.Errorf("no client secret on active payment session: %w", domain.ErrConfiguration)
	}
	return secret, nil
}

// settle records a provider failure. Declines are retryable within the session.
func (e *Engine) settle(ctx context.Context, attemptID string, err error, logger *zap.Logger) {
	var declined *domain.ProviderDeclinedError
	if errors.As(err, &declined) {
		e.record(ctx, attemptID, domain.AttemptDeclined, declined.Code, logger)
		return
	}
	e.record(ctx, attemptID, domain.AttemptFailed, err.Error(), logger)
}
