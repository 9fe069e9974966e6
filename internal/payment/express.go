package payment

import (
	"context"
	"fmt"
	"slices"

	"github.com/fjod/storefront-checkout/domain"
	"go.uber.org/zap"
)

// ExpressConfig lists the enabled express methods this device can use.
func (e *Engine) ExpressConfig(ctx context.Context, cart *domain.Cart, device Device) (*ExpressOptions, error) {
	if cart == nil {
		return nil, fmt.Errorf("no cart loaded: %w", domain.ErrConfiguration)
	}
	opts := &ExpressOptions{
		Methods:      []domain.PaymentMethod{},
		ClientSecret: cart.ActiveSession().ClientSecret(),
		Amount:       cart.Total,
		Currency:     cart.CurrencyCode,
	}
	if len(e.express) == 0 {
		return opts, nil
	}

	device.Currency = cart.CurrencyCode
	available, err := e.provider.AvailableWallets(ctx, device)
	if err != nil {
		return nil, fmt.Errorf("query wallet availability: %w", err)
	}
	for _, m := range e.express {
		if slices.Contains(available, m) {
			opts.Methods = append(opts.Methods, m)
		}
	}
	return opts, nil
}

// ExpressClick runs the field gate when the buyer presses a wallet button. The
// widget must not open its payment sheet when this returns an error.
func (e *Engine) ExpressClick(cart *domain.Cart, in SubmitInput) error {
	if e.Submitting() {
		return domain.ErrSubmitInProgress
	}
	return e.gate.Run(cart, in.Reporter)
}

// CompleteExpress places the order after the wallet widget confirmed the payment.
func (e *Engine) CompleteExpress(ctx context.Context, cart *domain.Cart, method domain.PaymentMethod) (out *Outcome, err error) {
	if method.Family() != domain.FamilyExpress {
		return nil, domain.ErrUnknownMethod
	}
	release, ok := e.acquire()
	if !ok {
		return nil, domain.ErrSubmitInProgress
	}
	defer func() { release(out, err) }()

	if err := e.gate.Run(cart, nil); err != nil {
		return nil, err
	}

	logger := e.logger.With(zap.String("cart_id", cart.ID), zap.String("method", string(method)))
	attemptID, err := e.beginAttempt(ctx, cart, method, logger)
	if err != nil {
		return nil, err
	}
	return e.placeOrder(ctx, cart, attemptID, logger)
}

// ExpressFailed converts an error reported by the wallet widget into a decline.
func (e *Engine) ExpressFailed(method domain.PaymentMethod, code, message string) error {
	e.logger.Warn("express payment failed",
		zap.String("method", string(method)),
		zap.String("code", code),
		zap.String("message", message))
	return &domain.ProviderDeclinedError{Code: code, Message: message}
}
