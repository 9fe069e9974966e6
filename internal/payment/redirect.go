package payment

import (
	"context"
	"fmt"

	"github.com/fjod/storefront-checkout/domain"
	"go.uber.org/zap"
)

// confirmRedirect hands the buyer to the provider's hosted page. The order is
// never placed here; the session recovery step places it after the buyer returns.
func (e *Engine) confirmRedirect(ctx context.Context, cart *domain.Cart, method domain.PaymentMethod,
	in SubmitInput, logger *zap.Logger) (*Outcome, error) {
	secret, err := clientSecret(cart, method)
	if err != nil {
		return nil, err
	}
	if in.ReturnURL == "" {
		return nil, fmt.Errorf("no return url for %s: %w", method, domain.ErrConfiguration)
	}

	attemptID, err := e.beginAttempt(ctx, cart, method, logger)
	if err != nil {
		return nil, err
	}

	billing := cart.BillingAddress
	if billing == nil {
		billing = cart.ShippingAddress
	}
	intent, err := e.provider.ConfirmRedirectPayment(ctx, secret, RedirectConfirmation{
		Method:    method,
		Email:     cart.Email,
		Billing:   billing,
		Shipping:  cart.ShippingAddress,
		ReturnURL: in.ReturnURL,
	})
	if err != nil {
		if !domain.IsRedirect(err) {
			e.settle(ctx, attemptID, err, logger)
		}
		return nil, err
	}

	target := intent.RedirectURL
	if target == "" {
		// nothing to authorize off-site, the return page picks the cart up
		target = in.ReturnURL
	}
	e.record(ctx, attemptID, domain.AttemptRedirecting, intent.ID, logger)
	logger.Info("redirecting buyer to provider", zap.String("intent_id", intent.ID))
	return &Outcome{Status: OutcomeRedirecting, RedirectURL: target}, nil
}
