package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/storefront-checkout/domain"
	"go.uber.org/zap"
)

// confirmInline confirms a card payment synchronously and places the order once
// funds are secured.
func (e *Engine) confirmInline(ctx context.Context, cart *domain.Cart, method domain.PaymentMethod,
	in SubmitInput, logger *zap.Logger) (*Outcome, error) {
	secret, err := clientSecret(cart, method)
	if err != nil {
		return nil, err
	}
	if in.PaymentMethodID == "" {
		return nil, fmt.Errorf("card details were not collected: %w", domain.ErrConfiguration)
	}

	attemptID, err := e.beginAttempt(ctx, cart, method, logger)
	if err != nil {
		return nil, err
	}

	billing := cart.BillingAddress
	if billing == nil {
		billing = cart.ShippingAddress
	}
	intent, err := e.provider.ConfirmCardPayment(ctx, secret, CardConfirmation{
		PaymentMethodID: in.PaymentMethodID,
		Email:           cart.Email,
		Billing:         billing,
		Shipping:        cart.ShippingAddress,
		ReturnURL:       in.ReturnURL,
	})
	if err != nil {
		if domain.IsRedirect(err) {
			return nil, err
		}
		// the intent may have advanced even though the call reported an error
		var declined *domain.ProviderDeclinedError
		if !errors.As(err, &declined) || !declined.IntentStatus.Secured() {
			e.settle(ctx, attemptID, err, logger)
			return nil, err
		}
		logger.Warn("provider reported an error for an already secured intent",
			zap.String("intent_status", string(declined.IntentStatus)),
			zap.Error(err))
		return e.placeOrder(ctx, cart, attemptID, logger)
	}

	switch {
	case intent.Status.Secured():
		return e.placeOrder(ctx, cart, attemptID, logger)
	case intent.Status == domain.IntentRequiresAction && intent.RedirectURL != "":
		// 3-D Secure challenge hosted by the issuer
		e.record(ctx, attemptID, domain.AttemptRedirecting, intent.ID, logger)
		return &Outcome{Status: OutcomeRedirecting, RedirectURL: intent.RedirectURL}, nil
	}

	declined := &domain.ProviderDeclinedError{
		Code:         "payment_intent_" + string(intent.Status),
		Message:      "Your payment could not be completed. Please try another payment method.",
		IntentStatus: intent.Status,
	}
	e.settle(ctx, attemptID, declined, logger)
	return nil, declined
}
