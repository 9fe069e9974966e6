package payment

import (
	"context"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/gate"
)

// CardConfirmation carries what the inline card form collected. PaymentMethodID is
// the token the browser obtained from the provider's card element. ReturnURL is
// used when the issuer asks for a 3-D Secure challenge.
type CardConfirmation struct {
	PaymentMethodID string
	Email           string
	Billing         *domain.Address
	Shipping        *domain.Address
	ReturnURL       string
}

// RedirectConfirmation starts an off-site authorization. The provider sends the
// buyer back to ReturnURL afterwards.
type RedirectConfirmation struct {
	Method    domain.PaymentMethod
	Email     string
	Billing   *domain.Address
	Shipping  *domain.Address
	ReturnURL string
}

// Device describes what the buyer's browser can do for wallet methods.
type Device struct {
	ApplePay  bool   `json:"apple_pay"`
	GooglePay bool   `json:"google_pay"`
	Currency  string `json:"-"`
}

// Provider is the payment provider SDK. Confirm calls return a
// *domain.ProviderDeclinedError when the provider refused the payment.
type Provider interface {
	ConfirmCardPayment(ctx context.Context, clientSecret string, in CardConfirmation) (*domain.PaymentIntent, error)
	ConfirmRedirectPayment(ctx context.Context, clientSecret string, in RedirectConfirmation) (*domain.PaymentIntent, error)
	AvailableWallets(ctx context.Context, device Device) ([]domain.PaymentMethod, error)
}

// OrderPlacer turns an authorized cart into an order.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, cartID string) (*domain.Order, error)
}

// Ledger records confirmation attempts. Begin is idempotent per cart and payment
// session and returns domain.ErrOrderAlreadyPlaced once an order exists for them.
type Ledger interface {
	Begin(ctx context.Context, cart *domain.Cart, method domain.PaymentMethod) (string, error)
	Transition(ctx context.Context, attemptID string, status domain.AttemptStatus, detail string) error
	Complete(ctx context.Context, attemptID string, order *domain.Order) error
}

// NopLedger is used when no attempt database is configured.
type NopLedger struct{}

func (NopLedger) Begin(context.Context, *domain.Cart, domain.PaymentMethod) (string, error) {
	return "", nil
}

func (NopLedger) Transition(context.Context, string, domain.AttemptStatus, string) error {
	return nil
}

func (NopLedger) Complete(context.Context, string, *domain.Order) error {
	return nil
}

type OutcomeStatus string

const (
	OutcomeOrderPlaced OutcomeStatus = "order_placed"
	OutcomeRedirecting OutcomeStatus = "redirecting"
)

// Outcome is the successful end of a confirmation. Redirecting means the browser
// must navigate to RedirectURL and the order is placed after it returns.
type Outcome struct {
	Status      OutcomeStatus `json:"status"`
	Order       *domain.Order `json:"order,omitempty"`
	RedirectURL string        `json:"redirect_url,omitempty"`
}

type SubmitInput struct {
	Reporter        gate.Reporter
	PaymentMethodID string
	ReturnURL       string
}

// ExpressOptions configures the wallet widget.
type ExpressOptions struct {
	Methods      []domain.PaymentMethod `json:"methods"`
	ClientSecret string                 `json:"client_secret,omitempty"`
	Amount       int64                  `json:"amount"`
	Currency     string                 `json:"currency"`
}
