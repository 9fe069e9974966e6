// Package stripepay confirms payment intents through the Stripe API.
package stripepay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/payment"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

const secretMarker = "_secret_"

// Provider implements payment.Provider on top of stripe-go.
type Provider struct {
	api    *client.API
	logger *zap.Logger
}

type config struct {
	apiURL     string
	maxRetries int64
	logger     *zap.Logger
}

type Option func(*config)

// WithAPIURL points the client at another Stripe-compatible endpoint.
func WithAPIURL(url string) Option {
	return func(c *config) { c.apiURL = url }
}

func WithMaxNetworkRetries(n int64) Option {
	return func(c *config) { c.maxRetries = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

func New(secretKey string, opts ...Option) *Provider {
	cfg := &config{maxRetries: 2, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(cfg)
	}

	backendCfg := &stripe.BackendConfig{
		LeveledLogger:     cfg.logger.Sugar(),
		MaxNetworkRetries: stripe.Int64(cfg.maxRetries),
	}
	if cfg.apiURL != "" {
		backendCfg.URL = stripe.String(cfg.apiURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	return &Provider{
		api:    client.New(secretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend}),
		logger: cfg.logger,
	}
}

// intentID extracts "pi_123" from a client secret "pi_123_secret_abc".
func intentID(clientSecret string) (string, error) {
	i := strings.Index(clientSecret, secretMarker)
	if i <= 0 {
		return "", fmt.Errorf("malformed client secret: %w", domain.ErrConfiguration)
	}
	return clientSecret[:i], nil
}

func (p *Provider) ConfirmCardPayment(ctx context.Context, clientSecret string, in payment.CardConfirmation) (*domain.PaymentIntent, error) {
	id, err := intentID(clientSecret)
	if err != nil {
		return nil, err
	}
	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(in.PaymentMethodID),
		Shipping:      shippingParams(in.Shipping),
	}
	if in.Email != "" {
		params.ReceiptEmail = stripe.String(in.Email)
	}
	if in.ReturnURL != "" {
		params.ReturnURL = stripe.String(in.ReturnURL)
	}
	params.Context = ctx

	pi, err := p.api.PaymentIntents.Confirm(id, params)
	if err != nil {
		return nil, p.mapError(id, err)
	}
	return toIntent(pi), nil
}

func (p *Provider) ConfirmRedirectPayment(ctx context.Context, clientSecret string, in payment.RedirectConfirmation) (*domain.PaymentIntent, error) {
	id, err := intentID(clientSecret)
	if err != nil {
		return nil, err
	}
	data := &stripe.PaymentIntentPaymentMethodDataParams{
		Type:           stripe.String(string(in.Method)),
		BillingDetails: billingParams(in.Billing, in.Email),
	}
	switch in.Method {
	case domain.MethodKlarna:
		data.Klarna = &stripe.PaymentMethodKlarnaParams{}
	case domain.MethodAfterpayClearpay:
		data.AfterpayClearpay = &stripe.PaymentMethodAfterpayClearpayParams{}
	default:
		return nil, fmt.Errorf("%s is not a redirect method: %w", in.Method, domain.ErrUnknownMethod)
	}

	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethodData: data,
		ReturnURL:         stripe.String(in.ReturnURL),
		Shipping:          shippingParams(in.Shipping),
	}
	params.Context = ctx

	pi, err := p.api.PaymentIntents.Confirm(id, params)
	if err != nil {
		return nil, p.mapError(id, err)
	}
	return toIntent(pi), nil
}

// AvailableWallets reports the express methods this device and currency support.
// Wallets need the device capability; iDEAL and Bancontact only settle in euros.
func (p *Provider) AvailableWallets(_ context.Context, device payment.Device) ([]domain.PaymentMethod, error) {
	var out []domain.PaymentMethod
	if device.ApplePay {
		out = append(out, domain.MethodApplePay)
	}
	if device.GooglePay {
		out = append(out, domain.MethodGooglePay)
	}
	if strings.EqualFold(device.Currency, string(stripe.CurrencyEUR)) {
		out = append(out, domain.MethodIdeal, domain.MethodBancontact)
	}
	return out, nil
}

// mapError turns Stripe API errors into declines. Transport failures stay generic.
func (p *Provider) mapError(id string, err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return fmt.Errorf("stripe confirm %s: %w", id, err)
	}

	var status domain.IntentStatus
	if se.PaymentIntent != nil {
		status = domain.IntentStatus(se.PaymentIntent.Status)
	}
	p.logger.Warn("stripe rejected confirmation",
		zap.String("intent_id", id),
		zap.String("type", string(se.Type)),
		zap.String("code", string(se.Code)),
		zap.String("intent_status", string(status)),
		zap.String("request_id", se.RequestID))

	switch {
	case se.Type == stripe.ErrorTypeCard, se.Type == stripe.ErrorTypeInvalidRequest && status != "":
		code := string(se.Code)
		if se.DeclineCode != "" {
			code = string(se.DeclineCode)
		}
		return &domain.ProviderDeclinedError{Code: code, Message: se.Msg, IntentStatus: status}
	}
	return fmt.Errorf("stripe confirm %s: %w", id, err)
}

func toIntent(pi *stripe.PaymentIntent) *domain.PaymentIntent {
	out := &domain.PaymentIntent{ID: pi.ID, Status: domain.IntentStatus(pi.Status)}
	if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
		out.RedirectURL = pi.NextAction.RedirectToURL.URL
	}
	return out
}

func addressParams(a *domain.Address) *stripe.AddressParams {
	return &stripe.AddressParams{
		Line1:      stripe.String(a.Address1),
		Line2:      stripe.String(a.Address2),
		City:       stripe.String(a.City),
		State:      stripe.String(a.Province),
		PostalCode: stripe.String(a.PostalCode),
		Country:    stripe.String(strings.ToUpper(a.CountryCode)),
	}
}

func fullName(a *domain.Address) string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

func shippingParams(a *domain.Address) *stripe.ShippingDetailsParams {
	if a == nil {
		return nil
	}
	params := &stripe.ShippingDetailsParams{
		Address: addressParams(a),
		Name:    stripe.String(fullName(a)),
	}
	if a.Phone != "" {
		params.Phone = stripe.String(a.Phone)
	}
	return params
}

func billingParams(a *domain.Address, email string) *stripe.PaymentIntentPaymentMethodDataBillingDetailsParams {
	params := &stripe.PaymentIntentPaymentMethodDataBillingDetailsParams{}
	if email != "" {
		params.Email = stripe.String(email)
	}
	if a == nil {
		return params
	}
	params.Address = addressParams(a)
	params.Name = stripe.String(fullName(a))
	if a.Phone != "" {
		params.Phone = stripe.String(a.Phone)
	}
	return params
}
