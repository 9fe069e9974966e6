package cartstore

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/pkg/circuitbreaker"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Client talks to the commerce backend's store API over HTTP JSON.
type Client struct {
	baseURL        string
	publishableKey string
	httpClient     *http.Client
	breaker        *gobreaker.CircuitBreaker[struct{}]
	logger         *zap.Logger
}

type ClientOption func(*Client)

func WithPublishableKey(key string) ClientOption {
	return func(c *Client) { c.publishableKey = key }
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	// redirects are navigation signals for the caller, never followed here
	c.httpClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	cfg := circuitbreaker.DefaultConfig("cart-store")
	cfg.IsSuccessful = func(err error) bool {
		return err == nil || domain.IsRedirect(err) || errors.Is(err, ErrCartNotFound) || IsClientError(err)
	}
	c.breaker = circuitbreaker.New[struct{}](cfg, c.logger)
	return c
}

type cartEnvelope struct {
	Cart *domain.Cart `json:"cart"`
}

type sessionEnvelope struct {
	PaymentSession *domain.PaymentSession `json:"payment_session"`
}

type completeEnvelope struct {
	Type  string        `json:"type"`
	Order *domain.Order `json:"order"`
	Cart  *domain.Cart  `json:"cart"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func cartPath(cartID string, suffix string) string {
	return "/store/carts/" + url.PathEscape(cartID) + suffix
}

func (c *Client) GetCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	var env cartEnvelope
	if err := c.do(ctx, http.MethodGet, cartPath(cartID, ""), nil, &env); err != nil {
		return nil, err
	}
	if env.Cart == nil {
		return nil, ErrCartNotFound
	}
	return env.Cart, nil
}

func (c *Client) SetAddresses(ctx context.Context, cartID string, fields map[domain.FieldName]string) (*domain.Cart, error) {
	body := make(map[string]string, len(fields))
	for k, v := range fields {
		if v != "" {
			body[string(k)] = v
		}
	}
	var env cartEnvelope
	if err := c.do(ctx, http.MethodPost, cartPath(cartID, "/addresses"), map[string]any{"fields": body}, &env); err != nil {
		return nil, err
	}
	return env.Cart, nil
}

func (c *Client) InitiatePaymentSession(ctx context.Context, cart *domain.Cart, providerID string) (*domain.PaymentSession, error) {
	var env sessionEnvelope
	req := map[string]string{"provider_id": providerID}
	if err := c.do(ctx, http.MethodPost, cartPath(cart.ID, "/payment-sessions"), req, &env); err != nil {
		return nil, err
	}
	if env.PaymentSession == nil {
		return nil, errors.Errorf("cart store: no payment session returned for provider %s", providerID)
	}
	return env.PaymentSession, nil
}

func (c *Client) PlaceOrder(ctx context.Context, cartID string) (*domain.Order, error) {
	var env completeEnvelope
	if err := c.do(ctx, http.MethodPost, cartPath(cartID, "/complete"), nil, &env); err != nil {
		return nil, err
	}
	if env.Type != "order" || env.Order == nil {
		msg := "cart could not be completed"
		if env.Error != nil && env.Error.Message != "" {
			msg = env.Error.Message
		}
		return nil, errors.Wrap(ErrOrderNotPlaced, msg)
	}
	return env.Order, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.roundTrip(ctx, method, path, in, out)
	})
	if circuitbreaker.IsOpen(err) {
		return errors.Wrapf(err, "cart store unavailable for %s %s", method, path)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.publishableKey != "" {
		req.Header.Set("x-publishable-api-key", c.publishableKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "cart store %s %s", method, path)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusFound || resp.StatusCode == http.StatusSeeOther ||
		resp.StatusCode == http.StatusTemporaryRedirect:
		return &domain.RedirectError{Location: resp.Header.Get("Location"), StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		return ErrCartNotFound
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s response", path)
	}
	return nil
}
