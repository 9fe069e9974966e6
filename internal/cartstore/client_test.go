package cartstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/pkg/circuitbreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second, WithPublishableKey("pk_test"))
}

func TestGetCart_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/store/carts/cart_1", r.URL.Path)
		assert.Equal(t, "pk_test", r.Header.Get("x-publishable-api-key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"cart":{"id":"cart_1","email":"jane@example.com","tax_total":500}}`))
	})

	cart, err := client.GetCart(context.Background(), "cart_1")
	require.NoError(t, err)
	assert.Equal(t, "cart_1", cart.ID)
	tax, known := cart.Tax()
	assert.True(t, known)
	assert.Equal(t, int64(500), tax)
}

func TestGetCart_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	cart, err := client.GetCart(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.Nil(t, cart)
}

func TestSetAddresses_SendsOnlyTruthyFields(t *testing.T) {
	var got map[string]map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/store/carts/cart_1/addresses", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"cart":{"id":"cart_1"}}`))
	})

	_, err := client.SetAddresses(context.Background(), "cart_1", map[domain.FieldName]string{
		"shipping_address.first_name": "Jane",
		"shipping_address.company":    "",
		"email":                       "jane@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"shipping_address.first_name": "Jane",
		"email":                       "jane@example.com",
	}, got["fields"])
}

func TestSetAddresses_RedirectIsSurfaced(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/de/checkout?step=delivery")
		w.WriteHeader(http.StatusSeeOther)
	})

	_, err := client.SetAddresses(context.Background(), "cart_1", map[domain.FieldName]string{"email": "a@b.co"})
	redirect, ok := domain.AsRedirect(err)
	require.True(t, ok, "expected redirect, got %v", err)
	assert.Equal(t, "/de/checkout?step=delivery", redirect.Location)
	assert.Equal(t, http.StatusSeeOther, redirect.StatusCode)
}

func TestInitiatePaymentSession(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "pp_stripe_stripe", body["provider_id"])
		w.Write([]byte(`{"payment_session":{"id":"ps_1","provider_id":"pp_stripe_stripe","status":"pending","data":{"client_secret":"pi_1_secret_abc"}}}`))
	})

	session, err := client.InitiatePaymentSession(context.Background(), &domain.Cart{ID: "cart_1"}, "pp_stripe_stripe")
	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret_abc", session.ClientSecret())
}

func TestPlaceOrder_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/store/carts/cart_1/complete", r.URL.Path)
		w.Write([]byte(`{"type":"order","order":{"id":"order_1","cart_id":"cart_1"}}`))
	})

	order, err := client.PlaceOrder(context.Background(), "cart_1")
	require.NoError(t, err)
	assert.Equal(t, "order_1", order.ID)
}

func TestPlaceOrder_CartReturned(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"type":"cart","cart":{"id":"cart_1"},"error":{"message":"Payment authorization failed"}}`))
	})

	_, err := client.PlaceOrder(context.Background(), "cart_1")
	assert.ErrorIs(t, err, ErrOrderNotPlaced)
	assert.Contains(t, err.Error(), "Payment authorization failed")
}

func TestPlaceOrder_RedirectToConfirmation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/order/order_1/confirmed")
		w.WriteHeader(http.StatusFound)
	})

	_, err := client.PlaceOrder(context.Background(), "cart_1")
	assert.True(t, domain.IsRedirect(err))
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"invalid"}`))
	})

	for i := 0; i < 8; i++ {
		_, err := client.GetCart(context.Background(), "cart_1")
		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	}
	assert.Equal(t, 8, calls)
}

func TestServerErrorsTripBreaker(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})

	var err error
	for i := 0; i < 6; i++ {
		_, err = client.GetCart(context.Background(), "cart_1")
	}
	assert.True(t, circuitbreaker.IsOpen(err), "expected open breaker, got %v", err)
	assert.Equal(t, 5, calls)
}
