package cartstore

import (
	"context"
	"fmt"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/pkg/errors"
)

var (
	ErrCartNotFound   = errors.New("cart not found")
	ErrOrderNotPlaced = errors.New("order was not placed")
)

// Store is the remote commerce backend as seen by checkout. Any call may return a
// *domain.RedirectError, which callers must propagate.
type Store interface {
	GetCart(ctx context.Context, cartID string) (*domain.Cart, error)
	// SetAddresses saves the given form fields on the cart. Only non-empty fields are sent.
	SetAddresses(ctx context.Context, cartID string, fields map[domain.FieldName]string) (*domain.Cart, error)
	InitiatePaymentSession(ctx context.Context, cart *domain.Cart, providerID string) (*domain.PaymentSession, error)
	PlaceOrder(ctx context.Context, cartID string) (*domain.Order, error)
}

// StatusError is an unexpected response from the backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cart store: status %d: %s", e.StatusCode, e.Body)
}

// IsClientError reports whether err is a 4xx response.
func IsClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500
}
