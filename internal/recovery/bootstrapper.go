// Package recovery resumes checkout state after a page reload, including the
// return leg of a redirect payment.
package recovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/payment"
	"github.com/fjod/storefront-checkout/internal/taxcalc"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Finalizer places the order for an already authorized cart.
type Finalizer interface {
	Finalize(ctx context.Context, cart *domain.Cart) (*payment.Outcome, error)
	Submitting() bool
}

type Bootstrapper struct {
	coordinator *taxcalc.Coordinator
	finalizer   Finalizer
	logger      *zap.Logger
	sfg         singleflight.Group // one finalize per cart at a time
}

func NewBootstrapper(coordinator *taxcalc.Coordinator, finalizer Finalizer, logger *zap.Logger) *Bootstrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bootstrapper{coordinator: coordinator, finalizer: finalizer, logger: logger}
}

// Mount restores the calculating state persisted before the reload.
func (b *Bootstrapper) Mount(ctx context.Context) error {
	restored, err := b.coordinator.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore tax calculation: %w", err)
	}
	if restored {
		b.logger.Debug("resumed pending tax calculation")
	}
	return nil
}

// OnCart runs for every new cart snapshot.
func (b *Bootstrapper) OnCart(ctx context.Context, cart *domain.Cart) (*payment.Outcome, error) {
	if err := b.coordinator.Observe(ctx, cart); err != nil {
		b.logger.Warn("failed to observe tax change", zap.String("cart_id", cart.ID), zap.Error(err))
	}
	return b.Reconcile(ctx, cart)
}

// Reconcile places the order when the buyer came back from an off-site
// authorization. Calling it repeatedly for the same cart is safe.
func (b *Bootstrapper) Reconcile(ctx context.Context, cart *domain.Cart) (*payment.Outcome, error) {
	if !cart.IsPaymentAuthorized() || cart.IsCompleted() || b.finalizer.Submitting() {
		return nil, nil
	}

	v, err, shared := b.sfg.Do(cart.ID, func() (interface{}, error) {
		return b.finalizer.Finalize(ctx, cart)
	})
	if shared {
		b.logger.Debug("joined in-flight finalize", zap.String("cart_id", cart.ID))
	}
	if errors.Is(err, domain.ErrSubmitInProgress) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out, _ := v.(*payment.Outcome)
	return out, nil
}
