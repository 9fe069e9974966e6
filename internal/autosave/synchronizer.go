package autosave

import (
	"context"
	"time"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/cartstore"
	"github.com/fjod/storefront-checkout/internal/debounce"
	"github.com/fjod/storefront-checkout/internal/taxcalc"
	"go.uber.org/zap"
)

const (
	DefaultQuietPeriod = 500 * time.Millisecond
	defaultSaveTimeout = 10 * time.Second
)

// Synchronizer saves one address form to the cart store once the buyer stops typing.
type Synchronizer struct {
	kind        domain.AddressKind
	store       cartstore.Store
	coordinator *taxcalc.Coordinator
	cart        func() *domain.Cart
	onSaved     func(*domain.Cart)
	onRedirect  func(*domain.RedirectError)
	logger      *zap.Logger
	wait        time.Duration
	saveTimeout time.Duration

	debouncer *debounce.Debouncer[map[domain.FieldName]string]
}

type Option func(*Synchronizer)

func WithQuietPeriod(d time.Duration) Option {
	return func(s *Synchronizer) { s.wait = d }
}

func WithSaveTimeout(d time.Duration) Option {
	return func(s *Synchronizer) { s.saveTimeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// OnSaved receives the cart returned by a successful save.
func OnSaved(fn func(*domain.Cart)) Option {
	return func(s *Synchronizer) { s.onSaved = fn }
}

// OnRedirect receives the navigation the backend asked for while saving.
func OnRedirect(fn func(*domain.RedirectError)) Option {
	return func(s *Synchronizer) { s.onRedirect = fn }
}

// NewSynchronizer wires a debounced save for one form. cart returns the latest
// snapshot the page holds; it is read when the save fires, not when it is scheduled.
func NewSynchronizer(kind domain.AddressKind, store cartstore.Store, coordinator *taxcalc.Coordinator,
	cart func() *domain.Cart, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		kind:        kind,
		store:       store,
		coordinator: coordinator,
		cart:        cart,
		logger:      zap.NewNop(),
		wait:        DefaultQuietPeriod,
		saveTimeout: defaultSaveTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("form", string(kind)))
	s.debouncer = debounce.New(s.wait, s.dispatch)
	return s
}

// Schedule replaces any pending save with one for fields.
func (s *Synchronizer) Schedule(fields map[domain.FieldName]string) {
	s.debouncer.Call(fields)
}

// Flush dispatches a pending save right away and reports whether there was one.
func (s *Synchronizer) Flush() bool {
	return s.debouncer.Flush()
}

func (s *Synchronizer) Pending() bool {
	return s.debouncer.Pending()
}

// Stop drops the pending save. Later calls to Schedule are ignored.
func (s *Synchronizer) Stop() {
	s.debouncer.Stop()
}

func (s *Synchronizer) dispatch(fields map[domain.FieldName]string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()

	cart := s.cart()
	if cart == nil {
		s.logger.Warn("address autosave skipped, no cart loaded")
		return
	}

	payload := truthy(fields)

	var token taxcalc.Token
	if s.coordinator != nil && s.affectsTax(cart, payload) {
		t, started, err := s.coordinator.Begin(ctx, cart)
		if err != nil {
			s.logger.Warn("failed to mark tax recalculation", zap.Error(err))
		} else if started {
			token = t
		}
	}

	updated, err := s.store.SetAddresses(ctx, cart.ID, payload)
	if err != nil {
		if redirect, ok := domain.AsRedirect(err); ok {
			s.logger.Debug("address save answered with redirect", zap.String("location", redirect.Location))
			if s.onRedirect != nil {
				s.onRedirect(redirect)
			}
			return
		}
		s.logger.Error("address autosave failed", zap.String("cart_id", cart.ID), zap.Error(err))
		if token != 0 {
			if ferr := s.coordinator.Fail(ctx, token); ferr != nil {
				s.logger.Warn("failed to clear tax recalculation", zap.Error(ferr))
			}
		}
		return
	}

	s.logger.Debug("address saved", zap.String("cart_id", cart.ID), zap.Int("fields", len(payload)))
	if updated != nil && s.onSaved != nil {
		s.onSaved(updated)
	}
}

// affectsTax reports whether the save changes an address field the tax depends on.
func (s *Synchronizer) affectsTax(cart *domain.Cart, fields map[domain.FieldName]string) bool {
	current := cart.Address(s.kind)
	for _, base := range domain.TaxAffectingFields {
		value, ok := fields[s.kind.Field(base)]
		if ok && value != current.Get(base) {
			return true
		}
	}
	return false
}

func truthy(fields map[domain.FieldName]string) map[domain.FieldName]string {
	out := make(map[domain.FieldName]string, len(fields))
	for k, v := range fields {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
