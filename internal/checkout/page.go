// Package checkout composes the checkout page: address forms with autosave, tax
// recalculation tracking, payment method selection and confirmation.
package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/autosave"
	"github.com/fjod/storefront-checkout/internal/cartstore"
	"github.com/fjod/storefront-checkout/internal/flagstore"
	"github.com/fjod/storefront-checkout/internal/gate"
	"github.com/fjod/storefront-checkout/internal/payment"
	"github.com/fjod/storefront-checkout/internal/recovery"
	"github.com/fjod/storefront-checkout/internal/selector"
	"github.com/fjod/storefront-checkout/internal/taxcalc"
	"github.com/fjod/storefront-checkout/internal/validator"
	"go.uber.org/zap"
)

var ErrUnknownField = errors.New("unknown checkout field")

// Deps are shared by every page the process serves.
type Deps struct {
	Store          cartstore.Store
	Flags          flagstore.Store
	Validator      *validator.Validator
	Provider       payment.Provider
	Ledger         payment.Ledger
	ExpressMethods []domain.PaymentMethod
	QuietPeriod    time.Duration
	TaxWindow      time.Duration
	Logger         *zap.Logger
}

// Page is one mounted checkout page for one browser tab. A reload mounts a new Page.
type Page struct {
	sessionID string
	cartID    string
	store     cartstore.Store
	logger    *zap.Logger

	forms        map[domain.AddressKind]*autosave.AddressForm
	syncs        map[domain.AddressKind]*autosave.Synchronizer
	coordinator  *taxcalc.Coordinator
	selector     *selector.Selector
	gate         *gate.Gate
	engine       *payment.Engine
	bootstrapper *recovery.Bootstrapper

	mu        sync.RWMutex
	cart      *domain.Cart
	submitErr error
	redirect  *domain.RedirectError
	outcome   *payment.Outcome
	closed    bool
}

// Mount loads the cart and rebuilds page state, then resumes whatever the
// previous page left behind: a pending tax calculation or an authorized payment.
func Mount(ctx context.Context, deps Deps, sessionID, cartID string) (*Page, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Ledger == nil {
		deps.Ledger = payment.NopLedger{}
	}
	if deps.QuietPeriod <= 0 {
		deps.QuietPeriod = autosave.DefaultQuietPeriod
	}
	if deps.TaxWindow <= 0 {
		deps.TaxWindow = taxcalc.DefaultWindow
	}
	logger := deps.Logger.With(zap.String("session_id", sessionID), zap.String("cart_id", cartID))

	cart, err := deps.Store.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	p := &Page{
		sessionID: sessionID,
		cartID:    cartID,
		store:     deps.Store,
		logger:    logger,
		forms:     make(map[domain.AddressKind]*autosave.AddressForm, 2),
		syncs:     make(map[domain.AddressKind]*autosave.Synchronizer, 2),
		cart:      cart,
	}

	p.coordinator = taxcalc.NewCoordinator(flagstore.Scoped(deps.Flags, sessionID),
		taxcalc.WithWindow(deps.TaxWindow),
		taxcalc.WithLogger(logger))
	p.selector = selector.New()
	p.gate = gate.New(deps.Validator)
	p.engine = payment.NewEngine(p.gate, p.selector, deps.Provider, deps.Store,
		payment.WithLedger(deps.Ledger),
		payment.WithExpressMethods(deps.ExpressMethods),
		payment.WithLogger(logger))
	p.bootstrapper = recovery.NewBootstrapper(p.coordinator, p.engine, logger)

	for _, kind := range []domain.AddressKind{domain.ShippingAddress, domain.BillingAddress} {
		form := autosave.NewAddressForm(kind, deps.Validator)
		form.Load(cart)
		p.forms[kind] = form
		p.syncs[kind] = autosave.NewSynchronizer(kind, deps.Store, p.coordinator, p.Cart,
			autosave.WithQuietPeriod(deps.QuietPeriod),
			autosave.WithLogger(logger),
			autosave.OnSaved(func(updated *domain.Cart) { p.applyCart(context.Background(), updated) }),
			autosave.OnRedirect(p.setRedirect))
	}

	if session := cart.ActiveSession(); session != nil {
		if m, ok := domain.MethodForProvider(session.ProviderID); ok {
			p.selector.Select(m)
		}
	}

	if err := p.bootstrapper.Mount(ctx); err != nil {
		logger.Warn("failed to restore checkout state", zap.Error(err))
	}
	p.reconcile(ctx, cart)

	logger.Info("checkout page mounted")
	return p, nil
}

func (p *Page) SessionID() string { return p.sessionID }

func (p *Page) CartID() string { return p.cartID }

// Cart returns the latest snapshot received from the cart store.
func (p *Page) Cart() *domain.Cart {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cart
}

// Completed reports whether the cart has become an order.
func (p *Page) Completed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.outcome != nil && p.outcome.Status == payment.OutcomeOrderPlaced {
		return true
	}
	return p.cart.IsCompleted()
}

func (p *Page) Calculating() bool {
	return p.coordinator.IsCalculating()
}

func (p *Page) Submitting() bool {
	return p.engine.Submitting()
}

func (p *Page) formFor(field domain.FieldName) (*autosave.AddressForm, *autosave.Synchronizer, error) {
	kind := field.Kind()
	if field == domain.FieldEmail {
		kind = domain.ShippingAddress
	}
	form, ok := p.forms[kind]
	if !ok || !form.Owns(field) {
		return nil, nil, ErrUnknownField
	}
	return form, p.syncs[kind], nil
}

// EditField applies a keystroke and schedules the form's autosave.
func (p *Page) EditField(field domain.FieldName, value string) error {
	form, saver, err := p.formFor(field)
	if err != nil {
		return err
	}
	fields, err := form.Edit(field, value)
	if err != nil {
		return err
	}
	saver.Schedule(fields)
	return nil
}

// BlurField validates the field the buyer left.
func (p *Page) BlurField(field domain.FieldName) (string, bool, error) {
	form, _, err := p.formFor(field)
	if err != nil {
		return "", false, err
	}
	return form.Blur(field)
}

// ReportInvalid records a browser-side validation message.
func (p *Page) ReportInvalid(field domain.FieldName, message string) error {
	form, _, err := p.formFor(field)
	if err != nil {
		return err
	}
	return form.ReportInvalid(field, message)
}

// Refresh reloads the cart, as on any server-side cart change.
func (p *Page) Refresh(ctx context.Context) error {
	cart, err := p.store.GetCart(ctx, p.cartID)
	if err != nil {
		if redirect, ok := domain.AsRedirect(err); ok {
			p.setRedirect(redirect)
		}
		return err
	}
	p.applyCart(ctx, cart)
	return nil
}

func (p *Page) applyCart(ctx context.Context, cart *domain.Cart) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.cart = cart
	p.mu.Unlock()

	for _, form := range p.forms {
		form.Load(cart)
	}
	p.reconcile(ctx, cart)
}

func (p *Page) reconcile(ctx context.Context, cart *domain.Cart) {
	out, err := p.bootstrapper.OnCart(ctx, cart)
	switch {
	case err != nil:
		if redirect, ok := domain.AsRedirect(err); ok {
			p.setRedirect(redirect)
			return
		}
		p.logger.Error("failed to finalize authorized payment", zap.Error(err))
		p.setSubmitError(err)
	case out != nil:
		p.mu.Lock()
		p.outcome = out
		p.submitErr = nil
		p.mu.Unlock()
	}
}

func (p *Page) setRedirect(r *domain.RedirectError) {
	p.mu.Lock()
	p.redirect = r
	p.mu.Unlock()
}

func (p *Page) setSubmitError(err error) {
	p.mu.Lock()
	p.submitErr = err
	p.mu.Unlock()
}

// SelectMethod records the buyer's choice and makes sure the cart has a payment
// session with the matching provider.
func (p *Page) SelectMethod(ctx context.Context, m domain.PaymentMethod) error {
	prev, hadPrev := p.selector.Selected()
	if err := p.selector.Select(m); err != nil {
		return err
	}
	cart := p.Cart()
	if active := cart.ActiveSession(); active != nil && active.ProviderID == m.ProviderID() {
		return nil
	}
	if _, err := p.store.InitiatePaymentSession(ctx, cart, m.ProviderID()); err != nil {
		if redirect, ok := domain.AsRedirect(err); ok {
			p.setRedirect(redirect)
			return err
		}
		// keep the selection in line with the session the cart still has
		if hadPrev {
			_ = p.selector.Select(prev)
		} else {
			p.selector.Clear()
		}
		p.logger.Warn("failed to initiate payment session",
			zap.String("method", string(m)), zap.Error(err))
		return err
	}
	return p.Refresh(ctx)
}

// Submit confirms the payment. Pending autosaves are flushed first when the
// local form values already pass the gate.
func (p *Page) Submit(ctx context.Context, in payment.SubmitInput) (*payment.Outcome, error) {
	if p.engine.Submitting() {
		return nil, domain.ErrSubmitInProgress
	}

	cart := p.localCart()
	if len(p.gate.Check(cart)) == 0 && p.flushSaves() {
		cart = p.localCart()
	}

	out, err := p.engine.Submit(ctx, cart, in)
	p.record(out, err)
	return out, err
}

// ExpressConfig returns the wallet widget configuration for the buyer's device.
func (p *Page) ExpressConfig(ctx context.Context, device payment.Device) (*payment.ExpressOptions, error) {
	return p.engine.ExpressConfig(ctx, p.Cart(), device)
}

func (p *Page) ExpressClick(in payment.SubmitInput) error {
	return p.engine.ExpressClick(p.localCart(), in)
}

func (p *Page) CompleteExpress(ctx context.Context, m domain.PaymentMethod) (*payment.Outcome, error) {
	p.flushSaves()
	out, err := p.engine.CompleteExpress(ctx, p.localCart(), m)
	p.record(out, err)
	return out, err
}

func (p *Page) ExpressFailed(m domain.PaymentMethod, code, message string) error {
	err := p.engine.ExpressFailed(m, code, message)
	p.setSubmitError(err)
	return err
}

func (p *Page) record(out *payment.Outcome, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if redirect, ok := domain.AsRedirect(err); ok {
		p.redirect = redirect
		return
	}
	var invalid *domain.ValidationError
	switch {
	case errors.As(err, &invalid):
		// field errors are shown beneath the inputs, not near the submit control
		p.submitErr = nil
	case err != nil:
		p.submitErr = err
	default:
		p.submitErr = nil
		p.outcome = out
	}
}

// flushSaves dispatches pending autosaves and reports whether any ran.
func (p *Page) flushSaves() bool {
	flushed := false
	for _, kind := range []domain.AddressKind{domain.ShippingAddress, domain.BillingAddress} {
		if p.syncs[kind].Flush() {
			flushed = true
		}
	}
	return flushed
}

// localCart overlays the buyer's edits onto the latest cart snapshot.
func (p *Page) localCart() *domain.Cart {
	base := p.Cart()
	if base == nil {
		return nil
	}
	cart := *base
	for kind, form := range p.forms {
		if !form.HasUserEdited() {
			continue
		}
		fields := form.Fields()
		addr := &domain.Address{}
		empty := true
		for _, f := range domain.AddressFields {
			v := fields[kind.Field(f)]
			addr.Set(f, v)
			if v != "" {
				empty = false
			}
		}
		if kind == domain.BillingAddress {
			if empty {
				addr = nil
			}
			cart.BillingAddress = addr
			continue
		}
		cart.ShippingAddress = addr
		cart.Email = fields[domain.FieldEmail]
	}
	return &cart
}

// Close stops pending autosaves. It is called when the tab navigates away or
// mounts a newer page.
func (p *Page) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	for _, s := range p.syncs {
		s.Stop()
	}
	p.coordinator.Close()
	p.logger.Debug("checkout page closed")
}
