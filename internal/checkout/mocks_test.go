package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/cartstore"
	"github.com/fjod/storefront-checkout/internal/payment"
)

// MockBackend is an in-memory commerce backend implementing cartstore.Store
type MockBackend struct {
	mu    sync.Mutex
	carts map[string]*domain.Cart
	calls map[string]int

	// SaveRedirect makes SetAddresses answer with a redirect after saving.
	SaveRedirect *domain.RedirectError
	SaveErr      error
	InitErr      error
	GetErr       error
	nextSession  int
}

func NewMockBackend() *MockBackend {
	return &MockBackend{carts: make(map[string]*domain.Cart), calls: make(map[string]int)}
}

func (m *MockBackend) Put(cart *domain.Cart) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[cart.ID] = cloneCart(cart)
}

// Update mutates the stored cart under the lock.
func (m *MockBackend) Update(cartID string, fn func(*domain.Cart)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.carts[cartID])
}

func (m *MockBackend) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *MockBackend) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

func (m *MockBackend) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[string]int)
}

func (m *MockBackend) GetCart(_ context.Context, cartID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["get"]++
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	cart, ok := m.carts[cartID]
	if !ok {
		return nil, cartstore.ErrCartNotFound
	}
	return cloneCart(cart), nil
}

func (m *MockBackend) SetAddresses(_ context.Context, cartID string, fields map[domain.FieldName]string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["addresses"]++
	if m.SaveErr != nil {
		return nil, m.SaveErr
	}
	cart, ok := m.carts[cartID]
	if !ok {
		return nil, cartstore.ErrCartNotFound
	}
	for field, value := range fields {
		if field == domain.FieldEmail {
			cart.Email = value
			continue
		}
		switch field.Kind() {
		case domain.ShippingAddress:
			if cart.ShippingAddress == nil {
				cart.ShippingAddress = &domain.Address{}
			}
			cart.ShippingAddress.Set(field, value)
		case domain.BillingAddress:
			if cart.BillingAddress == nil {
				cart.BillingAddress = &domain.Address{}
			}
			cart.BillingAddress.Set(field, value)
		}
	}
	if m.SaveRedirect != nil {
		return nil, m.SaveRedirect
	}
	return cloneCart(cart), nil
}

func (m *MockBackend) InitiatePaymentSession(_ context.Context, cart *domain.Cart, providerID string) (*domain.PaymentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["sessions"]++
	if m.InitErr != nil {
		return nil, m.InitErr
	}
	stored, ok := m.carts[cart.ID]
	if !ok {
		return nil, cartstore.ErrCartNotFound
	}
	m.nextSession++
	session := domain.PaymentSession{
		ID:         fmt.Sprintf("ps_%d", m.nextSession),
		ProviderID: providerID,
		Status:     domain.SessionPending,
		Amount:     stored.Total,
		Data:       map[string]any{"client_secret": fmt.Sprintf("pi_%d_secret_test", m.nextSession)},
	}
	if stored.PaymentCollection == nil {
		stored.PaymentCollection = &domain.PaymentCollection{ID: "paycol_" + cart.ID}
	}
	stored.PaymentCollection.Status = domain.PaymentCollectionAwaiting
	for i := range stored.PaymentCollection.PaymentSessions {
		stored.PaymentCollection.PaymentSessions[i].Status = domain.SessionCanceled
	}
	stored.PaymentCollection.PaymentSessions = append(stored.PaymentCollection.PaymentSessions, session)
	return &session, nil
}

func (m *MockBackend) PlaceOrder(_ context.Context, cartID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["complete"]++
	cart, ok := m.carts[cartID]
	if !ok {
		return nil, cartstore.ErrCartNotFound
	}
	now := time.Now()
	cart.CompletedAt = &now
	return &domain.Order{ID: "order_" + cartID, CartID: cartID, Email: cart.Email, Total: cart.Total, CreatedAt: now}, nil
}

func cloneCart(c *domain.Cart) *domain.Cart {
	out := *c
	if c.ShippingAddress != nil {
		addr := *c.ShippingAddress
		out.ShippingAddress = &addr
	}
	if c.BillingAddress != nil {
		addr := *c.BillingAddress
		out.BillingAddress = &addr
	}
	if c.TaxTotal != nil {
		tax := *c.TaxTotal
		out.TaxTotal = &tax
	}
	if c.PaymentCollection != nil {
		pc := *c.PaymentCollection
		pc.PaymentSessions = append([]domain.PaymentSession(nil), c.PaymentCollection.PaymentSessions...)
		out.PaymentCollection = &pc
	}
	return &out
}

// MockProvider implements payment.Provider for testing
type MockProvider struct {
	mu             sync.Mutex
	CardIntent     *domain.PaymentIntent
	CardErr        error
	RedirectIntent *domain.PaymentIntent
	RedirectErr    error
	Wallets        []domain.PaymentMethod
	calls          int
}

func (m *MockProvider) ConfirmCardPayment(_ context.Context, _ string, _ payment.CardConfirmation) (*domain.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.CardIntent, m.CardErr
}

func (m *MockProvider) ConfirmRedirectPayment(_ context.Context, _ string, _ payment.RedirectConfirmation) (*domain.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.RedirectIntent, m.RedirectErr
}

func (m *MockProvider) AvailableWallets(_ context.Context, _ payment.Device) ([]domain.PaymentMethod, error) {
	return m.Wallets, nil
}

func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockReporter implements gate.Reporter for testing
type MockReporter struct {
	Reported []domain.FieldName
	Focused  domain.FieldName
	Scrolled bool
}

func (m *MockReporter) ScrollToTop() { m.Scrolled = true }

func (m *MockReporter) ReportValidity(field domain.FieldName, _ string) {
	m.Reported = append(m.Reported, field)
}

func (m *MockReporter) Focus(field domain.FieldName) {
	if m.Focused == "" {
		m.Focused = field
	}
}
