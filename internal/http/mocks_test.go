package http

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/cartstore"
	"github.com/fjod/storefront-checkout/internal/payment"
)

// MockCartStore implements cartstore.Store for testing
type MockCartStore struct {
	mu          sync.Mutex
	carts       map[string]*domain.Cart
	nextSession int
	orders      int

	// OrderErr makes PlaceOrder fail without placing the order.
	OrderErr error
}

func NewMockCartStore(carts ...*domain.Cart) *MockCartStore {
	m := &MockCartStore{carts: make(map[string]*domain.Cart)}
	for _, c := range carts {
		m.carts[c.ID] = c
	}
	return m
}

func (m *MockCartStore) Orders() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders
}

func (m *MockCartStore) GetCart(_ context.Context, cartID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[cartID]
	if !ok {
		return nil, cartstore.ErrCartNotFound
	}
	out := *cart
	if cart.PaymentCollection != nil {
		pc := *cart.PaymentCollection
		pc.PaymentSessions = append([]domain.PaymentSession(nil), cart.PaymentCollection.PaymentSessions...)
		out.PaymentCollection = &pc
	}
	return &out, nil
}

func (m *MockCartStore) SetAddresses(ctx context.Context, cartID string, _ map[domain.FieldName]string) (*domain.Cart, error) {
	return m.GetCart(ctx, cartID)
}

func (m *MockCartStore) InitiatePaymentSession(_ context.Context, cart *domain.Cart, providerID string) (*domain.PaymentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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
	stored.PaymentCollection = &domain.PaymentCollection{
		ID:              "paycol_" + cart.ID,
		Status:          domain.PaymentCollectionAwaiting,
		PaymentSessions: []domain.PaymentSession{session},
	}
	return &session, nil
}

func (m *MockCartStore) PlaceOrder(_ context.Context, cartID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[cartID]
	if !ok {
		return nil, cartstore.ErrCartNotFound
	}
	if m.OrderErr != nil {
		return nil, m.OrderErr
	}
	m.orders++
	now := time.Now()
	cart.CompletedAt = &now
	return &domain.Order{ID: "order_" + cartID, CartID: cartID, Email: cart.Email, Total: cart.Total, CreatedAt: now}, nil
}

// MockProvider implements payment.Provider for testing
type MockProvider struct {
	CardIntent *domain.PaymentIntent
	CardErr    error
	Wallets    []domain.PaymentMethod
}

func (m *MockProvider) ConfirmCardPayment(context.Context, string, payment.CardConfirmation) (*domain.PaymentIntent, error) {
	return m.CardIntent, m.CardErr
}

func (m *MockProvider) ConfirmRedirectPayment(context.Context, string, payment.RedirectConfirmation) (*domain.PaymentIntent, error) {
	return nil, &domain.ProviderDeclinedError{Code: "unsupported", Message: "redirect methods are not set up in this test"}
}

func (m *MockProvider) AvailableWallets(context.Context, payment.Device) ([]domain.PaymentMethod, error) {
	return m.Wallets, nil
}
