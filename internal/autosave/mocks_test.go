package autosave

import (
	"context"
	"sync"

	"github.com/fjod/storefront-checkout/domain"
)

// MockStore implements cartstore.Store for testing
type MockStore struct {
	mu         sync.Mutex
	Saved      []map[domain.FieldName]string
	SaveCart   *domain.Cart
	SaveErr    error
	BeforeSave func()
}

func (m *MockStore) GetCart(_ context.Context, cartID string) (*domain.Cart, error) {
	return &domain.Cart{ID: cartID}, nil
}

func (m *MockStore) SetAddresses(_ context.Context, _ string, fields map[domain.FieldName]string) (*domain.Cart, error) {
	if m.BeforeSave != nil {
		m.BeforeSave()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Saved = append(m.Saved, fields)
	return m.SaveCart, m.SaveErr
}

func (m *MockStore) InitiatePaymentSession(_ context.Context, _ *domain.Cart, _ string) (*domain.PaymentSession, error) {
	return nil, nil
}

func (m *MockStore) PlaceOrder(_ context.Context, _ string) (*domain.Order, error) {
	return nil, nil
}

func (m *MockStore) Calls() []map[domain.FieldName]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[domain.FieldName]string(nil), m.Saved...)
}
