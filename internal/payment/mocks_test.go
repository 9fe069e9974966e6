package payment

import (
	"context"
	"sync"

	"github.com/fjod/storefront-checkout/domain"
)

// MockProvider implements Provider for testing
type MockProvider struct {
	mu             sync.Mutex
	CardIntent     *domain.PaymentIntent
	CardErr        error
	RedirectIntent *domain.PaymentIntent
	RedirectErr    error
	Wallets        []domain.PaymentMethod
	WalletsErr     error

	CardCalls     []CardConfirmation
	RedirectCalls []RedirectConfirmation
	Secrets       []string
	Devices       []Device

	// Block, when set, holds ConfirmCardPayment until it is closed.
	Block   chan struct{}
	Entered chan struct{}
}

func (m *MockProvider) ConfirmCardPayment(_ context.Context, secret string, in CardConfirmation) (*domain.PaymentIntent, error) {
	m.mu.Lock()
	m.CardCalls = append(m.CardCalls, in)
	m.Secrets = append(m.Secrets, secret)
	m.mu.Unlock()
	if m.Entered != nil {
		m.Entered <- struct{}{}
	}
	if m.Block != nil {
		<-m.Block
	}
	return m.CardIntent, m.CardErr
}

func (m *MockProvider) ConfirmRedirectPayment(_ context.Context, secret string, in RedirectConfirmation) (*domain.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RedirectCalls = append(m.RedirectCalls, in)
	m.Secrets = append(m.Secrets, secret)
	return m.RedirectIntent, m.RedirectErr
}

func (m *MockProvider) AvailableWallets(_ context.Context, device Device) ([]domain.PaymentMethod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Devices = append(m.Devices, device)
	return m.Wallets, m.WalletsErr
}

func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CardCalls) + len(m.RedirectCalls)
}

// MockOrderPlacer implements OrderPlacer for testing
type MockOrderPlacer struct {
	mu    sync.Mutex
	Order *domain.Order
	Err   error
	Calls []string
}

func (m *MockOrderPlacer) PlaceOrder(_ context.Context, cartID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, cartID)
	return m.Order, m.Err
}

// MockLedger implements Ledger for testing
type MockLedger struct {
	mu          sync.Mutex
	BeginErr    error
	Transitions []domain.AttemptStatus
	Completed   []*domain.Order
}

func (m *MockLedger) Begin(_ context.Context, _ *domain.Cart, _ domain.PaymentMethod) (string, error) {
	if m.BeginErr != nil {
		return "", m.BeginErr
	}
	return "attempt_1", nil
}

func (m *MockLedger) Transition(_ context.Context, _ string, status domain.AttemptStatus, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Transitions = append(m.Transitions, status)
	return nil
}

func (m *MockLedger) Complete(_ context.Context, _ string, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Completed = append(m.Completed, order)
	return nil
}

// MockReporter implements gate.Reporter for testing
type MockReporter struct {
	Scrolled bool
	Reported []domain.FieldName
	Focused  []domain.FieldName
}

func (m *MockReporter) ScrollToTop() { m.Scrolled = true }

func (m *MockReporter) ReportValidity(field domain.FieldName, _ string) {
	m.Reported = append(m.Reported, field)
}

func (m *MockReporter) Focus(field domain.FieldName) { m.Focused = append(m.Focused, field) }
