package ledger

import (
	"context"
	"sync"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/repository"
)

// MockAttemptRepository implements repository.AttemptRepository for testing
type MockAttemptRepository struct {
	mu        sync.Mutex
	Attempts  map[string]*repository.Attempt
	GetErr    error
	CreateErr error
	// Race simulates another tab inserting the attempt between lookup and insert.
	Race *repository.Attempt

	Completed []CompleteCall
}

type CompleteCall struct {
	ID      string
	OrderID string
	Payload []byte
}

func NewMockAttemptRepository() *MockAttemptRepository {
	return &MockAttemptRepository{Attempts: make(map[string]*repository.Attempt)}
}

func (m *MockAttemptRepository) CreateAttempt(_ context.Context, a *repository.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	if m.Race != nil {
		m.Attempts[m.Race.ID] = m.Race
		m.Race = nil
		return repository.ErrDuplicateAttempt
	}
	copied := *a
	m.Attempts[a.ID] = &copied
	return nil
}

func (m *MockAttemptRepository) GetAttemptByKey(_ context.Context, key string) (*repository.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	for _, a := range m.Attempts {
		if a.IdempotencyKey == key {
			return a, nil
		}
	}
	return nil, repository.ErrAttemptNotFound
}

func (m *MockAttemptRepository) GetAttempt(_ context.Context, id string) (*repository.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Attempts[id]
	if !ok {
		return nil, repository.ErrAttemptNotFound
	}
	return a, nil
}

func (m *MockAttemptRepository) UpdateAttemptStatus(_ context.Context, id string, status domain.AttemptStatus, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Attempts[id]
	if !ok {
		return repository.ErrAttemptNotFound
	}
	if a.Status != status && !domain.CanTransitionTo(a.Status, status) {
		return repository.ErrInvalidTransition
	}
	a.Status = status
	return nil
}

func (m *MockAttemptRepository) CompleteAttempt(_ context.Context, id, orderID string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Attempts[id]
	if !ok {
		return repository.ErrAttemptNotFound
	}
	a.Status = domain.AttemptOrderPlaced
	a.OrderID = &orderID
	m.Completed = append(m.Completed, CompleteCall{ID: id, OrderID: orderID, Payload: payload})
	return nil
}
