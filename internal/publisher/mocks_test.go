package publisher

import (
	"context"
	"sync"
	"time"

	r "github.com/fjod/storefront-checkout/internal/repository"
	"github.com/segmentio/kafka-go"
)

// MockRepository implements repository.OutboxRepository for testing
type MockRepository struct {
	mu            sync.Mutex
	OutboxEvents  []*r.OutboxEvent
	GetErr        error
	MarkErr       error
	ProcessedIDs  []int
	AbandonCount  int64
	AbandonErr    error
	AbandonBefore []time.Time
}

func (m *MockRepository) GetUnprocessedEvents(context.Context, int) ([]*r.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	ev := m.OutboxEvents
	m.OutboxEvents = nil // return events once
	return ev, nil
}

func (m *MockRepository) MarkEventAsProcessed(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkErr != nil {
		return m.MarkErr
	}
	m.ProcessedIDs = append(m.ProcessedIDs, id)
	return nil
}

func (m *MockRepository) AbandonStaleAttempts(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AbandonBefore = append(m.AbandonBefore, before)
	return m.AbandonCount, m.AbandonErr
}

func (m *MockRepository) Processed() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.ProcessedIDs...)
}

// MockWriter implements messageWriter for testing
type MockWriter struct {
	mu       sync.Mutex
	Messages []kafka.Message
	// FailKeys rejects messages with these keys.
	FailKeys map[string]error
}

func (m *MockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range msgs {
		if err, ok := m.FailKeys[string(msg.Key)]; ok {
			return err
		}
		m.Messages = append(m.Messages, msg)
	}
	return nil
}

func (m *MockWriter) Close() error { return nil }
