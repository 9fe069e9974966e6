package consumer

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"
)

// MockHandler implements CartChangeHandler for testing
type MockHandler struct {
	mu      sync.Mutex
	Err     error
	CartIDs []string
}

func (m *MockHandler) HandleCartChanged(_ context.Context, cartID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CartIDs = append(m.CartIDs, cartID)
	return m.Err
}

func (m *MockHandler) Handled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.CartIDs...)
}

// MockReader implements messageReader for testing. It serves Messages in order,
// then blocks until the context is done.
type MockReader struct {
	Messages []kafka.Message
	Err      error
	closed   bool
}

func (m *MockReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if m.Err != nil {
		err := m.Err
		m.Err = nil
		return kafka.Message{}, err
	}
	if len(m.Messages) > 0 {
		msg := m.Messages[0]
		m.Messages = m.Messages[1:]
		return msg, nil
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *MockReader) Close() error {
	m.closed = true
	return nil
}
