package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	r "github.com/fjod/storefront-checkout/internal/repository"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestPoller(repo *MockRepository, writer messageWriter) (*OutboxPoller, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	return &OutboxPoller{
		timeout:      5 * time.Second,
		eventTick:    10 * time.Millisecond,
		recoveryTick: time.Hour,
		abandonAfter: DefaultAbandonAfter,
		now:          time.Now,
		repo:         repo,
		writer:       writer,
		logger:       zap.New(core),
	}, logs
}

func orderPlaced(id int, cartID string) *r.OutboxEvent {
	return &r.OutboxEvent{
		ID:          id,
		AggregateId: cartID,
		EventType:   r.EventOrderPlaced,
		Payload:     json.RawMessage(fmt.Sprintf(`{"cart_id":%q,"order_id":"order_%d"}`, cartID, id)),
		CreatedAt:   time.Now(),
	}
}

func TestProcessUnpublishedEvents(t *testing.T) {
	repo := &MockRepository{OutboxEvents: []*r.OutboxEvent{orderPlaced(1, "cart_1"), orderPlaced(2, "cart_2")}}
	writer := &MockWriter{}
	poller, _ := newTestPoller(repo, writer)

	poller.processUnpublishedEvents(context.Background())

	require.Len(t, writer.Messages, 2)
	msg := writer.Messages[0]
	assert.Equal(t, "cart_1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, r.EventOrderPlaced, string(msg.Headers[0].Value))
	assert.Equal(t, []int{1, 2}, repo.Processed())
}

func TestProcessUnpublishedEvents_PublishFailureLeavesEventUnprocessed(t *testing.T) {
	repo := &MockRepository{OutboxEvents: []*r.OutboxEvent{orderPlaced(1, "cart_1"), orderPlaced(2, "cart_2")}}
	writer := &MockWriter{FailKeys: map[string]error{"cart_1": errors.New("broker unavailable")}}
	poller, logs := newTestPoller(repo, writer)

	poller.processUnpublishedEvents(context.Background())

	assert.Equal(t, []int{2}, repo.Processed())
	assert.Equal(t, 1, logs.FilterMessage("failed to publish outbox event").Len())
}

func TestProcessUnpublishedEvents_RepositoryError(t *testing.T) {
	repo := &MockRepository{GetErr: errors.New("database connection error")}
	writer := &MockWriter{}
	poller, logs := newTestPoller(repo, writer)

	poller.processUnpublishedEvents(context.Background())

	assert.Empty(t, writer.Messages)
	assert.Equal(t, 1, logs.FilterMessage("failed to fetch outbox events").Len())
}

func TestProcessUnpublishedEvents_MarkError(t *testing.T) {
	repo := &MockRepository{OutboxEvents: []*r.OutboxEvent{orderPlaced(1, "cart_1")}, MarkErr: errors.New("deadlock")}
	writer := &MockWriter{}
	poller, logs := newTestPoller(repo, writer)

	poller.processUnpublishedEvents(context.Background())

	assert.Len(t, writer.Messages, 1)
	assert.Equal(t, 1, logs.FilterMessage("failed to mark outbox event as processed").Len())
}

func TestAbandonStaleAttempts(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &MockRepository{AbandonCount: 3}
	poller, logs := newTestPoller(repo, &MockWriter{})
	poller.now = func() time.Time { return now }

	poller.abandonStaleAttempts(context.Background())

	require.Len(t, repo.AbandonBefore, 1)
	assert.Equal(t, now.Add(-30*time.Minute), repo.AbandonBefore[0])
	entries := logs.FilterMessage("abandoned stale payment attempts").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(3), entries[0].ContextMap()["count"])
}

func TestAbandonStaleAttempts_Error(t *testing.T) {
	repo := &MockRepository{AbandonErr: errors.New("database connection error")}
	poller, logs := newTestPoller(repo, &MockWriter{})

	poller.abandonStaleAttempts(context.Background())

	assert.Equal(t, 1, logs.FilterMessage("failed to abandon stale attempts").Len())
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	repo := &MockRepository{OutboxEvents: []*r.OutboxEvent{orderPlaced(1, "cart_1")}}
	poller, _ := newTestPoller(repo, &MockWriter{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(repo.Processed()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestOutboxPoller_PublishesEventsToKafka(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	brokerAddr, cleanup := setupKafka(t)
	defer cleanup()

	createTopic(t, brokerAddr, Topic)

	repo := &MockRepository{OutboxEvents: []*r.OutboxEvent{orderPlaced(1, "cart_123")}}
	poller := NewOutboxPoller(repo, zap.NewNop(), brokerAddr)
	poller.eventTick = 500 * time.Millisecond
	defer poller.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go poller.Run(ctx)

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    Topic,
		GroupID:  "test-consumer",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cart_123", string(msg.Key))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "order_1", payload["order_id"])
	require.Eventually(t, func() bool { return len(repo.Processed()) == 1 }, 10*time.Second, 100*time.Millisecond)
}
