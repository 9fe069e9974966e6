package publisher

import (
	"context"
	"time"

	r "github.com/fjod/storefront-checkout/internal/repository"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	Topic = "checkout-orders"

	// DefaultAbandonAfter is how long an attempt may wait for the buyer to return from the provider.
	DefaultAbandonAfter = 30 * time.Minute
	batchSize           = 100
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type OutboxPoller struct {
	timeout      time.Duration
	eventTick    time.Duration
	recoveryTick time.Duration
	abandonAfter time.Duration
	now          func() time.Time
	repo         r.OutboxRepository
	writer       messageWriter
	logger       *zap.Logger
}

func NewOutboxPoller(repo r.OutboxRepository, logger *zap.Logger, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &OutboxPoller{
		timeout:      5 * time.Second,
		eventTick:    time.Second,
		recoveryTick: time.Minute,
		abandonAfter: DefaultAbandonAfter,
		now:          time.Now,
		repo:         repo,
		writer:       w,
		logger:       logger,
	}
}

// WithAbandonAfter overrides how long a redirect attempt may stay open.
func (p *OutboxPoller) WithAbandonAfter(d time.Duration) *OutboxPoller {
	if d > 0 {
		p.abandonAfter = d
	}
	return p
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	recoveryTicker := time.NewTicker(p.recoveryTick)
	defer eventTicker.Stop()
	defer recoveryTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-recoveryTicker.C:
			p.abandonStaleAttempts(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, batchSize)
	if err != nil {
		p.logger.Error("failed to fetch outbox events", zap.Error(err))
		return
	}

	for _, event := range events {
		if err := p.publishToKafka(ctx, event); err != nil {
			p.logger.Error("failed to publish outbox event", zap.Int("event_id", event.ID), zap.Error(err))
			continue
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.logger.Error("failed to mark outbox event as processed", zap.Int("event_id", event.ID), zap.Error(err))
			continue
		}
	}
}

// abandonStaleAttempts gives up on redirect attempts whose buyer never came back.
func (p *OutboxPoller) abandonStaleAttempts(ctx context.Context) {
	n, err := p.repo.AbandonStaleAttempts(ctx, p.now().Add(-p.abandonAfter))
	if err != nil {
		p.logger.Error("failed to abandon stale attempts", zap.Error(err))
		return
	}
	if n > 0 {
		p.logger.Info("abandoned stale payment attempts", zap.Int64("count", n))
	}
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *r.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateId), // cart_id for ordering
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	return p.writer.WriteMessages(ctx, msg)
}
