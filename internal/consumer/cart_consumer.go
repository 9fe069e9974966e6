package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const Topic = "cart-events"

// CartChangedEvent is published by the commerce backend whenever a cart changes server-side.
type CartChangedEvent struct {
	CartID    string `json:"cart_id"`
	EventType string `json:"event_type"`
}

// CartChangeHandler refreshes whatever shows the cart.
type CartChangeHandler interface {
	HandleCartChanged(ctx context.Context, cartID string) error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	handler CartChangeHandler
	reader  messageReader
	logger  *zap.Logger
}

// NewConsumer reads cart events. Pages live in process memory, so every instance
// must consume the full topic under its own groupID.
func NewConsumer(handler CartChangeHandler, logger *zap.Logger, groupID string, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       Topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MaxBytes:    10e6, // 10MB
	})
	return &Consumer{handler: handler, reader: reader, logger: logger}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Warn("error closing kafka reader", zap.Error(err))
	}
}

func (c *Consumer) processMessage(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		c.logger.Error("error reading cart event", zap.Error(err))
		return
	}

	var event CartChangedEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		c.logger.Warn("error parsing cart event", zap.Error(err), zap.Int64("offset", m.Offset))
		return
	}
	if event.CartID == "" {
		event.CartID = string(m.Key)
	}
	if event.CartID == "" {
		c.logger.Warn("cart event without cart id", zap.Int64("offset", m.Offset))
		return
	}

	if err := c.handler.HandleCartChanged(ctx, event.CartID); err != nil {
		c.logger.Error("failed to refresh pages for cart",
			zap.String("cart_id", event.CartID),
			zap.String("event_type", event.EventType),
			zap.Error(err))
		return
	}
	c.logger.Debug("cart event handled", zap.String("cart_id", event.CartID), zap.String("event_type", event.EventType))
}
