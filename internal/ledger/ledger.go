// Package ledger records payment confirmation attempts in the attempt repository.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderPlacedEvent is the outbox payload published once an order exists.
type OrderPlacedEvent struct {
	AttemptID string               `json:"attempt_id"`
	CartID    string               `json:"cart_id"`
	OrderID   string               `json:"order_id"`
	Method    domain.PaymentMethod `json:"method"`
	Email     string               `json:"email"`
	Total     int64                `json:"total"`
	Currency  string               `json:"currency"`
	PlacedAt  time.Time            `json:"placed_at"`
}

type Ledger struct {
	repo   repository.AttemptRepository
	logger *zap.Logger
}

func New(repo repository.AttemptRepository, logger *zap.Logger) *Ledger {
	return &Ledger{repo: repo, logger: logger}
}

// IdempotencyKey identifies the attempt of one payment session.
func IdempotencyKey(cart *domain.Cart) string {
	sessionID := ""
	if s := cart.ActiveSession(); s != nil {
		sessionID = s.ID
	}
	return cart.ID + ":" + sessionID
}

// Begin returns the attempt for the cart's active payment session, creating it
// on first use. A session that already produced an order is refused.
func (l *Ledger) Begin(ctx context.Context, cart *domain.Cart, method domain.PaymentMethod) (string, error) {
	key := IdempotencyKey(cart)

	existing, err := l.repo.GetAttemptByKey(ctx, key)
	switch {
	case err == nil:
		return l.reuse(existing)
	case !errors.Is(err, repository.ErrAttemptNotFound):
		return "", err
	}

	attempt := &repository.Attempt{
		ID:             uuid.NewString(),
		IdempotencyKey: key,
		CartID:         cart.ID,
		Method:         method,
		Status:         domain.AttemptInitiated,
		Amount:         cart.Total,
		Currency:       cart.CurrencyCode,
	}
	if s := cart.ActiveSession(); s != nil {
		attempt.PaymentSessionID = s.ID
	}

	err = l.repo.CreateAttempt(ctx, attempt)
	if errors.Is(err, repository.ErrDuplicateAttempt) {
		// another tab created it first
		existing, err = l.repo.GetAttemptByKey(ctx, key)
		if err != nil {
			return "", err
		}
		return l.reuse(existing)
	}
	if err != nil {
		return "", err
	}

	l.logger.Info("payment attempt started",
		zap.String("attempt_id", attempt.ID),
		zap.String("cart_id", cart.ID),
		zap.String("method", string(method)))
	return attempt.ID, nil
}

func (l *Ledger) reuse(a *repository.Attempt) (string, error) {
	if a.Status == domain.AttemptOrderPlaced {
		return "", fmt.Errorf("attempt %s: %w", a.ID, domain.ErrOrderAlreadyPlaced)
	}
	l.logger.Debug("payment attempt resumed", zap.String("attempt_id", a.ID), zap.String("status", a.Status.String()))
	return a.ID, nil
}

func (l *Ledger) Transition(ctx context.Context, attemptID string, status domain.AttemptStatus, detail string) error {
	return l.repo.UpdateAttemptStatus(ctx, attemptID, status, detail)
}

// Complete marks the attempt ORDER_PLACED and queues the OrderPlaced event.
func (l *Ledger) Complete(ctx context.Context, attemptID string, order *domain.Order) error {
	attempt, err := l.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}

	placedAt := order.CreatedAt
	if placedAt.IsZero() {
		placedAt = time.Now().UTC()
	}
	currency := order.CurrencyCode
	if currency == "" {
		currency = attempt.Currency
	}
	payload, err := json.Marshal(OrderPlacedEvent{
		AttemptID: attempt.ID,
		CartID:    attempt.CartID,
		OrderID:   order.ID,
		Method:    attempt.Method,
		Email:     order.Email,
		Total:     order.Total,
		Currency:  currency,
		PlacedAt:  placedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal order placed event: %w", err)
	}

	return l.repo.CompleteAttempt(ctx, attemptID, order.ID, payload)
}
