package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fjod/storefront-checkout/domain"
)

var (
	ErrAttemptNotFound   = errors.New("checkout attempt not found")
	ErrDuplicateAttempt  = errors.New("checkout attempt for this payment session already exists")
	ErrInvalidTransition = errors.New("invalid checkout attempt status transition")
)

const EventOrderPlaced = "OrderPlaced"

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// Attempt is one payment confirmation for one payment session of a cart.
type Attempt struct {
	ID               string
	IdempotencyKey   string
	CartID           string
	PaymentSessionID string
	Method           domain.PaymentMethod
	Status           domain.AttemptStatus
	Detail           *string
	OrderID          *string
	Amount           int64
	Currency         string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type OutboxEvent struct {
	ID          int
	AggregateId string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

type AttemptRepository interface {
	CreateAttempt(ctx context.Context, attempt *Attempt) error
	GetAttemptByKey(ctx context.Context, key string) (*Attempt, error)
	GetAttempt(ctx context.Context, id string) (*Attempt, error)
	// UpdateAttemptStatus is a no-op when the attempt already has the status.
	UpdateAttemptStatus(ctx context.Context, id string, status domain.AttemptStatus, detail string) error
	// CompleteAttempt marks the attempt ORDER_PLACED and writes the outbox event in one transaction.
	CompleteAttempt(ctx context.Context, id, orderID string, payload []byte) error
}

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int) error
	// AbandonStaleAttempts moves REDIRECTING attempts not updated since before to ABANDONED.
	AbandonStaleAttempts(ctx context.Context, before time.Time) (int64, error)
}

type RepoInterface interface {
	AttemptRepository
	OutboxRepository
	RunMigrations(*Credentials) error
	Close() error
}
