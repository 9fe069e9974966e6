package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewRepository(cred *Credentials, logger *zap.Logger) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	logger.Info("connected to postgres", zap.String("host", cred.Host), zap.String("db", cred.DBName))
	return &Repository{db: db, logger: logger}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "checkout_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

const attemptColumns = `id, idempotency_key, cart_id, payment_session_id, method, status, detail, order_id,
	amount, currency, created_at, updated_at`

func (r *Repository) CreateAttempt(ctx context.Context, a *Attempt) error {
	query := `INSERT INTO checkout_attempts (id, idempotency_key, cart_id, payment_session_id, method, status, amount, currency, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	          RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		a.ID,
		a.IdempotencyKey,
		a.CartID,
		a.PaymentSessionID,
		a.Method,
		a.Status,
		a.Amount,
		a.Currency,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateAttempt
		}
		return fmt.Errorf("insert checkout attempt: %w", err)
	}
	return nil
}

func (r *Repository) GetAttemptByKey(ctx context.Context, key string) (*Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM checkout_attempts WHERE idempotency_key = $1`
	return scanAttempt(r.db.QueryRowContext(ctx, query, key))
}

func (r *Repository) GetAttempt(ctx context.Context, id string) (*Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM checkout_attempts WHERE id = $1`
	return scanAttempt(r.db.QueryRowContext(ctx, query, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*Attempt, error) {
	var a Attempt
	var detail, orderID sql.NullString
	err := row.Scan(
		&a.ID,
		&a.IdempotencyKey,
		&a.CartID,
		&a.PaymentSessionID,
		&a.Method,
		&a.Status,
		&detail,
		&orderID,
		&a.Amount,
		&a.Currency,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan checkout attempt: %w", err)
	}
	if detail.Valid {
		a.Detail = &detail.String
	}
	if orderID.Valid {
		a.OrderID = &orderID.String
	}
	return &a, nil
}

// lockStatus reads the attempt status under a row lock.
func lockStatus(ctx context.Context, tx *sql.Tx, id string) (domain.AttemptStatus, error) {
	var current domain.AttemptStatus
	err := tx.QueryRowContext(ctx, `SELECT status FROM checkout_attempts WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrAttemptNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select attempt status: %w", err)
	}
	return current, nil
}

func (r *Repository) UpdateAttemptStatus(ctx context.Context, id string, status domain.AttemptStatus, detail string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := lockStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	if current == status {
		return nil
	}
	if !domain.CanTransitionTo(current, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	var detailArg sql.NullString
	if detail != "" {
		detailArg = sql.NullString{String: detail, Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE checkout_attempts SET status = $1, detail = COALESCE($2, detail), updated_at = NOW() WHERE id = $3`,
		status, detailArg, id)
	if err != nil {
		return fmt.Errorf("update attempt status: %w", err)
	}
	return tx.Commit()
}

func (r *Repository) CompleteAttempt(ctx context.Context, id, orderID string, payload []byte) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := lockStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	if !domain.CanTransitionTo(current, domain.AttemptOrderPlaced) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, domain.AttemptOrderPlaced)
	}

	var cartID string
	err = tx.QueryRowContext(ctx,
		`UPDATE checkout_attempts SET status = $1, order_id = $2, updated_at = NOW() WHERE id = $3 RETURNING cart_id`,
		domain.AttemptOrderPlaced, orderID, id).Scan(&cartID)
	if err != nil {
		return fmt.Errorf("update attempt to order placed: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox_events (aggregate_id, event_type, payload, created_at) VALUES ($1, $2, $3, NOW())`,
		cartID, EventOrderPlaced, payload)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	return tx.Commit()
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM outbox_events WHERE processed_at IS NULL ORDER BY id LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateId, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark event %d processed: %w", id, err)
	}
	return nil
}

func (r *Repository) AbandonStaleAttempts(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE checkout_attempts SET status = $1, updated_at = NOW() WHERE status = $2 AND updated_at < $3`,
		domain.AttemptAbandoned, domain.AttemptRedirecting, before)
	if err != nil {
		return 0, fmt.Errorf("abandon stale attempts: %w", err)
	}
	return res.RowsAffected()
}

func (r *Repository) Close() error {
	return r.db.Close()
}
