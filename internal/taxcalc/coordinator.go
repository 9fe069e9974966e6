package taxcalc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/flagstore"
	"github.com/fjod/storefront-checkout/internal/observable"
	"go.uber.org/zap"
)

const (
	CalculatingKey = "tax_calculating"
	SnapshotKey    = "tax_snapshot"

	// DefaultWindow is how long a persisted calculating flag stays valid.
	DefaultWindow = 10 * time.Second
)

// CalculationFlag is persisted while a tax-affecting save is in flight.
type CalculationFlag struct {
	IsCalculating bool  `json:"isCalculating"`
	Timestamp     int64 `json:"timestamp"`
}

// Snapshot records the tax total seen right before a tax-affecting save.
type Snapshot struct {
	OldTax    int64 `json:"oldTax"`
	Timestamp int64 `json:"timestamp"`
}

// Token identifies the save that put the coordinator into the calculating state.
type Token uint64

// Coordinator tracks whether a tax recalculation is pending and keeps that
// state alive across page reloads through the flag store.
type Coordinator struct {
	mu     sync.Mutex
	store  flagstore.Store
	window time.Duration
	now    func() time.Time
	logger *zap.Logger

	calculating *observable.Value[bool]
	owner       Token
	timer       *time.Timer
	// written is the timestamp of the flag this coordinator wrote or restored.
	written int64
	closed  bool
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithWindow(d time.Duration) Option {
	return func(c *Coordinator) { c.window = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

func NewCoordinator(store flagstore.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		window:      DefaultWindow,
		now:         time.Now,
		logger:      zap.NewNop(),
		calculating: observable.New(false),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Calculating exposes the in-memory state for subscribers.
func (c *Coordinator) Calculating() *observable.Value[bool] {
	return c.calculating
}

func (c *Coordinator) IsCalculating() bool {
	return c.calculating.Get()
}

// Begin enters the calculating state ahead of a save. It does nothing when the
// cart's tax has not been computed yet. The snapshot is persisted before the flag,
// and both before the caller dispatches its save.
func (c *Coordinator) Begin(ctx context.Context, cart *domain.Cart) (Token, bool, error) {
	tax, known := cart.Tax()
	if !known {
		return 0, false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, false, nil
	}

	ts := c.now().UnixMilli()
	if err := c.writeJSON(ctx, SnapshotKey, Snapshot{OldTax: tax, Timestamp: ts}); err != nil {
		return 0, false, fmt.Errorf("write tax snapshot: %w", err)
	}
	if err := c.writeJSON(ctx, CalculatingKey, CalculationFlag{IsCalculating: true, Timestamp: ts}); err != nil {
		return 0, false, fmt.Errorf("write calculating flag: %w", err)
	}

	c.owner++
	c.written = ts
	c.armLocked(c.window)
	c.calculating.Set(true)

	c.logger.Debug("tax recalculation started", zap.Int64("old_tax", tax))
	return c.owner, true, nil
}

// Observe inspects a fresh cart and leaves the calculating state once the tax
// differs from the snapshot, the flag's window has passed, or the records are gone.
func (c *Coordinator) Observe(ctx context.Context, cart *domain.Cart) error {
	if !c.IsCalculating() {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	snap, ok, err := c.readSnapshot(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return c.clearLocked(ctx, "snapshot missing")
	}
	if tax, known := cart.Tax(); known && tax != snap.OldTax {
		c.logger.Debug("fresh tax observed", zap.Int64("old_tax", snap.OldTax), zap.Int64("new_tax", tax))
		return c.clearLocked(ctx, "tax changed")
	}

	_, valid, err := c.readFlagLocked(ctx)
	if err != nil {
		return err
	}
	if !valid {
		return c.clearLocked(ctx, "window elapsed")
	}
	return nil
}

// Fail leaves the calculating state after a failed save, provided the save still owns it.
func (c *Coordinator) Fail(ctx context.Context, token Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token == 0 || token != c.owner || !c.calculating.Get() {
		return nil
	}
	return c.clearLocked(ctx, "save failed")
}

// Restore runs on mount. A valid persisted flag resumes the calculating state for
// the rest of its window; anything else is deleted.
func (c *Coordinator) Restore(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, nil
	}

	flag, valid, err := c.readFlagLocked(ctx)
	if err != nil {
		return false, err
	}
	if !valid || !flag.IsCalculating {
		if err := c.clearLocked(ctx, "nothing to restore"); err != nil {
			return false, err
		}
		return false, nil
	}

	elapsed := c.now().Sub(time.UnixMilli(flag.Timestamp))
	c.owner++
	c.written = flag.Timestamp
	c.armLocked(c.window - elapsed)
	c.calculating.Set(true)

	c.logger.Info("tax recalculation restored after reload", zap.Duration("remaining", c.window-elapsed))
	return true, nil
}

// ReadFlag returns the persisted flag when it is still within its window.
// A stale flag is deleted.
func (c *Coordinator) ReadFlag(ctx context.Context) (CalculationFlag, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readFlagLocked(ctx)
}

func (c *Coordinator) readFlagLocked(ctx context.Context) (CalculationFlag, bool, error) {
	var flag CalculationFlag
	ok, err := c.readJSON(ctx, CalculatingKey, &flag)
	if err != nil || !ok {
		return CalculationFlag{}, false, err
	}
	if c.now().Sub(time.UnixMilli(flag.Timestamp)) >= c.window {
		if err := c.store.Delete(ctx, CalculatingKey); err != nil {
			return CalculationFlag{}, false, fmt.Errorf("delete stale flag: %w", err)
		}
		return CalculationFlag{}, false, nil
	}
	return flag, true, nil
}

func (c *Coordinator) readSnapshot(ctx context.Context) (Snapshot, bool, error) {
	var snap Snapshot
	ok, err := c.readJSON(ctx, SnapshotKey, &snap)
	return snap, ok, err
}

// armLocked starts the dead-man timer that ends the calculating state if no
// fresh cart ever arrives.
func (c *Coordinator) armLocked(d time.Duration) {
	if c.timer != nil {
		c.timer.Stop()
	}
	owner := c.owner
	c.timer = time.AfterFunc(d, func() { c.expire(owner) })
}

// Close stops the dead-man timer and gives up ownership of the persisted
// records. They stay in the store for whichever page mounts next.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.owner++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coordinator) expire(owner Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || owner != c.owner || !c.calculating.Get() {
		return
	}

	// another page of the same session may have started a newer calculation
	var flag CalculationFlag
	ok, err := c.readJSON(context.Background(), CalculatingKey, &flag)
	if err != nil {
		c.logger.Warn("failed to read tax flag on expiry", zap.Error(err))
		return
	}
	if ok && flag.Timestamp != c.written {
		c.timer = nil
		c.calculating.Set(false)
		c.logger.Debug("tax flag taken over by another page, leaving it in place")
		return
	}

	if err := c.clearLocked(context.Background(), "window elapsed"); err != nil {
		c.logger.Warn("failed to clear expired tax flag", zap.Error(err))
	}
}

func (c *Coordinator) clearLocked(ctx context.Context, reason string) error {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	wasCalculating := c.calculating.Get()
	c.calculating.Set(false)

	err := errors.Join(
		c.store.Delete(ctx, CalculatingKey),
		c.store.Delete(ctx, SnapshotKey),
	)
	if wasCalculating {
		c.logger.Debug("tax recalculation finished", zap.String("reason", reason))
	}
	if err != nil {
		return fmt.Errorf("clear tax records: %w", err)
	}
	return nil
}

func (c *Coordinator) writeJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	// the store TTL only garbage-collects; validity is checked against the timestamp
	return c.store.Write(ctx, key, data, 2*c.window)
}

func (c *Coordinator) readJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := c.store.ReadIfValid(ctx, key)
	if errors.Is(err, flagstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.logger.Warn("discarding malformed tax record", zap.String("key", key), zap.Error(err))
		return false, c.store.Delete(ctx, key)
	}
	return true, nil
}
