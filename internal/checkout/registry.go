package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/storefront-checkout/domain"
	"go.uber.org/zap"
)

var ErrPageNotMounted = errors.New("no checkout page mounted for this session")

const (
	// DefaultIdleTimeout is how long a page may go untouched before it is unmounted.
	DefaultIdleTimeout = 30 * time.Minute

	// SweepInterval is how often idle and completed pages are looked for.
	SweepInterval = time.Minute
)

type mountedPage struct {
	page    *Page
	touched time.Time
}

// Registry keeps the mounted page of every tab session.
type Registry struct {
	deps          Deps
	idleTimeout   time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	mu    sync.RWMutex
	pages map[string]*mountedPage

	stopCleanup chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

type RegistryOption func(*Registry)

// WithIdleTimeout unmounts pages nobody has touched for d. Zero keeps them until removed.
func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.idleTimeout = d }
}

func WithSweepInterval(d time.Duration) RegistryOption {
	return func(r *Registry) { r.sweepInterval = d }
}

func NewRegistry(deps Deps, opts ...RegistryOption) *Registry {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	r := &Registry{
		deps:          deps,
		idleTimeout:   DefaultIdleTimeout,
		sweepInterval: SweepInterval,
		now:           time.Now,
		pages:         make(map[string]*mountedPage),
		stopCleanup:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.sweepInterval > 0 {
		r.wg.Add(1)
		go r.sweepLoop()
	}
	return r
}

// Mount builds a fresh page for the session and closes the one it replaces.
func (r *Registry) Mount(ctx context.Context, sessionID, cartID string) (*Page, error) {
	page, err := Mount(ctx, r.deps, sessionID, cartID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	old := r.pages[sessionID]
	r.pages[sessionID] = &mountedPage{page: page, touched: r.now()}
	r.mu.Unlock()

	if old != nil {
		old.page.Close()
	}
	return page, nil
}

// Get returns the session's page and marks it as in use.
func (r *Registry) Get(sessionID string) (*Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mounted, ok := r.pages[sessionID]
	if !ok {
		return nil, ErrPageNotMounted
	}
	mounted.touched = r.now()
	return mounted.page, nil
}

// ForCart returns every page currently showing cartID.
func (r *Registry) ForCart(cartID string) []*Page {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Page
	for _, mounted := range r.pages {
		if mounted.page.CartID() == cartID {
			out = append(out, mounted.page)
		}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pages)
}

// Remove unmounts the session's page. It reports whether one was mounted.
func (r *Registry) Remove(sessionID string) bool {
	r.mu.Lock()
	mounted := r.pages[sessionID]
	delete(r.pages, sessionID)
	r.mu.Unlock()
	if mounted == nil {
		return false
	}
	mounted.page.Close()
	return true
}

// HandleCartChanged refreshes every page showing the cart after a server-side change.
// A page whose refresh is answered with a redirect keeps it for the buyer; that is
// not a failure of the event.
func (r *Registry) HandleCartChanged(ctx context.Context, cartID string) error {
	var errs []error
	for _, page := range r.ForCart(cartID) {
		err := page.Refresh(ctx)
		if err == nil {
			continue
		}
		if domain.IsRedirect(err) {
			r.deps.Logger.Debug("checkout page redirected on refresh",
				zap.String("session_id", page.SessionID()),
				zap.String("cart_id", cartID))
			continue
		}
		r.deps.Logger.Warn("failed to refresh checkout page",
			zap.String("session_id", page.SessionID()),
			zap.String("cart_id", cartID),
			zap.Error(err))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Registry) sweepLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stopCleanup:
			return
		}
	}
}

// sweep unmounts pages left idle. A page whose cart became an order goes as
// soon as it has been left alone for one sweep interval, so the buyer can still
// read the outcome.
func (r *Registry) sweep() int {
	now := r.now()

	r.mu.Lock()
	var evicted []*Page
	for sessionID, mounted := range r.pages {
		untouched := now.Sub(mounted.touched)
		idle := r.idleTimeout > 0 && untouched >= r.idleTimeout
		done := mounted.page.Completed() && untouched >= r.sweepInterval
		if idle || done {
			evicted = append(evicted, mounted.page)
			delete(r.pages, sessionID)
		}
	}
	r.mu.Unlock()

	for _, page := range evicted {
		page.Close()
	}
	if len(evicted) > 0 {
		r.deps.Logger.Debug("unmounted checkout pages", zap.Int("count", len(evicted)))
	}
	return len(evicted)
}

func (r *Registry) Close() {
	r.stopOnce.Do(func() {
		close(r.stopCleanup)
	})
	r.wg.Wait()

	r.mu.Lock()
	pages := r.pages
	r.pages = make(map[string]*mountedPage)
	r.mu.Unlock()
	for _, mounted := range pages {
		mounted.page.Close()
	}
}
