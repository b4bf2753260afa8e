package page

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultIdleTTL is how long an untouched page stays mounted.
const DefaultIdleTTL = 30 * time.Minute

// ErrPageNotFound is returned for unknown, expired, or foreign page ids.
var ErrPageNotFound = errors.New("page: not found")

// Registry tracks the mounted pages of every session.
type Registry struct {
	idleTTL time.Duration
	now     func() time.Time
	logger  *zap.Logger

	mu    sync.Mutex
	pages map[string]*Page
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithIdleTTL sets the idle eviction age.
func WithIdleTTL(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.idleTTL = d
		}
	}
}

// WithRegistryClock overrides the clock used for idle tracking.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRegistryLogger sets the janitor logger.
func WithRegistryLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		idleTTL: DefaultIdleTTL,
		now:     time.Now,
		logger:  zap.NewNop(),
		pages:   make(map[string]*Page),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) add(p *Page) {
	r.mu.Lock()
	r.pages[p.ID] = p
	r.mu.Unlock()
}

// Get returns the page when owner mounted it, and marks it as recently used.
func (r *Registry) Get(id, owner string) (*Page, error) {
	r.mu.Lock()
	p, ok := r.pages[id]
	r.mu.Unlock()
	if !ok || p.Owner != owner {
		return nil, ErrPageNotFound
	}
	p.touch()
	return p, nil
}

// Close unmounts the page owned by owner.
func (r *Registry) Close(id, owner string) error {
	r.mu.Lock()
	p, ok := r.pages[id]
	if !ok || p.Owner != owner {
		r.mu.Unlock()
		return ErrPageNotFound
	}
	delete(r.pages, id)
	r.mu.Unlock()
	p.close()
	return nil
}

// Len is the number of mounted pages.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pages)
}

// Evict unmounts pages idle for longer than the TTL and returns how many it removed.
func (r *Registry) Evict() int {
	now := r.now()
	var expired []*Page
	r.mu.Lock()
	for id, p := range r.pages {
		if p.idleSince(now) > r.idleTTL {
			expired = append(expired, p)
			delete(r.pages, id)
		}
	}
	r.mu.Unlock()
	for _, p := range expired {
		p.close()
	}
	return len(expired)
}

// CloseAll unmounts every page.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	pages := r.pages
	r.pages = make(map[string]*Page)
	r.mu.Unlock()
	for _, p := range pages {
		p.close()
	}
}

// RunJanitor evicts idle pages every interval until ctx is done.
func (r *Registry) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if removed := r.Evict(); removed > 0 {
				r.logger.Info("evicted idle pages", zap.Int("count", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}
