// Package cart keeps a page's view of the remote cart in step with the backend.
package cart

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/events"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/identity"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/notify"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/storeapi"
)

// Notification texts.
const (
	MsgSelectSize   = "Please select a size"
	MsgOutOfStock   = "This size is out of stock"
	MsgAdded        = "Added to cart"
	MsgAddFailed    = "Failed to add item to cart"
	MsgUpdated      = "Cart updated"
	MsgUpdateFailed = "Failed to update cart"
	MsgRemoved      = "Item removed from cart"
	MsgRemoveFailed = "Failed to remove item from cart"
	MsgLoadFailed   = "Failed to load cart"
	MsgBadQuantity  = "Quantity must be at least 1"
)

var (
	// ErrNoSize is returned when add is attempted without a size.
	ErrNoSize = errors.New("cart: no size selected")
	// ErrOutOfStock is returned when the selected size has no stock in the page snapshot.
	ErrOutOfStock = errors.New("cart: size out of stock")
	// ErrInFlight is returned when an operation on the same line is outstanding.
	ErrInFlight = errors.New("cart: operation already in flight")
	// ErrInvalidQuantity is returned for quantities below 1.
	ErrInvalidQuantity = errors.New("cart: quantity must be at least 1")
	// ErrClosed is returned by operations on, or completing after, a closed synchronizer.
	ErrClosed = errors.New("cart: synchronizer closed")
)

// AuthRequiredError aborts an operation that needs a credential.
type AuthRequiredError struct {
	LoginURL string
}

func (e *AuthRequiredError) Error() string {
	return "cart: sign-in required"
}

// Backend is the subset of the commerce API the synchronizer calls.
type Backend interface {
	GetCart(ctx context.Context, token string) (storeapi.Cart, error)
	AddToCart(ctx context.Context, token string, productID int, body storeapi.CartMutation) (string, error)
	UpdateCart(ctx context.Context, token string, productID int, body storeapi.CartMutation) (string, error)
	RemoveFromCart(ctx context.Context, token string, productID int, body storeapi.CartRemoval) (string, error)
}

// Notifier shows operation outcomes.
type Notifier interface {
	Success(message string) notify.Notification
	Error(message string) notify.Notification
}

// StockSource answers stock questions from the page's catalog snapshot. known is
// false when the product is not part of the snapshot.
type StockSource interface {
	StockFor(productID, sizeID int, colorID *int) (stock int, known bool)
}

// Deps wires a Synchronizer.
type Deps struct {
	Backend    Backend
	Identity   identity.Provider
	Notifier   Notifier
	Bus        events.Bus
	Stock      StockSource
	LoginPath  string
	ReturnPath string
	Logger     *zap.Logger
	Clock      func() time.Time
}

// AddRequest is an add-to-cart intent.
type AddRequest struct {
	ProductID int
	SizeID    *int
	ColorID   *int
	Quantity  int
}

// Synchronizer performs cart mutations for one page instance. Every mutation is
// followed by an authoritative re-fetch; state is never patched locally.
type Synchronizer struct {
	backend    Backend
	identity   identity.Provider
	notifier   Notifier
	bus        events.Bus
	stock      StockSource
	loginPath  string
	returnPath string
	logger     *zap.Logger
	now        func() time.Time

	mu       sync.Mutex
	gen      uint64
	closed   bool
	state    State
	inflight map[LineKey]struct{}
}

// New builds a Synchronizer.
func New(deps Deps) (*Synchronizer, error) {
	if deps.Backend == nil {
		return nil, errors.New("cart: backend is required")
	}
	if deps.Identity == nil {
		return nil, errors.New("cart: identity provider is required")
	}
	s := &Synchronizer{
		backend:    deps.Backend,
		identity:   deps.Identity,
		notifier:   deps.Notifier,
		bus:        deps.Bus,
		stock:      deps.Stock,
		loginPath:  deps.LoginPath,
		returnPath: deps.ReturnPath,
		logger:     deps.Logger,
		now:        deps.Clock,
		state:      State{Items: []Item{}},
		inflight:   make(map[LineKey]struct{}),
	}
	if s.notifier == nil {
		s.notifier = notify.NewChannel()
	}
	if s.bus == nil {
		s.bus = events.NewLocalBus()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// State returns a copy of the last fetched cart.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Processing reports whether an operation on key is outstanding.
func (s *Synchronizer) Processing(key LineKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[key]
	return ok
}

// InFlight lists the outstanding line keys.
func (s *Synchronizer) InFlight() []LineKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LineKey, 0, len(s.inflight))
	for k := range s.inflight {
		out = append(out, k)
	}
	return out
}

// Close ends the page generation. Responses that land afterwards are dropped.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.closed = true
}

// AddToCart validates the selection against the page snapshot and adds the line.
func (s *Synchronizer) AddToCart(ctx context.Context, req AddRequest) error {
	gen, ok := s.generation()
	if !ok {
		return ErrClosed
	}
	if req.SizeID == nil {
		s.notifier.Error(MsgSelectSize)
		return ErrNoSize
	}
	if s.stock != nil {
		if stock, known := s.stock.StockFor(req.ProductID, *req.SizeID, req.ColorID); known && stock <= 0 {
			s.notifier.Error(MsgOutOfStock)
			return ErrOutOfStock
		}
	}
	quantity := req.Quantity
	if quantity < 1 {
		quantity = 1
	}

	body := storeapi.CartMutation{Quantity: quantity, SizeID: *req.SizeID, ColorID: req.ColorID}
	return s.mutate(ctx, gen, KeyFor(req.ProductID, *req.SizeID, req.ColorID), MsgAdded, MsgAddFailed,
		func(ctx context.Context, token string) (string, error) {
			return s.backend.AddToCart(ctx, token, req.ProductID, body)
		})
}

// UpdateQuantity sets the quantity of a line. Quantities below 1 never reach the backend.
func (s *Synchronizer) UpdateQuantity(ctx context.Context, productID, quantity, sizeID int, colorID *int) error {
	gen, ok := s.generation()
	if !ok {
		return ErrClosed
	}
	if quantity < 1 {
		s.notifier.Error(MsgBadQuantity)
		return ErrInvalidQuantity
	}
	body := storeapi.CartMutation{Quantity: quantity, SizeID: sizeID, ColorID: colorID, UpdateQuantity: true}
	return s.mutate(ctx, gen, KeyFor(productID, sizeID, colorID), MsgUpdated, MsgUpdateFailed,
		func(ctx context.Context, token string) (string, error) {
			return s.backend.UpdateCart(ctx, token, productID, body)
		})
}

// RemoveFromCart removes a line.
func (s *Synchronizer) RemoveFromCart(ctx context.Context, productID, sizeID int, colorID *int) error {
	gen, ok := s.generation()
	if !ok {
		return ErrClosed
	}
	body := storeapi.CartRemoval{SizeID: sizeID, ColorID: colorID}
	return s.mutate(ctx, gen, KeyFor(productID, sizeID, colorID), MsgRemoved, MsgRemoveFailed,
		func(ctx context.Context, token string) (string, error) {
			return s.backend.RemoveFromCart(ctx, token, productID, body)
		})
}

// FetchCart replaces the local state with the backend cart. Of concurrent fetches,
// the one completing last wins.
func (s *Synchronizer) FetchCart(ctx context.Context) error {
	gen, ok := s.generation()
	if !ok {
		return ErrClosed
	}
	token, err := s.identity.IDToken(ctx)
	if err != nil {
		return s.authRequired()
	}
	return s.fetch(ctx, gen, token)
}

func (s *Synchronizer) fetch(ctx context.Context, gen uint64, token string) error {
	payload, err := s.backend.GetCart(ctx, token)
	if !s.current(gen) {
		return ErrClosed
	}
	if err != nil {
		if storeapi.IsStatus(err, http.StatusUnauthorized) {
			return s.authRequired()
		}
		s.logger.Warn("fetch cart failed", zap.Error(err))
		s.notifier.Error(MsgLoadFailed)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.gen != gen {
		return ErrClosed
	}
	s.state = fromPayload(payload, s.now().UTC())
	return nil
}

type mutation func(ctx context.Context, token string) (string, error)

func (s *Synchronizer) mutate(ctx context.Context, gen uint64, key LineKey, okMsg, failMsg string, call mutation) error {
	if !s.acquire(key) {
		return ErrInFlight
	}
	defer s.release(key)

	token, err := s.identity.IDToken(ctx)
	if err != nil {
		return s.authRequired()
	}

	message, err := call(ctx, token)
	if !s.current(gen) {
		return ErrClosed
	}
	if err != nil {
		if storeapi.IsStatus(err, http.StatusUnauthorized) {
			return s.authRequired()
		}
		s.logger.Info("cart mutation failed",
			zap.Int("product_id", key.ProductID),
			zap.Int("size_id", key.SizeID),
			zap.Error(err),
		)
		s.notifier.Error(notify.Message(storeapi.ServerMessage(err), failMsg))
		return err
	}

	s.notifier.Success(notify.Message(message, okMsg))
	s.publish(ctx)
	return s.fetch(ctx, gen, token)
}

func (s *Synchronizer) publish(ctx context.Context) {
	user, ok := s.identity.CurrentUser(ctx)
	if !ok {
		return
	}
	evt := events.Event{Topic: events.UserTopic(user.UID), Kind: events.KindCartChanged, At: s.now().UTC()}
	if err := s.bus.Publish(ctx, evt); err != nil {
		s.logger.Warn("publish cart change", zap.Error(err))
	}
}

func (s *Synchronizer) authRequired() error {
	return &AuthRequiredError{LoginURL: identity.LoginURL(s.loginPath, s.returnPath)}
}

func (s *Synchronizer) generation() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen, !s.closed
}

func (s *Synchronizer) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.gen == gen
}

func (s *Synchronizer) acquire(key LineKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Synchronizer) release(key LineKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, key)
}
