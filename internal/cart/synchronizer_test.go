package cart

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/catalog"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/events"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/identity"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/notify"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/storeapi"
)

type stubBackend struct {
	getCartFn func(ctx context.Context, token string) (storeapi.Cart, error)
	addFn     func(ctx context.Context, token string, productID int, body storeapi.CartMutation) (string, error)
	updateFn  func(ctx context.Context, token string, productID int, body storeapi.CartMutation) (string, error)
	removeFn  func(ctx context.Context, token string, productID int, body storeapi.CartRemoval) (string, error)

	getCalls    atomic.Int32
	mutateCalls atomic.Int32
}

func (s *stubBackend) GetCart(ctx context.Context, token string) (storeapi.Cart, error) {
	s.getCalls.Add(1)
	if s.getCartFn != nil {
		return s.getCartFn(ctx, token)
	}
	return storeapi.Cart{}, nil
}

func (s *stubBackend) AddToCart(ctx context.Context, token string, productID int, body storeapi.CartMutation) (string, error) {
	s.mutateCalls.Add(1)
	if s.addFn != nil {
		return s.addFn(ctx, token, productID, body)
	}
	return "", nil
}

func (s *stubBackend) UpdateCart(ctx context.Context, token string, productID int, body storeapi.CartMutation) (string, error) {
	s.mutateCalls.Add(1)
	if s.updateFn != nil {
		return s.updateFn(ctx, token, productID, body)
	}
	return "", nil
}

func (s *stubBackend) RemoveFromCart(ctx context.Context, token string, productID int, body storeapi.CartRemoval) (string, error) {
	s.mutateCalls.Add(1)
	if s.removeFn != nil {
		return s.removeFn(ctx, token, productID, body)
	}
	return "", nil
}

type stubIdentity struct {
	token string
}

func (s stubIdentity) CurrentUser(context.Context) (*identity.User, bool) {
	if s.token == "" {
		return nil, false
	}
	return &identity.User{UID: "u1"}, true
}

func (s stubIdentity) IDToken(context.Context) (string, error) {
	if s.token == "" {
		return "", identity.ErrNoCredential
	}
	return s.token, nil
}

type snapshot []catalog.Product

func (s snapshot) StockFor(productID, sizeID int, colorID *int) (int, bool) {
	for _, p := range s {
		if p.ID == productID {
			stock, _ := catalog.StockFor(p, sizeID, colorID)
			return stock, true
		}
	}
	return 0, false
}

func noTimer(time.Duration, func()) notify.Timer { return stoppedTimer{} }

type stoppedTimer struct{}

func (stoppedTimer) Stop() bool { return true }

type fixture struct {
	sync    *Synchronizer
	backend *stubBackend
	channel *notify.Channel
	bus     *events.LocalBus
}

func newFixture(t *testing.T, backend *stubBackend, token string, stock StockSource) fixture {
	t.Helper()
	ch := notify.NewChannel(notify.WithAfterFunc(noTimer))
	bus := events.NewLocalBus()
	s, err := New(Deps{
		Backend:    backend,
		Identity:   stubIdentity{token: token},
		Notifier:   ch,
		Bus:        bus,
		Stock:      stock,
		LoginPath:  "/login",
		ReturnPath: "/products/1",
	})
	require.NoError(t, err)
	return fixture{sync: s, backend: backend, channel: ch, bus: bus}
}

func intPtr(v int) *int { return &v }

func current(t *testing.T, ch *notify.Channel) notify.Notification {
	t.Helper()
	n, ok := ch.Current()
	require.True(t, ok, "expected a notification")
	return n
}

func TestAddWithoutSizeMakesNoCall(t *testing.T) {
	f := newFixture(t, &stubBackend{}, "tok", nil)

	err := f.sync.AddToCart(context.Background(), AddRequest{ProductID: 1, Quantity: 1})
	assert.ErrorIs(t, err, ErrNoSize)
	assert.Zero(t, f.backend.mutateCalls.Load())
	assert.Zero(t, f.backend.getCalls.Load())

	n := current(t, f.channel)
	assert.Equal(t, notify.KindError, n.Kind)
	assert.Contains(t, n.Message, "select a size")
}

func TestAddOutOfStockSizeMakesNoCall(t *testing.T) {
	raw := catalog.RawProduct{ID: 1, Name: "Tee"}
	var small, medium catalog.RawSize
	small.Size.ID, small.Size.Name, small.Stock = 10, "S", 0
	medium.Size.ID, medium.Size.Name, medium.Stock = 11, "M", 5
	raw.Sizes = []catalog.RawSize{small, medium}
	product := catalog.NormalizeOne(raw)
	require.Equal(t, &catalog.Size{ID: 11, Name: "M"}, product.DefaultSize)

	f := newFixture(t, &stubBackend{}, "tok", snapshot{product})
	err := f.sync.AddToCart(context.Background(), AddRequest{ProductID: 1, SizeID: intPtr(10), Quantity: 1})

	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.Zero(t, f.backend.mutateCalls.Load())
	n := current(t, f.channel)
	assert.Equal(t, notify.KindError, n.Kind)
	assert.Contains(t, n.Message, "out of stock")
}

func TestAddWithoutCredentialRedirects(t *testing.T) {
	f := newFixture(t, &stubBackend{}, "", nil)

	err := f.sync.AddToCart(context.Background(), AddRequest{ProductID: 1, SizeID: intPtr(11), Quantity: 1})
	var authErr *AuthRequiredError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "/login?redirect=%2Fproducts%2F1", authErr.LoginURL)
	assert.Zero(t, f.backend.mutateCalls.Load())
	_, shown := f.channel.Current()
	assert.False(t, shown)
	assert.False(t, f.sync.Processing(LineKey{ProductID: 1, SizeID: 11}))
}

func TestAddSuccessFetchesOnceAndReplacesState(t *testing.T) {
	backend := &stubBackend{}
	backend.addFn = func(_ context.Context, token string, productID int, body storeapi.CartMutation) (string, error) {
		assert.Equal(t, "tok", token)
		assert.Equal(t, 5, productID)
		assert.Equal(t, storeapi.CartMutation{Quantity: 1, SizeID: 11}, body)
		return "Added", nil
	}
	backend.getCartFn = func(context.Context, string) (storeapi.Cart, error) {
		return storeapi.Cart{
			Items:     []storeapi.CartItem{{ProductID: 5, Name: "Tee", Quantity: 1, Price: decimal.RequireFromString("499.00"), LineTotal: decimal.RequireFromString("499.00")}},
			Total:     decimal.RequireFromString("499.00"),
			ItemCount: 1,
		}, nil
	}
	f := newFixture(t, backend, "tok", nil)
	f.sync.state = State{Items: []Item{{ProductID: 99, Name: "stale"}, {ProductID: 98}}, Total: decimal.NewFromInt(12), ItemCount: 7}
	sub := f.bus.Subscribe(events.UserTopic("u1"))
	defer sub.Close()

	require.NoError(t, f.sync.AddToCart(context.Background(), AddRequest{ProductID: 5, SizeID: intPtr(11), Quantity: 1}))

	assert.Equal(t, int32(1), backend.getCalls.Load())
	st := f.sync.State()
	require.Len(t, st.Items, 1)
	assert.Equal(t, 5, st.Items[0].ProductID)
	assert.Equal(t, 1, st.ItemCount)
	assert.Equal(t, "₹499.00", FormatINR(st.Total))
	assert.Equal(t, catalog.DefaultPlaceholder, st.Items[0].Image)

	n := current(t, f.channel)
	assert.Equal(t, notify.KindSuccess, n.Kind)
	assert.Equal(t, "Added", n.Message)

	select {
	case evt := <-sub.Events():
		assert.Equal(t, events.KindCartChanged, evt.Kind)
	default:
		t.Fatal("expected cart.changed event")
	}
}

func TestAddFailureKeepsStateAndUsesServerMessage(t *testing.T) {
	backend := &stubBackend{}
	backend.addFn = func(context.Context, string, int, storeapi.CartMutation) (string, error) {
		return "", &storeapi.APIError{Status: http.StatusConflict, Message: "Only 1 left"}
	}
	f := newFixture(t, backend, "tok", nil)
	f.sync.state = State{Items: []Item{{ProductID: 3}}, ItemCount: 1}

	err := f.sync.AddToCart(context.Background(), AddRequest{ProductID: 5, SizeID: intPtr(11)})
	require.Error(t, err)
	assert.Zero(t, backend.getCalls.Load())
	assert.Len(t, f.sync.State().Items, 1)
	assert.Equal(t, "Only 1 left", current(t, f.channel).Message)

	backend.addFn = func(context.Context, string, int, storeapi.CartMutation) (string, error) {
		return "", errors.New("connection reset")
	}
	_ = f.sync.AddToCart(context.Background(), AddRequest{ProductID: 5, SizeID: intPtr(11)})
	assert.Equal(t, MsgAddFailed, current(t, f.channel).Message)
}

func TestBackendUnauthorizedBecomesRedirect(t *testing.T) {
	backend := &stubBackend{}
	backend.removeFn = func(context.Context, string, int, storeapi.CartRemoval) (string, error) {
		return "", &storeapi.APIError{Status: http.StatusUnauthorized}
	}
	f := newFixture(t, backend, "expired", nil)

	err := f.sync.RemoveFromCart(context.Background(), 5, 11, nil)
	var authErr *AuthRequiredError
	assert.True(t, errors.As(err, &authErr))
}

func TestSameLineIsGuarded(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	backend := &stubBackend{}
	backend.updateFn = func(context.Context, string, int, storeapi.CartMutation) (string, error) {
		close(entered)
		<-release
		return "", nil
	}
	f := newFixture(t, backend, "tok", nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, f.sync.UpdateQuantity(context.Background(), 5, 2, 11, intPtr(3)))
	}()
	<-entered

	key := KeyFor(5, 11, intPtr(3))
	assert.True(t, f.sync.Processing(key))
	err := f.sync.RemoveFromCart(context.Background(), 5, 11, intPtr(3))
	assert.ErrorIs(t, err, ErrInFlight)
	assert.Equal(t, int32(1), backend.mutateCalls.Load())

	assert.NoError(t, f.sync.RemoveFromCart(context.Background(), 5, 12, intPtr(3)), "other lines are not blocked")

	close(release)
	wg.Wait()
	assert.False(t, f.sync.Processing(key))
}

func TestUpdateBelowOneIsRejected(t *testing.T) {
	f := newFixture(t, &stubBackend{}, "tok", nil)
	err := f.sync.UpdateQuantity(context.Background(), 5, 0, 11, nil)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Zero(t, f.backend.mutateCalls.Load())
}

func TestFetchFailureKeepsState(t *testing.T) {
	backend := &stubBackend{}
	backend.getCartFn = func(context.Context, string) (storeapi.Cart, error) {
		return storeapi.Cart{}, errors.New("timeout")
	}
	f := newFixture(t, backend, "tok", nil)
	f.sync.state = State{Items: []Item{{ProductID: 1}}, ItemCount: 1}

	require.Error(t, f.sync.FetchCart(context.Background()))
	assert.Len(t, f.sync.State().Items, 1)
	assert.Equal(t, MsgLoadFailed, current(t, f.channel).Message)
}

func TestLateResponseAfterCloseIsDropped(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	backend := &stubBackend{}
	backend.addFn = func(context.Context, string, int, storeapi.CartMutation) (string, error) {
		close(entered)
		<-release
		return "Added", nil
	}
	f := newFixture(t, backend, "tok", nil)
	sub := f.bus.Subscribe(events.UserTopic("u1"))
	defer sub.Close()

	done := make(chan error, 1)
	go func() {
		done <- f.sync.AddToCart(context.Background(), AddRequest{ProductID: 5, SizeID: intPtr(11)})
	}()
	<-entered
	f.sync.Close()
	close(release)

	assert.ErrorIs(t, <-done, ErrClosed)
	_, shown := f.channel.Current()
	assert.False(t, shown)
	assert.Zero(t, backend.getCalls.Load())
	assert.Len(t, sub.Events(), 0)

	assert.ErrorIs(t, f.sync.FetchCart(context.Background()), ErrClosed)
}

func TestConcurrentFetchLastCompletionWins(t *testing.T) {
	first := make(chan struct{})
	var calls atomic.Int32
	backend := &stubBackend{}
	backend.getCartFn = func(context.Context, string) (storeapi.Cart, error) {
		if calls.Add(1) == 1 {
			<-first
			return storeapi.Cart{ItemCount: 1}, nil
		}
		return storeapi.Cart{ItemCount: 2}, nil
	}
	f := newFixture(t, backend, "tok", nil)

	done := make(chan struct{})
	go func() {
		_ = f.sync.FetchCart(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, f.sync.FetchCart(context.Background()))
	assert.Equal(t, 2, f.sync.State().ItemCount)

	close(first)
	<-done
	assert.Equal(t, 1, f.sync.State().ItemCount)
}

func TestFormatINR(t *testing.T) {
	assert.Equal(t, "₹499.00", FormatINR(decimal.RequireFromString("499")))
	assert.Equal(t, "₹1299.50", FormatINR(decimal.RequireFromString("1299.5")))
	assert.Equal(t, "₹0.00", FormatINR(decimal.Zero))
	assert.Equal(t, int64(49900), Paise(decimal.RequireFromString("499.00")))
}
