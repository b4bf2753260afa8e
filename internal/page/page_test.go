package page

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/cart"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/catalog"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/identity"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/notify"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/storeapi"
)

type stubCatalog struct {
	listFn       func(ctx context.Context, path string, query url.Values) ([]catalog.RawProduct, error)
	productFn    func(ctx context.Context, id int) (catalog.RawProduct, error)
	categoriesFn func(ctx context.Context) ([]storeapi.Category, error)

	listCalls atomic.Int32
}

func (s *stubCatalog) ListProducts(ctx context.Context, path string, query url.Values) ([]catalog.RawProduct, error) {
	s.listCalls.Add(1)
	if s.listFn != nil {
		return s.listFn(ctx, path, query)
	}
	return nil, nil
}

func (s *stubCatalog) GetProduct(ctx context.Context, id int) (catalog.RawProduct, error) {
	if s.productFn != nil {
		return s.productFn(ctx, id)
	}
	return catalog.RawProduct{ID: id}, nil
}

func (s *stubCatalog) ListCategories(ctx context.Context) ([]storeapi.Category, error) {
	if s.categoriesFn != nil {
		return s.categoriesFn(ctx)
	}
	return nil, nil
}

type stubCart struct {
	mu        sync.Mutex
	cart      storeapi.Cart
	getCartFn func(ctx context.Context) (storeapi.Cart, error)
	added     []storeapi.CartMutation
}

func (s *stubCart) GetCart(ctx context.Context, _ string) (storeapi.Cart, error) {
	if s.getCartFn != nil {
		return s.getCartFn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart, nil
}

func (s *stubCart) AddToCart(_ context.Context, _ string, _ int, body storeapi.CartMutation) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added = append(s.added, body)
	return "", nil
}

func (s *stubCart) UpdateCart(context.Context, string, int, storeapi.CartMutation) (string, error) {
	return "", nil
}

func (s *stubCart) RemoveFromCart(context.Context, string, int, storeapi.CartRemoval) (string, error) {
	return "", nil
}

type stubIdentity struct{ token string }

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

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type noopTimer struct{}

func (noopTimer) Stop() bool { return true }

func noTimers(time.Duration, func()) notify.Timer { return noopTimer{} }

func rawSize(id int, stock int) catalog.RawSize {
	var s catalog.RawSize
	s.Size.ID = id
	s.Size.Name = "S" + string(rune('0'+id))
	s.Stock = stock
	return s
}

func rawColor(id int, sizes ...catalog.RawSize) catalog.RawColor {
	var c catalog.RawColor
	c.Color.ID = id
	c.Sizes = sizes
	return c
}

func fixtureProducts() []catalog.RawProduct {
	return []catalog.RawProduct{
		{ID: 1, Name: "Tee", CurrentPrice: decimal.NewFromInt(499), Sizes: []catalog.RawSize{rawSize(1, 3), rawSize(2, 0)}, Colors: []catalog.RawColor{rawColor(10), rawColor(11, rawSize(1, 0), rawSize(2, 5))}},
		{ID: 2, Name: "Hoodie", CurrentPrice: decimal.NewFromInt(1299), Sizes: []catalog.RawSize{rawSize(2, 1)}},
		{ID: 3, Name: "Cap", CurrentPrice: decimal.NewFromInt(199), Sizes: []catalog.RawSize{rawSize(1, 9)}},
	}
}

type fixture struct {
	catalog  *stubCatalog
	cart     *stubCart
	registry *Registry
	loader   *Loader
	clock    *manualClock
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	clock := &manualClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	f := &fixture{
		catalog: &stubCatalog{listFn: func(context.Context, string, url.Values) ([]catalog.RawProduct, error) {
			return fixtureProducts(), nil
		}},
		cart:     &stubCart{},
		registry: NewRegistry(WithIdleTTL(10*time.Minute), WithRegistryClock(clock.Now)),
		clock:    clock,
	}
	loader, err := NewLoader(LoaderDeps{
		Catalog:   f.catalog,
		Cart:      f.cart,
		Identity:  stubIdentity{token: token},
		Registry:  f.registry,
		Notify:    []notify.Option{notify.WithAfterFunc(noTimers)},
		PageSize:  2,
		LoginPath: "/login",
		Clock:     clock.Now,
	})
	require.NoError(t, err)
	f.loader = loader
	t.Cleanup(f.registry.CloseAll)
	return f
}

func intPtr(v int) *int { return &v }

func TestOpenListingMountsPage(t *testing.T) {
	f := newFixture(t, "tok")
	var gotPath string
	var gotQuery url.Values
	f.catalog.listFn = func(_ context.Context, path string, query url.Values) ([]catalog.RawProduct, error) {
		gotPath, gotQuery = path, query
		return fixtureProducts(), nil
	}

	p, err := f.loader.OpenListing(context.Background(), "sess-1", ListingRequest{Name: "best-sellers"})

	require.NoError(t, err)
	assert.Equal(t, "/products", gotPath)
	assert.Equal(t, "best_seller", gotQuery.Get("featured"))
	assert.Equal(t, KindListing, p.Kind)
	assert.Len(t, p.Products(), 3)
	assert.Equal(t, 1, f.registry.Len())

	v := p.View()
	assert.Equal(t, 3, v.Products.Total)
	assert.Equal(t, 2, v.Products.PageCount)
	assert.Len(t, v.Products.Items, 2)
	assert.Equal(t, "₹0.00", v.CartTotal)
	assert.Nil(t, v.Notification)
}

func TestOpenListingDoesNotCache(t *testing.T) {
	f := newFixture(t, "tok")

	_, err := f.loader.OpenListing(context.Background(), "sess-1", ListingRequest{Name: "all-products"})
	require.NoError(t, err)
	_, err = f.loader.OpenListing(context.Background(), "sess-1", ListingRequest{Name: "all-products"})
	require.NoError(t, err)

	assert.Equal(t, int32(2), f.catalog.listCalls.Load())
}

func TestOpenCategoryListingResolvesTitleConcurrently(t *testing.T) {
	f := newFixture(t, "tok")
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	f.catalog.listFn = func(_ context.Context, path string, _ url.Values) ([]catalog.RawProduct, error) {
		started <- struct{}{}
		<-release
		assert.Equal(t, "/categories/4/products", path)
		return fixtureProducts(), nil
	}
	f.catalog.categoriesFn = func(context.Context) ([]storeapi.Category, error) {
		started <- struct{}{}
		<-release
		return []storeapi.Category{{ID: 3, Name: "Caps"}, {ID: 4, Name: "Hoodies"}}, nil
	}

	done := make(chan *Page, 1)
	go func() {
		p, err := f.loader.OpenListing(context.Background(), "sess-1", ListingRequest{Name: "category", ID: 4})
		assert.NoError(t, err)
		done <- p
	}()
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("fetches did not run concurrently")
		}
	}
	close(release)

	p := <-done
	require.NotNil(t, p)
	assert.Equal(t, "Hoodies", p.Title)
}

func TestOpenCategoryListingKeepsDefaultTitleWhenLookupFails(t *testing.T) {
	f := newFixture(t, "tok")
	f.catalog.categoriesFn = func(context.Context) ([]storeapi.Category, error) {
		return nil, errors.New("boom")
	}

	p, err := f.loader.OpenListing(context.Background(), "sess-1", ListingRequest{Name: "category", ID: 9})

	require.NoError(t, err)
	def, _ := catalog.DefaultListings().Lookup("category")
	assert.Equal(t, def.Title, p.Title)
}

func TestOpenListingLoadFailureIsTerminal(t *testing.T) {
	f := newFixture(t, "tok")
	f.catalog.listFn = func(context.Context, string, url.Values) ([]catalog.RawProduct, error) {
		return nil, &storeapi.APIError{Status: http.StatusBadGateway}
	}

	p, err := f.loader.OpenListing(context.Background(), "sess-1", ListingRequest{Name: "new-collection"})

	require.ErrorIs(t, err, ErrLoadFailed)
	assert.Nil(t, p)
	assert.Zero(t, f.registry.Len())
}

func TestOpenListingArgumentErrors(t *testing.T) {
	f := newFixture(t, "tok")

	_, err := f.loader.OpenListing(context.Background(), "sess-1", ListingRequest{Name: "nope"})
	require.ErrorIs(t, err, catalog.ErrUnknownListing)

	_, err = f.loader.OpenListing(context.Background(), "sess-1", ListingRequest{Name: "search"})
	require.ErrorIs(t, err, catalog.ErrListingArgument)
	assert.Zero(t, f.catalog.listCalls.Load())
}

func TestOpenProductNotFound(t *testing.T) {
	f := newFixture(t, "tok")
	f.catalog.productFn = func(context.Context, int) (catalog.RawProduct, error) {
		return catalog.RawProduct{}, &storeapi.APIError{Status: http.StatusNotFound}
	}

	_, err := f.loader.OpenProduct(context.Background(), "sess-1", 42, "/products/42")

	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestOpenCartRequiresCredential(t *testing.T) {
	f := newFixture(t, "")

	_, err := f.loader.OpenCart(context.Background(), "sess-1", "/cart")

	var authErr *cart.AuthRequiredError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "/login?redirect=%2Fcart", authErr.LoginURL)
	assert.Zero(t, f.registry.Len())
}

func TestOpenCartFetchFailureNotifies(t *testing.T) {
	f := newFixture(t, "tok")
	f.cart.getCartFn = func(context.Context) (storeapi.Cart, error) {
		return storeapi.Cart{}, errors.New("down")
	}

	p, err := f.loader.OpenCart(context.Background(), "sess-1", "/cart")

	require.NoError(t, err)
	n, ok := p.Notifications().Current()
	require.True(t, ok)
	assert.Equal(t, cart.MsgLoadFailed, n.Message)
}

func TestApplyCriteriaResetsCursor(t *testing.T) {
	f := newFixture(t, "tok")
	p, err := f.loader.OpenListing(context.Background(), "sess-1", ListingRequest{Name: "all-products"})
	require.NoError(t, err)

	p.SetCursor(2)
	assert.Equal(t, 2, p.View().Products.Page)

	p.ApplyCriteria(catalog.Criteria{Sort: catalog.SortPriceHigh})
	v := p.View()
	assert.Equal(t, 1, v.Products.Page)
	require.Len(t, v.Products.Items, 2)
	assert.Equal(t, 2, v.Products.Items[0].ID)
	assert.Equal(t, 1, v.Products.Items[1].ID)
	assert.Len(t, p.Products(), 3)
	assert.Equal(t, 1, p.Products()[0].ID)
}

func TestSelectRederivesSizeForColour(t *testing.T) {
	f := newFixture(t, "tok")
	p, err := f.loader.OpenListing(context.Background(), "sess-1", ListingRequest{Name: "all-products"})
	require.NoError(t, err)

	initial := p.Selection().Get(1)
	require.NotNil(t, initial.SizeID)
	assert.Equal(t, 1, *initial.SizeID)

	choice, err := p.Select(1, nil, intPtr(11))
	require.NoError(t, err)
	assert.Equal(t, 11, *choice.ColorID)
	assert.Equal(t, 2, *choice.SizeID)

	_, err = p.Select(1, nil, intPtr(99))
	require.ErrorIs(t, err, ErrUnknownColor)
	_, err = p.Select(1, intPtr(77), nil)
	require.ErrorIs(t, err, ErrUnknownSize)
	_, err = p.Select(404, intPtr(1), nil)
	require.ErrorIs(t, err, ErrUnknownProduct)
}

func TestStockForUsesSnapshot(t *testing.T) {
	f := newFixture(t, "tok")
	p, err := f.loader.OpenListing(context.Background(), "sess-1", ListingRequest{Name: "all-products"})
	require.NoError(t, err)

	stock, known := p.StockFor(1, 1, nil)
	assert.True(t, known)
	assert.Equal(t, 3, stock)

	stock, known = p.StockFor(1, 1, intPtr(11))
	assert.True(t, known)
	assert.Zero(t, stock)

	stock, known = p.StockFor(1, 5, nil)
	assert.True(t, known)
	assert.Zero(t, stock)

	_, known = p.StockFor(404, 1, nil)
	assert.False(t, known)
}

func TestAddSelectedUsesCurrentSelection(t *testing.T) {
	f := newFixture(t, "tok")
	p, err := f.loader.OpenListing(context.Background(), "sess-1", ListingRequest{Name: "all-products"})
	require.NoError(t, err)
	_, err = p.Select(1, nil, intPtr(11))
	require.NoError(t, err)

	require.NoError(t, p.AddSelected(context.Background(), cart.AddRequest{ProductID: 1, Quantity: 1}))

	require.Len(t, f.cart.added, 1)
	assert.Equal(t, 2, f.cart.added[0].SizeID)
	require.NotNil(t, f.cart.added[0].ColorID)
	assert.Equal(t, 11, *f.cart.added[0].ColorID)
}

func TestAddSelectedOutOfStockNeverCallsBackend(t *testing.T) {
	f := newFixture(t, "tok")
	p, err := f.loader.OpenListing(context.Background(), "sess-1", ListingRequest{Name: "all-products"})
	require.NoError(t, err)

	err = p.AddSelected(context.Background(), cart.AddRequest{ProductID: 1, SizeID: intPtr(2), ColorID: intPtr(10), Quantity: 1})

	require.ErrorIs(t, err, cart.ErrOutOfStock)
	assert.Empty(t, f.cart.added)
	n, ok := p.Notifications().Current()
	require.True(t, ok)
	assert.Equal(t, cart.MsgOutOfStock, n.Message)
	assert.Equal(t, cart.MsgOutOfStock, p.View().Notification.Message)
}

func TestAddSelectedRejectsProductOutsideListing(t *testing.T) {
	f := newFixture(t, "tok")
	p, err := f.loader.OpenListing(context.Background(), "sess-1", ListingRequest{Name: "all-products"})
	require.NoError(t, err)

	err = p.AddSelected(context.Background(), cart.AddRequest{ProductID: 404, SizeID: intPtr(1), Quantity: 1})

	require.ErrorIs(t, err, ErrUnknownProduct)
	assert.Empty(t, f.cart.added)
}

func TestRegistryOwnership(t *testing.T) {
	f := newFixture(t, "tok")
	p, err := f.loader.OpenListing(context.Background(), "sess-1", ListingRequest{Name: "all-products"})
	require.NoError(t, err)

	got, err := f.registry.Get(p.ID, "sess-1")
	require.NoError(t, err)
	assert.Same(t, p, got)

	_, err = f.registry.Get(p.ID, "sess-2")
	require.ErrorIs(t, err, ErrPageNotFound)
	require.ErrorIs(t, f.registry.Close(p.ID, "sess-2"), ErrPageNotFound)

	require.NoError(t, f.registry.Close(p.ID, "sess-1"))
	_, err = f.registry.Get(p.ID, "sess-1")
	require.ErrorIs(t, err, ErrPageNotFound)
}

func TestClosedPageDropsLateResponses(t *testing.T) {
	f := newFixture(t, "tok")
	p, err := f.loader.OpenCart(context.Background(), "sess-1", "/cart")
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.cart.getCartFn = func(context.Context) (storeapi.Cart, error) {
		close(entered)
		<-release
		return storeapi.Cart{Items: []storeapi.CartItem{{ProductID: 1, Quantity: 2}}, ItemCount: 2}, nil
	}
	done := make(chan error, 1)
	go func() { done <- p.Cart().FetchCart(context.Background()) }()
	<-entered

	require.NoError(t, f.registry.Close(p.ID, "sess-1"))
	close(release)

	require.ErrorIs(t, <-done, cart.ErrClosed)
	assert.Empty(t, p.Cart().State().Items)
	_, ok := p.Notifications().Current()
	assert.False(t, ok)
}

func TestEvictRemovesIdlePages(t *testing.T) {
	f := newFixture(t, "tok")
	stale, err := f.loader.OpenListing(context.Background(), "sess-1", ListingRequest{Name: "all-products"})
	require.NoError(t, err)
	f.clock.Advance(8 * time.Minute)
	fresh, err := f.loader.OpenListing(context.Background(), "sess-1", ListingRequest{Name: "all-products"})
	require.NoError(t, err)

	f.clock.Advance(3 * time.Minute)
	assert.Equal(t, 1, f.registry.Evict())

	_, err = f.registry.Get(stale.ID, "sess-1")
	require.ErrorIs(t, err, ErrPageNotFound)
	_, err = f.registry.Get(fresh.ID, "sess-1")
	require.NoError(t, err)
	assert.ErrorIs(t, stale.Cart().FetchCart(context.Background()), cart.ErrClosed)
}

func TestRunJanitorStopsWithContext(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.RunJanitor(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
