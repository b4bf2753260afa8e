package page

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/cart"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/catalog"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/events"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/identity"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/notify"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/storeapi"
)

// MsgLoadFailed is shown when a listing cannot be loaded.
const MsgLoadFailed = "Failed to load products"

// DefaultPageSize is the listing page size when neither the listing nor config sets one.
const DefaultPageSize = 12

var (
	// ErrLoadFailed is returned when the product fetch for a page fails. The page is
	// not mounted; the client must open it again.
	ErrLoadFailed = errors.New("page: failed to load products")
	// ErrProductNotFound is returned when a detail page names a missing product.
	ErrProductNotFound = errors.New("page: product not found")
)

// CatalogAPI is the commerce API subset used to load pages.
type CatalogAPI interface {
	ListProducts(ctx context.Context, path string, query url.Values) ([]catalog.RawProduct, error)
	GetProduct(ctx context.Context, id int) (catalog.RawProduct, error)
	ListCategories(ctx context.Context) ([]storeapi.Category, error)
}

// LoaderDeps wires a Loader.
type LoaderDeps struct {
	Catalog    CatalogAPI
	Cart       cart.Backend
	Identity   identity.Provider
	Bus        events.Bus
	Registry   *Registry
	Listings   *catalog.Listings
	Normalizer *catalog.Normalizer
	Notify     []notify.Option
	PageSize   int
	LoginPath  string
	Logger     *zap.Logger
	Clock      func() time.Time
}

// Loader fetches page data and mounts pages in the registry. Nothing is cached
// across pages; every open goes to the network.
type Loader struct {
	deps LoaderDeps
}

// ListingRequest names the listing to open and its arguments.
type ListingRequest struct {
	Name       string
	ID         int
	Query      string
	ReturnPath string
}

// NewLoader validates deps and fills defaults.
func NewLoader(deps LoaderDeps) (*Loader, error) {
	if deps.Catalog == nil || deps.Cart == nil || deps.Identity == nil || deps.Registry == nil {
		return nil, errors.New("page: catalog, cart, identity and registry are required")
	}
	if deps.Listings == nil {
		deps.Listings = catalog.DefaultListings()
	}
	if deps.Normalizer == nil {
		deps.Normalizer = catalog.NewNormalizer()
	}
	if deps.Bus == nil {
		deps.Bus = events.NewLocalBus()
	}
	if deps.PageSize <= 0 {
		deps.PageSize = DefaultPageSize
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Loader{deps: deps}, nil
}

// Listings exposes the listing definitions.
func (l *Loader) Listings() *catalog.Listings { return l.deps.Listings }

// OpenListing loads a listing and mounts it for owner. Category listings fetch the
// category list alongside the products to title the page.
func (l *Loader) OpenListing(ctx context.Context, owner string, req ListingRequest) (*Page, error) {
	def, err := l.deps.Listings.Lookup(req.Name)
	if err != nil {
		return nil, err
	}
	path, query, err := def.Path(req.ID, req.Query)
	if err != nil {
		return nil, err
	}

	title := def.Title
	if def.QueryParam != "" {
		title = fmt.Sprintf("%s: %s", def.Title, strings.TrimSpace(req.Query))
	}

	var (
		raw           []catalog.RawProduct
		categoryTitle string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		raw, err = l.deps.Catalog.ListProducts(gctx, path, query)
		return err
	})
	if def.IsCategory() {
		g.Go(func() error {
			categories, err := l.deps.Catalog.ListCategories(gctx)
			if err != nil {
				l.deps.Logger.Debug("category title lookup failed", zap.Int("category_id", req.ID), zap.Error(err))
				return nil
			}
			for _, c := range categories {
				if c.ID == req.ID && strings.TrimSpace(c.Name) != "" {
					categoryTitle = c.Name
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, l.loadFailed(def.Name, err)
	}
	if categoryTitle != "" {
		title = categoryTitle
	}

	pageSize := def.PageSize
	if pageSize <= 0 {
		pageSize = l.deps.PageSize
	}
	return l.mount(owner, KindListing, title, def, l.deps.Normalizer.Normalize(raw), pageSize, req.ReturnPath)
}

// OpenProduct loads one product for a detail page.
func (l *Loader) OpenProduct(ctx context.Context, owner string, productID int, returnPath string) (*Page, error) {
	raw, err := l.deps.Catalog.GetProduct(ctx, productID)
	if err != nil {
		if storeapi.IsStatus(err, http.StatusNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, l.loadFailed("product", err)
	}
	prod := l.deps.Normalizer.NormalizeOne(raw)
	def := catalog.ListingDef{Name: "product", Title: prod.Name}
	return l.mount(owner, KindProduct, prod.Name, def, []catalog.Product{prod}, 1, returnPath)
}

// OpenCart mounts the cart page and fetches the cart. A failed fetch leaves an
// error notification on the mounted page.
func (l *Loader) OpenCart(ctx context.Context, owner, returnPath string) (*Page, error) {
	def := catalog.ListingDef{Name: "cart", Title: "Shopping Cart"}
	p, err := l.mount(owner, KindCart, def.Title, def, nil, l.deps.PageSize, returnPath)
	if err != nil {
		return nil, err
	}
	if err := p.Cart().FetchCart(ctx); err != nil {
		var authErr *cart.AuthRequiredError
		if errors.As(err, &authErr) {
			_ = l.deps.Registry.Close(p.ID, owner)
			return nil, err
		}
		l.deps.Logger.Debug("initial cart fetch failed", zap.Error(err))
	}
	return p, nil
}

func (l *Loader) mount(owner string, kind Kind, title string, def catalog.ListingDef, products []catalog.Product, pageSize int, returnPath string) (*Page, error) {
	notes := notify.NewChannel(l.deps.Notify...)
	p := newPage(ulid.Make().String(), owner, kind, title, def, products, pageSize, notes, l.deps.Clock)
	synchronizer, err := cart.New(cart.Deps{
		Backend:    l.deps.Cart,
		Identity:   l.deps.Identity,
		Notifier:   notes,
		Bus:        l.deps.Bus,
		Stock:      p,
		LoginPath:  l.deps.LoginPath,
		ReturnPath: returnPath,
		Logger:     l.deps.Logger.With(zap.String("page_id", p.ID)),
		Clock:      l.deps.Clock,
	})
	if err != nil {
		notes.Close()
		return nil, err
	}
	p.cart = synchronizer
	l.deps.Registry.add(p)
	return p, nil
}

func (l *Loader) loadFailed(listing string, err error) error {
	l.deps.Logger.Warn("load products", zap.String("listing", listing), zap.Error(err))
	return fmt.Errorf("%w: %w", ErrLoadFailed, err)
}
