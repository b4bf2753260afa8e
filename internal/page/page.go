// Package page holds per-page instances: the catalog snapshot, selection, filters,
// notification slot and cart synchronizer for one rendered page.
package page

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/cart"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/catalog"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/notify"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/selection"
)

// Kind distinguishes the page flavours.
type Kind string

const (
	KindListing Kind = "listing"
	KindProduct Kind = "product"
	KindCart    Kind = "cart"
)

var (
	// ErrUnknownProduct is returned for product ids outside the page snapshot.
	ErrUnknownProduct = errors.New("page: product not on page")
	// ErrUnknownSize is returned when selecting a size the product does not offer.
	ErrUnknownSize = errors.New("page: size not offered")
	// ErrUnknownColor is returned when selecting a colour the product does not offer.
	ErrUnknownColor = errors.New("page: colour not offered")
)

// Page is one mounted page. The catalog snapshot is fixed at load time; everything
// shown is derived from it.
type Page struct {
	ID      string
	Owner   string
	Kind    Kind
	Title   string
	Listing catalog.ListingDef

	products  []catalog.Product
	byID      map[int]int
	selection *selection.State
	notes     *notify.Channel
	cart      *cart.Synchronizer
	pageSize  int
	now       func() time.Time

	mu       sync.Mutex
	criteria catalog.Criteria
	cursor   int
	lastSeen time.Time
	closed   bool
}

func newPage(id, owner string, kind Kind, title string, def catalog.ListingDef, products []catalog.Product, pageSize int, notes *notify.Channel, now func() time.Time) *Page {
	p := &Page{
		ID:        id,
		Owner:     owner,
		Kind:      kind,
		Title:     title,
		Listing:   def,
		products:  products,
		byID:      make(map[int]int, len(products)),
		selection: selection.New(),
		notes:     notes,
		pageSize:  pageSize,
		now:       now,
		cursor:    1,
		lastSeen:  now(),
	}
	for i, prod := range products {
		p.byID[prod.ID] = i
	}
	p.selection.Init(products)
	return p
}

// StockFor answers stock from the snapshot; it satisfies cart.StockSource.
func (p *Page) StockFor(productID, sizeID int, colorID *int) (int, bool) {
	prod, ok := p.Product(productID)
	if !ok {
		return 0, false
	}
	if stock, offered := catalog.StockFor(prod, sizeID, colorID); offered {
		return stock, true
	}
	return 0, true
}

// Product returns a product of the snapshot.
func (p *Page) Product(id int) (catalog.Product, bool) {
	i, ok := p.byID[id]
	if !ok {
		return catalog.Product{}, false
	}
	return p.products[i], true
}

// Products returns the full snapshot.
func (p *Page) Products() []catalog.Product { return p.products }

// Notifications is the page's notification slot.
func (p *Page) Notifications() *notify.Channel { return p.notes }

// Cart is the page's synchronizer.
func (p *Page) Cart() *cart.Synchronizer { return p.cart }

// Selection is the page's per-product size and colour choice.
func (p *Page) Selection() *selection.State { return p.selection }

// Criteria returns the active filters.
func (p *Page) Criteria() catalog.Criteria {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.criteria
}

// ApplyCriteria replaces the filters and resets the cursor to the first page.
func (p *Page) ApplyCriteria(c catalog.Criteria) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.criteria = c
	p.cursor = 1
}

// SetCursor moves to a 1-based page of the filtered listing.
func (p *Page) SetCursor(n int) {
	if n < 1 {
		n = 1
	}
	p.mu.Lock()
	p.cursor = n
	p.mu.Unlock()
}

// Select records a size and/or colour choice for a product on the page.
func (p *Page) Select(productID int, sizeID, colorID *int) (selection.Choice, error) {
	prod, ok := p.Product(productID)
	if !ok {
		return selection.Choice{}, ErrUnknownProduct
	}
	if colorID != nil {
		if _, ok := prod.Color(*colorID); !ok {
			return selection.Choice{}, ErrUnknownColor
		}
		p.selection.SelectColor(prod, *colorID)
	}
	if sizeID != nil {
		current := p.selection.Get(productID)
		if _, offered := catalog.StockFor(prod, *sizeID, current.ColorID); !offered {
			return selection.Choice{}, ErrUnknownSize
		}
		p.selection.SetSize(productID, *sizeID)
	}
	return p.selection.Get(productID), nil
}

// AddSelected adds the product with its current selection when the request carries
// no explicit size or colour.
func (p *Page) AddSelected(ctx context.Context, req cart.AddRequest) error {
	// Cart pages snapshot only the lines already in the cart; elsewhere an id outside
	// the snapshot has no stock to check against.
	if _, ok := p.byID[req.ProductID]; !ok && p.Kind != KindCart {
		return ErrUnknownProduct
	}
	if req.SizeID == nil || req.ColorID == nil {
		choice := p.selection.Get(req.ProductID)
		if req.SizeID == nil {
			req.SizeID = choice.SizeID
		}
		if req.ColorID == nil {
			req.ColorID = choice.ColorID
		}
	}
	return p.cart.AddToCart(ctx, req)
}

// View is the rendered state of the page.
type View struct {
	ID           string                             `json:"page_id"`
	Kind         Kind                               `json:"kind"`
	Title        string                             `json:"title"`
	Listing      string                             `json:"listing,omitempty"`
	Products     catalog.PageSlice[catalog.Product] `json:"products"`
	Criteria     catalog.Criteria                   `json:"criteria"`
	Facets       catalog.FacetSet                   `json:"facets"`
	Selection    map[int]selection.Choice           `json:"selection"`
	Cart         cart.State                         `json:"cart"`
	CartTotal    string                             `json:"cart_total"`
	Processing   []cart.LineKey                     `json:"processing"`
	Notification *notify.Notification               `json:"notification,omitempty"`
}

// View renders the filtered, paginated listing and the cart from the snapshot.
func (p *Page) View() View {
	p.mu.Lock()
	criteria, cursor := p.criteria, p.cursor
	p.mu.Unlock()

	state := p.cart.State()
	v := View{
		ID:         p.ID,
		Kind:       p.Kind,
		Title:      p.Title,
		Listing:    p.Listing.Name,
		Products:   catalog.Paginate(catalog.Apply(p.products, criteria), cursor, p.pageSize),
		Criteria:   criteria,
		Facets:     catalog.Facets(p.products),
		Selection:  p.selection.Snapshot(),
		Cart:       state,
		CartTotal:  cart.FormatINR(state.Total),
		Processing: p.cart.InFlight(),
	}
	if n, ok := p.notes.Current(); ok {
		v.Notification = &n
	}
	return v
}

func (p *Page) touch() {
	p.mu.Lock()
	p.lastSeen = p.now()
	p.mu.Unlock()
}

func (p *Page) idleSince(now time.Time) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return now.Sub(p.lastSeen)
}

// close unmounts the page; late backend responses are dropped from here on.
func (p *Page) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.cart.Close()
	p.notes.Close()
}
