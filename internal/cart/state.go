package cart

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/catalog"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/storeapi"
)

// LineKey identifies one cart line for the in-flight guard. ColorID 0 means no colour.
type LineKey struct {
	ProductID int `json:"product_id"`
	SizeID    int `json:"size_id"`
	ColorID   int `json:"color_id,omitempty"`
}

// KeyFor builds the LineKey for a product, size and optional colour.
func KeyFor(productID, sizeID int, colorID *int) LineKey {
	k := LineKey{ProductID: productID, SizeID: sizeID}
	if colorID != nil {
		k.ColorID = *colorID
	}
	return k
}

// Ref is an id/name pair.
type Ref struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Item is one server-reported cart line.
type Item struct {
	ProductID int             `json:"product_id"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Size      *Ref            `json:"size,omitempty"`
	Color     *Ref            `json:"color,omitempty"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Key returns the line key of the item.
func (i Item) Key() LineKey {
	k := LineKey{ProductID: i.ProductID}
	if i.Size != nil {
		k.SizeID = i.Size.ID
	}
	if i.Color != nil {
		k.ColorID = i.Color.ID
	}
	return k
}

// State is the cart exactly as last fetched. Nothing in it is computed locally.
type State struct {
	Items     []Item          `json:"items"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
	FetchedAt time.Time       `json:"fetched_at"`
}

func (s State) clone() State {
	out := s
	out.Items = make([]Item, len(s.Items))
	copy(out.Items, s.Items)
	return out
}

func fromPayload(c storeapi.Cart, fetchedAt time.Time) State {
	st := State{
		Items:     make([]Item, 0, len(c.Items)),
		Total:     c.Total,
		ItemCount: c.ItemCount,
		FetchedAt: fetchedAt,
	}
	for _, it := range c.Items {
		item := Item{
			ProductID: it.ProductID,
			Name:      it.Name,
			Image:     strings.TrimSpace(it.Image),
			Price:     it.Price,
			Quantity:  it.Quantity,
			LineTotal: it.LineTotal,
		}
		if item.Image == "" {
			item.Image = catalog.DefaultPlaceholder
		}
		if it.Size != nil {
			item.Size = &Ref{ID: it.Size.ID, Name: it.Size.Name}
		}
		if it.Color != nil {
			item.Color = &Ref{ID: it.Color.ID, Name: it.Color.Name}
		}
		st.Items = append(st.Items, item)
	}
	return st
}
