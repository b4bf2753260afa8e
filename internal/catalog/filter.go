package catalog

import (
	"errors"
	"sort"
	"strings"
)

// SortOrder is a price ordering for listings.
type SortOrder string

const (
	SortNone      SortOrder = ""
	SortPriceLow  SortOrder = "price_low"
	SortPriceHigh SortOrder = "price_high"
)

// ErrUnknownSort is returned by ParseSort for unsupported values.
var ErrUnknownSort = errors.New("catalog: unknown sort order")

// ParseSort validates a sort parameter. "" and "none" mean no ordering.
func ParseSort(raw string) (SortOrder, error) {
	switch SortOrder(strings.ToLower(strings.TrimSpace(raw))) {
	case SortNone, "none":
		return SortNone, nil
	case SortPriceLow:
		return SortPriceLow, nil
	case SortPriceHigh:
		return SortPriceHigh, nil
	default:
		return SortNone, ErrUnknownSort
	}
}

// Criteria are the filter sidebar inputs. Nil ids do not filter.
type Criteria struct {
	SizeID  *int      `json:"size_id,omitempty"`
	ColorID *int      `json:"color_id,omitempty"`
	Sort    SortOrder `json:"sort,omitempty"`
}

// IsZero reports whether the criteria leave the catalog untouched.
func (c Criteria) IsZero() bool {
	return c.SizeID == nil && c.ColorID == nil && c.Sort == SortNone
}

// Apply derives the displayed list from the full catalog. The input is never
// modified and the result never aliases it.
func Apply(full []Product, c Criteria) []Product {
	out := make([]Product, 0, len(full))
	for _, p := range full {
		if c.SizeID != nil && !offersSize(p, *c.SizeID) {
			continue
		}
		if c.ColorID != nil {
			if _, ok := p.Color(*c.ColorID); !ok {
				continue
			}
		}
		out = append(out, p)
	}
	switch c.Sort {
	case SortPriceLow:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CurrentPrice.LessThan(out[j].CurrentPrice) })
	case SortPriceHigh:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CurrentPrice.GreaterThan(out[j].CurrentPrice) })
	}
	return out
}

func offersSize(p Product, sizeID int) bool {
	for _, s := range p.Sizes {
		if s.Size.ID == sizeID {
			return true
		}
	}
	for _, c := range p.Colors {
		for _, s := range c.Sizes {
			if s.Size.ID == sizeID {
				return true
			}
		}
	}
	return false
}

// FacetSet lists the distinct sizes and colours across a catalog, in first-seen order.
type FacetSet struct {
	Sizes  []Size  `json:"sizes"`
	Colors []Color `json:"colors"`
}

// Facets collects the filter sidebar options for products.
func Facets(products []Product) FacetSet {
	out := FacetSet{Sizes: []Size{}, Colors: []Color{}}
	seenSize := map[int]struct{}{}
	seenColor := map[int]struct{}{}
	addSizes := func(sizes []SizeOption) {
		for _, s := range sizes {
			if _, ok := seenSize[s.Size.ID]; ok {
				continue
			}
			seenSize[s.Size.ID] = struct{}{}
			out.Sizes = append(out.Sizes, s.Size)
		}
	}
	for _, p := range products {
		addSizes(p.Sizes)
		for _, c := range p.Colors {
			addSizes(c.Sizes)
			if _, ok := seenColor[c.Color.ID]; ok {
				continue
			}
			seenColor[c.Color.ID] = struct{}{}
			out.Colors = append(out.Colors, c.Color)
		}
	}
	return out
}
