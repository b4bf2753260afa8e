// Package selection holds the per-product size and colour choices of a page.
package selection

import (
	"sync"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/catalog"
)

// Choice is the recorded selection for one product.
type Choice struct {
	SizeID  *int `json:"size_id,omitempty"`
	ColorID *int `json:"color_id,omitempty"`
}

// State maps product ids to choices. Entries are independent per product.
type State struct {
	mu      sync.RWMutex
	choices map[int]Choice
}

// New returns an empty State.
func New() *State {
	return &State{choices: make(map[int]Choice)}
}

// Init seeds choices from the normalised defaults: the first colour and its
// default size, which is DefaultSize unless that colour declares its own sizes.
func (s *State) Init(products []catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.choices = make(map[int]Choice, len(products))
	for _, p := range products {
		var c Choice
		if len(p.Colors) > 0 {
			c.ColorID = intPtr(p.Colors[0].Color.ID)
		}
		if first := catalog.FirstAvailable(p.SizesFor(c.ColorID)); first != nil {
			c.SizeID = intPtr(first.ID)
		}
		s.choices[p.ID] = c
	}
}

// Size returns the chosen size for productID.
func (s *State) Size(productID int) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.choices[productID]
	if !ok || c.SizeID == nil {
		return 0, false
	}
	return *c.SizeID, true
}

// SetSize records the chosen size for productID only.
func (s *State) SetSize(productID, sizeID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.choices[productID]
	c.SizeID = intPtr(sizeID)
	s.choices[productID] = c
}

// Color returns the chosen colour for productID.
func (s *State) Color(productID int) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.choices[productID]
	if !ok || c.ColorID == nil {
		return 0, false
	}
	return *c.ColorID, true
}

// SetColor records the chosen colour without re-deriving the size.
func (s *State) SetColor(productID, colorID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.choices[productID]
	c.ColorID = intPtr(colorID)
	s.choices[productID] = c
}

// Get returns the full choice for productID.
func (s *State) Get(productID int) Choice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.choices[productID].clone()
}

// SelectColor records colorID for the product. If the current size is not in stock
// for that colour, the first in-stock size of the colour is chosen instead, falling
// back to the colour's first size. Returns the resulting choice.
func (s *State) SelectColor(p catalog.Product, colorID int) Choice {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.choices[p.ID]
	c.ColorID = intPtr(colorID)

	sizes := p.SizesFor(c.ColorID)
	if c.SizeID == nil || !inStock(sizes, *c.SizeID) {
		if next := catalog.FirstAvailable(sizes); next != nil {
			c.SizeID = intPtr(next.ID)
		}
	}
	s.choices[p.ID] = c
	return c.clone()
}

// Snapshot copies all choices.
func (s *State) Snapshot() map[int]Choice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]Choice, len(s.choices))
	for id, c := range s.choices {
		out[id] = c.clone()
	}
	return out
}

func inStock(sizes []catalog.SizeOption, sizeID int) bool {
	for _, opt := range sizes {
		if opt.Size.ID == sizeID {
			return opt.InStock()
		}
	}
	return false
}

func (c Choice) clone() Choice {
	out := Choice{}
	if c.SizeID != nil {
		out.SizeID = intPtr(*c.SizeID)
	}
	if c.ColorID != nil {
		out.ColorID = intPtr(*c.ColorID)
	}
	return out
}

func intPtr(v int) *int { return &v }
