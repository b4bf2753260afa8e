package selection

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/catalog"
)

func size(id, stock int) catalog.SizeOption {
	return catalog.SizeOption{Size: catalog.Size{ID: id}, Stock: stock}
}

func TestInitFromDefaults(t *testing.T) {
	products := []catalog.Product{
		{ID: 1, Sizes: []catalog.SizeOption{size(10, 0), size(11, 5)}, DefaultSize: &catalog.Size{ID: 11}},
		{ID: 2, Colors: []catalog.ColorOption{{Color: catalog.Color{ID: 7}}}},
	}
	s := New()
	s.Init(products)

	got, ok := s.Size(1)
	require.True(t, ok)
	assert.Equal(t, 11, got)

	_, ok = s.Size(2)
	assert.False(t, ok)
	color, ok := s.Color(2)
	require.True(t, ok)
	assert.Equal(t, 7, color)
}

func TestSetSizeIsolatedPerProduct(t *testing.T) {
	s := New()
	s.SetSize(1, 10)
	s.SetSize(2, 20)
	s.SetSize(1, 11)

	a, _ := s.Size(1)
	b, _ := s.Size(2)
	assert.Equal(t, 11, a)
	assert.Equal(t, 20, b)
}

func TestSelectColorRederivesUnavailableSize(t *testing.T) {
	p := catalog.Product{
		ID:    1,
		Sizes: []catalog.SizeOption{size(10, 3), size(11, 3)},
		Colors: []catalog.ColorOption{
			{Color: catalog.Color{ID: 1}},
			{Color: catalog.Color{ID: 2}, Sizes: []catalog.SizeOption{size(10, 0), size(11, 0), size(12, 4)}},
			{Color: catalog.Color{ID: 3}, Sizes: []catalog.SizeOption{size(10, 0), size(11, 0)}},
		},
	}
	s := New()
	s.SetSize(1, 10)

	c := s.SelectColor(p, 1)
	assert.Equal(t, 10, *c.SizeID, "size still in stock for colour 1")

	c = s.SelectColor(p, 2)
	assert.Equal(t, 12, *c.SizeID, "first in-stock size for colour 2")
	assert.Equal(t, 2, *c.ColorID)

	c = s.SelectColor(p, 3)
	assert.Equal(t, 10, *c.SizeID, "nothing in stock: first size of colour 3")
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New()
	s.SetSize(1, 10)
	snap := s.Snapshot()
	*snap[1].SizeID = 99

	got, _ := s.Size(1)
	assert.Equal(t, 10, got)
}

func TestConcurrentUse(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.SetSize(id, id*10)
			s.SetColor(id, id)
			_, _ = s.Size(id)
		}(i)
	}
	wg.Wait()
	assert.Len(t, s.Snapshot(), 50)
}
