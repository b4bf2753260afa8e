package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func priced(id int, price int64, sizes ...int) Product {
	p := Product{ID: id, CurrentPrice: decimal.NewFromInt(price)}
	for _, s := range sizes {
		p.Sizes = append(p.Sizes, SizeOption{Size: Size{ID: s}, Stock: 1})
	}
	return p
}

func prices(products []Product) []int64 {
	out := make([]int64, 0, len(products))
	for _, p := range products {
		out = append(out, p.CurrentPrice.IntPart())
	}
	return out
}

func TestApplySortsByPrice(t *testing.T) {
	full := []Product{priced(1, 300), priced(2, 100), priced(3, 200)}

	assert.Equal(t, []int64{100, 200, 300}, prices(Apply(full, Criteria{Sort: SortPriceLow})))
	assert.Equal(t, []int64{300, 200, 100}, prices(Apply(full, Criteria{Sort: SortPriceHigh})))
	assert.Equal(t, []int64{300, 100, 200}, prices(full), "input must not be reordered")
}

func TestApplySortIsStable(t *testing.T) {
	full := []Product{priced(1, 200), priced(2, 100), priced(3, 200), priced(4, 100)}

	low := Apply(full, Criteria{Sort: SortPriceLow})
	ids := []int{low[0].ID, low[1].ID, low[2].ID, low[3].ID}
	assert.Equal(t, []int{2, 4, 1, 3}, ids)
}

func TestApplyAbsentSizeYieldsEmpty(t *testing.T) {
	full := []Product{priced(1, 300, 10), priced(2, 100, 11)}
	missing := 42

	out := Apply(full, Criteria{SizeID: &missing})
	require.NotNil(t, out)
	assert.Empty(t, out)
}

func TestApplyResetRestoresOrder(t *testing.T) {
	full := []Product{priced(1, 300, 10), priced(2, 100, 11), priced(3, 200, 10)}
	size := 10

	filtered := Apply(full, Criteria{SizeID: &size, Sort: SortPriceLow})
	assert.Equal(t, []int64{200, 300}, prices(filtered))

	reset := Apply(full, Criteria{})
	assert.Equal(t, []int64{300, 100, 200}, prices(reset))
}

func TestApplyUnknownSortActsAsNone(t *testing.T) {
	full := []Product{priced(1, 300), priced(2, 100)}
	assert.Equal(t, []int64{300, 100}, prices(Apply(full, Criteria{Sort: "popularity"})))
}

func TestApplyFiltersByColour(t *testing.T) {
	withRed := priced(1, 100)
	withRed.Colors = []ColorOption{{Color: Color{ID: 5, Name: "Red"}}}
	full := []Product{withRed, priced(2, 200)}
	red := 5

	out := Apply(full, Criteria{ColorID: &red})
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].ID)
}

func TestParseSort(t *testing.T) {
	cases := map[string]SortOrder{"": SortNone, "none": SortNone, "price_low": SortPriceLow, " PRICE_HIGH ": SortPriceHigh}
	for in, want := range cases {
		got, err := ParseSort(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseSort("newest")
	assert.ErrorIs(t, err, ErrUnknownSort)
}

func TestFacetsFirstSeenOrder(t *testing.T) {
	a := priced(1, 100, 11, 10)
	a.Colors = []ColorOption{{Color: Color{ID: 2}}, {Color: Color{ID: 1}, Sizes: []SizeOption{{Size: Size{ID: 12}}}}}
	b := priced(2, 100, 10, 13)
	b.Colors = []ColorOption{{Color: Color{ID: 1}}}

	facets := Facets([]Product{a, b})
	sizeIDs := make([]int, 0, len(facets.Sizes))
	for _, s := range facets.Sizes {
		sizeIDs = append(sizeIDs, s.ID)
	}
	assert.Equal(t, []int{11, 10, 12, 13}, sizeIDs)
	require.Len(t, facets.Colors, 2)
	assert.Equal(t, 2, facets.Colors[0].ID)
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	first := Paginate(items, 1, 2)
	assert.Equal(t, []int{1, 2}, first.Items)
	assert.Equal(t, 3, first.PageCount)
	assert.True(t, first.HasNext)
	assert.False(t, first.HasPrev)

	last := Paginate(items, 9, 2)
	assert.Equal(t, 3, last.Page)
	assert.Equal(t, []int{5}, last.Items)
	assert.False(t, last.HasNext)

	empty := Paginate([]int{}, 0, 12)
	assert.Equal(t, 1, empty.Page)
	assert.Equal(t, 1, empty.PageCount)
	assert.Empty(t, empty.Items)
}
