package catalog

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeRaw(t *testing.T, payload string) []RawProduct {
	t.Helper()
	var raw []RawProduct
	require.NoError(t, json.Unmarshal([]byte(payload), &raw))
	return raw
}

func TestNormalizeNeverLeavesImageEmpty(t *testing.T) {
	raw := decodeRaw(t, `[
		{"id": 1, "name": "Bare Tee", "current_price": 499},
		{"id": 2, "name": "No Images", "current_price": "799.50", "colors": [{"color": {"id": 3, "name": "Red"}, "images": []}]},
		{"id": 3, "name": "Blank URLs", "current_price": 100, "colors": [{"color": {"id": 3}, "images": [{"image_url": "  "}]}], "sizes": null},
		{"id": 4, "name": "Gallery", "current_price": 100, "colors": [
			{"color": {"id": 1}, "images": [{"image_url": "/a.jpg"}, {"image_url": "/b.jpg", "is_default": true}]},
			{"color": {"id": 2}, "images": [{"image_url": "/c.jpg", "is_default": true}]}
		]},
		{"id": 5, "name": "First Only", "current_price": 100, "colors": [{"color": {"id": 1}, "images": [{"image_url": "/first.jpg"}, {"image_url": "/second.jpg"}]}]}
	]`)

	products := Normalize(raw)
	require.Len(t, products, 5)
	for _, p := range products {
		assert.NotEmpty(t, p.Image, "product %d", p.ID)
	}
	assert.Equal(t, DefaultPlaceholder, products[0].Image)
	assert.Equal(t, DefaultPlaceholder, products[1].Image)
	assert.Equal(t, DefaultPlaceholder, products[2].Image)
	assert.Equal(t, "/b.jpg", products[3].Image)
	assert.Equal(t, "/first.jpg", products[4].Image)
	assert.True(t, products[1].CurrentPrice.Equal(decimal.RequireFromString("799.50")))
}

func TestDefaultSizePrefersInStock(t *testing.T) {
	raw := decodeRaw(t, `[{"id": 1, "name": "Tee", "current_price": 499, "sizes": [
		{"size": {"id": 10, "name": "S"}, "stock": 0},
		{"size": {"id": 11, "name": "M"}, "stock": 5}
	]}]`)

	p := NormalizeOne(raw[0])
	require.NotNil(t, p.DefaultSize)
	assert.Equal(t, Size{ID: 11, Name: "M"}, *p.DefaultSize)
}

func TestDefaultSizeFallsBackToFirst(t *testing.T) {
	raw := decodeRaw(t, `[
		{"id": 1, "name": "Sold Out", "current_price": 1, "sizes": [{"size": {"id": 7, "name": "L"}, "stock": 0}, {"size": {"id": 8, "name": "XL"}, "stock": 0}]},
		{"id": 2, "name": "Sizeless", "current_price": 1}
	]`)

	products := Normalize(raw)
	require.NotNil(t, products[0].DefaultSize)
	assert.Equal(t, 7, products[0].DefaultSize.ID)
	assert.Nil(t, products[1].DefaultSize)
	assert.Empty(t, products[1].Sizes)
}

func TestOriginalPriceKeptOnlyWhenHigher(t *testing.T) {
	raw := decodeRaw(t, `[
		{"id": 1, "name": "Sale", "current_price": 499, "original_price": 999},
		{"id": 2, "name": "Same", "current_price": 499, "original_price": 499},
		{"id": 3, "name": "Lower", "current_price": 499, "original_price": "199"}
	]`)

	products := Normalize(raw)
	require.NotNil(t, products[0].OriginalPrice)
	assert.Equal(t, "999", products[0].OriginalPrice.String())
	assert.Nil(t, products[1].OriginalPrice)
	assert.Nil(t, products[2].OriginalPrice)
}

func TestNormalizerResolverAndPlaceholder(t *testing.T) {
	var seen []string
	n := NewNormalizer(
		WithPlaceholder("/img/none.png"),
		WithImageResolver(ImageResolverFunc(func(url string) string {
			seen = append(seen, url)
			return "https://cdn.example.com" + url
		})),
	)
	products := n.Normalize([]RawProduct{
		{ID: 1, Name: "Plain"},
		{ID: 2, Name: "Pictured", Colors: []RawColor{{Images: []RawImage{{ImageURL: "/x.jpg"}}}}},
	})

	assert.Equal(t, "/img/none.png", products[0].Image)
	assert.Equal(t, "https://cdn.example.com/x.jpg", products[1].Image)
	assert.Equal(t, []string{"/x.jpg"}, seen)
}

func TestDescriptionRenderedAndSanitised(t *testing.T) {
	p := NormalizeOne(RawProduct{
		ID:          1,
		Name:        "Linen Shirt",
		Description: "**Soft** linen.\n\n<script>alert(1)</script>",
	})
	assert.Contains(t, p.DescriptionHTML, "<strong>Soft</strong>")
	assert.NotContains(t, p.DescriptionHTML, "<script>")
	assert.Equal(t, "linen-shirt", p.Slug)

	assert.Empty(t, NormalizeOne(RawProduct{ID: 2}).DescriptionHTML)
}

func TestStockForHonoursColourSizes(t *testing.T) {
	red := 1
	blue := 2
	raw := RawProduct{ID: 1, Name: "Hoodie"}
	raw.Sizes = []RawSize{rawSize(10, "S", 4), rawSize(11, "M", 0)}
	var redColor RawColor
	redColor.Color.ID = red
	redColor.Sizes = []RawSize{rawSize(10, "S", 0), rawSize(11, "M", 2)}
	var blueColor RawColor
	blueColor.Color.ID = blue
	raw.Colors = []RawColor{redColor, blueColor}

	p := NormalizeOne(raw)

	stock, ok := StockFor(p, 11, &red)
	assert.True(t, ok)
	assert.Equal(t, 2, stock)

	stock, ok = StockFor(p, 11, &blue)
	assert.True(t, ok)
	assert.Equal(t, 0, stock)

	stock, ok = StockFor(p, 10, nil)
	assert.True(t, ok)
	assert.Equal(t, 4, stock)

	_, ok = StockFor(p, 99, nil)
	assert.False(t, ok)
}

func TestNormalizeToleratesNegativeStock(t *testing.T) {
	p := NormalizeOne(RawProduct{ID: 1, Sizes: []RawSize{rawSize(1, "S", -3)}})
	assert.Equal(t, 0, p.Sizes[0].Stock)
	assert.False(t, strings.Contains(p.Image, "http"))
}

func rawSize(id int, name string, stock int) RawSize {
	var s RawSize
	s.Size.ID = id
	s.Size.Name = name
	s.Stock = stock
	return s
}
