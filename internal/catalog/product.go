// Package catalog turns backend product records into the storefront view model
// and derives the displayed listing from it.
package catalog

import (
	"bytes"
	"strings"

	"github.com/gosimple/slug"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"github.com/yuin/goldmark"
)

// DefaultPlaceholder is served when a product has no resolvable image.
const DefaultPlaceholder = "/images/placeholder.jpg"

// RawProduct is a product record as returned by the commerce backend.
type RawProduct struct {
	ID            int              `json:"id"`
	Name          string           `json:"name"`
	CurrentPrice  decimal.Decimal  `json:"current_price"`
	OriginalPrice *decimal.Decimal `json:"original_price,omitempty"`
	Description   string           `json:"description,omitempty"`
	CategoryID    *int             `json:"category_id,omitempty"`
	Colors        []RawColor       `json:"colors"`
	Sizes         []RawSize        `json:"sizes"`
}

// RawColor is a colour entry with its gallery and optional per-colour sizes.
type RawColor struct {
	Color struct {
		ID      int    `json:"id"`
		Name    string `json:"name"`
		HexCode string `json:"hex_code"`
	} `json:"color"`
	Images []RawImage `json:"images"`
	Sizes  []RawSize  `json:"sizes,omitempty"`
}

// RawImage is a single gallery image.
type RawImage struct {
	ImageURL  string `json:"image_url"`
	IsDefault bool   `json:"is_default"`
}

// RawSize is a size with its stock level.
type RawSize struct {
	Size struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"size"`
	Stock int `json:"stock"`
}

// Size identifies a size option.
type Size struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// SizeOption is a size and the units available in it.
type SizeOption struct {
	Size  Size `json:"size"`
	Stock int  `json:"stock"`
}

// InStock reports whether the size can be added to a cart.
func (s SizeOption) InStock() bool { return s.Stock > 0 }

// Color identifies a colour option.
type Color struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	HexCode string `json:"hex_code"`
}

// Image is a resolved gallery image.
type Image struct {
	URL       string `json:"url"`
	IsDefault bool   `json:"is_default"`
}

// ColorOption is a colour with its gallery. Sizes is non-empty only when size
// availability varies by colour.
type ColorOption struct {
	Color  Color        `json:"color"`
	Images []Image      `json:"images"`
	Sizes  []SizeOption `json:"sizes,omitempty"`
}

// Product is the normalised view model rendered by listing and detail pages.
type Product struct {
	ID              int              `json:"id"`
	Name            string           `json:"name"`
	Slug            string           `json:"slug"`
	CurrentPrice    decimal.Decimal  `json:"current_price"`
	OriginalPrice   *decimal.Decimal `json:"original_price,omitempty"`
	CategoryID      *int             `json:"category_id,omitempty"`
	Colors          []ColorOption    `json:"colors"`
	Sizes           []SizeOption     `json:"sizes"`
	Image           string           `json:"image"`
	DefaultSize     *Size            `json:"default_size,omitempty"`
	DescriptionHTML string           `json:"description_html,omitempty"`
}

// Color returns the colour option with the given id.
func (p Product) Color(colorID int) (ColorOption, bool) {
	for _, c := range p.Colors {
		if c.Color.ID == colorID {
			return c, true
		}
	}
	return ColorOption{}, false
}

// SizesFor returns the sizes offered for a colour: the colour's own list when it
// declares one, else the product sizes.
func (p Product) SizesFor(colorID *int) []SizeOption {
	if colorID != nil {
		if c, ok := p.Color(*colorID); ok && len(c.Sizes) > 0 {
			return c.Sizes
		}
	}
	return p.Sizes
}

// StockFor reports the stock of sizeID for the given colour. The boolean is false
// when the product does not offer the size at all.
func StockFor(p Product, sizeID int, colorID *int) (int, bool) {
	for _, s := range p.SizesFor(colorID) {
		if s.Size.ID == sizeID {
			return s.Stock, true
		}
	}
	return 0, false
}

// FirstAvailable returns the first in-stock size, else the first size, else nil.
func FirstAvailable(sizes []SizeOption) *Size {
	for _, s := range sizes {
		if s.InStock() {
			size := s.Size
			return &size
		}
	}
	if len(sizes) == 0 {
		return nil
	}
	size := sizes[0].Size
	return &size
}

// ImageResolver rewrites a resolved image URL for delivery.
type ImageResolver interface {
	ResolveImage(url string) string
}

// ImageResolverFunc adapts a function to ImageResolver.
type ImageResolverFunc func(string) string

// ResolveImage implements ImageResolver.
func (f ImageResolverFunc) ResolveImage(url string) string { return f(url) }

// Normalizer converts raw backend records to Product values.
type Normalizer struct {
	placeholder string
	resolver    ImageResolver
	markdown    goldmark.Markdown
	policy      *bluemonday.Policy
}

// NormalizerOption customises a Normalizer.
type NormalizerOption func(*Normalizer)

// WithPlaceholder overrides the fallback image path.
func WithPlaceholder(path string) NormalizerOption {
	return func(n *Normalizer) {
		if strings.TrimSpace(path) != "" {
			n.placeholder = strings.TrimSpace(path)
		}
	}
}

// WithImageResolver installs a resolver applied to every backend image URL.
func WithImageResolver(r ImageResolver) NormalizerOption {
	return func(n *Normalizer) { n.resolver = r }
}

// NewNormalizer builds a Normalizer with the default placeholder and no resolver.
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		placeholder: DefaultPlaceholder,
		markdown:    goldmark.New(),
		policy:      descriptionPolicy(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func descriptionPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("loading").OnElements("img")
	policy.RequireNoFollowOnLinks(true)
	return policy
}

var defaultNormalizer = NewNormalizer()

// Normalize converts a batch of raw products using the default normalizer.
func Normalize(raw []RawProduct) []Product { return defaultNormalizer.Normalize(raw) }

// NormalizeOne converts a single raw product using the default normalizer.
func NormalizeOne(raw RawProduct) Product { return defaultNormalizer.NormalizeOne(raw) }

// Placeholder returns the fallback image path.
func (n *Normalizer) Placeholder() string { return n.placeholder }

// Normalize converts a batch of raw products, preserving order.
func (n *Normalizer) Normalize(raw []RawProduct) []Product {
	out := make([]Product, 0, len(raw))
	for _, r := range raw {
		out = append(out, n.NormalizeOne(r))
	}
	return out
}

// NormalizeOne converts a raw product. Missing colours or sizes are tolerated.
func (n *Normalizer) NormalizeOne(raw RawProduct) Product {
	p := Product{
		ID:           raw.ID,
		Name:         strings.TrimSpace(raw.Name),
		Slug:         slug.Make(raw.Name),
		CurrentPrice: raw.CurrentPrice,
		CategoryID:   raw.CategoryID,
		Sizes:        convertSizes(raw.Sizes),
		Colors:       make([]ColorOption, 0, len(raw.Colors)),
	}
	if raw.OriginalPrice != nil && raw.OriginalPrice.GreaterThan(raw.CurrentPrice) {
		original := *raw.OriginalPrice
		p.OriginalPrice = &original
	}
	for _, rc := range raw.Colors {
		opt := ColorOption{
			Color:  Color{ID: rc.Color.ID, Name: rc.Color.Name, HexCode: rc.Color.HexCode},
			Images: make([]Image, 0, len(rc.Images)),
			Sizes:  convertSizes(rc.Sizes),
		}
		if len(opt.Sizes) == 0 {
			opt.Sizes = nil
		}
		for _, img := range rc.Images {
			url := strings.TrimSpace(img.ImageURL)
			if url == "" {
				continue
			}
			opt.Images = append(opt.Images, Image{URL: n.resolve(url), IsDefault: img.IsDefault})
		}
		p.Colors = append(p.Colors, opt)
	}
	p.Image = n.primaryImage(p.Colors)
	p.DefaultSize = FirstAvailable(p.Sizes)
	p.DescriptionHTML = n.renderDescription(raw.Description)
	return p
}

func (n *Normalizer) primaryImage(colors []ColorOption) string {
	if len(colors) == 0 || len(colors[0].Images) == 0 {
		return n.placeholder
	}
	for _, img := range colors[0].Images {
		if img.IsDefault {
			return img.URL
		}
	}
	return colors[0].Images[0].URL
}

func (n *Normalizer) resolve(url string) string {
	if n.resolver == nil {
		return url
	}
	if resolved := strings.TrimSpace(n.resolver.ResolveImage(url)); resolved != "" {
		return resolved
	}
	return url
}

func (n *Normalizer) renderDescription(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := n.markdown.Convert([]byte(src), &buf); err != nil {
		return n.policy.Sanitize(src)
	}
	return strings.TrimSpace(n.policy.Sanitize(buf.String()))
}

func convertSizes(raw []RawSize) []SizeOption {
	out := make([]SizeOption, 0, len(raw))
	for _, s := range raw {
		stock := s.Stock
		if stock < 0 {
			stock = 0
		}
		out = append(out, SizeOption{Size: Size{ID: s.Size.ID, Name: s.Size.Name}, Stock: stock})
	}
	return out
}
