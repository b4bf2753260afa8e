package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed listings.yaml
var listingsYAML []byte

var (
	// ErrUnknownListing is returned for listing names with no definition.
	ErrUnknownListing = errors.New("catalog: unknown listing")
	// ErrListingArgument is returned when a listing is opened without its id or query.
	ErrListingArgument = errors.New("catalog: missing listing argument")
)

// ListingDef describes one product listing page and the backend endpoint behind it.
type ListingDef struct {
	Name       string `yaml:"name" json:"name"`
	Title      string `yaml:"title" json:"title"`
	Endpoint   string `yaml:"endpoint" json:"-"`
	QueryParam string `yaml:"query_param" json:"-"`
	RequiresID bool   `yaml:"requires_id" json:"-"`
	PageSize   int    `yaml:"page_size" json:"page_size,omitempty"`
}

// IsCategory reports whether the listing is scoped to a category id.
func (d ListingDef) IsCategory() bool { return d.RequiresID }

// Path renders the backend path and query for the listing.
func (d ListingDef) Path(id int, query string) (string, url.Values, error) {
	endpoint := d.Endpoint
	if d.RequiresID {
		if id <= 0 {
			return "", nil, fmt.Errorf("%w: %s needs an id", ErrListingArgument, d.Name)
		}
		endpoint = strings.ReplaceAll(endpoint, "{id}", strconv.Itoa(id))
	}
	path, rawQuery, _ := strings.Cut(endpoint, "?")
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", nil, fmt.Errorf("catalog: listing %s endpoint: %w", d.Name, err)
	}
	if d.QueryParam != "" {
		query = strings.TrimSpace(query)
		if query == "" {
			return "", nil, fmt.Errorf("%w: %s needs a query", ErrListingArgument, d.Name)
		}
		values.Set(d.QueryParam, query)
	}
	return path, values, nil
}

// Listings is an immutable set of listing definitions keyed by name.
type Listings struct {
	defs  map[string]ListingDef
	order []string
}

// ParseListings decodes listing definitions from YAML.
func ParseListings(data []byte) (*Listings, error) {
	var doc struct {
		Listings []ListingDef `yaml:"listings"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse listings: %w", err)
	}
	out := &Listings{defs: make(map[string]ListingDef, len(doc.Listings))}
	for _, def := range doc.Listings {
		def.Name = strings.TrimSpace(def.Name)
		if def.Name == "" || def.Endpoint == "" {
			return nil, fmt.Errorf("catalog: listing %q needs a name and endpoint", def.Name)
		}
		if _, dup := out.defs[def.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate listing %q", def.Name)
		}
		out.defs[def.Name] = def
		out.order = append(out.order, def.Name)
	}
	return out, nil
}

// DefaultListings returns the listings shipped with the binary.
func DefaultListings() *Listings {
	listings, err := ParseListings(listingsYAML)
	if err != nil {
		panic(err)
	}
	return listings
}

// Lookup returns the definition for name.
func (l *Listings) Lookup(name string) (ListingDef, error) {
	def, ok := l.defs[strings.TrimSpace(name)]
	if !ok {
		return ListingDef{}, fmt.Errorf("%w: %q", ErrUnknownListing, name)
	}
	return def, nil
}

// Names lists definitions in file order.
func (l *Listings) Names() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}
