package storeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/catalog"
)

// ListProducts fetches a listing endpoint such as /products?featured=best_seller.
func (c *Client) ListProducts(ctx context.Context, path string, query url.Values) ([]catalog.RawProduct, error) {
	var out list[catalog.RawProduct]
	if err := c.do(ctx, call{method: http.MethodGet, route: routeOf(path), path: path, query: query}, &out); err != nil {
		return nil, err
	}
	return nonNil(out.Items), nil
}

// GetProduct fetches one product. Both a bare record and {"product": {...}} decode.
func (c *Client) GetProduct(ctx context.Context, id int) (catalog.RawProduct, error) {
	var raw json.RawMessage
	path := fmt.Sprintf("/products/%d", id)
	if err := c.do(ctx, call{method: http.MethodGet, route: "/products/{id}", path: path}, &raw); err != nil {
		return catalog.RawProduct{}, err
	}
	var wrapped struct {
		Product *catalog.RawProduct `json:"product"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Product != nil {
		return *wrapped.Product, nil
	}
	var product catalog.RawProduct
	if err := json.Unmarshal(raw, &product); err != nil {
		return catalog.RawProduct{}, fmt.Errorf("storeapi: decode product: %w", err)
	}
	return product, nil
}

// ListCategories fetches all categories.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var out list[Category]
	if err := c.do(ctx, call{method: http.MethodGet, route: "/categories", path: "/categories"}, &out); err != nil {
		return nil, err
	}
	return nonNil(out.Items), nil
}

// CategoryProducts fetches the products of one category.
func (c *Client) CategoryProducts(ctx context.Context, categoryID int) ([]catalog.RawProduct, error) {
	return c.ListProducts(ctx, fmt.Sprintf("/categories/%d/products", categoryID), nil)
}

// SearchSuggestions returns quick suggestions for q.
func (c *Client) SearchSuggestions(ctx context.Context, q string) ([]Suggestion, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []Suggestion{}, nil
	}
	var out list[Suggestion]
	err := c.do(ctx, call{method: http.MethodGet, route: "/search/suggestions", path: "/search/suggestions", query: url.Values{"q": {q}}}, &out)
	if err != nil {
		return nil, err
	}
	return nonNil(out.Items), nil
}

// EnhancedSearch returns full product records matching q.
func (c *Client) EnhancedSearch(ctx context.Context, q string) ([]catalog.RawProduct, error) {
	return c.ListProducts(ctx, "/products/enhanced-search", url.Values{"q": {strings.TrimSpace(q)}})
}

// GetCart fetches the authoritative cart.
func (c *Client) GetCart(ctx context.Context, token string) (Cart, error) {
	var cart Cart
	if err := c.do(ctx, call{method: http.MethodGet, route: "/cart", path: "/cart", token: token}, &cart); err != nil {
		return Cart{}, err
	}
	if cart.Items == nil {
		cart.Items = []CartItem{}
	}
	return cart, nil
}

// AddToCart adds a line and returns the backend message.
func (c *Client) AddToCart(ctx context.Context, token string, productID int, body CartMutation) (string, error) {
	return c.mutate(ctx, "/cart/add/{productId}", fmt.Sprintf("/cart/add/%d", productID), token, body)
}

// UpdateCart changes a line quantity and returns the backend message.
func (c *Client) UpdateCart(ctx context.Context, token string, productID int, body CartMutation) (string, error) {
	body.UpdateQuantity = true
	return c.mutate(ctx, "/cart/update/{productId}", fmt.Sprintf("/cart/update/%d", productID), token, body)
}

// RemoveFromCart removes a line and returns the backend message.
func (c *Client) RemoveFromCart(ctx context.Context, token string, productID int, body CartRemoval) (string, error) {
	return c.mutate(ctx, "/cart/remove/{productId}", fmt.Sprintf("/cart/remove/%d", productID), token, body)
}

// CreateOrder creates an order from the current cart.
func (c *Client) CreateOrder(ctx context.Context, token string) (Order, error) {
	var payload orderPayload
	if err := c.do(ctx, call{method: http.MethodPost, route: "/orders/create", path: "/orders/create", token: token, body: struct{}{}}, &payload); err != nil {
		return Order{}, err
	}
	order := payload.toOrder()
	if order.OrderID == "" {
		return Order{}, fmt.Errorf("storeapi: create order: response missing order_id")
	}
	return order, nil
}

// mutate succeeds on any 2xx; the message is empty when the reply carries none.
func (c *Client) mutate(ctx context.Context, route, path, token string, body any) (string, error) {
	var resp messageResponse
	if err := c.do(ctx, call{method: http.MethodPost, route: route, path: path, token: token, body: body, optionalBody: true}, &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Message), nil
}

func routeOf(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		if s != "" && strings.Trim(s, "0123456789") == "" {
			segments[i] = "{id}"
		}
	}
	return "/" + strings.Join(segments, "/")
}
