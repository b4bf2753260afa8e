package storeapi

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Category is a product category.
type Category struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Suggestion is one search-as-you-type hit.
type Suggestion struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image_url,omitempty"`
	Type  string `json:"type,omitempty"`
}

// Ref is an id/name pair used for cart item size and colour.
type Ref struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// CartItem is a server-authoritative cart line.
type CartItem struct {
	ProductID int             `json:"product_id"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Size      *Ref            `json:"size,omitempty"`
	Color     *Ref            `json:"color,omitempty"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Cart is the GET /cart payload. Missing fields decode to zero values.
type Cart struct {
	Items     []CartItem      `json:"items"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

// CartMutation is the body of add and update calls.
type CartMutation struct {
	Quantity       int  `json:"quantity"`
	SizeID         int  `json:"size_id"`
	ColorID        *int `json:"color_id"`
	UpdateQuantity bool `json:"update_quantity"`
}

// CartRemoval is the body of a remove call.
type CartRemoval struct {
	SizeID  int  `json:"size_id"`
	ColorID *int `json:"color_id"`
}

// Order is the result of POST /orders/create.
type Order struct {
	OrderID string           `json:"order_id"`
	Amount  *decimal.Decimal `json:"amount,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type orderPayload struct {
	OrderID flexString       `json:"order_id"`
	ID      flexString       `json:"id"`
	Amount  *decimal.Decimal `json:"amount"`
	Total   *decimal.Decimal `json:"total"`
}

func (p orderPayload) toOrder() Order {
	o := Order{OrderID: string(p.OrderID), Amount: p.Amount}
	if o.OrderID == "" {
		o.OrderID = string(p.ID)
	}
	if o.Amount == nil {
		o.Amount = p.Total
	}
	return o
}

// flexString accepts both JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*f = flexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = flexString(n.String())
	return nil
}

// list decodes either a bare JSON array or an object wrapping one under a known key.
type list[T any] struct {
	Items []T
}

var listKeys = []string{"products", "results", "items", "data", "categories", "suggestions"}

func (l *list[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		l.Items = []T{}
		return nil
	}
	if data[0] == '[' {
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		l.Items = nonNil(items)
		return nil
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	}
	for _, key := range listKeys {
		raw, ok := wrapper[key]
		if !ok {
			continue
		}
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return err
		}
		l.Items = nonNil(items)
		return nil
	}
	l.Items = []T{}
	return nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
