package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/cart"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/catalog"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/checkout"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/notify"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/page"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/platform/httpx"
)

const (
	cartChangedTrigger = "cart:changed"
	authChangedTrigger = "auth:changed"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads and validates a JSON body. It writes the error response itself and
// reports whether the handler should continue.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	if err := httpx.DecodeJSON(r, dst, maxBodySize); err != nil {
		if errors.Is(err, httpx.ErrBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
			return false
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make([]map[string]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields = append(fields, map[string]string{"field": fe.Field(), "rule": fe.Tag()})
			}
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request validation failed", http.StatusBadRequest).
				WithDetails(map[string]any{"fields": fields}))
			return false
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return false
	}
	return true
}

// writeView renders the page. Cart mutations also announce the new count so the
// header badge can refresh without polling.
func writeView(w http.ResponseWriter, status int, v page.View, cartChanged bool) {
	if cartChanged {
		setCartTrigger(w, v.Cart.ItemCount)
	}
	httpx.WriteJSON(w, status, v)
}

func setCartTrigger(w http.ResponseWriter, count int) {
	setTrigger(w, cartChangedTrigger, map[string]int{"count": count})
}

func setTrigger(w http.ResponseWriter, name string, detail any) {
	payload := map[string]any{name: detail}
	if raw, err := json.Marshal(payload); err == nil {
		w.Header().Set("HX-Trigger", string(raw))
	}
}

// writeOperationError maps a page operation failure to an error envelope. The page
// view rides along so the client sees the notification the failure produced.
func (h *Handlers) writeOperationError(ctx context.Context, w http.ResponseWriter, p *page.Page, err error) {
	var current *notify.Notification
	if p != nil {
		if n, ok := p.Notifications().Current(); ok {
			current = &n
		}
	}
	e := operationError(err, current)
	if p != nil && e.Redirect == "" {
		e = e.WithDetails(map[string]any{"page": p.View()})
	}
	httpx.WriteError(ctx, w, e)
}

func operationError(err error, current *notify.Notification) httpx.Error {
	var authErr *cart.AuthRequiredError
	switch {
	case errors.As(err, &authErr):
		return httpx.NewError("auth_required", "Please sign in to continue", http.StatusUnauthorized).WithRedirect(authErr.LoginURL)
	case errors.Is(err, cart.ErrNoSize):
		return httpx.NewError("size_required", cart.MsgSelectSize, http.StatusUnprocessableEntity)
	case errors.Is(err, cart.ErrOutOfStock):
		return httpx.NewError("out_of_stock", cart.MsgOutOfStock, http.StatusUnprocessableEntity)
	case errors.Is(err, cart.ErrInvalidQuantity):
		return httpx.NewError("invalid_quantity", cart.MsgBadQuantity, http.StatusUnprocessableEntity)
	case errors.Is(err, cart.ErrInFlight):
		return httpx.NewError("in_flight", "an operation on this item is already in progress", http.StatusConflict)
	case errors.Is(err, cart.ErrClosed):
		return httpx.NewError("page_closed", "page is no longer mounted", http.StatusGone)
	case errors.Is(err, page.ErrUnknownProduct), errors.Is(err, page.ErrUnknownSize), errors.Is(err, page.ErrUnknownColor):
		return httpx.NewError("invalid_selection", err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, checkout.ErrEmptyCart):
		return httpx.NewError("empty_cart", checkout.MsgEmptyCart, http.StatusUnprocessableEntity)
	case errors.Is(err, checkout.ErrUnknownOrder), errors.Is(err, checkout.ErrPaymentMismatch), errors.Is(err, checkout.ErrPaymentIncomplete):
		return httpx.NewError("payment_not_verified", checkout.MsgPaymentFailed, http.StatusUnprocessableEntity)
	}
	message := "the commerce backend request failed"
	if current != nil && current.Message != "" {
		message = current.Message
	}
	return httpx.NewError("upstream_failed", message, http.StatusBadGateway)
}

// writeOpenError maps a page load failure.
func writeOpenError(ctx context.Context, w http.ResponseWriter, err error) {
	var authErr *cart.AuthRequiredError
	switch {
	case errors.As(err, &authErr):
		httpx.WriteError(ctx, w, httpx.NewError("auth_required", "Please sign in to continue", http.StatusUnauthorized).WithRedirect(authErr.LoginURL))
	case errors.Is(err, catalog.ErrUnknownListing):
		httpx.WriteError(ctx, w, httpx.NewError("listing_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, catalog.ErrListingArgument):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, page.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("load_failed", page.MsgLoadFailed, http.StatusBadGateway))
	}
}
