package web

import (
	"net/http"
	"strings"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/checkout"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/identity"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/notify"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/page"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/platform/httpx"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/session"
)

type beginRequest struct {
	PageID string `json:"page_id"`
}

type completeRequest struct {
	PageID    string `json:"page_id"`
	OrderID   string `json:"order_id" validate:"required"`
	PaymentID string `json:"payment_id" validate:"required"`
}

type dismissRequest struct {
	PageID  string `json:"page_id"`
	OrderID string `json:"order_id" validate:"required"`
}

type checkoutResponse struct {
	Checkout     *checkout.WidgetSession `json:"checkout,omitempty"`
	Page         *page.View              `json:"page,omitempty"`
	Notification *notify.Notification    `json:"notification,omitempty"`
}

// checkoutTarget reports outcomes on the named page, or on a throwaway slot whose
// notification is returned inline when the call names no page.
type checkoutTarget struct {
	checkout.Target
	page  *page.Page
	local *notify.Channel
}

func (h *Handlers) target(r *http.Request, pageID string) (checkoutTarget, bool) {
	t := checkoutTarget{Target: checkout.Target{ReturnPath: identity.ReturnPath(r)}}
	if pageID = strings.TrimSpace(pageID); pageID != "" {
		p, err := h.registry.Get(pageID, session.FromContext(r.Context()).ID)
		if err != nil {
			return t, false
		}
		t.page = p
		t.Notifier = p.Notifications()
		t.Cart = p.Cart()
		return t, true
	}
	t.local = notify.NewChannel()
	t.Notifier = t.local
	return t, true
}

func (t checkoutTarget) response(ws *checkout.WidgetSession) checkoutResponse {
	resp := checkoutResponse{Checkout: ws}
	if t.page != nil {
		v := t.page.View()
		resp.Page = &v
		resp.Notification = v.Notification
		return resp
	}
	if n, ok := t.local.Current(); ok {
		resp.Notification = &n
	}
	t.local.Close()
	return resp
}

func (h *Handlers) beginCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}
	var req beginRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, ok := h.target(r, req.PageID)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("page_not_found", "page not found or expired", http.StatusNotFound))
		return
	}
	ws, err := h.checkout.Begin(ctx, t.Target)
	if err != nil {
		h.writeCheckoutError(w, r, t, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t.response(&ws))
}

func (h *Handlers) completeCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}
	var req completeRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, ok := h.target(r, req.PageID)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("page_not_found", "page not found or expired", http.StatusNotFound))
		return
	}
	if err := h.checkout.Complete(ctx, t.Target, req.OrderID, req.PaymentID); err != nil {
		h.writeCheckoutError(w, r, t, err)
		return
	}
	resp := t.response(nil)
	if resp.Page != nil {
		setCartTrigger(w, resp.Page.Cart.ItemCount)
	} else {
		setCartTrigger(w, h.count(ctx).Count)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handlers) dismissCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}
	var req dismissRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, ok := h.target(r, req.PageID)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("page_not_found", "page not found or expired", http.StatusNotFound))
		return
	}
	h.checkout.Dismiss(t.Target, req.OrderID)
	httpx.WriteJSON(w, http.StatusOK, t.response(nil))
}

func (h *Handlers) writeCheckoutError(w http.ResponseWriter, r *http.Request, t checkoutTarget, err error) {
	if t.page != nil {
		h.writeOperationError(r.Context(), w, t.page, err)
		return
	}
	var current *notify.Notification
	if n, ok := t.local.Current(); ok {
		current = &n
	}
	t.local.Close()
	e := operationError(err, current)
	if current != nil && e.Redirect == "" {
		e = e.WithDetails(map[string]any{"notification": current})
	}
	httpx.WriteError(r.Context(), w, e)
}
