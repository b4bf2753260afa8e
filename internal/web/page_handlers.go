package web

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/cart"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/catalog"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/identity"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/page"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/platform/httpx"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/session"
)

type pageContextKey struct{}

type filtersRequest struct {
	SizeID  *int   `json:"size_id" validate:"omitempty,gt=0"`
	ColorID *int   `json:"color_id" validate:"omitempty,gt=0"`
	Sort    string `json:"sort" validate:"omitempty,oneof=none price_low price_high"`
}

type cursorRequest struct {
	Page int `json:"page" validate:"gte=1"`
}

type selectionRequest struct {
	ProductID int  `json:"product_id" validate:"required,gt=0"`
	SizeID    *int `json:"size_id" validate:"omitempty,gt=0"`
	ColorID   *int `json:"color_id" validate:"omitempty,gt=0"`
}

type addRequest struct {
	ProductID int  `json:"product_id" validate:"required,gt=0"`
	Quantity  int  `json:"quantity" validate:"gte=0,lte=99"`
	SizeID    *int `json:"size_id" validate:"omitempty,gt=0"`
	ColorID   *int `json:"color_id" validate:"omitempty,gt=0"`
}

type updateRequest struct {
	ProductID int  `json:"product_id" validate:"required,gt=0"`
	SizeID    int  `json:"size_id" validate:"required,gt=0"`
	ColorID   *int `json:"color_id" validate:"omitempty,gt=0"`
	Quantity  int  `json:"quantity" validate:"lte=99"`
}

type removeRequest struct {
	ProductID int  `json:"product_id" validate:"required,gt=0"`
	SizeID    int  `json:"size_id" validate:"required,gt=0"`
	ColorID   *int `json:"color_id" validate:"omitempty,gt=0"`
}

func (h *Handlers) openListing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req := page.ListingRequest{
		Name:       chi.URLParam(r, "listing"),
		Query:      normalizeQuery(r.URL.Query().Get("q")),
		ReturnPath: identity.ReturnPath(r),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("id")); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "id must be a positive integer", http.StatusBadRequest))
			return
		}
		req.ID = id
	}
	p, err := h.loader.OpenListing(ctx, session.FromContext(ctx).ID, req)
	if err != nil {
		writeOpenError(ctx, w, err)
		return
	}
	writeView(w, http.StatusCreated, p.View(), false)
}

func (h *Handlers) openProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := strconv.Atoi(chi.URLParam(r, "productID"))
	if err != nil || id <= 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id must be a positive integer", http.StatusBadRequest))
		return
	}
	p, err := h.loader.OpenProduct(ctx, session.FromContext(ctx).ID, id, identity.ReturnPath(r))
	if err != nil {
		writeOpenError(ctx, w, err)
		return
	}
	writeView(w, http.StatusCreated, p.View(), false)
}

func (h *Handlers) openCartPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.loader.OpenCart(ctx, session.FromContext(ctx).ID, identity.ReturnPath(r))
	if err != nil {
		writeOpenError(ctx, w, err)
		return
	}
	writeView(w, http.StatusCreated, p.View(), false)
}

// pageContext resolves {pageID} for the owning session.
func (h *Handlers) pageContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		p, err := h.registry.Get(chi.URLParam(r, "pageID"), session.FromContext(ctx).ID)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("page_not_found", "page not found or expired", http.StatusNotFound))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, pageContextKey{}, p)))
	})
}

func pageFrom(ctx context.Context) *page.Page {
	p, _ := ctx.Value(pageContextKey{}).(*page.Page)
	return p
}

func (h *Handlers) getPage(w http.ResponseWriter, r *http.Request) {
	writeView(w, http.StatusOK, pageFrom(r.Context()).View(), false)
}

func (h *Handlers) closePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := pageFrom(ctx)
	if err := h.registry.Close(p.ID, p.Owner); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("page_not_found", "page not found or expired", http.StatusNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) applyFilters(w http.ResponseWriter, r *http.Request) {
	var req filtersRequest
	if !h.decode(w, r, &req) {
		return
	}
	sort, err := catalog.ParseSort(req.Sort)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	p := pageFrom(r.Context())
	p.ApplyCriteria(catalog.Criteria{SizeID: req.SizeID, ColorID: req.ColorID, Sort: sort})
	writeView(w, http.StatusOK, p.View(), false)
}

func (h *Handlers) moveCursor(w http.ResponseWriter, r *http.Request) {
	var req cursorRequest
	if !h.decode(w, r, &req) {
		return
	}
	p := pageFrom(r.Context())
	p.SetCursor(req.Page)
	writeView(w, http.StatusOK, p.View(), false)
}

func (h *Handlers) selectOption(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if !h.decode(w, r, &req) {
		return
	}
	p := pageFrom(r.Context())
	if _, err := p.Select(req.ProductID, req.SizeID, req.ColorID); err != nil {
		h.writeOperationError(r.Context(), w, p, err)
		return
	}
	writeView(w, http.StatusOK, p.View(), false)
}

func (h *Handlers) fetchCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := pageFrom(ctx)
	if err := p.Cart().FetchCart(ctx); err != nil {
		h.writeOperationError(ctx, w, p, err)
		return
	}
	writeView(w, http.StatusOK, p.View(), false)
}

func (h *Handlers) addToCart(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	p := pageFrom(ctx)
	err := p.AddSelected(ctx, cart.AddRequest{ProductID: req.ProductID, SizeID: req.SizeID, ColorID: req.ColorID, Quantity: req.Quantity})
	h.writeMutation(ctx, w, p, err)
}

func (h *Handlers) updateCart(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	p := pageFrom(ctx)
	err := p.Cart().UpdateQuantity(ctx, req.ProductID, req.Quantity, req.SizeID, req.ColorID)
	h.writeMutation(ctx, w, p, err)
}

func (h *Handlers) removeFromCart(w http.ResponseWriter, r *http.Request) {
	var req removeRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	p := pageFrom(ctx)
	err := p.Cart().RemoveFromCart(ctx, req.ProductID, req.SizeID, req.ColorID)
	h.writeMutation(ctx, w, p, err)
}

// writeMutation answers a cart mutation. Badges on other pages refresh through the
// event bus either way.
func (h *Handlers) writeMutation(ctx context.Context, w http.ResponseWriter, p *page.Page, err error) {
	if err != nil {
		h.writeOperationError(ctx, w, p, err)
		return
	}
	writeView(w, http.StatusOK, p.View(), true)
}

func (h *Handlers) dismissNotification(w http.ResponseWriter, r *http.Request) {
	p := pageFrom(r.Context())
	if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
		p.Notifications().DismissID(id)
	} else {
		p.Notifications().Dismiss()
	}
	writeView(w, http.StatusOK, p.View(), false)
}
