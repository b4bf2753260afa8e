package web

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/platform/httpx"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/platform/requestctx"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/storeapi"
)

const minSuggestionQuery = 2

func (h *Handlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}
	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		requestctx.Logger(ctx).Warn("list categories", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("upstream_failed", "Failed to load categories", http.StatusBadGateway))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

// searchSuggestions answers search-as-you-type. Short queries return nothing without
// calling the backend.
func (h *Handlers) searchSuggestions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}
	q := normalizeQuery(r.URL.Query().Get("q"))
	if len([]rune(q)) < minSuggestionQuery {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"suggestions": []storeapi.Suggestion{}})
		return
	}
	suggestions, err := h.catalog.SearchSuggestions(ctx, q)
	if err != nil {
		requestctx.Logger(ctx).Warn("search suggestions", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("upstream_failed", "Failed to load suggestions", http.StatusBadGateway))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

// normalizeQuery folds full-width and compatibility forms so typed queries match
// what the backend indexes.
func normalizeQuery(q string) string {
	return strings.TrimSpace(norm.NFKC.String(q))
}
