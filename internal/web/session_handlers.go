package web

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/identity"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/platform/httpx"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/platform/requestctx"
)

type loginRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}

type sessionResponse struct {
	Authenticated bool           `json:"authenticated"`
	User          *identity.User `json:"user,omitempty"`
}

func (h *Handlers) getSession(w http.ResponseWriter, r *http.Request) {
	user, ok := h.identity.CurrentUser(r.Context())
	httpx.WriteJSON(w, http.StatusOK, sessionResponse{Authenticated: ok, User: user})
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.auth == nil {
		httpx.WriteError(ctx, w, httpx.NewError("auth_unavailable", "sign-in is not configured", http.StatusServiceUnavailable))
		return
	}
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.auth.Login(ctx, req.IDToken)
	if err != nil {
		code, message := "invalid_token", "the sign-in token was rejected"
		if errors.Is(err, identity.ErrTokenExpired) {
			code, message = "token_expired", "the sign-in token has expired"
		}
		requestctx.Logger(ctx).Info("login rejected", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError(code, message, http.StatusUnauthorized))
		return
	}
	setTrigger(w, authChangedTrigger, map[string]bool{"authenticated": true})
	httpx.WriteJSON(w, http.StatusOK, sessionResponse{Authenticated: true, User: user})
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	if h.auth != nil {
		h.auth.Logout(r.Context())
	}
	setTrigger(w, authChangedTrigger, map[string]bool{"authenticated": false})
	httpx.WriteJSON(w, http.StatusOK, sessionResponse{Authenticated: false})
}
