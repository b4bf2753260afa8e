package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/events"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/platform/httpx"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/platform/requestctx"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/session"
)

type countResponse struct {
	Count         int  `json:"count"`
	Authenticated bool `json:"authenticated"`
}

// cartCount feeds the header badge. Anonymous visitors and backend failures read as
// an empty cart.
func (h *Handlers) cartCount(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.count(r.Context()))
}

func (h *Handlers) count(ctx context.Context) countResponse {
	if _, ok := h.identity.CurrentUser(ctx); !ok || h.carts == nil {
		return countResponse{}
	}
	token, err := h.identity.IDToken(ctx)
	if err != nil {
		return countResponse{}
	}
	c, err := h.carts.GetCart(ctx, token)
	if err != nil {
		requestctx.Logger(ctx).Debug("cart count", zap.Error(err))
		return countResponse{Authenticated: true}
	}
	return countResponse{Count: c.ItemCount, Authenticated: true}
}

// cartEvents streams the badge count: once on connect, after every cart change for
// the signed-in user, and a final auth event when the session signs in or out.
func (h *Handlers) cartEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stream, err := newEventStream(w)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("streaming_unsupported", err.Error(), http.StatusInternalServerError))
		return
	}

	sessionSub := h.bus.Subscribe(events.SessionTopic(session.FromContext(ctx).ID))
	defer sessionSub.Close()
	var userEvents <-chan events.Event
	if user, ok := h.identity.CurrentUser(ctx); ok {
		userSub := h.bus.Subscribe(events.UserTopic(user.UID))
		defer userSub.Close()
		userEvents = userSub.Events()
	}

	if err := stream.send("count", h.count(ctx)); err != nil {
		return
	}
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if err := stream.comment("ping"); err != nil {
				return
			}
		case evt, ok := <-userEvents:
			if !ok {
				return
			}
			if evt.Kind == events.KindAuthChanged {
				_ = stream.send("auth", evt)
				return
			}
			if err := stream.send("count", h.count(ctx)); err != nil {
				return
			}
		case evt, ok := <-sessionSub.Events():
			if !ok {
				return
			}
			if evt.Kind == events.KindAuthChanged {
				_ = stream.send("auth", evt)
				return
			}
		}
	}
}

// eventStream writes text/event-stream frames.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newEventStream(w http.ResponseWriter) (*eventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer cannot flush")
	}
	// Streams are long lived; lift the server write deadline where supported.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-store")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &eventStream{w: w, flusher: flusher}, nil
}

func (s *eventStream) send(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, raw); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *eventStream) comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
