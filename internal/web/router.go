// Package web exposes the storefront pages over JSON and server-sent events.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/checkout"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/events"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/identity"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/page"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/platform/httpx"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/platform/observability"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/session"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/storeapi"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultHeartbeat = 25 * time.Second
	maxBodySize      = 16 * 1024
)

// CatalogAPI serves the catalog lookups that do not mount a page.
type CatalogAPI interface {
	ListCategories(ctx context.Context) ([]storeapi.Category, error)
	SearchSuggestions(ctx context.Context, q string) ([]storeapi.Suggestion, error)
}

// CartAPI reads the authoritative cart for the header badge.
type CartAPI interface {
	GetCart(ctx context.Context, token string) (storeapi.Cart, error)
}

// Authenticator signs sessions in and out.
type Authenticator interface {
	Login(ctx context.Context, idToken string) (*identity.User, error)
	Logout(ctx context.Context)
}

// Checkout drives order creation and the payment widget.
type Checkout interface {
	Begin(ctx context.Context, t checkout.Target) (checkout.WidgetSession, error)
	Complete(ctx context.Context, t checkout.Target, orderID, paymentID string) error
	Dismiss(t checkout.Target, orderID string)
}

// Deps wires the HTTP surface.
type Deps struct {
	Loader    *page.Loader
	Registry  *page.Registry
	Catalog   CatalogAPI
	Carts     CartAPI
	Identity  identity.Provider
	Auth      Authenticator
	Checkout  Checkout
	Bus       events.Bus
	Sessions  *session.Manager
	LoginPath string
	// TraceProject labels server spans for log correlation.
	TraceProject string
	// Heartbeat is the SSE keep-alive interval.
	Heartbeat time.Duration
	Timeout   time.Duration
	Logger    *zap.Logger
}

// Handlers implements the storefront endpoints.
type Handlers struct {
	loader    *page.Loader
	registry  *page.Registry
	catalog   CatalogAPI
	carts     CartAPI
	identity  identity.Provider
	auth      Authenticator
	checkout  Checkout
	bus       events.Bus
	loginPath string
	heartbeat time.Duration
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewHandlers validates deps.
func NewHandlers(deps Deps) (*Handlers, error) {
	if deps.Loader == nil || deps.Registry == nil || deps.Identity == nil {
		return nil, errors.New("web: loader, registry and identity are required")
	}
	h := &Handlers{
		loader:    deps.Loader,
		registry:  deps.Registry,
		catalog:   deps.Catalog,
		carts:     deps.Carts,
		identity:  deps.Identity,
		auth:      deps.Auth,
		checkout:  deps.Checkout,
		bus:       deps.Bus,
		loginPath: deps.LoginPath,
		heartbeat: deps.Heartbeat,
		validate:  newValidator(),
		logger:    deps.Logger,
	}
	if h.bus == nil {
		h.bus = events.NewLocalBus()
	}
	if h.heartbeat <= 0 {
		h.heartbeat = defaultHeartbeat
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h, nil
}

// NewRouter mounts every storefront route behind the shared middleware stack.
func NewRouter(deps Deps) (chi.Router, error) {
	h, err := NewHandlers(deps)
	if err != nil {
		return nil, err
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TraceMiddleware(deps.TraceProject))
	r.Use(observability.InjectLoggerMiddleware(h.logger))
	if deps.Sessions != nil {
		r.Use(deps.Sessions.Middleware)
	}
	r.Use(observability.RequestLoggerMiddleware())
	r.Use(observability.RecoveryMiddleware())

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", health)

	requireUser := identity.RequireUser(h.identity, h.loginPath)

	// Streams outlive the request timeout.
	r.Get("/api/cart/events", h.cartEvents)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))

		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Post("/login", h.login)
			r.Post("/logout", h.logout)
		})

		r.Route("/api", func(r chi.Router) {
			r.Get("/categories", h.listCategories)
			r.Get("/search/suggestions", h.searchSuggestions)
			r.Post("/listings/{listing}", h.openListing)
			r.Post("/products/{productID}", h.openProduct)

			r.Route("/pages/{pageID}", func(r chi.Router) {
				r.Use(h.pageContext)
				r.Get("/", h.getPage)
				r.Delete("/", h.closePage)
				r.Post("/filters", h.applyFilters)
				r.Post("/cursor", h.moveCursor)
				r.Post("/selection", h.selectOption)
				r.Get("/cart", h.fetchCart)
				r.Post("/cart/add", h.addToCart)
				r.Post("/cart/update", h.updateCart)
				r.Post("/cart/remove", h.removeFromCart)
				r.Delete("/notification", h.dismissNotification)
			})

			r.Get("/cart/count", h.cartCount)
			r.With(requireUser).Post("/cart/page", h.openCartPage)

			r.Route("/checkout", func(r chi.Router) {
				r.Use(requireUser)
				r.Post("/begin", h.beginCheckout)
				r.Post("/complete", h.completeCheckout)
				r.Post("/dismiss", h.dismissCheckout)
			})
		})
	})

	return r, nil
}

var startTime = time.Now()

func health(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(startTime).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
