// Package checkout turns the authoritative cart into an order and drives the payment widget.
package checkout

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/cart"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/events"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/identity"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/notify"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/session"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/storeapi"
)

const (
	MsgEmptyCart       = "Your cart is empty"
	MsgOrderFailed     = "Failed to create order"
	MsgWidgetFailed    = "Unable to start payment"
	MsgPaymentSuccess  = "Payment successful"
	MsgPaymentFailed   = "Payment verification failed"
	MsgPaymentCanceled = "Payment cancelled"
)

var (
	// ErrEmptyCart is returned by Begin when the cart has no items.
	ErrEmptyCart = errors.New("checkout: cart is empty")
	// ErrUnknownOrder is returned when completing an order this session did not begin.
	ErrUnknownOrder = errors.New("checkout: unknown order")
)

// Backend is the commerce API subset used for checkout.
type Backend interface {
	GetCart(ctx context.Context, token string) (storeapi.Cart, error)
	CreateOrder(ctx context.Context, token string) (storeapi.Order, error)
}

// CartFetcher re-fetches the page cart after payment.
type CartFetcher interface {
	FetchCart(ctx context.Context) error
}

// Target is where checkout outcomes are reported: the page's notification channel
// and, optionally, its cart synchronizer.
type Target struct {
	Notifier   cart.Notifier
	Cart       CartFetcher
	ReturnPath string
}

// WidgetSession is returned to the browser to mount the payment widget.
type WidgetSession struct {
	OrderID        string          `json:"order_id"`
	Amount         decimal.Decimal `json:"amount"`
	AmountDisplay  string          `json:"amount_display"`
	Currency       string          `json:"currency"`
	PaymentID      string          `json:"payment_id"`
	ClientSecret   string          `json:"client_secret"`
	PublishableKey string          `json:"publishable_key"`
}

// Deps wires a Service.
type Deps struct {
	Backend   Backend
	Widget    Widget
	Identity  identity.Provider
	Bus       events.Bus
	Currency  string
	LoginPath string
	Logger    *zap.Logger
	Clock     func() time.Time
}

// Service coordinates order creation and payment for all pages.
type Service struct {
	backend   Backend
	widget    Widget
	identity  identity.Provider
	bus       events.Bus
	currency  string
	loginPath string
	logger    *zap.Logger
	now       func() time.Time
}

// NewService builds a Service.
func NewService(deps Deps) (*Service, error) {
	if deps.Backend == nil || deps.Widget == nil || deps.Identity == nil {
		return nil, errors.New("checkout: backend, widget and identity are required")
	}
	s := &Service{
		backend:   deps.Backend,
		widget:    deps.Widget,
		identity:  deps.Identity,
		bus:       deps.Bus,
		currency:  strings.ToUpper(strings.TrimSpace(deps.Currency)),
		loginPath: deps.LoginPath,
		logger:    deps.Logger,
		now:       deps.Clock,
	}
	if s.currency == "" {
		s.currency = "INR"
	}
	if s.bus == nil {
		s.bus = events.NewLocalBus()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Begin creates an order from the authoritative cart and opens the payment widget
// for the server total.
func (s *Service) Begin(ctx context.Context, t Target) (WidgetSession, error) {
	t = s.normalize(t)
	token, err := s.identity.IDToken(ctx)
	if err != nil {
		return WidgetSession{}, &cart.AuthRequiredError{LoginURL: identity.LoginURL(s.loginPath, t.ReturnPath)}
	}
	user, _ := s.identity.CurrentUser(ctx)

	current, err := s.backend.GetCart(ctx, token)
	if err != nil {
		return WidgetSession{}, s.fail(t, err, cart.MsgLoadFailed)
	}
	if len(current.Items) == 0 {
		t.Notifier.Error(MsgEmptyCart)
		return WidgetSession{}, ErrEmptyCart
	}

	order, err := s.backend.CreateOrder(ctx, token)
	if err != nil {
		return WidgetSession{}, s.fail(t, err, MsgOrderFailed)
	}
	amount := current.Total
	if order.Amount != nil {
		amount = *order.Amount
	}

	req := OpenRequest{OrderID: order.OrderID, Amount: amount, Currency: s.currency}
	if user != nil {
		req.Email = user.Email
	}
	handle, err := s.widget.Open(ctx, req)
	if err != nil {
		s.logger.Error("open payment widget", zap.String("order_id", order.OrderID), zap.Error(err))
		t.Notifier.Error(MsgWidgetFailed)
		return WidgetSession{}, err
	}

	s.track(ctx, order.OrderID)
	return WidgetSession{
		OrderID:        order.OrderID,
		Amount:         amount,
		AmountDisplay:  cart.FormatINR(amount),
		Currency:       s.currency,
		PaymentID:      handle.PaymentID,
		ClientSecret:   handle.ClientSecret,
		PublishableKey: handle.PublishableKey,
	}, nil
}

// Complete handles the widget's success callback.
func (s *Service) Complete(ctx context.Context, t Target, orderID, paymentID string) error {
	t = s.normalize(t)
	orderID, paymentID = strings.TrimSpace(orderID), strings.TrimSpace(paymentID)
	user, ok := s.identity.CurrentUser(ctx)
	if !ok {
		return &cart.AuthRequiredError{LoginURL: identity.LoginURL(s.loginPath, t.ReturnPath)}
	}
	if !s.owns(ctx, orderID) {
		t.Notifier.Error(MsgPaymentFailed)
		return ErrUnknownOrder
	}
	if err := s.widget.Verify(ctx, orderID, paymentID); err != nil {
		s.logger.Warn("payment verification failed", zap.String("order_id", orderID), zap.Error(err))
		t.Notifier.Error(MsgPaymentFailed)
		return err
	}

	s.forget(ctx)
	t.Notifier.Success(MsgPaymentSuccess)
	if err := s.bus.Publish(ctx, events.Event{Topic: events.UserTopic(user.UID), Kind: events.KindCartChanged, At: s.now().UTC()}); err != nil {
		s.logger.Warn("publish cart change", zap.Error(err))
	}
	if t.Cart != nil {
		if err := t.Cart.FetchCart(ctx); err != nil {
			s.logger.Debug("refresh cart after payment", zap.Error(err))
		}
	}
	return nil
}

// Dismiss handles the widget's cancel callback. The order stays pending.
func (s *Service) Dismiss(t Target, orderID string) {
	t = s.normalize(t)
	s.logger.Info("payment dismissed", zap.String("order_id", strings.TrimSpace(orderID)))
	t.Notifier.Error(MsgPaymentCanceled)
}

func (s *Service) fail(t Target, err error, fallback string) error {
	if storeapi.IsStatus(err, http.StatusUnauthorized) {
		return &cart.AuthRequiredError{LoginURL: identity.LoginURL(s.loginPath, t.ReturnPath)}
	}
	t.Notifier.Error(notify.Message(storeapi.ServerMessage(err), fallback))
	return err
}

func (s *Service) normalize(t Target) Target {
	if t.Notifier == nil {
		t.Notifier = notify.NewChannel()
	}
	if t.ReturnPath == "" {
		t.ReturnPath = "/cart"
	}
	return t
}

// The pending order lives in the session cookie so any replica can complete it.
func (s *Service) track(ctx context.Context, orderID string) {
	sess := session.FromContext(ctx)
	sess.PendingOrder = orderID
	sess.MarkDirty()
}

func (s *Service) owns(ctx context.Context, orderID string) bool {
	return orderID != "" && session.FromContext(ctx).PendingOrder == orderID
}

func (s *Service) forget(ctx context.Context) {
	sess := session.FromContext(ctx)
	sess.PendingOrder = ""
	sess.MarkDirty()
}
