package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/cart"
)

var (
	// ErrPaymentMismatch is returned when a payment does not belong to the order.
	ErrPaymentMismatch = errors.New("checkout: payment does not match order")
	// ErrPaymentIncomplete is returned when the payment has not succeeded.
	ErrPaymentIncomplete = errors.New("checkout: payment not completed")
)

// OpenRequest describes the payment widget to open for an order.
type OpenRequest struct {
	OrderID  string
	Amount   decimal.Decimal
	Currency string
	Email    string
}

// Handle is what the browser needs to mount the widget.
type Handle struct {
	PaymentID      string
	ClientSecret   string
	PublishableKey string
}

// Widget opens the hosted payment widget and checks the outcome it reports.
type Widget interface {
	Open(ctx context.Context, req OpenRequest) (Handle, error)
	Verify(ctx context.Context, orderID, paymentID string) error
}

type paymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeWidget backs the widget with Stripe PaymentIntents. Capture happens outside
// this service.
type StripeWidget struct {
	intents        paymentIntentAPI
	publishableKey string
}

// NewStripeWidget builds a StripeWidget from API keys.
func NewStripeWidget(secretKey, publishableKey string) (*StripeWidget, error) {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return nil, errors.New("stripe: secret key is required")
	}
	sc := client.New(secretKey, nil)
	return &StripeWidget{intents: sc.PaymentIntents, publishableKey: strings.TrimSpace(publishableKey)}, nil
}

// Open creates a PaymentIntent for the order amount in minor units.
func (w *StripeWidget) Open(ctx context.Context, req OpenRequest) (Handle, error) {
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "inr"
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(cart.Paise(req.Amount)),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("order-" + req.OrderID)
	params.AddMetadata("order_id", req.OrderID)
	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
	}

	intent, err := w.intents.New(params)
	if err != nil {
		return Handle{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	return Handle{PaymentID: intent.ID, ClientSecret: intent.ClientSecret, PublishableKey: w.publishableKey}, nil
}

// Verify checks that paymentID is an intent for orderID that succeeded or awaits capture.
func (w *StripeWidget) Verify(ctx context.Context, orderID, paymentID string) error {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := w.intents.Get(paymentID, params)
	if err != nil {
		return fmt.Errorf("stripe: get payment intent: %w", err)
	}
	if intent.Metadata["order_id"] != orderID {
		return ErrPaymentMismatch
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusRequiresCapture:
		return nil
	default:
		return fmt.Errorf("%w: status %s", ErrPaymentIncomplete, intent.Status)
	}
}

// LocalWidget stands in for the payment provider in local development. Any payment id
// it issued for the order verifies.
type LocalWidget struct{}

// Open returns a fake handle tied to the order.
func (LocalWidget) Open(_ context.Context, req OpenRequest) (Handle, error) {
	id := "local_" + req.OrderID + "_" + strings.ToLower(ulid.Make().String())
	return Handle{PaymentID: id, ClientSecret: id + "_secret", PublishableKey: "pk_test_local"}, nil
}

// Verify accepts ids produced by Open for the same order.
func (LocalWidget) Verify(_ context.Context, orderID, paymentID string) error {
	if !strings.HasPrefix(paymentID, "local_"+orderID+"_") {
		return ErrPaymentMismatch
	}
	return nil
}
