// Package storeapi is the REST client for the commerce backend.
package storeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/platform/requestctx"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 4 << 20
	tracerName       = "storefront/internal/storeapi"
	meterName        = "storefront/internal/storeapi"
)

// ErrNotConfigured is returned when the client has no base URL.
var ErrNotConfigured = errors.New("storeapi: backend base url not configured")

// APIError is a non-2xx backend response. Message is the backend's {message} when present.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("storeapi: status %d", e.Status)
	}
	return fmt.Sprintf("storeapi: status %d: %s", e.Status, e.Message)
}

// ServerMessage returns the backend message carried by err, if any.
func ServerMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient HTTPDoer
	Logger     *zap.Logger
	Tracer     trace.Tracer
	Meter      metric.Meter
}

// Client calls the commerce backend on behalf of the browser user.
type Client struct {
	baseURL string
	http    HTTPDoer
	logger  *zap.Logger
	tracer  trace.Tracer
	latency metric.Float64Histogram
}

// New builds a Client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, ErrNotConfigured
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("storeapi: invalid base url: %w", err)
	}
	doer := opts.HTTPClient
	if doer == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		doer = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	meter := opts.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	latency, err := meter.Float64Histogram(
		"storeapi.request.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds of commerce backend calls"),
	)
	if err != nil {
		logger.Warn("storeapi: unable to register latency metric", zap.Error(err))
	}
	return &Client{baseURL: base, http: doer, logger: logger.Named("storeapi"), tracer: tracer, latency: latency}, nil
}

type call struct {
	method string
	route  string
	path   string
	query  url.Values
	token  string
	body   any

	// optionalBody treats an undecodable 2xx body as empty.
	optionalBody bool
}

// do performs the request and decodes a 2xx body into out (when non-nil).
func (c *Client) do(ctx context.Context, cl call, out any) error {
	ctx, span := c.tracer.Start(ctx, "storeapi "+cl.method+" "+cl.route, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", cl.method),
		attribute.String("http.route", cl.route),
		attribute.Bool("storeapi.authenticated", cl.token != ""),
	)

	started := time.Now()
	err := c.roundTrip(ctx, span, cl, out)
	c.record(ctx, cl, started, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		requestctx.Logger(ctx).Debug("backend call failed",
			zap.String("method", cl.method),
			zap.String("route", cl.route),
			zap.Error(err),
		)
	}
	return err
}

func (c *Client) record(ctx context.Context, cl call, started time.Time, err error) {
	if c.latency == nil {
		return
	}
	outcome := "ok"
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		outcome = fmt.Sprintf("http_%d", apiErr.Status)
	case err != nil:
		outcome = "transport_error"
	}
	c.latency.Record(ctx, float64(time.Since(started).Microseconds())/1000,
		metric.WithAttributes(
			attribute.String("http.route", cl.route),
			attribute.String("outcome", outcome),
		))
}

func (c *Client) roundTrip(ctx context.Context, span trace.Span, cl call, out any) error {
	endpoint := c.baseURL + cl.path
	if len(cl.query) > 0 {
		endpoint += "?" + cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		payload, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("storeapi: encode %s: %w", cl.route, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, endpoint, body)
	if err != nil {
		return fmt.Errorf("storeapi: build %s: %w", cl.route, err)
	}
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.token != "" {
		req.Header.Set("Authorization", "Bearer "+cl.token)
	}
	if id := middleware.GetReqID(ctx); id != "" {
		req.Header.Set(middleware.RequestIDHeader, id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("storeapi: %s %s: %w", cl.method, cl.route, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("storeapi: read %s: %w", cl.route, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		if cl.optionalBody {
			requestctx.Logger(ctx).Debug("backend reply body ignored", zap.String("route", cl.route), zap.Error(err))
			return nil
		}
		return fmt.Errorf("storeapi: decode %s: %w", cl.route, err)
	}
	return nil
}

func errorMessage(data []byte) string {
	var envelope struct {
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(envelope.Message); msg != "" {
		return msg
	}
	for _, raw := range []json.RawMessage{envelope.Detail, envelope.Error} {
		var s string
		if len(raw) > 0 && json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
