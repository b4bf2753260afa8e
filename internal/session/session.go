// Package session keeps the browser session in an HMAC-signed cookie.
package session

import (
	"bufio"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/platform/requestctx"
)

// CookieName is the session cookie.
const CookieName = "STOREFRONT_SESSION"

type contextKey string

const dataContextKey contextKey = "storefront/session/data"

// Data is the signed cookie payload. IDToken is the identity provider credential
// forwarded to the commerce backend while unexpired.
type Data struct {
	ID          string    `json:"id"`
	UserID      string    `json:"uid,omitempty"`
	Email       string    `json:"email,omitempty"`
	Name        string    `json:"name,omitempty"`
	IDToken     string    `json:"tok,omitempty"`
	TokenExpiry time.Time `json:"exp,omitempty"`
	// PendingOrder is the order whose payment widget is open.
	PendingOrder string    `json:"order,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	dirty bool
}

// MarkDirty flags the session for writing at the end of the request.
func (d *Data) MarkDirty() {
	d.dirty = true
	d.UpdatedAt = time.Now().UTC()
}

// RegenerateID assigns a new id to prevent fixation after sign-in.
func (d *Data) RegenerateID() {
	d.ID = randID()
	d.MarkDirty()
}

// SignIn records the verified user and credential.
func (d *Data) SignIn(uid, email, name, token string, expiry time.Time) {
	d.UserID = uid
	d.Email = email
	d.Name = name
	d.IDToken = token
	d.TokenExpiry = expiry.UTC()
	d.RegenerateID()
}

// SignOut clears the user and credential.
func (d *Data) SignOut() {
	d.UserID = ""
	d.Email = ""
	d.Name = ""
	d.IDToken = ""
	d.TokenExpiry = time.Time{}
	d.PendingOrder = ""
	d.RegenerateID()
}

// Manager signs and verifies session cookies.
type Manager struct {
	key    []byte
	secure bool
	ttl    time.Duration
	now    func() time.Time
}

// NewManager builds a Manager. An empty key generates an ephemeral one, which only
// suits local development since sessions do not survive restarts.
func NewManager(signingKey string, secure bool, ttl time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	key := []byte(signingKey)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			key = []byte("insecure-dev-key-set-STOREFRONT_SESSION_SIGNING_KEY")
		}
		logger.Warn("session: using ephemeral signing key; set STOREFRONT_SESSION_SIGNING_KEY")
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Manager{key: key, secure: secure, ttl: ttl, now: time.Now}
}

// Middleware loads or creates the session and writes the cookie before the first byte
// of the response when the session changed.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, fromCookie := m.read(r)
		if data.ID == "" {
			now := m.now().UTC()
			data = &Data{ID: randID(), CreatedAt: now, UpdatedAt: now, dirty: true}
		}

		ctx := context.WithValue(r.Context(), dataContextKey, data)
		ctx = requestctx.WithSessionID(ctx, data.ID)

		rw := &cookieWriter{ResponseWriter: w, before: func(w http.ResponseWriter) {
			if data.dirty || !fromCookie {
				m.write(w, data)
			}
		}}
		next.ServeHTTP(rw, r.WithContext(ctx))
		if !rw.wrote {
			rw.flushCookie()
		}
	})
}

// FromContext returns the request session. Outside the middleware it returns an
// empty, unsaved session.
func FromContext(ctx context.Context) *Data {
	if ctx != nil {
		if d, ok := ctx.Value(dataContextKey).(*Data); ok && d != nil {
			return d
		}
	}
	return &Data{}
}

// WithData attaches d to ctx, for callers outside the HTTP middleware and tests.
func WithData(ctx context.Context, d *Data) context.Context {
	ctx = context.WithValue(ctx, dataContextKey, d)
	return requestctx.WithSessionID(ctx, d.ID)
}

// Encode signs d into a cookie value.
func (m *Manager) Encode(d *Data) (string, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, m.key)
	mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

var errInvalidCookie = errors.New("session: invalid cookie")

// Decode verifies and decodes a cookie value.
func (m *Manager) Decode(value string) (*Data, error) {
	payloadPart, sigPart, ok := strings.Cut(value, ".")
	if !ok {
		return nil, errInvalidCookie
	}
	payload, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return nil, errInvalidCookie
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return nil, errInvalidCookie
	}
	mac := hmac.New(sha256.New, m.key)
	mac.Write(payload)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil, errInvalidCookie
	}
	var d Data
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, errInvalidCookie
	}
	return &d, nil
}

func (m *Manager) read(r *http.Request) (*Data, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return &Data{}, false
	}
	d, err := m.Decode(c.Value)
	if err != nil {
		return &Data{}, false
	}
	return d, true
}

func (m *Manager) write(w http.ResponseWriter, d *Data) {
	value, err := m.Encode(d)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  m.now().Add(m.ttl),
	})
}

type cookieWriter struct {
	http.ResponseWriter
	before func(http.ResponseWriter)
	wrote  bool
}

func (w *cookieWriter) flushCookie() {
	if w.wrote {
		return
	}
	w.wrote = true
	w.before(w.ResponseWriter)
}

func (w *cookieWriter) WriteHeader(status int) {
	w.flushCookie()
	w.ResponseWriter.WriteHeader(status)
}

func (w *cookieWriter) Write(b []byte) (int, error) {
	w.flushCookie()
	return w.ResponseWriter.Write(b)
}

func (w *cookieWriter) Flush() {
	w.flushCookie()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *cookieWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *cookieWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func randID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
