// Package identity adapts the external identity provider: it verifies ID tokens,
// keeps the credential in the session and gates protected routes.
package identity

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/session"
)

// ErrNoCredential is returned when no unexpired bearer credential is available.
var ErrNoCredential = errors.New("identity: no credential")

// User is the signed-in customer.
type User struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Provider exposes the current user and their bearer credential.
type Provider interface {
	CurrentUser(ctx context.Context) (*User, bool)
	IDToken(ctx context.Context) (string, error)
}

// SessionProvider reads the user and credential from the request session.
type SessionProvider struct {
	now func() time.Time
}

// NewSessionProvider returns a Provider backed by session cookies.
func NewSessionProvider() *SessionProvider {
	return &SessionProvider{now: time.Now}
}

// CurrentUser returns the signed-in user while their credential is valid.
func (p *SessionProvider) CurrentUser(ctx context.Context) (*User, bool) {
	d := session.FromContext(ctx)
	if d.UserID == "" || !p.valid(d) {
		return nil, false
	}
	return &User{UID: d.UserID, Email: d.Email, Name: d.Name}, true
}

// IDToken returns the bearer credential for backend calls.
func (p *SessionProvider) IDToken(ctx context.Context) (string, error) {
	d := session.FromContext(ctx)
	if d.IDToken == "" || !p.valid(d) {
		return "", ErrNoCredential
	}
	return d.IDToken, nil
}

func (p *SessionProvider) valid(d *session.Data) bool {
	return d.TokenExpiry.IsZero() || p.now().Before(d.TokenExpiry)
}

// LoginURL builds the login redirect carrying the originating path. Anything but a
// same-origin relative path is dropped.
func LoginURL(loginPath, returnPath string) string {
	if loginPath == "" {
		loginPath = "/login"
	}
	returnPath = SafeReturnPath(returnPath)
	if returnPath == "" {
		return loginPath
	}
	return loginPath + "?redirect=" + url.QueryEscape(returnPath)
}

// SafeReturnPath returns path when it is a same-origin relative path, else "".
func SafeReturnPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") || strings.Contains(path, "\\") {
		return ""
	}
	u, err := url.Parse(path)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return path
}

// ReturnPath picks the originating page for a request: the X-Return-Path header set
// by the frontend, then the Referer path, then the request path. JSON endpoints under
// /api/ are never pages to come back to, so they fall back to "/".
func ReturnPath(r *http.Request) string {
	if p := pagePath(r.Header.Get("X-Return-Path")); p != "" {
		return p
	}
	if ref := r.Header.Get("Referer"); ref != "" {
		if u, err := url.Parse(ref); err == nil && (u.Host == "" || u.Host == r.Host) {
			p := u.EscapedPath()
			if u.RawQuery != "" {
				p += "?" + u.RawQuery
			}
			if safe := pagePath(p); safe != "" {
				return safe
			}
		}
	}
	if p := pagePath(r.URL.RequestURI()); p != "" {
		return p
	}
	return "/"
}

func pagePath(raw string) string {
	p := SafeReturnPath(raw)
	if p == "/api" || strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/api?") {
		return ""
	}
	return p
}

type userContextKey struct{}

// WithUser stores the user on ctx.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// UserFromContext returns the user stored by RequireUser.
func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userContextKey{}).(*User)
	return u, ok && u != nil
}
