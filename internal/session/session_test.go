package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/platform/requestctx"
)

func TestMiddlewareIssuesAndReadsCookie(t *testing.T) {
	m := NewManager("test-key", false, time.Hour, nil)

	var firstID string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := FromContext(r.Context())
		require.NotEmpty(t, d.ID)
		assert.Equal(t, d.ID, requestctx.SessionID(r.Context()))
		if firstID == "" {
			firstID = d.ID
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	var secondID string
	m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondID = FromContext(r.Context()).ID
	})).ServeHTTP(rec, req)

	assert.Equal(t, firstID, secondID)
	assert.Empty(t, rec.Result().Cookies(), "unchanged session is not rewritten")
}

func TestTamperedCookieStartsFreshSession(t *testing.T) {
	m := NewManager("test-key", false, time.Hour, nil)
	value, err := m.Encode(&Data{ID: "abc", UserID: "u1"})
	require.NoError(t, err)

	other := NewManager("other-key", false, time.Hour, nil)
	_, err = other.Decode(value)
	assert.Error(t, err)

	d, err := m.Decode(value)
	require.NoError(t, err)
	assert.Equal(t, "u1", d.UserID)
}

func TestSignInRegeneratesID(t *testing.T) {
	d := &Data{ID: "before"}
	d.SignIn("u1", "a@example.com", "A", "tok", time.Now().Add(time.Hour))
	assert.NotEqual(t, "before", d.ID)
	assert.Equal(t, "tok", d.IDToken)
	assert.True(t, d.dirty)

	d.SignOut()
	assert.Empty(t, d.UserID)
	assert.Empty(t, d.IDToken)
}

func TestMiddlewareWritesCookieWhenHandlerWritesNothing(t *testing.T) {
	m := NewManager("k", true, time.Hour, nil)
	rec := httptest.NewRecorder()
	m.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/", nil))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].Secure)
}
