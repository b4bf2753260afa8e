package identity

import (
	"net/http"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/platform/httpx"
)

// RequireUser rejects anonymous requests with 401 and a login redirect carrying the
// originating path. Authenticated requests see the user via UserFromContext.
func RequireUser(p Provider, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := p.CurrentUser(r.Context())
			if !ok {
				target := LoginURL(loginPath, ReturnPath(r))
				httpx.WriteError(r.Context(), w,
					httpx.NewError("auth_required", "Please sign in to continue", http.StatusUnauthorized).WithRedirect(target))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}
