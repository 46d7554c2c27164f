package ws

import "net/http"

// TokenHeader carries the bridge token. Browsers cannot set headers on a
// WebSocket handshake, so the token query parameter is accepted as well.
const (
	TokenHeader = "X-Mediasync-Token"
	TokenQuery  = "token"
)

// RequireToken rejects handshakes that do not carry token.
// An empty token disables the check.
func RequireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(TokenHeader)
			if got == "" {
				got = r.URL.Query().Get(TokenQuery)
			}
			if got != token {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
