package middleware

import (
	"crypto/subtle"
	"net/http"
)

// APIKey enforces a static shared-secret key on the voice agent's webhook
// surface, read from the X-Api-Key header. Constant-time compare so a
// timing side channel can't leak the key byte by byte.
func APIKey(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected == "" {
				http.Error(w, "webhook auth disabled", http.StatusUnauthorized)
				return
			}
			got := r.Header.Get("X-Api-Key")
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
				http.Error(w, "invalid api key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
