package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the Prometheus scrape endpoint. If token is non-empty,
// requests must carry Authorization: Bearer <token>.
func Handler(token string) http.Handler {
	promHandler := promhttp.Handler()
	if token == "" {
		return promHandler
	}
	const prefix = "Bearer "
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := r.Header.Get("Authorization")
		if len(hdr) <= len(prefix) || hdr[:len(prefix)] != prefix || hdr[len(prefix):] != token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		promHandler.ServeHTTP(w, r)
	})
}
