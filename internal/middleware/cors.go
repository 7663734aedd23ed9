package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/cors"
)

// CORS allows the dashboard page at origin (or any origin when nil) to call the API.
// Credentials are only allowed for a fixed origin.
func CORS(origin *url.URL) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}
	if origin != nil {
		opts.AllowedOrigins = []string{strings.TrimSuffix(origin.String(), "/")}
		opts.AllowCredentials = true
	}
	return cors.Handler(opts)
}
