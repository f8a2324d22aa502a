package middleware

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"
)

const corsMaxAgeSeconds = 300

// CORS applies the configured allowed origins. A "*" entry opens the API to
// any origin and turns credentials off, which browsers require.
func CORS(origins []string) func(http.Handler) http.Handler {
	wildcard := slices.Contains(origins, "*")
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			idempotencyHeader,
			ActorIDHeader,
			ActorRoleHeader,
			requestIDHeader,
		},
		ExposedHeaders:   []string{requestIDHeader, replayedHeader, "Retry-After"},
		AllowCredentials: !wildcard,
		MaxAge:           corsMaxAgeSeconds,
	}).Handler
}
