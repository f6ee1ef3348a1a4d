package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows any origin: notification widgets are embedded on customer
// storefronts whose domains are not known in advance. No credentials cross
// this surface, so the wildcard is safe.
func CORS() func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Last-Event-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}).Handler
}
