package middleware

import (
	"net/http"
	"slices"

	"github.com/gorilla/handlers"

	apperrors "github.com/reelfetch/reelfetch/internal/errors"
)

// CORS allows browser frontends served from allowedOrigins to call the API.
// "*" allows any origin.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	opts := []handlers.CORSOption{
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", apperrors.RequestIDHeader}),
		handlers.ExposedHeaders([]string{apperrors.RequestIDHeader, "Content-Disposition"}),
	}
	if slices.Contains(allowedOrigins, "*") {
		opts = append(opts, handlers.AllowedOrigins([]string{"*"}))
	} else {
		opts = append(opts, handlers.AllowedOrigins(allowedOrigins))
	}
	return handlers.CORS(opts...)
}
