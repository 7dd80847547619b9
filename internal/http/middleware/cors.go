package middleware

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/davidbz/hearth/internal/config"
)

// exposedHeaders are readable by browser clients on cross-origin responses.
var exposedHeaders = []string{
	"X-RateLimit-Limit",
	"X-RateLimit-Remaining",
	"X-RateLimit-Reset",
	"X-Gateway-Provider",
	"X-Trace-Id",
	"X-Request-Id",
}

// CORS answers preflight requests and decorates responses per cfg. A nil
// config disables it.
func CORS(cfg *config.CORSConfig) Middleware {
	if cfg == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		ExposedHeaders:   exposedHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})

	return c.Handler
}
