package transport

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORSConfig configures CORS behavior for the HTTP transport.
type CORSConfig struct {
	// AllowOrigins lists allowed origins; "*" allows any.
	AllowOrigins []string

	// AllowMethods defaults to GET, POST, OPTIONS.
	AllowMethods []string

	// AllowHeaders defaults to the headers SSE clients send.
	AllowHeaders []string

	// ExposeHeaders is a list of headers the browser is allowed to access.
	ExposeHeaders []string

	// AllowCredentials indicates whether credentials are allowed.
	AllowCredentials bool

	// MaxAge is how long preflight results may be cached, in seconds.
	MaxAge int
}

// DefaultCORSConfig returns a permissive configuration for local clients.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Cache-Control", "Last-Event-ID", "X-Request-ID"},
		MaxAge:       86400,
	}
}

func (c CORSConfig) withDefaults() CORSConfig {
	def := DefaultCORSConfig()
	if len(c.AllowMethods) == 0 {
		c.AllowMethods = def.AllowMethods
	}
	if len(c.AllowHeaders) == 0 {
		c.AllowHeaders = def.AllowHeaders
	}
	if c.MaxAge == 0 {
		c.MaxAge = def.MaxAge
	}
	return c
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin,
// or "" when it is not allowed.
func (c CORSConfig) allowOrigin(origin string) string {
	if slices.Contains(c.AllowOrigins, "*") {
		return "*"
	}
	if origin != "" && slices.Contains(c.AllowOrigins, origin) {
		return origin
	}
	return ""
}

// CORSHandler wraps an http.Handler with CORS support.
func CORSHandler(config CORSConfig, next http.Handler) http.Handler {
	config = config.withDefaults()
	methods := strings.Join(config.AllowMethods, ", ")
	headers := strings.Join(config.AllowHeaders, ", ")
	expose := strings.Join(config.ExposeHeaders, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allow := config.allowOrigin(r.Header.Get("Origin"))
		if allow == "" {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", allow)
		if allow != "*" {
			w.Header().Add("Vary", "Origin")
		}
		if config.AllowCredentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", headers)
			w.Header().Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if expose != "" {
			w.Header().Set("Access-Control-Expose-Headers", expose)
		}
		next.ServeHTTP(w, r)
	})
}

// WithCORS configures CORS for the HTTP transport.
func WithCORS(config CORSConfig) HTTPOption {
	return func(h *HTTP) {
		h.corsConfig = &config
	}
}

// WithDefaultCORS enables CORS with default permissive settings.
func WithDefaultCORS() HTTPOption {
	return WithCORS(DefaultCORSConfig())
}
