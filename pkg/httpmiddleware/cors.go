package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	// AllowOrigins lists origins permitted to make cross-origin requests.
	// Empty, or the single entry "*", allows every origin.
	AllowOrigins []string

	// AllowMethods lists the HTTP methods permitted in actual requests.
	// Empty defaults to "GET, POST, PUT, DELETE, OPTIONS".
	AllowMethods []string

	// AllowHeaders lists the request headers clients may send. When empty,
	// preflight responses echo the Access-Control-Request-Headers value.
	AllowHeaders []string

	// ExposeHeaders lists response headers scripts may read.
	ExposeHeaders []string

	// AllowCredentials permits cookies and auth headers on cross-origin
	// requests. The wildcard origin is invalid with credentials, so enabling
	// this forces per-origin echo even when AllowOrigins is "*".
	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds. Zero omits the
	// header; negative sends "0" to disable caching.
	MaxAge int
}

// corsHeaders holds the precomputed header values shared by all requests.
type corsHeaders struct {
	allowAll    bool
	origins     map[string]string // lowercased origin -> configured casing
	methods     string
	headers     string
	expose      string
	maxAge      string
	credentials bool
}

// CORS returns a middleware implementing Cross-Origin Resource Sharing.
// Origin matching is case-insensitive and the configured casing is echoed
// back; Vary headers are set so shared caches never serve one origin's
// response to another.
func CORS(cfg CORSConfig) Middleware {
	h := buildCORSHeaders(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Same-origin request. Still vary on Origin when matching is
			// per-origin, so caches keep responses separate.
			if origin == "" {
				if !h.allowAll {
					w.Header().Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}

			allowOrigin := h.originValue(origin)

			if isPreflight(r) {
				h.writePreflight(w, r, allowOrigin)
				return
			}

			if !h.allowAll {
				w.Header().Add("Vary", "Origin")
			}
			if allowOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
				if h.credentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				if h.expose != "" {
					w.Header().Set("Access-Control-Expose-Headers", h.expose)
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func buildCORSHeaders(cfg CORSConfig) corsHeaders {
	h := corsHeaders{
		allowAll:    len(cfg.AllowOrigins) == 0,
		origins:     make(map[string]string, len(cfg.AllowOrigins)),
		methods:     strings.Join(cfg.AllowMethods, ", "),
		headers:     strings.Join(cfg.AllowHeaders, ", "),
		expose:      strings.Join(cfg.ExposeHeaders, ", "),
		credentials: cfg.AllowCredentials,
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			h.allowAll = true
			break
		}
		h.origins[strings.ToLower(o)] = o
	}
	// Credentials with a wildcard origin is forbidden, echo the specific
	// origin instead.
	if h.credentials && h.allowAll {
		h.allowAll = false
	}
	if h.methods == "" {
		h.methods = "GET, POST, PUT, DELETE, OPTIONS"
	}
	switch {
	case cfg.MaxAge > 0:
		h.maxAge = strconv.Itoa(cfg.MaxAge)
	case cfg.MaxAge < 0:
		h.maxAge = "0"
	}
	return h
}

// isPreflight reports whether the request is a CORS preflight: OPTIONS with
// an Access-Control-Request-Method header.
func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
}

func (h corsHeaders) writePreflight(w http.ResponseWriter, r *http.Request, allowOrigin string) {
	w.Header().Add("Vary", "Origin")
	w.Header().Add("Vary", "Access-Control-Request-Method")
	w.Header().Add("Vary", "Access-Control-Request-Headers")

	// Disallowed origin: respond without CORS headers.
	if allowOrigin == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
	w.Header().Set("Access-Control-Allow-Methods", h.methods)

	if h.headers != "" {
		w.Header().Set("Access-Control-Allow-Headers", h.headers)
	} else if rh := r.Header.Get("Access-Control-Request-Headers"); rh != "" {
		w.Header().Set("Access-Control-Allow-Headers", rh)
	}

	if h.credentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	if h.maxAge != "" {
		w.Header().Set("Access-Control-Max-Age", h.maxAge)
	}

	w.WriteHeader(http.StatusNoContent)
}

// originValue returns the Access-Control-Allow-Origin value for origin, or ""
// when the origin is not allowed.
func (h corsHeaders) originValue(origin string) string {
	if h.allowAll {
		return "*"
	}
	return h.origins[strings.ToLower(origin)]
}
