package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CORSConfig controls which browser origins may call the API.
type CORSConfig struct {
	Enabled          bool
	AllowedOrigins   []string // "*" admits any origin
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// Headers a browser client needs to read to report an execution.
var defaultExposed = []string{"X-Error-Code", "X-Trace-Id", "X-Request-Id", "Retry-After"}

// CORSMiddleware answers preflights and decorates responses for allowed
// origins. Preflights from other origins get 403; plain requests from them
// pass through undecorated and the browser blocks the read.
func CORSMiddleware(cfg CORSConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	anyOrigin := false
	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		o = strings.ToLower(strings.TrimSpace(o))
		if o == "*" {
			anyOrigin = true
		} else if o != "" {
			origins[o] = struct{}{}
		}
	}
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	exposed := mergeHeaderNames(defaultExposed, cfg.ExposedHeaders)
	echoOrigin := cfg.AllowCredentials || !anyOrigin

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		preflight := c.Request.Method == http.MethodOptions
		if _, ok := origins[strings.ToLower(origin)]; !ok && !anyOrigin {
			if preflight {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}

		h := c.Writer.Header()
		if echoOrigin {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		} else {
			h.Set("Access-Control-Allow-Origin", "*")
		}
		if cfg.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		h.Set("Access-Control-Expose-Headers", exposed)

		if !preflight {
			c.Next()
			return
		}
		h.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
		if len(cfg.AllowedHeaders) > 0 {
			h.Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowedHeaders, ", "))
		} else if requested := c.GetHeader("Access-Control-Request-Headers"); requested != "" {
			h.Set("Access-Control-Allow-Headers", requested)
		}
		if cfg.MaxAge > 0 {
			h.Set("Access-Control-Max-Age", strconv.Itoa(int(cfg.MaxAge/time.Second)))
		}
		c.AbortWithStatus(http.StatusNoContent)
	}
}

func mergeHeaderNames(base, extra []string) string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, name := range append(append([]string{}, base...), extra...) {
		canonical := http.CanonicalHeaderKey(strings.TrimSpace(name))
		if _, dup := seen[canonical]; dup || canonical == "" {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	return strings.Join(out, ", ")
}
