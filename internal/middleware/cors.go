package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORS returns a middleware that sets CORS headers for the REST API.
// allowedOrigins is "*" or a comma-separated list (e.g. "http://localhost:3000,http://localhost:3001").
func CORS(allowedOrigins string) gin.HandlerFunc {
	origins := parseOrigins(allowedOrigins)
	return func(c *gin.Context) {
		if allowOrigin := origins.match(c.GetHeader("Origin")); allowOrigin != "" {
			c.Header("Access-Control-Allow-Origin", allowOrigin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Max-Age", "86400")
			if allowOrigin != "*" {
				c.Header("Vary", "Origin")
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// WebSocketOrigin returns the upgrader origin check for the same origin list. Clients that
// send no Origin header (native apps, servers) are accepted; browsers always send one.
func WebSocketOrigin(allowedOrigins string) func(r *http.Request) bool {
	origins := parseOrigins(allowedOrigins)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origins.match(origin) != ""
	}
}

type originSet map[string]bool

// match returns the Access-Control-Allow-Origin value for origin, or "" when it is not allowed.
func (s originSet) match(origin string) string {
	if len(s) == 0 || s["*"] {
		return "*"
	}
	if origin != "" && s[origin] {
		return origin
	}
	return ""
}

func parseOrigins(s string) originSet {
	m := make(originSet)
	for _, o := range strings.Split(strings.TrimSpace(s), ",") {
		if o = strings.TrimSpace(o); o != "" {
			m[o] = true
		}
	}
	return m
}
