package middleware

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORS admits browser requests from the server's own origin and from the
// configured origins only. Requests carrying any other Origin are refused
// before they reach a handler, which also covers the websocket endpoints
// and simple form posts that skip the preflight.
func CORS(allowedOrigins []string, serverHost string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.TrimRight(origin, "/")] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" || sameOrigin(origin, c.Request.Host, serverHost) {
			c.Next()
			return
		}
		if !allowed[origin] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
			return
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Header("Vary", "Origin")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// sameOrigin matches the Origin against the Host the request was sent to.
// The host must also be loopback or the configured server host, so a
// rebound DNS name pointing at this server does not count as same origin.
func sameOrigin(origin, requestHost, serverHost string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" || !strings.EqualFold(u.Host, requestHost) {
		return false
	}

	hostname := u.Hostname()
	if strings.EqualFold(hostname, "localhost") {
		return true
	}
	if ip := net.ParseIP(hostname); ip != nil && ip.IsLoopback() {
		return true
	}
	return serverHost != "" && strings.EqualFold(hostname, serverHost)
}
