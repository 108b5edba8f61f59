package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// OriginGuard rejects any request whose declared Origin is not loopback.
// The gateway serves a swarm of local agents; browsers on other hosts have
// no business here, authenticated or not. Requests without an Origin
// header (curl, SDK clients, health probes) pass through.
func OriginGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			c.Next()
			return
		}

		u, err := url.Parse(origin)
		if err != nil || !isLoopbackHost(u.Hostname()) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{"code": "forbidden_origin", "message": "non-loopback origin rejected"},
			})
			return
		}

		c.Next()
	}
}

func isLoopbackHost(host string) bool {
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return strings.HasPrefix(host, "127.")
}

// TokenAuth checks the configured access token on every request. An empty
// configured token disables the check. The /health route is mounted
// outside this middleware so supervisory tooling can always probe it.
func TokenAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		presented := ""
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			presented = strings.TrimPrefix(authHeader, "Bearer ")
		}
		if presented == "" {
			presented = c.GetHeader("X-API-Key")
		}

		if presented != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": "unauthorized", "message": "missing or invalid access token"},
			})
			return
		}

		c.Next()
	}
}
