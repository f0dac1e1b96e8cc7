package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	apiCSP = "default-src 'none'; frame-ancestors 'none'"
	// the bundled frontend loads its own scripts and styles and calls the API
	frontendCSP = "default-src 'self'; base-uri 'none'; frame-ancestors 'none'; object-src 'none'; connect-src 'self'; img-src 'self' data:; style-src 'self' 'unsafe-inline'; script-src 'self'"
)

var apiPaths = []string{"/add-user", "/decrypt", "/send-email", "/verify-signature", "/users", "/emails", "/healthz", "/readyz", "/metrics"}

func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("X-XSS-Protection", "0")
		if isAPIPath(c.Request.URL.Path) {
			c.Header("Content-Security-Policy", apiCSP)
		} else {
			c.Header("Content-Security-Policy", frontendCSP)
		}
		c.Next()
	}
}

// isAPIPath matches whole path segments so frontend assets such as
// /users-guide.html keep the frontend policy.
func isAPIPath(path string) bool {
	for _, p := range apiPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
