// Package security provides security middleware for the API.
package security

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeadersMiddleware adds security headers to all responses.
func HeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'self'; connect-src 'self' ws: wss:; frame-ancestors 'none'")
		c.Next()
	}
}

// CORSMiddleware handles CORS for API endpoints.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	originsMap := make(map[string]bool)
	for _, o := range allowedOrigins {
		originsMap[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		if len(allowedOrigins) == 0 || originsMap[origin] || originsMap["*"] {
			if origin != "" {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID, X-User-ID")
			c.Header("Access-Control-Max-Age", "86400")
			// Wildcard origins must not be combined with credentials.
			if !originsMap["*"] {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// AdminAuthMiddleware guards arbiter endpoints with a shared bearer secret.
// When no secret is configured the endpoints are disabled entirely.
func AdminAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "admin_disabled",
				"message": "Admin endpoints are not enabled",
			})
			return
		}
		got := c.GetHeader("Authorization")
		want := "Bearer " + secret
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid admin credentials",
			})
			return
		}
		c.Next()
	}
}
