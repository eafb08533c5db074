package app

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// headerAdminSecret carries the shared secret when the body has no password field.
const headerAdminSecret = "X-Admin-Secret"

// metricsAuthMiddleware guards /metrics with Basic Auth when enabled.
func metricsAuthMiddleware(enabled bool, username, password string) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		user, pass, _ := c.Request.BasicAuth()
		// Evaluate both so timing does not reveal which half was wrong.
		userOK := secretMatches(username, user)
		passOK := secretMatches(password, pass)
		if !userOK || !passOK {
			c.Header("WWW-Authenticate", `Basic realm="metrics"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

// secretMatches compares in constant time. An unset secret matches nothing.
func secretMatches(expected, given string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(expected)) == 1
}

// authorize checks the shared admin secret, taken from the body password
// or the X-Admin-Secret header, and answers 403 when it does not match.
func (a *Application) authorize(c *gin.Context, password string) bool {
	if password == "" {
		password = c.GetHeader(headerAdminSecret)
	}
	if secretMatches(a.cfg.AdminSecret, password) {
		return true
	}
	a.metrics.RecordHTTPError("unauthorized", "api")
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Wrong password"})
	return false
}
