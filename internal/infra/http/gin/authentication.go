package ginserver

import (
	"crypto/subtle"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"
)

// TokenGuard protects the local view API with a static bearer token. An
// empty token disables the guard.
type TokenGuard struct {
	Token string
}

func (g TokenGuard) Handle(c *gin.Context) {
	if g.Token == "" {
		c.Next()
		return
	}
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(g.Token)) != 1 {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid token"})
		return
	}
	c.Next()
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
