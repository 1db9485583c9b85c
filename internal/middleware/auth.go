package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pledgr/internal/apperr"
	"pledgr/internal/auth"
)

const (
	userIDContextKey = "userID"
	claimsContextKey = "claims"
)

// TokenVerifier checks a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get Authorization Header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "Authorization header required")
			return
		}

		// Check if it's a Bearer token
		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c, "Invalid authorization header format")
			return
		}

		claims, err := verifier.Verify(parts[1])
		if err != nil {
			log.Printf("request_id=%s token rejected: %v", RequestIDFromContext(c), err)
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		c.Set(userIDContextKey, claims.UserID)
		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

// UserID returns the authenticated user's id set by AuthMiddleware.
func UserID(c *gin.Context) (int64, bool) {
	value, ok := c.Get(userIDContextKey)
	if !ok {
		return 0, false
	}
	userID, ok := value.(int64)
	return userID, ok && userID > 0
}

// SetUserID marks the request as authenticated as userID.
func SetUserID(c *gin.Context, userID int64) {
	c.Set(userIDContextKey, userID)
}

// ClaimsFromContext returns the verified token claims of the request.
func ClaimsFromContext(c *gin.Context) (*auth.Claims, bool) {
	value, ok := c.Get(claimsContextKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*auth.Claims)
	return claims, ok
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
		"code":  apperr.KindAuthentication,
	})
}
