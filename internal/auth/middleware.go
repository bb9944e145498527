package auth

import (
	"net/http"
	"strings"

	"fitrank/backend/internal/apperr"
	"fitrank/backend/pkg/jwt"

	"github.com/gin-gonic/gin"
)

// ContextUserID is the gin context key holding the authenticated user's ID.
const ContextUserID = "userID"

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(header string) string {
	parts := strings.Split(header, " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

// AuthMiddleware rejects requests without a valid bearer token and sets the
// userID for the handlers behind it.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := BearerToken(c.GetHeader("Authorization"))
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apperr.Fail(apperr.BadData("missing bearer token")))
			return
		}

		userID, err := jwt.ParseToken(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apperr.Fail(apperr.BadData("invalid or expired token")))
			return
		}

		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// UserID returns the authenticated user's ID set by AuthMiddleware.
func UserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}
