package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/educore-sync/internal/models"
	appErrors "github.com/noah-isme/educore-sync/pkg/errors"
	"github.com/noah-isme/educore-sync/pkg/logger"
	"github.com/noah-isme/educore-sync/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

// TokenValidator validates bearer access tokens.
type TokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// JWT protects routes by requiring a valid access token. The viewer id is also
// stored under logger.ViewerIDKey for request logs.
func JWT(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			return
		}

		claims, err := tokens.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, err)
			return
		}

		c.Set(ContextUserKey, claims)
		c.Set(logger.ViewerIDKey, claims.UserID)
		c.Next()
	}
}

// ViewerFromContext returns the authenticated viewer, if any.
func ViewerFromContext(c *gin.Context) *models.Viewer {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims.Viewer()
}
