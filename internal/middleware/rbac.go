package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/educore-sync/internal/models"
	appErrors "github.com/noah-isme/educore-sync/pkg/errors"
	"github.com/noah-isme/educore-sync/pkg/response"
)

// RequireRoles only lets viewers with one of the roles through.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		viewer := ViewerFromContext(c)
		if viewer == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		if _, ok := allowed[viewer.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			return
		}
		c.Next()
	}
}

// CollectionWriter guards writes to the collection named by the route parameter.
func CollectionWriter(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer := ViewerFromContext(c)
		if viewer == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		if !viewer.CanWrite(models.CollectionRoot(c.Param(param))) {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "not allowed to modify this collection"))
			return
		}
		c.Next()
	}
}
