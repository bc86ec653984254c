package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/educore-sync/internal/middleware"
	"github.com/noah-isme/educore-sync/internal/models"
	"github.com/noah-isme/educore-sync/internal/service"
	appErrors "github.com/noah-isme/educore-sync/pkg/errors"
)

// sessionProvider hands out the caller's session, opening one on first use.
type sessionProvider interface {
	Open(ctx context.Context, viewer models.Viewer) (*service.Session, error)
}

func viewerFromContext(c *gin.Context) (*models.Viewer, error) {
	viewer := middleware.ViewerFromContext(c)
	if viewer == nil || viewer.ID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	return viewer, nil
}

func sessionFromContext(c *gin.Context, sessions sessionProvider) (*service.Session, error) {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return nil, err
	}
	sess, err := sessions.Open(c.Request.Context(), *viewer)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open session")
	}
	return sess, nil
}

func queryBool(c *gin.Context, key string) bool {
	v, err := strconv.ParseBool(c.Query(key))
	return err == nil && v
}
