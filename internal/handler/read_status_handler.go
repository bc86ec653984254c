package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/educore-sync/internal/dto"
	"github.com/noah-isme/educore-sync/internal/models"
	"github.com/noah-isme/educore-sync/pkg/response"
	"github.com/noah-isme/educore-sync/pkg/retry"
)

type readStatus interface {
	IsRead(viewerID, recordID string) bool
	MarkRead(ctx context.Context, viewerID, recordID string) error
	UnreadCount(viewerID string, records []*models.Record) int
}

// ReadStatusHandler serves per-viewer read flags.
type ReadStatusHandler struct {
	status   readStatus
	sessions sessionProvider
	retry    retry.Policy
}

// NewReadStatusHandler constructs a ReadStatusHandler.
func NewReadStatusHandler(status readStatus, sessions sessionProvider, policy retry.Policy) *ReadStatusHandler {
	return &ReadStatusHandler{status: status, sessions: sessions, retry: policy}
}

// MarkRead godoc
// @Summary Mark record read
// @Description Read flags only ever go from unread to read
// @Tags ReadStatus
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /read-status/{id} [post]
func (h *ReadStatusHandler) MarkRead(c *gin.Context) {
	viewer, err := viewerFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	id := c.Param("id")
	if err := h.status.MarkRead(c.Request.Context(), viewer.ID, id); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ReadStatusResponse{RecordID: id, Read: true})
}

// Status godoc
// @Summary Read flag of a record
// @Tags ReadStatus
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /read-status/{id} [get]
func (h *ReadStatusHandler) Status(c *gin.Context) {
	viewer, err := viewerFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	id := c.Param("id")
	response.JSON(c, http.StatusOK, dto.ReadStatusResponse{RecordID: id, Read: h.status.IsRead(viewer.ID, id)})
}

// Unread godoc
// @Summary Unread count
// @Description Counts records in the collection, or one partition of it, the viewer has not read
// @Tags ReadStatus
// @Produce json
// @Param collection path string true "Collection"
// @Param category query string false "Partition"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /collections/{collection}/unread [get]
func (h *ReadStatusHandler) Unread(c *gin.Context) {
	sess, err := sessionFromContext(c, h.sessions)
	if err != nil {
		response.Error(c, err)
		return
	}
	collection := c.Param("collection")
	if !sess.Store.Loaded(collection) {
		if _, _, err := refreshWithRetry(c.Request.Context(), h.retry, sess.Store, collection); err != nil {
			response.Error(c, err)
			return
		}
	}

	category := c.Query("category")
	records := sess.Store.List(collection)
	if category != "" {
		records, _, err = sess.Store.Partition(collection, category)
		if err != nil {
			response.Error(c, err)
			return
		}
	}

	response.JSON(c, http.StatusOK, dto.UnreadResponse{
		Collection: collection,
		Category:   category,
		Unread:     h.status.UnreadCount(sess.Viewer.ID, records),
		Total:      len(records),
	})
}
