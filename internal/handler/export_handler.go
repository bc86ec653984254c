package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/educore-sync/internal/models"
	"github.com/noah-isme/educore-sync/internal/service"
	"github.com/noah-isme/educore-sync/pkg/response"
	"github.com/noah-isme/educore-sync/pkg/retry"
)

type rosterExporter interface {
	Export(source service.PartitionSource, collection, category, format string) (*models.ExportFile, error)
}

// ExportHandler renders partitions as downloadable rosters.
type ExportHandler struct {
	exporter rosterExporter
	sessions sessionProvider
	retry    retry.Policy
}

// NewExportHandler constructs an ExportHandler.
func NewExportHandler(exporter rosterExporter, sessions sessionProvider, policy retry.Policy) *ExportHandler {
	return &ExportHandler{exporter: exporter, sessions: sessions, retry: policy}
}

// Export godoc
// @Summary Export partition
// @Description Renders one category of the collection as CSV or PDF in partition order
// @Tags Exports
// @Produce text/csv,application/pdf
// @Param collection path string true "Collection"
// @Param category query string true "Partition"
// @Param format query string false "csv or pdf" Enums(csv, pdf)
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /collections/{collection}/partitions/export [get]
func (h *ExportHandler) Export(c *gin.Context) {
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

	file, err := h.exporter.Export(sess.Store, collection, c.Query("category"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
