package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/educore-sync/internal/models"
	"github.com/noah-isme/educore-sync/internal/repository"
	"github.com/noah-isme/educore-sync/internal/service"
)

func TestExportHandlerCSV(t *testing.T) {
	docs := repository.NewMemoryDocumentRepository()
	seedStudents(t, docs)
	h := NewExportHandler(service.NewRosterExportService(nil, nil, nil), newFakeSessions(docs), fastRetry())

	c, w := newGinContext(http.MethodGet, "/collections/students/partitions/export?category=JHS%201&format=csv", nil)
	c.Params = gin.Params{{Key: "collection", Value: "students"}}
	asViewer(c, "admin-1", models.RoleAdmin)
	h.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="students_JHS_1_`)
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "s1,Ama Owusu"))
	assert.True(t, strings.HasPrefix(lines[2], "s3,Esi Boateng"))
}

func TestExportHandlerRequiresCategory(t *testing.T) {
	h := NewExportHandler(service.NewRosterExportService(nil, nil, nil), newFakeSessions(nil), fastRetry())

	c, w := newGinContext(http.MethodGet, "/collections/students/partitions/export", nil)
	c.Params = gin.Params{{Key: "collection", Value: "students"}}
	asViewer(c, "admin-1", models.RoleAdmin)
	h.Export(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"category"}, decodeEnvelope(t, w).Error.Fields)
}
