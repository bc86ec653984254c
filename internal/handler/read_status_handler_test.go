package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/educore-sync/internal/dto"
	"github.com/noah-isme/educore-sync/internal/models"
	"github.com/noah-isme/educore-sync/internal/repository"
)

func TestReadStatusHandlerMarkReadAndUnread(t *testing.T) {
	docs := repository.NewMemoryDocumentRepository()
	seedStudents(t, docs)
	sessions := newFakeSessions(docs)
	h := NewReadStatusHandler(sessions.readStatus, sessions, fastRetry())

	c, w := newGinContext(http.MethodGet, "/collections/students/unread?category=JHS%201", nil)
	c.Params = gin.Params{{Key: "collection", Value: "students"}}
	asViewer(c, "v1", models.RoleTeacher)
	h.Unread(c)
	require.Equal(t, http.StatusOK, w.Code)
	var unread dto.UnreadResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &unread))
	assert.Equal(t, dto.UnreadResponse{Collection: "students", Category: "JHS 1", Unread: 2, Total: 2}, unread)

	c, w = newGinContext(http.MethodPost, "/read-status/s1", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	asViewer(c, "v1", models.RoleTeacher)
	h.MarkRead(c)
	require.Equal(t, http.StatusOK, w.Code)

	c, w = newGinContext(http.MethodGet, "/read-status/s1", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	asViewer(c, "v1", models.RoleTeacher)
	h.Status(c)
	var status dto.ReadStatusResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &status))
	assert.True(t, status.Read)

	c, w = newGinContext(http.MethodGet, "/collections/students/unread", nil)
	c.Params = gin.Params{{Key: "collection", Value: "students"}}
	asViewer(c, "v1", models.RoleTeacher)
	h.Unread(c)
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &unread))
	assert.Equal(t, 2, unread.Unread)
	assert.Equal(t, 3, unread.Total)

	c, w = newGinContext(http.MethodGet, "/read-status/s1", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	asViewer(c, "v2", models.RoleTeacher)
	h.Status(c)
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &status))
	assert.False(t, status.Read)
}

func TestReadStatusHandlerUnknownCollection(t *testing.T) {
	sessions := newFakeSessions(nil)
	h := NewReadStatusHandler(sessions.readStatus, sessions, fastRetry())

	c, w := newGinContext(http.MethodGet, "/collections/grades/unread", nil)
	c.Params = gin.Params{{Key: "collection", Value: "grades"}}
	asViewer(c, "v1", models.RoleTeacher)
	h.Unread(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReadStatusHandlerRequiresViewer(t *testing.T) {
	sessions := newFakeSessions(nil)
	h := NewReadStatusHandler(sessions.readStatus, sessions, fastRetry())

	c, w := newGinContext(http.MethodPost, "/read-status/s1", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	h.MarkRead(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
