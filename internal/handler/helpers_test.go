package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/educore-sync/internal/middleware"
	"github.com/noah-isme/educore-sync/internal/models"
	"github.com/noah-isme/educore-sync/internal/repository"
	"github.com/noah-isme/educore-sync/internal/service"
	appErrors "github.com/noah-isme/educore-sync/pkg/errors"
	"github.com/noah-isme/educore-sync/pkg/retry"
)

type responseEnvelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func asViewer(c *gin.Context, id string, role models.UserRole) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: id, Role: role, Purpose: models.TokenPurposeAccess})
}

type stubUploads struct {
	url string
	err error
}

func (s *stubUploads) Upload(context.Context, models.ImageUpload) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.url, nil
}

// fakeSessions hands every viewer a real record store over shared remote fakes.
type fakeSessions struct {
	docs       service.DocumentStore
	objects    *stubUploads
	readStatus *service.ReadStatusService
	policy     service.UploadPolicy
	sessions   map[string]*service.Session
	closed     []string
	openErr    error
}

func newFakeSessions(docs service.DocumentStore) *fakeSessions {
	if docs == nil {
		docs = repository.NewMemoryDocumentRepository()
	}
	return &fakeSessions{
		docs:       docs,
		objects:    &stubUploads{url: "https://cdn.school.test/images/a.png"},
		readStatus: service.NewReadStatusService(service.NewReadTracker(), repository.NewMemoryKVRepository(), zap.NewNop()),
		policy:     service.UploadAbort,
		sessions:   map[string]*service.Session{},
	}
}

func (f *fakeSessions) Open(_ context.Context, viewer models.Viewer) (*service.Session, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	if sess, ok := f.sessions[viewer.ID]; ok {
		return sess, nil
	}
	store := service.NewRecordStore(f.docs, f.objects, f.readStatus, nil, nil, zap.NewNop(), nil, service.RecordStoreConfig{UploadPolicy: f.policy})
	sess := &service.Session{Viewer: viewer, Store: store, OpenedAt: time.Now()}
	f.sessions[viewer.ID] = sess
	return sess, nil
}

func (f *fakeSessions) Close(viewerID string) {
	delete(f.sessions, viewerID)
	f.closed = append(f.closed, viewerID)
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Multiplier: 2}
}

var errConnReset = errors.New("connection reset by peer")
