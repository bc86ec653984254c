package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/educore-sync/internal/models"
	appErrors "github.com/noah-isme/educore-sync/pkg/errors"
)

type staticTokens map[string]*models.JWTClaims

func (s staticTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	claims, ok := s[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

type recordedRequest struct {
	method string
	path   string
	status int
}

type requestLog []recordedRequest

func (l *requestLog) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	*l = append(*l, recordedRequest{method: method, path: path, status: status})
}

func newTestRouter(obs requestObserver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Metrics(obs))
	tokens := staticTokens{
		"admin":   {UserID: "a1", Role: models.RoleAdmin},
		"teacher": {UserID: "t1", Role: models.RoleTeacher},
	}
	api := router.Group("/", JWT(tokens))
	api.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, ViewerFromContext(c))
	})
	api.POST("/collections/:collection/records", CollectionWriter("collection"), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	api.GET("/admin", RequireRoles(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func serve(router *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestJWTRequiresBearerToken(t *testing.T) {
	router := newTestRouter(nil)

	assert.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, "/me", "forged").Code)

	w := serve(router, http.MethodGet, "/me", "teacher")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"t1"`)
}

func TestCollectionWriterByRole(t *testing.T) {
	router := newTestRouter(nil)

	assert.Equal(t, http.StatusCreated, serve(router, http.MethodPost, "/collections/students/records", "admin").Code)
	assert.Equal(t, http.StatusForbidden, serve(router, http.MethodPost, "/collections/students/records", "teacher").Code)
	assert.Equal(t, http.StatusCreated, serve(router, http.MethodPost, "/collections/announcements/records", "teacher").Code)
}

func TestRequireRoles(t *testing.T) {
	router := newTestRouter(nil)

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/admin", "admin").Code)
	assert.Equal(t, http.StatusForbidden, serve(router, http.MethodGet, "/admin", "teacher").Code)
}

func TestMetricsLabelsRoutes(t *testing.T) {
	var log requestLog
	router := newTestRouter(&log)

	serve(router, http.MethodPost, "/collections/students/records", "admin")
	serve(router, http.MethodGet, "/nowhere", "")

	require.Len(t, log, 2)
	assert.Equal(t, recordedRequest{method: http.MethodPost, path: "/collections/:collection/records", status: http.StatusCreated}, log[0])
	assert.Equal(t, "unmatched", log[1].path)
	assert.Equal(t, http.StatusNotFound, log[1].status)
}
