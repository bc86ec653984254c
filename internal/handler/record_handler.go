package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/educore-sync/internal/dto"
	"github.com/noah-isme/educore-sync/internal/models"
	"github.com/noah-isme/educore-sync/internal/service"
	appErrors "github.com/noah-isme/educore-sync/pkg/errors"
	"github.com/noah-isme/educore-sync/pkg/response"
	"github.com/noah-isme/educore-sync/pkg/retry"
)

// RecordHandler exposes the viewer's record store over HTTP.
type RecordHandler struct {
	sessions  sessionProvider
	retry     retry.Policy
	maxUpload int64
	logger    *zap.Logger
}

// NewRecordHandler constructs a RecordHandler. policy drives retries of refreshes the
// handler triggers; the store itself never retries.
func NewRecordHandler(sessions sessionProvider, policy retry.Policy, maxUpload int64, logger *zap.Logger) *RecordHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxUpload <= 0 {
		maxUpload = 5 * 1024 * 1024
	}
	return &RecordHandler{sessions: sessions, retry: policy, maxUpload: maxUpload, logger: logger}
}

// List godoc
// @Summary List or search records
// @Description Returns the mirrored collection, optionally filtered by a case-insensitive query
// @Tags Records
// @Produce json
// @Param collection path string true "Collection" Enums(students, teachers, announcements)
// @Param q query string false "Search query"
// @Param fields query string false "Comma separated searchable fields"
// @Param category query string false "Restrict to one partition"
// @Param refresh query bool false "Reload from the remote store first"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /collections/{collection}/records [get]
func (h *RecordHandler) List(c *gin.Context) {
	sess, err := sessionFromContext(c, h.sessions)
	if err != nil {
		response.Error(c, err)
		return
	}
	collection := c.Param("collection")
	if queryBool(c, "refresh") {
		if _, _, err := h.refresh(c.Request.Context(), sess.Store, collection); err != nil {
			response.Error(c, err)
			return
		}
	} else if err := h.ensureLoaded(c.Request.Context(), sess.Store, collection); err != nil {
		response.Error(c, err)
		return
	}

	query := c.Query("q")
	records, err := sess.Store.Search(collection, query, models.ParseFieldList(c.Query("fields")), c.Query("category"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, map[string]interface{}{"count": len(records), "query": query})
}

// Get godoc
// @Summary Get record
// @Tags Records
// @Produce json
// @Param collection path string true "Collection"
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /collections/{collection}/records/{id} [get]
func (h *RecordHandler) Get(c *gin.Context) {
	sess, err := sessionFromContext(c, h.sessions)
	if err != nil {
		response.Error(c, err)
		return
	}
	collection := c.Param("collection")
	if err := h.ensureLoaded(c.Request.Context(), sess.Store, collection); err != nil {
		response.Error(c, err)
		return
	}
	rec, err := sess.Store.Get(collection, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec)
}

// Create godoc
// @Summary Create record
// @Description Accepts JSON, or multipart with a "payload" JSON part and an "image" file
// @Tags Records
// @Accept json,mpfd
// @Produce json
// @Param collection path string true "Collection"
// @Param payload body dto.CreateRecordRequest true "Record"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /collections/{collection}/records [post]
func (h *RecordHandler) Create(c *gin.Context) {
	sess, err := sessionFromContext(c, h.sessions)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.CreateRecordRequest
	image, err := h.bindWrite(c, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if image == nil {
		image = req.Image.Upload()
	}

	rec, err := sess.Store.Create(c.Request.Context(), c.Param("collection"), models.RecordInput{
		ID:       req.ID,
		Category: req.Category,
		Fields:   req.Fields,
		Image:    image,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rec, writeMeta(image, rec))
}

// Update godoc
// @Summary Update record fields
// @Description Merges the supplied fields into the record; absent keys are kept
// @Tags Records
// @Accept json,mpfd
// @Produce json
// @Param collection path string true "Collection"
// @Param id path string true "Record ID"
// @Param payload body dto.UpdateRecordRequest true "Fields to merge"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /collections/{collection}/records/{id} [patch]
func (h *RecordHandler) Update(c *gin.Context) {
	sess, err := sessionFromContext(c, h.sessions)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.UpdateRecordRequest
	image, err := h.bindWrite(c, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if image == nil {
		image = req.Image.Upload()
	}

	rec, err := sess.Store.Update(c.Request.Context(), c.Param("collection"), c.Param("id"), req.Fields, image)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec, writeMeta(image, rec))
}

// MoveCategory godoc
// @Summary Move record to another partition
// @Tags Records
// @Accept json
// @Produce json
// @Param collection path string true "Collection"
// @Param id path string true "Record ID"
// @Param payload body dto.MoveCategoryRequest true "Target category"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /collections/{collection}/records/{id}/category [put]
func (h *RecordHandler) MoveCategory(c *gin.Context) {
	sess, err := sessionFromContext(c, h.sessions)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.MoveCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	rec, err := sess.Store.MoveCategory(c.Request.Context(), c.Param("collection"), c.Param("id"), req.Category)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec)
}

// Delete godoc
// @Summary Delete record
// @Description Deletes remotely, then locally, then clears every viewer's read flag for it
// @Tags Records
// @Param collection path string true "Collection"
// @Param id path string true "Record ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /collections/{collection}/records/{id} [delete]
func (h *RecordHandler) Delete(c *gin.Context) {
	sess, err := sessionFromContext(c, h.sessions)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := sess.Store.Delete(c.Request.Context(), c.Param("collection"), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Refresh godoc
// @Summary Refresh collection mirror
// @Description Replaces the mirror with the remote contents, retrying transient failures
// @Tags Records
// @Produce json
// @Param collection path string true "Collection"
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /collections/{collection}/refresh [post]
func (h *RecordHandler) Refresh(c *gin.Context) {
	sess, err := sessionFromContext(c, h.sessions)
	if err != nil {
		response.Error(c, err)
		return
	}
	records, attempts, err := h.refresh(c.Request.Context(), sess.Store, c.Param("collection"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, map[string]interface{}{"count": len(records), "attempts": attempts})
}

// Query godoc
// @Summary Query remote collection
// @Description Equality query evaluated by the remote store, e.g. ?eq[uid]=abc&category=JHS%201
// @Tags Records
// @Produce json
// @Param collection path string true "Collection"
// @Param category query string false "Category equals"
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /collections/{collection}/query [get]
func (h *RecordHandler) Query(c *gin.Context) {
	sess, err := sessionFromContext(c, h.sessions)
	if err != nil {
		response.Error(c, err)
		return
	}
	q := models.Query{Equals: map[string]interface{}{}}
	for field, value := range c.QueryMap("eq") {
		q.Equals[field] = value
	}
	if category, ok := c.GetQuery("category"); ok {
		q.Category = &category
	}
	records, err := sess.Store.Query(c.Request.Context(), c.Param("collection"), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, map[string]interface{}{"count": len(records), "predicate": q.String()})
}

// Partitions godoc
// @Summary Partition collection by category
// @Description Categories in name order; each partition ordered by creation time then id
// @Tags Records
// @Produce json
// @Param collection path string true "Collection"
// @Success 200 {object} response.Envelope
// @Router /collections/{collection}/partitions [get]
func (h *RecordHandler) Partitions(c *gin.Context) {
	sess, err := sessionFromContext(c, h.sessions)
	if err != nil {
		response.Error(c, err)
		return
	}
	collection := c.Param("collection")
	if err := h.ensureLoaded(c.Request.Context(), sess.Store, collection); err != nil {
		response.Error(c, err)
		return
	}
	partitions := sess.Store.Partitions(collection)
	response.JSON(c, http.StatusOK, partitions, map[string]interface{}{"partitions": len(partitions)})
}

// Roster godoc
// @Summary Teacher roster
// @Description Students in the class of the signed-in teacher; admins may pass uid
// @Tags Records
// @Produce json
// @Param uid query string false "Teacher account id (admins only)"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /roster [get]
func (h *RecordHandler) Roster(c *gin.Context) {
	sess, err := sessionFromContext(c, h.sessions)
	if err != nil {
		response.Error(c, err)
		return
	}
	uid := sess.Viewer.ID
	if requested := strings.TrimSpace(c.Query("uid")); requested != "" {
		if !sess.Viewer.IsAdmin() && requested != uid {
			response.Error(c, appErrors.ErrForbidden)
			return
		}
		uid = requested
	}
	class, students, err := sess.Store.RosterForTeacher(c.Request.Context(), uid)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.RosterResponse{Class: class, Students: students})
}

// bindWrite decodes a JSON body, or a multipart body whose "payload" part is JSON and
// whose optional "image" part is the file to upload.
func (h *RecordHandler) bindWrite(c *gin.Context, dst interface{}) (*models.ImageUpload, error) {
	if c.ContentType() != gin.MIMEMultipartPOSTForm {
		if err := c.ShouldBindJSON(dst); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid record payload")
		}
		return nil, nil
	}

	if err := json.Unmarshal([]byte(c.PostForm("payload")), dst); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid record payload")
	}
	header, err := c.FormFile("image")
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid image part")
	}
	if header.Size > h.maxUpload {
		return nil, appErrors.Validation(fmt.Sprintf("image exceeds %d bytes", h.maxUpload), "image")
	}
	file, err := header.Open()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable image part")
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable image part")
	}
	return &models.ImageUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (h *RecordHandler) ensureLoaded(ctx context.Context, store *service.RecordStore, collection string) error {
	if store.Loaded(collection) {
		return nil
	}
	_, _, err := h.refresh(ctx, store, collection)
	return err
}

func (h *RecordHandler) refresh(ctx context.Context, store *service.RecordStore, collection string) ([]*models.Record, int, error) {
	records, attempts, err := refreshWithRetry(ctx, h.retry, store, collection)
	if err != nil {
		h.logger.Warn("refresh failed", zap.String("collection", collection), zap.Int("attempts", attempts), zap.Error(err))
	}
	return records, attempts, err
}

// refreshWithRetry reloads the collection mirror under policy and reports how many
// attempts it took.
func refreshWithRetry(ctx context.Context, policy retry.Policy, store *service.RecordStore, collection string) ([]*models.Record, int, error) {
	var records []*models.Record
	attempts := 0
	err := policy.Do(ctx, func(ctx context.Context) error {
		attempts++
		seq, err := store.Refresh(ctx, collection)
		if err != nil {
			return err
		}
		records = slices.Collect(seq)
		return nil
	})
	if err != nil {
		return nil, attempts, err
	}
	return records, attempts, nil
}

func writeMeta(image *models.ImageUpload, rec *models.Record) map[string]interface{} {
	if image.Empty() {
		return nil
	}
	return map[string]interface{}{"image_skipped": rec.ImageRef == ""}
}
