package handler

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/educore-sync/pkg/errors"
	"github.com/noah-isme/educore-sync/pkg/response"
)

type tokenParser interface {
	Parse(token string) (string, time.Time, error)
}

type fileOpener interface {
	Open(key string) (*os.File, error)
}

// FileHandler serves locally stored images behind signed, expiring tokens.
type FileHandler struct {
	signer tokenParser
	files  fileOpener
}

// NewFileHandler constructs a FileHandler.
func NewFileHandler(signer tokenParser, files fileOpener) *FileHandler {
	return &FileHandler{signer: signer, files: files}
}

// Download godoc
// @Summary Download stored image
// @Tags Files
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /files/{token} [get]
func (h *FileHandler) Download(c *gin.Context) {
	key, _, err := h.signer.Parse(c.Param("token"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired link"))
		return
	}

	file, err := h.files.Open(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "file not found"))
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat file"))
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	http.ServeContent(c.Writer, c.Request, path.Base(key), info.ModTime(), file)
}
