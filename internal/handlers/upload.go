package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"shortcast/internal/artifact"
	"shortcast/internal/models"
)

var allowedExtensions = map[models.ContentKind][]string{
	models.KindVideo:      {".mp4", ".mov", ".avi", ".mkv"},
	models.KindTranscript: {".txt", ".md"},
}

// UploadHandler accepts input files and stores them as temporary artifacts.
type UploadHandler struct {
	store *artifact.Store
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(store *artifact.Store) *UploadHandler {
	return &UploadHandler{store: store}
}

// Upload stores an uploaded file.
// POST /api/uploads (multipart: file, type=video|transcript)
func (h *UploadHandler) Upload(c echo.Context) error {
	ctx := c.Request().Context()
	owner := ownerID(c)
	if owner == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing owner identity"})
	}

	kind := models.ContentKind(c.FormValue("type"))
	exts, ok := allowedExtensions[kind]
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "type must be video or transcript"})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "file is required"})
	}
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !contains(exts, ext) {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "unsupported " + string(kind) + " format: " + ext,
		})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to open upload"})
	}
	defer src.Close()

	a, err := h.store.Put(ctx, src, kind, models.LifecycleTemporary, owner)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, a)
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
