package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"shortcast/internal/artifact"
	"shortcast/internal/models"
)

// ArtifactHandler serves artifact metadata, presigning and signed downloads.
type ArtifactHandler struct {
	store      *artifact.Store
	presignTTL time.Duration
}

// NewArtifactHandler creates a new ArtifactHandler.
func NewArtifactHandler(store *artifact.Store, presignTTL time.Duration) *ArtifactHandler {
	return &ArtifactHandler{store: store, presignTTL: presignTTL}
}

// Get returns artifact metadata within the caller's ownership scope.
// GET /api/artifacts/:key
func (h *ArtifactHandler) Get(c echo.Context) error {
	a, ok := h.ownArtifact(c)
	if !ok {
		return nil
	}
	return c.JSON(http.StatusOK, a)
}

// Presign returns a time-limited download URL.
// GET /api/artifacts/:key/presign
func (h *ArtifactHandler) Presign(c echo.Context) error {
	a, ok := h.ownArtifact(c)
	if !ok {
		return nil
	}

	url, err := h.store.Presign(c.Request().Context(), a.Key, h.presignTTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"url": url})
}

// Download serves the blob. The request must carry a valid presigned
// signature, or come from the artifact's owner.
// GET /api/artifacts/:key/download?expires=&sig=
func (h *ArtifactHandler) Download(c echo.Context) error {
	ctx := c.Request().Context()
	key := c.Param("key")

	authorized := false
	if sig := c.QueryParam("sig"); sig != "" {
		expires, err := strconv.ParseInt(c.QueryParam("expires"), 10, 64)
		if err == nil && h.store.VerifySignature(key, expires, sig) {
			authorized = true
		}
	}

	a, err := h.store.Stat(ctx, key)
	if err == models.ErrNotFound {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "artifact not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if !authorized && (ownerID(c) == "" || a.Owner != ownerID(c)) {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "signature required"})
	}

	return c.Attachment(a.Path, a.Key)
}

func (h *ArtifactHandler) ownArtifact(c echo.Context) (*models.Artifact, bool) {
	owner := ownerID(c)
	if owner == "" {
		_ = c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing owner identity"})
		return nil, false
	}

	a, err := h.store.Stat(c.Request().Context(), c.Param("key"))
	if err == models.ErrNotFound {
		_ = c.JSON(http.StatusNotFound, map[string]string{"error": "artifact not found"})
		return nil, false
	}
	if err != nil {
		_ = c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return nil, false
	}
	if a.Owner != owner {
		_ = c.JSON(http.StatusNotFound, map[string]string{"error": "artifact not found"})
		return nil, false
	}
	return a, true
}
