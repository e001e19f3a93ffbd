package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"shortcast/internal/artifact"
	"shortcast/internal/media"
	"shortcast/internal/models"
)

// CaptionHandler imports a YouTube caption track as a transcript artifact,
// for users who want to narrate an existing video.
type CaptionHandler struct {
	fetcher *media.CaptionFetcher
	store   *artifact.Store
}

// NewCaptionHandler creates a new CaptionHandler.
func NewCaptionHandler(fetcher *media.CaptionFetcher, store *artifact.Store) *CaptionHandler {
	return &CaptionHandler{fetcher: fetcher, store: store}
}

type importCaptionRequest struct {
	URL      string `json:"url"`
	Language string `json:"language"`
}

// Import fetches captions and stores them as a transcript artifact.
// POST /api/captions/import
func (h *CaptionHandler) Import(c echo.Context) error {
	ctx := c.Request().Context()
	owner := ownerID(c)
	if owner == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing owner identity"})
	}

	var req importCaptionRequest
	if err := c.Bind(&req); err != nil || req.URL == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "url is required"})
	}

	transcript, err := h.fetcher.FetchTranscript(ctx, req.URL, req.Language)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	a, err := h.store.Put(ctx, strings.NewReader(transcript),
		models.KindTranscript, models.LifecycleTemporary, owner)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	preview := transcript
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"key":     a.Key,
		"preview": preview,
	})
}
