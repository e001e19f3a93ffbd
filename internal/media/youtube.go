package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"time"

	"github.com/kkdai/youtube/v2"

	"shortcast/internal/models"
	"shortcast/internal/pipeline"
)

const defaultUploadURL = "https://www.googleapis.com/upload/youtube/v3/videos?uploadType=multipart&part=snippet,status"

// YouTubeUploader publishes a finished short to YouTube and resolves its
// public URL.
type YouTubeUploader struct {
	AccessToken string
	UploadURL   string
	HTTP        *http.Client

	// VerifyPublished resolves the uploaded video's metadata after the
	// insert, confirming visibility.
	VerifyPublished bool

	meta youtube.Client
}

// NewYouTubeUploader creates an uploader authorized by accessToken.
func NewYouTubeUploader(accessToken string) *YouTubeUploader {
	return &YouTubeUploader{
		AccessToken:     accessToken,
		UploadURL:       defaultUploadURL,
		HTTP:            &http.Client{Timeout: 30 * time.Minute},
		VerifyPublished: true,
	}
}

type uploadSnippet struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	CategoryID  string   `json:"categoryId"`
}

type uploadStatus struct {
	PrivacyStatus string `json:"privacyStatus"`
}

type uploadMetadata struct {
	Snippet uploadSnippet `json:"snippet"`
	Status  uploadStatus  `json:"status"`
}

type uploadResponse struct {
	ID string `json:"id"`
}

// Upload sends the video at videoPath as a multipart insert and returns the
// published URL.
func (u *YouTubeUploader) Upload(ctx context.Context, videoPath string, req pipeline.PublishRequest) (string, error) {
	if u.AccessToken == "" {
		return "", errRejected("YOUTUBE_ACCESS_TOKEN is not configured")
	}

	f, err := os.Open(videoPath)
	if err != nil {
		return "", errRejected("video file missing: %v", err)
	}
	defer f.Close()

	body, contentType, err := buildUploadBody(f, req)
	if err != nil {
		return "", errRejected("failed to build upload body: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.UploadURL, body)
	if err != nil {
		return "", errRejected("failed to build upload request: %v", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+u.AccessToken)
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := u.HTTP.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", errTransient("upload aborted: %v", ctx.Err())
		}
		return "", errTransient("upload request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", errTransient("upload returned %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
		}
		// 401/403 cover expired credentials, exhausted quota and content
		// policy rejections; none recover on retry.
		return "", errRejected("upload returned %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	var result uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", errTransient("failed to decode upload response: %v", err)
	}
	if result.ID == "" {
		return "", errRejected("upload response missing video id")
	}

	url := "https://www.youtube.com/shorts/" + result.ID
	if u.VerifyPublished {
		u.logPublished(ctx, result.ID)
	}
	return url, nil
}

// logPublished resolves the uploaded video's canonical metadata, confirming
// it is visible. Best effort: freshly uploaded videos can take a while to
// appear.
func (u *YouTubeUploader) logPublished(ctx context.Context, videoID string) {
	video, err := u.meta.GetVideoContext(ctx, videoID)
	if err != nil {
		return
	}
	log.Printf("Published %q (%s, %s)", video.Title, videoID, video.Duration)
}

func buildUploadBody(video io.Reader, req pipeline.PublishRequest) (io.Reader, string, error) {
	meta, err := json.Marshal(uploadMetadata{
		Snippet: uploadSnippet{
			Title:       req.Title,
			Description: req.Description,
			Tags:        req.Tags,
			CategoryID:  "22",
		},
		Status: uploadStatus{PrivacyStatus: "public"},
	})
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	part, err := w.CreatePart(metaHeader)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(meta); err != nil {
		return nil, "", err
	}

	videoHeader := textproto.MIMEHeader{}
	videoHeader.Set("Content-Type", "video/mp4")
	part, err = w.CreatePart(videoHeader)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, video); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	contentType := "multipart/related; boundary=" + w.Boundary()
	return &buf, contentType, nil
}

func errTransient(format string, args ...interface{}) error {
	return models.TransientTransform(fmt.Errorf(format, args...))
}

func errRejected(format string, args ...interface{}) error {
	return models.RejectedTransform(fmt.Errorf(format, args...))
}
