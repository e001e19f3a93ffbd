package media

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kkdai/youtube/v2"
)

// CaptionFetcher pulls a caption track from an existing YouTube video so it
// can be stored as a transcript artifact.
type CaptionFetcher struct {
	client youtube.Client
}

// NewCaptionFetcher creates a caption fetcher.
func NewCaptionFetcher() *CaptionFetcher {
	return &CaptionFetcher{}
}

// Caption track XML as served by the timedtext endpoint.
type xmlTranscript struct {
	XMLName xml.Name  `xml:"transcript"`
	Text    []xmlText `xml:"text"`
}

type xmlText struct {
	Content string `xml:",chardata"`
}

// FetchTranscript downloads the caption track for videoURL in the given
// language (first available track when lang is empty) and returns it as
// plain text.
func (f *CaptionFetcher) FetchTranscript(ctx context.Context, videoURL, lang string) (string, error) {
	video, err := f.client.GetVideoContext(ctx, videoURL)
	if err != nil {
		return "", fmt.Errorf("failed to resolve video: %w", err)
	}
	if len(video.CaptionTracks) == 0 {
		return "", fmt.Errorf("no captions available for video %s", video.ID)
	}

	track := video.CaptionTracks[0]
	if lang != "" {
		found := false
		for _, t := range video.CaptionTracks {
			if t.LanguageCode == lang {
				track = t
				found = true
				break
			}
		}
		if !found {
			return "", fmt.Errorf("no %s captions for video %s", lang, video.ID)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, track.BaseURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("caption request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read caption response: %w", err)
	}

	return parseCaptionXML(body)
}

func parseCaptionXML(data []byte) (string, error) {
	var transcript xmlTranscript
	if err := xml.Unmarshal(data, &transcript); err != nil {
		return "", fmt.Errorf("caption XML parse failed: %w", err)
	}

	var sb strings.Builder
	for _, entry := range transcript.Text {
		text := strings.TrimSpace(entry.Content)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(text)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("caption track is empty")
	}
	return sb.String(), nil
}
