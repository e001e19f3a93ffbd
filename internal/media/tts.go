package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"shortcast/internal/models"
)

const defaultTTSBaseURL = "https://api.openai.com/v1"

// SupportedVoices are the voices accepted at job creation.
var SupportedVoices = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}

// IsSupportedVoice checks a requested voice against the supported set.
func IsSupportedVoice(voice string) bool {
	for _, v := range SupportedVoices {
		if v == voice {
			return true
		}
	}
	return false
}

// TTSClient synthesizes speech through the OpenAI audio API.
type TTSClient struct {
	APIKey  string
	Model   string
	BaseURL string
	HTTP    *http.Client
}

// NewTTSClient creates a TTS client. Model defaults to tts-1.
func NewTTSClient(apiKey, model string) *TTSClient {
	if model == "" {
		model = "tts-1"
	}
	return &TTSClient{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: defaultTTSBaseURL,
		HTTP:    &http.Client{Timeout: 5 * time.Minute},
	}
}

type ttsRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize renders text as MP3 audio. 4xx responses mean the request
// itself is bad and are rejected; rate limits and server errors are
// transient.
func (c *TTSClient) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if c.APIKey == "" {
		return nil, models.RejectedTransform(fmt.Errorf("OPENAI_API_KEY is not configured"))
	}
	if !IsSupportedVoice(voice) {
		return nil, models.RejectedTransform(fmt.Errorf("unsupported voice: %s", voice))
	}

	body, err := json.Marshal(ttsRequest{
		Model:          c.Model,
		Voice:          voice,
		Input:          text,
		ResponseFormat: "mp3",
	})
	if err != nil {
		return nil, models.RejectedTransform(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, models.RejectedTransform(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, models.TransientTransform(ctx.Err())
		}
		return nil, models.TransientTransform(fmt.Errorf("TTS request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("TTS returned %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, models.TransientTransform(err)
		}
		return nil, models.RejectedTransform(err)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.TransientTransform(fmt.Errorf("failed to read TTS response: %w", err))
	}
	return audio, nil
}
