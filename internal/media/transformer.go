// Package media implements the transform capability the pipeline depends on:
// ffmpeg for local video work, the OpenAI audio API for speech synthesis and
// YouTube for publishing. StoreTransformer glues them to the artifact store.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"shortcast/internal/artifact"
	"shortcast/internal/models"
	"shortcast/internal/pipeline"
)

// StoreTransformer implements pipeline.Transformer on top of the artifact
// store. Inputs are resolved to their on-disk blobs, transformed in a scratch
// directory, and the results stored as temporary artifacts.
type StoreTransformer struct {
	store    *artifact.Store
	ffmpeg   *FFmpeg
	tts      *TTSClient
	uploader *YouTubeUploader
	workDir  string
}

// NewStoreTransformer creates the production transformer.
func NewStoreTransformer(store *artifact.Store, ffmpeg *FFmpeg, tts *TTSClient, uploader *YouTubeUploader, workDir string) *StoreTransformer {
	return &StoreTransformer{
		store:    store,
		ffmpeg:   ffmpeg,
		tts:      tts,
		uploader: uploader,
		workDir:  workDir,
	}
}

// ReformatVideo converts the stored source video to shorts format.
func (t *StoreTransformer) ReformatVideo(ctx context.Context, owner, videoKey string) (string, error) {
	inputPath, _, err := t.store.Resolve(ctx, videoKey)
	if err != nil {
		return "", err
	}

	outputPath, cleanup, err := t.scratchFile("reformat", ".mp4")
	if err != nil {
		return "", err
	}
	defer cleanup()

	if err := t.ffmpeg.Reformat(ctx, inputPath, outputPath); err != nil {
		return "", err
	}
	return t.storeFile(ctx, outputPath, models.KindVideo, owner)
}

// SynthesizeSpeech renders the transcript as a voiceover artifact.
func (t *StoreTransformer) SynthesizeSpeech(ctx context.Context, owner, text, voice string) (string, error) {
	audio, err := t.tts.Synthesize(ctx, text, voice)
	if err != nil {
		return "", err
	}

	a, err := t.store.Put(ctx, bytes.NewReader(audio), models.KindAudio, models.LifecycleTemporary, owner)
	if err != nil {
		return "", err
	}
	return a.Key, nil
}

// Combine muxes the reformatted video with the voiceover.
func (t *StoreTransformer) Combine(ctx context.Context, owner, videoKey, audioKey string) (string, error) {
	videoPath, _, err := t.store.Resolve(ctx, videoKey)
	if err != nil {
		return "", err
	}
	audioPath, _, err := t.store.Resolve(ctx, audioKey)
	if err != nil {
		return "", err
	}

	outputPath, cleanup, err := t.scratchFile("combine", ".mp4")
	if err != nil {
		return "", err
	}
	defer cleanup()

	if err := t.ffmpeg.Mux(ctx, videoPath, audioPath, outputPath); err != nil {
		return "", err
	}
	return t.storeFile(ctx, outputPath, models.KindCombinedVideo, owner)
}

// Publish uploads the combined video and returns its public URL.
func (t *StoreTransformer) Publish(ctx context.Context, videoKey string, req pipeline.PublishRequest) (string, error) {
	videoPath, _, err := t.store.Resolve(ctx, videoKey)
	if err != nil {
		return "", err
	}
	return t.uploader.Upload(ctx, videoPath, req)
}

func (t *StoreTransformer) scratchFile(prefix, ext string) (string, func(), error) {
	dir := filepath.Join(t.workDir, "scratch")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s%s", prefix, uuid.New().String(), ext))
	return path, func() { os.Remove(path) }, nil
}

func (t *StoreTransformer) storeFile(ctx context.Context, path string, kind models.ContentKind, owner string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	defer f.Close()

	a, err := t.store.Put(ctx, f, kind, models.LifecycleTemporary, owner)
	if err != nil {
		return "", err
	}
	return a.Key, nil
}
