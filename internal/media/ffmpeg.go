package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"shortcast/internal/models"
)

// FFmpeg shells out to the ffmpeg binary for the two local transforms:
// reformatting a source video to the vertical short frame and muxing the
// voiceover onto it.
type FFmpeg struct {
	Bin string
}

// NewFFmpeg returns an FFmpeg runner using the binary on PATH.
func NewFFmpeg() *FFmpeg {
	return &FFmpeg{Bin: "ffmpeg"}
}

// Reformat converts inputPath into 1080x1920 shorts format at outputPath.
func (f *FFmpeg) Reformat(ctx context.Context, inputPath, outputPath string) error {
	// -vf: scale into the 1080x1920 frame, pad the rest
	// -crf 23: default quality target
	// -y: overwrite output file
	return f.run(ctx, inputPath,
		"-y",
		"-i", inputPath,
		"-vf", "scale=1080:1920:force_original_aspect_ratio=decrease,pad=1080:1920:(ow-iw)/2:(oh-ih)/2",
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-c:a", "aac",
		outputPath,
	)
}

// Mux replaces the video's audio track with audioPath, trimming to the
// shorter of the two streams.
func (f *FFmpeg) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	return f.run(ctx, videoPath,
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-shortest",
		outputPath,
	)
}

func (f *FFmpeg) run(ctx context.Context, inputPath string, args ...string) error {
	if _, err := exec.LookPath(f.Bin); err != nil {
		return models.RejectedTransform(fmt.Errorf("ffmpeg not found: install ffmpeg to process video"))
	}
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		return models.ErrNotFound
	}

	cmd := exec.CommandContext(ctx, f.Bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			// Killed by the stage timeout; retryable.
			return models.TransientTransform(ctx.Err())
		}
		// ffmpeg refusing the input means the content is bad, not the
		// infrastructure.
		return models.RejectedTransform(
			fmt.Errorf("ffmpeg failed: %v: %s", err, lastLine(stderr.Bytes())))
	}
	return nil
}

// lastLine extracts the final stderr line, which is where ffmpeg puts the
// actual error.
func lastLine(out []byte) string {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	if len(lines) == 0 {
		return ""
	}
	return string(lines[len(lines)-1])
}
