package pipeline

import "context"

// PublishRequest carries the metadata attached to the published video.
type PublishRequest struct {
	Title       string
	Description string
	Tags        []string
}

// Transformer is the engine's port to the media transform capability. Each
// method performs one opaque external operation; implementations translate
// their failures into models.TransientTransform / models.RejectedTransform
// (or models.ErrStorageUnavailable / models.ErrNotFound for store trouble) so
// the retry policy can tell them apart.
type Transformer interface {
	// ReformatVideo converts the stored video into the vertical short
	// format and stores the result, returning its artifact key.
	ReformatVideo(ctx context.Context, owner, videoKey string) (string, error)

	// SynthesizeSpeech renders text with the given voice and stores the
	// audio, returning its artifact key.
	SynthesizeSpeech(ctx context.Context, owner, text, voice string) (string, error)

	// Combine muxes the reformatted video with the synthesized audio and
	// stores the result, returning its artifact key.
	Combine(ctx context.Context, owner, videoKey, audioKey string) (string, error)

	// Publish uploads the combined video to the hosting platform and
	// returns its public URL.
	Publish(ctx context.Context, videoKey string, req PublishRequest) (string, error)
}
