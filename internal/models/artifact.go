package models

import "time"

// Lifecycle is the retention class of a stored artifact.
type Lifecycle string

const (
	LifecycleTemporary Lifecycle = "temporary"
	LifecyclePermanent Lifecycle = "permanent"
)

// ContentKind identifies what a stored blob contains.
type ContentKind string

const (
	KindVideo         ContentKind = "video"
	KindTranscript    ContentKind = "transcript"
	KindAudio         ContentKind = "audio"
	KindCombinedVideo ContentKind = "combined_video"
)

// Artifact is the metadata record for one stored blob.
// Jobs reference artifacts by key only; deleting an artifact never
// cascades to the jobs that mention it.
type Artifact struct {
	Key       string      `json:"key"`
	Owner     string      `json:"owner"`
	Kind      ContentKind `json:"content_kind"`
	Lifecycle Lifecycle   `json:"lifecycle"`
	SizeBytes int64       `json:"size_bytes"`
	Path      string      `json:"-"`
	CreatedAt time.Time   `json:"created_at"`
}
