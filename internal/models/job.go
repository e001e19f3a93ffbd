package models

import "time"

// Stage is a named phase of the short-creation pipeline.
type Stage string

const (
	StageQueued          Stage = "queued"
	StageProcessingVideo Stage = "processing_video"
	StageGeneratingAudio Stage = "generating_audio"
	StageCombining       Stage = "combining"
	StagePublishing      Stage = "publishing"
	StageCompleted       Stage = "completed"
	StageFailed          Stage = "failed"
	StageCancelled       Stage = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Stage) Terminal() bool {
	switch s {
	case StageCompleted, StageFailed, StageCancelled:
		return true
	default:
		return false
	}
}

// nextStages is the edge table of the pipeline state machine: each stage
// maps to the stages it may legally enter next. Terminal stages have no
// outgoing edges.
var nextStages = map[Stage][]Stage{
	StageQueued:          {StageProcessingVideo, StageFailed, StageCancelled},
	StageProcessingVideo: {StageGeneratingAudio, StageFailed, StageCancelled},
	StageGeneratingAudio: {StageCombining, StageFailed, StageCancelled},
	StageCombining:       {StagePublishing, StageFailed, StageCancelled},
	StagePublishing:      {StageCompleted, StageFailed, StageCancelled},
}

// CanTransitionTo reports whether s -> next is a legal edge.
func (s Stage) CanTransitionTo(next Stage) bool {
	for _, allowed := range nextStages[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Step returns the human-readable description shown to status pollers.
func (s Stage) Step() string {
	switch s {
	case StageQueued:
		return "Waiting to start"
	case StageProcessingVideo:
		return "Processing video"
	case StageGeneratingAudio:
		return "Generating audio"
	case StageCombining:
		return "Combining video and audio"
	case StagePublishing:
		return "Uploading to YouTube"
	case StageCompleted:
		return "Completed"
	case StageFailed:
		return "Failed"
	case StageCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}

// JobError is the structured failure detail recorded on a failed job.
type JobError struct {
	Kind    string `json:"kind"`
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// Job is one end-to-end pipeline run for a video/transcript pair.
type Job struct {
	ID              string           `json:"id"`
	Owner           string           `json:"owner"`
	Stage           Stage            `json:"stage"`
	Progress        int              `json:"progress"`
	Title           string           `json:"title"`
	Description     string           `json:"description,omitempty"`
	Voice           string           `json:"voice"`
	Tags            []string         `json:"tags,omitempty"`
	VideoKey        string           `json:"video_key"`
	TranscriptKey   string           `json:"transcript_key"`
	OutputRefs      map[Stage]string `json:"output_refs"`
	Error           *JobError        `json:"error,omitempty"`
	PublishedURL    string           `json:"published_url,omitempty"`
	CancelRequested bool             `json:"cancel_requested"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

// ProcessingSeconds returns wall-clock duration from creation to completion,
// or zero if the job has not finished.
func (j *Job) ProcessingSeconds() int {
	if j.CompletedAt == nil {
		return 0
	}
	return int(j.CompletedAt.Sub(j.CreatedAt).Seconds())
}
