// Package pipeline drives a job through the short-creation state machine:
// queued -> processing_video -> generating_audio -> combining -> publishing
// -> completed, with failed and cancelled reachable from every non-terminal
// stage. All durable writes are conditional on the stage the engine last
// observed, so a worker that lost its claim aborts instead of double-acting.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"shortcast/internal/models"
	"shortcast/internal/storage"
)

// Stage progress weights. Later stages are costlier, so the scale is skewed
// toward the back of the pipeline.
const (
	ProgressProcessingEntry = 5
	ProgressProcessingExit  = 25
	ProgressAudioExit       = 50
	ProgressCombiningExit   = 75
	ProgressPublishingExit  = 95
)

// BlobStore is the artifact access the engine needs: reading inputs and
// promoting outputs. Satisfied by *artifact.Store.
type BlobStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, *models.Artifact, error)
	Promote(ctx context.Context, key string) error
}

// Options tune engine behavior.
type Options struct {
	Retry                RetryPolicy
	StageTimeout         time.Duration
	PromoteIntermediates bool
}

// Engine executes claimed jobs stage by stage.
type Engine struct {
	jobs        *storage.JobRepository
	store       BlobStore
	transformer Transformer
	opts        Options
}

// NewEngine creates a pipeline engine.
func NewEngine(jobs *storage.JobRepository, store BlobStore, transformer Transformer, opts Options) *Engine {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	return &Engine{jobs: jobs, store: store, transformer: transformer, opts: opts}
}

// Claim takes exclusive ownership of a queued job by performing the
// queued -> processing_video transition. Exactly one of several racing
// workers succeeds; the others get models.ErrTransitionConflict.
func (e *Engine) Claim(ctx context.Context, job *models.Job) error {
	return e.jobs.Transition(ctx, job, models.StageProcessingVideo, ProgressProcessingEntry, "")
}

type stageStep struct {
	from models.Stage
	next models.Stage
	exit int
	run  func(ctx context.Context, job *models.Job) (string, error)
}

// Run executes the pipeline for a claimed job until it reaches a terminal
// stage or this worker loses its claim. It never returns an error: every
// failure ends up recorded on the job itself.
func (e *Engine) Run(ctx context.Context, job *models.Job) {
	steps := []stageStep{
		{models.StageProcessingVideo, models.StageGeneratingAudio, ProgressProcessingExit, e.reformat},
		{models.StageGeneratingAudio, models.StageCombining, ProgressAudioExit, e.synthesize},
		{models.StageCombining, models.StagePublishing, ProgressCombiningExit, e.combine},
	}

	for _, st := range steps {
		if job.Stage != st.from {
			continue
		}
		if !e.advance(ctx, job, st) {
			return
		}
	}

	if job.Stage == models.StagePublishing {
		e.publish(ctx, job)
	}
}

// advance performs one stage's unit of work and commits the transition.
// Returns false when the pipeline must stop (terminal stage or lost claim).
func (e *Engine) advance(ctx context.Context, job *models.Job, st stageStep) bool {
	if e.cancelRequested(ctx, job) {
		e.recordCancelled(ctx, job)
		return false
	}

	outputKey, err := e.attempt(ctx, job, st.run)
	if err != nil {
		e.recordFailure(ctx, job, err)
		return false
	}

	if err := e.jobs.Transition(ctx, job, st.next, st.exit, outputKey); err != nil {
		e.logLostWrite(job, err)
		return false
	}
	log.Printf("Job %s: %s -> %s (%d%%)", job.ID, st.from, st.next, st.exit)
	return true
}

// publish uploads the combined video, then commits completion and promotes
// output artifacts.
func (e *Engine) publish(ctx context.Context, job *models.Job) {
	if e.cancelRequested(ctx, job) {
		e.recordCancelled(ctx, job)
		return
	}

	combinedKey := job.OutputRefs[models.StageCombining]
	url, err := e.attempt(ctx, job, func(ctx context.Context, job *models.Job) (string, error) {
		return e.transformer.Publish(ctx, combinedKey, PublishRequest{
			Title:       job.Title,
			Description: job.Description,
			Tags:        job.Tags,
		})
	})
	if err != nil {
		e.recordFailure(ctx, job, err)
		return
	}

	if err := e.jobs.UpdateProgress(ctx, job, ProgressPublishingExit); err != nil {
		e.logLostWrite(job, err)
		return
	}
	if err := e.jobs.Complete(ctx, job, url); err != nil {
		e.logLostWrite(job, err)
		return
	}
	log.Printf("Job %s: published %s", job.ID, url)

	e.promoteOutputs(ctx, job)
}

// attempt runs one stage's work under the retry policy, applying the
// per-stage timeout to each attempt.
func (e *Engine) attempt(ctx context.Context, job *models.Job, run func(context.Context, *models.Job) (string, error)) (string, error) {
	var result string
	err := e.opts.Retry.Do(ctx, func(ctx context.Context) error {
		if e.opts.StageTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.opts.StageTimeout)
			defer cancel()
		}
		var err error
		result, err = run(ctx, job)
		return err
	})
	return result, err
}

func (e *Engine) reformat(ctx context.Context, job *models.Job) (string, error) {
	return e.transformer.ReformatVideo(ctx, job.Owner, job.VideoKey)
}

func (e *Engine) synthesize(ctx context.Context, job *models.Job) (string, error) {
	rc, _, err := e.store.Get(ctx, job.TranscriptKey)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	transcript := strings.TrimSpace(string(raw))
	if transcript == "" {
		return "", models.RejectedTransform(errors.New("transcript is empty"))
	}
	return e.transformer.SynthesizeSpeech(ctx, job.Owner, transcript, job.Voice)
}

func (e *Engine) combine(ctx context.Context, job *models.Job) (string, error) {
	videoKey := job.OutputRefs[models.StageProcessingVideo]
	audioKey := job.OutputRefs[models.StageGeneratingAudio]
	return e.transformer.Combine(ctx, job.Owner, videoKey, audioKey)
}

// promoteOutputs promotes the final artifact (and, if configured, every
// intermediate) from temporary to permanent. Best effort after the durable
// completion write; anything left temporary ages out through the purger.
func (e *Engine) promoteOutputs(ctx context.Context, job *models.Job) {
	promote := func(key string) {
		if key == "" {
			return
		}
		if err := e.store.Promote(ctx, key); err != nil {
			log.Printf("Job %s: failed to promote artifact %s: %v", job.ID, key, err)
		}
	}

	promote(job.OutputRefs[models.StageCombining])
	if e.opts.PromoteIntermediates {
		promote(job.OutputRefs[models.StageProcessingVideo])
		promote(job.OutputRefs[models.StageGeneratingAudio])
	}
}

func (e *Engine) cancelRequested(ctx context.Context, job *models.Job) bool {
	cancelled, err := e.jobs.CancelRequested(ctx, job.ID)
	if err != nil {
		log.Printf("Job %s: failed to read cancel flag: %v", job.ID, err)
		return false
	}
	return cancelled
}

func (e *Engine) recordCancelled(ctx context.Context, job *models.Job) {
	err := e.jobs.MarkCancelled(ctx, job)
	if err != nil && err != models.ErrTransitionConflict && err != models.ErrJobAlreadyTerminal {
		log.Printf("Job %s: failed to record cancellation: %v", job.ID, err)
		return
	}
	log.Printf("Job %s: cancelled", job.ID)
}

// recordFailure marks the job failed, unless the failure was provoked by a
// cancellation request, in which case the job is cancelled instead.
func (e *Engine) recordFailure(ctx context.Context, job *models.Job, cause error) {
	if e.cancelRequested(ctx, job) {
		e.recordCancelled(ctx, job)
		return
	}

	failingStage := job.Stage
	if err := e.jobs.Fail(ctx, job, models.KindOf(cause), cause.Error()); err != nil {
		e.logLostWrite(job, err)
		return
	}
	log.Printf("Job %s: failed at %s: %v", job.ID, failingStage, cause)
}

// logLostWrite handles a conditional write that did not land: a lost claim is
// expected under racing workers and aborts quietly, everything else is noise
// worth logging.
func (e *Engine) logLostWrite(job *models.Job, err error) {
	switch err {
	case models.ErrTransitionConflict:
		log.Printf("Job %s: claim lost to another worker, aborting", job.ID)
	case models.ErrJobAlreadyTerminal:
		log.Printf("Job %s: already terminal, aborting", job.ID)
	default:
		log.Printf("Job %s: transition write failed: %v", job.ID, err)
	}
}
