package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"shortcast/internal/models"
)

// JobRepository is the data access layer for jobs. All stage mutations go
// through conditional single-row updates keyed on the current stage, so two
// workers racing to advance the same job cannot both succeed.
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, owner, stage, progress, title, description, voice, tags,
	video_key, transcript_key, output_refs, error_kind, error_stage, error_message,
	published_url, cancel_requested, created_at, updated_at, completed_at`

// Create inserts a new job in the queued stage.
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	job.Stage = models.StageQueued
	job.Progress = 0
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Voice == "" {
		job.Voice = "alloy"
	}
	if job.OutputRefs == nil {
		job.OutputRefs = map[models.Stage]string{}
	}

	tags, err := json.Marshal(job.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, owner, stage, progress, title, description, voice, tags,
			video_key, transcript_key, output_refs, published_url, cancel_requested,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '{}', '', 0, ?, ?)`,
		job.ID, job.Owner, job.Stage, job.Progress, job.Title, job.Description,
		job.Voice, string(tags), job.VideoKey, job.TranscriptKey,
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// GetByID returns the job with the given id, or nil if it does not exist.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// NextQueued returns the oldest queued job, or nil if the queue is empty.
func (r *JobRepository) NextQueued(ctx context.Context) (*models.Job, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE stage = ? AND cancel_requested = 0
		ORDER BY created_at, id
		LIMIT 1`, models.StageQueued)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListStale returns in-flight jobs (claimed but not terminal) whose last
// durable write happened before the cutoff. These are jobs whose worker died
// mid-pipeline and that need to be reclaimed.
func (r *JobRepository) ListStale(ctx context.Context, cutoff time.Time) ([]models.Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE stage IN (?, ?, ?, ?) AND updated_at < ?
		ORDER BY updated_at, id`,
		models.StageProcessingVideo, models.StageGeneratingAudio,
		models.StageCombining, models.StagePublishing, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Reclaim takes over a stale in-flight job by bumping updated_at, conditional
// on both the stage and the updated_at the caller observed. The timestamp
// acts as the claim token: of several workers reclaiming the same job,
// exactly one sees its write land; the rest get ErrTransitionConflict.
func (r *JobRepository) Reclaim(ctx context.Context, job *models.Job) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET updated_at = ?
		WHERE id = ? AND stage = ? AND updated_at = ?`,
		now, job.ID, job.Stage, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to reclaim job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.resolveConflict(ctx, job.ID)
	}
	job.UpdatedAt = now
	return nil
}

// Transition advances job from its current stage to the given stage, updating
// progress and (when outputKey is non-empty) recording the artifact the
// exiting stage produced. The stage change must be a legal edge of the state
// machine; a terminal snapshot is rejected outright. The write is conditional
// on the stage the caller observed; on conflict the job is re-read to tell
// ErrJobAlreadyTerminal from ErrTransitionConflict. On success the in-memory
// job is updated in place.
func (r *JobRepository) Transition(ctx context.Context, job *models.Job, to models.Stage, progress int, outputKey string) error {
	if job.Stage.Terminal() {
		return models.ErrJobAlreadyTerminal
	}
	if !job.Stage.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, job.Stage, to)
	}

	refs := make(map[models.Stage]string, len(job.OutputRefs)+1)
	for k, v := range job.OutputRefs {
		refs[k] = v
	}
	if outputKey != "" {
		refs[job.Stage] = outputKey
	}
	refsJSON, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("failed to encode output refs: %w", err)
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET stage = ?, progress = ?, output_refs = ?, updated_at = ?
		WHERE id = ? AND stage = ?`,
		to, progress, string(refsJSON), now, job.ID, job.Stage)
	if err != nil {
		return fmt.Errorf("failed to transition job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.resolveConflict(ctx, job.ID)
	}

	job.Stage = to
	job.Progress = progress
	job.OutputRefs = refs
	job.UpdatedAt = now
	return nil
}

// UpdateProgress raises the progress of a job without changing its stage.
// Conditional on the observed stage like Transition.
func (r *JobRepository) UpdateProgress(ctx context.Context, job *models.Job, progress int) error {
	if job.Stage.Terminal() {
		return models.ErrJobAlreadyTerminal
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET progress = ?, updated_at = ?
		WHERE id = ? AND stage = ?`,
		progress, now, job.ID, job.Stage)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.resolveConflict(ctx, job.ID)
	}
	job.Progress = progress
	job.UpdatedAt = now
	return nil
}

// Complete moves job to the completed stage and records the published URL.
// Only legal from the publishing stage.
func (r *JobRepository) Complete(ctx context.Context, job *models.Job, publishedURL string) error {
	if job.Stage.Terminal() {
		return models.ErrJobAlreadyTerminal
	}
	if !job.Stage.CanTransitionTo(models.StageCompleted) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, job.Stage, models.StageCompleted)
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET stage = ?, progress = 100, published_url = ?,
			updated_at = ?, completed_at = ?
		WHERE id = ? AND stage = ?`,
		models.StageCompleted, publishedURL, now, now, job.ID, job.Stage)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.resolveConflict(ctx, job.ID)
	}
	job.Stage = models.StageCompleted
	job.Progress = 100
	job.PublishedURL = publishedURL
	job.UpdatedAt = now
	job.CompletedAt = &now
	return nil
}

// Fail moves job to the failed stage, recording the failing stage and kind.
func (r *JobRepository) Fail(ctx context.Context, job *models.Job, kind, message string) error {
	if job.Stage.Terminal() {
		return models.ErrJobAlreadyTerminal
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET stage = ?, error_kind = ?, error_stage = ?, error_message = ?,
			updated_at = ?, completed_at = ?
		WHERE id = ? AND stage = ?`,
		models.StageFailed, kind, job.Stage, message, now, now, job.ID, job.Stage)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.resolveConflict(ctx, job.ID)
	}
	job.Error = &models.JobError{Kind: kind, Stage: job.Stage, Message: message}
	job.Stage = models.StageFailed
	job.UpdatedAt = now
	job.CompletedAt = &now
	return nil
}

// MarkCancelled moves job to the cancelled stage.
func (r *JobRepository) MarkCancelled(ctx context.Context, job *models.Job) error {
	if job.Stage.Terminal() {
		return models.ErrJobAlreadyTerminal
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET stage = ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND stage = ?`,
		models.StageCancelled, now, now, job.ID, job.Stage)
	if err != nil {
		return fmt.Errorf("failed to mark job cancelled: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.resolveConflict(ctx, job.ID)
	}
	job.Stage = models.StageCancelled
	job.UpdatedAt = now
	job.CompletedAt = &now
	return nil
}

// RequestCancel flags a non-terminal job owned by owner for cancellation.
// A job still sitting in the queue is cancelled on the spot; a running job is
// picked up by its worker at the next stage boundary. Returns the job as last
// read, models.ErrNotFound if absent or foreign, models.ErrJobAlreadyTerminal
// if it already finished.
func (r *JobRepository) RequestCancel(ctx context.Context, id, owner string) (*models.Job, error) {
	job, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil || job.Owner != owner {
		return nil, models.ErrNotFound
	}
	if job.Stage.Terminal() {
		return nil, models.ErrJobAlreadyTerminal
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET cancel_requested = 1, updated_at = ?
		WHERE id = ? AND stage NOT IN (?, ?, ?)`,
		time.Now().UTC(), id,
		models.StageCompleted, models.StageFailed, models.StageCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to request cancel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, models.ErrJobAlreadyTerminal
	}
	job.CancelRequested = true

	// Queued jobs have no worker to notice the flag.
	if job.Stage == models.StageQueued {
		if err := r.MarkCancelled(ctx, job); err != nil && err != models.ErrTransitionConflict {
			return nil, err
		}
	}
	return job, nil
}

// CancelRequested reports whether cancellation was requested for the job.
func (r *JobRepository) CancelRequested(ctx context.Context, id string) (bool, error) {
	var flag int
	err := r.db.QueryRowContext(ctx,
		`SELECT cancel_requested FROM jobs WHERE id = ?`, id).Scan(&flag)
	if err == sql.ErrNoRows {
		return false, models.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return flag == 1, nil
}

// ListOptions selects and pages a job listing.
type ListOptions struct {
	Owner    string
	Stage    models.Stage // optional filter
	Page     int          // 1-based
	PageSize int
	Sort     string // "created_at_asc" (default) or "created_at_desc"
}

// List returns one page of the owner's jobs plus the total count. Rows are
// ordered by (created_at, id) so pages stay stable while new jobs are being
// inserted concurrently.
func (r *JobRepository) List(ctx context.Context, opts ListOptions) ([]models.Job, int, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 || opts.PageSize > 100 {
		opts.PageSize = 20
	}

	where := `WHERE owner = ?`
	args := []interface{}{opts.Owner}
	if opts.Stage != "" {
		where += ` AND stage = ?`
		args = append(args, opts.Stage)
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := `ORDER BY created_at, id`
	if opts.Sort == "created_at_desc" {
		order = `ORDER BY created_at DESC, id DESC`
	}

	args = append(args, opts.PageSize, (opts.Page-1)*opts.PageSize)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs `+where+` `+order+` LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, total, rows.Err()
}

// CountByStage returns job counts grouped by stage.
func (r *JobRepository) CountByStage(ctx context.Context) (map[models.Stage]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT stage, COUNT(*) FROM jobs GROUP BY stage`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.Stage]int64)
	for rows.Next() {
		var stage models.Stage
		var count int64
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, err
		}
		counts[stage] = count
	}
	return counts, rows.Err()
}

// Delete removes a job row. The pipeline never calls this; it exists for the
// admin CLI.
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	return err
}

// resolveConflict classifies a conditional update that matched no rows.
func (r *JobRepository) resolveConflict(ctx context.Context, id string) error {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return models.ErrNotFound
	}
	if current.Stage.Terminal() {
		return models.ErrJobAlreadyTerminal
	}
	return models.ErrTransitionConflict
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var tags, refs string
	var errKind, errStage, errMessage sql.NullString
	var cancelRequested int
	var completedAt sql.NullTime

	err := row.Scan(&job.ID, &job.Owner, &job.Stage, &job.Progress, &job.Title,
		&job.Description, &job.Voice, &tags, &job.VideoKey, &job.TranscriptKey,
		&refs, &errKind, &errStage, &errMessage, &job.PublishedURL,
		&cancelRequested, &job.CreatedAt, &job.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &job.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	if err := json.Unmarshal([]byte(refs), &job.OutputRefs); err != nil {
		return nil, fmt.Errorf("failed to decode output refs: %w", err)
	}
	if errKind.Valid {
		job.Error = &models.JobError{
			Kind:    errKind.String,
			Stage:   models.Stage(errStage.String),
			Message: errMessage.String,
		}
	}
	job.CancelRequested = cancelRequested == 1
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}
