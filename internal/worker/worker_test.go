package worker

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"shortcast/internal/artifact"
	"shortcast/internal/models"
	"shortcast/internal/pipeline"
	"shortcast/internal/storage"
)

// stubTransformer satisfies pipeline.Transformer with stored stand-in
// artifacts, counting how much pipeline work actually ran.
type stubTransformer struct {
	store *artifact.Store

	mu            sync.Mutex
	transformRuns int
	publishRuns   int
}

func (s *stubTransformer) put(ctx context.Context, kind models.ContentKind, owner string) (string, error) {
	s.mu.Lock()
	s.transformRuns++
	s.mu.Unlock()
	a, err := s.store.Put(ctx, strings.NewReader("output"), kind, models.LifecycleTemporary, owner)
	if err != nil {
		return "", err
	}
	return a.Key, nil
}

func (s *stubTransformer) ReformatVideo(ctx context.Context, owner, videoKey string) (string, error) {
	return s.put(ctx, models.KindVideo, owner)
}

func (s *stubTransformer) SynthesizeSpeech(ctx context.Context, owner, text, voice string) (string, error) {
	return s.put(ctx, models.KindAudio, owner)
}

func (s *stubTransformer) Combine(ctx context.Context, owner, videoKey, audioKey string) (string, error) {
	return s.put(ctx, models.KindCombinedVideo, owner)
}

func (s *stubTransformer) Publish(ctx context.Context, videoKey string, req pipeline.PublishRequest) (string, error) {
	s.mu.Lock()
	s.publishRuns++
	s.mu.Unlock()
	return "https://www.youtube.com/shorts/test123", nil
}

type poolEnv struct {
	db   *storage.DB
	jobs *storage.JobRepository
	stub *stubTransformer
	pool *Pool
}

func newPoolEnv(t *testing.T) *poolEnv {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	jobs := storage.NewJobRepository(db)
	arts := storage.NewArtifactRepository(db)
	store := artifact.NewStore(arts, dir, "http://localhost:8080", "test-secret", time.Hour)
	stub := &stubTransformer{store: store}
	engine := pipeline.NewEngine(jobs, store, stub, pipeline.Options{})
	return &poolEnv{
		db:   db,
		jobs: jobs,
		stub: stub,
		pool: NewPool(jobs, engine, 1, time.Hour, time.Minute),
	}
}

// claimedJob creates a job and claims it into processing_video, as a worker
// that subsequently died would have.
func (env *poolEnv) claimedJob(t *testing.T) *models.Job {
	t.Helper()
	ctx := context.Background()

	transcript, err := env.stub.store.Put(ctx, strings.NewReader("narration"),
		models.KindTranscript, models.LifecycleTemporary, "alice")
	if err != nil {
		t.Fatalf("put transcript: %v", err)
	}
	video, err := env.stub.store.Put(ctx, strings.NewReader("raw video"),
		models.KindVideo, models.LifecycleTemporary, "alice")
	if err != nil {
		t.Fatalf("put video: %v", err)
	}

	job := &models.Job{
		Owner:         "alice",
		Title:         "my short",
		Voice:         "alloy",
		VideoKey:      video.Key,
		TranscriptKey: transcript.Key,
	}
	if err := env.jobs.Create(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := env.jobs.Transition(ctx, job, models.StageProcessingVideo, 5, ""); err != nil {
		t.Fatalf("claim: %v", err)
	}
	env.stub.mu.Lock()
	env.stub.transformRuns = 0
	env.stub.mu.Unlock()
	return job
}

func (env *poolEnv) backdate(t *testing.T, id string) {
	t.Helper()
	past := time.Now().UTC().Add(-time.Hour)
	if _, err := env.db.ExecContext(context.Background(),
		`UPDATE jobs SET updated_at = ? WHERE id = ?`, past, id); err != nil {
		t.Fatalf("backdate: %v", err)
	}
}

func TestReclaimResumesStrandedJob(t *testing.T) {
	env := newPoolEnv(t)
	job := env.claimedJob(t)
	env.backdate(t, job.ID)

	env.pool.reclaimStale(context.Background())

	got, _ := env.jobs.GetByID(context.Background(), job.ID)
	if got.Stage != models.StageCompleted || got.Progress != 100 {
		t.Fatalf("stranded job not finished: %s %d", got.Stage, got.Progress)
	}
	if env.stub.publishRuns != 1 {
		t.Fatalf("publish ran %d times", env.stub.publishRuns)
	}
}

func TestReclaimFinalizesCancelRequested(t *testing.T) {
	env := newPoolEnv(t)
	job := env.claimedJob(t)

	// The owner cancelled while the job's worker was already dead.
	if _, err := env.jobs.RequestCancel(context.Background(), job.ID, "alice"); err != nil {
		t.Fatalf("request cancel: %v", err)
	}
	env.backdate(t, job.ID)

	env.pool.reclaimStale(context.Background())

	got, _ := env.jobs.GetByID(context.Background(), job.ID)
	if got.Stage != models.StageCancelled {
		t.Fatalf("stage = %s, want cancelled", got.Stage)
	}
	if env.stub.transformRuns != 0 || env.stub.publishRuns != 0 {
		t.Fatal("pipeline work ran for a cancelled job")
	}
}

func TestReclaimIgnoresFreshJobs(t *testing.T) {
	env := newPoolEnv(t)
	job := env.claimedJob(t)

	env.pool.reclaimStale(context.Background())

	got, _ := env.jobs.GetByID(context.Background(), job.ID)
	if got.Stage != models.StageProcessingVideo {
		t.Fatalf("fresh in-flight job was touched: %s", got.Stage)
	}
	if env.stub.transformRuns != 0 {
		t.Fatalf("pipeline work ran %d times for a live job", env.stub.transformRuns)
	}
}
