package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"shortcast/internal/artifact"
	"shortcast/internal/models"
	"shortcast/internal/storage"
)

type handlerEnv struct {
	jobs    *storage.JobRepository
	store   *artifact.Store
	handler *JobHandler
	echo    *echo.Echo
}

func newHandlerEnv(t *testing.T) *handlerEnv {
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
	return &handlerEnv{
		jobs:    jobs,
		store:   store,
		handler: NewJobHandler(jobs, store),
		echo:    echo.New(),
	}
}

func (env *handlerEnv) putArtifact(t *testing.T, kind models.ContentKind, owner string) string {
	t.Helper()
	a, err := env.store.Put(context.Background(), strings.NewReader("content"),
		kind, models.LifecycleTemporary, owner)
	if err != nil {
		t.Fatalf("put artifact: %v", err)
	}
	return a.Key
}

func (env *handlerEnv) request(method, path, owner, body string) (echo.Context, *httptest.ResponseRecorder) {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if owner != "" {
		req.Header.Set(ownerHeader, owner)
	}
	rec := httptest.NewRecorder()
	return env.echo.NewContext(req, rec), rec
}

func TestCreateJobQueuesIt(t *testing.T) {
	env := newHandlerEnv(t)
	video := env.putArtifact(t, models.KindVideo, "alice")
	transcript := env.putArtifact(t, models.KindTranscript, "alice")

	body := `{"video_key":"` + video + `","transcript_key":"` + transcript + `","title":"my short","voice":"nova"}`
	c, rec := env.request(http.MethodPost, "/api/jobs", "alice", body)
	if err := env.handler.Create(c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var job models.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if job.Stage != models.StageQueued || job.Progress != 0 {
		t.Fatalf("new job = %s %d, want queued 0", job.Stage, job.Progress)
	}
	if job.ID == "" || job.Owner != "alice" {
		t.Fatalf("job identity = %q owner %q", job.ID, job.Owner)
	}
}

func TestCreateJobRejectsMissingArtifact(t *testing.T) {
	env := newHandlerEnv(t)
	transcript := env.putArtifact(t, models.KindTranscript, "alice")

	body := `{"video_key":"no-such-key","transcript_key":"` + transcript + `","title":"t"}`
	c, rec := env.request(http.MethodPost, "/api/jobs", "alice", body)
	if err := env.handler.Create(c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateJobRejectsKindMismatch(t *testing.T) {
	env := newHandlerEnv(t)
	video := env.putArtifact(t, models.KindVideo, "alice")

	// Transcript slot pointed at a video artifact.
	body := `{"video_key":"` + video + `","transcript_key":"` + video + `","title":"t"}`
	c, rec := env.request(http.MethodPost, "/api/jobs", "alice", body)
	if err := env.handler.Create(c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateJobRejectsUnsupportedVoice(t *testing.T) {
	env := newHandlerEnv(t)
	video := env.putArtifact(t, models.KindVideo, "alice")
	transcript := env.putArtifact(t, models.KindTranscript, "alice")

	body := `{"video_key":"` + video + `","transcript_key":"` + transcript + `","title":"t","voice":"robot"}`
	c, rec := env.request(http.MethodPost, "/api/jobs", "alice", body)
	if err := env.handler.Create(c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStatusHidesForeignJobs(t *testing.T) {
	env := newHandlerEnv(t)
	job := &models.Job{Owner: "alice", Title: "t", Voice: "alloy",
		VideoKey: "v", TranscriptKey: "tr"}
	if err := env.jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	c, rec := env.request(http.MethodGet, "/api/jobs/"+job.ID+"/status", "bob", "")
	c.SetParamNames("id")
	c.SetParamValues(job.ID)
	if err := env.handler.Status(c); err != nil {
		t.Fatalf("status: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign job status = %d, want 404", rec.Code)
	}
}

func TestStatusReportsStep(t *testing.T) {
	env := newHandlerEnv(t)
	job := &models.Job{Owner: "alice", Title: "t", Voice: "alloy",
		VideoKey: "v", TranscriptKey: "tr"}
	if err := env.jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := env.jobs.Transition(context.Background(), job, models.StageProcessingVideo, 5, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}

	c, rec := env.request(http.MethodGet, "/api/jobs/"+job.ID+"/status", "alice", "")
	c.SetParamNames("id")
	c.SetParamValues(job.ID)
	if err := env.handler.Status(c); err != nil {
		t.Fatalf("status: %v", err)
	}

	var resp jobStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Stage != models.StageProcessingVideo || resp.Progress != 5 {
		t.Fatalf("status = %s %d", resp.Stage, resp.Progress)
	}
	if resp.CurrentStep == "" {
		t.Fatal("current_step is empty")
	}
}

func TestListPaginatesOwnJobs(t *testing.T) {
	env := newHandlerEnv(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		job := &models.Job{Owner: "alice", Title: "t", Voice: "alloy",
			VideoKey: "v", TranscriptKey: "tr"}
		if err := env.jobs.Create(ctx, job); err != nil {
			t.Fatalf("create job: %v", err)
		}
	}
	foreign := &models.Job{Owner: "bob", Title: "t", Voice: "alloy",
		VideoKey: "v", TranscriptKey: "tr"}
	if err := env.jobs.Create(ctx, foreign); err != nil {
		t.Fatalf("create job: %v", err)
	}

	c, rec := env.request(http.MethodGet, "/api/jobs?page=1&page_size=2", "alice", "")
	if err := env.handler.List(c); err != nil {
		t.Fatalf("list: %v", err)
	}

	var resp jobListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 3 || len(resp.Jobs) != 2 || resp.TotalPages != 2 {
		t.Fatalf("list = total %d, page len %d, pages %d", resp.Total, len(resp.Jobs), resp.TotalPages)
	}
	for _, j := range resp.Jobs {
		if j.Owner != "alice" {
			t.Fatalf("foreign job leaked into listing: %s", j.ID)
		}
	}
}

func TestCancelQueuedJob(t *testing.T) {
	env := newHandlerEnv(t)
	job := &models.Job{Owner: "alice", Title: "t", Voice: "alloy",
		VideoKey: "v", TranscriptKey: "tr"}
	if err := env.jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	c, rec := env.request(http.MethodPost, "/api/jobs/"+job.ID+"/cancel", "alice", "")
	c.SetParamNames("id")
	c.SetParamValues(job.ID)
	if err := env.handler.Cancel(c); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	got, _ := env.jobs.GetByID(context.Background(), job.ID)
	if got.Stage != models.StageCancelled {
		t.Fatalf("stage = %s, want cancelled", got.Stage)
	}
}

func TestCancelCompletedJobConflicts(t *testing.T) {
	env := newHandlerEnv(t)
	ctx := context.Background()
	job := &models.Job{Owner: "alice", Title: "t", Voice: "alloy",
		VideoKey: "v", TranscriptKey: "tr"}
	if err := env.jobs.Create(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	for _, to := range []models.Stage{
		models.StageProcessingVideo, models.StageGeneratingAudio,
		models.StageCombining, models.StagePublishing,
	} {
		if err := env.jobs.Transition(ctx, job, to, 50, ""); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}
	if err := env.jobs.Complete(ctx, job, "https://example.com/v"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	c, rec := env.request(http.MethodPost, "/api/jobs/"+job.ID+"/cancel", "alice", "")
	c.SetParamNames("id")
	c.SetParamValues(job.ID)
	if err := env.handler.Cancel(c); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestMissingOwnerHeaderUnauthorized(t *testing.T) {
	env := newHandlerEnv(t)
	c, rec := env.request(http.MethodGet, "/api/jobs", "", "")
	if err := env.handler.List(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
