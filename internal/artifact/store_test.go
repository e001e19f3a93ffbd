package artifact

import (
	"context"
	"io"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"shortcast/internal/models"
	"shortcast/internal/storage"
)

func newTestStore(t *testing.T, retention time.Duration) *Store {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := storage.NewArtifactRepository(db)
	return NewStore(repo, dir, "http://localhost:8080", "test-secret", retention)
}

func mustPut(t *testing.T, s *Store, content string, kind models.ContentKind, lifecycle models.Lifecycle) *models.Artifact {
	t.Helper()
	a, err := s.Put(context.Background(), strings.NewReader(content), kind, lifecycle, "alice")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	return a
}

func TestPutAndGet(t *testing.T) {
	s := newTestStore(t, time.Hour)
	ctx := context.Background()

	a := mustPut(t, s, "hello transcript", models.KindTranscript, models.LifecycleTemporary)
	if a.Key == "" {
		t.Fatal("expected generated key")
	}
	if a.SizeBytes != int64(len("hello transcript")) {
		t.Fatalf("size = %d", a.SizeBytes)
	}

	rc, meta, err := s.Get(ctx, a.Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(content) != "hello transcript" {
		t.Fatalf("content = %q", content)
	}
	if meta.Kind != models.KindTranscript || meta.Lifecycle != models.LifecycleTemporary {
		t.Fatalf("metadata: %+v", meta)
	}
}

func TestGetUnknownKey(t *testing.T) {
	s := newTestStore(t, time.Hour)

	_, _, err := s.Get(context.Background(), "missing")
	if err != models.ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestExpiredTemporaryNotFound(t *testing.T) {
	s := newTestStore(t, time.Millisecond)
	ctx := context.Background()

	a := mustPut(t, s, "short lived", models.KindTranscript, models.LifecycleTemporary)
	time.Sleep(5 * time.Millisecond)

	if _, err := s.Stat(ctx, a.Key); err != models.ErrNotFound {
		t.Fatalf("expired temporary: got %v, want ErrNotFound", err)
	}
}

func TestPromote(t *testing.T) {
	s := newTestStore(t, time.Millisecond)
	ctx := context.Background()

	a := mustPut(t, s, "keep me", models.KindCombinedVideo, models.LifecycleTemporary)
	if err := s.Promote(ctx, a.Key); err != nil {
		t.Fatalf("promote: %v", err)
	}
	// Idempotent on an already permanent artifact.
	if err := s.Promote(ctx, a.Key); err != nil {
		t.Fatalf("second promote: %v", err)
	}
	if err := s.Promote(ctx, "missing"); err != models.ErrNotFound {
		t.Fatalf("promote missing: got %v, want ErrNotFound", err)
	}

	// Promotion exempts the artifact from the retention window.
	time.Sleep(5 * time.Millisecond)
	meta, err := s.Stat(ctx, a.Key)
	if err != nil {
		t.Fatalf("stat after promote: %v", err)
	}
	if meta.Lifecycle != models.LifecyclePermanent {
		t.Fatalf("lifecycle = %s", meta.Lifecycle)
	}
}

func TestPresignAndVerify(t *testing.T) {
	s := newTestStore(t, time.Hour)
	ctx := context.Background()

	a := mustPut(t, s, "video bytes", models.KindVideo, models.LifecycleTemporary)

	signed, err := s.Presign(ctx, a.Key, time.Minute)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}

	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	expires, err := strconv.ParseInt(u.Query().Get("expires"), 10, 64)
	if err != nil {
		t.Fatalf("parse expires: %v", err)
	}
	sig := u.Query().Get("sig")

	if !s.VerifySignature(a.Key, expires, sig) {
		t.Fatal("valid signature rejected")
	}
	if s.VerifySignature("other-key", expires, sig) {
		t.Fatal("signature accepted for wrong key")
	}
	if s.VerifySignature(a.Key, time.Now().Add(-time.Minute).Unix(), sig) {
		t.Fatal("expired signature accepted")
	}

	if _, err := s.Presign(ctx, "missing", time.Minute); err != models.ErrNotFound {
		t.Fatalf("presign missing: got %v, want ErrNotFound", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	s := newTestStore(t, time.Hour)
	ctx := context.Background()

	temp := mustPut(t, s, "temp", models.KindAudio, models.LifecycleTemporary)
	perm := mustPut(t, s, "perm", models.KindCombinedVideo, models.LifecyclePermanent)

	deleted := s.PurgeExpired(ctx, time.Now().Add(time.Minute))
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	if _, err := s.Stat(ctx, temp.Key); err != models.ErrNotFound {
		t.Fatalf("temporary should be gone, got %v", err)
	}
	if _, err := s.Stat(ctx, perm.Key); err != nil {
		t.Fatalf("permanent should survive purge: %v", err)
	}

	// Nothing left to purge.
	if deleted := s.PurgeExpired(ctx, time.Now().Add(time.Minute)); deleted != 0 {
		t.Fatalf("second purge deleted %d", deleted)
	}
}
