// Package artifact implements the blob store backing the pipeline: bytes on
// disk under the data directory, metadata in SQLite, with temporary vs
// permanent retention classes and HMAC-signed retrieval URLs.
package artifact

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"shortcast/internal/models"
	"shortcast/internal/storage"
)

// Store provides put/get/presign/promote/purge over stored blobs.
type Store struct {
	repo      *storage.ArtifactRepository
	dataDir   string
	baseURL   string
	secret    []byte
	retention time.Duration
}

// NewStore creates a blob store rooted at dataDir.
func NewStore(repo *storage.ArtifactRepository, dataDir, baseURL, secret string, retention time.Duration) *Store {
	return &Store{
		repo:      repo,
		dataDir:   dataDir,
		baseURL:   baseURL,
		secret:    []byte(secret),
		retention: retention,
	}
}

var kindExtensions = map[models.ContentKind]string{
	models.KindVideo:         ".mp4",
	models.KindTranscript:    ".txt",
	models.KindAudio:         ".mp3",
	models.KindCombinedVideo: ".mp4",
}

// Put stores the content read from r and returns its metadata record.
// Every call creates a new key. Transport and disk failures surface as
// models.ErrStorageUnavailable.
func (s *Store) Put(ctx context.Context, r io.Reader, kind models.ContentKind, lifecycle models.Lifecycle, owner string) (*models.Artifact, error) {
	key := uuid.New().String()
	dir := filepath.Join(s.dataDir, "artifacts")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	path := filepath.Join(dir, key+kindExtensions[kind])
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	a := &models.Artifact{
		Key:       key,
		Owner:     owner,
		Kind:      kind,
		Lifecycle: lifecycle,
		SizeBytes: size,
		Path:      path,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	return a, nil
}

// Get opens the stored content for key. Returns models.ErrNotFound if the
// key is absent or its temporary retention window has elapsed.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, *models.Artifact, error) {
	a, err := s.Stat(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(a.Path)
	if os.IsNotExist(err) {
		return nil, nil, models.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	return f, a, nil
}

// Stat returns the metadata for key, applying the same expiry rule as Get.
func (s *Store) Stat(ctx context.Context, key string) (*models.Artifact, error) {
	a, err := s.repo.GetByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	if a == nil {
		return nil, models.ErrNotFound
	}
	if a.Lifecycle == models.LifecycleTemporary && s.retention > 0 &&
		time.Since(a.CreatedAt) > s.retention {
		return nil, models.ErrNotFound
	}
	return a, nil
}

// Resolve returns the local filesystem path of the stored content.
func (s *Store) Resolve(ctx context.Context, key string) (string, *models.Artifact, error) {
	a, err := s.Stat(ctx, key)
	if err != nil {
		return "", nil, err
	}
	if _, err := os.Stat(a.Path); os.IsNotExist(err) {
		return "", nil, models.ErrNotFound
	} else if err != nil {
		return "", nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	return a.Path, a, nil
}

// Promote changes key's lifecycle to permanent; a no-op if already permanent.
func (s *Store) Promote(ctx context.Context, key string) error {
	err := s.repo.Promote(ctx, key)
	if err == models.ErrNotFound {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	return nil
}

// Presign returns a time-limited direct-access URL for key.
func (s *Store) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if _, err := s.Stat(ctx, key); err != nil {
		return "", err
	}
	expires := time.Now().Add(ttl).Unix()
	sig := s.sign(key, expires)
	return fmt.Sprintf("%s/api/artifacts/%s/download?expires=%d&sig=%s",
		s.baseURL, key, expires, sig), nil
}

// VerifySignature checks a presigned request's expiry and signature.
func (s *Store) VerifySignature(key string, expires int64, sig string) bool {
	if time.Now().Unix() > expires {
		return false
	}
	expected := s.sign(key, expires)
	return hmac.Equal([]byte(expected), []byte(sig))
}

func (s *Store) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(key + ":" + strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// PurgeExpired deletes temporary artifacts created before the cutoff and
// returns how many were removed. Per-object failures are logged and skipped;
// the sweep itself never fails the caller.
func (s *Store) PurgeExpired(ctx context.Context, olderThan time.Time) int {
	expired, err := s.repo.ListExpired(ctx, olderThan)
	if err != nil {
		log.Printf("Purge scan failed: %v", err)
		return 0
	}

	deleted := 0
	for _, a := range expired {
		if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
			log.Printf("Purge: failed to remove blob %s: %v", a.Key, err)
			continue
		}
		if err := s.repo.Delete(ctx, a.Key); err != nil {
			log.Printf("Purge: failed to remove record %s: %v", a.Key, err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		log.Printf("Purge: removed %d expired temporary artifacts", deleted)
	}
	return deleted
}
