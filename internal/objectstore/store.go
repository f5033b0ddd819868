package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/envsync/envsync/internal/paths"
)

// Upload retry policy: three attempts, one second apart.
const (
	DefaultUploadAttempts = 3
	DefaultRetryInterval  = time.Second
)

// Store reads and writes data files in one bucket.
type Store struct {
	client   Client
	bucket   string
	logger   *slog.Logger
	attempts int
	interval time.Duration
}

// New creates a Store over client for bucket.
func New(client Client, bucket string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client:   client,
		bucket:   bucket,
		logger:   logger,
		attempts: DefaultUploadAttempts,
		interval: DefaultRetryInterval,
	}
}

// Bucket returns the bucket name.
func (s *Store) Bucket() string {
	return s.bucket
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	return s.client.HeadObject(ctx, s.bucket, key)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	body, err := s.client.GetObject(ctx, s.bucket, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	return s.retry(ctx, key, func() error {
		return s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data))
	})
}

// Delete removes every version of key. A key without version history is
// deleted plainly.
func (s *Store) Delete(ctx context.Context, key string) error {
	versions, err := s.ListVersions(ctx, key)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return s.client.DeleteObject(ctx, s.bucket, key, "")
	}
	for _, v := range versions {
		if err := s.client.DeleteObject(ctx, s.bucket, key, v.VersionID); err != nil {
			return err
		}
		s.logger.Debug("deleted object version", "key", key, "version", v.VersionID)
	}
	return nil
}

// ListVersions returns the versions of exactly key.
func (s *Store) ListVersions(ctx context.Context, key string) ([]ObjectVersion, error) {
	all, err := s.client.ListObjectVersions(ctx, s.bucket, key)
	if err != nil {
		return nil, err
	}
	var out []ObjectVersion
	for _, v := range all {
		if v.Key == key {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	return s.client.ListObjects(ctx, s.bucket, prefix)
}

// PutFile uploads the file at path to key, replacing any earlier versions.
func (s *Store) PutFile(ctx context.Context, key, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("uploading %s: %w", path, err)
	}
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		s.logger.Debug("deleting pre-existing remote file", "key", key)
		if err := s.Delete(ctx, key); err != nil {
			return err
		}
	}

	return s.retry(ctx, key, func() error {
		f, err := os.Open(path)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer f.Close()
		return s.client.PutObject(ctx, s.bucket, key, f)
	})
}

// GetFile downloads key to path. The file appears only once complete.
func (s *Store) GetFile(ctx context.Context, key, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	body, err := s.client.GetObject(ctx, s.bucket, key)
	if err != nil {
		return err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".part*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("downloading %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *Store) retry(ctx context.Context, key string, op func() error) error {
	var b backoff.BackOff = backoff.NewConstantBackOff(s.interval)
	b = backoff.WithMaxRetries(b, uint64(s.attempts-1))
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		return op()
	}, backoff.WithContext(b, ctx), func(err error, _ time.Duration) {
		s.logger.Warn("upload failed, retrying", "key", key, "attempt", attempt, "max", s.attempts, "error", err)
	})
	if err != nil {
		return fmt.Errorf("uploading %s after %d attempts: %w", key, attempt, err)
	}
	return nil
}

// PullTables downloads the data files of tables that are not cached
// locally. Tables without a remote file are logged and skipped. It returns
// the tables downloaded.
func (s *Store) PullTables(ctx context.Context, layout paths.Layout, tables []string) ([]string, error) {
	remote, err := s.List(ctx, layout.ObjectPrefix())
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(remote))
	for _, k := range remote {
		present[k] = true
	}

	var pulled []string
	for _, t := range tables {
		local := layout.ExportFile(t)
		if layout.Exists(t) {
			s.logger.Debug("reusing cached data file", "table", t, "file", local)
			continue
		}
		key := layout.ObjectKey(t)
		if !present[key] {
			s.logger.Warn("no remote data file", "table", t, "key", key)
			continue
		}
		if err := s.GetFile(ctx, key, local); err != nil {
			return pulled, fmt.Errorf("pulling %s: %w", t, err)
		}
		s.logger.Info("pulled data file", "table", t, "key", key)
		pulled = append(pulled, t)
	}
	return pulled, nil
}

// PushTables uploads the local data files of tables.
func (s *Store) PushTables(ctx context.Context, layout paths.Layout, tables []string) error {
	for _, t := range tables {
		if !layout.Exists(t) {
			s.logger.Warn("no local data file to upload", "table", t)
			continue
		}
		key := layout.ObjectKey(t)
		if err := s.PutFile(ctx, key, layout.ExportFile(t)); err != nil {
			return fmt.Errorf("pushing %s: %w", t, err)
		}
		s.logger.Info("pushed data file", "table", t, "key", key)
	}
	return nil
}
