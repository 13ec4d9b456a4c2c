package rangesource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/abczzz13/cfrealip"
)

// FileStore keeps the snapshot in a local JSON file.
//
// Save writes a temporary file in the same directory and renames it over the
// target, so readers never observe a half-written snapshot.
type FileStore struct {
	path string
	perm fs.FileMode
}

// NewFileStore returns a store for the snapshot file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: filepath.Clean(path), perm: 0o644}
}

// Path returns the snapshot file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads and decodes the snapshot file.
func (s *FileStore) Load(ctx context.Context) (*cfrealip.RangeSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, s.path)
		}
		return nil, fmt.Errorf("read range snapshot %s: %w", s.path, err)
	}

	set, err := DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}

	return set, nil
}

// Save atomically replaces the snapshot file with set.
func (s *FileStore) Save(ctx context.Context, set *cfrealip.RangeSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := EncodeSnapshot(set)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temporary snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once the rename succeeded
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temporary snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temporary snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temporary snapshot: %w", err)
	}
	if err := os.Chmod(tmpName, s.perm); err != nil {
		return fmt.Errorf("chmod temporary snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace range snapshot %s: %w", s.path, err)
	}

	return nil
}

// Watch calls fn with the decoded snapshot every time the file is created or
// rewritten, until ctx is done.
//
// The parent directory is watched rather than the file itself so that
// rename-based replacement keeps being observed.
func (s *FileStore) Watch(ctx context.Context, fn WatchFunc) error {
	if fn == nil {
		return errors.New("watch callback cannot be nil")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create snapshot watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch snapshot directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("snapshot watcher closed unexpectedly")
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			set, err := s.Load(ctx)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			fn(set, err)
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("snapshot watcher closed unexpectedly")
			}
			fn(nil, fmt.Errorf("snapshot watcher: %w", err))
		}
	}
}
