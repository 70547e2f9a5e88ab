// Package artifact stores serialized model artifacts durably.
//
// Two backends are provided: FileStore keeps a single artifact file that is replaced
// atomically, and BoltStore keeps every saved run in a bbolt database together with
// a pointer to the latest one.
package artifact

import (
	"context"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/holdout/pkg/errors"
)

// ErrNotFound is returned by Get when the requested artifact does not exist.
var ErrNotFound = errors.New("artifact not found")

// Store persists artifacts produced by training runs.
type Store interface {
	// Put saves data for runID and returns a description of where it went.
	Put(ctx context.Context, runID string, data []byte) (string, error)
	// Get returns the artifact of runID, or the latest one when runID is empty.
	Get(ctx context.Context, runID string) ([]byte, error)
	// Backend names the storage kind, e.g. "file" or "bolt".
	Backend() string
	Close() error
}

// FileStore writes the artifact to one path, replacing it on every Put.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path. Parent directories are created on Put.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Open returns the store for a configured backend: "file", "bolt" or "none". For
// "none" it returns a nil Store and no error.
func Open(backend, path, name string) (Store, error) {
	switch backend {
	case "none":
		return nil, nil
	case "file":
		return NewFileStore(path), nil
	case "bolt":
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrapf(err, "create artifact directory for %s", path)
		}
		bs, err := OpenBoltStore(path, name)
		if err != nil {
			return nil, err
		}
		return bs, nil
	default:
		return nil, errors.NewValidationError("backend", "must be file, bolt or none", backend)
	}
}

func (s *FileStore) Backend() string { return "file" }
func (s *FileStore) Close() error    { return nil }

// Put writes data to a temporary file in the target directory and renames it over
// the destination, so readers never observe a partial artifact. runID is not part
// of the file name.
func (s *FileStore) Put(ctx context.Context, runID string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create artifact directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return "", errors.Wrapf(err, "create temporary artifact in %s", dir)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return "", errors.Wrapf(err, "write artifact %s", s.path)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return "", errors.Wrapf(err, "sync artifact %s", s.path)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", errors.Wrapf(err, "close artifact %s", s.path)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return "", errors.Wrapf(err, "replace artifact %s", s.path)
	}
	return s.path, nil
}

// Get reads the artifact file; runID is ignored as only the latest is kept.
func (s *FileStore) Get(ctx context.Context, runID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s", s.path)
		}
		return nil, errors.Wrapf(err, "read artifact %s", s.path)
	}
	return data, nil
}
