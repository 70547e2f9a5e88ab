package artifact

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/YuminosukeSato/holdout/core/model"
	"github.com/YuminosukeSato/holdout/pkg/errors"
)

const (
	artifactsBucket = "artifacts"
	runsBucket      = "runs"
	latestKey       = "latest"
)

// BoltStore keeps every run of a named model in a bbolt database. The layout is
// artifacts/<name>/runs/<run-id> holding the artifact bytes and
// artifacts/<name>/latest holding the newest run id.
type BoltStore struct {
	db   *bbolt.DB
	path string
	name string
}

// Entry describes one stored run.
type Entry struct {
	RunID     string
	Size      int
	Algorithm string
	CreatedAt time.Time
	Latest    bool
}

// OpenBoltStore opens or creates the database at path for the model called name.
func OpenBoltStore(path, name string) (*BoltStore, error) {
	if name == "" {
		return nil, errors.NewValidationError("name", "must not be empty", name)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open artifact database %s", path)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists([]byte(artifactsBucket))
		if err != nil {
			return fmt.Errorf("create artifacts bucket: %w", err)
		}
		b, err := root.CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return fmt.Errorf("create %s bucket: %w", name, err)
		}
		if _, err := b.CreateBucketIfNotExists([]byte(runsBucket)); err != nil {
			return fmt.Errorf("create runs bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.WithStack(err)
	}
	return &BoltStore{db: db, path: path, name: name}, nil
}

func (s *BoltStore) Backend() string { return "bolt" }

// Close closes the database.
func (s *BoltStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *BoltStore) modelBucket(tx *bbolt.Tx) *bbolt.Bucket {
	return tx.Bucket([]byte(artifactsBucket)).Bucket([]byte(s.name))
}

// Put stores data under runID and moves the latest pointer to it.
func (s *BoltStore) Put(ctx context.Context, runID string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if runID == "" || runID == latestKey {
		return "", errors.NewValidationError("runID", "must be a non-empty id other than \"latest\"", runID)
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := s.modelBucket(tx)
		if err := b.Bucket([]byte(runsBucket)).Put([]byte(runID), data); err != nil {
			return fmt.Errorf("store run %s: %w", runID, err)
		}
		return b.Put([]byte(latestKey), []byte(runID))
	})
	if err != nil {
		return "", errors.WithStack(err)
	}
	return fmt.Sprintf("%s#%s/%s", s.path, s.name, runID), nil
}

// Get returns the artifact of runID, or of the latest run when runID is empty.
func (s *BoltStore) Get(ctx context.Context, runID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := s.modelBucket(tx)
		id := runID
		if id == "" || id == latestKey {
			latest := b.Get([]byte(latestKey))
			if latest == nil {
				return errors.Wrapf(ErrNotFound, "%s has no runs", s.name)
			}
			id = string(latest)
		}
		v := b.Bucket([]byte(runsBucket)).Get([]byte(id))
		if v == nil {
			return errors.Wrapf(ErrNotFound, "%s/%s", s.name, id)
		}
		// bbolt values are only valid inside the transaction.
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

// List describes all stored runs, newest first by artifact creation time.
func (s *BoltStore) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entries []Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := s.modelBucket(tx)
		latest := string(b.Get([]byte(latestKey)))
		return b.Bucket([]byte(runsBucket)).ForEach(func(k, v []byte) error {
			e := Entry{RunID: string(k), Size: len(v), Latest: string(k) == latest}
			if info, err := model.Inspect(v); err == nil {
				e.Algorithm = info.Algorithm
				e.CreatedAt = info.CreatedAt
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}
