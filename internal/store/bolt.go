// Bolt implements the embedded, single-file dedup store engine, grounded
// on the teacher's own bbolt usage in backend/cache/storage_persistent.go
// and backend/netexplorer/netexplorer.go: one bolt.DB, one bucket per
// concern, transactions own atomicity instead of a second lock layer.
package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/smartshare/hunter/internal/fserrors"
	"github.com/smartshare/hunter/internal/model"
	bolt "go.etcd.io/bbolt"
)

const (
	bucketFiles = "files" // workspace/sha256 -> json(model.File)
	bucketPaths = "paths" // workspace/autoid -> json(model.Path)
	bucketHosts = "hosts" // workspace/host-key -> 0x01 once complete
	bucketRules = "rules" // workspace -> json([]model.RuleSnapshot)
)

// BoltStore is the embedded dedup store engine.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (creating if absent) the bbolt file at path and ensures
// the four top-level buckets exist, mirroring the teacher's connect()
// pattern of creating every bucket up front under one transaction.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open bolt db %q: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketFiles, bucketPaths, bucketHosts, bucketRules} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func fileKey(workspace, sha256 string) []byte { return []byte(workspace + "/" + sha256) }
func hostKey(workspace string, h model.Host) []byte {
	return []byte(workspace + "/" + h.Key())
}

func (b *BoltStore) Lookup(ctx context.Context, workspace, sha256 string) (model.File, error) {
	var f model.File
	found := false
	err := withRetry(ctx, 3, backoffSchedule, func() error {
		return b.db.View(func(tx *bolt.Tx) error {
			raw := tx.Bucket([]byte(bucketFiles)).Get(fileKey(workspace, sha256))
			if raw == nil {
				return nil
			}
			found = true
			return json.Unmarshal(raw, &f)
		})
	})
	if err != nil {
		return model.File{}, fserrors.Retriable(err)
	}
	if !found {
		return model.File{}, ErrNotFound
	}
	return f, nil
}

// UpsertFile inserts f if workspace/sha256 is absent; if present, the
// existing row is returned unchanged — the earliest-committing caller's
// matched rule and category win, per §4.2.
func (b *BoltStore) UpsertFile(ctx context.Context, f model.File) (model.File, error) {
	var result model.File
	err := withRetry(ctx, 3, backoffSchedule, func() error {
		return b.db.Update(func(tx *bolt.Tx) error {
			bucket := tx.Bucket([]byte(bucketFiles))
			key := fileKey(f.Workspace, f.SHA256)
			if existing := bucket.Get(key); existing != nil {
				return json.Unmarshal(existing, &result)
			}
			raw, err := json.Marshal(f)
			if err != nil {
				return err
			}
			if err := bucket.Put(key, raw); err != nil {
				return err
			}
			result = f
			return nil
		})
	})
	if err != nil {
		return model.File{}, fserrors.Retriable(err)
	}
	return result, nil
}

func (b *BoltStore) AddPath(ctx context.Context, p model.Path) error {
	if p.ObservedAt.IsZero() {
		p.ObservedAt = time.Now()
	}
	return withRetry(ctx, 3, backoffSchedule, func() error {
		return b.db.Update(func(tx *bolt.Tx) error {
			bucket := tx.Bucket([]byte(bucketPaths))
			id, _ := bucket.NextSequence()
			raw, err := json.Marshal(p)
			if err != nil {
				return err
			}
			return bucket.Put(pathKey(p.Workspace, id), raw)
		})
	})
}

func pathKey(workspace string, id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return append([]byte(workspace+"/"), buf...)
}

func (b *BoltStore) MarkHostComplete(ctx context.Context, workspace string, host model.Host) error {
	return withRetry(ctx, 3, backoffSchedule, func() error {
		return b.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket([]byte(bucketHosts)).Put(hostKey(workspace, host), []byte{1})
		})
	})
}

func (b *BoltStore) HostCompleted(ctx context.Context, workspace string, host model.Host) (bool, error) {
	var completed bool
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketHosts)).Get(hostKey(workspace, host))
		completed = len(v) == 1 && v[0] == 1
		return nil
	})
	return completed, err
}

func (b *BoltStore) PutRuleSnapshot(ctx context.Context, workspace string, rules []model.RuleSnapshot) error {
	raw, err := json.Marshal(rules)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketRules)).Put([]byte(workspace), raw)
	})
}

func (b *BoltStore) ListForReview(ctx context.Context, workspace string) ([]ReviewRow, error) {
	files := map[string]model.File{}
	pathsByFile := map[string][]model.Path{}

	err := b.db.View(func(tx *bolt.Tx) error {
		fb := tx.Bucket([]byte(bucketFiles))
		prefix := []byte(workspace + "/")
		c := fb.Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var f model.File
			if err := json.Unmarshal(v, &f); err != nil {
				return err
			}
			files[f.SHA256] = f
		}

		pb := tx.Bucket([]byte(bucketPaths))
		pc := pb.Cursor()
		for k, v := pc.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = pc.Next() {
			var p model.Path
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			pathsByFile[p.FileSHA256] = append(pathsByFile[p.FileSHA256], p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rows := make([]ReviewRow, 0, len(files))
	for sha, f := range files {
		rows = append(rows, ReviewRow{
			File:     f,
			Paths:    pathsByFile[sha],
			Priority: priorityOf(f),
			Category: f.Category,
		})
	}

	sortReviewRows(rows)
	return rows, nil
}

// priorityOf returns the matched rule's computed priority, used as the
// sort key by sortReviewRows.
func priorityOf(f model.File) int {
	return f.MatchedRule.Priority
}

func firstPath(r ReviewRow) string {
	if len(r.Paths) == 0 {
		return ""
	}
	return r.Paths[0].FullPath
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (b *BoltStore) SetReview(ctx context.Context, workspace, sha256 string, verdict model.Verdict, comment string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketFiles))
		key := fileKey(workspace, sha256)
		raw := bucket.Get(key)
		if raw == nil {
			return ErrNotFound
		}
		var f model.File
		if err := json.Unmarshal(raw, &f); err != nil {
			return err
		}
		f.Verdict = verdict
		f.Comment = comment
		updated, err := json.Marshal(f)
		if err != nil {
			return err
		}
		return bucket.Put(key, updated)
	})
}

func (b *BoltStore) Close() error { return b.db.Close() }

// DropAll deletes and recreates every bucket, the bolt engine's equivalent
// of a schema drop (§6 "db --drop").
func (b *BoltStore) DropAll() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketFiles, bucketPaths, bucketHosts, bucketRules} {
			if err := tx.DeleteBucket([]byte(name)); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
}

func backoffSchedule(attempt int) time.Duration {
	return (50 * time.Millisecond) << uint(attempt-1)
}

var _ Store = (*BoltStore)(nil)
