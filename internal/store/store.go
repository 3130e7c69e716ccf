// Package store implements the dedup store contract (§4.2): content
// addressed by SHA-256 within a workspace, a path index per workspace, and
// a per-sha256 single-flight guard so concurrent discoveries of the same
// bytes converge on one File row instead of racing.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/smartshare/hunter/internal/model"
)

// ErrNotFound is returned by Lookup when no File exists for a sha256.
var ErrNotFound = errors.New("store: file not found")

// Store is the dedup store contract. Implementations: BoltStore (embedded,
// single-file) and SQLStore (server-based, for parallel drivers); Guard
// wraps either one with the single-flight UpsertFile guard.
type Store interface {
	// Lookup returns the File for sha256 in workspace, or ErrNotFound.
	Lookup(ctx context.Context, workspace, sha256 string) (model.File, error)

	// UpsertFile inserts a File if absent; if present, does nothing to its
	// content but is still a valid, idempotent call. The earliest-committing
	// caller's matchedRule/category win on a race (§4.2).
	UpsertFile(ctx context.Context, f model.File) (model.File, error)

	// AddPath always inserts a new Path row; observations are never
	// coalesced (§4.2).
	AddPath(ctx context.Context, p model.Path) error

	// MarkHostComplete sets host.completed under one transaction, written
	// exactly once per (workspace, host) (§5 locking discipline).
	MarkHostComplete(ctx context.Context, workspace string, host model.Host) error

	// HostCompleted reports whether host was already marked complete, for
	// idempotent-resume checks (§4.5).
	HostCompleted(ctx context.Context, workspace string, host model.Host) (bool, error)

	// PutRuleSnapshot persists the compiled rule set used by a run (§3
	// match_rule table).
	PutRuleSnapshot(ctx context.Context, workspace string, rules []model.RuleSnapshot) error

	// ListForReview returns every File with its Paths, ordered
	// deterministically by (matched rule priority desc, category, path) as
	// computed at query time (§5 Ordering, §9 Supplemented Features).
	ListForReview(ctx context.Context, workspace string) ([]ReviewRow, error)

	// SetReview records a reviewer's verdict and comment for a File.
	SetReview(ctx context.Context, workspace, sha256 string, verdict model.Verdict, comment string) error

	// Close releases any resources held by the store.
	Close() error
}

// ReviewRow is one File with every Path it was observed at, as surfaced to
// the reviewer, already carrying the priority needed to sort deterministically.
type ReviewRow struct {
	File     model.File
	Paths    []model.Path
	Priority int
	Category string
}

// withRetry runs op up to attempts times with bounded exponential backoff,
// per §4.2 "Transient database errors retry with bounded exponential
// backoff (at least 3 attempts)". Callers pass a fresh backoff schedule;
// this helper only owns the sleep-between-attempts loop.
func withRetry(ctx context.Context, attempts int, backoff func(attempt int) time.Duration, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}
