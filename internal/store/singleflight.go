package store

import (
	"context"

	"github.com/smartshare/hunter/internal/model"
	"golang.org/x/sync/singleflight"
)

// Guard serializes concurrent UpsertFile calls for the same sha256 within
// one process (§5 "in-process single-flight guard"): at most one worker
// computes and inserts a given sha256 at a time, others wait for the result
// and fall through to path insertion. The database-level unique constraint
// on (workspace, sha256) remains the cross-process backstop.
type Guard struct {
	inner Store
	group singleflight.Group
}

// NewGuard wraps inner with a single-flight guard around UpsertFile.
func NewGuard(inner Store) *Guard {
	return &Guard{inner: inner}
}

// UpsertFile single-flights on (workspace, sha256); everything else passes
// straight through to the wrapped Store.
func (g *Guard) UpsertFile(ctx context.Context, f model.File) (model.File, error) {
	key := f.Workspace + "\x00" + f.SHA256
	v, err, _ := g.group.Do(key, func() (interface{}, error) {
		return g.inner.UpsertFile(ctx, f)
	})
	if err != nil {
		return model.File{}, err
	}
	return v.(model.File), nil
}

func (g *Guard) Lookup(ctx context.Context, workspace, sha256 string) (model.File, error) {
	return g.inner.Lookup(ctx, workspace, sha256)
}

func (g *Guard) AddPath(ctx context.Context, p model.Path) error {
	return g.inner.AddPath(ctx, p)
}

func (g *Guard) MarkHostComplete(ctx context.Context, workspace string, host model.Host) error {
	return g.inner.MarkHostComplete(ctx, workspace, host)
}

func (g *Guard) HostCompleted(ctx context.Context, workspace string, host model.Host) (bool, error) {
	return g.inner.HostCompleted(ctx, workspace, host)
}

func (g *Guard) PutRuleSnapshot(ctx context.Context, workspace string, rules []model.RuleSnapshot) error {
	return g.inner.PutRuleSnapshot(ctx, workspace, rules)
}

func (g *Guard) ListForReview(ctx context.Context, workspace string) ([]ReviewRow, error) {
	return g.inner.ListForReview(ctx, workspace)
}

func (g *Guard) SetReview(ctx context.Context, workspace, sha256 string, verdict model.Verdict, comment string) error {
	return g.inner.SetReview(ctx, workspace, sha256, verdict, comment)
}

func (g *Guard) Close() error { return g.inner.Close() }

var _ Store = (*Guard)(nil)
