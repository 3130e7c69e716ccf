package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/smartshare/hunter/internal/model"
	"github.com/smartshare/hunter/internal/rule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	db, err := OpenBolt(filepath.Join(t.TempDir(), "hunter.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestLookupMissingReturnsErrNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Lookup(context.Background(), "ws", "deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertFileIsIdempotentAndFirstWins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := model.File{
		Workspace: "ws", SHA256: "abc123", Size: 10,
		MatchedRule: model.RuleRef{Index: 2, Category: "ssh-key"},
		Category:    "ssh-key",
	}
	second := model.File{
		Workspace: "ws", SHA256: "abc123", Size: 10,
		MatchedRule: model.RuleRef{Index: 7, Category: "other"},
		Category:    "other",
	}

	got1, err := s.UpsertFile(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "ssh-key", got1.Category)

	got2, err := s.UpsertFile(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "ssh-key", got2.Category, "earliest-committing caller's category wins")

	stored, err := s.Lookup(ctx, "ws", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "ssh-key", stored.Category)
}

func TestAddPathNeverCoalesces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertFile(ctx, model.File{Workspace: "ws", SHA256: "abc123", Size: 1})
	require.NoError(t, err)

	host := model.Host{Workspace: "ws", Protocol: model.ProtocolLocal, Address: "localhost"}
	require.NoError(t, s.AddPath(ctx, model.Path{Workspace: "ws", Host: host, FullPath: "/a/one", FileSHA256: "abc123"}))
	require.NoError(t, s.AddPath(ctx, model.Path{Workspace: "ws", Host: host, FullPath: "/a/two", FileSHA256: "abc123"}))

	rows, err := s.ListForReview(ctx, "ws")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Len(t, rows[0].Paths, 2)
}

func TestHostCompletionIsTrackedOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	host := model.Host{Workspace: "ws", Protocol: model.ProtocolFTP, Address: "10.0.0.1", Port: 21}

	done, err := s.HostCompleted(ctx, "ws", host)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, s.MarkHostComplete(ctx, "ws", host))
	require.NoError(t, s.MarkHostComplete(ctx, "ws", host))

	done, err = s.HostCompleted(ctx, "ws", host)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestListForReviewOrdersByRulePriorityThenCategoryThenPath(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	host := model.Host{Workspace: "ws", Protocol: model.ProtocolLocal, Address: "localhost"}

	// Declared in the opposite order of their priority: the low-weight
	// file_name rule is descriptor 0 but must sort LAST; the high-weight
	// file_content rule is descriptor 1 but must sort FIRST. A fix that
	// keyed ordering off Index (the declaration position) instead of the
	// computed Priority would invert this pair.
	set, err := rule.Compile([]rule.Descriptor{
		{SearchLocation: "file_name", SearchPattern: `x`, Category: "b", Relevance: model.RelevanceLow, Accuracy: model.AccuracyLow},
		{SearchLocation: "file_content", SearchPattern: `a much longer pattern here`, Category: "a", Relevance: model.RelevanceHigh, Accuracy: model.AccuracyHigh},
	})
	require.NoError(t, err)
	require.Len(t, set.All(), 2)
	topRule, bottomRule := set.All()[0], set.All()[1]
	require.Greater(t, topRule.Priority, bottomRule.Priority)
	require.Equal(t, 1, topRule.Index, "the higher-priority rule was declared second")
	require.Equal(t, 0, bottomRule.Index, "the lower-priority rule was declared first")

	low := model.File{Workspace: "ws", SHA256: "low", Category: bottomRule.Category,
		MatchedRule: model.RuleRef{Index: bottomRule.Index, Priority: bottomRule.Priority, Category: bottomRule.Category}}
	high := model.File{Workspace: "ws", SHA256: "high", Category: topRule.Category,
		MatchedRule: model.RuleRef{Index: topRule.Index, Priority: topRule.Priority, Category: topRule.Category}}

	_, err = s.UpsertFile(ctx, low)
	require.NoError(t, err)
	_, err = s.UpsertFile(ctx, high)
	require.NoError(t, err)
	require.NoError(t, s.AddPath(ctx, model.Path{Workspace: "ws", Host: host, FullPath: "/low", FileSHA256: "low"}))
	require.NoError(t, s.AddPath(ctx, model.Path{Workspace: "ws", Host: host, FullPath: "/high", FileSHA256: "high"}))

	rows, err := s.ListForReview(ctx, "ws")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "high", rows[0].File.SHA256, "higher computed priority sorts first regardless of declaration order")
	assert.Equal(t, "low", rows[1].File.SHA256)
}

func TestSetReviewRecordsVerdict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertFile(ctx, model.File{Workspace: "ws", SHA256: "abc123"})
	require.NoError(t, err)

	require.NoError(t, s.SetReview(ctx, "ws", "abc123", model.VerdictRelevant, "confirmed by analyst"))

	f, err := s.Lookup(ctx, "ws", "abc123")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictRelevant, f.Verdict)
	assert.Equal(t, "confirmed by analyst", f.Comment)

	err = s.SetReview(ctx, "ws", "missing", model.VerdictIrrelevant, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSingleFlightGuardCoalescesConcurrentUpserts(t *testing.T) {
	s := openTestStore(t)
	g := NewGuard(s)
	ctx := context.Background()

	const n = 16
	results := make([]model.File, n)
	errs := make([]error, n)
	done := make(chan int, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			results[i], errs[i] = g.UpsertFile(ctx, model.File{
				Workspace: "ws", SHA256: "race", Size: 1,
				MatchedRule: model.RuleRef{Index: i, Category: "x"},
				Category:    "x",
			})
			done <- i
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}
	first := results[0].MatchedRule.Index
	for i := 1; i < n; i++ {
		assert.Equal(t, first, results[i].MatchedRule.Index, "all callers observe the same winning row")
	}
}
