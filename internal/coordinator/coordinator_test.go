package coordinator

import (
	"archive/zip"
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartshare/hunter/internal/analyzer"
	"github.com/smartshare/hunter/internal/driver"
	"github.com/smartshare/hunter/internal/fserrors"
	"github.com/smartshare/hunter/internal/model"
	"github.com/smartshare/hunter/internal/rule"
	"github.com/smartshare/hunter/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver replays a fixed slice of FileRefs, standing in for a real
// enumeration driver in these tests.
type fakeDriver struct {
	refs []analyzer.FileRef
	err  error
}

func (f *fakeDriver) Enumerate(ctx context.Context, host model.Host, creds driver.Credentials, roots []string) (<-chan analyzer.FileRef, <-chan error) {
	out := make(chan analyzer.FileRef)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		for _, ref := range f.refs {
			select {
			case out <- ref:
			case <-ctx.Done():
				return
			}
		}
		if f.err != nil {
			errc <- f.err
		}
	}()
	return out, errc
}

var _ driver.Driver = (*fakeDriver)(nil)

func fetcher(b []byte) analyzer.ByteFetcher {
	return func(context.Context) ([]byte, error) { return b, nil }
}

func newAnalyzer(t *testing.T, descriptors ...rule.Descriptor) *analyzer.Analyzer {
	t.Helper()
	set, err := rule.Compile(descriptors)
	require.NoError(t, err)
	s, err := store.OpenBolt(filepath.Join(t.TempDir(), "hunter.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return analyzer.New("ws", set, s, analyzer.Thresholds{SupportedArchives: []string{"zip"}})
}

func TestCoordinatorProcessesAllFilesFromAllHosts(t *testing.T) {
	an := newAnalyzer(t, rule.Descriptor{
		SearchLocation: "file_content", SearchPattern: `secret`,
		Category: "cred", Relevance: model.RelevanceHigh, Accuracy: model.AccuracyHigh,
	})

	hostA := model.Host{Workspace: "ws", Protocol: model.ProtocolLocal, Address: "host-a"}
	hostB := model.Host{Workspace: "ws", Protocol: model.ProtocolFTP, Address: "host-b"}

	drivers := Drivers{
		model.ProtocolLocal: &fakeDriver{refs: []analyzer.FileRef{
			{Host: hostA, FullPath: "/a/one.txt", Size: 6, Fetch: fetcher([]byte("secret"))},
			{Host: hostA, FullPath: "/a/two.txt", Size: 5, Fetch: fetcher([]byte("plain"))},
		}},
		model.ProtocolFTP: &fakeDriver{refs: []analyzer.FileRef{
			{Host: hostB, FullPath: "/b/three.txt", Size: 6, Fetch: fetcher([]byte("secret"))},
		}},
	}

	c := New("ws", drivers, an, Config{WorkerCount: 2})
	summary, err := c.Run(context.Background(), []HostTarget{
		{Host: hostA, Roots: []string{"/a"}},
		{Host: hostB, Roots: []string{"/b"}},
	})
	require.NoError(t, err)
	assert.False(t, summary.Aborted)
	assert.Equal(t, 2, summary.HostsEnumerated)
	assert.Equal(t, 3, summary.FilesInspected)
	assert.Equal(t, 1, summary.UniqueContents, "the two 'secret' files dedup to one content row")
	assert.Equal(t, 1, summary.MatchesByCategory["cred"])

	for _, host := range []model.Host{hostA, hostB} {
		done, err := an.Store.HostCompleted(context.Background(), "ws", host)
		require.NoError(t, err)
		assert.True(t, done)
	}
}

func buildZip(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestArchiveMembersAreRequeuedNotRecursed(t *testing.T) {
	an := newAnalyzer(t, rule.Descriptor{
		SearchLocation: "file_content", SearchPattern: `TOP SECRET`,
		Category: "classified", Relevance: model.RelevanceHigh, Accuracy: model.AccuracyHigh,
	})

	host := model.Host{Workspace: "ws", Protocol: model.ProtocolLocal, Address: "host-a"}
	archiveBytes := buildZip(t, "note.txt", "TOP SECRET plan")
	drivers := Drivers{
		model.ProtocolLocal: &fakeDriver{refs: []analyzer.FileRef{
			{Host: host, FullPath: "/drop/bundle.zip", Size: int64(len(archiveBytes)), Fetch: fetcher(archiveBytes)},
		}},
	}

	c := New("ws", drivers, an, Config{WorkerCount: 1, QueueDepth: 1})
	summary, err := c.Run(context.Background(), []HostTarget{{Host: host, Roots: []string{"/drop"}}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.UniqueContents)

	rows, err := an.Store.ListForReview(context.Background(), "ws")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "note.txt", rows[0].Paths[0].FullPath)
	assert.Equal(t, []string{"/drop/bundle.zip"}, rows[0].Paths[0].ArchiveChain)
}

func TestFatalErrorAbortsRun(t *testing.T) {
	an := newAnalyzer(t)
	host := model.Host{Workspace: "ws", Protocol: model.ProtocolSMB, Address: "host-c"}
	boom := fserrors.Fatal(fatalError{"share mount rejected"})
	drivers := Drivers{
		model.ProtocolSMB: &fakeDriver{err: boom},
	}

	c := New("ws", drivers, an, Config{WorkerCount: 2})
	summary, err := c.Run(context.Background(), []HostTarget{{Host: host, Roots: []string{"/"}}})
	require.Error(t, err)
	assert.True(t, summary.Aborted)
}

func TestRunHonorsExternalCancellation(t *testing.T) {
	an := newAnalyzer(t)
	host := model.Host{Workspace: "ws", Protocol: model.ProtocolLocal, Address: "host-d"}

	// A driver that blocks until the context is cancelled, simulating a
	// slow/unreachable host.
	blockUntilCancel := &blockingDriver{}
	drivers := Drivers{model.ProtocolLocal: blockUntilCancel}

	c := New("ws", drivers, an, Config{WorkerCount: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Run(ctx, []HostTarget{{Host: host, Roots: []string{"/"}}})
	assert.Error(t, err)
}

type blockingDriver struct{}

func (b *blockingDriver) Enumerate(ctx context.Context, host model.Host, creds driver.Credentials, roots []string) (<-chan analyzer.FileRef, <-chan error) {
	out := make(chan analyzer.FileRef)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		<-ctx.Done()
		errc <- ctx.Err()
	}()
	return out, errc
}

type fatalError struct{ msg string }

func (f fatalError) Error() string { return f.msg }
