package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartshare/hunter/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainLocal(t *testing.T, d *LocalDriver, roots []string) ([]string, error) {
	t.Helper()
	host := model.Host{Workspace: "ws", Protocol: model.ProtocolLocal, Address: "localhost"}
	out, errc := d.Enumerate(context.Background(), host, Credentials{}, roots)

	var paths []string
	for ref := range out {
		paths = append(paths, ref.FullPath)
	}
	return paths, <-errc
}

func TestLocalDriverEnumeratesRegularFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("world"), 0o644))

	d := &LocalDriver{}
	paths, err := drainLocal(t, d, []string{dir})
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestLocalDriverSkipsSymlinksWhenNotFollowing(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real.txt")
	require.NoError(t, os.WriteFile(target, []byte("data"), 0o644))
	require.NoError(t, os.Symlink(target, filepath.Join(dir, "link.txt")))

	d := &LocalDriver{FollowSymlinks: false}
	paths, err := drainLocal(t, d, []string{dir})
	require.NoError(t, err)
	assert.Equal(t, []string{target}, paths)
}

func TestLocalDriverBreaksSymlinkCycles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "f.txt"), []byte("x"), 0o644))
	// Symlink back to the parent directory; following it must not loop forever.
	require.NoError(t, os.Symlink(dir, filepath.Join(sub, "loop")))

	d := &LocalDriver{FollowSymlinks: true}
	done := make(chan struct{})
	var paths []string
	var err error
	go func() {
		paths, err = drainLocal(t, d, []string{dir})
		close(done)
	}()

	select {
	case <-done:
		require.NoError(t, err)
		assert.Contains(t, paths, filepath.Join(sub, "f.txt"))
	case <-time.After(5 * time.Second):
		t.Fatal("symlink cycle caused enumeration to hang")
	}
}
