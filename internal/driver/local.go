package driver

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/smartshare/hunter/internal/analyzer"
	"github.com/smartshare/hunter/internal/fserrors"
	"github.com/smartshare/hunter/internal/logging"
	"github.com/smartshare/hunter/internal/model"
	"github.com/smartshare/hunter/internal/pacer"
)

// inodeKey identifies a file by (device, inode), the cycle-detection key
// the teacher's local backend builds from syscall.Stat_t.
type inodeKey struct {
	dev, ino uint64
}

// LocalDriver walks the local filesystem, adapted from backend/local's
// Fs.List: Readdirnames + per-entry Lstat, a device comparison against each
// root's device when OneFileSystem is set, and symlink resolution gated by
// an observed-(dev, inode) set.
type LocalDriver struct {
	FollowSymlinks bool
	OneFileSystem  bool
}

func (d *LocalDriver) Enumerate(ctx context.Context, host model.Host, creds Credentials, roots []string) (<-chan analyzer.FileRef, <-chan error) {
	out := make(chan analyzer.FileRef)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		p := pacer.New()
		seen := map[inodeKey]struct{}{}
		var rootDev uint64
		rootDevSet := false

		for _, root := range roots {
			rootDevSet = false
			if d.OneFileSystem {
				if fi, err := os.Stat(root); err == nil {
					rootDev, rootDevSet = deviceOf(fi)
				}
			}
			if err := d.walk(ctx, p, host, root, &rootDev, &rootDevSet, seen, out); err != nil {
				errc <- err
				return
			}
		}
	}()

	return out, errc
}

func (d *LocalDriver) walk(ctx context.Context, p *pacer.Pacer, host model.Host, dir string, rootDev *uint64, rootDevSet *bool, seen map[inodeKey]struct{}, out chan<- analyzer.FileRef) error {
	fd, err := os.Open(dir)
	if err != nil {
		if os.IsPermission(err) {
			logging.For(dir).WithError(err).Warn("permission denied, skipping directory")
			return nil
		}
		return fserrors.Retriable(fmt.Errorf("driver/local: open %s: %w", dir, err))
	}
	defer fd.Close()

	for {
		var names []string
		err := withRetry(ctx, p, func() error {
			n, err := fd.Readdirnames(1024)
			if err != nil {
				if err == io.EOF {
					return err
				}
				return fserrors.Retriable(fmt.Errorf("driver/local: readdir %s: %w", dir, err))
			}
			names = n
			return nil
		})
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		for _, name := range names {
			full := filepath.Join(dir, name)
			fi, err := os.Lstat(full)
			if os.IsNotExist(err) {
				continue // removed by a concurrent process
			}
			if err != nil {
				logging.For(full).WithError(err).Warn("lstat failed, skipping entry")
				continue
			}

			mode := fi.Mode()
			if mode&os.ModeSymlink != 0 {
				if !d.FollowSymlinks {
					continue
				}
				target, err := os.Stat(full)
				if err != nil {
					logging.For(full).WithError(err).Warn("broken symlink, skipping")
					continue
				}
				key, ok := inodeOf(target)
				if ok {
					if _, dup := seen[key]; dup {
						continue // cycle: already visited this inode
					}
					seen[key] = struct{}{}
				}
				fi = target
				mode = fi.Mode()
			}

			if fi.IsDir() {
				if d.OneFileSystem {
					if dev, ok := deviceOf(fi); ok {
						if !*rootDevSet {
							*rootDev = dev
							*rootDevSet = true
						} else if dev != *rootDev {
							continue // crossed a filesystem boundary
						}
					}
				}
				if err := d.walk(ctx, p, host, full, rootDev, rootDevSet, seen, out); err != nil {
					return err
				}
				continue
			}

			if !mode.IsRegular() {
				continue // skip special files: sockets, devices, fifos
			}

			size := fi.Size()
			ref := analyzer.FileRef{
				Host:     host,
				FullPath: full,
				Size:     size,
				Fetch: func(ctx context.Context) ([]byte, error) {
					return os.ReadFile(full)
				},
			}
			if !send(ctx, out, ref) {
				return ctx.Err()
			}
		}
	}
	return nil
}

func deviceOf(fi os.FileInfo) (uint64, bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return uint64(st.Dev), true
}

func inodeOf(fi os.FileInfo) (inodeKey, bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return inodeKey{}, false
	}
	return inodeKey{dev: uint64(st.Dev), ino: st.Ino}, true
}

var _ Driver = (*LocalDriver)(nil)
