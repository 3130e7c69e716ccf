package driver

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/smartshare/hunter/internal/analyzer"
	"github.com/smartshare/hunter/internal/fserrors"
	"github.com/smartshare/hunter/internal/model"
	nfsclient "github.com/willscott/go-nfs-client/nfs"
	"github.com/willscott/go-nfs-client/nfs/rpc"
)

// NFSDriver enumerates an NFSv3 export. No teacher grounding exists for an
// NFS client (the teacher only serves NFS); structured the same way as the
// ftp/smb drivers — dial, mount, recursive directory walk — for
// consistency. The export is mounted with AUTH_UNIX uid 0 / gid 0; the
// owner and group in each entry's attributes are not read.
type NFSDriver struct{}

func (d *NFSDriver) Enumerate(ctx context.Context, host model.Host, creds Credentials, roots []string) (<-chan analyzer.FileRef, <-chan error) {
	out := make(chan analyzer.FileRef)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		target, err := dialNFS(ctx, host, creds)
		if err != nil {
			errc <- err
			return
		}
		defer target.Close()

		for _, root := range roots {
			if err := walkNFS(ctx, target, host, root, out); err != nil {
				errc <- err
				return
			}
		}
	}()

	return out, errc
}

func dialNFS(ctx context.Context, host model.Host, creds Credentials) (*nfsclient.Target, error) {
	mounter, err := nfsclient.DialMount(host.Address)
	if err != nil {
		return nil, fserrors.Retriable(fmt.Errorf("driver/nfs: dial mount %s: %w", host.Address, err))
	}
	auth := rpc.NewAuthUnix(host.Address, 0, 0)
	target, err := mounter.Mount(host.Share, auth.Auth())
	if err != nil {
		_ = mounter.Close()
		return nil, fserrors.NoRetry(fmt.Errorf("driver/nfs: mount %s:%s: %w", host.Address, host.Share, err))
	}
	return target, nil
}

func walkNFS(ctx context.Context, target *nfsclient.Target, host model.Host, dir string, out chan<- analyzer.FileRef) error {
	entries, err := target.ReadDirPlus(dir)
	if err != nil {
		return fserrors.Retriable(fmt.Errorf("driver/nfs: readdirplus %s: %w", dir, err))
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if e.FileName == "." || e.FileName == ".." {
			continue
		}
		full := path.Join(dir, e.FileName)

		if e.Attr.Attr.Type == nfsclient.NF3Dir {
			if err := walkNFS(ctx, target, host, full, out); err != nil {
				return err
			}
			continue
		}
		if e.Attr.Attr.Type != nfsclient.NF3Reg {
			continue // skip symlinks and special files: no safe cycle-free resolution over NFS
		}

		size := int64(e.Attr.Attr.Size)
		ref := analyzer.FileRef{
			Host:     host,
			FullPath: full,
			Size:     size,
			Fetch: func(ctx context.Context) ([]byte, error) {
				rc, err := target.Open(full)
				if err != nil {
					return nil, fserrors.Retriable(err)
				}
				defer rc.Close()
				return io.ReadAll(rc)
			},
		}
		if !send(ctx, out, ref) {
			return ctx.Err()
		}
	}
	return nil
}

var _ Driver = (*NFSDriver)(nil)
