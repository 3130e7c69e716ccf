package driver

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"

	smb2 "github.com/cloudsoda/go-smb2"
	"github.com/smartshare/hunter/internal/analyzer"
	"github.com/smartshare/hunter/internal/fserrors"
	"github.com/smartshare/hunter/internal/model"
	"github.com/smartshare/hunter/internal/pacer"
)

// SMBDriver enumerates an SMB share, adapted from backend/smb/connpool.go's
// dial/NTLMInitiator setup. The three auth modes §4.5 names map directly
// onto smb2.NTLMInitiator's fields: Password set is user+password,
// Hash set is pass-the-hash, both empty is anonymous/null session.
type SMBDriver struct{}

func (d *SMBDriver) Enumerate(ctx context.Context, host model.Host, creds Credentials, roots []string) (<-chan analyzer.FileRef, <-chan error) {
	out := make(chan analyzer.FileRef)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		p := pacer.New()
		session, share, err := dialSMB(ctx, p, host, creds)
		if err != nil {
			errc <- err
			return
		}
		defer share.Umount()
		defer session.Logoff()

		for _, root := range roots {
			if err := walkSMB(ctx, p, share, host, root, out); err != nil {
				errc <- err
				return
			}
		}
	}()

	return out, errc
}

func dialSMB(ctx context.Context, p *pacer.Pacer, host model.Host, creds Credentials) (*smb2.Session, *smb2.Share, error) {
	addr := fmt.Sprintf("%s:%d", host.Address, host.Port)

	var session *smb2.Session
	err := withRetry(ctx, p, func() error {
		var d net.Dialer
		tconn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fserrors.Retriable(fmt.Errorf("driver/smb: dial %s: %w", addr, err))
		}

		dialer := &smb2.Dialer{
			Initiator: &smb2.NTLMInitiator{
				User:     creds.Username,
				Password: creds.Password,
				Hash:     []byte(creds.NTLMHash),
				Domain:   creds.Domain,
			},
		}

		s, err := dialer.DialConn(ctx, tconn, addr)
		if err != nil {
			_ = tconn.Close()
			return fserrors.NoRetry(fmt.Errorf("driver/smb: session %s: %w", addr, err))
		}
		session = s
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	share, err := session.Mount(host.Share)
	if err != nil {
		_ = session.Logoff()
		return nil, nil, fserrors.NoRetry(fmt.Errorf("driver/smb: mount %s/%s: %w", addr, host.Share, err))
	}
	return session, share, nil
}

func walkSMB(ctx context.Context, p *pacer.Pacer, share *smb2.Share, host model.Host, dir string, out chan<- analyzer.FileRef) error {
	entries, err := share.ReadDir(dir)
	if err != nil {
		return fserrors.Retriable(fmt.Errorf("driver/smb: readdir %s: %w", dir, err))
	}

	for _, fi := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := fi.Name()
		if name == "." || name == ".." {
			continue
		}
		full := path.Join(dir, name)

		if fi.IsDir() {
			if err := walkSMB(ctx, p, share, host, full, out); err != nil {
				return err
			}
			continue
		}
		if fi.Mode()&os.ModeSymlink != 0 || !fi.Mode().IsRegular() {
			continue // SMB reparse points and special files are skipped, not followed
		}

		size := fi.Size()
		ref := analyzer.FileRef{
			Host:     host,
			FullPath: full,
			Size:     size,
			Fetch: func(ctx context.Context) ([]byte, error) {
				var data []byte
				err := withRetry(ctx, p, func() error {
					f, err := share.Open(full)
					if err != nil {
						return fserrors.Retriable(err)
					}
					defer f.Close()
					b, err := io.ReadAll(f)
					if err != nil {
						return err
					}
					data = b
					return nil
				})
				return data, err
			},
		}
		if !send(ctx, out, ref) {
			return ctx.Err()
		}
	}
	return nil
}

var _ Driver = (*SMBDriver)(nil)
