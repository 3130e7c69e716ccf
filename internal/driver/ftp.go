package driver

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"

	"github.com/jlaffaye/ftp"
	"github.com/smartshare/hunter/internal/analyzer"
	"github.com/smartshare/hunter/internal/fserrors"
	"github.com/smartshare/hunter/internal/model"
	"github.com/smartshare/hunter/internal/pacer"
)

// FTPDriver enumerates an FTP server, adapted from backend/ftp/ftp.go's
// connection setup: dial options for TLS, login, then jlaffaye/ftp's own
// Walker (which negotiates MLSD internally and falls back to LIST only
// when the server doesn't advertise it). A walk error whose text names
// MLSD is classified ErrFtpUnsupported per §4.5 rather than retried.
type FTPDriver struct{}

func (d *FTPDriver) Enumerate(ctx context.Context, host model.Host, creds Credentials, roots []string) (<-chan analyzer.FileRef, <-chan error) {
	out := make(chan analyzer.FileRef)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		p := pacer.New()
		conn, err := dialFTP(ctx, p, host, creds)
		if err != nil {
			errc <- err
			return
		}
		defer conn.Quit()

		for _, root := range roots {
			if err := walkFTP(ctx, p, conn, host, root, out); err != nil {
				errc <- err
				return
			}
		}
	}()

	return out, errc
}

func dialFTP(ctx context.Context, p *pacer.Pacer, host model.Host, creds Credentials) (*ftp.ServerConn, error) {
	addr := fmt.Sprintf("%s:%d", host.Address, host.Port)
	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if creds.UseTLS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: host.Address}))
	}

	var conn *ftp.ServerConn
	err := withRetry(ctx, p, func() error {
		c, err := ftp.Dial(addr, opts...)
		if err != nil {
			return fserrors.Retriable(fmt.Errorf("driver/ftp: dial %s: %w", addr, err))
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Login(creds.Username, creds.Password); err != nil {
		return nil, fserrors.NoRetry(fmt.Errorf("driver/ftp: login %s: %w", addr, err))
	}
	return conn, nil
}

func walkFTP(ctx context.Context, p *pacer.Pacer, conn *ftp.ServerConn, host model.Host, root string, out chan<- analyzer.FileRef) error {
	w := conn.Walk(root)
	for w.Next() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		entry := w.Stat()
		if entry == nil || entry.Type != ftp.EntryTypeFile {
			continue
		}
		full := w.Path()
		size := int64(entry.Size)
		ref := analyzer.FileRef{
			Host:     host,
			FullPath: full,
			Size:     size,
			Fetch: func(ctx context.Context) ([]byte, error) {
				var data []byte
				err := withRetry(ctx, p, func() error {
					r, err := conn.Retr(full)
					if err != nil {
						return fserrors.Retriable(err)
					}
					defer r.Close()
					b, err := io.ReadAll(r)
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
	if err := w.Err(); err != nil {
		if strings.Contains(strings.ToUpper(err.Error()), "MLSD") {
			return fserrors.NoRetry(fmt.Errorf("driver/ftp: %w: %s: %v", fserrors.ErrFtpUnsupported, root, err))
		}
		return fserrors.Retriable(fmt.Errorf("driver/ftp: walk %s: %w", root, err))
	}
	return nil
}

var _ Driver = (*FTPDriver)(nil)
