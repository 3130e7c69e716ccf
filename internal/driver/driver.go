// Package driver implements the four enumeration drivers sharing one
// contract (§4.5): list directories, resolve symlinks safely, and hand the
// analyzer a lazy sequence of file references with deferred byte fetchers.
package driver

import (
	"context"

	"github.com/smartshare/hunter/internal/analyzer"
	"github.com/smartshare/hunter/internal/fserrors"
	"github.com/smartshare/hunter/internal/model"
	"github.com/smartshare/hunter/internal/pacer"
)

// Credentials carries the union of auth material the four drivers need.
// Only the fields relevant to a given protocol are read.
type Credentials struct {
	Username string
	Password string
	Domain   string
	NTLMHash string // pass-the-hash, SMB only
	UseTLS   bool   // FTP only
}

// Driver enumerates one host's roots and streams file references. The
// returned error channel carries at most one terminal error, sent before
// either channel is closed.
type Driver interface {
	Enumerate(ctx context.Context, host model.Host, creds Credentials, roots []string) (<-chan analyzer.FileRef, <-chan error)
}

// send is a small helper shared by every driver's enumeration goroutine:
// it delivers ref on out unless ctx is done first.
func send(ctx context.Context, out chan<- analyzer.FileRef, ref analyzer.FileRef) bool {
	select {
	case out <- ref:
		return true
	case <-ctx.Done():
		return false
	}
}

// withRetry runs fn through p, retrying with exponential backoff (§7:
// "transient I/O ... retried up to 3 times") whenever fn's error was
// marked fserrors.Retriable. Any other error, or success, ends the attempt
// immediately: NoRetry and Fatal errors are never retried.
func withRetry(ctx context.Context, p *pacer.Pacer, fn func() error) error {
	return p.Call(ctx, func() (bool, error) {
		err := fn()
		return fserrors.IsRetriable(err), err
	})
}
