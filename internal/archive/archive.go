// Package archive opens supported container formats and yields their
// members as a lazy sequence without writing to disk when avoidable
// (§4.3). Extractors are registered by extension, mirroring the teacher's
// backend/archive/archiver registration pattern.
package archive

import (
	"bytes"
	"context"
	"io"
)

// Member is one file inside a container: its path relative to the archive
// root, its size, and a deferred opener for its bytes.
type Member struct {
	Path string
	Size int64
	Open func() (io.ReadCloser, error)
}

// Extractor opens one archive format and streams its members.
type Extractor interface {
	// Extract reads src (size bytes long) and sends each member on the
	// returned channel, closing it when done or on error. The error
	// channel carries at most one error, sent before members is closed.
	Extract(ctx context.Context, src io.ReaderAt, size int64) (<-chan Member, <-chan error)
}

// Factory constructs a new Extractor instance. A fresh Extractor is built
// per archive so format-specific readers don't leak state across calls.
type Factory func() Extractor

// registration pairs a Factory with the extension and magic-byte sniffer
// that identify it.
type registration struct {
	extension string
	factory   Factory
	sniff     func([]byte) bool
}

var registry []registration

// Register adds a Factory for extension (lowercase, no leading dot). sniff
// may be nil if the format has no reliable magic-byte signature.
func Register(extension string, factory Factory, sniff func([]byte) bool) {
	registry = append(registry, registration{extension: extension, factory: factory, sniff: sniff})
}

// SupportedExtensions returns every extension with a registered Extractor.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(registry))
	for _, r := range registry {
		exts = append(exts, r.extension)
	}
	return exts
}

// ForExtension returns a Factory for extension, checked against the
// operator-configured allow-list supported (§6 supported_archives).
func ForExtension(extension string, supported []string) (Factory, bool) {
	if !contains(supported, extension) {
		return nil, false
	}
	for _, r := range registry {
		if r.extension == extension {
			return r.factory, true
		}
	}
	return nil, false
}

// Sniff identifies a format from its first bytes when the extension alone
// is inconclusive (§4.3 "sniffing magic bytes as a fallback").
func Sniff(header []byte, supported []string) (Factory, bool) {
	for _, r := range registry {
		if r.sniff == nil || !contains(supported, r.extension) {
			continue
		}
		if r.sniff(header) {
			return r.factory, true
		}
	}
	return nil, false
}

// BufferReaderAt buffers r into memory so it can be used as an io.ReaderAt,
// for member byte_fetchers and other non-seekable sources (§4.3: formats
// like zip need random access; non-archive sources rarely provide it).
func BufferReaderAt(r io.Reader) (*bytes.Reader, int64, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(buf), int64(len(buf)), nil
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
