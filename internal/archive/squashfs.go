package archive

import (
	"context"
	"io"

	dfs "github.com/diskfs/go-diskfs/filesystem"
	"github.com/diskfs/go-diskfs/filesystem/squashfs"
)

func init() {
	Register("sqfs", func() Extractor { return &squashfsExtractor{} }, sniffSquashfs)
}

func sniffSquashfs(header []byte) bool {
	if len(header) < 4 {
		return false
	}
	magic := string(header[:4])
	return magic == "hsqs" // little-endian squashfs magic
}

// squashfsExtractor wraps github.com/diskfs/go-diskfs, the library the
// teacher's own archive backend uses for SquashFS (backend/archive/squashfs).
// Like zip it reads directly off the io.ReaderAt the caller supplies, so no
// scoped temporary file is needed to make members randomly addressable —
// diskfs already gives us that for free.
type squashfsExtractor struct{}

func (s *squashfsExtractor) Extract(ctx context.Context, src io.ReaderAt, size int64) (<-chan Member, <-chan error) {
	members := make(chan Member)
	errc := make(chan error, 1)

	go func() {
		defer close(members)
		defer close(errc)

		fsys, err := squashfs.Read(src, size, 0, 1024*1024)
		if err != nil {
			errc <- err
			return
		}
		if err := walkSquashfs(ctx, fsys, "/", members); err != nil {
			errc <- err
		}
	}()

	return members, errc
}

func walkSquashfs(ctx context.Context, fsys dfs.FileSystem, dir string, members chan<- Member) error {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		full := dir + e.Name()
		if e.IsDir() {
			if err := walkSquashfs(ctx, fsys, full+"/", members); err != nil {
				return err
			}
			continue
		}
		select {
		case members <- Member{
			Path: full,
			Size: e.Size(),
			Open: func() (io.ReadCloser, error) { return fsys.OpenFile(full, 0) },
		}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
