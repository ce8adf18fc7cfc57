package farev2

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strings"
)

// Archive gives access to the tables of a fare zip by file name,
// wherever they sit in the archive tree.
type Archive struct {
	closer io.Closer
	files  map[string]*zip.File
}

// OpenArchive opens the zip file at path.
func OpenArchive(path string) (*Archive, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	a := newArchive(&r.Reader)
	a.closer = r
	return a, nil
}

// NewArchive reads a zip held in memory or any other io.ReaderAt.
func NewArchive(r io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	return newArchive(zr), nil
}

func newArchive(r *zip.Reader) *Archive {
	a := &Archive{files: make(map[string]*zip.File)}
	for _, f := range r.File {
		if f.FileInfo().IsDir() || hidden(f.Name) {
			continue
		}
		name := path.Base(f.Name)
		if _, ok := a.files[name]; !ok {
			a.files[name] = f
		}
	}
	return a
}

// hidden reports entries that archivers add next to the real content,
// such as dot files and the __MACOSX tree.
func hidden(name string) bool {
	for _, part := range strings.Split(name, "/") {
		if (part != "." && strings.HasPrefix(part, ".")) || part == "__MACOSX" {
			return true
		}
	}
	return false
}

// Open returns the table called name. ok is false when the archive has no such table.
func (a *Archive) Open(name string) (rc io.ReadCloser, ok bool, err error) {
	f, ok := a.files[name]
	if !ok {
		return nil, false, nil
	}
	rc, err = f.Open()
	if err != nil {
		return nil, true, fmt.Errorf("open %s: %w", name, err)
	}
	return rc, true, nil
}

// Close releases the underlying file, if any.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
