package source

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"

	"repoaudit/internal/types"
)

const (
	DefaultMaxArchiveBytes int64 = 200 << 20
	DefaultMaxFileBytes    int64 = 1 << 20
)

// Limits bound how much content a single snapshot may carry.
type Limits struct {
	// MaxArchiveBytes caps the total decompressed stream.
	MaxArchiveBytes int64
	// MaxFileBytes caps per-file content; larger files keep their size but no content.
	MaxFileBytes int64
}

func (l Limits) withDefaults() Limits {
	if l.MaxArchiveBytes <= 0 {
		l.MaxArchiveBytes = DefaultMaxArchiveBytes
	}
	if l.MaxFileBytes <= 0 {
		l.MaxFileBytes = DefaultMaxFileBytes
	}
	return l
}

type ceilingReader struct {
	r     io.Reader
	read  int64
	limit int64
}

func (c *ceilingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += int64(n)
	if c.read > c.limit {
		return n, ErrArchiveTooLarge
	}
	return n, err
}

// ExtractTarball reads a gzip-compressed tar stream as produced by the GitHub
// tarball endpoint. The single top-level directory is stripped from paths.
func ExtractTarball(r io.Reader, limits Limits) ([]types.RepoFile, error) {
	limits = limits.withDefaults()
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(&ceilingReader{r: zr, limit: limits.MaxArchiveBytes})
	var files []types.RepoFile
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(err, ErrArchiveTooLarge) {
				return nil, ErrArchiveTooLarge
			}
			return nil, fmt.Errorf("read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		rel := stripTopDir(hdr.Name)
		if rel == "" || Ignored(rel) {
			continue
		}
		f, err := readEntry(tr, rel, hdr.Size, limits.MaxFileBytes)
		if err != nil {
			if errors.Is(err, ErrArchiveTooLarge) {
				return nil, ErrArchiveTooLarge
			}
			return nil, fmt.Errorf("read %s: %w", rel, err)
		}
		files = append(files, f)
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func readEntry(r io.Reader, rel string, size, maxFile int64) (types.RepoFile, error) {
	f := types.RepoFile{Path: rel, SizeBytes: size}
	if size > maxFile {
		// Oversized files never keep content, so they are treated as binary.
		f.IsBinary = true
		return f, nil
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return f, err
	}
	f.IsBinary = IsBinary(rel, b)
	if !f.IsBinary {
		f.Content = b
	}
	return f, nil
}

func stripTopDir(name string) string {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	i := strings.IndexByte(name, '/')
	if i < 0 {
		return ""
	}
	return name[i+1:]
}
