package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"repoaudit/internal/types"
)

// LoadDir reads a local checkout with the same ignore set, limits and
// classification as the archive path.
func LoadDir(ctx context.Context, root string, limits Limits) ([]types.RepoFile, error) {
	limits = limits.withDefaults()
	info, err := os.Stat(root)
	if err != nil {
		return nil, &FetchError{Op: "stat", Err: err}
	}
	if !info.IsDir() {
		return nil, &FetchError{Op: "stat", Err: fmt.Errorf("%s is not a directory", root)}
	}

	var (
		files []types.RepoFile
		total int64
	)
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if p != root && IgnoredDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if Ignored(rel) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		f := types.RepoFile{Path: rel, SizeBytes: fi.Size()}
		if fi.Size() > limits.MaxFileBytes {
			f.IsBinary = true
			files = append(files, f)
			return nil
		}
		total += fi.Size()
		if total > limits.MaxArchiveBytes {
			return ErrArchiveTooLarge
		}
		b, err := readFile(p, limits.MaxFileBytes)
		if err != nil {
			return nil
		}
		f.IsBinary = IsBinary(rel, b)
		if !f.IsBinary {
			f.Content = b
		}
		files = append(files, f)
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, ErrArchiveTooLarge) {
			return nil, &FetchError{Op: "walk", Err: ErrArchiveTooLarge}
		}
		return nil, &FetchError{Op: "walk", Err: walkErr}
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func readFile(p string, limit int64) ([]byte, error) {
	fh, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return io.ReadAll(io.LimitReader(fh, limit))
}
