package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ChunksSuffix ends the file name of every chunk artifact: <prefix>_chunks.db.
const ChunksSuffix = "_chunks.db"

// ChunksPath returns the chunk artifact path for prefix in dir.
func ChunksPath(dir, prefix string) string {
	return filepath.Join(dir, prefix+ChunksSuffix)
}

// ListSnapshots returns the sorted prefixes of the chunk artifacts in dir.
// A missing directory has no snapshots.
func ListSnapshots(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	prefixes := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ChunksSuffix) {
			continue
		}
		if p := strings.TrimSuffix(name, ChunksSuffix); p != "" {
			prefixes = append(prefixes, p)
		}
	}
	sort.Strings(prefixes)
	return prefixes, nil
}

// DiskUsageBytes returns the total size in bytes of the given snapshot paths.
// A directory counts every regular file below it. Empty and missing paths count 0.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return 0, err
		}
	}
	return total, nil
}
