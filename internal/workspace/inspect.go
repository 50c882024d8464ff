package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Artifact describes a file produced by a stage.
type Artifact struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// IsEmpty reports whether dir has no entries. A missing directory is empty.
func IsEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

// Artifacts lists regular files in dir whose base name matches pattern,
// sorted by name. An empty pattern matches every file.
func Artifacts(dir, pattern string) ([]Artifact, error) {
	if pattern == "" {
		pattern = "*"
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("artifact pattern %q: %w", pattern, err)
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Artifact
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if ok, _ := filepath.Match(pattern, entry.Name()); !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		out = append(out, Artifact{
			Path:    filepath.Join(dir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// HasArtifact reports whether dir holds at least one non-empty file matching
// pattern.
func HasArtifact(dir, pattern string) (bool, error) {
	artifacts, err := Artifacts(dir, pattern)
	if err != nil {
		return false, err
	}
	for _, a := range artifacts {
		if a.Size > 0 {
			return true, nil
		}
	}
	return false, nil
}
