package fallback

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoSource is returned when no raw recording can be found.
var ErrNoSource = errors.New("no raw source audio")

// AudioExtensions are the raw recording formats accepted as a source, in the
// order they are preferred when several files exist.
var AudioExtensions = []string{".mp3", ".wav", ".m4a", ".flac", ".ogg"}

// SelectSource picks the raw recording for a run. An absolute preferred path
// is used as-is when it exists. Otherwise preferred is looked up inside
// inputDir, and failing that the first audio file in inputDir (by extension
// preference, then name) is chosen.
func SelectSource(inputDir, preferred string) (string, error) {
	preferred = strings.TrimSpace(preferred)
	if preferred != "" {
		candidate := preferred
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(inputDir, preferred)
		}
		if isNonEmptyFile(candidate) {
			return candidate, nil
		}
		if filepath.IsAbs(preferred) {
			return "", fmt.Errorf("%w: %s does not exist or is empty", ErrNoSource, preferred)
		}
	}

	entries, err := os.ReadDir(inputDir)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: input directory %s does not exist", ErrNoSource, inputDir)
	}
	if err != nil {
		return "", fmt.Errorf("read input directory: %w", err)
	}
	rank := make(map[string]int, len(AudioExtensions))
	for i, ext := range AudioExtensions {
		rank[ext] = i
	}
	var candidates []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if _, ok := rank[strings.ToLower(filepath.Ext(entry.Name()))]; ok {
			candidates = append(candidates, entry.Name())
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		ri := rank[strings.ToLower(filepath.Ext(candidates[i]))]
		rj := rank[strings.ToLower(filepath.Ext(candidates[j]))]
		if ri != rj {
			return ri < rj
		}
		return candidates[i] < candidates[j]
	})
	for _, name := range candidates {
		path := filepath.Join(inputDir, name)
		if isNonEmptyFile(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s (expected one of %s)", ErrNoSource, inputDir, strings.Join(AudioExtensions, " "))
}

// Promote renames the separation model's vocal output (vocal_*.wav) in dir
// to dst and removes instrument_*.wav tracks. It reports whether a file was
// promoted; an existing dst is left alone.
func Promote(dir, dst string) (bool, error) {
	if isNonEmptyFile(dst) {
		return false, removeMatches(dir, "instrument_*.wav")
	}
	matches, err := filepath.Glob(filepath.Join(dir, "vocal_*.wav"))
	if err != nil {
		return false, err
	}
	sort.Strings(matches)
	promoted := false
	for _, match := range matches {
		if !isNonEmptyFile(match) {
			continue
		}
		if err := os.Rename(match, dst); err != nil {
			return false, fmt.Errorf("promote %s: %w", filepath.Base(match), err)
		}
		promoted = true
		break
	}
	return promoted, removeMatches(dir, "instrument_*.wav")
}

func removeMatches(dir, pattern string) error {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return err
	}
	for _, match := range matches {
		if err := os.Remove(match); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", filepath.Base(match), err)
		}
	}
	return nil
}

func isNonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
