package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ZehenForever/sto-log-parser/internal/engine"
)

// DefaultPattern is the game client's combat log naming.
const DefaultPattern = "combatlog*.log"

var (
	ErrLogDirNotFound = errors.New("log directory not found")
	ErrEmptyPattern   = errors.New("log file pattern is empty")
	ErrNoLogFiles     = errors.New("no combat logs to parse")
)

type LogFile struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// CheckLogDir returns the cleaned directory or an ErrLogDirNotFound wrap.
func CheckLogDir(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", fmt.Errorf("%w: no directory configured", ErrLogDirNotFound)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLogDirNotFound, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrLogDirNotFound, dir)
	}
	return filepath.Clean(dir), nil
}

// FindLogFiles returns the regular files under dir matching pattern, oldest
// modification first. The pattern uses doublestar syntax relative to dir and
// is matched case-insensitively.
func FindLogFiles(dir, pattern string) ([]LogFile, error) {
	pattern = filepath.ToSlash(strings.TrimSpace(pattern))
	if pattern == "" {
		return nil, ErrEmptyPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid log file pattern %q", pattern)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly(), doublestar.WithCaseInsensitive())
	if err != nil {
		return nil, fmt.Errorf("globbing log files: %w", err)
	}
	if len(matches) == 0 {
		return nil, ErrNoLogFiles
	}

	out := make([]LogFile, 0, len(matches))
	for _, m := range matches {
		p := filepath.Join(dir, filepath.FromSlash(m))
		info, err := os.Stat(p)
		if err != nil {
			// vanished between glob and stat; report it at read time
			out = append(out, LogFile{Path: p})
			continue
		}
		out = append(out, LogFile{Path: p, ModTime: info.ModTime(), Size: info.Size()})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].Path < out[j].Path
		}
		return out[i].ModTime.Before(out[j].ModTime)
	})
	return out, nil
}

// SplitByRecency partitions files by modification time.
func SplitByRecency(files []LogFile, f engine.TimeFilter) (keep, tooOld []LogFile) {
	for _, lf := range files {
		if lf.ModTime.IsZero() || f.Allow(lf.ModTime) {
			keep = append(keep, lf)
		} else {
			tooOld = append(tooOld, lf)
		}
	}
	return keep, tooOld
}
