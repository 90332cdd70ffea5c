package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget names a directory whose files matching Pattern are pruned.
// Exclude lists paths that are never removed.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs deletes matching files last modified more than retentionDays
// ago and returns how many it removed. Zero or negative retention disables
// pruning. A file that a symlink in the same directory points to (such as the
// filerelay.log pointer) is kept regardless of age.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	removed := 0
	for _, target := range targets {
		dir := strings.TrimSpace(target.Dir)
		if dir == "" {
			continue
		}
		for _, path := range expiredFiles(dir, strings.TrimSpace(target.Pattern), cutoff, protectedPaths(dir, target.Exclude)) {
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String(FieldPath, path),
					Error(err),
					String(FieldErrorHint, "check file permissions and log_dir ownership"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			removed++
			if logger != nil {
				logger.Debug("log pruned", String(FieldPath, path), String(FieldEventType, "log_pruned"))
			}
		}
	}
	return removed
}

func expiredFiles(dir, pattern string, cutoff time.Time, protected map[string]struct{}) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var expired []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if pattern != "" {
			if ok, err := filepath.Match(pattern, entry.Name()); err != nil || !ok {
				continue
			}
		}
		path := absPath(filepath.Join(dir, entry.Name()))
		if _, skip := protected[path]; skip {
			continue
		}
		if info, err := entry.Info(); err == nil && info.ModTime().Before(cutoff) {
			expired = append(expired, path)
		}
	}
	return expired
}

// protectedPaths collects the explicit exclusions plus every symlink target
// found in dir.
func protectedPaths(dir string, exclude []string) map[string]struct{} {
	protected := make(map[string]struct{}, len(exclude)+1)
	for _, p := range exclude {
		if p = strings.TrimSpace(p); p != "" {
			protected[absPath(p)] = struct{}{}
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return protected
	}
	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}
		if target, err := filepath.EvalSymlinks(filepath.Join(dir, entry.Name())); err == nil {
			protected[absPath(target)] = struct{}{}
		}
	}
	return protected
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
