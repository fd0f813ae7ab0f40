// Package logging sets up the per-run log file. Every run writes a complete
// transcript under /var/log/firefly-install so a failed run can be diagnosed
// after the fact.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultDir is where run logs are written.
const DefaultDir = "/var/log/firefly-install"

const (
	logPrefix = "install-"
	logSuffix = ".log"

	// Retention limits for old run logs.
	keepCount = 10
	keepAge   = 30 * 24 * time.Hour
)

// Setup creates a fresh run log under dir and installs a default slog logger.
// The file always receives the full transcript; stderr is mirrored only when
// quiet is unset, so automated runs don't flood their own capture. Debug
// level is enabled when verbose is set. It returns the log file path and a
// close function.
func Setup(dir string, verbose bool, quiet bool) (string, func(), error) {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return "", nil, err
	}

	path := filepath.Join(dir, logPrefix+time.Now().Format("20060102-150405")+logSuffix)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600) //nolint:gosec
	if err != nil {
		return "", nil, err
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var out io.Writer = f
	if !quiet {
		out = io.MultiWriter(os.Stderr, f)
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	prune(dir, path)

	return path, func() { _ = f.Close() }, nil
}

// prune removes run logs beyond the retention count or age, never touching
// the active log or files it doesn't own.
func prune(dir string, active string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var logs []string

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, logPrefix) || !strings.HasSuffix(name, logSuffix) {
			continue
		}

		path := filepath.Join(dir, name)
		if path == active {
			continue
		}

		logs = append(logs, path)
	}

	// The timestamp in the name sorts lexically, oldest first.
	sort.Strings(logs)

	cutoff := time.Now().Add(-keepAge)

	for i, path := range logs {
		info, err := os.Stat(path)
		tooOld := err == nil && info.ModTime().Before(cutoff)

		if len(logs)-i > keepCount-1 || tooOld {
			err = os.Remove(path)
			if err != nil {
				slog.Warn("Failed to prune old run log", "path", path, "err", err)
			}
		}
	}
}
