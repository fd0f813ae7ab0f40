// Package backup snapshots installation directories before destructive
// operations and restores them on the failure path of an update.
package backup

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Snapshot recursively copies path to a timestamp-suffixed sibling and
// returns the backup path. A colliding name gets a random suffix instead of
// overwriting whatever is already there.
func Snapshot(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	if !info.IsDir() {
		return "", errors.New("backup source is not a directory: " + path)
	}

	target := path + "-backup-" + time.Now().Format("20060102150405")

	_, err = os.Stat(target)
	if err == nil {
		target += "-" + uuid.New().String()[:8]
	}

	err = copyTree(path, target)
	if err != nil {
		// Don't leave a half-written snapshot behind.
		_ = os.RemoveAll(target)

		return "", err
	}

	return target, nil
}

// Restore removes the half-updated directory at originalPath and renames the
// backup back into place.
func Restore(backupPath string, originalPath string) error {
	err := os.RemoveAll(originalPath)
	if err != nil {
		return err
	}

	return os.Rename(backupPath, originalPath)
}

// Prune deletes the oldest backups of path beyond keep. The newest backups
// are retained; backups of other targets are untouched.
func Prune(path string, keep int) error {
	parent := filepath.Dir(path)
	prefix := filepath.Base(path) + "-backup-"

	entries, err := os.ReadDir(parent)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	backups := []string{}
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			backups = append(backups, entry.Name())
		}
	}

	// The timestamp suffix sorts lexically, so oldest first.
	sort.Strings(backups)

	for len(backups) > keep {
		err = os.RemoveAll(filepath.Join(parent, backups[0]))
		if err != nil {
			return err
		}

		backups = backups[1:]
	}

	return nil
}

// copyTree copies a directory recursively, preserving file permissions.
func copyTree(src string, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())

		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}

			return os.Symlink(link, target)

		default:
			return copyFile(path, target, info.Mode().Perm())
		}
	})
}

func copyFile(src string, dst string, mode os.FileMode) error {
	// #nosec G304
	in, err := os.Open(src)
	if err != nil {
		return err
	}

	defer in.Close()

	// #nosec G304
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}

	defer out.Close()

	_, err = io.Copy(out, in)

	return err
}
