package orchestrator

import (
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned when another installer run holds the lock.
var ErrLocked = errors.New("another installer run is already in progress")

// Lock is an exclusive advisory lock covering the whole run. Two concurrent
// runs mutating the same installation directories would corrupt state.
type Lock struct {
	f *os.File
}

// AcquireLock takes the run lock, failing immediately if it's already held.
func AcquireLock(path string) (*Lock, error) {
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600) //nolint:gosec
	if err != nil {
		return nil, err
	}

	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		_ = f.Close()

		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLocked
		}

		return nil, err
	}

	return &Lock{f: f}, nil
}

// Release drops the lock. The file itself is left in place.
func (l *Lock) Release() {
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	_ = l.f.Close()
}
