package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nightlyone/lockfile"
)

// FileName is the lock file created inside a guarded directory.
const FileName = ".envsync.lck"

// BusyError is returned when another live process holds the lock.
type BusyError struct {
	Dir string
	PID int
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("another envsync process (PID %d) is working in %s", e.PID, e.Dir)
}

// Lock guards a directory against concurrent envsync runs.
type Lock struct {
	dir  string
	file lockfile.Lockfile
}

// Acquire takes the lock for dir, creating the directory if needed.
// A lock left behind by a dead process is taken over.
func Acquire(dir string) (*Lock, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving lock directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	lf, err := lockfile.New(filepath.Join(abs, FileName))
	if err != nil {
		return nil, fmt.Errorf("creating lock file: %w", err)
	}

	if err := lf.TryLock(); err != nil {
		if errors.Is(err, lockfile.ErrBusy) {
			pid := 0
			if p, perr := lf.GetOwner(); perr == nil {
				pid = p.Pid
			}
			return nil, &BusyError{Dir: abs, PID: pid}
		}
		return nil, fmt.Errorf("locking %s: %w", abs, err)
	}
	return &Lock{dir: abs, file: lf}, nil
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	err := l.file.Unlock()
	if err != nil && !errors.Is(err, lockfile.ErrRogueDeletion) {
		return fmt.Errorf("unlocking %s: %w", l.dir, err)
	}
	return nil
}

// IsHeld checks if dir is currently locked by a running process.
func IsHeld(dir string) (bool, int, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false, 0, err
	}
	lf, err := lockfile.New(filepath.Join(abs, FileName))
	if err != nil {
		return false, 0, err
	}
	p, err := lf.GetOwner()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, lockfile.ErrDeadOwner) || errors.Is(err, lockfile.ErrInvalidPid) {
			return false, 0, nil
		}
		return false, 0, err
	}
	return true, p.Pid, nil
}
