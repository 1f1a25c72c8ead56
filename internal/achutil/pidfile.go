package achutil

import (
	"fmt"
	"os"

	"github.com/gofrs/flock"
)

// PIDFile is an advisory-locked file holding the decimal PID of the
// process that owns it. Opening it acquires a non-blocking exclusive
// lock: a second instance trying to start against the same path fails
// immediately instead of stalling, matching achcop.c's lock_pid, which
// treats a held lock as "another copy is already running" rather than
// something to wait out.
type PIDFile struct {
	path string
	lock *flock.Flock
}

// OpenPIDFile opens (creating if necessary, mode 0664) the file at path
// and attempts to take an exclusive, non-blocking lock on it. ErrLocked
// is returned if another process already holds the lock.
func OpenPIDFile(path string) (*PIDFile, error) {
	if err := ensureExists(path); err != nil {
		return nil, err
	}
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("pidfile %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("pidfile %s: %w", path, ErrLocked)
	}
	return &PIDFile{path: path, lock: lock}, nil
}

func ensureExists(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0664)
	if err != nil {
		return fmt.Errorf("pidfile %s: %w", path, err)
	}
	return f.Close()
}

// Write truncates the file and writes pid as decimal text, flushing
// before returning. Called once at startup and again after every
// respawn, since the child's pid changes across restarts.
func (p *PIDFile) Write(pid int) error {
	f, err := os.OpenFile(p.path, os.O_WRONLY|os.O_TRUNC, 0664)
	if err != nil {
		return fmt.Errorf("pidfile %s: %w", p.path, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%d\n", pid); err != nil {
		return fmt.Errorf("pidfile %s: %w", p.path, err)
	}
	return f.Sync()
}

// Path returns the filesystem path backing this PIDFile.
func (p *PIDFile) Path() string {
	return p.path
}

// Unlock releases the lock and leaves the file on disk; callers that
// want it removed should os.Remove(p.Path()) themselves after Unlock.
func (p *PIDFile) Unlock() error {
	return p.lock.Unlock()
}

// ErrLocked is returned by OpenPIDFile when the path is already locked
// by another process.
var ErrLocked = fmt.Errorf("pidfile already locked by another process")
