package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"voxclone/internal/services"
)

// Lock is an exclusive advisory lock on a workspace.
type Lock struct {
	path string
	lock *flock.Flock
}

// AcquireLock takes the workspace lock at path without blocking. If another
// process holds it the error wraps services.ErrLocked.
func AcquireLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, services.Wrap(services.ErrWorkspace, "", "lock", "create lock directory", err)
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrWorkspace, "", "lock", "acquire workspace lock", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrLocked, "", "lock", fmt.Sprintf("another voxclone run holds %s", path), nil)
	}
	return &Lock{path: path, lock: fl}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Release drops the lock. It is safe to call on a nil Lock.
func (l *Lock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
