package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// turnLock is an exclusive per-session file lock.
type turnLock struct {
	fl *flock.Flock
}

// tryLock takes <dir>/<id>.lock without blocking. It returns ErrSessionBusy
// when the lock is held elsewhere.
func tryLock(dir, id string) (*turnLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create locks dir: %w", err)
	}
	fl := flock.New(filepath.Join(dir, id+".lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock session %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionBusy, id)
	}
	return &turnLock{fl: fl}, nil
}

func (l *turnLock) release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}

func removeLock(dir, id string) {
	_ = os.Remove(filepath.Join(dir, id+".lock"))
}
