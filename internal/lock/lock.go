// Package lock serializes work per project, within one process and across
// processes sharing the same state directory.
package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const pollInterval = 25 * time.Millisecond

// Locker hands out exclusive per-key locks.
type Locker struct {
	dir string

	mu    sync.Mutex
	slots map[string]chan struct{}
}

// New creates a locker keeping lock files in dir. An empty dir disables the
// cross-process file lock.
func New(dir string) *Locker {
	return &Locker{dir: dir, slots: map[string]chan struct{}{}}
}

// Lock is a held key.
type Lock struct {
	slot chan struct{}
	file *flock.Flock
	once sync.Once
}

func (l *Locker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[key] = s
	}
	return s
}

// Acquire blocks until key is held or ctx is done.
func (l *Locker) Acquire(ctx context.Context, key string) (*Lock, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return nil, fmt.Errorf("invalid lock key %q", key)
	}

	s := l.slot(key)
	select {
	case s <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
	}

	lk := &Lock{slot: s}
	if l.dir == "" {
		return lk, nil
	}

	file, err := l.lockFile(ctx, key)
	if err != nil {
		<-s
		return nil, err
	}
	lk.file = file
	return lk, nil
}

func (l *Locker) lockFile(ctx context.Context, key string) (*flock.Flock, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create locks dir: %w", err)
	}
	path := filepath.Join(l.dir, key+".lock")
	fl := flock.New(path)
	ok, err := fl.TryLockContext(ctx, pollInterval)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, ctxErr)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: not acquired", path)
	}
	return fl, nil
}

// Release frees the key. It is safe to call more than once.
func (lk *Lock) Release() error {
	if lk == nil {
		return nil
	}
	var err error
	lk.once.Do(func() {
		if lk.file != nil {
			err = lk.file.Unlock()
		}
		<-lk.slot
	})
	return err
}
