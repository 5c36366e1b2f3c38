package cache

import (
	"context"
	"io"
	"sync"
)

// Locker serializes access to a named resource. The returned release func
// must be called exactly once.
type Locker interface {
	io.Closer
	Lock(ctx context.Context, name string) (release func(), err error)
}

// LocalLocker serializes callers within one process. It is the default when
// no Redis URL is configured.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

// slot returns the one-element semaphore guarding name
func (l *LocalLocker) slot(name string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.locks[name]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[name] = ch
	}
	return ch
}

func (l *LocalLocker) Lock(ctx context.Context, name string) (func(), error) {
	ch := l.slot(name)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) Close() error {
	return nil
}
