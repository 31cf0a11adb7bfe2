// Package lock provides keyed mutual exclusion for read-check-write
// sequences on a single record (a room, a bill). Local serialises within
// one process; Redis serialises across replicas.
package lock

import (
	"context"
	"sync"
)

// Locker acquires an exclusive lock on key. It blocks until the lock is
// held or ctx is done. The returned unlock func is safe to call more than
// once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Key builds a lock key such as "room:<id>".
func Key(kind, id string) string { return kind + ":" + id }

// Local is an in-process keyed mutex. The zero value is not usable; call
// NewLocal.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	held chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{held: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.held <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.held
			l.release(key, s)
		})
	}, nil
}

func (l *Local) release(key string, s *slot) {
	l.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
	l.mu.Unlock()
}

// Len reports how many keys are currently held or awaited.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
