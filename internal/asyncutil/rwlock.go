// Package asyncutil implements the synchronization primitives the
// peripheral runtime and central manager build on: a writer-preferring
// reader-writer lock, a task-identity-keyed recursive variant, a
// cancellable counting semaphore, a single-slot asynchronous
// continuation, and a bounded overwrite-oldest change stream.
package asyncutil

import "sync"

// RWLock is a many-readers/one-writer lock with writer preference: once
// a writer is waiting, new readers block behind it instead of starving
// it the way a naive readers-first implementation would.
//
// sync.RWMutex already gives writers priority over readers that arrive
// after the writer started waiting (new RLock calls block once a
// Lock call is pending), so this type is a thin, explicitly-named
// wrapper documenting that guarantee rather than a reimplementation.
type RWLock struct {
	mu sync.RWMutex
}

func (l *RWLock) RLock()   { l.mu.RLock() }
func (l *RWLock) RUnlock() { l.mu.RUnlock() }
func (l *RWLock) Lock()    { l.mu.Lock() }
func (l *RWLock) Unlock()  { l.mu.Unlock() }

// WithRLock runs fn while holding the read lock.
func (l *RWLock) WithRLock(fn func()) {
	l.RLock()
	defer l.RUnlock()
	fn()
}

// WithLock runs fn while holding the write lock.
func (l *RWLock) WithLock(fn func()) {
	l.Lock()
	defer l.Unlock()
	fn()
}
