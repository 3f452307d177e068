package asyncutil

import (
	"context"
	"sync"
)

type accessResult[T any] struct {
	value T
	err   error
}

// continuation is the single-slot typed result used to bridge an
// asynchronous OS delegate callback back to the goroutine that
// initiated the operation.
type continuation[T any] struct {
	ch   chan accessResult[T]
	once sync.Once
}

func newContinuation[T any]() *continuation[T] {
	return &continuation[T]{ch: make(chan accessResult[T], 1)}
}

func (c *continuation[T]) resume(v T, err error) {
	c.once.Do(func() { c.ch <- accessResult[T]{value: v, err: err} })
}

func (c *continuation[T]) await(ctx context.Context) (T, error) {
	select {
	case r := <-c.ch:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// ManagedAsynchronousAccess serializes a sequence of asynchronous
// request/response operations (e.g. GATT reads on one characteristic)
// to at most one in flight at a time: Perform acquires the slot, runs
// action to kick off the OS-level request, and blocks until Resume or
// CancelAll completes the pending continuation.
type ManagedAsynchronousAccess[T any] struct {
	sem *AsyncSemaphore

	mu      sync.Mutex
	pending *continuation[T]
}

func NewManagedAsynchronousAccess[T any]() *ManagedAsynchronousAccess[T] {
	return &ManagedAsynchronousAccess[T]{sem: NewAsyncSemaphore(1)}
}

// Perform awaits the slot, stores the resumer, runs action, and awaits
// the result. If action returns an error the continuation is
// abandoned immediately and that error is returned without ever
// needing a Resume call.
func (m *ManagedAsynchronousAccess[T]) Perform(ctx context.Context, action func() error) (T, error) {
	var zero T
	if err := m.sem.Acquire(ctx); err != nil {
		return zero, err
	}
	defer m.sem.Release()

	cont := newContinuation[T]()
	m.mu.Lock()
	m.pending = cont
	m.mu.Unlock()

	if err := action(); err != nil {
		m.mu.Lock()
		if m.pending == cont {
			m.pending = nil
		}
		m.mu.Unlock()
		return zero, err
	}

	v, err := cont.await(ctx)

	m.mu.Lock()
	if m.pending == cont {
		m.pending = nil
	}
	m.mu.Unlock()
	return v, err
}

// Resume fulfills the currently pending continuation, if any. Returns
// false if there was nothing pending (a late or unexpected callback).
func (m *ManagedAsynchronousAccess[T]) Resume(v T, err error) bool {
	m.mu.Lock()
	cont := m.pending
	m.mu.Unlock()
	if cont == nil {
		return false
	}
	cont.resume(v, err)
	return true
}

// CancelAll fulfills any pending continuation with err, used when the
// owning connection drops while an operation is in flight.
func (m *ManagedAsynchronousAccess[T]) CancelAll(err error) {
	m.mu.Lock()
	cont := m.pending
	m.pending = nil
	m.mu.Unlock()
	if cont != nil {
		var zero T
		cont.resume(zero, err)
	}
}
