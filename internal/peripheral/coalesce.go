package peripheral

import (
	"context"
	"sync"

	"github.com/srgg/blecentral/internal/asyncutil"
)

// flight is one in-progress request whose result every coalesced
// caller shares.
type flight[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// coalescedAccess wraps a ManagedAsynchronousAccess so that callers
// arriving while a request is already in flight attach to that
// request's result instead of issuing their own: N simultaneous reads
// on a characteristic produce exactly one OS read and N identical
// results. Used for characteristic reads and RSSI reads alike.
type coalescedAccess[T any] struct {
	access *asyncutil.ManagedAsynchronousAccess[T]

	mu       sync.Mutex
	inflight *flight[T]
}

func newCoalescedAccess[T any]() *coalescedAccess[T] {
	return &coalescedAccess[T]{access: asyncutil.NewManagedAsynchronousAccess[T]()}
}

// Perform either joins the in-flight request, or becomes the initiator:
// it runs action to kick off the OS-level request and blocks until
// Resume or CancelAll completes it, then publishes the result to every
// joined caller.
func (c *coalescedAccess[T]) Perform(ctx context.Context, action func() error) (T, error) {
	c.mu.Lock()
	if f := c.inflight; f != nil {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.val, f.err
		case <-ctx.Done():
			var zero T
			return zero, ErrCancelled
		}
	}
	f := &flight[T]{done: make(chan struct{})}
	c.inflight = f
	c.mu.Unlock()

	f.val, f.err = c.access.Perform(ctx, action)

	c.mu.Lock()
	c.inflight = nil
	c.mu.Unlock()
	close(f.done)
	return f.val, f.err
}

// InFlight reports whether a request is currently outstanding.
func (c *coalescedAccess[T]) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight != nil
}

// Resume fulfills the initiator's pending continuation, if any.
func (c *coalescedAccess[T]) Resume(v T, err error) bool {
	return c.access.Resume(v, err)
}

// CancelAll fails the in-flight request (and with it every coalesced
// caller) with err.
func (c *coalescedAccess[T]) CancelAll(err error) {
	c.access.CancelAll(err)
}
