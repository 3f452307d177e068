package asyncutil

import "context"

// AsyncSemaphore is a counting semaphore whose Acquire honors context
// cancellation: a cancelled waiter is removed from the wait line
// atomically with its cancellation, rather than either leaking a
// permit or blocking the cancelling caller.
type AsyncSemaphore struct {
	slots chan struct{}
}

// NewAsyncSemaphore creates a semaphore with the given number of permits.
func NewAsyncSemaphore(permits int) *AsyncSemaphore {
	if permits <= 0 {
		panic("asyncutil: AsyncSemaphore permits must be > 0")
	}
	s := &AsyncSemaphore{slots: make(chan struct{}, permits)}
	for i := 0; i < permits; i++ {
		s.slots <- struct{}{}
	}
	return s
}

// Acquire blocks until a permit is available or ctx is done,
// implementing wait_checking_cancellation: if both are ready
// simultaneously the acquire wins, otherwise whichever happens first
// determines the outcome and no permit is consumed on cancellation.
func (s *AsyncSemaphore) Acquire(ctx context.Context) error {
	select {
	case <-s.slots:
		return nil
	default:
	}

	select {
	case <-s.slots:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire acquires a permit without blocking, returning false if none is available.
func (s *AsyncSemaphore) TryAcquire() bool {
	select {
	case <-s.slots:
		return true
	default:
		return false
	}
}

// Release returns a permit to the semaphore.
func (s *AsyncSemaphore) Release() {
	select {
	case s.slots <- struct{}{}:
	default:
		panic("asyncutil: AsyncSemaphore Release without matching Acquire")
	}
}
