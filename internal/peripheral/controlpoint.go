package peripheral

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/srgg/blecentral/internal/asyncutil"
)

// DefaultControlPointTimeout is the default response-wait window for a
// control-point transaction.
const DefaultControlPointTimeout = 20 * time.Second

// controlPointState enforces at most one outstanding transaction per
// characteristic and routes notification deliveries into whichever
// transaction is currently outstanding.
type controlPointState struct {
	sem *asyncutil.AsyncSemaphore // capacity 1

	mu       sync.Mutex
	resultCh chan []byte
}

func newControlPointState() *controlPointState {
	return &controlPointState{sem: asyncutil.NewAsyncSemaphore(1)}
}

// deliver routes a notification value to the outstanding transaction,
// if any. Called from Peripheral.HandleDidUpdateValue.
func (c *controlPointState) deliver(data []byte) bool {
	c.mu.Lock()
	ch := c.resultCh
	c.mu.Unlock()
	if ch == nil {
		return false
	}
	select {
	case ch <- data:
		return true
	default:
		return false
	}
}

// IssueControlPointRequest performs one control-point request/response
// transaction: it writes request, then races a timeout against the next
// notification that decodes to T, and the first to complete fulfills
// the transaction. Generic over the decoded response type T, so it is a
// free function rather than a method (Go methods cannot carry their
// own type parameters).
func IssueControlPointRequest[T any](ctx context.Context, p *Peripheral, ref CharRef, request []byte, decode func([]byte) (T, bool), timeout time.Duration) (T, error) {
	var zero T
	if timeout <= 0 {
		timeout = DefaultControlPointTimeout
	}

	char, ok := p.Storage.characteristic(ref.ServiceUUID, ref.UUID)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrNotPresent, ref)
	}
	cs := p.charState(ref)
	if !char.Notifying && !cs.notifyRequested.Load() {
		return zero, ErrControlPointRequiresNotifying
	}
	if !cs.cp.sem.TryAcquire() {
		return zero, ErrControlPointInProgress
	}
	defer cs.cp.sem.Release()

	ch := make(chan []byte, 1)
	cs.cp.mu.Lock()
	cs.cp.resultCh = ch
	cs.cp.mu.Unlock()
	defer func() {
		cs.cp.mu.Lock()
		cs.cp.resultCh = nil
		cs.cp.mu.Unlock()
	}()

	if err := p.Write(ctx, ref, request); err != nil {
		return zero, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data := <-ch:
		v, ok := decode(data)
		if !ok {
			return zero, ErrResponseFormat
		}
		return v, nil
	case <-timer.C:
		return zero, ErrTimeout
	case <-ctx.Done():
		return zero, ErrCancelled
	}
}
