package asyncutil

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRWLockAllowsConcurrentReaders(t *testing.T) {
	var l RWLock
	var active, inside, peak int32
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.RLock()
			defer l.RUnlock()
			atomic.AddInt32(&active, 1)
			n := atomic.AddInt32(&inside, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(4), atomic.LoadInt32(&active))
	assert.Greater(t, atomic.LoadInt32(&peak), int32(1), "readers held the lock at the same time")
}

func TestRWLockExcludesWriterFromReaders(t *testing.T) {
	var l RWLock
	var inWriter int32

	done := make(chan struct{})
	l.WithLock(func() {
		atomic.StoreInt32(&inWriter, 1)
		go func() {
			l.RLock()
			// reader must not observe inWriter while writer holds the lock
			assert.Equal(t, int32(0), atomic.LoadInt32(&inWriter))
			l.RUnlock()
			close(done)
		}()
		time.Sleep(10 * time.Millisecond)
		atomic.StoreInt32(&inWriter, 0)
	})
	<-done
}
