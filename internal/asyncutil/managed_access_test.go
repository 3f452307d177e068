package asyncutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagedAsynchronousAccessResumeCompletesPerform(t *testing.T) {
	m := NewManagedAsynchronousAccess[int]()

	result := make(chan int, 1)
	errs := make(chan error, 1)
	go func() {
		v, err := m.Perform(context.Background(), func() error {
			go func() {
				time.Sleep(5 * time.Millisecond)
				m.Resume(42, nil)
			}()
			return nil
		})
		result <- v
		errs <- err
	}()

	select {
	case v := <-result:
		assert.Equal(t, 42, v)
		require.NoError(t, <-errs)
	case <-time.After(time.Second):
		t.Fatal("Perform did not complete")
	}
}

func TestManagedAsynchronousAccessActionErrorAbandonsContinuation(t *testing.T) {
	m := NewManagedAsynchronousAccess[int]()
	boom := errors.New("write failed")

	_, err := m.Perform(context.Background(), func() error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestManagedAsynchronousAccessSerializesOperations(t *testing.T) {
	m := NewManagedAsynchronousAccess[int]()

	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})

	go func() {
		_, _ = m.Perform(context.Background(), func() error {
			close(firstStarted)
			go func() {
				<-releaseFirst
				m.Resume(1, nil)
			}()
			return nil
		})
	}()
	<-firstStarted

	secondStarted := make(chan struct{})
	go func() {
		_, _ = m.Perform(context.Background(), func() error {
			close(secondStarted)
			m.Resume(2, nil)
			return nil
		})
	}()

	select {
	case <-secondStarted:
		t.Fatal("second Perform must not start until the first releases the slot")
	case <-time.After(20 * time.Millisecond):
	}

	close(releaseFirst)

	select {
	case <-secondStarted:
	case <-time.After(time.Second):
		t.Fatal("second Perform never started")
	}
}

func TestManagedAsynchronousAccessCancelAllCompletesPending(t *testing.T) {
	m := NewManagedAsynchronousAccess[int]()
	disconnect := errors.New("connection dropped")

	result := make(chan error, 1)
	started := make(chan struct{})
	go func() {
		_, err := m.Perform(context.Background(), func() error {
			close(started)
			return nil
		})
		result <- err
	}()

	<-started
	m.CancelAll(disconnect)

	select {
	case err := <-result:
		assert.ErrorIs(t, err, disconnect)
	case <-time.After(time.Second):
		t.Fatal("CancelAll did not unblock Perform")
	}
}

func TestManagedAsynchronousAccessPerformHonorsContextTimeout(t *testing.T) {
	m := NewManagedAsynchronousAccess[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.Perform(ctx, func() error {
		return nil // never calls Resume
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
