package peripheral

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/srgg/blecentral/internal/gatt"
	"github.com/srgg/blecentral/internal/osble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached within deadline")
}

func TestReadOnUndiscoveredCharacteristicIsNotPresent(t *testing.T) {
	p := NewPeripheral("id", newFakeAdapter(), nil)
	_, err := p.Read(context.Background(), testRef)
	assert.ErrorIs(t, err, ErrNotPresent)
}

func TestReadResolvesWithDeliveredValue(t *testing.T) {
	adapter := newFakeAdapter()
	p := newConnectedPeripheral(adapter)

	var (
		got []byte
		err error
		wg  sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		got, err = p.Read(context.Background(), testRef)
	}()

	waitFor(t, func() bool { return adapter.readCount() == 1 })
	p.HandleDidUpdateValue(testRef, []byte{0x01, 0x02}, nil)
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, got)

	c, ok := p.Storage.Characteristic(testRef.ServiceUUID, testRef.UUID)
	require.True(t, ok)
	assert.Equal(t, []byte{0x01, 0x02}, c.Value)
}

func TestConcurrentReadsCoalesceOntoOneOSRead(t *testing.T) {
	adapter := newFakeAdapter()
	p := newConnectedPeripheral(adapter)

	const callers = 5
	results := make([][]byte, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup

	// First caller initiates the OS read; the rest attach to it.
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = p.Read(context.Background(), testRef)
	}()
	waitFor(t, func() bool { return adapter.readCount() == 1 })

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Read(context.Background(), testRef)
		}(i)
	}
	// Give the joiners time to attach before the value arrives.
	time.Sleep(20 * time.Millisecond)
	p.HandleDidUpdateValue(testRef, []byte{0xAB}, nil)
	wg.Wait()

	assert.Equal(t, 1, adapter.readCount())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, []byte{0xAB}, results[i])
	}
}

func TestSequentialWritesCompleteInOrder(t *testing.T) {
	adapter := newFakeAdapter()
	p := newConnectedPeripheral(adapter)

	for _, payload := range [][]byte{{0x01}, {0x02}} {
		done := make(chan error, 1)
		go func(data []byte) {
			done <- p.Write(context.Background(), testRef, data)
		}(payload)
		waitFor(t, func() bool {
			w := adapter.writes()
			return len(w) > 0 && w[len(w)-1].Data[0] == payload[0]
		})
		p.HandleDidWriteValue(testRef, nil)
		require.NoError(t, <-done)
	}

	w := adapter.writes()
	require.Len(t, w, 2)
	assert.Equal(t, []byte{0x01}, w[0].Data)
	assert.Equal(t, []byte{0x02}, w[1].Data)
	assert.True(t, w[0].WithResponse)
}

func TestSecondWriteWhileFirstPendingIsConcurrentWrite(t *testing.T) {
	adapter := newFakeAdapter()
	p := newConnectedPeripheral(adapter)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- p.Write(context.Background(), testRef, []byte{0x01})
	}()
	waitFor(t, func() bool { return len(adapter.writes()) == 1 })

	err := p.Write(context.Background(), testRef, []byte{0x02})
	assert.ErrorIs(t, err, ErrConcurrentWrite)

	p.HandleDidWriteValue(testRef, nil)
	require.NoError(t, <-firstDone)

	// The slot is free again once the first write completed.
	go func() { _ = p.Write(context.Background(), testRef, []byte{0x03}) }()
	waitFor(t, func() bool { return len(adapter.writes()) == 2 })
	p.HandleDidWriteValue(testRef, nil)
}

func TestReadWhileWritePendingIsRejected(t *testing.T) {
	adapter := newFakeAdapter()
	p := newConnectedPeripheral(adapter)

	writeDone := make(chan error, 1)
	go func() {
		writeDone <- p.Write(context.Background(), testRef, []byte{0x01})
	}()
	waitFor(t, func() bool { return len(adapter.writes()) == 1 })

	_, err := p.Read(context.Background(), testRef)
	assert.ErrorIs(t, err, ErrConcurrentWrite)
	assert.Equal(t, 0, adapter.readCount())

	p.HandleDidWriteValue(testRef, nil)
	require.NoError(t, <-writeDone)
}

func TestWriteWhileReadInFlightIsRejected(t *testing.T) {
	adapter := newFakeAdapter()
	p := newConnectedPeripheral(adapter)

	readDone := make(chan error, 1)
	go func() {
		_, err := p.Read(context.Background(), testRef)
		readDone <- err
	}()
	waitFor(t, func() bool { return adapter.readCount() == 1 })

	assert.ErrorIs(t, p.Write(context.Background(), testRef, []byte{0x01}), ErrConcurrentWrite)
	assert.ErrorIs(t, p.WriteWithoutResponse(context.Background(), testRef, []byte{0x01}), ErrConcurrentWrite)
	assert.Empty(t, adapter.writes())

	p.HandleDidUpdateValue(testRef, []byte{0xEE}, nil)
	require.NoError(t, <-readDone)
}

func TestWriteWithoutResponseWaitsForReadySignal(t *testing.T) {
	adapter := newFakeAdapter()
	p := newConnectedPeripheral(adapter)

	done := make(chan error, 1)
	go func() {
		done <- p.WriteWithoutResponse(context.Background(), testRef, []byte{0x07})
	}()

	// No write may be issued before the OS signals readiness.
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, adapter.writes())

	p.HandleIsReadyToSendWriteWithoutResponse()
	waitFor(t, func() bool { return len(adapter.writes()) == 1 })
	p.HandleDidWriteValue(testRef, nil)
	require.NoError(t, <-done)

	w := adapter.writes()
	assert.False(t, w[0].WithResponse)
}

func TestRSSIReadsCoalesce(t *testing.T) {
	adapter := newFakeAdapter()
	p := newConnectedPeripheral(adapter)

	const callers = 3
	results := make([]int, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = p.ReadRSSI(context.Background())
	}()
	waitFor(t, func() bool { return adapter.rssiReadCount() == 1 })

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.ReadRSSI(context.Background())
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	p.HandleDidReadRSSI(-42, nil)
	wg.Wait()

	assert.Equal(t, 1, adapter.rssiReadCount())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, -42, results[i])
	}
	assert.Equal(t, -42, p.Storage.RSSI())
}

func TestConnectedObservableOnlyAfterDiscoveryCompletes(t *testing.T) {
	adapter := newFakeAdapter()
	p := NewPeripheral("id", adapter, nil)
	require.NoError(t, p.Connect(context.Background(), nil))
	assert.Equal(t, StateConnecting, p.Storage.State())

	// The OS-level didConnect alone must not latch "connected".
	p.HandleConnected()
	assert.Equal(t, StateConnecting, p.Storage.State())

	p.HandleDidDiscoverServices([]osble.ServiceInfo{{UUID: testRef.ServiceUUID, Primary: true}}, nil)
	assert.Equal(t, StateConnecting, p.Storage.State())

	p.HandleDidDiscoverCharacteristics(testRef.ServiceUUID, []osble.CharacteristicInfo{{
		Ref:        testRef,
		Properties: osble.PropRead | osble.PropNotify,
	}}, nil)
	assert.Equal(t, StateConnected, p.Storage.State())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Connected(ctx))
}

func TestConnectWhileNotDisconnectedIsRejected(t *testing.T) {
	adapter := newFakeAdapter()
	p := newConnectedPeripheral(adapter)
	err := p.Connect(context.Background(), nil)
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestDisconnectCancelsInFlightRead(t *testing.T) {
	adapter := newFakeAdapter()
	p := newConnectedPeripheral(adapter)

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Read(context.Background(), testRef)
		errCh <- err
	}()
	waitFor(t, func() bool { return adapter.readCount() == 1 })

	p.HandleDisconnected(10 * time.Second)
	err := <-errCh
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, StateDisconnected, p.Storage.State())
}

func TestFailedToConnectPropagatesAsDisconnect(t *testing.T) {
	adapter := newFakeAdapter()
	p := NewPeripheral("id", adapter, nil)
	require.NoError(t, p.Connect(context.Background(), nil))

	p.HandleFailedToConnect(errors.New("gatt busy"))
	assert.Equal(t, StateDisconnected, p.Storage.State())
}

func TestServiceInvalidationFailsInFlightAndTriggersRediscovery(t *testing.T) {
	adapter := newFakeAdapter()
	p := newConnectedPeripheral(adapter)

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Read(context.Background(), testRef)
		errCh <- err
	}()
	waitFor(t, func() bool { return adapter.readCount() == 1 })

	p.HandleDidModifyServices([]gatt.UUID{testRef.ServiceUUID})
	err := <-errCh
	assert.ErrorIs(t, err, ErrNotPresent)

	_, ok := p.Storage.Characteristic(testRef.ServiceUUID, testRef.UUID)
	assert.False(t, ok)

	adapter.mu.Lock()
	rediscoveries := len(adapter.discoverServicesCalls)
	adapter.mu.Unlock()
	assert.Equal(t, 1, rediscoveries)
}

func TestSubscribeInitialSeesCurrentValueThenUpdates(t *testing.T) {
	adapter := newFakeAdapter()
	p := newConnectedPeripheral(adapter)
	p.HandleDidUpdateValue(testRef, []byte{0x01}, nil)

	sub := p.Subscribe(testRef, true)
	defer sub.Cancel()

	// The first receive is the already-known value.
	select {
	case v := <-sub.C():
		assert.Equal(t, []byte{0x01}, v)
	case <-time.After(time.Second):
		t.Fatal("initial value not delivered")
	}

	p.HandleDidUpdateValue(testRef, []byte{0x02}, nil)
	select {
	case v := <-sub.C():
		assert.Equal(t, []byte{0x02}, v)
	case <-time.After(time.Second):
		t.Fatal("live update not delivered")
	}
}

func TestSubscribeInitialSeedsExactlyOnce(t *testing.T) {
	adapter := newFakeAdapter()
	p := newConnectedPeripheral(adapter)
	p.HandleDidUpdateValue(testRef, []byte{0x01}, nil)
	p.HandleDidUpdateValue(testRef, []byte{0x02}, nil)

	sub := p.Subscribe(testRef, true)
	defer sub.Cancel()

	select {
	case v := <-sub.C():
		assert.Equal(t, []byte{0x02}, v, "seed must be the latest value, not a replay of older ones")
	case <-time.After(time.Second):
		t.Fatal("initial value not delivered")
	}

	// Nothing else may arrive until a new value is published.
	select {
	case v := <-sub.C():
		t.Fatalf("duplicate seed delivered: %v", v)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSubscribeNonInitialSkipsKnownValue(t *testing.T) {
	adapter := newFakeAdapter()
	p := newConnectedPeripheral(adapter)
	p.HandleDidUpdateValue(testRef, []byte{0x01}, nil)

	sub := p.Subscribe(testRef, false)
	defer sub.Cancel()

	select {
	case v := <-sub.C():
		t.Fatalf("unexpected pre-registration value delivered: %v", v)
	case <-time.After(20 * time.Millisecond):
	}

	p.HandleDidUpdateValue(testRef, []byte{0x02}, nil)
	select {
	case v := <-sub.C():
		assert.Equal(t, []byte{0x02}, v)
	case <-time.After(time.Second):
		t.Fatal("live update not delivered")
	}
}

func TestEnableNotificationsRecordsRequestBeforeAcknowledgement(t *testing.T) {
	adapter := newFakeAdapter()
	p := newConnectedPeripheral(adapter)

	require.NoError(t, p.EnableNotifications(testRef, true))
	cs := p.charState(testRef)
	assert.True(t, cs.notifyRequested.Load())

	c, _ := p.Storage.Characteristic(testRef.ServiceUUID, testRef.UUID)
	assert.False(t, c.Notifying, "Notifying latches only on the OS acknowledgement")

	p.HandleDidUpdateNotificationState(testRef, true, nil)
	c, _ = p.Storage.Characteristic(testRef.ServiceUUID, testRef.UUID)
	assert.True(t, c.Notifying)
}
