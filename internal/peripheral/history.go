package peripheral

import (
	"encoding/binary"
	"sync"

	"github.com/smallnest/ringbuffer"
)

const frameHeaderSize = 4

// notificationHistoryBytes bounds each characteristic's replay buffer;
// a handful of typical notification payloads, not a full session log.
const notificationHistoryBytes = 2048

// notificationHistory is a bounded, byte-oriented replay buffer for one
// characteristic's recent notification payloads, so a subscriber that
// registers mid-burst can catch up instead of only seeing the latest
// value. Frames are length-prefixed (4-byte big-endian length); oldest
// frames are evicted to make room for new ones once the buffer fills.
// Grounded on internal/ptyio's fixed-capacity smallnest/ringbuffer
// usage, repurposed here from a byte pipe into a replay log.
type notificationHistory struct {
	mu  sync.Mutex
	buf *ringbuffer.RingBuffer
}

func newNotificationHistory(capacityBytes int) *notificationHistory {
	return &notificationHistory{buf: ringbuffer.New(capacityBytes)}
}

// record appends data as a new frame, evicting the oldest frames first
// if there isn't enough room.
func (h *notificationHistory) record(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	need := frameHeaderSize + len(data)
	if need > h.buf.Capacity() {
		// A single payload larger than the whole buffer: drop it together
		// with every older frame, so none of them stands in as the newest.
		for h.evictOldestLocked() {
		}
		return
	}
	for h.buf.Capacity()-h.buf.Length() < need {
		if !h.evictOldestLocked() {
			break
		}
	}

	var hdr [frameHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))
	_, _ = h.buf.Write(hdr[:])
	_, _ = h.buf.Write(data)
}

func (h *notificationHistory) evictOldestLocked() bool {
	var hdr [frameHeaderSize]byte
	if _, err := h.buf.Read(hdr[:]); err != nil {
		return false
	}
	n := binary.BigEndian.Uint32(hdr[:])
	discard := make([]byte, n)
	_, _ = h.buf.Read(discard)
	return true
}

// snapshot peeks every buffered frame, oldest first, without consuming
// the buffer — a subscriber calls this once, right after subscribing,
// to catch up on recent history before switching to live updates.
func (h *notificationHistory) snapshot() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()

	var frames [][]byte
	var raw [][]byte
	for h.buf.Length() > 0 {
		var hdr [frameHeaderSize]byte
		if _, err := h.buf.Read(hdr[:]); err != nil {
			break
		}
		n := binary.BigEndian.Uint32(hdr[:])
		payload := make([]byte, n)
		if _, err := h.buf.Read(payload); err != nil {
			break
		}
		frames = append(frames, payload)

		frame := make([]byte, frameHeaderSize+len(payload))
		binary.BigEndian.PutUint32(frame, uint32(len(payload)))
		copy(frame[frameHeaderSize:], payload)
		raw = append(raw, frame)
	}
	for _, frame := range raw {
		_, _ = h.buf.Write(frame)
	}
	return frames
}
