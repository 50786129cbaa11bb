package logpipe

import (
	deadlock "github.com/sasha-s/go-deadlock"
)

// DefaultQueueLength is the default bounded outbound queue length per
// reader (§4.G "Backpressure").
const DefaultQueueLength = 4096

// Reader is one connected consumer's outbound event queue. start/end
// events are never dropped; log events are dropped oldest-first when the
// queue is full, with a synthetic error event recording the drop count.
type Reader struct {
	mu       deadlock.Mutex
	capacity int
	buf      []Event
	closed   bool
	notify   chan struct{}
}

// NewReader creates a Reader with the given bounded queue length (0 uses
// DefaultQueueLength).
func NewReader(capacity int) *Reader {
	if capacity <= 0 {
		capacity = DefaultQueueLength
	}
	return &Reader{capacity: capacity, notify: make(chan struct{}, 1)}
}

// Push enqueues an event, applying the drop policy from §4.G
// "Backpressure" to `log` events when the queue is full.
func (r *Reader) Push(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	if ev.Kind != EventLog {
		r.buf = append(r.buf, ev)
		r.signal()
		return
	}

	if len(r.buf) < r.capacity {
		r.buf = append(r.buf, ev)
		r.signal()
		return
	}

	dropped := r.dropOldestLocked()
	r.buf = append(r.buf, ev)
	r.buf = append(r.buf, Event{Kind: EventError, Reason: droppedReason(dropped)})
	r.signal()
}

// dropOldestLocked evicts the oldest `log` event and reports how many were
// dropped in this call: 1, or 0 when the buffer holds no `log` event.
func (r *Reader) dropOldestLocked() int {
	for i, ev := range r.buf {
		if ev.Kind == EventLog {
			r.buf = append(r.buf[:i], r.buf[i+1:]...)
			return 1
		}
	}
	return 0
}

func droppedReason(n int) string {
	if n <= 0 {
		n = 1
	}
	return "dropped:" + itoa(n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (r *Reader) signal() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Drain removes and returns all currently buffered events.
func (r *Reader) Drain() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) == 0 {
		return nil
	}
	out := r.buf
	r.buf = nil
	return out
}

// Wait blocks until an event is available or the done channel fires.
func (r *Reader) Wait(done <-chan struct{}) {
	select {
	case <-r.notify:
	case <-done:
	}
}

// Close marks the reader closed; further Push calls are ignored. It
// implements io.Closer so the server can aggregate shutdown cleanup via
// utils.CloseMany.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.signal()
	return nil
}
