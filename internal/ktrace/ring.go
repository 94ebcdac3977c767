package ktrace

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// RingTracer keeps the last N events in memory. It is the default tracer
// for the scenario runner: cheap during the run, dumpable afterwards.
type RingTracer struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
	head     int
	full     bool
}

// NewRingTracer creates a ring holding up to capacity events.
func NewRingTracer(capacity int) *RingTracer {
	if capacity <= 0 {
		capacity = 4096
	}
	return &RingTracer{
		events:   make([]Event, capacity),
		capacity: capacity,
	}
}

// Emit stores one event, evicting the oldest when full.
func (t *RingTracer) Emit(ev *Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	stored := *ev
	stored.Seq = nextSeq()
	stored.Time = time.Now()
	t.events[t.head] = stored
	t.head = (t.head + 1) % t.capacity
	if t.head == 0 {
		t.full = true
	}
}

// Flush is a no-op for the ring.
func (t *RingTracer) Flush() error { return nil }

// Close is a no-op for the ring.
func (t *RingTracer) Close() error { return nil }

// Enabled reports true.
func (t *RingTracer) Enabled() bool { return true }

// Snapshot copies the stored events in chronological order.
func (t *RingTracer) Snapshot() []Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.full {
		out := make([]Event, t.head)
		copy(out, t.events[:t.head])
		return out
	}
	out := make([]Event, t.capacity)
	copy(out, t.events[t.head:])
	copy(out[t.capacity-t.head:], t.events[:t.head])
	return out
}

// DumpText writes the buffered events as text lines.
func (t *RingTracer) DumpText(w io.Writer) error {
	for _, ev := range t.Snapshot() {
		if _, err := w.Write(FormatText(&ev)); err != nil {
			return err
		}
	}
	return nil
}

// DumpNDJSON writes the buffered events as newline-delimited JSON.
func (t *RingTracer) DumpNDJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, ev := range t.Snapshot() {
		if err := enc.Encode(&ev); err != nil {
			return err
		}
	}
	return nil
}

// DumpMsgpack writes the buffered events as a msgpack stream, the compact
// form for offline analysis.
func (t *RingTracer) DumpMsgpack(w io.Writer) error {
	enc := msgpack.NewEncoder(w)
	for _, ev := range t.Snapshot() {
		if err := enc.Encode(&ev); err != nil {
			return err
		}
	}
	return nil
}
