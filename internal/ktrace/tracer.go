package ktrace

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Tracer receives kernel events. Emit must be safe from any goroutine:
// the kernel calls it from thread context and interrupt context alike.
type Tracer interface {
	Emit(ev *Event)
	Flush() error
	Close() error
	Enabled() bool
}

// Nop is the disabled tracer.
var Nop Tracer = nopTracer{}

type nopTracer struct{}

func (nopTracer) Emit(*Event)   {}
func (nopTracer) Flush() error  { return nil }
func (nopTracer) Close() error  { return nil }
func (nopTracer) Enabled() bool { return false }

// StreamTracer writes each event as a text line as it happens.
type StreamTracer struct {
	mu  sync.Mutex
	w   io.Writer
	err error
}

// NewStreamTracer creates a tracer streaming to w.
func NewStreamTracer(w io.Writer) *StreamTracer {
	return &StreamTracer{w: w}
}

// Emit writes one event line.
func (t *StreamTracer) Emit(ev *Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return
	}
	stored := *ev
	stored.Seq = nextSeq()
	stored.Time = time.Now()
	_, t.err = t.w.Write(FormatText(&stored))
}

// Flush reports any deferred write error.
func (t *StreamTracer) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Close flushes; the writer's lifetime belongs to the caller.
func (t *StreamTracer) Close() error { return t.Flush() }

// Enabled reports true.
func (t *StreamTracer) Enabled() bool { return true }

// FormatText renders one event as a human-readable line.
func FormatText(ev *Event) []byte {
	who := "-"
	if ev.Thread != 0 {
		who = fmt.Sprintf("%s#%d", ev.Name, ev.Thread)
	}
	if ev.Detail != "" {
		return []byte(fmt.Sprintf("[%08d] %-7s %-20s %s\n", ev.Tick, ev.Kind, who, ev.Detail))
	}
	return []byte(fmt.Sprintf("[%08d] %-7s %s\n", ev.Tick, ev.Kind, who))
}
