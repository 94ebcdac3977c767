// Package ktrace records kernel scheduler events: spawns, context
// switches, blocks, wakes, ticks, and object signals. Tracers are cheap
// enough to leave wired in; the nop tracer collapses to a branch.
package ktrace

import (
	"sync/atomic"
	"time"
)

// Kind is the scheduler event type.
type Kind uint8

const (
	// KindSpawn records a thread entering the system.
	KindSpawn Kind = iota + 1
	// KindSwitch records a context switch to the named thread.
	KindSwitch
	// KindBlock records a thread leaving the processor to wait.
	KindBlock
	// KindWake records a wait resolving.
	KindWake
	// KindTick records the tick counter advancing.
	KindTick
	// KindSignal records an object operation: give, put, send, acquire.
	KindSignal
	// KindExit records a thread terminating.
	KindExit
)

// String returns the event kind name.
func (k Kind) String() string {
	switch k {
	case KindSpawn:
		return "spawn"
	case KindSwitch:
		return "switch"
	case KindBlock:
		return "block"
	case KindWake:
		return "wake"
	case KindTick:
		return "tick"
	case KindSignal:
		return "signal"
	case KindExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Event is a single recorded scheduler event. Thread and Name are zero
// for events with no thread attribution, such as ticks and ISR signals.
type Event struct {
	Time   time.Time `msgpack:"time"`
	Seq    uint64    `msgpack:"seq"`
	Tick   uint64    `msgpack:"tick"`
	Kind   Kind      `msgpack:"kind"`
	Thread uint32    `msgpack:"thread,omitempty"`
	Name   string    `msgpack:"name,omitempty"`
	Detail string    `msgpack:"detail,omitempty"`
}

var seqCounter atomic.Uint64

// nextSeq returns the next global event sequence number.
func nextSeq() uint64 {
	return seqCounter.Add(1)
}
