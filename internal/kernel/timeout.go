package kernel

import "container/heap"

// Timeout classifies how long a blocking operation may wait: not at all,
// for a bounded number of ticks, or indefinitely.
type Timeout struct {
	ticks int64
}

// NoWait makes a blocking operation inspect the object and return at once.
var NoWait = Timeout{ticks: 0}

// Forever waits indefinitely and never enters the timeout set.
var Forever = Timeout{ticks: -1}

// Ticks waits for up to n ticks. Ticks(0) is NoWait.
func Ticks(n uint32) Timeout {
	return Timeout{ticks: int64(n)}
}

// Immediate reports the zero-timeout class.
func (to Timeout) Immediate() bool { return to.ticks == 0 }

// Unbounded reports the wait-forever class.
func (to Timeout) Unbounded() bool { return to.ticks < 0 }

// timeoutEntry is one pending deadline. Entries are totally ordered by
// (deadline, seq); seq keeps expiry deterministic for equal deadlines.
type timeoutEntry struct {
	deadline uint64
	seq      uint64
	t        *Thread
	index    int
}

type timeoutHeap []*timeoutEntry

func (h timeoutHeap) Len() int { return len(h) }

func (h timeoutHeap) Less(i, j int) bool {
	if h[i].deadline == h[j].deadline {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline < h[j].deadline
}

func (h timeoutHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timeoutHeap) Push(x any) {
	e, ok := x.(*timeoutEntry)
	if !ok || e == nil {
		return
	}
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timeoutHeap) Pop() any {
	old := *h
	n := len(old)
	if n == 0 {
		return (*timeoutEntry)(nil)
	}
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// scheduleTimeout arms a deadline for the current wait. Kernel lock held.
func (k *Kernel) scheduleTimeout(t *Thread, ticks int64) {
	k.tmoSeq++
	e := &timeoutEntry{
		deadline: k.now + uint64(ticks),
		seq:      k.tmoSeq,
		t:        t,
	}
	t.tmo = e
	heap.Push(&k.timeouts, e)
}

// cancelTimeout disarms the thread's pending deadline if one exists. It is
// a no-op when the entry already fired or was never scheduled.
func (k *Kernel) cancelTimeout(t *Thread) {
	e := t.tmo
	if e == nil {
		return
	}
	t.tmo = nil
	if e.index >= 0 {
		heap.Remove(&k.timeouts, e.index)
	}
}

// expireTimeouts resolves every wait whose deadline is at or before now.
// Each expiry removes the thread from its wait queue, marks the wait timed
// out, and readies the thread, all before the lock is released.
func (k *Kernel) expireTimeouts() {
	for len(k.timeouts) > 0 && k.timeouts[0].deadline <= k.now {
		e, ok := heap.Pop(&k.timeouts).(*timeoutEntry)
		if !ok || e == nil {
			continue
		}
		t := e.t
		if t.tmo != e {
			continue // wait already resolved by a signal
		}
		t.tmo = nil
		k.resolveWait(t, waitTimedOut)
	}
}

// nextDeadline returns the earliest pending deadline, if any.
func (k *Kernel) nextDeadline() (uint64, bool) {
	if len(k.timeouts) == 0 {
		return 0, false
	}
	return k.timeouts[0].deadline, true
}
