package kernel

// ThreadID is a stable handle into the kernel thread table. The zero value
// is never a valid thread.
type ThreadID uint32

// Priority orders threads for scheduling; numerically lower values are more
// urgent. Negative priorities form the cooperative class: such threads are
// never preempted and give up the processor only by blocking or yielding.
type Priority int8

const (
	// PrioHighest is the most urgent priority a thread may hold.
	PrioHighest Priority = -16
	// PrioLowest is the least urgent user priority.
	PrioLowest Priority = 15

	// prioIdle sits below every user thread; only the idle thread holds it.
	prioIdle Priority = 16
)

// valid reports whether p is usable for a user thread.
func (p Priority) valid() bool {
	return p >= PrioHighest && p <= PrioLowest
}

// Preemptible reports whether a thread at this priority may be preempted
// by a more urgent one at scheduling points.
func (p Priority) Preemptible() bool {
	return p >= 0
}

// ThreadState describes where a thread is in its lifecycle.
type ThreadState uint8

const (
	// StateReady means the thread is queued and runnable.
	StateReady ThreadState = iota
	// StateRunning means the thread is the one executing.
	StateRunning
	// StateWaiting means the thread is blocked with no deadline.
	StateWaiting
	// StateWaitingTimeout means the thread is blocked with a deadline armed.
	StateWaitingTimeout
	// StateSuspended means the thread was taken off the scheduler until an
	// explicit resume.
	StateSuspended
	// StateTerminated means the thread exited or was terminated. Terminal.
	StateTerminated
)

// String returns the lowercase state name.
func (s ThreadState) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateWaiting:
		return "waiting"
	case StateWaitingTimeout:
		return "waiting+timeout"
	case StateSuspended:
		return "suspended"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// waitResult is the resolution slot written by whoever wakes a blocked
// thread. Exactly one writer wins; resolveWait enforces that.
type waitResult uint8

const (
	waitPending waitResult = iota
	waitSignaled
	waitTimedOut
	waitDeleted
	// waitPurged resolves putters failed by MsgQueue.Purge; it surfaces as
	// the would-block condition, there being no message slot anymore.
	waitPurged
)

// err maps a resolution to the caller-visible error.
func (r waitResult) err() error {
	switch r {
	case waitSignaled:
		return nil
	case waitTimedOut:
		return ErrTimeout
	case waitDeleted:
		return ErrDeleted
	case waitPurged:
		return ErrWouldBlock
	default:
		panic("kestrel: wait resolved without a result")
	}
}

// Thread is the control block for one kernel thread. All fields are guarded
// by the kernel lock; the embedding goroutine only touches them through
// kernel operations.
type Thread struct {
	id   ThreadID
	name string
	k    *Kernel

	basePrio Priority
	prio     Priority // effective priority, may be raised by inheritance
	state    ThreadState

	// queue links. A thread sits in at most one ordered queue (ready queue
	// or a wait queue) and at most one timeout entry at any time.
	q          *waitQueue
	prev, next *Thread
	tmo        *timeoutEntry

	wres waitResult

	// gate is the context-switch primitive for the host port: the thread's
	// goroutine parks on it and runs only while it holds the token.
	gate chan struct{}

	// joiners holds threads blocked in Join on this thread.
	joiners waitQueue

	// transfer state for message queue and mailbox rendezvous, valid only
	// while blocked on the owning object.
	xferBuf    []byte   // msgq get destination / mailbox receive buffer
	xferData   []byte   // mailbox send payload
	xferTarget ThreadID // mailbox send target filter (0 = any)
	xferSource ThreadID // mailbox receive source filter (0 = any)
	xferInfo   MboxInfo // filled in by the matching sender
	xferSeq    uint64   // mailbox enqueue order stamp
}

// ID returns the thread's stable handle.
func (t *Thread) ID() ThreadID {
	return t.id
}

// Name returns the name given at spawn.
func (t *Thread) Name() string {
	return t.name
}

// Kernel returns the kernel this thread belongs to.
func (t *Thread) Kernel() *Kernel {
	return t.k
}

// blocked reports whether the thread is in a resolvable wait.
func (t *Thread) blocked() bool {
	return t.state == StateWaiting || t.state == StateWaitingTimeout
}

// ThreadInfo is a copied snapshot of one thread's scheduler-visible state.
type ThreadInfo struct {
	ID       ThreadID
	Name     string
	Priority Priority
	BasePrio Priority
	State    ThreadState
}
