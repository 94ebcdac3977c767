// Package kernel implements a preemptible priority scheduler and the
// synchronization primitives built on it: counting semaphores, mutexes with
// priority inheritance, bounded message queues, and synchronous mailboxes.
//
// One Kernel models one processor: exactly one thread runs at a time, and
// every other thread goroutine is parked on its gate. All kernel object
// state is mutated inside the kernel lock, which stands in for the
// interrupt-disable critical section of the original design. Goroutines
// outside the kernel play the role of interrupt handlers: they may call
// Tick and the *ISR entry points, never the blocking variants.
package kernel

import (
	"sync"

	"kestrel/internal/ktrace"
)

// Config carries kernel construction options.
type Config struct {
	// Tracer receives scheduler events. Nil disables tracing.
	Tracer ktrace.Tracer

	// AutoAdvance lets the idle thread jump the tick counter straight to
	// the earliest pending deadline instead of waiting for an external
	// tick source. Sleeps and timeouts then run in virtual time, which is
	// what the scenario runner and the deterministic tests use.
	AutoAdvance bool
}

// Kernel is the process-wide scheduler instance. Create one with New,
// populate it with Spawn, then Start it. There is no teardown during
// normal operation; Stop exists for tests and for the CLI.
type Kernel struct {
	mu       sync.Mutex
	idleCond *sync.Cond // wakes the idle thread on external events
	quiesce  *sync.Cond // broadcast whenever the kernel goes idle

	cfg    Config
	tracer ktrace.Tracer

	threads []*Thread // arena; ThreadID is a 1-based index
	ready   waitQueue
	current *Thread
	idle    *Thread

	now      uint64
	timeouts timeoutHeap
	tmoSeq   uint64
	mboxSeq  uint64

	started    bool
	stopped    bool
	idleParked bool

	wg sync.WaitGroup // live user threads
}

// New creates a kernel instance.
func New(cfg Config) *Kernel {
	k := &Kernel{cfg: cfg, tracer: cfg.Tracer}
	if k.tracer == nil {
		k.tracer = ktrace.Nop
	}
	k.idleCond = sync.NewCond(&k.mu)
	k.quiesce = sync.NewCond(&k.mu)
	return k
}

// Now returns the current tick count.
func (k *Kernel) Now() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.now
}

// Spawn creates a thread and queues it ready. It is safe from any context
// and never switches by itself; an in-thread spawn that outranks the
// caller takes effect at the caller's next scheduling point.
func (k *Kernel) Spawn(name string, prio Priority, entry func(*Thread)) (ThreadID, error) {
	if !prio.valid() {
		return 0, ErrBadPriority
	}
	if entry == nil {
		return 0, ErrBadState
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.stopped {
		return 0, ErrTerminated
	}
	t := k.newThread(name, prio)
	k.wg.Add(1)
	go k.threadMain(t, entry)
	k.readyThread(t, false)
	k.emit(ktrace.KindSpawn, t, "")
	k.idleCond.Signal()
	return t.id, nil
}

// newThread allocates a control block in the arena. Kernel lock held.
func (k *Kernel) newThread(name string, prio Priority) *Thread {
	t := &Thread{
		name:     name,
		k:        k,
		basePrio: prio,
		prio:     prio,
		gate:     make(chan struct{}, 1),
	}
	k.threads = append(k.threads, t)
	t.id = ThreadID(len(k.threads))
	return t
}

// lookup resolves a handle, rejecting terminated threads.
func (k *Kernel) lookup(id ThreadID) (*Thread, error) {
	if id == 0 || int(id) > len(k.threads) {
		return nil, ErrTerminated
	}
	t := k.threads[id-1]
	if t.state == StateTerminated {
		return nil, ErrTerminated
	}
	return t, nil
}

// threadMain is the goroutine body wrapping a thread entry point.
func (k *Kernel) threadMain(t *Thread, entry func(*Thread)) {
	defer k.wg.Done()
	<-t.gate
	k.mu.Lock()
	if t.state == StateTerminated {
		k.mu.Unlock()
		return
	}
	k.mu.Unlock()
	defer k.threadExit(t)
	entry(t)
}

// threadExit retires the current thread after its entry returned, or
// unwinds a goroutine whose thread was already terminated by someone else.
func (k *Kernel) threadExit(t *Thread) {
	k.mu.Lock()
	if t.state == StateTerminated {
		// Terminated while parked; the terminator did the bookkeeping.
		k.mu.Unlock()
		return
	}
	k.finishCurrent(t)
}

// finishCurrent marks the running thread terminated, wakes its joiners,
// and hands the processor on. Kernel lock held; released on return. The
// calling goroutine must return immediately afterwards.
func (k *Kernel) finishCurrent(t *Thread) {
	t.state = StateTerminated
	k.emit(ktrace.KindExit, t, "")
	for t.joiners.head != nil {
		k.resolveWait(t.joiners.head, waitSignaled)
	}
	next := k.ready.pop()
	if next == nil {
		if !k.stopped {
			panic("kestrel: no runnable thread on exit")
		}
		// Stop already retired the idle loop; this was the last thread.
		k.current = nil
		k.quiesce.Broadcast()
		k.mu.Unlock()
		return
	}
	k.current = next
	next.state = StateRunning
	k.emit(ktrace.KindSwitch, next, "exit handoff")
	next.gate <- struct{}{}
	k.mu.Unlock()
}

// Start launches the idle thread and performs the first context switch.
// Threads spawned before Start begin running here, most urgent first.
func (k *Kernel) Start() {
	k.mu.Lock()
	if k.started || k.stopped {
		k.mu.Unlock()
		return
	}
	k.started = true
	idle := k.newThread("idle", 0)
	idle.basePrio = prioIdle
	idle.prio = prioIdle
	k.idle = idle
	go k.idleMain(idle)

	k.ready.insert(idle, false)
	first := k.ready.pop()
	k.current = first
	first.state = StateRunning
	k.emit(ktrace.KindSwitch, first, "boot")
	first.gate <- struct{}{}
	k.mu.Unlock()
}

// idleMain runs when nothing else can. With AutoAdvance it is also the
// virtual tick source: it jumps time to the next deadline the moment the
// system quiesces.
func (k *Kernel) idleMain(t *Thread) {
	<-t.gate
	k.mu.Lock()
	for {
		if t.state == StateTerminated || k.stopped {
			k.mu.Unlock()
			return
		}
		if !k.ready.empty() {
			k.readyThread(t, false)
			k.switchTo(k.ready.pop())
			continue
		}
		if k.cfg.AutoAdvance {
			if deadline, ok := k.nextDeadline(); ok {
				k.now = deadline
				k.emit(ktrace.KindTick, nil, "auto-advance")
				k.expireTimeouts()
				continue
			}
		}
		k.idleParked = true
		k.quiesce.Broadcast()
		k.idleCond.Wait()
		k.idleParked = false
	}
}

// Tick advances the monotonic tick counter by one and expires every
// deadline that has come due. It is the timer-interrupt entry point and is
// safe from any goroutine. A woken thread that outranks the running one
// preempts it at that thread's next scheduling point.
func (k *Kernel) Tick() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.stopped {
		return
	}
	k.now++
	k.emit(ktrace.KindTick, nil, "")
	k.expireTimeouts()
	k.idleCond.Signal()
}

// WaitIdle blocks until every thread is blocked or gone and, under
// AutoAdvance, no deadline is pending. Tests drive deterministic schedules
// with WaitIdle + Tick.
func (k *Kernel) WaitIdle() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for !(k.idleParked && k.ready.empty()) {
		if k.stopped {
			return
		}
		k.quiesce.Wait()
	}
}

// Wait blocks until every user thread has exited.
func (k *Kernel) Wait() {
	k.wg.Wait()
}

// Stop tears the kernel down after its threads are done: it terminates any
// straggler threads and retires the idle loop. A thread still running when
// Stop is called keeps the processor until its next blocking or exit point,
// where it is retired instead of rescheduled. Intended for tests and the
// CLI; a kernel embedded in a long-running system never stops.
func (k *Kernel) Stop() {
	k.mu.Lock()
	if k.stopped {
		k.mu.Unlock()
		return
	}
	k.stopped = true
	for _, t := range k.threads {
		if t == k.idle || t == k.current || t.state == StateTerminated {
			continue
		}
		k.unlinkEverywhere(t)
		t.state = StateTerminated
		t.gate <- struct{}{}
	}
	if k.idle != nil {
		k.idle.state = StateTerminated
		// While a user thread runs, the idle thread sits in the ready
		// queue parked on its gate; unlink and unwind it so the queue
		// genuinely drains before the running thread reschedules.
		if k.idle.q == &k.ready {
			k.ready.unlink(k.idle)
			k.idle.gate <- struct{}{}
		}
	}
	k.idleCond.Broadcast()
	k.quiesce.Broadcast()
	k.mu.Unlock()
	k.wg.Wait()
}

// PriorityOf returns a thread's current effective priority, inheritance
// included. Safe from any context.
func (k *Kernel) PriorityOf(id ThreadID) (Priority, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	t, err := k.lookup(id)
	if err != nil {
		return 0, err
	}
	return t.prio, nil
}

// Snapshot copies the scheduler-visible state of every thread, idle
// included. Safe from any context.
func (k *Kernel) Snapshot() []ThreadInfo {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]ThreadInfo, 0, len(k.threads))
	for _, t := range k.threads {
		out = append(out, ThreadInfo{
			ID:       t.id,
			Name:     t.name,
			Priority: t.prio,
			BasePrio: t.basePrio,
			State:    t.state,
		})
	}
	return out
}

// emit forwards a scheduler event to the tracer. Kernel lock held.
func (k *Kernel) emit(kind ktrace.Kind, t *Thread, detail string) {
	if !k.tracer.Enabled() {
		return
	}
	ev := ktrace.Event{Kind: kind, Tick: k.now, Detail: detail}
	if t != nil {
		ev.Thread = uint32(t.id)
		ev.Name = t.name
	}
	k.tracer.Emit(&ev)
}
