package kernel

import (
	"runtime"

	"kestrel/internal/ktrace"
)

// checkCurrent validates a thread-context self handle. Every blocking
// operation and every operation whose preemption decision depends on the
// caller goes through this; an interrupt-context caller holding some
// thread's handle is rejected instead of corrupting the schedule.
func (k *Kernel) checkCurrent(self *Thread) error {
	if self == nil || self.k != k {
		return ErrNotCurrent
	}
	if self.state == StateTerminated {
		return ErrTerminated
	}
	if self != k.current {
		return ErrNotCurrent
	}
	return nil
}

// park releases the processor until the thread's gate receives a token.
// Kernel lock held on entry and, for a surviving thread, on return. A
// thread terminated while parked unwinds its goroutine here.
func (k *Kernel) park(t *Thread) {
	k.mu.Unlock()
	<-t.gate
	k.mu.Lock()
	if t.state == StateTerminated {
		k.mu.Unlock()
		runtime.Goexit()
	}
}

// switchTo hands the processor from the calling (current) thread to next.
// Kernel lock held. The caller's scheduler state must already be settled:
// either queued ready, waiting on an object, or suspended.
func (k *Kernel) switchTo(next *Thread) {
	prev := k.current
	k.current = next
	next.state = StateRunning
	k.emit(ktrace.KindSwitch, next, "")
	next.gate <- struct{}{}
	k.park(prev)
}

// readyThread queues t runnable. front preserves the thread's turn within
// its priority class, used when the running thread is preempted.
func (k *Kernel) readyThread(t *Thread, front bool) {
	t.state = StateReady
	k.ready.insert(t, front)
}

// scheduleNext switches away from a thread that can no longer run. The
// ready queue is never empty once the kernel has started: the idle thread
// backstops it until Stop retires it, after which the calling thread is
// retired too instead of switched.
func (k *Kernel) scheduleNext() {
	next := k.ready.pop()
	if next == nil {
		if k.stopped {
			k.retireCurrent() // never returns
		}
		panic("kestrel: no runnable thread")
	}
	k.switchTo(next)
}

// retireCurrent unwinds the running thread's goroutine once Stop has
// emptied the system: with the idle loop gone there is nothing left to
// switch to. Kernel lock held on entry, released here; never returns.
func (k *Kernel) retireCurrent() {
	t := k.current
	k.unlinkEverywhere(t)
	t.state = StateTerminated
	k.emit(ktrace.KindExit, t, "stopped")
	k.current = nil
	k.quiesce.Broadcast()
	k.mu.Unlock()
	runtime.Goexit()
}

// maybePreempt is the synchronous preemption point: switch when the ready
// head outranks the running thread. Every object give and take entry ends
// here, so a thread readied from interrupt context takes the processor at
// the running thread's next kernel entry. A cooperative caller is never
// preempted; it keeps the processor until it blocks or yields.
func (k *Kernel) maybePreempt() {
	t := k.current
	if t == nil || !t.prio.Preemptible() {
		return
	}
	h := k.ready.head
	if h == nil || h.prio >= t.prio {
		return
	}
	k.readyThread(t, true)
	k.switchTo(k.ready.pop())
}

// wakeFromISR is the interrupt-side scheduling epilogue: no switch happens
// on the interrupt goroutine, but an idle processor is kicked so the woken
// thread runs. Preempting a busy thread waits for its next kernel entry,
// the host port's stand-in for interrupt return.
func (k *Kernel) wakeFromISR() {
	k.idleCond.Signal()
}

// blockCurrent suspends the running thread on q with the given timeout and
// returns the wait resolution once somebody wakes it. q may be nil for a
// pure sleep. Kernel lock held throughout, minus the parked span.
func (k *Kernel) blockCurrent(q *waitQueue, to Timeout) error {
	t := k.current
	t.wres = waitPending
	if q != nil {
		q.insert(t, false)
	}
	if to.Unbounded() {
		t.state = StateWaiting
	} else {
		k.scheduleTimeout(t, to.ticks)
		t.state = StateWaitingTimeout
	}
	k.emit(ktrace.KindBlock, t, "")
	k.scheduleNext()
	return t.wres.err()
}

// resolveWait wakes a blocked thread with the given resolution. It is the
// single place a wait ends: the thread leaves its wait queue and its
// timeout entry before anyone can observe it blocked, so a signal and a
// concurrent expiry can never both win. Returns false if the thread was
// not in a resolvable wait.
func (k *Kernel) resolveWait(t *Thread, res waitResult) bool {
	if !t.blocked() {
		return false
	}
	if t.q != nil {
		t.q.unlink(t)
	}
	k.cancelTimeout(t)
	t.wres = res
	k.readyThread(t, false)
	detail := ""
	switch res {
	case waitTimedOut:
		detail = "timeout"
	case waitDeleted:
		detail = "deleted"
	case waitPurged:
		detail = "purged"
	}
	k.emit(ktrace.KindWake, t, detail)
	return true
}

// unlinkEverywhere removes a thread from any queue and timeout entry it
// occupies, leaving remaining waiters intact.
func (k *Kernel) unlinkEverywhere(t *Thread) {
	if t.q != nil {
		t.q.unlink(t)
	}
	k.cancelTimeout(t)
}

// Yield moves the caller behind its priority equals and reschedules.
func (k *Kernel) Yield(self *Thread) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkCurrent(self); err != nil {
		return err
	}
	k.readyThread(self, false)
	next := k.ready.pop()
	if next == self {
		self.state = StateRunning
		return nil
	}
	k.switchTo(next)
	return nil
}

// Sleep blocks the caller for n ticks. Sleep(self, 0) degrades to Yield.
func (k *Kernel) Sleep(self *Thread, n uint32) error {
	if n == 0 {
		return k.Yield(self)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkCurrent(self); err != nil {
		return err
	}
	if err := k.blockCurrent(nil, Ticks(n)); err != ErrTimeout {
		return err
	}
	return nil
}

// Join blocks until target exits or the timeout elapses. Joining a thread
// that already terminated succeeds immediately.
func (k *Kernel) Join(self *Thread, target ThreadID, to Timeout) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkCurrent(self); err != nil {
		return err
	}
	if target == self.id {
		return ErrDeadlock
	}
	if target == 0 || int(target) > len(k.threads) {
		return ErrTerminated
	}
	t := k.threads[target-1]
	if t.state == StateTerminated {
		return nil // already gone counts as joined
	}
	if to.Immediate() {
		return ErrWouldBlock
	}
	return k.blockCurrent(&t.joiners, to)
}

// Suspend takes a ready or running thread off the scheduler until Resume.
// Suspending a blocked thread is rejected rather than stacking states.
func (k *Kernel) Suspend(self *Thread, target ThreadID) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkCurrent(self); err != nil {
		return err
	}
	t, err := k.lookup(target)
	if err != nil {
		return err
	}
	switch t.state {
	case StateRunning: // self-suspend
		t.state = StateSuspended
		k.emit(ktrace.KindBlock, t, "suspend")
		k.scheduleNext()
		return nil
	case StateReady:
		k.ready.unlink(t)
		t.state = StateSuspended
		k.emit(ktrace.KindBlock, t, "suspend")
		return nil
	case StateSuspended:
		return nil
	default:
		return ErrBadState
	}
}

// Resume makes a suspended thread runnable again.
func (k *Kernel) Resume(self *Thread, target ThreadID) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkCurrent(self); err != nil {
		return err
	}
	t, err := k.lookup(target)
	if err != nil {
		return err
	}
	if t.state != StateSuspended {
		return ErrBadState
	}
	k.readyThread(t, false)
	k.emit(ktrace.KindWake, t, "resume")
	k.maybePreempt()
	return nil
}

// SetPriority changes a thread's priority and repositions it in whatever
// ordered structure holds it, ready queue or wait queue alike. A mutex
// holder keeps the restoration snapshot taken at acquisition; the unlock
// path restores that snapshot, matching the per-mutex inheritance model.
func (k *Kernel) SetPriority(self *Thread, target ThreadID, prio Priority) error {
	if !prio.valid() {
		return ErrBadPriority
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkCurrent(self); err != nil {
		return err
	}
	t, err := k.lookup(target)
	if err != nil {
		return err
	}
	t.basePrio = prio
	k.setEffectivePriority(t, prio)
	k.maybePreempt()
	return nil
}

// setEffectivePriority applies a new effective priority and re-sorts the
// thread in its owning container. Kernel lock held.
func (k *Kernel) setEffectivePriority(t *Thread, prio Priority) {
	if t.prio == prio {
		return
	}
	t.prio = prio
	if t.q != nil {
		t.q.reposition(t)
	}
}

// raisePriority boosts a thread to at least prio, never lowering it. This
// is the priority-inheritance hook; it re-sorts the thread wherever it
// currently sits.
func (k *Kernel) raisePriority(t *Thread, prio Priority) {
	if prio < t.prio {
		k.setEffectivePriority(t, prio)
	}
}

// Terminate removes a thread from the system. Terminating a blocked or
// queued thread atomically unlinks it from its wait queue and timeout
// entry; its pending operation reports to nobody. Terminating self exits.
func (k *Kernel) Terminate(self *Thread, target ThreadID) error {
	k.mu.Lock()
	if err := k.checkCurrent(self); err != nil {
		k.mu.Unlock()
		return err
	}
	t, err := k.lookup(target)
	if err != nil {
		k.mu.Unlock()
		return err
	}
	if t == k.idle {
		k.mu.Unlock()
		return ErrBadState
	}
	if t == self {
		k.finishCurrent(t) // releases the lock
		runtime.Goexit()
	}
	k.unlinkEverywhere(t)
	t.state = StateTerminated
	k.emit(ktrace.KindExit, t, "terminated")
	for t.joiners.head != nil {
		k.resolveWait(t.joiners.head, waitSignaled)
	}
	t.gate <- struct{}{} // unwind the parked goroutine
	k.maybePreempt()
	k.mu.Unlock()
	return nil
}
