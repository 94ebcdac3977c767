package kernel

import "kestrel/internal/ktrace"

// Mutex is an exclusive-ownership lock with recursive acquisition and
// priority inheritance: while a more urgent thread waits, the holder runs
// at the waiter's priority, and reverts exactly at final unlock.
type Mutex struct {
	k        *Kernel
	name     string
	owner    *Thread
	depth    uint32
	origPrio Priority // owner's priority at acquisition, for restoration
	wq       waitQueue
	closed   bool
}

// NewMutex creates an unowned mutex.
func (k *Kernel) NewMutex(name string) *Mutex {
	return &Mutex{k: k, name: name}
}

// Holder returns the owning thread id, or 0 when unowned.
func (m *Mutex) Holder() ThreadID {
	m.k.mu.Lock()
	defer m.k.mu.Unlock()
	if m.owner == nil {
		return 0
	}
	return m.owner.id
}

// Lock acquires the mutex, blocking for up to the given timeout. The
// owner may re-lock; each Lock needs a matching Unlock. While blocked,
// the caller donates its priority to a less urgent owner, re-sorting the
// owner in whatever ordered structure currently holds it.
func (m *Mutex) Lock(self *Thread, to Timeout) error {
	k := m.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkCurrent(self); err != nil {
		return err
	}
	if m.closed {
		return ErrDeleted
	}
	if m.owner == nil {
		m.grant(self)
		k.maybePreempt()
		return nil
	}
	if m.owner == self {
		m.depth++
		k.maybePreempt()
		return nil
	}
	if to.Immediate() {
		return ErrWouldBlock
	}
	k.raisePriority(m.owner, self.prio)
	err := k.blockCurrent(&m.wq, to)
	if err != nil {
		// The wait ended without ownership; the boost this waiter may have
		// donated must decay to what the remaining waiters justify.
		m.decayOwner()
		return err
	}
	// Ownership was handed off by the releasing thread.
	return nil
}

// grant records self as owner. Kernel lock held.
func (m *Mutex) grant(t *Thread) {
	m.owner = t
	m.depth = 1
	m.origPrio = t.prio
	m.k.emit(ktrace.KindSignal, t, "mutex acquire "+m.name)
}

// decayOwner lowers the owner's inherited priority to the most urgent
// remaining waiter, or all the way back to the acquisition snapshot when
// nobody waits. Never raises. Kernel lock held.
func (m *Mutex) decayOwner() {
	if m.owner == nil {
		return
	}
	p := m.origPrio
	if h := m.wq.head; h != nil && h.prio < p {
		p = h.prio
	}
	if p > m.owner.prio {
		m.k.setEffectivePriority(m.owner, p)
	}
}

// Unlock releases one level of ownership. The final unlock restores the
// caller's pre-inheritance priority and hands the mutex directly to the
// most urgent waiter, skipping the ready-queue round trip. Unlocking a
// mutex the caller does not hold is a programmer error.
func (m *Mutex) Unlock(self *Thread) error {
	k := m.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkCurrent(self); err != nil {
		return err
	}
	if m.owner != self {
		return ErrNotOwner
	}
	m.depth--
	if m.depth > 0 {
		return nil
	}
	k.emit(ktrace.KindSignal, self, "mutex release "+m.name)
	restore := m.origPrio
	if w := m.wq.head; w != nil {
		k.resolveWait(w, waitSignaled)
		m.grant(w)
		// Waiters left behind keep boosting the new owner.
		if h := m.wq.head; h != nil {
			k.raisePriority(w, h.prio)
		}
	} else {
		m.owner = nil
	}
	if restore > self.prio {
		k.setEffectivePriority(self, restore)
	}
	k.maybePreempt()
	return nil
}

// Close deletes the mutex: waiters wake with ErrDeleted. An owner holding
// the mutex keeps its restored priority path untouched; later operations
// fail with ErrDeleted.
func (m *Mutex) Close(self *Thread) error {
	k := m.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkCurrent(self); err != nil {
		return err
	}
	if m.closed {
		return ErrDeleted
	}
	m.closed = true
	for m.wq.head != nil {
		k.resolveWait(m.wq.head, waitDeleted)
	}
	m.decayOwner()
	m.owner = nil
	m.depth = 0
	k.maybePreempt()
	return nil
}
