package kernel

import "kestrel/internal/ktrace"

// Sem is a counting semaphore. Gives beyond the configured limit saturate
// silently; a give with waiters hands off directly to the head waiter
// without touching the count.
type Sem struct {
	k      *Kernel
	name   string
	count  uint32
	limit  uint32
	wq     waitQueue
	closed bool
}

// NewSem creates a semaphore with an initial count and an upper bound.
// limit must be nonzero and initial must not exceed it.
func (k *Kernel) NewSem(name string, initial, limit uint32) (*Sem, error) {
	if limit == 0 || initial > limit {
		return nil, ErrBadState
	}
	return &Sem{k: k, name: name, count: initial, limit: limit}, nil
}

// Count returns the current count.
func (s *Sem) Count() uint32 {
	s.k.mu.Lock()
	defer s.k.mu.Unlock()
	return s.count
}

// Reset drops the count to zero. Waiters are unaffected.
func (s *Sem) Reset() {
	s.k.mu.Lock()
	defer s.k.mu.Unlock()
	s.count = 0
}

// give wakes the head waiter or bumps the count. Kernel lock held.
// Reports whether a thread was woken.
func (s *Sem) give() bool {
	if w := s.wq.head; w != nil {
		s.k.resolveWait(w, waitSignaled)
		return true
	}
	if s.count < s.limit {
		s.count++
	}
	return false
}

// Give releases one count from thread context. If the woken waiter
// outranks the caller the switch happens before Give returns.
func (s *Sem) Give(self *Thread) error {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkCurrent(self); err != nil {
		return err
	}
	if s.closed {
		return ErrDeleted
	}
	k.emit(ktrace.KindSignal, self, "sem give "+s.name)
	s.give()
	k.maybePreempt()
	return nil
}

// GiveISR releases one count from interrupt context. It never blocks and
// never switches; a woken thread that outranks the running one is taken
// at the next scheduling point.
func (s *Sem) GiveISR() {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if s.closed {
		return
	}
	k.emit(ktrace.KindSignal, nil, "sem give "+s.name)
	if s.give() {
		k.wakeFromISR()
	}
}

// Take acquires one count, blocking for up to the given timeout. A zero
// timeout fails with ErrWouldBlock instead of entering the wait queue. On
// success the caller either consumed the count synchronously or was handed
// the give directly.
func (s *Sem) Take(self *Thread, to Timeout) error {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkCurrent(self); err != nil {
		return err
	}
	if s.closed {
		return ErrDeleted
	}
	if s.count > 0 {
		s.count--
		k.maybePreempt()
		return nil
	}
	if to.Immediate() {
		return ErrWouldBlock
	}
	return k.blockCurrent(&s.wq, to)
}

// Close deletes the semaphore: every waiter wakes with ErrDeleted and all
// later operations fail the same way.
func (s *Sem) Close(self *Thread) error {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkCurrent(self); err != nil {
		return err
	}
	if s.closed {
		return ErrDeleted
	}
	s.closed = true
	for s.wq.head != nil {
		k.resolveWait(s.wq.head, waitDeleted)
	}
	k.maybePreempt()
	return nil
}
