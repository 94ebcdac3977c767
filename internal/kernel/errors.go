package kernel

import "errors"

// Recoverable wait outcomes. A blocked operation resolves with exactly one
// of success, ErrTimeout, or ErrDeleted; immediate operations that find no
// capacity return ErrWouldBlock.
var (
	// ErrTimeout reports that a bounded wait exceeded its deadline.
	ErrTimeout = errors.New("wait timed out")
	// ErrWouldBlock reports that a zero-timeout operation found no capacity.
	ErrWouldBlock = errors.New("operation would block")
	// ErrDeleted reports that the object was closed while the caller waited
	// on it, or was already closed when the caller arrived.
	ErrDeleted = errors.New("object deleted")
)

// Programmer errors. These are reported synchronously and never mutate
// shared state.
var (
	// ErrBadPriority reports a priority outside [PrioHighest, PrioLowest].
	ErrBadPriority = errors.New("priority out of range")
	// ErrNotCurrent reports a thread-context operation whose self handle is
	// not the running thread. Blocking calls from interrupt context land here.
	ErrNotCurrent = errors.New("caller is not the running thread")
	// ErrTerminated reports an operation on a terminated thread handle.
	ErrTerminated = errors.New("thread is terminated")
	// ErrNotOwner reports an unlock of a mutex the caller does not hold.
	ErrNotOwner = errors.New("mutex not held by caller")
	// ErrSizeMismatch reports a payload or buffer whose size does not fit
	// the receiving side. Data is never truncated.
	ErrSizeMismatch = errors.New("size mismatch")
	// ErrDeadlock reports a join that can never complete (joining self).
	ErrDeadlock = errors.New("join would deadlock")
	// ErrBadState reports a lifecycle operation invalid for the target's
	// current state, e.g. suspending a blocked thread.
	ErrBadState = errors.New("invalid thread state for operation")
)
