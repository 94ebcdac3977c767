package kernel

// waitQueue is the ordered queue of threads shared by the ready set and by
// every synchronization object. Ordering is strict priority with FIFO
// tie-break; a fifo queue ignores priority entirely (mailbox descriptor
// order). Links are intrusive through the Thread control block, so unlink
// is O(1) from any position.
type waitQueue struct {
	head, tail *Thread
	fifo       bool
}

func (q *waitQueue) empty() bool {
	return q.head == nil
}

// insert places t according to queue order: after every thread at least as
// urgent (FIFO among equals). front instead places t ahead of its equals,
// which is how a preempted thread keeps its turn.
func (q *waitQueue) insert(t *Thread, front bool) {
	if t.q != nil {
		panic("kestrel: thread already queued")
	}
	t.q = q
	if q.fifo {
		q.linkBefore(t, nil)
		return
	}
	at := q.head
	for at != nil {
		if front && at.prio >= t.prio {
			break
		}
		if !front && at.prio > t.prio {
			break
		}
		at = at.next
	}
	q.linkBefore(t, at)
}

// linkBefore links t ahead of at; at == nil appends at the tail.
func (q *waitQueue) linkBefore(t, at *Thread) {
	if at == nil {
		t.prev = q.tail
		t.next = nil
		if q.tail != nil {
			q.tail.next = t
		} else {
			q.head = t
		}
		q.tail = t
		return
	}
	t.next = at
	t.prev = at.prev
	if at.prev != nil {
		at.prev.next = t
	} else {
		q.head = t
	}
	at.prev = t
}

// unlink removes t from the queue it occupies.
func (q *waitQueue) unlink(t *Thread) {
	if t.q != q {
		panic("kestrel: unlink from wrong queue")
	}
	if t.prev != nil {
		t.prev.next = t.next
	} else {
		q.head = t.next
	}
	if t.next != nil {
		t.next.prev = t.prev
	} else {
		q.tail = t.prev
	}
	t.prev, t.next, t.q = nil, nil, nil
}

// pop removes and returns the head, the most urgent earliest-queued thread.
func (q *waitQueue) pop() *Thread {
	t := q.head
	if t == nil {
		return nil
	}
	q.unlink(t)
	return t
}

// reposition re-sorts t after a priority change, keeping it in this queue.
// The thread goes behind its new equals, matching a fresh insertion.
func (q *waitQueue) reposition(t *Thread) {
	q.unlink(t)
	q.insert(t, false)
}
