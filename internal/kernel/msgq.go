package kernel

import (
	"fortio.org/safecast"

	"kestrel/internal/ktrace"
)

// MsgQueue is a bounded queue of fixed-size items copied by value through
// a ring buffer. Put and get stay decoupled through the ring: a blocked
// putter is woken with a slot reservation and copies its own item in, and
// a blocked getter has the head item copied into its buffer by whoever
// frees it, always via the ring.
type MsgQueue struct {
	k        *Kernel
	name     string
	itemSize int
	capacity int

	buf   []byte
	head  int // ring index of the oldest item
	count int // occupied slots
	// reserved counts slots promised to woken putters that have not copied
	// yet. While any reservation is outstanding, new puts queue behind it
	// so item order matches blocking order.
	reserved int

	putq   waitQueue
	getq   waitQueue
	closed bool
}

// NewMsgQueue creates a queue of capacity items of itemSize bytes each.
func (k *Kernel) NewMsgQueue(name string, itemSize, capacity int) (*MsgQueue, error) {
	if itemSize <= 0 || capacity <= 0 {
		return nil, ErrBadState
	}
	if _, err := safecast.Conv[uint32](itemSize * capacity); err != nil {
		return nil, ErrBadState
	}
	return &MsgQueue{
		k:        k,
		name:     name,
		itemSize: itemSize,
		capacity: capacity,
		buf:      make([]byte, itemSize*capacity),
	}, nil
}

// Cap returns the queue capacity in items.
func (q *MsgQueue) Cap() int { return q.capacity }

// ItemSize returns the fixed item size in bytes.
func (q *MsgQueue) ItemSize() int { return q.itemSize }

// Len returns the number of occupied slots.
func (q *MsgQueue) Len() int {
	q.k.mu.Lock()
	defer q.k.mu.Unlock()
	return q.count
}

// FreeSpace returns the number of slots a put can claim right now.
func (q *MsgQueue) FreeSpace() int {
	q.k.mu.Lock()
	defer q.k.mu.Unlock()
	return q.capacity - q.count - q.reserved
}

// slotAt returns the ring storage for the i-th occupied slot after head.
func (q *MsgQueue) slotAt(i int) []byte {
	idx := (q.head + i) % q.capacity
	return q.buf[idx*q.itemSize : (idx+1)*q.itemSize]
}

// append copies item into the ring tail. Kernel lock held.
func (q *MsgQueue) append(item []byte) {
	copy(q.slotAt(q.count), item)
	q.count++
}

// deliverHead copies the oldest item out of the ring into buf and frees
// the slot. Kernel lock held.
func (q *MsgQueue) deliverHead(buf []byte) {
	copy(buf, q.slotAt(0))
	q.head = (q.head + 1) % q.capacity
	q.count--
}

// serveGetter hands the ring head to the earliest blocked getter, if any.
// Kernel lock held. Reports whether a getter was woken.
func (q *MsgQueue) serveGetter() bool {
	w := q.getq.head
	if w == nil || q.count == 0 {
		return false
	}
	q.deliverHead(w.xferBuf)
	w.xferBuf = nil
	q.k.resolveWait(w, waitSignaled)
	return true
}

// releaseSlot wakes the earliest blocked putter with a slot reservation.
// Kernel lock held. Reports whether a putter was woken.
func (q *MsgQueue) releaseSlot() bool {
	w := q.putq.head
	if w == nil {
		return false
	}
	q.reserved++
	q.k.resolveWait(w, waitSignaled)
	return true
}

// canPutNow reports whether a put may claim a slot without queueing:
// there must be space and no earlier putter still owed a slot.
func (q *MsgQueue) canPutNow() bool {
	return q.reserved == 0 && q.putq.empty() && q.count < q.capacity
}

// Put copies item into the queue, blocking while it is full for up to the
// given timeout. A zero timeout fails with ErrWouldBlock on a full queue.
// Items are delivered strictly in the order puts completed or blocked.
func (q *MsgQueue) Put(self *Thread, item []byte, to Timeout) error {
	k := q.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkCurrent(self); err != nil {
		return err
	}
	if len(item) != q.itemSize {
		return ErrSizeMismatch
	}
	if q.closed {
		return ErrDeleted
	}
	if q.canPutNow() {
		q.append(item)
		k.emit(ktrace.KindSignal, self, "msgq put "+q.name)
		q.serveGetter()
		k.maybePreempt()
		return nil
	}
	if to.Immediate() {
		return ErrWouldBlock
	}
	if err := k.blockCurrent(&q.putq, to); err != nil {
		return err
	}
	// Woken with a reservation: the slot is ours, copy our own item.
	q.reserved--
	q.append(item)
	k.emit(ktrace.KindSignal, self, "msgq put "+q.name)
	q.serveGetter()
	k.maybePreempt()
	return nil
}

// PutISR copies item into the queue from interrupt context. It never
// blocks; a full queue reports ErrWouldBlock.
func (q *MsgQueue) PutISR(item []byte) error {
	k := q.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(item) != q.itemSize {
		return ErrSizeMismatch
	}
	if q.closed {
		return ErrDeleted
	}
	if !q.canPutNow() {
		return ErrWouldBlock
	}
	q.append(item)
	k.emit(ktrace.KindSignal, nil, "msgq put "+q.name)
	if q.serveGetter() {
		k.wakeFromISR()
	}
	return nil
}

// Get copies the oldest item into buf, blocking while the queue is empty
// for up to the given timeout. buf must hold exactly one item.
func (q *MsgQueue) Get(self *Thread, buf []byte, to Timeout) error {
	k := q.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkCurrent(self); err != nil {
		return err
	}
	if len(buf) != q.itemSize {
		return ErrSizeMismatch
	}
	if q.closed {
		return ErrDeleted
	}
	if q.count > 0 {
		q.deliverHead(buf)
		q.releaseSlot()
		k.maybePreempt()
		return nil
	}
	if to.Immediate() {
		return ErrWouldBlock
	}
	self.xferBuf = buf
	err := k.blockCurrent(&q.getq, to)
	self.xferBuf = nil
	// On success the item was already copied into buf, through the ring,
	// by the thread that queued it; the slot accounting settled there too.
	return err
}

// Purge drops every queued item. Blocked putters fail with ErrWouldBlock;
// putters already woken with a reservation still complete, since their
// slot was promised before the purge.
func (q *MsgQueue) Purge(self *Thread) error {
	k := q.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkCurrent(self); err != nil {
		return err
	}
	if q.closed {
		return ErrDeleted
	}
	q.head = 0
	q.count = 0
	for q.putq.head != nil {
		k.resolveWait(q.putq.head, waitPurged)
	}
	k.maybePreempt()
	return nil
}

// Close deletes the queue: all blocked putters and getters wake with
// ErrDeleted and later operations fail the same way.
func (q *MsgQueue) Close(self *Thread) error {
	k := q.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkCurrent(self); err != nil {
		return err
	}
	if q.closed {
		return ErrDeleted
	}
	q.closed = true
	for q.putq.head != nil {
		k.resolveWait(q.putq.head, waitDeleted)
	}
	for q.getq.head != nil {
		w := q.getq.head
		w.xferBuf = nil
		k.resolveWait(w, waitDeleted)
	}
	k.maybePreempt()
	return nil
}
