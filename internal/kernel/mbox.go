package kernel

import "kestrel/internal/ktrace"

// MboxInfo describes a delivered mailbox message.
type MboxInfo struct {
	Sender ThreadID
	Size   int
}

// mboxSend is a pending asynchronous send descriptor. Synchronous sends
// live on the sending thread's transfer fields instead.
type mboxSend struct {
	seq    uint64
	sender ThreadID
	data   []byte
	target ThreadID
	done   *Sem
}

// Mbox is a rendezvous mailbox carrying addressed, variable-size
// payloads. A send and a receive match when each side's filter accepts
// the other's identity; among eligible partners the earliest-enqueued
// wins. Payloads transfer whole: a payload larger than the receive buffer
// is a size-mismatch error, never a truncation.
type Mbox struct {
	k      *Kernel
	name   string
	sendq  waitQueue // blocked synchronous senders, enqueue order
	recvq  waitQueue // blocked receivers, enqueue order
	asyncq []*mboxSend
	closed bool
}

// NewMbox creates an empty mailbox.
func (k *Kernel) NewMbox(name string) *Mbox {
	return &Mbox{
		k:     k,
		name:  name,
		sendq: waitQueue{fifo: true},
		recvq: waitQueue{fifo: true},
	}
}

// accepts reports whether a filter admits an identity; 0 is the wildcard.
func accepts(filter, id ThreadID) bool {
	return filter == 0 || filter == id
}

// matchRecv finds the earliest blocked receiver eligible for a send from
// sender addressed to target. Kernel lock held.
func (m *Mbox) matchRecv(sender, target ThreadID) *Thread {
	for w := m.recvq.head; w != nil; w = w.next {
		if accepts(target, w.id) && accepts(w.xferSource, sender) {
			return w
		}
	}
	return nil
}

// deliverTo copies a payload into a blocked receiver and wakes it. The
// receiver wakes with ErrSizeMismatch when its buffer is too small; the
// payload is then not consumed. Kernel lock held. Reports consumption.
func (m *Mbox) deliverTo(w *Thread, sender ThreadID, data []byte) bool {
	if len(data) > len(w.xferBuf) {
		w.xferInfo = MboxInfo{Sender: sender, Size: len(data)}
		m.failRecv(w)
		return false
	}
	copy(w.xferBuf, data)
	w.xferInfo = MboxInfo{Sender: sender, Size: len(data)}
	w.xferBuf = nil
	m.k.resolveWait(w, waitSignaled)
	return true
}

// failRecv wakes a blocked receiver whose buffer cannot hold the matched
// payload. The wait resolves signaled; Recv inspects the size marker and
// reports ErrSizeMismatch. Kernel lock held.
func (m *Mbox) failRecv(w *Thread) {
	w.xferBuf = nil
	w.xferSeq = mboxSizeFail
	m.k.resolveWait(w, waitSignaled)
}

// mboxSizeFail marks a receiver woken on a size mismatch.
const mboxSizeFail = ^uint64(0)

// Send delivers a payload synchronously: it returns once a matching
// receiver has taken the data, blocking for up to the given timeout when
// none is pending. target addresses a specific receiving thread; 0 sends
// to whichever eligible receiver came first.
func (m *Mbox) Send(self *Thread, data []byte, target ThreadID, to Timeout) error {
	k := m.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkCurrent(self); err != nil {
		return err
	}
	if m.closed {
		return ErrDeleted
	}
	k.emit(ktrace.KindSignal, self, "mbox send "+m.name)
	for {
		w := m.matchRecv(self.id, target)
		if w == nil {
			break
		}
		if m.deliverTo(w, self.id, data) {
			k.maybePreempt()
			return nil
		}
		// Undersized receiver failed; try the next eligible one.
	}
	if to.Immediate() {
		return ErrWouldBlock
	}
	m.mboxStamp(self)
	self.xferData = data
	self.xferTarget = target
	err := k.blockCurrent(&m.sendq, to)
	self.xferData = nil
	self.xferTarget = 0
	return err
}

// SendAsync queues a payload for delivery without blocking. The payload
// bytes are copied immediately, so the caller may reuse its buffer. When
// the message is finally taken by a receiver, done is given, if non-nil.
func (m *Mbox) SendAsync(self *Thread, data []byte, target ThreadID, done *Sem) error {
	k := m.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkCurrent(self); err != nil {
		return err
	}
	if err := m.sendAsync(self.id, data, target, done); err != nil {
		return err
	}
	k.maybePreempt()
	return nil
}

// SendAsyncISR queues a payload from interrupt context. Completion is
// signaled through done exactly as for SendAsync.
func (m *Mbox) SendAsyncISR(data []byte, target ThreadID, done *Sem) error {
	k := m.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := m.sendAsync(0, data, target, done); err != nil {
		return err
	}
	k.wakeFromISR()
	return nil
}

// sendAsync matches or enqueues an asynchronous send. Kernel lock held.
func (m *Mbox) sendAsync(sender ThreadID, data []byte, target ThreadID, done *Sem) error {
	if m.closed {
		return ErrDeleted
	}
	m.k.emit(ktrace.KindSignal, nil, "mbox send async "+m.name)
	for {
		w := m.matchRecv(sender, target)
		if w == nil {
			break
		}
		if m.deliverTo(w, sender, data) {
			if done != nil {
				done.give()
			}
			return nil
		}
	}
	m.k.mboxSeq++
	m.asyncq = append(m.asyncq, &mboxSend{
		seq:    m.k.mboxSeq,
		sender: sender,
		data:   append([]byte(nil), data...),
		target: target,
		done:   done,
	})
	return nil
}

// mboxStamp gives a blocking descriptor its enqueue-order stamp.
func (m *Mbox) mboxStamp(t *Thread) {
	m.k.mboxSeq++
	t.xferSeq = m.k.mboxSeq
}

// matchSend finds the earliest pending send, synchronous or asynchronous,
// eligible for a receive by receiver filtered on source. Kernel lock held.
func (m *Mbox) matchSend(receiver, source ThreadID) (*Thread, *mboxSend) {
	var bestT *Thread
	for w := m.sendq.head; w != nil; w = w.next {
		if accepts(w.xferTarget, receiver) && accepts(source, w.id) {
			bestT = w
			break
		}
	}
	var bestA *mboxSend
	var bestAt int
	for i, d := range m.asyncq {
		if accepts(d.target, receiver) && accepts(source, d.sender) {
			bestA, bestAt = d, i
			break
		}
	}
	if bestT != nil && (bestA == nil || bestT.xferSeq < bestA.seq) {
		return bestT, nil
	}
	if bestA != nil {
		m.asyncq = append(m.asyncq[:bestAt], m.asyncq[bestAt+1:]...)
		return nil, bestA
	}
	return nil, nil
}

// Recv takes one message into buf, blocking for up to the given timeout
// when no eligible send is pending. source restricts acceptable senders;
// 0 accepts any. The returned info names the sender and the payload size.
func (m *Mbox) Recv(self *Thread, buf []byte, source ThreadID, to Timeout) (MboxInfo, error) {
	k := m.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkCurrent(self); err != nil {
		return MboxInfo{}, err
	}
	if m.closed {
		return MboxInfo{}, ErrDeleted
	}
	sender, async := m.matchSend(self.id, source)
	if sender != nil {
		info := MboxInfo{Sender: sender.id, Size: len(sender.xferData)}
		if len(sender.xferData) > len(buf) {
			// The sender stays queued; its descriptor was only inspected.
			return info, ErrSizeMismatch
		}
		copy(buf, sender.xferData)
		k.resolveWait(sender, waitSignaled)
		k.maybePreempt()
		return info, nil
	}
	if async != nil {
		info := MboxInfo{Sender: async.sender, Size: len(async.data)}
		if len(async.data) > len(buf) {
			m.requeueAsync(async)
			return info, ErrSizeMismatch
		}
		copy(buf, async.data)
		if async.done != nil {
			async.done.give()
		}
		k.maybePreempt()
		return info, nil
	}
	if to.Immediate() {
		return MboxInfo{}, ErrWouldBlock
	}
	m.mboxStamp(self)
	self.xferBuf = buf
	self.xferSource = source
	err := k.blockCurrent(&m.recvq, to)
	self.xferBuf = nil
	self.xferSource = 0
	if err != nil {
		return MboxInfo{}, err
	}
	if self.xferSeq == mboxSizeFail {
		return self.xferInfo, ErrSizeMismatch
	}
	return self.xferInfo, nil
}

// requeueAsync puts an inspected descriptor back in enqueue order.
func (m *Mbox) requeueAsync(d *mboxSend) {
	at := len(m.asyncq)
	for i, o := range m.asyncq {
		if o.seq > d.seq {
			at = i
			break
		}
	}
	m.asyncq = append(m.asyncq, nil)
	copy(m.asyncq[at+1:], m.asyncq[at:])
	m.asyncq[at] = d
}

// Close deletes the mailbox. Blocked senders and receivers wake with
// ErrDeleted; undelivered asynchronous descriptors are dropped and their
// completion semaphores are never given.
func (m *Mbox) Close(self *Thread) error {
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
	for m.sendq.head != nil {
		w := m.sendq.head
		w.xferData = nil
		w.xferTarget = 0
		k.resolveWait(w, waitDeleted)
	}
	for m.recvq.head != nil {
		w := m.recvq.head
		w.xferBuf = nil
		w.xferSource = 0
		k.resolveWait(w, waitDeleted)
	}
	m.asyncq = nil
	k.maybePreempt()
	return nil
}
