package datagram

import "sync"

// Queue is the FIFO ordered set of pending Datagrams, intrusively
// linked through each Datagram's own queuePrev/queueNext pointers so
// that dequeue from the middle (timeout, link-down) is O(1) and the
// periodic path never allocates. All mutation happens under mu, the
// short critical section the spec calls for around queue state and
// per-link statistics — the Go analogue of an IRQ-masking spinlock.
type Queue struct {
	mu   sync.Mutex
	head *Datagram
	tail *Datagram
	len  int
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue { return &Queue{} }

// Enqueue appends d to the tail of the queue and transitions it to
// Queued. Re-enqueueing a Datagram already on the queue is idempotent:
// it is left in place and only its state is reset to Queued.
func (q *Queue) Enqueue(d *Datagram) {
	q.mu.Lock()
	defer q.mu.Unlock()
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.onQueue {
		d.setState(Queued)
		return
	}

	d.queuePrev = q.tail
	d.queueNext = nil
	if q.tail != nil {
		q.tail.queueNext = d
	} else {
		q.head = d
	}
	q.tail = d
	d.onQueue = true
	d.setState(Queued)
	q.len++
}

// unlink removes d from the queue without touching its state. Caller
// must hold q.mu and d.mu.
func (q *Queue) unlink(d *Datagram) {
	if !d.onQueue {
		return
	}
	if d.queuePrev != nil {
		d.queuePrev.queueNext = d.queueNext
	} else {
		q.head = d.queueNext
	}
	if d.queueNext != nil {
		d.queueNext.queuePrev = d.queuePrev
	} else {
		q.tail = d.queuePrev
	}
	d.queuePrev = nil
	d.queueNext = nil
	d.onQueue = false
	q.len--
}

// Dequeue unlinks d from the queue, leaving its state untouched; the
// caller sets the terminal state (Sent is set by the packer while the
// Datagram stays linked until RX/timeout/link-down dequeues it).
func (q *Queue) Dequeue(d *Datagram) {
	q.mu.Lock()
	defer q.mu.Unlock()
	d.mu.Lock()
	defer d.mu.Unlock()
	q.unlink(d)
}

// Len returns the number of Datagrams currently linked on the queue.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.len
}

// Walk calls fn for every Datagram currently linked, head to tail,
// stopping early if fn returns false. fn runs under the queue's
// critical section: it must be short and must not call back into
// Enqueue/Dequeue.
func (q *Queue) Walk(fn func(d *Datagram) bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for d := q.head; d != nil; {
		next := d.queueNext
		if !fn(d) {
			return
		}
		d = next
	}
}

// Snapshot returns, in queue order, pointers to every linked Datagram
// matching netdevIdx (or any link when netdevIdx < 0) whose state is
// one of wantStates. Used by the frame packer and the timeout/
// link-down sweeps to build a worklist without holding q.mu across
// the subsequent per-datagram state transitions, which themselves
// re-lock q.mu and would deadlock if taken while Walk already held it.
func (q *Queue) Snapshot(netdevIdx int, wantStates ...State) []*Datagram {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*Datagram
	for d := q.head; d != nil; d = d.queueNext {
		if netdevIdx >= 0 && d.NetdevIdx != netdevIdx {
			continue
		}
		match := false
		for _, s := range wantStates {
			if d.state == s {
				match = true
				break
			}
		}
		if match {
			out = append(out, d)
		}
	}
	return out
}

// MarkSent transitions a Queued Datagram to Sent, recording its
// assigned index and send timestamp. The Datagram remains linked on
// the queue until RX match, timeout, or link-down removes it.
func (q *Queue) MarkSent(d *Datagram, index uint8, sentNS int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Index = index
	d.SentNS = sentNS
	d.setState(Sent)
}

// MarkReceived copies wc into the Datagram, stamps ReceivedNS,
// transitions to Received and dequeues it, signaling any waiter with
// a nil error.
func (q *Queue) MarkReceived(d *Datagram, wc uint16, now int64) {
	q.mu.Lock()
	d.mu.Lock()
	q.unlink(d)
	d.setWorkingCounter(wc)
	d.ReceivedNS = now
	d.setState(Received)
	d.mu.Unlock()
	q.mu.Unlock()
	d.Signal(nil)
}

// MarkTimedOut transitions a Sent Datagram whose deadline has passed
// to TimedOut, dequeues it and signals its waiter with ErrTimeout.
func (q *Queue) MarkTimedOut(d *Datagram, errTimeout error) {
	q.mu.Lock()
	d.mu.Lock()
	q.unlink(d)
	d.setState(TimedOut)
	d.mu.Unlock()
	q.mu.Unlock()
	d.Signal(errTimeout)
}

// MarkError transitions a queued Datagram to Error (link-down
// cancellation), dequeues it and signals its waiter.
func (q *Queue) MarkError(d *Datagram, errIO error) {
	q.mu.Lock()
	d.mu.Lock()
	q.unlink(d)
	d.setState(Error)
	d.mu.Unlock()
	q.mu.Unlock()
	d.Signal(errIO)
}
