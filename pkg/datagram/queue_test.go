package datagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnqueueRequeueIsIdempotent(t *testing.T) {
	q := NewQueue()
	d := New(1, 0, 4)
	q.Enqueue(d)
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, Queued, d.State())

	q.MarkSent(d, 5, 100)
	assert.Equal(t, Sent, d.State())

	// Re-enqueueing a Datagram already linked resets state to Queued
	// without changing queue length or ordering.
	q.Enqueue(d)
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, Queued, d.State())
}

func TestMarkReceivedDequeuesAndSignals(t *testing.T) {
	q := NewQueue()
	d := New(1, 0, 2)
	q.Enqueue(d)
	q.MarkSent(d, 1, 0)

	waiter := d.Waiter()
	q.MarkReceived(d, 3, 50)

	assert.Equal(t, Received, d.State())
	assert.EqualValues(t, 3, d.WorkingCounter())
	assert.Equal(t, 0, q.Len())
	assert.Nil(t, <-waiter)
}

func TestMarkTimedOutSignalsError(t *testing.T) {
	q := NewQueue()
	d := New(1, 0, 2)
	q.Enqueue(d)
	q.MarkSent(d, 1, 0)

	waiter := d.Waiter()
	sentinel := assertErr{}
	q.MarkTimedOut(d, sentinel)

	assert.Equal(t, TimedOut, d.State())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, sentinel, <-waiter)
}

func TestSnapshotPreservesQueueOrder(t *testing.T) {
	q := NewQueue()
	var ds []*Datagram
	for i := 0; i < 5; i++ {
		d := New(1, uint32(i), 2)
		d.NetdevIdx = 0
		q.Enqueue(d)
		ds = append(ds, d)
	}
	snap := q.Snapshot(0, Queued)
	assert.Len(t, snap, 5)
	for i, d := range snap {
		assert.Equal(t, ds[i], d)
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "sentinel" }
