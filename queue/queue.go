// Package queue implements the bounded per-channel byte FIFO the
// multiplexer routes payloads into. Capacity and truncation-on-backpressure
// follow a buffered-pipe shape; waking blocked readers and writers follows
// the close-and-recreate broadcast channel used elsewhere in this module
// for wait/notify, extended here with a timeout on the blocking byte read
// so channel_read can honor a deadline instead of blocking forever.
package queue

import (
	"bytes"
	"sync"
	"time"
)

// Queue is a bounded FIFO of bytes. A capacity of 0 means unbounded. There
// is exactly one producer (the multiplexer's background reader) and
// arbitrarily many consumers.
type Queue struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	cap    int
	closed bool

	readReady  chan struct{}
	writeReady chan struct{}
}

// New creates a Queue with the given capacity. capacity <= 0 means
// unbounded.
func New(capacity int) *Queue {
	return &Queue{
		cap:        capacity,
		readReady:  make(chan struct{}),
		writeReady: make(chan struct{}),
	}
}

// broadcastRead and broadcastWrite wake every goroutine currently blocked
// in Get/PutBulk by closing the channel they are selecting on and
// installing a fresh one for the next generation of waiters. Callers must
// hold mu.
func (q *Queue) broadcastRead() {
	close(q.readReady)
	q.readReady = make(chan struct{})
}

func (q *Queue) broadcastWrite() {
	close(q.writeReady)
	q.writeReady = make(chan struct{})
}

// Cap returns the queue's configured capacity, or 0 for unbounded.
func (q *Queue) Cap() int {
	return q.cap
}

// Size returns the number of bytes currently queued.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buf.Len()
}

// IsFull reports whether the queue is at capacity. An unbounded queue is
// never full.
func (q *Queue) IsFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cap > 0 && q.buf.Len() >= q.cap
}

// IsEmpty reports whether the queue currently holds no bytes.
func (q *Queue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buf.Len() == 0
}

// freeInternal returns how much capacity remains; callers must hold mu.
func (q *Queue) freeInternal() int {
	if q.cap <= 0 {
		return 1 << 30
	}
	free := q.cap - q.buf.Len()
	if free < 0 {
		free = 0
	}
	return free
}

// PutBulk enqueues data, blocking while the queue is full. For a bounded
// queue it writes as many bytes as currently fit, waits for a consumer to
// free space, and retries — splitting the write so no single append
// exceeds free capacity. PutBulk never drops bytes for an open queue.
func (q *Queue) PutBulk(data []byte) error {
	for len(data) > 0 {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrClosed
		}

		free := q.freeInternal()
		if free <= 0 {
			wait := q.writeReady
			q.mu.Unlock()
			<-wait
			continue
		}

		n := len(data)
		if n > free {
			n = free
		}
		q.buf.Write(data[:n])
		data = data[n:]
		q.broadcastRead()
		q.mu.Unlock()
	}
	return nil
}

// Get blocks until a byte is available, the queue is closed, or timeout
// elapses, whichever comes first. A zero timeout waits forever. ok is
// false on timeout or on a closed, drained queue — timeout returns a nil
// err, a closed+drained queue returns ErrClosed.
func (q *Queue) Get(timeout time.Duration) (b byte, ok bool, err error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		q.mu.Lock()
		if q.buf.Len() > 0 {
			v, _ := q.buf.ReadByte()
			q.broadcastWrite()
			q.mu.Unlock()
			return v, true, nil
		}

		if q.closed {
			q.mu.Unlock()
			return 0, false, ErrClosed
		}

		wait := q.readReady
		q.mu.Unlock()

		select {
		case <-wait:
		case <-deadline:
			return 0, false, nil
		}
	}
}

// Close marks the queue closed, waking any blocked Get/PutBulk callers.
// Bytes already queued remain readable until drained; Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.broadcastRead()
	q.broadcastWrite()
	q.mu.Unlock()
}
