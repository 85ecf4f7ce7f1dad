// Package mux implements the virtual-serial multiplexer: a single HDLC
// receiver feeding a fixed set of bounded per-channel byte queues, and a
// framer serializing writes from arbitrarily many channel handles back onto
// one transport. It owns exactly one background reader goroutine per
// Multiplexer, mirroring the teacher's one-runnable-per-resource shape from
// multirun, but scoped down to a single CloseFlag since a Multiplexer only
// ever needs to stop its own reader, not coordinate sibling runnables.
package mux

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dbernard/hdlc/closeflag"
	"github.com/dbernard/hdlc/hdlc"
	"github.com/dbernard/hdlc/queue"
)

// Stats is a Multiplexer-level snapshot combining the underlying receiver's
// counters with the multiplexer's own routing counter.
type Stats struct {
	hdlc.Stats
	BadChannel uint64
}

// Multiplexer routes HDLC payloads by their leading channel byte into
// per-channel bounded queues, and serializes channel writes back onto a
// single transport through a shared Framer.
type Multiplexer struct {
	rx     *hdlc.Receiver
	framer *hdlc.Framer

	mu       sync.RWMutex
	channels map[byte]*queue.Queue

	badChannel uint64

	log  *logrus.Entry
	corr uuid.UUID

	closer closeflag.CloseFlag
	done   chan struct{}
}

// New creates a Multiplexer over rw and immediately starts its background
// reader goroutine. log may be nil, in which case a disabled entry is used
// so callers never need a nil check. corr is an optional correlation UUID
// attached to every log line the Multiplexer emits; pass uuid.Nil to omit
// it.
func New(rw io.ReadWriter, log *logrus.Entry, corr uuid.UUID) *Multiplexer {
	if log == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		log = logrus.NewEntry(logger)
	}

	if corr != uuid.Nil {
		log = log.WithField("correlation_id", corr)
	}

	m := &Multiplexer{
		rx:       hdlc.NewReceiver(rw),
		framer:   hdlc.NewFramer(rw),
		channels: make(map[byte]*queue.Queue),
		log:      log,
		corr:     corr,
		done:     make(chan struct{}),
	}

	go m.run()
	return m
}

// AddChannel registers channel number ch with the given queue capacity (0
// for unbounded) and returns a Channel handle bound to it. AddChannel is
// not safe to call concurrently with itself, but is safe alongside
// ChannelRead/ChannelWrite on other channels.
func (m *Multiplexer) AddChannel(ch byte, capacity int) *Channel {
	m.mu.Lock()
	q := queue.New(capacity)
	m.channels[ch] = q
	m.mu.Unlock()

	return &Channel{mux: m, num: ch, q: q}
}

// Open is an alias for AddChannel matching the original implementation's
// naming for the call an application makes to start receiving on a given
// channel number.
func (m *Multiplexer) Open(ch byte, capacity int) *Channel {
	return m.AddChannel(ch, capacity)
}

func (m *Multiplexer) queueFor(ch byte) (*queue.Queue, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.channels[ch]
	return q, ok
}

// run is the Multiplexer's single background reader: it pulls verified
// payloads from the Receiver and routes each to the queue registered for
// its leading channel byte. A payload addressed to an unregistered channel
// is dropped and counted rather than panicking, per the bad-channel fix.
func (m *Multiplexer) run() {
	defer close(m.done)

	for {
		select {
		case <-m.closer.Chan():
			m.closeAllQueues()
			return
		default:
		}

		payload, err := m.rx.Get()
		if err != nil {
			m.log.WithError(err).Warn("transport read failed, stopping multiplexer")
			m.closeAllQueues()
			return
		}
		if payload == nil {
			continue
		}
		if len(payload) < 2 {
			continue
		}

		ch := payload[0]
		q, ok := m.queueFor(ch)
		if !ok {
			atomic.AddUint64(&m.badChannel, 1)
			m.log.WithField("channel", ch).Debug("dropped frame for unregistered channel")
			continue
		}

		// payload[1] is the control byte; only the data past it is queued
		// for application reads.
		if err := q.PutBulk(payload[2:]); err != nil {
			// Queue was closed concurrently with teardown; nothing left
			// to route to.
			return
		}
	}
}

func (m *Multiplexer) closeAllQueues() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, q := range m.channels {
		q.Close()
	}
}

// Stats returns a combined snapshot of the Receiver's byte/frame counters
// and the Multiplexer's own BadChannel counter.
func (m *Multiplexer) Stats() Stats {
	return Stats{
		Stats:      m.rx.Stats(),
		BadChannel: atomic.LoadUint64(&m.badChannel),
	}
}

// ChannelRead reads up to length bytes from the named channel's queue,
// honoring timeout the same way Channel.Read does. It returns a
// *ChannelError wrapping ErrChannelMissing if ch was never registered via
// AddChannel/Open.
func (m *Multiplexer) ChannelRead(ch byte, length int, timeout time.Duration) ([]byte, error) {
	m.mu.RLock()
	q, ok := m.channels[ch]
	m.mu.RUnlock()
	if !ok {
		return nil, &ChannelError{Channel: ch, Err: ErrChannelMissing}
	}

	c := &Channel{mux: m, num: ch, q: q}
	return c.Read(length, timeout)
}

// ChannelWrite frames payload with the given channel number and control
// byte and writes it to the transport. It is safe to call concurrently
// from multiple goroutines and for multiple channels: the underlying
// Framer serializes the writes.
func (m *Multiplexer) ChannelWrite(ch, control byte, payload []byte) error {
	return m.framer.SendPacket(ch, control, payload)
}

// Run blocks until the background reader stops, whether from a transport
// error or from Close. It makes Multiplexer satisfy multirun.Runnable so a
// process supervisor can wait on it alongside other long-running
// components.
func (m *Multiplexer) Run() error {
	<-m.done
	return nil
}

// Close stops the background reader and releases every registered
// channel's queue, waking any blocked ChannelRead/Channel.Read calls with a
// closed-queue result. Close is idempotent.
func (m *Multiplexer) Close() error {
	err := m.closer.Close()
	// Closing the queues here also wakes a background reader blocked in
	// PutBulk on a full bounded queue, so it can observe the teardown.
	m.closeAllQueues()
	<-m.done
	if err == closeflag.ErrorClosed {
		return nil
	}
	return err
}
