package mux

import (
	"time"

	"github.com/dbernard/hdlc/queue"
)

// Channel is an application-facing handle on one multiplexed channel
// number. It is returned by Multiplexer.AddChannel/Open and is safe for
// concurrent use by multiple reader and writer goroutines.
type Channel struct {
	mux *Multiplexer
	num byte
	q   *queue.Queue
}

// Number returns the channel number this handle was opened with.
func (c *Channel) Number() byte {
	return c.num
}

// Read blocks until length bytes are available in the channel's queue, the
// queue is closed, or timeout elapses, whichever comes first. A zero
// timeout waits forever. timeout bounds the whole call, not each byte. It
// returns fewer than length bytes when timeout elapses first (err is nil)
// or when the queue closes mid-read (err is queue.ErrClosed).
func (c *Channel) Read(length int, timeout time.Duration) ([]byte, error) {
	out := make([]byte, 0, length)

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for len(out) < length {
		remaining := timeout
		if timeout > 0 {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return out, nil
			}
		}

		b, ok, err := c.q.Get(remaining)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, b)
	}

	return out, nil
}

// Write frames payload for this channel and sends it over the
// Multiplexer's shared transport with control byte 0.
func (c *Channel) Write(payload []byte) error {
	return c.mux.ChannelWrite(c.num, 0, payload)
}

// WriteControl is Write with an explicit control byte, for callers that
// need to set something other than the default.
func (c *Channel) WriteControl(control byte, payload []byte) error {
	return c.mux.ChannelWrite(c.num, control, payload)
}

// IsEmpty reports whether the channel's queue currently holds no bytes.
func (c *Channel) IsEmpty() bool {
	return c.q.IsEmpty()
}

// IsFull reports whether the channel's queue is at capacity.
func (c *Channel) IsFull() bool {
	return c.q.IsFull()
}

// Size returns the number of bytes currently queued for this channel.
func (c *Channel) Size() int {
	return c.q.Size()
}
