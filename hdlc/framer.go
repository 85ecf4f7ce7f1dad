package hdlc

import (
	"bytes"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/dbernard/hdlc/fcs32"
)

// Framer serializes (channel, control, payload) triples into HDLC frames
// and writes them to a transport. A single Framer may be shared by many
// concurrent writers: SendPacket holds an exclusive lock on the write side
// for the duration of one frame so frames from different goroutines never
// interleave on the wire.
type Framer struct {
	mu sync.Mutex
	w  io.Writer

	buf bytes.Buffer
}

// NewFramer creates a Framer that writes to w.
func NewFramer(w io.Writer) *Framer {
	return &Framer{w: w}
}

// SetWriter changes the transport used by the Framer. It must not be
// called concurrently with SendPacket.
func (f *Framer) SetWriter(w io.Writer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.w = w
}

func writeEscaped(buf *bytes.Buffer, data []byte) {
	for _, b := range data {
		if b == Flag || b == Esc {
			buf.WriteByte(Esc)
			buf.WriteByte(b ^ EscMod)
		} else {
			buf.WriteByte(b)
		}
	}
}

// Encode returns the on-wire bytes for (channel, control, payload):
// Flag, escaped(channel || control || payload || fcs32), Flag.
func Encode(channel, control byte, payload []byte) []byte {
	body := make([]byte, 0, 2+len(payload))
	body = append(body, channel, control)
	body = append(body, payload...)
	body = fcs32.Append(body)

	var buf bytes.Buffer
	buf.Grow(2 + len(body)*2)
	buf.WriteByte(Flag)
	writeEscaped(&buf, body)
	buf.WriteByte(Flag)

	return buf.Bytes()
}

// SendPacket frames (channel, control, payload) and writes it to the
// transport as a single, lock-serialized write.
func (f *Framer) SendPacket(channel, control byte, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	defer f.buf.Reset()

	f.buf.WriteByte(Flag)
	writeEscaped(&f.buf, encodeBody(channel, control, payload))
	f.buf.WriteByte(Flag)

	if _, err := f.buf.WriteTo(f.w); err != nil {
		return errors.Wrap(err, "hdlc: write frame")
	}
	return nil
}

func encodeBody(channel, control byte, payload []byte) []byte {
	body := make([]byte, 0, 2+len(payload)+fcs32.Len)
	body = append(body, channel, control)
	body = append(body, payload...)
	return fcs32.Append(body)
}
