package hdlc

import (
	"io"
	"sync/atomic"

	"github.com/dbernard/hdlc/fcs32"
)

// Byte values with protocol meaning on the wire. Only byte-stuffing is
// supported; bit-stuffing is out of scope.
const (
	Flag    byte = 0x7E
	Esc     byte = 0x7D
	Idle    byte = 0xFF
	EscMod  byte = 0x20
	minLen       = fcs32.Len
)

// state is a tagged variant over the four receiver states. Using a
// dedicated type with an exhaustive switch in step() means every
// transition is compile-time checkable instead of dispatched through a
// handler table.
type state int

const (
	stateOutOfSync state = iota
	stateIdle
	stateGetFrame
	stateGetEsc
)

func (s state) String() string {
	switch s {
	case stateOutOfSync:
		return "OutOfSync"
	case stateIdle:
		return "Idle"
	case stateGetFrame:
		return "GetFrame"
	case stateGetEsc:
		return "GetEsc"
	default:
		return "Unknown"
	}
}

// Receiver is the HDLC byte-framing state machine. It consumes bytes one
// at a time from a transport, reassembles escaped frames delimited by
// Flag, verifies the trailing FCS-32, and yields verified payloads in
// arrival order. It never returns an error for malformed input — every
// protocol violation is reflected in Stats instead.
type Receiver struct {
	r io.Reader

	state state
	buf   []byte

	completed [][]byte

	stats liveStats

	readBuf [1]byte
}

// NewReceiver creates a Receiver bound to r, starting in the Idle state.
func NewReceiver(r io.Reader) *Receiver {
	return &Receiver{
		r:     r,
		state: stateIdle,
	}
}

// Stats returns a consistent snapshot of the receiver's counters.
func (rx *Receiver) Stats() Stats {
	return rx.stats.Snapshot()
}

// setState applies the accumulator-preservation rule: the buffer is only
// cleared when entering GetFrame from anything other than GetEsc.
func (rx *Receiver) setState(next state) {
	if next == stateGetFrame && rx.state != stateGetEsc {
		rx.buf = rx.buf[:0]
	}
	rx.state = next
}

// closeFrame handles a Flag byte seen while in GetFrame: verify, queue or
// count, and restart framing.
func (rx *Receiver) closeFrame() {
	if len(rx.buf) == 0 {
		atomic.AddUint64(&rx.stats.empty, 1)
		rx.setState(stateGetFrame)
		return
	}

	if len(rx.buf) >= minLen && fcs32.Good(rx.buf) {
		payload := make([]byte, len(rx.buf)-fcs32.Len)
		copy(payload, rx.buf[:len(rx.buf)-fcs32.Len])
		rx.completed = append(rx.completed, payload)
	} else if len(rx.buf) >= minLen {
		atomic.AddUint64(&rx.stats.fcs, 1)
	} else {
		atomic.AddUint64(&rx.stats.invalid, 1)
	}

	rx.setState(stateGetFrame)
}

// step feeds a single byte through the state machine.
func (rx *Receiver) step(c byte) {
	switch rx.state {
	case stateOutOfSync:
		if c == Flag {
			rx.setState(stateGetFrame)
		}
		// IDLE and any other byte: stay OutOfSync.

	case stateIdle:
		switch c {
		case Idle:
			// stay Idle
		case Flag:
			rx.setState(stateGetFrame)
		default:
			atomic.AddUint64(&rx.stats.unframed, 1)
		}

	case stateGetFrame:
		switch c {
		case Flag:
			rx.closeFrame()
		case Esc:
			rx.state = stateGetEsc
		default:
			rx.buf = append(rx.buf, c)
		}

	case stateGetEsc:
		switch c {
		case Flag:
			atomic.AddUint64(&rx.stats.escapedFlag, 1)
			atomic.AddUint64(&rx.stats.invalid, 1)
			// Escape-then-FLAG is a distinct error from a plain FLAG close:
			// the partial frame is corrupt, so the accumulator must not
			// survive into the next frame the way setState's generic
			// leaving-GetEsc rule would otherwise preserve it.
			rx.buf = rx.buf[:0]
			rx.state = stateGetFrame
		case Esc:
			atomic.AddUint64(&rx.stats.doubleEscape, 1)
			atomic.AddUint64(&rx.stats.invalid, 1)
			rx.state = stateOutOfSync
		default:
			rx.buf = append(rx.buf, c^EscMod)
			rx.setState(stateGetFrame)
		}
	}
}

// Get reads bytes from the transport, one at a time, until a verified
// frame completes or the transport reports no byte available (empty read,
// io.EOF). It returns (payload, nil) for a completed frame, (nil, nil) on
// transport timeout/EOF (the caller should call Get again), and (nil, err)
// if the transport returned a non-EOF error, which callers should treat as
// TransportFatal.
func (rx *Receiver) Get() ([]byte, error) {
	for {
		n, err := rx.r.Read(rx.readBuf[:])
		if n == 0 {
			if err == nil || err == io.EOF {
				atomic.AddUint64(&rx.stats.timeout, 1)
				return nil, nil
			}
			return nil, err
		}

		atomic.AddUint64(&rx.stats.bytes, 1)
		rx.step(rx.readBuf[0])

		if len(rx.completed) > 0 {
			payload := rx.completed[0]
			rx.completed = rx.completed[1:]
			return payload, nil
		}
	}
}
