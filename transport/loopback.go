package transport

import (
	"io"
	"time"
)

// Loopback is an in-memory Port with no real modem-control lines, used to
// drive the HDLC engine in tests without a UART. NewLoopbackPair returns
// two Loopbacks wired to each other the way bidirpipe connects a pair of
// io.Pipes, with a poll interval added on top so Read honors the same
// "(0, nil) on timeout" contract a real serial port gives.
type Loopback struct {
	w    *io.PipeWriter
	r    *io.PipeReader
	poll time.Duration

	reads chan readResult
}

type readResult struct {
	b   byte
	n   int
	err error
}

// NewLoopbackPair returns two connected Loopback ports: bytes written to
// one are read from the other. pollInterval bounds how long Read blocks
// before returning a timeout; 0 selects a 100ms default.
func NewLoopbackPair(pollInterval time.Duration) (*Loopback, *Loopback) {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}

	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()

	a := &Loopback{w: w1, r: r2, poll: pollInterval, reads: make(chan readResult, 1)}
	b := &Loopback{w: w2, r: r1, poll: pollInterval, reads: make(chan readResult, 1)}

	go a.pump()
	go b.pump()

	return a, b
}

// pump continuously reads single bytes from the underlying pipe and hands
// them to Read via a buffered channel, decoupling the blocking pipe read
// from Read's timeout select.
func (l *Loopback) pump() {
	for {
		var buf [1]byte
		n, err := l.r.Read(buf[:])
		res := readResult{n: n, err: err}
		if n > 0 {
			res.b = buf[0]
		}
		l.reads <- res
		if err != nil {
			return
		}
	}
}

// Read returns one buffered byte if the pump has one ready, or (0, nil) if
// none arrives within the poll interval.
func (l *Loopback) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	select {
	case res := <-l.reads:
		if res.err != nil {
			return 0, res.err
		}
		if res.n > 0 {
			p[0] = res.b
		}
		return res.n, nil
	case <-time.After(l.poll):
		return 0, nil
	}
}

func (l *Loopback) Write(p []byte) (int, error) { return l.w.Write(p) }

func (l *Loopback) Close() error {
	l.w.Close()
	l.r.Close()
	return nil
}

func (l *Loopback) SetInterfaceRate(rate uint32) error { return nil }
func (l *Loopback) SetFlowControl(enabled bool) error  { return nil }
func (l *Loopback) SetDTR(enabled bool) error          { return nil }
func (l *Loopback) SetRTS(enabled bool) error          { return nil }
func (l *Loopback) GetPins() (PortPins, error)         { return PortPins{}, nil }
