// Package transport provides the concrete io.ReadWriteCloser
// implementations the HDLC engine runs over: a Linux UART character device
// and an in-memory loopback pair for tests. Both satisfy the same read
// contract the receiver pump expects: Read(p) with len(p) == 1 returns
// (0, nil) on timeout rather than blocking forever or returning io.EOF, so
// the background reader can observe a teardown signal between bytes.
package transport

import "io"

// Port is an extended io.ReadWriteCloser exposing the UART modem-control
// and rate settings a real serial link needs. Implementations that are not
// backed by a physical UART (e.g. Loopback) implement the no-op subset
// sensibly rather than returning an error.
type Port interface {
	io.ReadWriteCloser

	SetInterfaceRate(rate uint32) error
	SetFlowControl(enabled bool) error

	SetDTR(enabled bool) error
	SetRTS(enabled bool) error
	GetPins() (PortPins, error)
}

// PortOptions configures Open.
type PortOptions struct {
	PortName      string
	InterfaceRate uint32
	FlowControl   bool

	// ReadTimeoutDeciseconds sets the VTIME value used for the underlying
	// termios configuration: how long, in tenths of a second, a Read call
	// waits for at least one byte before returning (0, nil). Zero uses the
	// package default of 1 second.
	ReadTimeoutDeciseconds byte
}

// PortPins indicates the state of the modem control signals.
type PortPins struct {
	DSR bool
	DTR bool
	RTS bool
	CTS bool
	DCD bool
	RNG bool
}

// ErrClosed is returned by Port methods called after Close.
var ErrClosed = errClosed{}

type errClosed struct{}

func (errClosed) Error() string { return "transport: port is closed" }

// Open opens a UART character device at options.PortName with the given
// rate and flow control, configured with a read timeout so Read never
// blocks indefinitely.
func Open(options *PortOptions) (Port, error) {
	return openPortOS(options)
}
