//go:build linux

package transport

import (
	"io"
	"os"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

const defaultReadTimeoutDeciseconds = 10

type linuxPort struct {
	file *os.File

	mtx    sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

func (port *linuxPort) SetFlowControl(enabled bool) error {
	port.mtx.Lock()
	defer port.mtx.Unlock()
	if port.closed {
		return ErrClosed
	}

	termios, err := unix.IoctlGetTermios(int(port.file.Fd()), unix.TCGETS2)
	if err != nil {
		return err
	}

	if enabled {
		termios.Cflag |= unix.CRTSCTS
	} else {
		termios.Cflag &= ^uint32(unix.CRTSCTS)
	}

	return unix.IoctlSetTermios(int(port.file.Fd()), unix.TCSETS2, termios)
}

func (port *linuxPort) SetInterfaceRate(rate uint32) error {
	port.mtx.Lock()
	defer port.mtx.Unlock()
	if port.closed {
		return ErrClosed
	}

	termios, err := unix.IoctlGetTermios(int(port.file.Fd()), unix.TCGETS2)
	if err != nil {
		return err
	}

	termios.Cflag &= ^uint32(unix.CBAUD)
	termios.Cflag |= uint32(unix.BOTHER)
	termios.Ispeed = rate
	termios.Ospeed = rate

	return unix.IoctlSetTermios(int(port.file.Fd()), unix.TCSETS2, termios)
}

// defaultPortConfig sets raw 8N1 mode with a VMIN=0/VTIME=timeoutDs read
// deadline, so a Read on an idle line returns (0, nil) once every
// timeoutDs/10 seconds instead of blocking. This is what lets the HDLC
// receiver's pump notice a teardown signal between bytes.
func (port *linuxPort) defaultPortConfig(timeoutDs byte) error {
	termios := &unix.Termios{}
	termios.Cflag |= uint32(syscall.CS8 | syscall.CLOCAL | syscall.CREAD)

	termios.Cc[syscall.VTIME] = timeoutDs
	termios.Cc[syscall.VMIN] = 0

	return unix.IoctlSetTermios(int(port.file.Fd()), unix.TCSETS2, termios)
}

func openPortOS(options *PortOptions) (Port, error) {
	timeoutDs := options.ReadTimeoutDeciseconds
	if timeoutDs == 0 {
		timeoutDs = defaultReadTimeoutDeciseconds
	}

	file, err := os.OpenFile(options.PortName, syscall.O_RDWR|syscall.O_NOCTTY|syscall.O_NONBLOCK, 0600)
	if err != nil {
		return nil, err
	}

	port := &linuxPort{file: file}

	if err := port.defaultPortConfig(timeoutDs); err != nil {
		file.Close()
		return nil, err
	}
	if err := port.SetInterfaceRate(options.InterfaceRate); err != nil {
		file.Close()
		return nil, err
	}
	if err := port.SetFlowControl(options.FlowControl); err != nil {
		file.Close()
		return nil, err
	}
	if err := unix.SetNonblock(int(port.file.Fd()), false); err != nil {
		file.Close()
		return nil, err
	}

	return port, nil
}

func (port *linuxPort) setPinIoctl(enabled bool, pin int) error {
	port.mtx.Lock()
	defer port.mtx.Unlock()
	if port.closed {
		return ErrClosed
	}

	req := unix.TIOCMBIC
	if enabled {
		req = unix.TIOCMBIS
	}

	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(port.file.Fd()), uintptr(req), uintptr(unsafe.Pointer(&pin)))
	if errno != 0 {
		return os.NewSyscallError("TIOCMBIC/TIOCMBIS", errno)
	}
	return nil
}

func (port *linuxPort) SetDTR(enabled bool) error {
	return port.setPinIoctl(enabled, unix.TIOCM_DTR)
}

func (port *linuxPort) SetRTS(enabled bool) error {
	return port.setPinIoctl(enabled, unix.TIOCM_RTS)
}

func (port *linuxPort) GetPins() (PortPins, error) {
	pins := PortPins{}

	port.mtx.Lock()
	defer port.mtx.Unlock()
	if port.closed {
		return pins, ErrClosed
	}

	var v int
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(port.file.Fd()), uintptr(unix.TIOCMGET), uintptr(unsafe.Pointer(&v)))
	if errno != 0 {
		return pins, os.NewSyscallError("TIOCMGET", errno)
	}

	pins.DTR = (v & unix.TIOCM_DTR) > 0
	pins.RTS = (v & unix.TIOCM_RTS) > 0
	pins.CTS = (v & unix.TIOCM_CTS) > 0
	pins.DCD = (v & unix.TIOCM_CAR) > 0
	pins.RNG = (v & unix.TIOCM_RNG) > 0
	pins.DSR = (v & unix.TIOCM_DSR) > 0

	return pins, nil
}

// Read deliberately does not retry on a zero-byte result the way a plain
// io.Reader consumer would expect: a VTIME-driven timeout surfaces here as
// (0, nil) or (0, io.EOF) depending on kernel version, and the HDLC pump
// needs to see that every poll interval to re-check its teardown signal.
// Any other error (for example a closed or vanished device) is returned
// as is.
func (port *linuxPort) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	port.wg.Add(1)
	defer port.wg.Done()

	n, err := port.file.Read(p)
	if n == 0 && err == io.EOF {
		// Normalize the zero-byte io.EOF a non-seekable character device
		// reports at VTIME expiry into a plain timeout.
		return 0, nil
	}
	return n, err
}

func (port *linuxPort) Write(p []byte) (int, error) {
	port.wg.Add(1)
	defer port.wg.Done()

	return port.file.Write(p)
}

func (port *linuxPort) Close() error {
	port.mtx.Lock()
	if !port.closed {
		port.closed = true
		port.file.Close()
	}
	port.mtx.Unlock()

	port.wg.Wait()
	return nil
}
