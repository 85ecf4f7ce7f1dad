package mux

import (
	"errors"
	"strconv"
)

// ErrChannelMissing is returned by ChannelRead when no channel has been
// registered with AddChannel for the requested number.
var ErrChannelMissing = errors.New("mux: channel not registered")

// ChannelError wraps a channel-number-scoped failure, mirroring the
// original implementation's dedicated exception type for missing-channel
// reads.
type ChannelError struct {
	Channel byte
	Err     error
}

func (e *ChannelError) Error() string {
	return "mux: channel " + strconv.Itoa(int(e.Channel)) + ": " + e.Err.Error()
}

func (e *ChannelError) Unwrap() error { return e.Err }
