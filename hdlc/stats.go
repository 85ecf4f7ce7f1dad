package hdlc

import "sync/atomic"

// Stats holds the Receiver's nonnegative, monotonically increasing
// counters. Field names follow the statistics vocabulary from the
// protocol description rather than the framerinterface.BaseStats this
// package's counters are modeled on, since a byte-oriented HDLC receiver
// counts different events than a generic escaped framer.
type Stats struct {
	Bytes        uint64
	Unframed     uint64
	Empty        uint64
	EscapedFlag  uint64
	DoubleEscape uint64
	Timeout      uint64
	Invalid      uint64
	FCS          uint64
}

// liveStats is the mutable, atomically-updated counter block embedded in a
// Receiver. Only the pump goroutine writes to it, using atomic.AddUint64 so
// that a diagnostics endpoint reading via Snapshot concurrently with the
// pump never observes a torn update.
type liveStats struct {
	bytes        uint64
	unframed     uint64
	empty        uint64
	escapedFlag  uint64
	doubleEscape uint64
	timeout      uint64
	invalid      uint64
	fcs          uint64
}

// Snapshot returns a copy of the counters safe to read concurrently with
// the pump.
func (s *liveStats) Snapshot() Stats {
	return Stats{
		Bytes:        atomic.LoadUint64(&s.bytes),
		Unframed:     atomic.LoadUint64(&s.unframed),
		Empty:        atomic.LoadUint64(&s.empty),
		EscapedFlag:  atomic.LoadUint64(&s.escapedFlag),
		DoubleEscape: atomic.LoadUint64(&s.doubleEscape),
		Timeout:      atomic.LoadUint64(&s.timeout),
		Invalid:      atomic.LoadUint64(&s.invalid),
		FCS:          atomic.LoadUint64(&s.fcs),
	}
}
