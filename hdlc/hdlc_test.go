package hdlc

import (
	"bytes"
	"testing"

	"github.com/dbernard/hdlc/internal/testutil"
)

func TestS1Unframed(t *testing.T) {
	rx := NewReceiver(testutil.NewFixedTransport([]byte("bad")))

	payload, err := rx.Get()
	if err != nil || payload != nil {
		t.Fatalf("Get() = %v, %v, want nil, nil", payload, err)
	}

	stats := rx.Stats()
	if stats.Bytes != 3 || stats.Unframed != 3 {
		t.Errorf("stats = %+v, want Bytes=3 Unframed=3", stats)
	}
}

func TestS2EmptyFlags(t *testing.T) {
	rx := NewReceiver(testutil.NewFixedTransport(testutil.HexBytes(t, "7E7E")))

	payload, err := rx.Get()
	if err != nil || payload != nil {
		t.Fatalf("Get() = %v, %v, want nil, nil", payload, err)
	}

	stats := rx.Stats()
	if stats.Bytes != 2 || stats.Empty != 1 {
		t.Errorf("stats = %+v, want Bytes=2 Empty=1", stats)
	}
}

func TestS3ShortFrame(t *testing.T) {
	rx := NewReceiver(testutil.NewFixedTransport(testutil.HexBytes(t, "7E 62 61 64 7E")))

	payload, err := rx.Get()
	if err != nil || payload != nil {
		t.Fatalf("Get() = %v, %v, want nil, nil", payload, err)
	}

	stats := rx.Stats()
	if stats.Bytes != 5 || stats.Invalid != 1 {
		t.Errorf("stats = %+v, want Bytes=5 Invalid=1", stats)
	}
}

func TestS4EscapedFrameValidFCS(t *testing.T) {
	rx := NewReceiver(testutil.NewFixedTransport(testutil.HexBytes(t, "7E 61 62 63 7D 5E 64 65 66 3F D4 66 53 7E")))

	payload, err := rx.Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	want := append([]byte("abc"), Flag)
	want = append(want, []byte("def")...)
	if !bytes.Equal(payload, want) {
		t.Errorf("payload = % X, want % X", payload, want)
	}

	stats := rx.Stats()
	if stats.Bytes != 14 || stats.FCS != 0 {
		t.Errorf("stats = %+v, want Bytes=14 FCS=0", stats)
	}
}

func TestS5InvalidCRC(t *testing.T) {
	rx := NewReceiver(testutil.NewFixedTransport(testutil.HexBytes(t, "7E 61 62 63 7D 5E 64 65 66 3F D4 66 55 7E")))

	payload, err := rx.Get()
	if err != nil || payload != nil {
		t.Fatalf("Get() = %v, %v, want nil, nil", payload, err)
	}

	stats := rx.Stats()
	if stats.Bytes != 14 || stats.FCS != 1 {
		t.Errorf("stats = %+v, want Bytes=14 FCS=1", stats)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		channel byte
		data    []byte
	}{
		{0, nil},
		{1, []byte("hello")},
		{255, []byte{Flag, Esc, 0x00, 0xFF}},
		{42, bytes.Repeat([]byte{Flag, Esc}, 64)},
	} {
		wire := Encode(tc.channel, 0, tc.data)

		rx := NewReceiver(testutil.NewFixedTransport(wire))
		payload, err := rx.Get()
		if err != nil {
			t.Fatalf("channel %d: Get() error = %v", tc.channel, err)
		}

		want := append([]byte{tc.channel, 0}, tc.data...)
		if !bytes.Equal(payload, want) {
			t.Errorf("channel %d: payload = % X, want % X", tc.channel, payload, want)
		}

		if rx.Stats().FCS != 0 {
			t.Errorf("channel %d: unexpected fcs errors: %+v", tc.channel, rx.Stats())
		}
	}
}

func TestBadCRCRejectsSingleByteFlip(t *testing.T) {
	wire := Encode(3, 0, []byte("payload"))

	// Flip each body byte (skip the two flag delimiters) and confirm no
	// frame is ever emitted, with fcs or invalid incrementing by exactly
	// one each time.
	for i := 1; i < len(wire)-1; i++ {
		mutated := append([]byte(nil), wire...)
		mutated[i] ^= 0xFF

		rx := NewReceiver(testutil.NewFixedTransport(mutated))
		payload, err := rx.Get()

		stats := rx.Stats()
		total := stats.FCS + stats.Invalid
		if payload != nil && err == nil {
			// A mutated escape byte can legitimately still produce a
			// different, still-well-formed (but now wrong-content) frame;
			// that frame must fail a content check instead of silently
			// matching the original.
			if bytes.Equal(payload, append([]byte{3, 0}, []byte("payload")...)) {
				t.Errorf("flip at %d: unexpectedly reproduced the original payload", i)
			}
			continue
		}

		if total != 1 {
			t.Errorf("flip at %d: fcs+invalid = %d, want 1 (stats=%+v)", i, total, stats)
		}
	}
}

func TestResyncAfterDoubleEscape(t *testing.T) {
	// ESC ESC inside a frame triggers double_escape and OutOfSync; the
	// next Flag must cleanly restart framing for the following frame.
	broken := testutil.HexBytes(t, "7E61627D7D")
	good := Encode(9, 0, []byte("ok"))

	rx := NewReceiver(testutil.NewFixedTransport(append(broken, good...)))

	payload, err := rx.Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	want := append([]byte{9, 0}, []byte("ok")...)
	if !bytes.Equal(payload, want) {
		t.Errorf("payload after resync = % X, want % X", payload, want)
	}

	if rx.Stats().DoubleEscape != 1 {
		t.Errorf("DoubleEscape = %d, want 1", rx.Stats().DoubleEscape)
	}
}

func TestIdleFillToleratesUnframed(t *testing.T) {
	wire := Encode(1, 0, []byte("x"))
	filled := append(bytes.Repeat([]byte{Idle}, 16), wire...)

	rx := NewReceiver(testutil.NewFixedTransport(filled))
	payload, err := rx.Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	want := []byte{1, 0, 'x'}
	if !bytes.Equal(payload, want) {
		t.Errorf("payload = % X, want % X", payload, want)
	}
	if rx.Stats().Unframed != 0 {
		t.Errorf("Unframed = %d, want 0", rx.Stats().Unframed)
	}
}

func TestEscapedFlagClearsAccumulatorBeforeNextFrame(t *testing.T) {
	// ESC FLAG mid-frame is a distinct error from a plain FLAG close: it
	// must count escaped_flag+invalid and restart framing with an empty
	// accumulator. The next frame's body follows that Flag directly (its
	// own opening Flag is dropped), so if the accumulator leaked into the
	// next frame, its FCS check would see the leftover "ab" prefix and fail.
	broken := testutil.HexBytes(t, "7E61627D7E")
	good := Encode(5, 0, []byte("ok2"))

	rx := NewReceiver(testutil.NewFixedTransport(append(broken, good[1:]...)))

	var payload []byte
	var err error
	for i := 0; i < 10; i++ {
		payload, err = rx.Get()
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if payload != nil {
			break
		}
	}

	want := append([]byte{5, 0}, []byte("ok2")...)
	if !bytes.Equal(payload, want) {
		t.Errorf("payload after escaped-flag = % X, want % X", payload, want)
	}

	stats := rx.Stats()
	if stats.EscapedFlag != 1 {
		t.Errorf("EscapedFlag = %d, want 1", stats.EscapedFlag)
	}
	if stats.FCS != 0 {
		t.Errorf("FCS = %d, want 0 (accumulator should not have leaked into next frame)", stats.FCS)
	}
}

func TestGarbagePaddingAroundFrameStillDecodes(t *testing.T) {
	wire := Encode(7, 0, []byte("surrounded"))
	padded := append(testutil.RandomBytes(32), wire...)
	padded = append(padded, testutil.RandomBytes(32)...)

	rx := NewReceiver(testutil.NewFixedTransport(padded))

	var payload []byte
	var err error
	for i := 0; i < 1000; i++ {
		payload, err = rx.Get()
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if payload != nil {
			break
		}
	}

	want := append([]byte{7, 0}, []byte("surrounded")...)
	if !bytes.Equal(payload, want) {
		t.Errorf("payload = % X, want % X", payload, want)
	}
}
