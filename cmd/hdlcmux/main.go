// Command hdlcmux runs a standalone virtual-serial multiplexer over a
// Linux UART: it frames and deframes HDLC traffic on the wire and exposes
// a fixed set of application channels plus a read-only diagnostics server.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dbernard/hdlc/diag"
	"github.com/dbernard/hdlc/logging"
	"github.com/dbernard/hdlc/multirun"
	"github.com/dbernard/hdlc/mux"
	"github.com/dbernard/hdlc/transport"
)

func main() {
	device := flag.String("device", "/dev/ttyUSB0", "serial device to open")
	rate := flag.Uint("rate", 115200, "interface baud rate")
	flowControl := flag.Bool("flowcontrol", false, "enable RTS/CTS flow control")
	diagAddr := flag.String("diag-listen", ":8080", "diagnostics HTTP listen address")
	channelSpec := flag.String("channels", "0:256,1:256", "comma-separated channel_number:queue_capacity pairs")
	logging.InitFlags()
	flag.Parse()

	log := logging.New("hdlcmux", logrus.InfoLevel)

	channels, err := parseChannelSpec(*channelSpec)
	if err != nil {
		log.WithError(err).Fatal("invalid -channels flag")
	}

	port, err := transport.Open(&transport.PortOptions{
		PortName:      *device,
		InterfaceRate: uint32(*rate),
		FlowControl:   *flowControl,
	})
	if err != nil {
		log.WithError(err).Fatalf("failed to open %s", *device)
	}

	sessionID := uuid.New()
	m := mux.New(port, log.WithField("session", sessionID), sessionID)
	for ch, capacity := range channels {
		m.AddChannel(ch, capacity)
	}

	diagServer := diag.New(*diagAddr, m, log.WithField("subsystem", "diag"))

	var runner multirun.MultiRun
	runner.RegisterRunnable(m)
	runner.RegisterRunnable(diagServer)
	runner.HandleSIGTERM()

	log.WithField("device", *device).WithField("diag", *diagAddr).Info("hdlcmux starting")

	if err := runner.Run(nil); err != nil && err != multirun.ErrorClosed {
		log.WithError(err).Error("hdlcmux exited with error")
		port.Close()
		os.Exit(1)
	}

	port.Close()
}

func parseChannelSpec(spec string) (map[byte]int, error) {
	out := make(map[byte]int)
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("bad channel entry %q, want channel:capacity", entry)
		}
		num, err := strconv.Atoi(parts[0])
		if err != nil || num < 0 || num > 255 {
			return nil, fmt.Errorf("bad channel number in %q", entry)
		}
		capacity, err := strconv.Atoi(parts[1])
		if err != nil || capacity < 0 {
			return nil, fmt.Errorf("bad queue capacity in %q", entry)
		}
		out[byte(num)] = capacity
	}
	return out, nil
}
