// Package dnssd announces the KISS-over-TCP service via mDNS/DNS-SD, so
// client apps on the same network (especially mobile ones) can discover
// a running TNC instead of the user typing in an IP and port. Grounded
// on src/dns_sd.go/src/dns_sd_common.go; unlike the teacher's
// Linux/macOS split (dns_sd.go wrapping brutella/dnssd vs.
// dns_sd_avahi.go's cgo D-Bus/avahi path for other platforms), this
// package only wires the pure-Go brutella/dnssd backend, since cgo/Avahi
// is exactly the kind of platform-specific build complexity this tree
// otherwise avoids (see DESIGN.md).
package dnssd

import (
	"context"
	"os"
	"strings"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
)

// ServiceType is the DNS-SD service type advertised for a KISS TCP
// listener, per DNS_SD_SERVICE.
const ServiceType = "_kiss-tnc._tcp"

// DefaultName returns "gotnc on <hostname>", or just "gotnc" if the
// hostname can't be determined. Grounded on
// dns_sd_default_service_name.
func DefaultName() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "gotnc"
	}
	hostname, _, _ = strings.Cut(hostname, ".")
	return "gotnc on " + hostname
}

// Announcer owns one DNS-SD responder goroutine. There is no Remove:
// the teacher's own dns_sd_announce never retracts the service either —
// it runs for the daemon's lifetime and relies on the responder
// goroutine exiting (via ctx) to stop answering queries.
type Announcer struct {
	log *log.Logger
}

// Announce registers a KISS TCP service named name (DefaultName() if
// empty) on port and starts responding to mDNS queries for it in the
// background, until ctx is cancelled. Grounded on dns_sd_announce.
func Announce(ctx context.Context, name string, port int, logger *log.Logger) (*Announcer, error) {
	if name == "" {
		name = DefaultName()
	}
	if logger == nil {
		logger = log.Default()
	}

	svc, err := dnssd.NewService(dnssd.Config{
		Name: name,
		Type: ServiceType,
		Port: port,
	})
	if err != nil {
		return nil, err
	}

	responder, err := dnssd.NewResponder()
	if err != nil {
		return nil, err
	}

	if _, err := responder.Add(svc); err != nil {
		return nil, err
	}

	logger.Info("DNS-SD: announcing KISS TCP", "port", port, "name", name)
	go func() {
		if err := responder.Respond(ctx); err != nil && ctx.Err() == nil {
			logger.Error("DNS-SD: responder error", "err", err)
		}
	}()

	return &Announcer{log: logger}, nil
}
