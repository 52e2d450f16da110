package ptt

import (
	"fmt"

	"github.com/pkg/term"
	"golang.org/x/sys/unix"
)

// serialController keys a radio through the RTS and/or DTR modem control
// lines of a serial port. Grounded on src/serial_port.go (port open via
// github.com/pkg/term) and src/ptt.go's RTS_ON/RTS_OFF/DTR_ON/DTR_OFF,
// which toggle the line with a TIOCMGET/TIOCMSET ioctl pair on the port's
// file descriptor.
type serialController struct {
	fd   *term.Term
	line Line
}

func newSerialController(cfg Config) (Controller, error) {
	t, err := term.Open(cfg.SerialDevice, term.Speed(1200), term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("ptt: open serial port %s: %w", cfg.SerialDevice, err)
	}

	line := cfg.SerialLine
	if line == LineNone {
		line = LineRTS
	}

	primary := Controller(&serialController{fd: t, line: line})
	primary = invert(primary, cfg.Invert)

	if cfg.SerialLine2 == LineNone {
		return primary, nil
	}

	// Default wiring shares one already-open port for the second line; a
	// genuinely separate second port is configured as its own directive.
	secondary := Controller(&serialController{fd: t, line: cfg.SerialLine2})
	secondary = invert(secondary, !cfg.Invert2)
	return dualController{primary: primary, secondary: sharedCloseController{Controller: secondary}}, nil
}

func (s *serialController) SetPTT(assert bool) error {
	fd := int(s.fd.Fd())
	switch s.line {
	case LineRTS:
		return setModemBit(fd, unix.TIOCM_RTS, assert)
	case LineDTR:
		return setModemBit(fd, unix.TIOCM_DTR, assert)
	default:
		return nil
	}
}

func (s *serialController) Close() error {
	return s.fd.Close()
}

// sharedCloseController wraps a Controller that shares the primary's file
// descriptor, so dualController.Close only tears down the underlying port
// once.
type sharedCloseController struct {
	Controller
}

func (sharedCloseController) Close() error { return nil }

func setModemBit(fd int, bit int, on bool) error {
	status, err := unix.IoctlGetInt(fd, unix.TIOCMGET)
	if err != nil {
		return fmt.Errorf("ptt: TIOCMGET: %w", err)
	}
	if on {
		status |= bit
	} else {
		status &^= bit
	}
	if err := unix.IoctlSetInt(fd, unix.TIOCMSET, status); err != nil {
		return fmt.Errorf("ptt: TIOCMSET: %w", err)
	}
	return nil
}
