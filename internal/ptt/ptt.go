// Package ptt implements the push-to-talk transmit-enable line: asserting
// and deasserting a radio's key line around each transmission through one
// of several backends (serial RTS/DTR, GPIO, CM108 USB-audio HID, or
// hamlib rig control). Grounded on src/ptt.go's ptt_set_real dispatch.
package ptt

import "fmt"

// Line selects which serial control line carries PTT.
type Line int

const (
	LineNone Line = iota
	LineRTS
	LineDTR
)

// Controller asserts or deasserts a transmit-enable signal for one output
// control circuit (spec §4.6 step 1/6). Implementations must be safe to
// call from a single transmit goroutine per channel; callers do not invoke
// a Controller concurrently with itself.
type Controller interface {
	// SetPTT asserts (true) or deasserts (false) the key line.
	SetPTT(assert bool) error
	Close() error
}

// Config describes one channel's PTT wiring, as read from a PTT config
// directive. Exactly one backend-specific set of fields is meaningful,
// selected by Method.
type Config struct {
	Method Method

	// Serial
	SerialDevice string
	SerialLine   Line
	SerialLine2  Line // second line, driven opposite phase unless Invert2

	// GPIO (libgpiod character device)
	GPIOChip string
	GPIOLine int

	// CM108
	CM108Device string
	CM108Pin    int // 1-8

	// Hamlib
	HamlibRigModel int
	HamlibDevice   string

	Invert  bool // invert the primary line's sense
	Invert2 bool // invert the second line's sense
}

// Method names a PTT backend.
type Method int

const (
	MethodNone Method = iota
	MethodSerial
	MethodGPIO
	MethodCM108
	MethodHamlib
)

// New builds the Controller named by cfg.Method. Grounded on src/ptt.go's
// ptt_init backend selection switch.
func New(cfg Config) (Controller, error) {
	switch cfg.Method {
	case MethodNone:
		return noneController{}, nil
	case MethodSerial:
		return newSerialController(cfg)
	case MethodGPIO:
		return newGPIOController(cfg)
	case MethodCM108:
		return newCM108Controller(cfg)
	case MethodHamlib:
		return newHamlibController(cfg)
	default:
		return nil, fmt.Errorf("ptt: unknown method %d", cfg.Method)
	}
}

// noneController backs PTT_METHOD_NONE (e.g. VOX-keyed radios with no
// control line at all).
type noneController struct{}

func (noneController) SetPTT(bool) error { return nil }
func (noneController) Close() error      { return nil }

// invertingController flips the asserted sense before delegating, for
// radios wired with an active-low key line.
type invertingController struct {
	inner Controller
}

func invert(c Controller, on bool) Controller {
	if !on {
		return c
	}
	return invertingController{inner: c}
}

func (c invertingController) SetPTT(assert bool) error { return c.inner.SetPTT(!assert) }
func (c invertingController) Close() error             { return c.inner.Close() }

// dualController drives two independent lines from one logical PTT
// assertion, the second one inverted relative to the first by default
// (spec §4.6 step 1's "optionally a paired second line driven opposite").
// Grounded on src/ptt.go's ptt_line2 handling in ptt_set_real.
type dualController struct {
	primary, secondary Controller
}

func (c dualController) SetPTT(assert bool) error {
	if err := c.primary.SetPTT(assert); err != nil {
		return err
	}
	return c.secondary.SetPTT(assert)
}

func (c dualController) Close() error {
	err1 := c.primary.Close()
	err2 := c.secondary.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
