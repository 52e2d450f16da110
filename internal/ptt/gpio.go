package ptt

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// gpioController keys a radio through a libgpiod character-device line.
// Grounded on src/ptt.go's PTT_METHOD_GPIOD path, which the teacher left
// as an unported cgo stub ("Gpiod support currently disabled due to
// mid-stage porting complexity") — implemented here with the pure-Go
// go-gpiocdev library instead of cgo.
type gpioController struct {
	line *gpiocdev.Line
}

func newGPIOController(cfg Config) (Controller, error) {
	if cfg.GPIOChip == "" {
		return nil, fmt.Errorf("ptt: GPIO chip device not configured")
	}

	line, err := gpiocdev.RequestLine(cfg.GPIOChip, cfg.GPIOLine, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("ptt: request GPIO line %s:%d: %w", cfg.GPIOChip, cfg.GPIOLine, err)
	}

	c := Controller(&gpioController{line: line})
	return invert(c, cfg.Invert), nil
}

func (g *gpioController) SetPTT(assert bool) error {
	v := 0
	if assert {
		v = 1
	}
	return g.line.SetValue(v)
}

func (g *gpioController) Close() error {
	return g.line.Close()
}
