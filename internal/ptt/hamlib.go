package ptt

import (
	"fmt"

	hamlib "github.com/xylo04/goHamlib"
)

// hamlibController keys a radio through its CAT control port via hamlib's
// rig_set_ptt, for rigs with no separate PTT line. Grounded on src/ptt.go's
// PTT_METHOD_HAMLIB path (rig_init/rig_open at startup, rig_set_ptt with
// RIG_VFO_CURR on each assert/deassert) - left as an unported cgo stub
// there ("Hamlib support currently disabled due to mid-stage porting
// complexity"), implemented here against the pure-Go goHamlib binding.
type hamlibController struct {
	rig hamlib.Rig
}

func newHamlibController(cfg Config) (Controller, error) {
	rig := hamlib.RigOpen(cfg.HamlibRigModel)
	if rig == nil {
		return nil, fmt.Errorf("ptt: hamlib rig_init failed for model %d", cfg.HamlibRigModel)
	}

	if cfg.HamlibDevice != "" {
		rig.SetConf("rig_pathname", cfg.HamlibDevice)
	}

	if err := rig.Open(); err != nil {
		return nil, fmt.Errorf("ptt: hamlib rig_open %s: %w", cfg.HamlibDevice, err)
	}

	c := Controller(&hamlibController{rig: rig})
	return invert(c, cfg.Invert), nil
}

func (h *hamlibController) SetPTT(assert bool) error {
	onoff := hamlib.RIG_PTT_OFF
	if assert {
		onoff = hamlib.RIG_PTT_ON
	}
	return h.rig.SetPTT(hamlib.RIG_VFO_CURR, onoff)
}

func (h *hamlibController) Close() error {
	return h.rig.Close()
}
