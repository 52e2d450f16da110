package ptt

import (
	"fmt"
	"os"

	"github.com/jochenvg/go-udev"
)

// cm108Controller keys a radio through a GPIO pin on a CM108/CM119-family
// USB audio adapter's HID interface. Grounded on src/cm108.go's
// cm108_inventory (device enumeration via libudev) and cm108_write/
// cm108_set_gpio_pin (the 5-byte HID output report: zero, zero, data
// byte, mask byte, zero - direwolf's comments note the chip rejects a
// 4-byte report with EPIPE though only 4 bytes are documented).
type cm108Controller struct {
	device string
	pin    int // 1-8
}

func newCM108Controller(cfg Config) (Controller, error) {
	if cfg.CM108Pin < 1 || cfg.CM108Pin > 8 {
		return nil, fmt.Errorf("ptt: CM108 GPIO pin %d must be 1 through 8", cfg.CM108Pin)
	}

	device := cfg.CM108Device
	if device == "" {
		resolved, err := resolveCM108Hidraw()
		if err != nil {
			return nil, err
		}
		device = resolved
	}

	c := Controller(&cm108Controller{device: device, pin: cfg.CM108Pin})
	return invert(c, cfg.Invert), nil
}

func (c *cm108Controller) SetPTT(assert bool) error {
	state := 0
	if assert {
		state = 1
	}
	return cm108SetGPIOPin(c.device, c.pin, state)
}

func (c *cm108Controller) Close() error { return nil }

// cm108SetGPIOPin writes the I/O mask and data bytes for one GPIO pin to
// the adapter's hidraw node, leaving the other seven pins as inputs.
func cm108SetGPIOPin(device string, pin int, state int) error {
	iomask := byte(1 << (pin - 1))
	iodata := byte(0)
	if state != 0 {
		iodata = iomask
	}

	fd, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("ptt: open %s: %w", device, err)
	}
	defer fd.Close()

	report := []byte{0, 0, iodata, iomask, 0}
	n, err := fd.Write(report)
	if err != nil || n != len(report) {
		return fmt.Errorf("ptt: write GPIO report to %s: %w", device, err)
	}
	return nil
}

// resolveCM108Hidraw finds the /dev/hidraw node belonging to the first
// CM108-compatible USB audio adapter, matching a sound card's USB parent
// to a hidraw device with the same parent. Grounded on cm108_inventory's
// two-pass udev enumeration (subsystem "sound" then subsystem "hidraw",
// merged on shared USB parent devpath).
func resolveCM108Hidraw() (string, error) {
	u := udev.Udev{}

	soundParents := map[string]bool{}
	soundEnum := u.NewEnumerate()
	if err := soundEnum.AddMatchSubsystem("sound"); err != nil {
		return "", fmt.Errorf("ptt: udev match sound: %w", err)
	}
	soundDevices, err := soundEnum.Devices()
	if err != nil {
		return "", fmt.Errorf("ptt: udev enumerate sound devices: %w", err)
	}
	for _, d := range soundDevices {
		parent := d.ParentWithSubsystemDevtype("usb", "usb_device")
		if parent != nil {
			soundParents[parent.Syspath()] = true
		}
	}

	hidEnum := u.NewEnumerate()
	if err := hidEnum.AddMatchSubsystem("hidraw"); err != nil {
		return "", fmt.Errorf("ptt: udev match hidraw: %w", err)
	}
	hidDevices, err := hidEnum.Devices()
	if err != nil {
		return "", fmt.Errorf("ptt: udev enumerate hidraw devices: %w", err)
	}
	for _, d := range hidDevices {
		parent := d.ParentWithSubsystemDevtype("usb", "usb_device")
		if parent != nil && soundParents[parent.Syspath()] {
			if node := d.Devnode(); node != "" {
				return node, nil
			}
		}
	}

	return "", fmt.Errorf("ptt: no CM108-compatible hidraw device found")
}
