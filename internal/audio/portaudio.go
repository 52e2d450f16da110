package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

var paInitOnce sync.Once
var paInitErr error

func ensurePortAudio() error {
	paInitOnce.Do(func() {
		paInitErr = portaudio.Initialize()
	})
	return paInitErr
}

// PortAudioDevice implements Device on top of github.com/gordonklaus/
// portaudio, the cross-platform replacement for src/audio.go's ALSA-only
// cgo binding.
type PortAudioDevice struct {
	stream     *portaudio.Stream
	sampleRate int
	channels   int

	inBuf  []int16
	outBuf []int16
}

// Open opens one full-duplex stream serving both capture and playback for
// cfg, matching direwolf's one-ADEVICE-per-channel-pair model.
func Open(cfg Config) (*PortAudioDevice, error) {
	if err := ensurePortAudio(); err != nil {
		return nil, fmt.Errorf("audio: portaudio init: %w", err)
	}

	inDev, err := findDevice(cfg.InputDevice, true)
	if err != nil {
		return nil, err
	}
	outDev, err := findDevice(cfg.OutputDevice, false)
	if err != nil {
		return nil, err
	}

	channels := cfg.Channels
	if channels == 0 {
		channels = 1
	}

	const framesPerBuffer = 1024
	d := &PortAudioDevice{
		sampleRate: cfg.SampleRate,
		channels:   channels,
		inBuf:      make([]int16, framesPerBuffer*channels),
		outBuf:     make([]int16, framesPerBuffer*channels),
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   inDev,
			Channels: channels,
			Latency:  inDev.DefaultLowInputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Device:   outDev,
			Channels: channels,
			Latency:  outDev.DefaultLowOutputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: framesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, d.inBuf, d.outBuf)
	if err != nil {
		return nil, fmt.Errorf("audio: open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("audio: start stream: %w", err)
	}
	d.stream = stream

	return d, nil
}

func findDevice(name string, input bool) (*portaudio.DeviceInfo, error) {
	if name == "" {
		if input {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("audio: list devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("audio: device %q not found", name)
}

func (d *PortAudioDevice) ReadSamples(buf []int16) (int, error) {
	n := 0
	for n < len(buf) {
		if err := d.stream.Read(); err != nil {
			return n, fmt.Errorf("audio: read: %w", err)
		}
		copied := copy(buf[n:], d.inBuf)
		n += copied
	}
	return n, nil
}

func (d *PortAudioDevice) WriteSamples(buf []int16) error {
	for len(buf) > 0 {
		n := copy(d.outBuf, buf)
		for i := n; i < len(d.outBuf); i++ {
			d.outBuf[i] = 0
		}
		if err := d.stream.Write(); err != nil {
			return fmt.Errorf("audio: write: %w", err)
		}
		buf = buf[n:]
	}
	return nil
}

// Flush matches src/audio.go's audio_flush: PortAudio's blocking Write
// already drains each buffer synchronously, so there is nothing further
// to push once WriteSamples returns.
func (d *PortAudioDevice) Flush() error { return nil }

func (d *PortAudioDevice) SampleRate() int { return d.sampleRate }
func (d *PortAudioDevice) Channels() int   { return d.channels }

func (d *PortAudioDevice) Close() error {
	if err := d.stream.Close(); err != nil {
		return fmt.Errorf("audio: close stream: %w", err)
	}
	return nil
}
