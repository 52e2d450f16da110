// Package audio defines the sample-level audio device contract used by
// the demodulator bank and the transmit tone generator, and a PortAudio-
// backed implementation of it. Grounded on the collaborator interface
// described in spec §2.1/§6 ("Audio I/O (external). Delivers 16-bit PCM
// samples per device..."); src/audio.go's own implementation is a cgo/ALSA
// binding left untouched as teacher reference.
package audio

// Device is one physical or virtual sound device, carrying one or two
// interleaved channels of 16-bit signed PCM at a fixed sample rate.
type Device interface {
	// ReadSamples blocks until buf is filled with captured audio or an
	// error occurs, returning the number of samples actually read.
	ReadSamples(buf []int16) (int, error)

	// WriteSamples blocks until all of buf has been queued for playback.
	WriteSamples(buf []int16) error

	// Flush pushes any partially filled output buffer out immediately,
	// matching src/audio.go's audio_flush (called at the end of a
	// transmission so the last few samples aren't left pending).
	Flush() error

	SampleRate() int
	Channels() int

	Close() error
}

// Config describes how to open a Device.
type Config struct {
	InputDevice  string // platform device name/index, empty for the default
	OutputDevice string
	SampleRate   int
	Channels     int // 1 or 2
}
