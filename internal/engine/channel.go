package engine

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kf7qex/gotnc/internal/audio"
	"github.com/kf7qex/gotnc/internal/ax25"
	"github.com/kf7qex/gotnc/internal/config"
	"github.com/kf7qex/gotnc/internal/demod"
	"github.com/kf7qex/gotnc/internal/dlq"
	"github.com/kf7qex/gotnc/internal/dsp"
	"github.com/kf7qex/gotnc/internal/hdlc"
	"github.com/kf7qex/gotnc/internal/ptt"
	"github.com/kf7qex/gotnc/internal/tq"
	"github.com/kf7qex/gotnc/internal/xmit"
)

// audioDevice is the subset of audio.Device engine depends on directly;
// it exists only so Config.OpenAudio can be swapped for a test double
// without importing internal/audio's PortAudio build tag into tests.
type audioDevice = audio.Device

// openRealAudio is Config's default OpenAudio, opening an actual
// PortAudio device for the channel.
func openRealAudio(cc config.ChannelConfig) (audioDevice, error) {
	return audio.Open(cc.Audio)
}

// radioChannel bundles one configured channel's receive (demodulator) and
// transmit chains plus the hardware it drives.
type radioChannel struct {
	cfg config.ChannelConfig

	dev audio.Device
	ptt ptt.Controller
	mm  *demod.MultiModem
	dtmf DTMFDecoder

	xmitCh *xmit.Channel

	log *log.Logger
}

// newRadioChannel opens cc's audio device and PTT controller, builds its
// demodulator bank (one AFSK or Baseband instance per §4.1, internally
// fanning out to NumSlicers parallel slicers), and wires its transmit
// chain onto the shared queue and DCD checker. dtmf, if non-nil, receives
// every captured sample alongside the demodulator bank.
func newRadioChannel(cc config.ChannelConfig, q *tq.Queue, dcd tq.DCDChecker, recvQ *dlq.Queue, logger *log.Logger, openAudio func(config.ChannelConfig) (audioDevice, error), dtmf DTMFDecoder) (*radioChannel, error) {
	chLog := logger.With("channel", cc.Channel)

	dev, err := openAudio(cc)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}

	pttCtl, err := ptt.New(cc.PTT)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("open ptt: %w", err)
	}

	rc := &radioChannel{cfg: cc, dev: dev, ptt: pttCtl, dtmf: dtmf, log: chLog}

	rc.mm = buildMultiModem(cc, func(res demod.Result) {
		pkt, perr := ax25.ParseFrame(res.Frame.Data)
		if perr != nil {
			chLog.Debug("frame failed to parse as AX.25", "err", perr)
			return
		}
		recvQ.Push(dlq.Item{
			Channel:    cc.Channel,
			Subchannel: res.Subchannel,
			Slice:      res.Slice,
			Packet:     pkt,
			Retries:    res.Frame.Retries,
			Received:   time.Now(),
		})
	})

	gen := dsp.NewToneGenerator(dsp.ToneGenConfig{
		Modem:        cc.Modem,
		SampleRate:   dev.SampleRate(),
		Baud:         cc.Baud,
		MarkFreq:     cc.MarkFreq,
		SpaceFreq:    cc.SpaceFreq,
		AmplitudePct: 100,
	})

	csma := tq.NewCSMA(tq.CSMAConfig{
		DWait:      cc.DWait,
		SlotTime:   cc.SlotTime,
		Persist:    cc.Persist,
		FullDuplex: cc.FullDuplex,
		Timeout:    2 * cc.TXDelay,
	}, dcd, q)

	rc.xmitCh = xmit.New(xmit.Config{
		Channel:   cc.Channel,
		TXDelay:   cc.TXDelay,
		TXTail:    cc.TXTail,
		Baud:      cc.Baud,
		Modem:     cc.Modem,
		MaxBundle: defaultMaxBundle,
	}, q, csma, pttCtl, dev, gen, chLog)

	return rc, nil
}

// defaultMaxBundle caps how many queued packets one transmitBurst call
// may send back to back; direwolf's own default behavior bundles
// everything waiting once the channel is seized.
const defaultMaxBundle = 32

// buildMultiModem constructs cc's single demodulator instance (AFSK or
// 9600-baud baseband, per cc.Modem) and wires it into a MultiModem under
// subchannel 0, matching internal/demod.MultiModem's own contract that
// NumSlicers diversity lives inside one AFSK/Baseband instance rather than
// requiring one Add call per slicer.
func buildMultiModem(cc config.ChannelConfig, onFrame func(demod.Result)) *demod.MultiModem {
	mm := demod.NewMultiModem(cc.Channel, cc.MaxRetry, false)
	mm.OnFrame = onFrame

	if cc.Modem == dsp.ModemBaseband9600 {
		bb := demod.NewBaseband(demod.BasebandConfig{
			SampleRate: float64(cc.Audio.SampleRate),
			Baud:       float64(cc.Baud),
			NumSlicers: cc.NumSlicers,
		})
		mm.AddBaseband(0, bb)
		return mm
	}

	kind := demod.KindAFSK1200
	if cc.Baud <= 300 {
		kind = demod.KindAFSK300
	}
	afsk := demod.NewAFSK(demod.AFSKConfig{
		SampleRate: float64(cc.Audio.SampleRate),
		Baud:       float64(cc.Baud),
		MarkFreq:   float64(cc.MarkFreq),
		SpaceFreq:  float64(cc.SpaceFreq),
		NumSlicers: cc.NumSlicers,
	}, defaultLPFilterWidthSym, defaultLPFBaud)
	mm.AddAFSK(0, kind, afsk)
	return mm
}

// defaultLPFilterWidthSym/defaultLPFBaud are the AFSK low-pass filter
// parameters every AFSK channel's demodulator is built with.
const (
	defaultLPFilterWidthSym = 1.388
	defaultLPFBaud          = 0.14
)

// captureLoop reads audio samples from the channel's input device and
// feeds them through the demodulator bank until stop is closed or the
// device errors out.
func (rc *radioChannel) captureLoop(stop <-chan struct{}) {
	buf := make([]int16, captureBufferSamples)
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, err := rc.dev.ReadSamples(buf)
		if err != nil {
			rc.log.Error("audio read failed", "err", err)
			return
		}
		for i := 0; i < n; i++ {
			sam := float64(buf[i]) / 32768.0
			rc.mm.ProcessSample(sam)
			if rc.dtmf != nil {
				rc.dtmf.ProcessSample(rc.cfg.Channel, sam)
			}
		}
	}
}

const captureBufferSamples = 256

// locked reports whether this channel's demodulator currently sees a
// carrier on subchannel 0's primary slice, backing tq.DCDChecker.
func (rc *radioChannel) locked() bool {
	return rc.mm.Locked(0, 0)
}

func (rc *radioChannel) close() {
	rc.dev.Close()
	rc.ptt.Close()
}
