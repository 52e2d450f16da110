// Package logging configures the single charmbracelet/log logger instance
// the daemon hands down to every subsystem (each of which, absent an
// injected logger, falls back to log.Default() on its own — see
// internal/kiss, internal/igate, internal/beacon, internal/xmit,
// internal/dnssd). Grounded on src/textcolor.go's color-coded severity
// levels (DW_COLOR_INFO/ERROR/REC/DECODED/XMIT/DEBUG); charmbracelet/log's
// own level-based styling already does what textcolor.c's terminal color
// switch did, so this package configures it rather than reimplementing a
// parallel color scheme.
package logging

import (
	"os"

	"github.com/charmbracelet/log"
)

// Verbosity loosely mirrors textcolor.c's integer debug level: the lowest
// value shows only warnings and errors, higher values progressively enable
// more detail. Color styling is left to charmbracelet/log at every level.
type Verbosity int

const (
	VerbosityQuiet Verbosity = iota
	VerbosityNormal
	VerbosityDebug
)

// New builds the daemon's root logger, writing to w (os.Stderr if nil).
// VerbosityDebug enables debug-level output and source location
// reporting; VerbosityQuiet raises the threshold to warnings only.
func New(v Verbosity, w *os.File) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
	}
	switch v {
	case VerbosityDebug:
		opts.ReportCaller = true
	}
	logger := log.NewWithOptions(w, opts)
	switch v {
	case VerbosityQuiet:
		logger.SetLevel(log.WarnLevel)
	case VerbosityDebug:
		logger.SetLevel(log.DebugLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}
	return logger
}

// ForChannel returns a child logger tagged with the given radio channel
// number, the Go equivalent of direwolf's "[0.1]" channel/subchannel log
// prefixes scattered through dw_printf call sites.
func ForChannel(base *log.Logger, channel int) *log.Logger {
	return base.With("channel", channel)
}
