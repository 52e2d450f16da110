// Command gotncd is the packet radio daemon: a software TNC, APRS
// digipeater, and IGate client built from a single configuration file.
// Grounded on cmd/direwolf/main.go's flag set and startup order --
// parse flags, load config, open every channel, wire the digipeater and
// IGate, start the client-facing listeners, then run until signaled --
// reimplemented over internal/engine.Station instead of the C core.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/kf7qex/gotnc/internal/config"
	"github.com/kf7qex/gotnc/internal/deviceid"
	"github.com/kf7qex/gotnc/internal/engine"
	"github.com/kf7qex/gotnc/internal/logging"
)

func main() {
	var configFileName = pflag.StringP("config-file", "c", "gotnc.conf", "Configuration file name.")
	var kissAddr = pflag.StringP("kiss-addr", "k", ":8001", "TCP address for the KISS client port. Empty disables it.")
	var agwAddr = pflag.StringP("agw-addr", "g", ":8000", "TCP address for the AGWPE client port. Empty disables it.")
	var enableDNSSD = pflag.BoolP("dns-sd", "s", false, "Advertise the KISS port via mDNS.")
	var deviceIDPath = pflag.StringP("device-id-file", "i", "", "Path to a tocalls.yaml file. Empty uses the built-in database search path.")
	var debug = pflag.BoolP("debug", "d", false, "Enable debug-level logging.")
	var quiet = pflag.BoolP("quiet", "q", false, "Suppress all but warnings and errors.")
	var help = pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - a software TNC, APRS digipeater, and IGate client.\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage: gotncd [options]\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	verbosity := logging.VerbosityNormal
	switch {
	case *debug:
		verbosity = logging.VerbosityDebug
	case *quiet:
		verbosity = logging.VerbosityQuiet
	}
	logger := logging.New(verbosity, nil)

	conf, err := config.Load(*configFileName)
	if err != nil {
		logger.Fatal("failed to load configuration", "file", *configFileName, "err", err)
	}

	var deviceDB *deviceid.Database
	if *deviceIDPath != "" {
		deviceDB, err = deviceid.Load(*deviceIDPath)
	} else {
		deviceDB, err = deviceid.LoadDefault()
	}
	if err != nil {
		logger.Warn("device identification database not loaded", "err", err)
	}

	station, err := engine.New(engine.Config{
		Conf:        conf,
		Log:         logger,
		DeviceDB:    deviceDB,
		KISSAddr:    *kissAddr,
		AGWAddr:     *agwAddr,
		EnableDNSSD: *enableDNSSD,
	})
	if err != nil {
		logger.Fatal("failed to build station", "err", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("gotncd starting", "mycall", conf.MyCall.String(), "channels", len(conf.Channels))

	if err := station.Run(ctx); err != nil {
		logger.Fatal("station exited with error", "err", err)
	}

	logger.Info("gotncd stopped")
}
