// Command halbridge connects a simulated mechanism to external control
// software over the websocket protocol.
//
// The mechanism is described in a YAML file naming its joints, motor
// bindings, and encoder bindings. The bridge dials the control peer,
// waits for it to initialize its devices, then runs the fixed-rate
// synchronization loop: peer speed commands become motor torque, and
// simulated joint state streams back as encoder counts and periods.
//
// Usage:
//
//	halbridge [flags]
//
// Flags:
//
//	-config string       Mechanism description file (required)
//	-uri string          Peer websocket URI (default "ws://localhost:3300/wpilibws")
//	-rate int            Synchronization rate in Hz (overrides config)
//	-bus-voltage float   Bus voltage in volts (overrides config)
//	-record string       Record bridge events to a CBOR log file
//	-log-level string    Log level: debug, info, warn, error (default "info")
//	-no-reconnect        Exit when the peer disconnects instead of redialing
//
// Examples:
//
//	# Bridge a turret mechanism to a locally running peer
//	halbridge -config turret.yaml
//
//	# Record all wire traffic for later analysis with halbridge-log
//	halbridge -config turret.yaml -record session.blog -log-level debug
package main

import (
	"context"
	"flag"
	stdlog "log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/subsystemsim/halbridge/pkg/bridge"
	"github.com/subsystemsim/halbridge/pkg/log"
	"github.com/subsystemsim/halbridge/pkg/mechanism"
	"github.com/subsystemsim/halbridge/pkg/transport"
)

// Config holds the command-line configuration.
type Config struct {
	ConfigFile  string
	URI         string
	Rate        int
	BusVoltage  float64
	RecordFile  string
	LogLevel    string
	NoReconnect bool
}

var config Config

func init() {
	flag.StringVar(&config.ConfigFile, "config", "", "Mechanism description file (required)")
	flag.StringVar(&config.URI, "uri", transport.DefaultEndpoint, "Peer websocket URI")
	flag.IntVar(&config.Rate, "rate", 0, "Synchronization rate in Hz (overrides config)")
	flag.Float64Var(&config.BusVoltage, "bus-voltage", 0, "Bus voltage in volts (overrides config)")
	flag.StringVar(&config.RecordFile, "record", "", "Record bridge events to a CBOR log file")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.BoolVar(&config.NoReconnect, "no-reconnect", false, "Exit when the peer disconnects instead of redialing")
}

func main() {
	flag.Parse()

	if config.ConfigFile == "" {
		stdlog.Fatal("missing required -config flag")
	}

	slogger := setupLogging(config.LogLevel)

	desc, err := mechanism.Load(config.ConfigFile)
	if err != nil {
		stdlog.Fatalf("Invalid mechanism description: %v", err)
	}
	if config.Rate > 0 {
		desc.TickRate = config.Rate
	}
	if config.BusVoltage > 0 {
		desc.BusVoltage = config.BusVoltage
	}

	logger, closeLogger, err := buildLogger(slogger)
	if err != nil {
		stdlog.Fatalf("Failed to open event log: %v", err)
	}
	defer closeLogger()

	cfg := bridge.DefaultConfig()
	cfg.URI = config.URI
	cfg.Description = desc
	cfg.AutoReconnect = !config.NoReconnect
	cfg.Logger = logger

	b, err := bridge.New(cfg)
	if err != nil {
		stdlog.Fatalf("Invalid bridge configuration: %v", err)
	}

	stdlog.Printf("Bridging mechanism %q to %s", desc.Name, config.URI)
	stdlog.Printf("Rate: %d Hz, bus voltage: %.1f V, %d actuators, %d sensors",
		desc.TickRate, desc.BusVoltage, len(desc.Actuators), len(desc.Sensors))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		stdlog.Printf("Received signal: %v", sig)
		cancel()
	}()

	if err := b.Run(ctx); err != nil {
		stdlog.Fatalf("Bridge failed: %v", err)
	}
	stdlog.Println("Goodbye!")
}

func setupLogging(level string) *slog.Logger {
	stdlog.SetFlags(stdlog.Ltime | stdlog.Lmicroseconds)

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
		stdlog.SetFlags(stdlog.Ltime | stdlog.Lmicroseconds | stdlog.Lshortfile)
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel}))
}

// buildLogger composes the event sinks: console via slog, plus a CBOR
// file when recording is requested.
func buildLogger(slogger *slog.Logger) (log.Logger, func(), error) {
	console := log.NewSlogAdapter(slogger)

	if config.RecordFile == "" {
		return console, func() {}, nil
	}

	file, err := log.NewFileLogger(config.RecordFile)
	if err != nil {
		return nil, nil, err
	}
	return log.MultiLogger{console, file}, func() { _ = file.Close() }, nil
}
