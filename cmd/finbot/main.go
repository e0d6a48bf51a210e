// finbot runs the fish-robot control loop: it reads poses from pose sources,
// drives the tail and rudder through the servo bridge, and serves the
// tuning API, telemetry websockets and gRPC health.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-finbot/internal/config"
	"github.com/teslashibe/go-finbot/internal/log"
	"github.com/teslashibe/go-finbot/pkg/actuator"
	"github.com/teslashibe/go-finbot/pkg/health"
	"github.com/teslashibe/go-finbot/pkg/ingest"
	"github.com/teslashibe/go-finbot/pkg/pilot"
	"github.com/teslashibe/go-finbot/pkg/pose"
	"github.com/teslashibe/go-finbot/pkg/sim"
	"github.com/teslashibe/go-finbot/pkg/telemetry"
	"github.com/teslashibe/go-finbot/pkg/web"
)

// Options are the daemon settings after flags override the environment.
type Options struct {
	HTTPAddr       string
	GRPCAddr       string
	ActuatorURL    string
	Preset         string
	ConfigFile     string
	RecordDir      string
	TelemetryEvery int
	Simulate       bool
	AccessLog      bool
	LogLevel       string
}

func main() {
	opts := parseFlags()
	log.Init(opts.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		log.Error("finbot stopped", "error", err)
		os.Exit(1)
	}
}

// parseFlags reads the environment, then lets flags override it.
func parseFlags() Options {
	opts := Options{}
	flag.StringVar(&opts.HTTPAddr, "http", config.HTTPAddr(), "REST and websocket listen address")
	flag.StringVar(&opts.GRPCAddr, "grpc", config.GRPCAddr(), "gRPC health listen address (\"off\" disables)")
	flag.StringVar(&opts.ActuatorURL, "actuator", config.ActuatorURL(), "servo bridge URL (ws:// link or http:// REST); empty discards commands")
	flag.StringVar(&opts.Preset, "preset", config.Preset(), "pilot preset: "+strings.Join(pilot.PresetNames(), ", "))
	flag.StringVar(&opts.ConfigFile, "config", config.ConfigFile(), "YAML pilot configuration (overrides -preset)")
	flag.StringVar(&opts.RecordDir, "record", config.RecordDir(), "telemetry recording directory; empty disables recording")
	flag.IntVar(&opts.TelemetryEvery, "telemetry-every", 1, "publish every nth tick on the telemetry websockets")
	flag.BoolVar(&opts.Simulate, "sim", config.EnvBool("FINBOT_SIM", false), "close the loop on the simulated vehicle instead of external poses")
	flag.BoolVar(&opts.AccessLog, "access-log", !config.Production(), "log every HTTP request")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	opts.LogLevel = config.LogLevel()
	if *debug {
		opts.LogLevel = "debug"
	}
	return opts
}

func loadPilotConfig(opts Options) (pilot.Config, error) {
	if opts.ConfigFile != "" {
		return pilot.LoadConfig(opts.ConfigFile)
	}
	return pilot.Preset(opts.Preset)
}

// newSink picks the actuator transport from the URL scheme. The returned
// runner, if any, must be started for commands to leave the process.
func newSink(url string) (actuator.Sink, func(context.Context) error, func() fiber.Map, error) {
	switch {
	case url == "":
		log.Warn("no actuator configured, commands are discarded")
		return actuator.Discard, nil, nil, nil
	case strings.HasPrefix(url, "ws://"), strings.HasPrefix(url, "wss://"):
		link := actuator.NewLink(url)
		return link, link.Run, func() fiber.Map { return fiber.Map{"actuator": link.Stats()} }, nil
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		sink := actuator.NewHTTPSink(url, 200*time.Millisecond)
		status := func() fiber.Map {
			sent, superseded, failed := sink.Stats()
			return fiber.Map{"actuator": fiber.Map{"sent": sent, "superseded": superseded, "failed": failed}}
		}
		return sink, sink.Run, status, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported actuator url %q", url)
	}
}

func run(ctx context.Context, opts Options) error {
	cfg, err := loadPilotConfig(opts)
	if err != nil {
		return fmt.Errorf("pilot config: %w", err)
	}

	sink, runSink, sinkStatus, err := newSink(opts.ActuatorURL)
	if err != nil {
		return err
	}
	if runSink != nil {
		go func() {
			if err := runSink(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("actuator stopped", "error", err)
			}
		}()
	}

	var observers []pilot.Observer
	var poses ingest.Publisher
	if opts.Simulate {
		plant := sim.NewPlant(cfg.Vehicle, cfg.DT, pose.Pose{}, sim.Calm)
		poses = plant
		observers = append(observers, plant)
		log.Info("simulated vehicle enabled")
	} else {
		poses = pose.NewStore()
	}

	tel := web.NewTelemetry(opts.TelemetryEvery)
	go tel.Run(ctx)
	observers = append(observers, tel)

	if opts.RecordDir != "" {
		rec, err := telemetry.NewRecorder(opts.RecordDir, uuid.New(), cfg.DT, cfg.Wave.Joints(), nil)
		if err != nil {
			return err
		}
		defer func() {
			if err := rec.Close(); err != nil {
				log.Warn("recording close failed", "error", err)
			}
		}()
		log.Info("recording telemetry", "dir", rec.Directory())
		observers = append(observers, telemetry.NewSnapshotRecorder(rec))
	}

	loop, err := pilot.New(cfg, poses, sink, observers...)
	if err != nil {
		return err
	}

	srv := web.NewServer(web.Config{
		Addr:      opts.HTTPAddr,
		Pilot:     loop,
		Poses:     poses,
		Telemetry: tel,
		Ingest:    ingest.NewServer(poses, loop),
		AccessLog: opts.AccessLog,
		Status:    sinkStatus,
	})
	srv.StartAsync()

	if opts.GRPCAddr != "off" {
		hs := health.New(loop, time.Duration(10*cfg.DT*float64(time.Second)))
		go hs.Run(ctx, 500*time.Millisecond)
		go func() {
			if err := hs.ListenAndServe(opts.GRPCAddr); err != nil {
				log.Error("grpc health stopped", "error", err)
			}
		}()
		defer hs.Stop()
	}

	log.Info("finbot running", "dt", cfg.DT, "joints", cfg.Wave.Joints(), "http", opts.HTTPAddr)
	err = loop.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Warn("web shutdown failed", "error", serr)
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
