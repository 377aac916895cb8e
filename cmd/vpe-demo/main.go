// Package main runs a video post-processing demo: a synthetic test pattern is
// decoded into the engine's input surface, enhanced by the selected feature
// and presented on an in-process display.
//
// While running, the demo serves Prometheus metrics on /metrics, a JSON
// snapshot on /stats, a live event stream on /ws and processing toggles on
// POST /enable and POST /disable.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opd-ai/vpe"
	"github.com/opd-ai/vpe/factory"
	"github.com/opd-ai/vpe/interfaces"
	"github.com/opd-ai/vpe/surface"
	"github.com/sirupsen/logrus"
)

// CLIConfig holds the parsed command line.
type CLIConfig struct {
	feature        string
	width          int
	height         int
	displayWidth   int
	displayHeight  int
	fps            float64
	frames         int
	workers        int
	disabled       bool
	listenAddr     string
	allowedOrigins string
	statsInterval  time.Duration
	logLevel       string
	logJSON        bool
	exitOnEOS      bool
}

func parseCLIFlags(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet("vpe-demo", flag.ContinueOnError)

	// Pipeline
	fs.StringVar(&cfg.feature, "feature", "detail-enhancement", "Feature: detail-enhancement, aihdr or colorspace-conversion")
	fs.IntVar(&cfg.width, "width", 320, "Source frame width")
	fs.IntVar(&cfg.height, "height", 180, "Source frame height")
	fs.IntVar(&cfg.displayWidth, "display-width", 640, "Display window width")
	fs.IntVar(&cfg.displayHeight, "display-height", 360, "Display window height")
	fs.Float64Var(&cfg.fps, "fps", 30, "Source frame rate")
	fs.IntVar(&cfg.frames, "frames", 300, "Frames to play before end of stream (0 plays forever)")
	fs.IntVar(&cfg.workers, "workers", 0, "Compute workers (0 uses one per CPU)")
	fs.BoolVar(&cfg.disabled, "bypass", false, "Start with processing disabled")

	// HTTP
	fs.StringVar(&cfg.listenAddr, "listen", "127.0.0.1:8090", "HTTP listen address (empty disables the API)")
	fs.StringVar(&cfg.allowedOrigins, "allowed-origins", "*", "Comma separated CORS origins")
	fs.DurationVar(&cfg.statsInterval, "stats-interval", 500*time.Millisecond, "Interval between websocket stats events")

	// Logging
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.logJSON, "log-json", false, "Emit JSON log lines")
	fs.BoolVar(&cfg.exitOnEOS, "exit-on-eos", true, "Exit once end of stream reaches the display")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.statsInterval <= 0 {
		return nil, fmt.Errorf("stats interval must be positive, got %v", cfg.statsInterval)
	}
	return cfg, nil
}

func configureLogging(cfg *CLIConfig) error {
	level, err := logrus.ParseLevel(cfg.logLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	if cfg.logJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func splitOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func main() {
	cfg, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "vpe-demo: %v\n", err)
		os.Exit(2)
	}
	if err := configureLogging(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "vpe-demo: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "main",
			"error":    err.Error(),
		}).Error("Demo failed")
		os.Exit(1)
	}
}

// run wires the pipeline and blocks until ctx is cancelled or, with
// exitOnEOS, until the last frame has been presented.
func run(ctx context.Context, cfg *CLIConfig) error {
	video, err := vpe.Create(cfg.feature,
		factory.WithComputeWorkers(cfg.workers),
		factory.WithStartEnabled(!cfg.disabled),
	)
	if err != nil {
		return err
	}
	defer video.Release()

	display, err := NewDisplay(cfg.displayWidth, cfg.displayHeight, surface.PixelFormatI420)
	if err != nil {
		return err
	}
	source, err := NewPatternSource(cfg.width, cfg.height, cfg.fps, cfg.frames)
	if err != nil {
		return err
	}

	origins := splitOrigins(cfg.allowedOrigins)
	hub := NewStatsHub(origins)
	hubCtx, cancelHub := context.WithCancel(ctx)
	defer cancelHub()
	go hub.Run(hubCtx)

	if err := video.RegisterCallback(newDemoCallback(video, hub)); err != nil {
		return err
	}
	if err := video.SetOutputSurface(display.Surface()); err != nil {
		return err
	}
	input, err := video.GetInputSurface()
	if err != nil {
		return err
	}

	routerCfg := RouterConfig{
		Video:          video,
		Hub:            hub,
		Display:        display,
		Source:         source,
		AllowedOrigins: origins,
	}

	var server *http.Server
	if cfg.listenAddr != "" {
		server = &http.Server{
			Addr:              cfg.listenAddr,
			Handler:           NewRouter(routerCfg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logrus.WithFields(logrus.Fields{
				"function": "run",
				"addr":     cfg.listenAddr,
			}).Info("HTTP API listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.WithFields(logrus.Fields{
					"function": "run",
					"error":    err.Error(),
				}).Error("HTTP API stopped")
			}
		}()
	}

	if err := video.Start(); err != nil {
		return err
	}

	sourceDone := make(chan error, 1)
	go func() {
		err := source.Run(ctx, input)
		if err == nil && cfg.frames > 0 && ctx.Err() == nil {
			err = video.NotifyEos()
		}
		sourceDone <- err
	}()

	go publishStats(hubCtx, hub, routerCfg, cfg.statsInterval)

	var eos <-chan struct{}
	if cfg.exitOnEOS {
		eos = display.EOS()
	}

	var runErr error
	for done := false; !done; {
		select {
		case <-ctx.Done():
			done = true
		case <-eos:
			logrus.WithFields(logrus.Fields{
				"function": "run",
				"display":  display.Stats(),
			}).Info("End of stream presented")
			done = true
		case err := <-sourceDone:
			sourceDone = nil
			if err != nil {
				runErr = err
				done = true
			}
		}
	}

	if err := video.Stop(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "run",
			"error":    err.Error(),
		}).Debug("Stop after run")
	}
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
	return runErr
}

// newDemoCallback renders every output buffer immediately and mirrors engine
// events to the websocket hub.
func newDemoCallback(video *vpe.Video, hub *StatsHub) interfaces.Callback {
	return &interfaces.CallbackFuncs{
		Error: func(err error) {
			logrus.WithFields(logrus.Fields{
				"function": "demoCallback.OnError",
				"error":    err.Error(),
			}).Warn("Engine error")
			hub.Broadcast("error", err.Error())
		},
		State: func(state interfaces.AlgoState) {
			logrus.WithFields(logrus.Fields{
				"function": "demoCallback.OnState",
				"state":    state.String(),
			}).Info("Engine state changed")
			hub.Broadcast("state", state.String())
		},
		EffectChange: func(effect interfaces.EffectType) {
			hub.Broadcast("effect", effect.String())
		},
		OutputFormatChanged: func(format surface.PixelFormat) {
			hub.Broadcast("format", format.String())
		},
		OutputBufferAvailable: func(index uint32, flag surface.BufferFlag) {
			if err := video.ReleaseOutputBuffer(index, true); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "demoCallback.OnOutputBufferAvailable",
					"index":    index,
					"flag":     flag.String(),
					"error":    err.Error(),
				}).Warn("Failed to render output buffer")
			}
		},
	}
}

func publishStats(ctx context.Context, hub *StatsHub, cfg RouterConfig, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if hub.ClientCount() == 0 {
				continue
			}
			resp, err := collectStats(cfg)
			if err != nil {
				return
			}
			hub.Broadcast("stats", resp)
		}
	}
}
