// verifyhost: serves an embedded verification flow in a browser shell and
// answers its native capture requests with a local camera.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-verify/internal/config"
	"github.com/teslashibe/go-verify/internal/log"
	"github.com/teslashibe/go-verify/pkg/camera"
	"github.com/teslashibe/go-verify/pkg/camera/gocvcam"
	"github.com/teslashibe/go-verify/pkg/capture"
	"github.com/teslashibe/go-verify/pkg/verify"
	"github.com/teslashibe/go-verify/pkg/web"
)

var debug = flag.Bool("debug", false, "Enable debug logging and request logs")

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "verifyhost:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if *debug {
		level = "debug"
	}
	log.Init(level)
	logger := log.L()

	options := camera.NewManager()
	if cfg.PersistDir != "" {
		opts := options.Options()
		opts.Persist = true
		opts.PersistDir = cfg.PersistDir
		if err := options.SetOptions(opts); err != nil {
			return err
		}
	}

	var capability camera.Capability
	switch cfg.Camera {
	case config.CameraMock:
		capability = camera.NewMock()
	default:
		gc := gocvcam.New(cfg.RearDevice, cfg.FrontDevice)
		gc.Logger = logger.With("component", "camera")
		capability = gc
	}

	mediator := capture.NewMediator(capability,
		capture.WithOptions(options),
		capture.WithDisplay(cfg.Display()),
		capture.WithReadyTimeout(cfg.ReadyTimeout),
		capture.WithLogger(logger.With("component", "capture")),
	)

	server := web.NewServer(cfg.Addr(),
		web.WithLogger(logger),
		web.WithDebug(*debug),
		web.WithCamera(options),
		web.WithMediator(mediator),
	)

	bridge := verify.New(server, mediator, verify.WithLogger(logger.With("component", "bridge")))
	server.OnSession = bridge.Session

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vc := cfg.VerifyConfig()
	vc.OnDisplay = func() { logger.Info("verification displayed") }
	vc.OnStateChange = func(state json.RawMessage) { logger.Debug("verification state changed", "state", string(state)) }
	vc.OnError = func(e verify.ErrorInfo) {
		logger.Warn("verification error", "type", e.Type, "payload", string(e.Payload))
	}
	if err := bridge.Start(vc); err != nil {
		return err
	}

	go func() {
		if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("bridge stopped", "error", err)
		}
	}()

	go func() {
		select {
		case c := <-bridge.Done():
			if c.Success() {
				logger.Info("verification complete", "value", c.Result.Value)
			} else {
				logger.Warn("verification failed", "type", c.Error.Type, "payload", string(c.Error.Payload))
			}
		case <-ctx.Done():
		}
	}()

	logger.Info("verifyhost starting",
		"addr", cfg.Addr(),
		"camera", cfg.Camera,
		"shell", fmt.Sprintf("http://localhost:%d/", cfg.Port),
	)

	err = server.Start(ctx)
	logger.Info("shutting down")
	return err
}
