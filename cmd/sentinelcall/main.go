package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/sentinelcall/internal/audio"
	"github.com/ent0n29/sentinelcall/internal/call"
	"github.com/ent0n29/sentinelcall/internal/config"
	"github.com/ent0n29/sentinelcall/internal/httpapi"
	"github.com/ent0n29/sentinelcall/internal/observability"
	"github.com/ent0n29/sentinelcall/internal/presenter"
	"github.com/ent0n29/sentinelcall/internal/remote"
)

var errQuit = errors.New("quit requested")

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (overrides SENTINEL_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(cfg.MetricsNamespace, reg)

	var device audio.Device
	switch cfg.AudioBackend {
	case config.AudioBackendMock:
		device = audio.NewMockDevice()
		logger.Info("audio backend: mock")
	default:
		device = audio.NewCommandDevice(audio.CommandConfig{
			RecordCommand: cfg.RecordArgs(),
			PlayCommand:   cfg.PlayArgs(),
			SampleRate:    cfg.SampleRate,
			HTTPClient:    &http.Client{Timeout: cfg.RequestTimeout},
		}, logger)
		logger.Info("audio backend: command", zap.String("record", cfg.RecordCommand), zap.String("play", cfg.PlayCommand))
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	hub := presenter.NewHub(64, logger)
	ui := presenter.Fanout{presenter.NewTerminal(os.Stdout), hub}
	ctrl := call.New(func(serverURL string) call.Remote {
		return remote.NewClient(serverURL,
			remote.WithHTTPClient(httpClient),
			remote.WithLogger(logger),
			remote.WithMetrics(metrics),
		)
	}, device, ui, call.Options{
		PollInterval: cfg.PollInterval,
		TickInterval: cfg.TickInterval,
		Logger:       logger,
		Metrics:      metrics,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ctrl.Run(gctx) })

	if addr := strings.TrimSpace(cfg.ControlAddr); addr != "" {
		api := httpapi.New(cfg, ctrl, hub, metrics, logger)
		httpServer := &http.Server{Addr: addr, Handler: api.Router()}
		g.Go(func() error {
			logger.Info("control api listening", zap.String("addr", addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("control api: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("graceful shutdown failed", zap.Error(err))
				_ = httpServer.Close()
			}
			return nil
		})
	}

	g.Go(func() error { return readCommands(gctx, os.Stdin, os.Stdout, ctrl, cfg) })

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) {
		logger.Error("exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

const usage = `commands:
  Enter          start a call, or start/stop recording during one
  c <dial>       start a call to a dial string such as "+91 9876543210"
  r              replay the last agent message
  q              hang up
  exit           quit`

// readCommands maps terminal lines onto controller actions. End of input
// stops reading but leaves the controller (and control API) running.
func readCommands(ctx context.Context, in io.Reader, out io.Writer, ctrl *call.Controller, cfg config.Config) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- strings.TrimSpace(sc.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(out, usage)
	setup := call.Setup{ServerURL: cfg.ServerURL, Phone: cfg.Phone, AccountID: cfg.AccountID, Country: cfg.Country}
	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = l
		}

		var err error
		switch {
		case line == "":
			if ctrl.State().InCall() {
				err = ctrl.ToggleRecording(ctx)
			} else {
				err = ctrl.StartCall(ctx, setup)
			}
		case strings.HasPrefix(line, "c "):
			dialed := setup
			dialed.Phone, dialed.Country = call.ParseDialString(strings.TrimPrefix(line, "c "))
			err = ctrl.StartCall(ctx, dialed)
		case line == "r":
			err = ctrl.ReplayAgentMessage(ctx)
		case line == "q":
			err = ctrl.EndSession(ctx)
		case line == "exit":
			_ = ctrl.EndSession(ctx)
			return errQuit
		default:
			fmt.Fprintln(out, usage)
		}
		if err != nil {
			fmt.Fprintf(out, "! %v\n", err)
		}
	}
}
