package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/sentinelcall/internal/agentstub"
	"github.com/ent0n29/sentinelcall/internal/observability"
)

func main() {
	addr := flag.String("addr", ":5001", "listen address")
	steps := flag.Int("steps", 0, "number of scripted questions (0 = all)")
	logLevel := flag.String("log-level", "info", "debug|info|warn|error")
	flag.Parse()

	logger, err := observability.NewLogger(*logLevel, "console")
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	prompts := agentstub.DefaultPrompts()
	if *steps > 0 && *steps < len(prompts) {
		prompts = prompts[:*steps]
	}
	stub, err := agentstub.New(agentstub.Config{Prompts: prompts}, logger)
	if err != nil {
		logger.Fatal("agent stub init failed", zap.Error(err))
	}

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           stub.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("agent stub listening", zap.String("addr", *addr), zap.Int("steps", len(prompts)))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		_ = httpServer.Close()
	}
	logger.Info("shutdown complete")
}
