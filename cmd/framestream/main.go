// Package main implements the entry point for the framestream service.
// Framestream accepts image uploads over WebSocket, hands each one to a
// generation worker, and streams the produced frames back as MJPEG.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/framestream/config"
	"github.com/c360/framestream/frame"
	"github.com/c360/framestream/generate/natsgen"
	"github.com/c360/framestream/ingress"
	"github.com/c360/framestream/metric"
	"github.com/c360/framestream/natsclient"
	"github.com/c360/framestream/server"
	"github.com/c360/framestream/session"
	"github.com/c360/framestream/stream"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "framestream"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Command-line log settings win over the environment.
	cfg.LogLevel = cliCfg.LogLevel
	cfg.LogFormat = cliCfg.LogFormat

	logger := setupLogger(cfg)
	slog.SetDefault(logger)

	slog.Info("Starting framestream (near-real-time image generation streaming)",
		"version", Version,
		"build_time", BuildTime)

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	signalCtx, signalCancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	natsClient, err := connectToNATS(signalCtx, cfg)
	if err != nil {
		return err
	}
	defer natsClient.Close(context.Background())

	srv, err := buildServer(cfg, natsClient, logger)
	if err != nil {
		return err
	}

	slog.Info("framestream started",
		"addr", cfg.Addr(),
		"max_sessions", cfg.MaxSessions,
		"session_timeout", cfg.SessionTimeout(),
		"safety_checker", cfg.SafetyChecker)

	if err := srv.Run(signalCtx); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	slog.Info("framestream shutdown complete")
	return nil
}

// connectToNATS establishes the NATS connection and waits for it to be ready
func connectToNATS(ctx context.Context, cfg *config.Config) (*natsclient.Client, error) {
	natsClient, err := natsclient.NewClient(cfg.NATSURL, natsclient.WithName(appName))
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	slog.Info("Connecting to NATS", "url", cfg.NATSURL)
	if err := natsClient.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := natsClient.WaitForConnection(connCtx); err != nil {
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}

	return natsClient, nil
}

// buildServer wires the registry, generation client, and HTTP handlers.
func buildServer(cfg *config.Config, natsClient *natsclient.Client, logger *slog.Logger) (*server.Server, error) {
	metricsRegistry := metric.NewMetricsRegistry()
	codec := frame.NewCodec(cfg.JPEGQuality)
	registry := session.NewRegistry(cfg.MaxSessions, logger, metricsRegistry)

	generator, err := natsgen.New(natsClient, codec, natsgen.Config{
		Subject:     cfg.GenerateSubject,
		Timeout:     cfg.GenerateTimeout,
		SafetyCheck: cfg.SafetyChecker,
	})
	if err != nil {
		return nil, fmt.Errorf("create generator client: %w", err)
	}

	ingressHandler := ingress.NewHandler(registry, codec, cfg.SessionTimeout(), logger, metricsRegistry)
	responder := stream.NewResponder(registry, generator, codec, cfg.FrameRate, logger, metricsRegistry)

	return server.New(cfg.Addr(), registry, ingressHandler, responder,
		natsClient, metricsRegistry, logger)
}
