// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

// openclaw-github-app bridges GitHub and a local agent gateway. It
// receives issue and comment webhooks, asks the agent gateway to
// produce a response over its persistent WebSocket protocol, and
// posts the result back as an issue comment. Workspace snapshots and
// the delivery journal persist between runs under the configured
// cache directory.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/offloadmywork/openclaw-github-app/lib/config"
	"github.com/offloadmywork/openclaw-github-app/lib/forge"
	"github.com/offloadmywork/openclaw-github-app/lib/secret"
	"github.com/offloadmywork/openclaw-github-app/lib/workcache"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var listenOverride string
	var logLevel string
	var showVersion bool

	flagSet := pflag.NewFlagSet("openclaw-github-app", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the config file (default: $OPENCLAW_CONFIG)")
	flagSet.StringVar(&listenOverride, "listen", "", "override the webhook listen address")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("openclaw-github-app %s\n", version)
		return nil
	}

	logger, err := newLogger(logLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listenOverride != "" {
		cfg.Server.Listen = listenOverride
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	// Secrets are read once at startup into protected buffers and
	// released on shutdown.
	gatewayToken, err := loadSecret(cfg.Gateway.TokenPath, cfg.Gateway.TokenEnv)
	if err != nil {
		return fmt.Errorf("loading gateway token: %w", err)
	}
	if gatewayToken != nil {
		defer gatewayToken.Close()
	}

	webhookSecret, err := loadSecret(cfg.GitHub.WebhookSecretPath, cfg.GitHub.WebhookSecretEnv)
	if err != nil {
		return fmt.Errorf("loading webhook secret: %w", err)
	}
	defer webhookSecret.Close()

	githubToken, err := loadSecret(cfg.GitHub.TokenPath, cfg.GitHub.TokenEnv)
	if err != nil {
		return fmt.Errorf("loading github token: %w", err)
	}
	if githubToken != nil {
		defer githubToken.Close()
	}

	cache, err := workcache.New(workcache.Options{
		Dir:         cfg.Workspace.CacheDir,
		Compression: workcache.Compression(cfg.Workspace.Compression),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	journal, err := forge.OpenJournal(filepath.Join(cfg.Workspace.CacheDir, "deliveries.cbor"), time.Hour)
	if err != nil {
		return err
	}

	var githubClient *forge.Client
	if githubToken != nil {
		githubClient, err = forge.NewClient(forge.ClientConfig{
			BaseURL: cfg.GitHub.APIBaseURL,
			Token:   githubToken,
			Logger:  logger,
		})
		if err != nil {
			return err
		}
	} else {
		logger.Warn("no github token configured, results will be logged instead of posted")
	}

	application := &app{
		config:       cfg,
		logger:       logger,
		cache:        cache,
		github:       githubClient,
		gatewayToken: gatewayToken,
	}

	handler, err := forge.NewHandler(forge.HandlerConfig{
		Secret:       webhookSecret,
		Journal:      journal,
		Process:      application.handleEvent,
		Repositories: cfg.GitHub.Repositories,
		BaseContext:  ctx,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.WebhookPath, handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})

	server := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.ListenAndServe()
	}()

	// Periodic snapshot eviction.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			if _, err := cache.Evict(cfg.Workspace.MaxAge.Std()); err != nil {
				logger.Warn("snapshot eviction failed", "error", err)
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	logger.Info("openclaw-github-app running",
		"version", version,
		"listen", cfg.Server.Listen,
		"webhook_path", cfg.Server.WebhookPath,
		"gateway", cfg.Gateway.URL,
	)

	select {
	case err := <-serveDone:
		return fmt.Errorf("webhook server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down webhook server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*slog.Logger, error) {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel}))
	slog.SetDefault(logger)
	return logger, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// loadSecret reads from the configured path or environment variable.
// Both empty returns (nil, nil): the secret is optional and absent.
func loadSecret(path, envName string) (*secret.Buffer, error) {
	switch {
	case path != "":
		return secret.ReadFromPath(path)
	case envName != "":
		return secret.FromEnvironment(envName)
	default:
		return nil, nil
	}
}
