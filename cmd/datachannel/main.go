// Package main runs datachannel: it loads the channel configuration, builds
// every pipeline, serves webhooks, metrics and the status API on one HTTP
// listener and initializes the channels once that listener is up.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/componentregistry"
	"github.com/c360/datachannel/config"
	"github.com/c360/datachannel/errors"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "datachannel"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	cliCfg, err := parseFlags(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if cliCfg.ShowHelp {
		fs.Usage()
		return nil
	}
	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	logger := setupLogger(stdout, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("Starting datachannel", "build_time", BuildTime, "config", cliCfg.ConfigPaths)

	cfg, err := loadConfig(cliCfg.ConfigPaths)
	if err != nil {
		return err
	}

	registry := component.NewRegistry()
	if err := componentregistry.Register(registry); err != nil {
		return err
	}
	logger.Debug("Component kinds registered",
		"endpoints", registry.Kinds(component.RoleEndpoint),
		"middleware", registry.Kinds(component.RoleMiddleware))

	builders, err := config.BuildersFrom(cfg, registry)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "channels", len(builders))
		return nil
	}

	a, err := newApp(cfg, builders, logger)
	if err != nil {
		return err
	}

	ln, err := a.listen(ctx)
	if err != nil {
		return err
	}

	timeout := cfg.Platform.ShutdownTimeout.Std()
	if cliCfg.ShutdownTimeout > 0 {
		timeout = cliCfg.ShutdownTimeout
	}
	if err := a.serve(ctx, ln, timeout); err != nil {
		return err
	}

	logger.Info("datachannel shutdown complete")
	return nil
}

func loadConfig(paths []string) (*config.Config, error) {
	loader := config.NewLoader()
	for _, p := range paths {
		loader.AddLayer(p)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
