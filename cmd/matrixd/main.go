// Package main implements matrixd, the process that boots one Matrix
// Keymaster server, instantiates the components a configuration document
// declares, and drives them through the shared lifecycle until a shutdown
// signal arrives.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ramoncreager/matrix/architect"
	"github.com/ramoncreager/matrix/component"
	"github.com/ramoncreager/matrix/config"
	"github.com/ramoncreager/matrix/keymaster/client"
	"github.com/ramoncreager/matrix/keymaster/server"
	"github.com/ramoncreager/matrix/metric"
	"github.com/ramoncreager/matrix/transport"
)

const version = "0.1.0"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			fmt.Fprintf(os.Stderr, "PANIC: %v\n%s\n", r, buf[:n])
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("matrixd failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cli := parseFlags()
	if cli.ShowVersion {
		fmt.Printf("matrixd version %s\n", version)
		return nil
	}

	logger := setupLogger(cli.LogLevel, cli.LogFormat)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	raw, doc, err := config.NewLoader().LoadFile(cli.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("configuration loaded", "path", cli.ConfigPath, "components", len(doc.Components))

	metrics := metric.NewRegistry()
	transports := transport.NewDefaultRegistry(metrics.Core)

	metricsSrv := metric.NewServer(cli.MetricsPort, "/metrics", metrics)
	if cli.MetricsPort > 0 {
		go func() {
			if err := metricsSrv.Start(); err != nil {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
		defer metricsSrv.Stop()
	}

	kmServer := server.New(server.Config{
		ConfigYAML:    raw,
		Transports:    transports,
		Logger:        logger,
		CloneInterval: doc.Keymaster.CloneInterval,
		Metrics:       metrics.Core,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return kmServer.Run(gctx) })

	stateURL, err := kmServer.StateURL(gctx)
	if err != nil {
		return fmt.Errorf("wait for Keymaster state transport: %w", err)
	}
	logger.Info("Keymaster bound", "state_url", stateURL)

	km, err := client.New(
		func() (transport.Client, error) { return transports.Dial(stateURL) },
		client.WithMetrics(metrics.Core),
	)
	if err != nil {
		return fmt.Errorf("dial Keymaster: %w", err)
	}
	defer km.Close()

	registry := component.NewRegistry()
	arch := architect.New(km, registry, transports, logger, metrics.Core)

	if err := arch.EnsureKeymaster(gctx); err != nil {
		return fmt.Errorf("keymaster not reachable: %w", err)
	}
	if err := arch.InstantiateComponents(gctx); err != nil {
		return fmt.Errorf("instantiate components: %w", err)
	}
	if err := arch.RunLifecycle(gctx, cli.Mode); err != nil {
		return fmt.Errorf("run lifecycle: %w", err)
	}
	logger.Info("matrixd running", "mode", cli.Mode)

	<-gctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cli.ShutdownTimeout)
	defer shutdownCancel()
	if err := arch.Shutdown(shutdownCtx); err != nil {
		logger.Error("error standing components down", "error", err)
	}

	cancel()
	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return fmt.Errorf("keymaster server: %w", err)
	}
	return nil
}
