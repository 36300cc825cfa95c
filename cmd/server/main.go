package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/netsync/internal/core/observability/log"
	"github.com/zeusync/netsync/internal/injector"
	"github.com/zeusync/netsync/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration")
	tick := flag.Duration("tick", 5*time.Millisecond, "host update interval")
	flag.Parse()

	rt, err := injector.InitializeRuntime(injector.ConfigPath(*configPath))
	if err != nil {
		log.New(log.LevelError).Fatal("Failed to load configuration", log.Error(err))
	}
	logger := rt.Logger
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listener, err := server.Listen(ctx, rt.Config.Transport, logger)
	if err != nil {
		logger.Fatal("Failed to listen", log.Error(err))
	}

	srv, err := server.NewServer(rt.Config, listener.Transport, logger)
	if err != nil {
		logger.Fatal("Failed to create server", log.Error(err))
	}
	if err = srv.Start(); err != nil {
		logger.Fatal("Failed to start server", log.Error(err))
	}
	logger.Info("Server listening",
		log.String("transport", rt.Config.Transport.Kind),
		log.String("addr", listener.Addr),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return listener.Serve(ctx) })
	g.Go(func() error { return srv.Run(ctx, *tick) })

	err = g.Wait()
	stats := srv.GetStats()
	if closeErr := srv.Close(); closeErr != nil {
		logger.Warn("Failed to close transport", log.Error(closeErr))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server failed", log.Error(err))
		os.Exit(1)
	}
	logger.Info("Server shut down",
		log.Uint64("turns", stats.Turns),
		log.Uint64("checksum", stats.Checksum),
	)
}
