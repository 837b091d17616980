package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/joseph-ayodele/datalake-etl/internal/app"
	"github.com/joseph-ayodele/datalake-etl/internal/common"
	"github.com/joseph-ayodele/datalake-etl/internal/ingest"
	"github.com/joseph-ayodele/datalake-etl/internal/server"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	logger := common.NewLogger(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("datalaked stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("datalaked stopped")
}

func run(ctx context.Context, cfg *common.Config, logger *slog.Logger) error {
	withDB := cfg.Database.DSN != "" || cfg.Database.Driver == "sqlite"
	a, err := app.New(ctx, cfg, logger, app.Options{Database: withDB, Queue: withDB})
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		a.Close(cctx)
	}()
	if !withDB {
		logger.Warn("no database configured; save requests will be rejected")
	}

	httpSrv := &http.Server{
		Addr: cfg.Server.HTTPAddr,
		Handler: server.NewHTTPHandler(server.HTTPConfig{
			Datasets:       a.Services,
			Uploader:       a.Uploader,
			Metrics:        a.Metrics,
			Gatherer:       a.Registry,
			Ping:           a.Ping,
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
			Logger:         logger,
		}).Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	grpcSrv := grpc.NewServer()
	hs := server.Register(grpcSrv, server.NewExtractionServer(a.Services, logger))
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Landing.Watch && a.FS != nil {
		if err := watchLanding(gctx, g, a, logger); err != nil {
			_ = lis.Close()
			return err
		}
	}
	g.Go(func() error {
		logger.Info("http serving", "addr", cfg.Server.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("grpc serving", "addr", cfg.Server.GRPCAddr)
		if err := grpcSrv.Serve(lis); err != nil {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		hs.Shutdown()

		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(sctx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
		grpcSrv.GracefulStop()
		return nil
	})

	return g.Wait()
}

// watchLanding invalidates every cached extraction when landing files change.
func watchLanding(ctx context.Context, g *errgroup.Group, a *app.App, logger *slog.Logger) error {
	batches, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Dirs:     a.FS.Dirs(),
		Debounce: a.Config.Landing.WatchDebounce,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("watch landing: %w", err)
	}
	logger.Info("watching landing directories", "dirs", a.FS.Dirs())

	g.Go(func() error {
		for {
			select {
			case batch, ok := <-batches:
				if !ok {
					return nil
				}
				logger.Info("landing changed", "files", len(batch))
				a.InvalidateAll()
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				logger.Warn("landing watcher", "error", err)
			}
		}
	})
	return nil
}
