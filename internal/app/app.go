// Package app wires configuration into the landing source, per-dataset
// extraction caches, record services and the optional database sink shared
// by the CLI and the daemon.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/joseph-ayodele/datalake-etl/constants"
	"github.com/joseph-ayodele/datalake-etl/internal/async"
	"github.com/joseph-ayodele/datalake-etl/internal/cache"
	"github.com/joseph-ayodele/datalake-etl/internal/common"
	"github.com/joseph-ayodele/datalake-etl/internal/doctext"
	"github.com/joseph-ayodele/datalake-etl/internal/extract"
	"github.com/joseph-ayodele/datalake-etl/internal/ingest"
	"github.com/joseph-ayodele/datalake-etl/internal/metrics"
	"github.com/joseph-ayodele/datalake-etl/internal/normalize"
	"github.com/joseph-ayodele/datalake-etl/internal/records"
	"github.com/joseph-ayodele/datalake-etl/internal/repository"
	"github.com/joseph-ayodele/datalake-etl/internal/server"
)

// Options selects the optional parts of the wiring.
type Options struct {
	// Database opens the configured sink and migrates it.
	Database bool
	// Queue routes saves through the async load queue. Requires Database.
	Queue bool
	// Source replaces the configured landing backend.
	Source ingest.Source
}

// App holds every long-lived component of a process.
type App struct {
	Config   *common.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Source   ingest.Source
	FS       *ingest.FSSource
	Uploader *ingest.Uploader

	Extractors map[constants.Dataset]*extract.Orchestrator
	Caches     map[constants.Dataset]*cache.Cache
	Services   map[constants.Dataset]*records.Service

	DB     *repository.DB
	Loader *repository.RecordLoader
	Queue  *async.LoadQueue
}

// New builds the application graph from cfg.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Registry:   reg,
		Metrics:    metrics.New(reg),
		Extractors: map[constants.Dataset]*extract.Orchestrator{},
		Caches:     map[constants.Dataset]*cache.Cache{},
		Services:   map[constants.Dataset]*records.Service{},
	}

	a.Source = opts.Source
	if a.Source == nil {
		src, err := a.openSource(ctx)
		if err != nil {
			return nil, err
		}
		a.Source = src
	}
	if fs, ok := a.Source.(*ingest.FSSource); ok {
		a.FS = fs
	}

	if opts.Database {
		db, err := server.ConnectDB(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.Loader = repository.NewRecordLoader(db.Driver, a.Metrics, logger)
		if opts.Queue {
			a.Queue = async.NewLoadQueue(a.Loader, logger, async.FromConfig(cfg.Load)...)
		}
	}

	pdf := doctext.NewPDF(doctext.Config{Pdftotext: cfg.Document.Pdftotext, Timeout: cfg.Document.Timeout}, logger)
	schemaFiles := map[constants.Dataset]string{
		constants.DatasetReturns:   cfg.Schema.ReturnsFile,
		constants.DatasetPurchases: cfg.Schema.PurchasesFile,
	}
	for _, d := range []constants.Dataset{constants.DatasetReturns, constants.DatasetPurchases} {
		schema, err := normalize.Resolve(d, schemaFiles[d])
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		dl := logger.With("dataset", d)
		orch := extract.NewOrchestrator(a.Source, schema, pdf, a.Metrics, dl)
		a.Extractors[d] = orch
		c := cache.New(orch, cfg.Cache.TTL, cache.WithMetrics(a.Metrics), cache.WithLogger(dl))
		a.Caches[d] = c

		var svcOpts []records.Option
		if a.Queue != nil {
			svcOpts = append(svcOpts, records.WithQueue(a.Queue))
		} else if a.Loader != nil {
			svcOpts = append(svcOpts, records.WithLoader(a.Loader))
		}
		a.Services[d] = records.NewService(d, c, logger, svcOpts...)
	}

	a.Uploader = ingest.NewUploader(a.Source, logger, a.InvalidateAll)
	return a, nil
}

func (a *App) openSource(ctx context.Context) (ingest.Source, error) {
	l := a.Config.Landing
	prefixes := make(map[constants.Category]string, len(constants.Categories))
	for c, dir := range l.Dirs() {
		prefixes[c] = path.Join(l.Root, dir)
	}

	switch l.Backend {
	case "azure":
		src, err := ingest.NewAzureSource(l.AzureConnectionString, l.AzureContainer, prefixes, a.Logger)
		if err != nil {
			return nil, err
		}
		if err := src.EnsureContainer(ctx); err != nil {
			return nil, err
		}
		return src, nil
	case "s3":
		src, err := ingest.NewS3Source(ctx, l.S3Bucket, l.S3Region, prefixes, a.Logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "fs", "":
		src := ingest.NewFSSource(l.AbsDirs(), a.Logger)
		if err := src.EnsureDirs(); err != nil {
			return nil, fmt.Errorf("%w: landing directories: %v", common.ErrUnavailable, err)
		}
		return src, nil
	default:
		return nil, common.NewAppError("CONFIG_ERROR", "unknown landing backend "+l.Backend, common.ErrInvalidInput)
	}
}

// Service returns the record service of a dataset.
func (a *App) Service(d constants.Dataset) (*records.Service, error) {
	svc, ok := a.Services[d]
	if !ok {
		return nil, fmt.Errorf("%w: unknown dataset %q", common.ErrInvalidInput, d)
	}
	return svc, nil
}

// InvalidateAll drops every cached extraction.
func (a *App) InvalidateAll() {
	for _, svc := range a.Services {
		svc.Invalidate()
	}
}

// Ping checks the database when one is configured.
func (a *App) Ping(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	return server.PingDB(ctx, a.DB, a.Logger, a.Config.Database.DialTimeout)
}

// Close drains the load queue and closes the database.
func (a *App) Close(ctx context.Context) {
	if a.Queue != nil {
		a.Queue.Shutdown(ctx)
	}
	if a.DB != nil {
		server.CloseDB(a.DB, a.Logger)
	}
}
