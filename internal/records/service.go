package records

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/datalake-etl/constants"
	"github.com/joseph-ayodele/datalake-etl/internal/aggregate"
	"github.com/joseph-ayodele/datalake-etl/internal/async"
	"github.com/joseph-ayodele/datalake-etl/internal/common"
	"github.com/joseph-ayodele/datalake-etl/internal/entity"
	"github.com/joseph-ayodele/datalake-etl/internal/export"
	"github.com/joseph-ayodele/datalake-etl/internal/repository"
)

// Results is the cached extraction a service reads from.
type Results interface {
	GetOrExtract(ctx context.Context, forceRefresh bool) (*entity.ExtractionResult, error)
	Invalidate()
}

// Loader appends records synchronously.
type Loader interface {
	Load(ctx context.Context, dataset constants.Dataset, records []entity.Record) (repository.LoadResult, error)
}

// SaveOutcome describes a load that was either committed or queued.
type SaveOutcome struct {
	Rows    int    `json:"rows"`
	BatchID string `json:"batch_id,omitempty"`
	JobID   string `json:"job_id,omitempty"`
	Queued  bool   `json:"queued"`
}

// Service handles record-set business logic for one dataset.
type Service struct {
	dataset constants.Dataset
	results Results
	loader  Loader
	queue   async.Queue
	export  *export.Service
	logger  *slog.Logger
}

type Option func(*Service)

// WithLoader enables synchronous saves.
func WithLoader(l Loader) Option { return func(s *Service) { s.loader = l } }

// WithQueue routes saves through the async load queue. It takes precedence
// over WithLoader.
func WithQueue(q async.Queue) Option { return func(s *Service) { s.queue = q } }

// NewService creates a new record service.
func NewService(dataset constants.Dataset, results Results, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		dataset: dataset,
		results: results,
		export:  export.NewService(logger),
		logger:  logger.With("dataset", dataset),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Dataset() constants.Dataset { return s.dataset }

// CanSave reports whether a database sink is configured.
func (s *Service) CanSave() bool { return s.loader != nil || s.queue != nil }

// Invalidate drops the cached extraction.
func (s *Service) Invalidate() {
	s.logger.Info("records.invalidate")
	s.results.Invalidate()
}

// List returns the cached extraction, recomputing when refresh is set.
func (s *Service) List(ctx context.Context, refresh bool) (*entity.ExtractionResult, error) {
	res, err := s.results.GetOrExtract(ctx, refresh)
	if err != nil {
		s.logger.Error("failed to extract records", "refresh", refresh, "error", err)
		return nil, err
	}
	return res, nil
}

// Get returns the first record whose identifier equals id.
func (s *Service) Get(ctx context.Context, id string) (entity.Record, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", common.ErrInvalidInput)
	}
	res, err := s.List(ctx, false)
	if err != nil {
		return nil, err
	}
	rec, ok := aggregate.FindByKey(res.Records, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", common.ErrNotFound, s.dataset, id)
	}
	return rec, nil
}

// Range returns records whose measure lies in [lo, hi].
func (s *Service) Range(ctx context.Context, lo, hi float64) ([]entity.Record, error) {
	v := common.NewValidator().
		Field("min", lo, common.Finite).
		Field("max", hi, common.Finite)
	if !v.HasErrors() {
		v.Check(lo <= hi, "min", lo, "must not exceed max")
	}
	if v.HasErrors() {
		return nil, fmt.Errorf("%w: %s", common.ErrInvalidInput, v.ErrorMessage())
	}

	res, err := s.List(ctx, false)
	if err != nil {
		return nil, err
	}
	return aggregate.InRange(res.Records, lo, hi), nil
}

// Sorted returns the records ordered by identifier.
func (s *Service) Sorted(ctx context.Context, refresh bool) ([]entity.Record, error) {
	res, err := s.List(ctx, refresh)
	if err != nil {
		return nil, err
	}
	return aggregate.SortByKey(res.Records), nil
}

// Statistics summarizes the cached extraction.
func (s *Service) Statistics(ctx context.Context, refresh bool) (entity.AggregateStats, error) {
	res, err := s.List(ctx, refresh)
	if err != nil {
		return entity.AggregateStats{}, err
	}
	return aggregate.Summarize(res.Records), nil
}

// Save appends records to the sink table, through the queue when one is set.
func (s *Service) Save(ctx context.Context, res *entity.ExtractionResult) (SaveOutcome, error) {
	if !s.CanSave() {
		return SaveOutcome{}, fmt.Errorf("%w: no database configured", common.ErrUnavailable)
	}
	if res == nil {
		return SaveOutcome{}, fmt.Errorf("%w: nothing to save", common.ErrInvalidInput)
	}

	if s.queue != nil {
		id, err := s.queue.Enqueue(ctx, async.Job{Dataset: s.dataset, Records: res.Records, RunID: res.RunID})
		if err != nil {
			s.logger.Error("failed to queue load", "run_id", res.RunID, "error", err)
			return SaveOutcome{}, fmt.Errorf("%w: %w", common.ErrUnavailable, err)
		}
		return SaveOutcome{Rows: len(res.Records), JobID: id.String(), Queued: true}, nil
	}

	lr, err := s.loader.Load(ctx, s.dataset, res.Records)
	if err != nil {
		s.logger.Error("failed to load records", "run_id", res.RunID, "error", err)
		return SaveOutcome{}, err
	}
	return SaveOutcome{Rows: lr.Rows, BatchID: lr.BatchID}, nil
}

// WriteSummary writes the summary CSV of the cached extraction.
func (s *Service) WriteSummary(ctx context.Context, w io.Writer) error {
	res, err := s.List(ctx, false)
	if err != nil {
		return err
	}
	return s.export.WriteSummaryCSV(w, s.dataset, res.Records)
}

// SaveSummary writes the summary CSV into dir and returns its path.
func (s *Service) SaveSummary(ctx context.Context, dir string) (string, error) {
	path := filepath.Join(dir, export.SummaryFileName(s.dataset))
	tmp, err := os.CreateTemp(dir, ".summary-*")
	if err != nil {
		return "", fmt.Errorf("create summary: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := s.WriteSummary(ctx, tmp); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close summary: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("save summary: %w", err)
	}
	s.logger.Info("records.summary.saved", "path", path)
	return path, nil
}

// Workbook renders the cached extraction as XLSX bytes.
func (s *Service) Workbook(ctx context.Context) ([]byte, error) {
	res, err := s.List(ctx, false)
	if err != nil {
		return nil, err
	}
	return s.export.WorkbookXLSX(s.dataset, res.Records)
}

// ParseBound parses a required numeric range bound.
func ParseBound(name, v string) (float64, error) {
	if strings.TrimSpace(v) == "" {
		return 0, fmt.Errorf("%w: %s is required", common.ErrInvalidInput, name)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) {
		return 0, fmt.Errorf("%w: %s must be a number", common.ErrInvalidInput, name)
	}
	return f, nil
}
