// Package extract runs the parsers and the normalizer over every landing
// category and assembles one ExtractionResult.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/datalake-etl/constants"
	"github.com/joseph-ayodele/datalake-etl/internal/common"
	"github.com/joseph-ayodele/datalake-etl/internal/entity"
	"github.com/joseph-ayodele/datalake-etl/internal/ingest"
	"github.com/joseph-ayodele/datalake-etl/internal/metrics"
	"github.com/joseph-ayodele/datalake-etl/internal/normalize"
	"github.com/joseph-ayodele/datalake-etl/internal/parse"
)

// ErrLandingUnavailable is returned when no requested category could be listed.
var ErrLandingUnavailable = fmt.Errorf("landing area unavailable: %w", common.ErrUnavailable)

type Orchestrator struct {
	source     ingest.Source
	normalizer *normalize.Normalizer
	parsers    parse.Registry
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewOrchestrator wires a source and a schema. extractor may be nil, in which
// case document files are reported as unsupported.
func NewOrchestrator(
	source ingest.Source,
	schema *normalize.Schema,
	extractor parse.TextExtractor,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		source:     source,
		normalizer: normalize.New(schema),
		parsers:    schema.Parsers(extractor),
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

func (o *Orchestrator) Dataset() constants.Dataset { return o.normalizer.Schema().Dataset }

// Extract scans categories in the given order (all categories when none are
// given). File-level and row-level failures never abort the run; they are
// recorded in the result. The error is non-nil only on cancellation or when
// every category failed to enumerate, and the partial result is returned
// alongside it.
func (o *Orchestrator) Extract(ctx context.Context, categories ...constants.Category) (*entity.ExtractionResult, error) {
	if len(categories) == 0 {
		categories = constants.Categories
	}
	start := o.now()
	dataset := o.Dataset()
	res := &entity.ExtractionResult{
		RunID:      uuid.NewString(),
		Dataset:    dataset,
		Records:    []entity.Record{},
		Files:      []entity.FileReport{},
		Categories: make([]entity.CategoryReport, 0, len(categories)),
	}
	ctx = common.WithRunID(ctx, res.RunID)
	log := common.LoggerFromContext(ctx, o.logger).With("run_id", res.RunID, "dataset", dataset)

	unavailable := 0
	for _, c := range categories {
		if err := ctx.Err(); err != nil {
			return o.finish(res, start), err
		}
		cr := entity.CategoryReport{Category: c, Location: o.source.Location(c)}
		refs, err := o.source.List(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				return o.finish(res, start), ctx.Err()
			}
			unavailable++
			cr.Err = err.Error()
			res.Categories = append(res.Categories, cr)
			log.Warn("extract.category.unavailable", "category", c, "location", cr.Location, "error", err)
			continue
		}
		cr.Files = len(refs)
		res.Categories = append(res.Categories, cr)

		for _, ref := range refs {
			recs, rep := o.extractFile(ctx, log, c, ref)
			if err := ctx.Err(); err != nil {
				return o.finish(res, start), err
			}
			res.Records = append(res.Records, recs...)
			res.Files = append(res.Files, rep)
		}
	}

	o.finish(res, start)
	o.metrics.ExtractDuration(string(dataset), res.Duration)
	log.Info("extract.run.done",
		"files", len(res.Files), "records", res.Total(), "rejected", res.Rejected(),
		"failed_files", res.Failed(), "duration", res.Duration)

	if unavailable == len(categories) {
		return res, ErrLandingUnavailable
	}
	return res, nil
}

func (o *Orchestrator) finish(res *entity.ExtractionResult, start time.Time) *entity.ExtractionResult {
	res.ComputedAt = o.now().UTC()
	res.Duration = res.ComputedAt.Sub(start.UTC())
	return res
}

// extractFile parses and normalizes one file. A file-level failure, including
// one raised midway through the file, yields no records.
func (o *Orchestrator) extractFile(ctx context.Context, log *slog.Logger, c constants.Category, ref ingest.FileRef) (recs []entity.Record, rep entity.FileReport) {
	dataset := string(o.Dataset())
	rep = entity.FileReport{Name: ref.Name, Category: c}
	log = log.With("file", ref.Name, "category", c)

	fail := func(err error) {
		recs = nil
		rep.Accepted = 0
		rep.Rejected = 0
		rep.RejectReasons = nil
		rep.Err = err.Error()
		outcome := "failed"
		if errors.Is(err, parse.ErrSchemaMismatch) {
			rep.SchemaMismatch = true
			outcome = "schema_mismatch"
		}
		o.metrics.FileProcessed(dataset, string(c), outcome)
		log.Warn("extract.file."+outcome, "error", err)
	}
	defer func() {
		if r := recover(); r != nil {
			fail(fmt.Errorf("%w: panic while parsing: %v", common.ErrInternal, r))
		}
	}()

	p, format, err := o.parsers.For(ref.Name)
	rep.Format = format
	if err != nil {
		fail(err)
		return
	}
	rc, err := o.source.Open(ctx, ref)
	if err != nil {
		fail(err)
		return
	}
	defer func() { _ = rc.Close() }()

	lines, err := p.Parse(ctx, ref.Name, rc)
	if err != nil {
		fail(err)
		return
	}

	binding := o.normalizer.Schema().Binding(c)
	for line := range lines.All() {
		rec, reason := o.normalizer.Normalize(line, binding, ref.Name)
		if reason != "" {
			if rep.RejectReasons == nil {
				rep.RejectReasons = map[constants.RejectReason]int{}
			}
			rep.Rejected++
			rep.RejectReasons[reason]++
			log.Debug("extract.line.rejected", "line", line.Number, "reason", reason)
			continue
		}
		recs = append(recs, rec)
	}
	if err := lines.Err(); err != nil {
		fail(err)
		return
	}

	rep.Accepted = len(recs)
	o.metrics.FileProcessed(dataset, string(c), "ok")
	o.metrics.RecordsAccepted(dataset, string(c), rep.Accepted)
	for reason, n := range rep.RejectReasons {
		o.metrics.RecordsRejected(dataset, string(reason), n)
	}
	log.Info("extract.file.ok", "format", format, "accepted", rep.Accepted, "rejected", rep.Rejected)
	return recs, rep
}
