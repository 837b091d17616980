package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/datalake-etl/constants"
	"github.com/joseph-ayodele/datalake-etl/internal/common"
	"github.com/joseph-ayodele/datalake-etl/internal/entity"
	"github.com/joseph-ayodele/datalake-etl/internal/metrics"
)

const defaultChunk = 500

// LoadResult describes one committed append.
type LoadResult struct {
	BatchID    string    `json:"batch_id"`
	Table      string    `json:"table"`
	Rows       int       `json:"rows"`
	InsertedAt time.Time `json:"inserted_at"`
}

// RecordLoader appends normalized records to the sink tables.
type RecordLoader struct {
	drv     *entsql.Driver
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
	chunk   int
}

func NewRecordLoader(drv *entsql.Driver, m *metrics.Metrics, logger *slog.Logger) *RecordLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordLoader{drv: drv, metrics: m, logger: logger, now: time.Now, chunk: defaultChunk}
}

// Load appends every record in one transaction. Each row carries the same
// inserted_at timestamp and batch id. Records of another dataset are refused
// before anything is written.
func (l *RecordLoader) Load(ctx context.Context, dataset constants.Dataset, records []entity.Record) (LoadResult, error) {
	table, err := TableFor(dataset)
	if err != nil {
		return LoadResult{}, err
	}
	for i, r := range records {
		if r.Dataset() != dataset || rowValues(r, "", time.Time{}) == nil {
			return LoadResult{}, fmt.Errorf("%w: record %d (%T) does not belong to %s", common.ErrInvalidInput, i, r, dataset)
		}
	}

	res := LoadResult{
		BatchID:    uuid.NewString(),
		Table:      table.Name,
		InsertedAt: l.now().UTC(),
	}
	if len(records) == 0 {
		return res, nil
	}

	cols := make([]string, 0, len(table.Columns)-1)
	for _, c := range table.Columns[1:] {
		cols = append(cols, c.Name)
	}

	tx, err := l.drv.Tx(ctx)
	if err != nil {
		return LoadResult{}, fmt.Errorf("%w: begin: %v", common.ErrDatabase, err)
	}
	for start := 0; start < len(records); start += l.chunk {
		end := min(start+l.chunk, len(records))
		insert := entsql.Dialect(l.drv.Dialect()).Insert(table.Name).Columns(cols...)
		for _, r := range records[start:end] {
			insert.Values(rowValues(r, res.BatchID, res.InsertedAt)...)
		}
		query, args := insert.Query()
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				l.logger.Error("load.rollback.failed", "table", table.Name, "error", rerr)
			}
			l.logger.Error("load.failed", "table", table.Name, "batch_id", res.BatchID, "error", err)
			return LoadResult{}, fmt.Errorf("%w: insert into %s: %v", common.ErrDatabase, table.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return LoadResult{}, fmt.Errorf("%w: commit: %v", common.ErrDatabase, err)
	}

	res.Rows = len(records)
	l.metrics.RowsLoaded(table.Name, res.Rows)
	l.logger.Info("load.ok", "table", table.Name, "batch_id", res.BatchID, "rows", res.Rows)
	return res, nil
}

// rowValues follows the column order of the sink table, id excluded. It
// returns nil for record types without a table.
func rowValues(r entity.Record, batchID string, insertedAt time.Time) []any {
	switch rec := r.(type) {
	case entity.ReturnRecord:
		return []any{rec.ReturnDate.Time, rec.TerritoryKey, rec.ProductKey, rec.ReturnQuantity, rec.SourceFile, batchID, insertedAt}
	case entity.PurchaseRecord:
		var date any
		if rec.PurchaseDate != nil {
			date = rec.PurchaseDate.Time
		}
		return []any{rec.PurchaseID, date, rec.TotalAmount, rec.SourceFile, batchID, insertedAt}
	default:
		return nil
	}
}

// Count returns the row count of a dataset's table, limited to one batch
// when batchID is set.
func (l *RecordLoader) Count(ctx context.Context, dataset constants.Dataset, batchID string) (int, error) {
	table, err := TableFor(dataset)
	if err != nil {
		return 0, err
	}
	sel := entsql.Dialect(l.drv.Dialect()).Select(entsql.Count("*")).From(entsql.Table(table.Name))
	if batchID != "" {
		sel.Where(entsql.EQ("batch_id", batchID))
	}
	query, args := sel.Query()

	var rows entsql.Rows
	if err := l.drv.Query(ctx, query, args, &rows); err != nil {
		return 0, fmt.Errorf("%w: count %s: %v", common.ErrDatabase, table.Name, err)
	}
	defer func() { _ = rows.Close() }()

	n := 0
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("%w: count %s: %v", common.ErrDatabase, table.Name, err)
		}
	}
	return n, rows.Err()
}
