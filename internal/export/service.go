package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/datalake-etl/constants"
	"github.com/joseph-ayodele/datalake-etl/internal/aggregate"
	"github.com/joseph-ayodele/datalake-etl/internal/common"
	"github.com/joseph-ayodele/datalake-etl/internal/entity"
)

const (
	recordsSheet = "Records"
	statsSheet   = "Statistics"
)

// Service renders extracted record sets as workbooks and summary files.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// SummaryFileName is the conventional file name of a dataset's summary CSV.
func SummaryFileName(d constants.Dataset) string {
	switch d {
	case constants.DatasetReturns:
		return "return_summary.csv"
	default:
		return "purchase_summary.csv"
	}
}

type column struct {
	header string
	width  float64
	value  func(entity.Record) any
}

func columnsFor(d constants.Dataset) ([]column, error) {
	source := column{"Source_File", 28, func(r entity.Record) any { return r.Source() }}
	switch d {
	case constants.DatasetReturns:
		return []column{
			{"ReturnDate", 14, func(r entity.Record) any { return r.(entity.ReturnRecord).ReturnDate.String() }},
			{"TerritoryKey", 14, func(r entity.Record) any { return r.(entity.ReturnRecord).TerritoryKey }},
			{"ProductKey", 14, func(r entity.Record) any { return r.(entity.ReturnRecord).ProductKey }},
			{"ReturnQuantity", 16, func(r entity.Record) any { return r.(entity.ReturnRecord).ReturnQuantity }},
			source,
		}, nil
	case constants.DatasetPurchases:
		return []column{
			{"Purchase_ID", 16, func(r entity.Record) any { return r.(entity.PurchaseRecord).PurchaseID }},
			{"Purchase_Date", 14, func(r entity.Record) any {
				if d := r.RecordDate(); d != nil {
					return d.String()
				}
				return ""
			}},
			{"Total_Amount", 14, func(r entity.Record) any { return r.(entity.PurchaseRecord).TotalAmount }},
			source,
		}, nil
	default:
		return nil, fmt.Errorf("%w: no export layout for dataset %q", common.ErrInvalidInput, d)
	}
}

func checkRecords(d constants.Dataset, records []entity.Record) error {
	for i, r := range records {
		if r.Dataset() != d {
			return fmt.Errorf("%w: record %d belongs to %s, not %s", common.ErrInvalidInput, i, r.Dataset(), d)
		}
	}
	return nil
}

// WriteSummaryCSV writes records sorted by identifier as CSV with a header row.
func (s *Service) WriteSummaryCSV(w io.Writer, d constants.Dataset, records []entity.Record) error {
	cols, err := columnsFor(d)
	if err != nil {
		return err
	}
	if err := checkRecords(d, records); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.header
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("csv write: %w", err)
	}
	row := make([]string, len(cols))
	for _, r := range aggregate.SortByKey(records) {
		for i, c := range cols {
			row[i] = formatCell(c.value(r))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("csv write: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("csv write: %w", err)
	}
	s.logger.Info("export.csv.ok", "dataset", d, "rows", len(records))
	return nil
}

func formatCell(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// WorkbookXLSX returns an XLSX workbook (as bytes) with a records sheet in
// identifier order and a statistics sheet with totals and the per-source
// breakdown.
func (s *Service) WorkbookXLSX(d constants.Dataset, records []entity.Record) ([]byte, error) {
	start := time.Now()
	cols, err := columnsFor(d)
	if err != nil {
		return nil, err
	}
	if err := checkRecords(d, records); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// The default sheet becomes the records sheet.
	if err := f.SetSheetName(f.GetSheetName(0), recordsSheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}
	if _, err := f.NewSheet(statsSheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}
	activeIndex, _ := f.GetSheetIndex(recordsSheet)
	f.SetActiveSheet(activeIndex)

	write := func(sheet string, col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	for i, c := range cols {
		write(recordsSheet, i+1, 1, c.header)
		name, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(recordsSheet, name, name, c.width)
	}
	row := 2
	for _, r := range aggregate.SortByKey(records) {
		for i, c := range cols {
			write(recordsSheet, i+1, row, c.value(r))
		}
		row++
	}

	stats := aggregate.Summarize(records)
	write(statsSheet, 1, 1, "Metric")
	write(statsSheet, 2, 1, "Value")
	write(statsSheet, 1, 2, "Total Count")
	write(statsSheet, 2, 2, stats.TotalCount)
	write(statsSheet, 1, 3, "Total Measure")
	write(statsSheet, 2, 3, stats.TotalMeasure)
	write(statsSheet, 1, 4, "Average Measure")
	write(statsSheet, 2, 4, stats.AverageMeasure)

	write(statsSheet, 1, 6, "Source File")
	write(statsSheet, 2, 6, "Count")
	write(statsSheet, 3, 6, "Sum")
	for i, b := range stats.PerSource {
		write(statsSheet, 1, 7+i, b.SourceFile)
		write(statsSheet, 2, 7+i, b.Count)
		write(statsSheet, 3, 7+i, b.Sum)
	}
	_ = f.SetColWidth(statsSheet, "A", "A", 28)
	_ = f.SetColWidth(statsSheet, "B", "C", 16)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"dataset", d,
		"rows", len(records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
