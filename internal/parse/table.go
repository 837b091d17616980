package parse

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/datalake-etl/constants"
)

// Table parses header-aware tabular files (.csv, .xlsx). The first row is the
// header; every required column must be present or the file is a schema mismatch.
type Table struct {
	required []string
}

func NewTable(required []string) *Table {
	return &Table{required: required}
}

func (t *Table) Parse(ctx context.Context, name string, r io.Reader) (*Lines, error) {
	if f, _ := constants.FormatOf(name); f == constants.FormatXLSX {
		return t.parseXLSX(ctx, name, r)
	}
	return t.parseCSV(ctx, name, r)
}

func (t *Table) parseCSV(ctx context.Context, name string, r io.Reader) (*Lines, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	first, err := cr.Read()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read header %s: %w", name, err)
	}
	h := NewHeader(first)
	if missing := h.Missing(t.required); len(missing) > 0 {
		return Empty(), mismatch(name, missing)
	}

	return newLines(func(l *Lines, yield func(RawLine) bool) {
		for {
			if err := ctx.Err(); err != nil {
				l.err = err
				return
			}
			rec, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				l.err = fmt.Errorf("read %s: %w", name, err)
				return
			}
			if blank(rec) {
				continue
			}
			line, _ := cr.FieldPos(0)
			if !yield(NewRawLine(line, trimAll(rec), h)) {
				return
			}
		}
	}), nil
}

func (t *Table) parseXLSX(ctx context.Context, name string, r io.Reader) (*Lines, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Empty(), mismatch(name, t.required)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", name, err)
	}
	var h *Header
	if len(rows) > 0 {
		h = NewHeader(rows[0])
	} else {
		h = NewHeader(nil)
	}
	if missing := h.Missing(t.required); len(missing) > 0 {
		return Empty(), mismatch(name, missing)
	}

	return newLines(func(l *Lines, yield func(RawLine) bool) {
		for i := 1; i < len(rows); i++ {
			if err := ctx.Err(); err != nil {
				l.err = err
				return
			}
			if blank(rows[i]) {
				continue
			}
			if !yield(NewRawLine(i+1, trimAll(rows[i]), h)) {
				return
			}
		}
	}), nil
}
