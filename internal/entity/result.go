package entity

import (
	"time"

	"github.com/joseph-ayodele/datalake-etl/constants"
)

// FileReport is the per-file outcome of an extraction run.
type FileReport struct {
	Name           string                         `json:"name"`
	Category       constants.Category             `json:"category"`
	Format         constants.Format               `json:"format"`
	Accepted       int                            `json:"accepted"`
	Rejected       int                            `json:"rejected"`
	RejectReasons  map[constants.RejectReason]int `json:"reject_reasons,omitempty"`
	SchemaMismatch bool                           `json:"schema_mismatch,omitempty"`
	Err            string                         `json:"error,omitempty"`
}

// Failed reports whether the file contributed nothing because of a file-level error.
func (f FileReport) Failed() bool { return f.Err != "" }

// CategoryReport records how enumeration of one category location went.
type CategoryReport struct {
	Category constants.Category `json:"category"`
	Location string             `json:"location"`
	Files    int                `json:"files"`
	Err      string             `json:"error,omitempty"`
}

// ExtractionResult is the output of one orchestrator run. It is never mutated
// after it is returned; a refresh produces a new value.
type ExtractionResult struct {
	RunID      string            `json:"run_id"`
	Dataset    constants.Dataset `json:"dataset"`
	Records    []Record          `json:"records"`
	Files      []FileReport      `json:"files"`
	Categories []CategoryReport  `json:"categories"`
	ComputedAt time.Time         `json:"computed_at"`
	Duration   time.Duration     `json:"duration_ns"`
}

// Total is the number of accepted records.
func (r *ExtractionResult) Total() int {
	if r == nil {
		return 0
	}
	return len(r.Records)
}

// Rejected sums row-level rejections across files.
func (r *ExtractionResult) Rejected() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, f := range r.Files {
		n += f.Rejected
	}
	return n
}

// Failed counts files skipped because of file-level errors.
func (r *ExtractionResult) Failed() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, f := range r.Files {
		if f.Failed() {
			n++
		}
	}
	return n
}

// Reachable is false only when every category location failed to enumerate.
func (r *ExtractionResult) Reachable() bool {
	if r == nil || len(r.Categories) == 0 {
		return false
	}
	for _, c := range r.Categories {
		if c.Err == "" {
			return true
		}
	}
	return false
}

// CountsBySource returns accepted record counts keyed by file name.
func (r *ExtractionResult) CountsBySource() map[string]int {
	out := make(map[string]int, len(r.Files))
	for _, f := range r.Files {
		out[f.Name] = f.Accepted
	}
	return out
}

// Normalized renders every record in its canonical view.
func (r *ExtractionResult) Normalized() []NormalizedRecord {
	out := make([]NormalizedRecord, 0, r.Total())
	for _, rec := range r.Records {
		out = append(out, Normalize(rec))
	}
	return out
}
