// Package aggregate derives summary statistics and caller-side views from a
// normalized record set. Nothing here mutates its input.
package aggregate

import (
	"slices"
	"strings"

	"github.com/joseph-ayodele/datalake-etl/internal/entity"
)

// Summarize computes count, sum and mean of the measure and a per-source
// breakdown ordered by source file name. Empty input yields zeros and an
// empty breakdown.
func Summarize(records []entity.Record) entity.AggregateStats {
	stats := entity.AggregateStats{PerSource: []entity.SourceBreakdown{}}
	if len(records) == 0 {
		return stats
	}

	index := map[string]int{}
	for _, r := range records {
		m := r.Measure()
		stats.TotalCount++
		stats.TotalMeasure += m

		i, ok := index[r.Source()]
		if !ok {
			i = len(stats.PerSource)
			index[r.Source()] = i
			stats.PerSource = append(stats.PerSource, entity.SourceBreakdown{SourceFile: r.Source()})
		}
		stats.PerSource[i].Count++
		stats.PerSource[i].Sum += m
	}
	stats.AverageMeasure = stats.TotalMeasure / float64(stats.TotalCount)
	slices.SortStableFunc(stats.PerSource, func(a, b entity.SourceBreakdown) int {
		return strings.Compare(a.SourceFile, b.SourceFile)
	})
	return stats
}

// SortByKey returns a copy ordered by primary identifier. Ties keep their
// extraction order.
func SortByKey(records []entity.Record) []entity.Record {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b entity.Record) int {
		return strings.Compare(a.Key(), b.Key())
	})
	return out
}

// FindByKey returns the first record whose identifier equals key.
func FindByKey(records []entity.Record, key string) (entity.Record, bool) {
	for _, r := range records {
		if r.Key() == key {
			return r, true
		}
	}
	return nil, false
}

// InRange returns the records whose measure lies in [lo, hi], in order.
func InRange(records []entity.Record, lo, hi float64) []entity.Record {
	out := []entity.Record{}
	for _, r := range records {
		if m := r.Measure(); m >= lo && m <= hi {
			out = append(out, r)
		}
	}
	return out
}
