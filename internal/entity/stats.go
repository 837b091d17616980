package entity

// SourceBreakdown is the per-file slice of AggregateStats.
type SourceBreakdown struct {
	SourceFile string  `json:"source_file"`
	Count      int     `json:"count"`
	Sum        float64 `json:"sum"`
}

// AggregateStats summarizes a normalized record set. Derived, never persisted.
type AggregateStats struct {
	TotalCount     int               `json:"total_count"`
	TotalMeasure   float64           `json:"total_measure"`
	AverageMeasure float64           `json:"average_measure"`
	PerSource      []SourceBreakdown `json:"per_source_breakdown"`
}
