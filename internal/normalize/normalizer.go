package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/datalake-etl/constants"
	"github.com/joseph-ayodele/datalake-etl/internal/entity"
	"github.com/joseph-ayodele/datalake-etl/internal/parse"
)

// Normalizer turns raw lines into records. It is stateless apart from its
// schema and safe for concurrent use.
type Normalizer struct {
	schema *Schema
}

func New(schema *Schema) *Normalizer {
	return &Normalizer{schema: schema}
}

func (n *Normalizer) Schema() *Schema { return n.schema }

// Normalize validates one line under binding b. An empty reason means the
// record was accepted.
func (n *Normalizer) Normalize(line parse.RawLine, b Binding, source string) (entity.Record, constants.RejectReason) {
	if !b.Named() && len(line.Tokens) < b.MinTokens {
		return nil, constants.RejectArity
	}
	values := make(map[Field]string, len(fieldOrder))
	for _, f := range fieldOrder {
		if !b.Has(f) {
			continue
		}
		v, ok := lookup(line, b, f)
		if !ok {
			return nil, constants.RejectArity
		}
		values[f] = v
	}

	var date *time.Time
	if v, ok := values[FieldDate]; ok {
		date = n.parseDate(v)
	}
	if n.schema.DateRequired && date == nil {
		return nil, constants.RejectDate
	}

	measure, ok := n.parseMeasure(values[FieldMeasure])
	if !ok {
		return nil, constants.RejectMeasure
	}
	if measure < 0 {
		return nil, constants.RejectNegative
	}
	if n.schema.Rule == RulePositive && measure == 0 {
		return nil, constants.RejectNonPositive
	}

	if _, bound := values[FieldID]; bound || n.schema.IDPrefix != "" {
		id := values[FieldID]
		if id == "" || !strings.HasPrefix(id, n.schema.IDPrefix) {
			return nil, constants.RejectIdentifier
		}
	}

	switch n.schema.Dataset {
	case constants.DatasetReturns:
		return entity.ReturnRecord{
			ReturnDate:     entity.NewDate(*date),
			TerritoryKey:   values[FieldTerritory],
			ProductKey:     values[FieldProduct],
			ReturnQuantity: int64(measure),
			SourceFile:     source,
		}, ""
	default:
		rec := entity.PurchaseRecord{
			PurchaseID:  values[FieldID],
			TotalAmount: measure,
			SourceFile:  source,
		}
		if date != nil {
			d := entity.NewDate(*date)
			rec.PurchaseDate = &d
		}
		return rec, ""
	}
}

func lookup(line parse.RawLine, b Binding, f Field) (string, bool) {
	if b.Named() {
		return line.Field(b.Columns[f])
	}
	return line.Token(b.Positions[f])
}

func (n *Normalizer) parseDate(v string) *time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	for _, layout := range n.schema.DateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	return nil
}

// parseMeasure reads integers strictly; a whole-number decimal such as "3.0"
// is accepted for integer measures since spreadsheets often render them so.
func (n *Normalizer) parseMeasure(v string) (float64, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if n.schema.Measure == MeasureInteger {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return float64(i), true
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return 0, false
		}
		// Must round-trip through int64.
		if f >= 1<<63 || f < -(1<<63) {
			return 0, false
		}
		return f, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
