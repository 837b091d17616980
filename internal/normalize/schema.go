// Package normalize validates raw token lines into typed records under a
// schema descriptor.
package normalize

import (
	"fmt"

	"github.com/joseph-ayodele/datalake-etl/constants"
	"github.com/joseph-ayodele/datalake-etl/internal/common"
	"github.com/joseph-ayodele/datalake-etl/internal/parse"
)

// Field names a logical field a binding can locate.
type Field string

const (
	FieldDate      Field = "date"
	FieldTerritory Field = "territory"
	FieldProduct   Field = "product"
	FieldID        Field = "id"
	FieldMeasure   Field = "measure"
)

var fieldOrder = []Field{FieldDate, FieldTerritory, FieldProduct, FieldID, FieldMeasure}

type MeasureKind string

const (
	MeasureInteger MeasureKind = "integer"
	MeasureDecimal MeasureKind = "decimal"
)

type MeasureRule string

const (
	RuleNonNegative MeasureRule = "non_negative"
	RulePositive    MeasureRule = "positive"
)

// Binding locates fields in one category's lines, either by position
// (negative counts from the end) or by header column name.
type Binding struct {
	MinTokens      int              `mapstructure:"min_tokens"`
	Positions      map[Field]int    `mapstructure:"positions"`
	Columns        map[Field]string `mapstructure:"columns"`
	HeaderKeywords []string         `mapstructure:"header_keywords"`
	Delimiter      string           `mapstructure:"delimiter"`
}

// Named reports whether fields are bound by column name.
func (b Binding) Named() bool { return len(b.Columns) > 0 }

// Has reports whether the binding locates f.
func (b Binding) Has(f Field) bool {
	if b.Named() {
		_, ok := b.Columns[f]
		return ok
	}
	_, ok := b.Positions[f]
	return ok
}

// RequiredColumns lists bound column names in canonical field order.
func (b Binding) RequiredColumns() []string {
	if !b.Named() {
		return nil
	}
	out := make([]string, 0, len(b.Columns))
	for _, f := range fieldOrder {
		if c, ok := b.Columns[f]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Schema describes one dataset variant: how to find each field per category
// and which validity rules apply.
type Schema struct {
	Dataset      constants.Dataset `mapstructure:"dataset"`
	DateLayouts  []string          `mapstructure:"date_layouts"`
	DateRequired bool              `mapstructure:"date_required"`
	IDPrefix     string            `mapstructure:"id_prefix"`
	Measure      MeasureKind       `mapstructure:"measure"`
	Rule         MeasureRule       `mapstructure:"rule"`

	Table    Binding `mapstructure:"table"`
	Document Binding `mapstructure:"document"`
	Text     Binding `mapstructure:"text"`
}

// Binding returns the field binding for a category.
func (s *Schema) Binding(c constants.Category) Binding {
	switch c {
	case constants.CategoryTable:
		return s.Table
	case constants.CategoryDocument:
		return s.Document
	default:
		return s.Text
	}
}

// requiredFields are the fields every binding of a dataset must locate.
func (s *Schema) requiredFields() []Field {
	if s.Dataset == constants.DatasetReturns {
		return []Field{FieldDate, FieldTerritory, FieldProduct, FieldMeasure}
	}
	return []Field{FieldID, FieldMeasure}
}

// Validate checks the descriptor is usable.
func (s *Schema) Validate() error {
	v := common.NewValidator()
	v.Check(s.Dataset == constants.DatasetReturns || s.Dataset == constants.DatasetPurchases,
		"dataset", s.Dataset, "must be returns or purchases")
	v.Check(s.Measure == MeasureInteger || s.Measure == MeasureDecimal, "measure", s.Measure, "must be integer or decimal")
	v.Check(s.Rule == RuleNonNegative || s.Rule == RulePositive, "rule", s.Rule, "must be non_negative or positive")
	v.Check(!s.DateRequired || len(s.DateLayouts) > 0, "date_layouts", s.DateLayouts, "required when date_required is set")
	v.Check(s.Dataset != constants.DatasetReturns || s.Measure == MeasureInteger, "measure", s.Measure, "returns use integer quantities")

	for _, c := range constants.Categories {
		b := s.Binding(c)
		name := string(c)
		v.Check(!(b.Named() && len(b.Positions) > 0), name, "positions+columns", "bind by position or by column, not both")
		v.Check(c != constants.CategoryTable || b.Named(), name, b.Positions, "table bindings must use columns")
		v.Check(c != constants.CategoryDocument || !b.Named(), name, b.Columns, "document bindings must use positions")
		v.Check(b.MinTokens >= 0, name+".min_tokens", b.MinTokens, "must not be negative")
		for _, f := range s.requiredFields() {
			v.Check(b.Has(f), name, f, "field is not bound")
		}
	}
	if err := v.Error(); err != nil {
		return fmt.Errorf("schema %s: %w", s.Dataset, err)
	}
	return nil
}

// Parsers builds the format parsers configured for this schema. The document
// parser is registered only when an extractor is supplied.
func (s *Schema) Parsers(extractor parse.TextExtractor) parse.Registry {
	table := parse.NewTable(s.Table.RequiredColumns())
	reg := parse.Registry{
		constants.FormatCSV:  table,
		constants.FormatXLSX: table,
		constants.FormatTXT:  parse.NewText(s.Text.Delimiter, s.Text.RequiredColumns()),
	}
	if extractor != nil {
		reg[constants.FormatPDF] = parse.NewDocument(extractor, s.Document.HeaderKeywords)
	}
	return reg
}

// Returns is the built-in return-record schema.
func Returns() *Schema {
	positional := Binding{
		MinTokens: 4,
		Positions: map[Field]int{FieldDate: 0, FieldTerritory: 1, FieldProduct: 2, FieldMeasure: 3},
	}
	return &Schema{
		Dataset:      constants.DatasetReturns,
		DateLayouts:  []string{"1/2/2006", "2006-01-02"},
		DateRequired: true,
		Measure:      MeasureInteger,
		Rule:         RuleNonNegative,
		Table: Binding{Columns: map[Field]string{
			FieldDate:      "ReturnDate",
			FieldTerritory: "TerritoryKey",
			FieldProduct:   "ProductKey",
			FieldMeasure:   "ReturnQuantity",
		}},
		Document: positional,
		Text:     positional,
	}
}

// Purchases is the built-in purchase-record schema. Document lines follow the
// "date id customer product qty price amount" layout.
func Purchases() *Schema {
	return &Schema{
		Dataset:     constants.DatasetPurchases,
		DateLayouts: []string{"1/2/2006", "2006-01-02"},
		IDPrefix:    "P",
		Measure:     MeasureDecimal,
		Rule:        RulePositive,
		Table: Binding{Columns: map[Field]string{
			FieldID:      "Purchase_ID",
			FieldMeasure: "Total_Amount",
		}},
		Document: Binding{
			MinTokens:      7,
			Positions:      map[Field]int{FieldDate: 0, FieldID: 1, FieldMeasure: -1},
			HeaderKeywords: []string{"Purchase_ID", "Purchase_Date"},
		},
		Text: Binding{
			Delimiter: "\t",
			Columns:   map[Field]string{FieldID: "Product_ID", FieldMeasure: "Total_Amount"},
		},
	}
}

// Builtin returns the built-in schema for a dataset.
func Builtin(d constants.Dataset) (*Schema, error) {
	switch d {
	case constants.DatasetReturns:
		return Returns(), nil
	case constants.DatasetPurchases:
		return Purchases(), nil
	default:
		return nil, fmt.Errorf("%w: unknown dataset %q", common.ErrInvalidInput, d)
	}
}
