package normalize

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/datalake-etl/constants"
	"github.com/joseph-ayodele/datalake-etl/internal/common"
	"github.com/joseph-ayodele/datalake-etl/internal/entity"
	"github.com/joseph-ayodele/datalake-etl/internal/parse"
)

func tokens(t ...string) parse.RawLine { return parse.NewRawLine(1, t, nil) }

func row(header []string, values ...string) parse.RawLine {
	return parse.NewRawLine(2, values, parse.NewHeader(header))
}

func TestNormalizeReturnsPositional(t *testing.T) {
	n := New(Returns())
	b := n.Schema().Document

	tests := []struct {
		name   string
		line   parse.RawLine
		reason constants.RejectReason
	}{
		{"valid", tokens("01/15/2024", "T1", "PR9", "3"), ""},
		{"zero quantity", tokens("1/5/2024", "T1", "PR9", "0"), ""},
		{"extra tokens", tokens("01/15/2024", "T1", "PR9", "3", "trailing"), ""},
		{"short line", tokens("01/15/2024", "T1", "PR9"), constants.RejectArity},
		{"bad date", tokens("2024/15/01", "T1", "PR9", "3"), constants.RejectDate},
		{"bad quantity", tokens("01/15/2024", "T1", "PR9", "abc"), constants.RejectMeasure},
		{"fractional quantity", tokens("01/15/2024", "T1", "PR9", "2.5"), constants.RejectMeasure},
		{"negative quantity", tokens("01/15/2024", "T1", "PR9", "-1"), constants.RejectNegative},
		{"quantity past int64", tokens("01/15/2024", "T1", "PR9", "9223372036854775808"), constants.RejectMeasure},
		{"exponent past int64", tokens("01/15/2024", "T1", "PR9", "1e19"), constants.RejectMeasure},
		{"huge exponent", tokens("01/15/2024", "T1", "PR9", "1e300"), constants.RejectMeasure},
		{"whole exponent", tokens("01/15/2024", "T1", "PR9", "1e3"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, reason := n.Normalize(tt.line, b, "returns.txt")
			assert.Equal(t, tt.reason, reason)
			if tt.reason != "" {
				assert.Nil(t, rec)
				return
			}
			require.NotNil(t, rec)
			assert.Equal(t, "returns.txt", rec.Source())
			assert.GreaterOrEqual(t, rec.(entity.ReturnRecord).ReturnQuantity, int64(0))
		})
	}
}

func TestNormalizeReturnsFieldValues(t *testing.T) {
	n := New(Returns())
	rec, reason := n.Normalize(tokens("01/15/2024", "T1", "PR9", "3"), n.Schema().Text, "r.txt")
	require.Empty(t, reason)

	r, ok := rec.(entity.ReturnRecord)
	require.True(t, ok)
	assert.Equal(t, "2024-01-15", r.ReturnDate.String())
	assert.Equal(t, "T1", r.TerritoryKey)
	assert.Equal(t, "PR9", r.ProductKey)
	assert.Equal(t, int64(3), r.ReturnQuantity)
}

func TestNormalizeReturnsTableAcceptsISODateAndWholeDecimal(t *testing.T) {
	n := New(Returns())
	header := []string{"ReturnDate", "TerritoryKey", "ProductKey", "ReturnQuantity"}

	rec, reason := n.Normalize(row(header, "2024-02-01", "T2", "PR1", "4.0"), n.Schema().Table, "r.csv")
	require.Empty(t, reason)
	assert.Equal(t, float64(4), rec.Measure())
	assert.Equal(t, "2024-02-01", rec.RecordDate().String())

	_, reason = n.Normalize(row(header, "2024-02-01", "T2"), n.Schema().Table, "r.csv")
	assert.Equal(t, constants.RejectArity, reason)
}

func TestNormalizePurchasesTable(t *testing.T) {
	n := New(Purchases())
	header := []string{"Purchase_ID", "Total_Amount"}

	tests := []struct {
		name   string
		values []string
		reason constants.RejectReason
	}{
		{"valid", []string{"P0001", "120.50"}, ""},
		{"negative", []string{"P0002", "-5"}, constants.RejectNegative},
		{"zero", []string{"P0003", "0"}, constants.RejectNonPositive},
		{"empty id", []string{"", "10"}, constants.RejectIdentifier},
		{"wrong prefix", []string{"X0004", "10"}, constants.RejectIdentifier},
		{"bad amount", []string{"P0005", "ten"}, constants.RejectMeasure},
		{"nan amount", []string{"P0006", "NaN"}, constants.RejectMeasure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, reason := n.Normalize(row(header, tt.values...), n.Schema().Table, "p.csv")
			assert.Equal(t, tt.reason, reason)
			if tt.reason == "" {
				p := rec.(entity.PurchaseRecord)
				assert.Equal(t, "P0001", p.PurchaseID)
				assert.InDelta(t, 120.50, p.TotalAmount, 1e-9)
				assert.Nil(t, p.PurchaseDate)
			}
		})
	}
}

func TestNormalizePurchasesDocumentOptionalDate(t *testing.T) {
	n := New(Purchases())
	b := n.Schema().Document

	rec, reason := n.Normalize(tokens("03/01/2024", "P0001", "C1", "Widget", "2", "10.00", "20.00"), b, "p.pdf")
	require.Empty(t, reason)
	p := rec.(entity.PurchaseRecord)
	require.NotNil(t, p.PurchaseDate)
	assert.Equal(t, "2024-03-01", p.PurchaseDate.String())
	assert.InDelta(t, 20.0, p.TotalAmount, 1e-9)

	rec, reason = n.Normalize(tokens("someday", "P0002", "C1", "Widget", "2", "10.00", "20.00"), b, "p.pdf")
	require.Empty(t, reason)
	assert.Nil(t, rec.RecordDate())

	_, reason = n.Normalize(tokens("only", "three", "tokens"), b, "p.pdf")
	assert.Equal(t, constants.RejectArity, reason)
}

func TestNegativeMeasureAlwaysRejected(t *testing.T) {
	for _, s := range []*Schema{Returns(), Purchases()} {
		n := New(s)
		var line parse.RawLine
		var b Binding
		if s.Dataset == constants.DatasetReturns {
			line, b = tokens("01/01/2024", "T", "P", "-7"), s.Text
		} else {
			line, b = row([]string{"Product_ID", "Total_Amount"}, "P1", "-0.01"), s.Text
		}
		rec, reason := n.Normalize(line, b, "x.txt")
		assert.Nil(t, rec, s.Dataset)
		assert.Equal(t, constants.RejectNegative, reason, s.Dataset)
	}
}

func TestBuiltinSchemasValidate(t *testing.T) {
	require.NoError(t, Returns().Validate())
	require.NoError(t, Purchases().Validate())

	_, err := Builtin("orders")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestSchemaValidateRejectsUnboundFields(t *testing.T) {
	s := Returns()
	s.Text = Binding{MinTokens: 2, Positions: map[Field]int{FieldDate: 0}}
	s.Document.Columns = map[Field]string{FieldDate: "d"}

	err := s.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Contains(t, err.Error(), "field is not bound")
	assert.Contains(t, err.Error(), "document bindings must use positions")
}

func TestSchemaParsers(t *testing.T) {
	reg := Purchases().Parsers(nil)
	_, ok := reg[constants.FormatPDF]
	assert.False(t, ok)
	assert.IsType(t, &parse.Table{}, reg[constants.FormatCSV])
	assert.IsType(t, &parse.Text{}, reg[constants.FormatTXT])
}

const descriptorYAML = `
dataset: purchases
date_layouts: ["2006-01-02"]
id_prefix: "ORD-"
measure: decimal
rule: positive
table:
  columns:
    id: OrderID
    measure: Amount
document:
  min_tokens: 3
  positions:
    id: 0
    measure: -1
  header_keywords: ["OrderID"]
text:
  delimiter: ";"
  columns:
    id: OrderID
    measure: Amount
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSchema(t *testing.T) {
	s, err := LoadSchema(writeFile(t, "orders.yaml", descriptorYAML))
	require.NoError(t, err)
	assert.Equal(t, constants.DatasetPurchases, s.Dataset)
	assert.Equal(t, "ORD-", s.IDPrefix)
	assert.Equal(t, map[Field]string{FieldID: "OrderID", FieldMeasure: "Amount"}, s.Table.Columns)
	assert.Equal(t, -1, s.Document.Positions[FieldMeasure])
	assert.Equal(t, ";", s.Text.Delimiter)

	n := New(s)
	rec, reason := n.Normalize(row([]string{"OrderID", "Amount"}, "ORD-9", "5.25"), s.Table, "o.csv")
	require.Empty(t, reason)
	assert.Equal(t, "ORD-9", rec.Key())
}

func TestLoadSchemaRejectsInvalidDescriptors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown dataset", "dataset: orders\nmeasure: decimal\nrule: positive\ntable: {}\ndocument: {}\ntext: {}\n"},
		{"unknown field", "dataset: purchases\nmeasure: decimal\nrule: positive\ntable:\n  columns:\n    colour: c\ndocument: {}\ntext: {}\n"},
		{"unbound measure", "dataset: purchases\nmeasure: decimal\nrule: positive\ntable:\n  columns:\n    id: c\ndocument:\n  positions:\n    id: 0\ntext:\n  positions:\n    id: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSchema(writeFile(t, "bad.yaml", tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrInvalidInput)
			var appErr *common.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, "SCHEMA_ERROR", appErr.Code)
		})
	}
}

func TestResolve(t *testing.T) {
	s, err := Resolve(constants.DatasetReturns, "")
	require.NoError(t, err)
	assert.Equal(t, constants.DatasetReturns, s.Dataset)

	_, err = Resolve(constants.DatasetReturns, writeFile(t, "orders.yaml", descriptorYAML))
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
