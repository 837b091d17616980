package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name string
		want Category
		ok   bool
	}{
		{"sales.csv", CategoryTable, true},
		{"Sales.XLSX", CategoryTable, true},
		{"report.pdf", CategoryDocument, true},
		{"log.TXT", CategoryText, true},
		{"image.png", "", false},
		{"noext", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CategoryOf(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCategoryExtensionsAndAccepts(t *testing.T) {
	assert.Equal(t, []string{"csv", "xlsx"}, CategoryTable.Extensions())
	assert.Equal(t, []string{"pdf"}, CategoryDocument.Extensions())
	assert.True(t, CategoryTable.Accepts("a.xlsx"))
	assert.False(t, CategoryText.Accepts("a.csv"))
}

func TestParseCategory(t *testing.T) {
	c, ok := ParseCategory(" Document ")
	assert.True(t, ok)
	assert.Equal(t, CategoryDocument, c)

	c, ok = ParseCategory(".xlsx")
	assert.True(t, ok)
	assert.Equal(t, CategoryTable, c)

	_, ok = ParseCategory("images")
	assert.False(t, ok)
}
