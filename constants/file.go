package constants

import (
	"path/filepath"
	"strings"
)

// Category is a logical landing-area grouping by source format.
type Category string

const (
	CategoryTable    Category = "table"
	CategoryDocument Category = "document"
	CategoryText     Category = "text"
)

// Categories is the canonical extraction order.
var Categories = []Category{CategoryTable, CategoryDocument, CategoryText}

// Format is the concrete file format within a category.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
	FormatTXT  Format = "txt"
)

// extFormats maps a normalized extension to its format.
var extFormats = map[string]Format{
	"csv":  FormatCSV,
	"xlsx": FormatXLSX,
	"pdf":  FormatPDF,
	"txt":  FormatTXT,
}

var formatCategories = map[Format]Category{
	FormatCSV:  CategoryTable,
	FormatXLSX: CategoryTable,
	FormatPDF:  CategoryDocument,
	FormatTXT:  CategoryText,
}

// DefaultDirs holds the landing subdirectory for each category.
var DefaultDirs = map[Category]string{
	CategoryTable:    "csv",
	CategoryDocument: "pdf",
	CategoryText:     "txt",
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// FormatOf returns the format for a file name based on its extension.
func FormatOf(name string) (Format, bool) {
	f, ok := extFormats[NormalizeExt(filepath.Ext(name))]
	return f, ok
}

// CategoryOf returns the landing category a file name belongs to.
func CategoryOf(name string) (Category, bool) {
	f, ok := FormatOf(name)
	if !ok {
		return "", false
	}
	return formatCategories[f], true
}

// Extensions lists the normalized extensions accepted for a category.
func (c Category) Extensions() []string {
	var out []string
	for _, ext := range []string{"csv", "xlsx", "pdf", "txt"} {
		if formatCategories[extFormats[ext]] == c {
			out = append(out, ext)
		}
	}
	return out
}

// Accepts reports whether a file name belongs to the category.
func (c Category) Accepts(name string) bool {
	got, ok := CategoryOf(name)
	return ok && got == c
}

// ParseCategory accepts a category name or one of its extensions.
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	if f, ok := extFormats[NormalizeExt(s)]; ok {
		return formatCategories[f], true
	}
	return "", false
}
