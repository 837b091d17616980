package parse

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// TextExtractor returns the plain text of each page of a document.
type TextExtractor interface {
	Pages(ctx context.Context, name string, content []byte) ([]string, error)
}

// Document parses portable documents: page text is split into lines and
// each line is tokenized on runs of whitespace. Lines containing any header
// keyword are skipped.
type Document struct {
	extractor TextExtractor
	keywords  []string
}

func NewDocument(extractor TextExtractor, headerKeywords []string) *Document {
	return &Document{extractor: extractor, keywords: headerKeywords}
}

func (d *Document) Parse(ctx context.Context, name string, r io.Reader) (*Lines, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	pages, err := d.extractor.Pages(ctx, name, content)
	if err != nil {
		return nil, err
	}

	return newLines(func(l *Lines, yield func(RawLine) bool) {
		n := 0
		for _, page := range pages {
			for _, line := range strings.Split(page, "\n") {
				n++
				if err := ctx.Err(); err != nil {
					l.err = err
					return
				}
				line = strings.TrimSpace(line)
				if line == "" || d.isHeader(line) {
					continue
				}
				if !yield(NewRawLine(n, strings.Fields(line), nil)) {
					return
				}
			}
		}
	}), nil
}

func (d *Document) isHeader(line string) bool {
	for _, k := range d.keywords {
		if k != "" && strings.Contains(line, k) {
			return true
		}
	}
	return false
}
