package parse

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

const maxLineBytes = 1 << 20

// Text parses plain-text logs. The first line is always a header and never
// data. Lines are split on Delimiter, or on runs of whitespace when it is empty.
type Text struct {
	delimiter string
	required  []string
}

// NewText builds a text parser. required lists header names that must be present
// when fields are bound by name; leave it empty for positional layouts.
func NewText(delimiter string, required []string) *Text {
	return &Text{delimiter: delimiter, required: required}
}

func (t *Text) Parse(ctx context.Context, name string, r io.Reader) (*Lines, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var h *Header
	if sc.Scan() {
		h = NewHeader(t.split(strings.TrimPrefix(sc.Text(), "\ufeff")))
	} else {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read header %s: %w", name, err)
		}
		h = NewHeader(nil)
	}
	if missing := h.Missing(t.required); len(missing) > 0 {
		return Empty(), mismatch(name, missing)
	}

	return newLines(func(l *Lines, yield func(RawLine) bool) {
		n := 1
		for sc.Scan() {
			n++
			if err := ctx.Err(); err != nil {
				l.err = err
				return
			}
			line := strings.TrimRight(sc.Text(), "\r")
			if strings.TrimSpace(line) == "" {
				continue
			}
			if !yield(NewRawLine(n, t.split(line), h)) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			l.err = fmt.Errorf("read %s: %w", name, err)
		}
	}), nil
}

func (t *Text) split(line string) []string {
	if t.delimiter == "" {
		return strings.Fields(line)
	}
	return trimAll(strings.Split(strings.TrimSpace(line), t.delimiter))
}
