// Package parse turns one landing file into a lazy sequence of raw token lines.
package parse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/joseph-ayodele/datalake-etl/constants"
)

var (
	// ErrSchemaMismatch means the file lacks columns the active schema requires.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrUnsupportedFormat means no parser is registered for the file's format.
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// Header indexes column names of a header-aware file.
type Header struct {
	names []string
	index map[string]int
}

// NewHeader trims each name; on duplicates the first occurrence wins.
func NewHeader(names []string) *Header {
	h := &Header{names: make([]string, len(names)), index: make(map[string]int, len(names))}
	for i, n := range names {
		n = strings.TrimSpace(strings.TrimPrefix(n, "\ufeff"))
		h.names[i] = n
		if _, dup := h.index[n]; !dup {
			h.index[n] = i
		}
	}
	return h
}

func (h *Header) Names() []string { return h.names }

func (h *Header) Index(name string) (int, bool) {
	if h == nil {
		return 0, false
	}
	i, ok := h.index[name]
	return i, ok
}

// Missing returns the required names absent from the header, in order.
func (h *Header) Missing(required []string) []string {
	var out []string
	for _, r := range required {
		if _, ok := h.Index(r); !ok {
			out = append(out, r)
		}
	}
	return out
}

// RawLine is one tokenized line or row. Ephemeral.
type RawLine struct {
	Number int // 1-based line/row number in the source file
	Tokens []string
	header *Header
}

// NewRawLine builds a line, optionally bound to a header.
func NewRawLine(number int, tokens []string, h *Header) RawLine {
	return RawLine{Number: number, Tokens: tokens, header: h}
}

func (l RawLine) Header() *Header { return l.header }

// Token returns the token at pos; negative positions count from the end.
func (l RawLine) Token(pos int) (string, bool) {
	if pos < 0 {
		pos = len(l.Tokens) + pos
	}
	if pos < 0 || pos >= len(l.Tokens) {
		return "", false
	}
	return l.Tokens[pos], true
}

// Field looks a token up by header column name.
func (l RawLine) Field(name string) (string, bool) {
	i, ok := l.header.Index(name)
	if !ok {
		return "", false
	}
	return l.Token(i)
}

// Lines is a lazy, single-pass sequence of RawLine. Err reports the error that
// stopped iteration early, if any.
type Lines struct {
	seq iter.Seq[RawLine]
	err error
}

func newLines(fill func(l *Lines, yield func(RawLine) bool)) *Lines {
	l := &Lines{}
	l.seq = func(yield func(RawLine) bool) { fill(l, yield) }
	return l
}

// Empty is a sequence with no lines.
func Empty() *Lines {
	return &Lines{seq: func(func(RawLine) bool) {}}
}

func (l *Lines) All() iter.Seq[RawLine] { return l.seq }

func (l *Lines) Err() error { return l.err }

// Parser turns the content of one file into raw lines. A returned error is
// file-level; the file contributes no records.
type Parser interface {
	Parse(ctx context.Context, name string, r io.Reader) (*Lines, error)
}

// Registry maps a concrete format to its parser.
type Registry map[constants.Format]Parser

// For resolves the parser for a file name by extension.
func (r Registry) For(name string) (Parser, constants.Format, error) {
	f, ok := constants.FormatOf(name)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	p, ok := r[f]
	if !ok {
		return nil, f, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
	return p, f, nil
}

func trimAll(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = strings.TrimSpace(t)
	}
	return out
}

func blank(tokens []string) bool {
	for _, t := range tokens {
		if strings.TrimSpace(t) != "" {
			return false
		}
	}
	return true
}

func mismatch(name string, missing []string) error {
	return fmt.Errorf("%w: %s: missing columns %s", ErrSchemaMismatch, name, strings.Join(missing, ", "))
}
