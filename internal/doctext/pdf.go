// Package doctext turns portable documents into per-page plain text.
package doctext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrCorruptDocument marks content that is not a readable PDF.
var ErrCorruptDocument = errors.New("corrupt document")

type Config struct {
	Pdftotext string        // binary name or absolute path; if empty -> "pdftotext"
	Timeout   time.Duration // per document; 0 = no limit
	TempDir   string        // where content is staged for pdftotext; "" = os.TempDir()
}

// PDF extracts page text with pdftotext after validating the file with pdfcpu.
type PDF struct {
	cfg       Config
	runner    Runner
	logger    *slog.Logger
	pageCount func(rs io.ReadSeeker) (int, error)
}

type Option func(*PDF)

// WithRunner swaps the command runner.
func WithRunner(r Runner) Option {
	return func(p *PDF) {
		if r != nil {
			p.runner = r
		}
	}
}

func NewPDF(cfg Config, logger *slog.Logger, opts ...Option) *PDF {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	p := &PDF{
		cfg:    cfg,
		runner: ExecRunner{Logger: logger},
		logger: logger,
		pageCount: func(rs io.ReadSeeker) (int, error) {
			return api.PageCount(rs, nil)
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Pages returns the normalized text of every page in document order.
func (p *PDF) Pages(ctx context.Context, name string, content []byte) ([]string, error) {
	start := time.Now()
	expected, err := p.pageCount(bytes.NewReader(content))
	if err != nil {
		p.logger.Warn("doctext.pdf.invalid", "file", name, "error", err)
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptDocument, name, err)
	}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	tmp, err := os.CreateTemp(p.cfg.TempDir, "dl-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("stage pdf: %w", err)
	}
	defer func() {
		if err := os.Remove(tmp.Name()); err != nil {
			p.logger.Warn("failed to remove staged pdf", "path", tmp.Name(), "error", err)
		}
	}()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("stage pdf: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("stage pdf: %w", err)
	}

	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := p.runner.Run(ctx, p.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", tmp.Name(), "-")
	if err != nil {
		return nil, fmt.Errorf("pdftotext %s: %w: %s", name, err, truncate(strings.TrimSpace(string(errb)), 512))
	}

	pages := SplitPages(string(out))
	if len(pages) != expected {
		p.logger.Debug("doctext.pdf.page_mismatch", "file", name, "expected", expected, "got", len(pages))
	}
	p.logger.Debug("doctext.pdf.ok",
		"file", name,
		"pages", len(pages),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return pages, nil
}

// SplitPages splits pdftotext output on form feeds. pdftotext terminates every
// page with \f, so a trailing empty page is dropped.
func SplitPages(text string) []string {
	if text == "" {
		return nil
	}
	raw := strings.Split(text, "\f")
	if strings.TrimSpace(raw[len(raw)-1]) == "" {
		raw = raw[:len(raw)-1]
	}
	pages := make([]string, len(raw))
	for i, pg := range raw {
		pages[i] = Normalize(pg)
	}
	return pages
}
