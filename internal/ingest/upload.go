package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/joseph-ayodele/datalake-etl/constants"
	"github.com/joseph-ayodele/datalake-etl/internal/common"
)

const maxNameLength = 255

// Uploader places client files into the landing category chosen by extension.
type Uploader struct {
	source   Source
	onChange []func()
	logger   *slog.Logger
}

// NewUploader builds an uploader. onChange hooks run after every successful
// upload, typically to invalidate result caches.
func NewUploader(source Source, logger *slog.Logger, onChange ...func()) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{source: source, onChange: onChange, logger: logger}
}

func (u *Uploader) Upload(ctx context.Context, filename string, r io.Reader) (FileRef, error) {
	name, err := SanitizeName(filename)
	if err != nil {
		return FileRef{}, fmt.Errorf("%w: %w: %q", common.ErrInvalidInput, err, filename)
	}
	v := common.NewValidator().Field("filename", name, common.FileName, common.MaxLength(maxNameLength))
	if err := v.Error(); err != nil {
		return FileRef{}, err
	}
	c, ok := constants.CategoryOf(name)
	if !ok {
		return FileRef{}, fmt.Errorf("%w: %w: %s", common.ErrInvalidInput, ErrUnsupportedExtension, name)
	}

	ref, err := u.source.Put(ctx, c, name, r)
	if err != nil {
		u.logger.Error("ingest.upload.failed", "file", name, "category", c, "error", err)
		return FileRef{}, err
	}
	u.logger.Info("ingest.upload.ok", "file", name, "category", c, "location", ref.Location, "bytes", ref.Size)
	for _, fn := range u.onChange {
		fn()
	}
	return ref, nil
}
