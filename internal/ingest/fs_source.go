package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/datalake-etl/constants"
	"github.com/joseph-ayodele/datalake-etl/internal/common"
)

// FSSource reads landing categories from local directories.
type FSSource struct {
	dirs   map[constants.Category]string
	logger *slog.Logger
}

func NewFSSource(dirs map[constants.Category]string, logger *slog.Logger) *FSSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSSource{dirs: dirs, logger: logger}
}

// EnsureDirs creates every category directory.
func (s *FSSource) EnsureDirs() error {
	for _, c := range constants.Categories {
		if dir, ok := s.dirs[c]; ok {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create %s dir: %w", c, err)
			}
		}
	}
	return nil
}

// Dirs returns the watched directories in category order.
func (s *FSSource) Dirs() []string {
	out := make([]string, 0, len(s.dirs))
	for _, c := range constants.Categories {
		if dir, ok := s.dirs[c]; ok {
			out = append(out, dir)
		}
	}
	return out
}

func (s *FSSource) Location(c constants.Category) string { return s.dirs[c] }

func (s *FSSource) dir(c constants.Category) (string, error) {
	dir, ok := s.dirs[c]
	if !ok || dir == "" {
		return "", fmt.Errorf("%w: no directory configured for %s", common.ErrInvalidInput, c)
	}
	return dir, nil
}

func (s *FSSource) List(ctx context.Context, c constants.Category) ([]FileRef, error) {
	dir, err := s.dir(c)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", common.ErrUnavailable, dir, err)
	}

	refs := make([]FileRef, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !keep(c, e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			s.logger.Warn("ingest.fs.stat_failed", "path", filepath.Join(dir, e.Name()), "error", err)
			continue
		}
		refs = append(refs, FileRef{
			Category: c,
			Name:     e.Name(),
			Location: filepath.Join(dir, e.Name()),
			Size:     info.Size(),
			ModTime:  info.ModTime().UTC(),
		})
	}
	sortRefs(refs)
	return refs, nil
}

func (s *FSSource) Open(_ context.Context, ref FileRef) (io.ReadCloser, error) {
	f, err := os.Open(ref.Location)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ref.Location, err)
	}
	return f, nil
}

// Put writes r to the category directory through a temp file and rename, so
// a concurrent List never sees a partial file.
func (s *FSSource) Put(_ context.Context, c constants.Category, name string, r io.Reader) (FileRef, error) {
	dir, err := s.dir(c)
	if err != nil {
		return FileRef{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return FileRef{}, fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return FileRef{}, fmt.Errorf("create temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return FileRef{}, fmt.Errorf("write %s: %w", name, err)
	}

	dst := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return FileRef{}, fmt.Errorf("place %s: %w", name, err)
	}
	info, err := os.Stat(dst)
	if err != nil {
		return FileRef{}, fmt.Errorf("stat %s: %w", dst, err)
	}
	return FileRef{Category: c, Name: name, Location: dst, Size: n, ModTime: info.ModTime().UTC()}, nil
}
