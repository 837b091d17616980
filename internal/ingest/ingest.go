package ingest

import (
	"context"
	"errors"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joseph-ayodele/datalake-etl/constants"
)

var (
	// ErrUnsupportedExtension marks a file whose extension maps to no landing category.
	ErrUnsupportedExtension = errors.New("unsupported file extension")
	// ErrInvalidName marks an empty or unusable file name.
	ErrInvalidName = errors.New("invalid file name")
)

// FileRef identifies one file in a landing category.
type FileRef struct {
	Category constants.Category
	// Name is the basename, used as record provenance.
	Name string
	// Location is the backend path or object key.
	Location string
	Size     int64
	ModTime  time.Time
}

// Source is a landing area split into logical categories.
type Source interface {
	// Location describes where a category lives, for reports.
	Location(c constants.Category) string
	// List returns the category's files in name order, hidden files and
	// foreign extensions excluded. An error means the location could not be enumerated.
	List(ctx context.Context, c constants.Category) ([]FileRef, error)
	Open(ctx context.Context, ref FileRef) (io.ReadCloser, error)
	Put(ctx context.Context, c constants.Category, name string, r io.Reader) (FileRef, error)
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(p string) bool {
	return strings.HasPrefix(filepath.Base(p), ".")
}

// SanitizeName reduces a client-supplied file name to its basename. Hidden
// names are rejected since listings skip them.
func SanitizeName(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	base := path.Base(name)
	if name == "" || base == "." || base == "/" || base == ".." || IsHidden(base) {
		return "", ErrInvalidName
	}
	return base, nil
}

// keep applies the listing rules shared by every backend.
func keep(c constants.Category, name string) bool {
	return name != "" && !IsHidden(name) && c.Accepts(name)
}

func sortRefs(refs []FileRef) {
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
}

// objectKey joins a category prefix and a basename into an object key.
func objectKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// DefaultPrefixes returns the per-category key prefixes under root.
func DefaultPrefixes(root string) map[constants.Category]string {
	out := make(map[constants.Category]string, len(constants.DefaultDirs))
	for c, dir := range constants.DefaultDirs {
		out[c] = objectKey(root, dir)
	}
	return out
}
