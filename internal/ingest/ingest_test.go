package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/datalake-etl/constants"
	"github.com/joseph-ayodele/datalake-etl/internal/common"
)

func newFS(t *testing.T) (*FSSource, string) {
	t.Helper()
	root := t.TempDir()
	dirs := map[constants.Category]string{}
	for c, d := range constants.DefaultDirs {
		dirs[c] = filepath.Join(root, d)
	}
	s := NewFSSource(dirs, nil)
	require.NoError(t, s.EnsureDirs())
	return s, root
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestFSSourceList(t *testing.T) {
	s, root := newFS(t)
	csvDir := filepath.Join(root, "csv")
	write(t, filepath.Join(csvDir, "b.csv"), "x")
	write(t, filepath.Join(csvDir, "a.CSV"), "x")
	write(t, filepath.Join(csvDir, "c.xlsx"), "x")
	write(t, filepath.Join(csvDir, ".hidden.csv"), "x")
	write(t, filepath.Join(csvDir, "notes.txt"), "x")
	require.NoError(t, os.Mkdir(filepath.Join(csvDir, "nested.csv"), 0o755))

	refs, err := s.List(context.Background(), constants.CategoryTable)
	require.NoError(t, err)
	names := make([]string, 0, len(refs))
	for _, r := range refs {
		names = append(names, r.Name)
		assert.Equal(t, constants.CategoryTable, r.Category)
	}
	assert.Equal(t, []string{"a.CSV", "b.csv", "c.xlsx"}, names)
}

func TestFSSourceListMissingDir(t *testing.T) {
	s := NewFSSource(map[constants.Category]string{constants.CategoryText: filepath.Join(t.TempDir(), "absent")}, nil)
	_, err := s.List(context.Background(), constants.CategoryText)
	assert.ErrorIs(t, err, common.ErrUnavailable)

	_, err = s.List(context.Background(), constants.CategoryDocument)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestFSSourcePutOpen(t *testing.T) {
	s, root := newFS(t)
	ref, err := s.Put(context.Background(), constants.CategoryText, "log.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "txt", "log.txt"), ref.Location)
	assert.Equal(t, int64(5), ref.Size)

	rc, err := s.Open(context.Background(), ref)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	entries, err := os.ReadDir(filepath.Join(root, "txt"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file removed")
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
		err      bool
	}{
		{in: "returns.csv", want: "returns.csv"},
		{in: "../../etc/passwd.txt", want: "passwd.txt"},
		{in: `C:\Users\me\doc.pdf`, want: "doc.pdf"},
		{in: "  ", err: true},
		{in: "..", err: true},
		{in: "dir/", want: "dir"},
		{in: ".x.csv", err: true},
		{in: "uploads/.hidden.txt", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := SanitizeName(tt.in)
			if tt.err {
				assert.ErrorIs(t, err, ErrInvalidName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUploaderRoutesByExtension(t *testing.T) {
	s, root := newFS(t)
	calls := 0
	u := NewUploader(s, nil, func() { calls++ })

	ref, err := u.Upload(context.Background(), "../evil/report.PDF", strings.NewReader("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, constants.CategoryDocument, ref.Category)
	assert.FileExists(t, filepath.Join(root, "pdf", "report.PDF"))
	assert.Equal(t, 1, calls)

	_, err = u.Upload(context.Background(), "image.png", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedExtension)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = u.Upload(context.Background(), "", strings.NewReader("x"))
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = u.Upload(context.Background(), ".x.csv", strings.NewReader("Purchase_ID,Total_Amount\n"))
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.NoFileExists(t, filepath.Join(root, "csv", ".x.csv"))

	_, err = u.Upload(context.Background(), strings.Repeat("a", 300)+".csv", strings.NewReader("x"))
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Equal(t, 1, calls)
}

type fakeS3 struct {
	pages   []*s3.ListObjectsV2Output
	calls   int
	objects map[string][]byte
	listErr error
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.calls > 0 && aws.ToString(in.ContinuationToken) == "" {
		return nil, errors.New("missing continuation token")
	}
	out := f.pages[f.calls]
	f.calls++
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("no such key")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func object(key string, size int64) types.Object {
	return types.Object{Key: aws.String(key), Size: aws.Int64(size), LastModified: aws.Time(time.Unix(0, 0))}
}

func TestS3SourceListPaginates(t *testing.T) {
	fake := &fakeS3{pages: []*s3.ListObjectsV2Output{
		{
			Contents:              []types.Object{object("lake/csv/b.csv", 3), object("lake/csv/sub/x.csv", 1)},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("next"),
		},
		{
			Contents:    []types.Object{object("lake/csv/a.csv", 2), object("lake/csv/readme.md", 1)},
			IsTruncated: aws.Bool(false),
		},
	}}
	src := NewS3SourceWithClient(fake, "bucket", DefaultPrefixes("lake"), nil)

	refs, err := src.List(context.Background(), constants.CategoryTable)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "a.csv", refs[0].Name)
	assert.Equal(t, "lake/csv/a.csv", refs[0].Location)
	assert.Equal(t, int64(2), refs[0].Size)
	assert.Equal(t, "s3://bucket/lake/csv", src.Location(constants.CategoryTable))
}

func TestS3SourceListFailure(t *testing.T) {
	src := NewS3SourceWithClient(&fakeS3{listErr: errors.New("denied")}, "bucket", DefaultPrefixes(""), nil)
	_, err := src.List(context.Background(), constants.CategoryText)
	assert.ErrorIs(t, err, common.ErrUnavailable)
}

func TestS3SourcePutOpen(t *testing.T) {
	fake := &fakeS3{}
	src := NewS3SourceWithClient(fake, "bucket", DefaultPrefixes(""), nil)

	ref, err := src.Put(context.Background(), constants.CategoryText, "log.txt", strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, "txt/log.txt", ref.Location)

	rc, err := src.Open(context.Background(), ref)
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "abc", string(b))
}

func TestWatcherBatchesLandingFiles(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := StartWatcher(ctx, WatchConfig{Dirs: []string{dir}, Debounce: 50 * time.Millisecond})
	require.NoError(t, err)

	write(t, filepath.Join(dir, "ignored.png"), "x")
	write(t, filepath.Join(dir, "a.csv"), "x")
	write(t, filepath.Join(dir, "a.csv"), "xy")

	select {
	case batch := <-events:
		assert.Equal(t, []string{filepath.Join(dir, "a.csv")}, batch)
	case <-time.After(5 * time.Second):
		t.Fatal("no watcher batch")
	}

	cancel()
	for range events {
	}
}

func TestWatcherRequiresDirs(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{})
	assert.Error(t, err)
}
