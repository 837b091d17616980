package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/datalake-etl/internal/common"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func landing(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("DATALAKE_LANDING_ROOT", root)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "csv"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "csv", "p.csv"),
		[]byte("Purchase_ID,Purchase_Date,Total_Amount\nP0002,2024-01-02,30\nP0001,2024-01-01,10\n"), 0o600))
	return root
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(common.ErrInvalidInput))
	assert.Equal(t, 2, exitCode(common.NewAppError("CONFIG_ERROR", "bad", common.ErrInvalidInput)))
	assert.Equal(t, 1, exitCode(common.ErrDatabase))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}

func TestCommandTree(t *testing.T) {
	cmd := newRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"extract", "stats", "summary", "load", "upload", "export"} {
		assert.Contains(t, names, want)
	}
}

func TestStats(t *testing.T) {
	landing(t)
	out, err := execute(t, "stats", "--dataset", "purchases")
	require.NoError(t, err)

	var stats struct {
		TotalCount     int     `json:"total_count"`
		AverageMeasure float64 `json:"average_measure"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 2, stats.TotalCount)
	assert.Equal(t, 20.0, stats.AverageMeasure)
}

func TestSummaryToStdout(t *testing.T) {
	landing(t)
	out, err := execute(t, "summary")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Purchase_ID,Purchase_Date,Total_Amount,Source_File", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "P0001,"))
}

func TestLoadInMemory(t *testing.T) {
	landing(t)
	out, err := execute(t, "load", "--inmem")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, float64(2), got["rows"])
	assert.NotEmpty(t, got["batch_id"])
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	landing(t)
	t.Setenv("DATALAKE_DB_URL", "")
	_, err := execute(t, "load")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestUnknownDataset(t *testing.T) {
	landing(t)
	_, err := execute(t, "stats", "--dataset", "orders")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	assert.Equal(t, 2, exitCode(err))
}

func TestExtractRejectsUnknownCategory(t *testing.T) {
	landing(t)
	_, err := execute(t, "extract", "--categories", "images")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestUploadAndExport(t *testing.T) {
	root := landing(t)
	src := filepath.Join(t.TempDir(), "r.txt")
	require.NoError(t, os.WriteFile(src, []byte("date territory product qty\n1/15/2024 T1 P9 3\n"), 0o600))

	_, err := execute(t, "upload", src)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "txt", "r.txt"))

	book := filepath.Join(t.TempDir(), "returns.xlsx")
	_, err = execute(t, "export", "--dataset", "returns", "--out", book)
	require.NoError(t, err)
	assert.FileExists(t, book)
}
