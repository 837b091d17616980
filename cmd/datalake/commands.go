package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/datalake-etl/constants"
	"github.com/joseph-ayodele/datalake-etl/internal/app"
	"github.com/joseph-ayodele/datalake-etl/internal/common"
	"github.com/joseph-ayodele/datalake-etl/internal/entity"
	"github.com/joseph-ayodele/datalake-etl/internal/ingest"
)

type extractCmd struct {
	root       *rootOptions
	categories []string
	normalized bool
}

func newExtractCmd(root *rootOptions) *cobra.Command {
	ec := &extractCmd{root: root}
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract and normalize records from the landing area",
		Args:  cobra.NoArgs,
		RunE:  ec.run,
	}
	cmd.Flags().StringSliceVar(&ec.categories, "categories", nil, "Categories or extensions to extract (default: all)")
	cmd.Flags().BoolVar(&ec.normalized, "normalized", false, "Print records in the dataset-neutral form")
	return cmd
}

func (ec *extractCmd) run(cmd *cobra.Command, _ []string) error {
	var cats []constants.Category
	for _, s := range ec.categories {
		c, ok := constants.ParseCategory(s)
		if !ok {
			return fmt.Errorf("%w: unknown category %q", common.ErrInvalidInput, s)
		}
		cats = append(cats, c)
	}

	a, svc, err := ec.root.open(cmd, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	res, err := a.Extractors[svc.Dataset()].Extract(cmd.Context(), cats...)
	if err != nil {
		return err
	}
	if ec.normalized {
		return printJSON(cmd.OutOrStdout(), struct {
			RunID   string                    `json:"run_id"`
			Dataset constants.Dataset         `json:"dataset"`
			Records []entity.NormalizedRecord `json:"records"`
			Files   []entity.FileReport       `json:"files"`
		}{res.RunID, res.Dataset, res.Normalized(), res.Files})
	}
	return printJSON(cmd.OutOrStdout(), res)
}

type statsCmd struct {
	root    *rootOptions
	refresh bool
}

func newStatsCmd(root *rootOptions) *cobra.Command {
	sc := &statsCmd{root: root}
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print aggregate statistics of the dataset",
		Args:  cobra.NoArgs,
		RunE:  sc.run,
	}
	cmd.Flags().BoolVar(&sc.refresh, "refresh", false, "Ignore any cached extraction")
	return cmd
}

func (sc *statsCmd) run(cmd *cobra.Command, _ []string) error {
	a, svc, err := sc.root.open(cmd, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	stats, err := svc.Statistics(cmd.Context(), sc.refresh)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), stats)
}

type summaryCmd struct {
	root *rootOptions
	out  string
}

func newSummaryCmd(root *rootOptions) *cobra.Command {
	sc := &summaryCmd{root: root}
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Write the summary CSV of the dataset",
		Args:  cobra.NoArgs,
		RunE:  sc.run,
	}
	cmd.Flags().StringVarP(&sc.out, "out", "o", "", "Directory to save the summary file in (default: stdout)")
	return cmd
}

func (sc *summaryCmd) run(cmd *cobra.Command, _ []string) error {
	a, svc, err := sc.root.open(cmd, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	if sc.out == "" {
		return svc.WriteSummary(cmd.Context(), cmd.OutOrStdout())
	}
	path, err := svc.SaveSummary(cmd.Context(), sc.out)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

type loadCmd struct {
	root    *rootOptions
	refresh bool
}

func newLoadCmd(root *rootOptions) *cobra.Command {
	lc := &loadCmd{root: root}
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Append the extracted records to the database",
		Args:  cobra.NoArgs,
		RunE:  lc.run,
	}
	cmd.Flags().BoolVar(&lc.refresh, "refresh", false, "Ignore any cached extraction")
	return cmd
}

func (lc *loadCmd) run(cmd *cobra.Command, _ []string) error {
	a, svc, err := lc.root.open(cmd, app.Options{Database: true})
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	res, err := svc.List(cmd.Context(), lc.refresh)
	if err != nil {
		return err
	}
	out, err := svc.Save(cmd.Context(), res)
	if err != nil {
		return err
	}
	total, err := a.Loader.Count(cmd.Context(), svc.Dataset(), "")
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]any{
		"run_id":     res.RunID,
		"rows":       out.Rows,
		"batch_id":   out.BatchID,
		"table_rows": total,
	})
}

type uploadCmd struct {
	root *rootOptions
}

func newUploadCmd(root *rootOptions) *cobra.Command {
	uc := &uploadCmd{root: root}
	return &cobra.Command{
		Use:   "upload <file>...",
		Short: "Copy files into the landing area by extension",
		Args:  cobra.MinimumNArgs(1),
		RunE:  uc.run,
	}
}

func (uc *uploadCmd) run(cmd *cobra.Command, args []string) error {
	a, _, err := uc.root.open(cmd, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	type uploaded struct {
		FileName string             `json:"file_name"`
		FilePath string             `json:"file_path"`
		Category constants.Category `json:"category"`
	}
	var out []uploaded
	for _, p := range args {
		ref, err := uc.put(cmd, a, p)
		if err != nil {
			return fmt.Errorf("upload %s: %w", p, err)
		}
		out = append(out, uploaded{FileName: ref.Name, FilePath: ref.Location, Category: ref.Category})
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func (uc *uploadCmd) put(cmd *cobra.Command, a *app.App, path string) (ingest.FileRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return ingest.FileRef{}, err
	}
	defer func() { _ = f.Close() }()
	return a.Uploader.Upload(cmd.Context(), filepath.Base(path), f)
}

type exportCmd struct {
	root *rootOptions
	out  string
}

func newExportCmd(root *rootOptions) *cobra.Command {
	xc := &exportCmd{root: root}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the dataset and its statistics as an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE:  xc.run,
	}
	cmd.Flags().StringVarP(&xc.out, "out", "o", "", "Workbook path (must end in .xlsx)")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func (xc *exportCmd) run(cmd *cobra.Command, _ []string) error {
	if !strings.EqualFold(filepath.Ext(xc.out), ".xlsx") {
		return fmt.Errorf("%w: --out must end in .xlsx", common.ErrInvalidInput)
	}
	a, svc, err := xc.root.open(cmd, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	data, err := svc.Workbook(cmd.Context())
	if err != nil {
		return err
	}
	if err := os.WriteFile(xc.out, data, 0o644); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), xc.out)
	return nil
}
