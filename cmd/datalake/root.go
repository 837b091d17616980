package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/datalake-etl/constants"
	"github.com/joseph-ayodele/datalake-etl/internal/app"
	"github.com/joseph-ayodele/datalake-etl/internal/common"
	"github.com/joseph-ayodele/datalake-etl/internal/records"
)

type rootOptions struct {
	dataset   string
	root      string
	inmem     bool
	logLevel  string
	logFormat string

	cfg    *common.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "datalake",
		Short:         "Extract, normalize and summarize files from the data lake landing area",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&o.dataset, "dataset", "d", string(constants.DatasetPurchases), "Dataset to work on (returns or purchases)")
	cmd.PersistentFlags().StringVar(&o.root, "root", "", "Landing root directory (overrides DATALAKE_LANDING_ROOT)")
	cmd.PersistentFlags().BoolVar(&o.inmem, "inmem", false, "Use an in-memory SQLite database instead of DATALAKE_DB_URL")
	cmd.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&o.logFormat, "log-format", "", "Log format (text or json)")

	cmd.AddCommand(
		newExtractCmd(o),
		newStatsCmd(o),
		newSummaryCmd(o),
		newLoadCmd(o),
		newUploadCmd(o),
		newExportCmd(o),
	)
	return cmd
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := common.LoadConfig()
	if err != nil {
		return err
	}
	if o.root != "" {
		cfg.Landing.Root = o.root
	}
	if o.inmem {
		cfg.Database.Driver = "sqlite"
		cfg.Database.DSN = ""
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if _, ok := datasetOf(o.dataset); !ok {
		return fmt.Errorf("%w: unknown dataset %q", common.ErrInvalidInput, o.dataset)
	}

	o.cfg = cfg
	o.logger = common.NewLogger(cmd.ErrOrStderr(), cfg.Log.Format, cfg.Log.Level)
	slog.SetDefault(o.logger)
	return nil
}

func datasetOf(s string) (constants.Dataset, bool) {
	switch d := constants.Dataset(s); d {
	case constants.DatasetReturns, constants.DatasetPurchases:
		return d, true
	default:
		return "", false
	}
}

// open wires the application and returns the selected dataset's service.
func (o *rootOptions) open(cmd *cobra.Command, opts app.Options) (*app.App, *records.Service, error) {
	if opts.Database {
		if err := o.cfg.RequireDatabase(); err != nil {
			return nil, nil, err
		}
	}
	a, err := app.New(cmd.Context(), o.cfg, o.logger, opts)
	if err != nil {
		return nil, nil, err
	}
	d, _ := datasetOf(o.dataset)
	svc, err := a.Service(d)
	if err != nil {
		a.Close(cmd.Context())
		return nil, nil, err
	}
	return a, svc, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
