package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"quiz-analytics/internal/config"
	"quiz-analytics/internal/domain"
)

// NewReportCmd prints one consolidated report and exits.
func NewReportCmd(configPath *string) *cobra.Command {
	var (
		format     string
		sqlitePath string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build the dashboard report once and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if sqlitePath != "" {
				cfg.Postgres.URL = ""
				cfg.SQLite.Path = sqlitePath
			}
			return runReport(cmd.Context(), cfg, format, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	cmd.Flags().StringVar(&sqlitePath, "sqlite", "", "read the snapshot from this SQLite file")
	return cmd
}

func runReport(ctx context.Context, cfg config.Config, format string, out io.Writer) error {
	if format != "json" && format != "yaml" {
		return fmt.Errorf("unknown format %q", format)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	st, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	report, err := st.service.Report(ctx)
	if err != nil {
		return err
	}
	return writeReport(out, report, format)
}

func writeReport(out io.Writer, report domain.Report, format string) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	// Round-trip through JSON so YAML keys match the API field names.
	raw, err := json.Marshal(report)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
