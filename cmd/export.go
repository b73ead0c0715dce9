package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openrota/openrota/app"
	"github.com/openrota/openrota/config"
	"github.com/openrota/openrota/core/schedctx"
	"github.com/openrota/openrota/pkg/export"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the committed schedule for a roster's date range",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&rosterPath, "roster", "r", "", "planning document (json or yaml)")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format: csv or json")
	_ = exportCmd.MarkFlagRequired("roster")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	in, err := schedctx.LoadInputFile(rosterPath)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	sctx, err := schedctx.Build(in)
	if err != nil {
		return err
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	blocks := sctx.Blocks()
	var start, end time.Time
	if len(blocks) > 0 {
		start, end = blocks[0].Date, blocks[len(blocks)-1].Date
	}
	assignments, err := svc.Store.AssignmentsInRange(ctx, start, end, false)
	if err != nil {
		return err
	}
	rows := export.Rows(sctx, assignments)

	switch exportFormat {
	case "csv":
		return export.WriteCSV(cmd.OutOrStdout(), rows)
	case "json":
		return export.WriteJSON(cmd.OutOrStdout(), rows)
	default:
		return fmt.Errorf("unknown export format %q", exportFormat)
	}
}
