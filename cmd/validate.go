package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openrota/openrota/app"
	"github.com/openrota/openrota/config"
	"github.com/openrota/openrota/core/schedctx"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Audit the committed schedule against duty-hour rules",
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&rosterPath, "roster", "r", "", "planning document (json or yaml)")
	_ = validateCmd.MarkFlagRequired("roster")
	rootCmd.AddCommand(validateCmd)
}

type validateOutput struct {
	Valid        bool            `json:"valid"`
	CoverageRate float64         `json:"coverage_rate"`
	Violations   []violationLine `json:"violations,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
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

	report, err := svc.Engine.Validate(ctx, sctx)
	if err != nil {
		return err
	}
	out := validateOutput{
		Valid:        report.Valid,
		CoverageRate: report.CoverageRate,
		Violations:   toViolationLines(sctx, report.Violations),
	}
	if err := printJSON(cmd, out); err != nil {
		return err
	}
	if !report.Valid {
		return fmt.Errorf("schedule has unresolved hard violations")
	}
	return nil
}
