package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openrota/openrota/app"
	"github.com/openrota/openrota/config"
	"github.com/openrota/openrota/core/model"
	"github.com/openrota/openrota/core/schedctx"
	"github.com/openrota/openrota/core/solver"
)

var (
	rosterPath string
	solveActor string
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve a roster and commit the schedule",
	RunE:  runSolve,
}

func init() {
	solveCmd.Flags().StringVarP(&rosterPath, "roster", "r", "", "planning document (json or yaml)")
	solveCmd.Flags().StringVarP(&solveActor, "actor", "a", "cli", "actor recorded on the run")
	_ = solveCmd.MarkFlagRequired("roster")
	rootCmd.AddCommand(solveCmd)
}

type solveOutput struct {
	RunID       string           `json:"run_id"`
	Status      string           `json:"status"`
	Algorithm   string           `json:"algorithm"`
	Score       float64          `json:"score"`
	DurationMS  int64            `json:"duration_ms"`
	Assignments []assignmentLine `json:"assignments"`
	Violations  []violationLine  `json:"violations,omitempty"`
}

type violationLine struct {
	Kind         string `json:"kind"`
	Severity     string `json:"severity"`
	Person       string `json:"person,omitempty"`
	Date         string `json:"date,omitempty"`
	Message      string `json:"message"`
	Acknowledged bool   `json:"acknowledged,omitempty"`
}

func toViolationLines(sctx *schedctx.Context, violations []model.Violation) []violationLine {
	var out []violationLine
	for _, v := range violations {
		line := violationLine{
			Kind:         string(v.Kind),
			Severity:     v.Severity.String(),
			Message:      v.Message,
			Acknowledged: v.Acknowledged,
		}
		if p, ok := sctx.Person(v.PersonID); ok {
			line.Person = p.Name
		}
		if !v.Date.IsZero() {
			line.Date = v.Date.Format("2006-01-02")
		}
		out = append(out, line)
	}
	return out
}

type assignmentLine struct {
	Person   string  `json:"person"`
	Date     string  `json:"date"`
	Half     string  `json:"half"`
	Role     string  `json:"role"`
	Rotation string  `json:"rotation"`
	Score    float64 `json:"score"`
}

func runSolve(cmd *cobra.Command, args []string) error {
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
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	res, run, err := svc.Engine.Solve(ctx, in, solveActor, svc.SolveTimeout())
	if err != nil {
		var infeasible *solver.InfeasibleError
		if errors.As(err, &infeasible) {
			return fmt.Errorf("no feasible schedule: %v", infeasible)
		}
		return err
	}

	sctx, err := schedctx.Build(in)
	if err != nil {
		return err
	}
	out := solveOutput{
		RunID:      run.ID.String(),
		Status:     run.Status.String(),
		Algorithm:  run.Algorithm,
		Score:      run.Score,
		DurationMS: res.Duration.Milliseconds(),
		Violations: toViolationLines(sctx, res.Violations),
	}
	for _, a := range append(res.Assignments, res.CallAssignments...) {
		line := assignmentLine{
			Role:     a.Role.String(),
			Rotation: a.Rotation,
			Score:    a.Score,
		}
		if p, ok := sctx.Person(a.PersonID); ok {
			line.Person = p.Name
		}
		if b, ok := sctx.Block(a.BlockID); ok {
			line.Date = b.Date.Format("2006-01-02")
			line.Half = b.Half.String()
		}
		out.Assignments = append(out.Assignments, line)
	}
	return printJSON(cmd, out)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
