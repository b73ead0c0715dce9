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
	"github.com/openrota/openrota/core/conflict"
	"github.com/openrota/openrota/core/schedctx"
)

var proposeRemedies bool

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Scan the committed schedule for conflicts",
	RunE:  runConflicts,
}

func init() {
	conflictsCmd.Flags().StringVarP(&rosterPath, "roster", "r", "", "planning document (json or yaml)")
	conflictsCmd.Flags().BoolVarP(&proposeRemedies, "propose", "p", false, "include ranked remediation candidates")
	_ = conflictsCmd.MarkFlagRequired("roster")
	rootCmd.AddCommand(conflictsCmd)
}

type conflictLine struct {
	Kind     string   `json:"kind"`
	Severity string   `json:"severity"`
	Date     string   `json:"date,omitempty"`
	Rotation string   `json:"rotation,omitempty"`
	People   []string `json:"people,omitempty"`
	Message  string   `json:"message"`
}

type remedyLine struct {
	Action      string  `json:"action"`
	Replacement string  `json:"replacement,omitempty"`
	Score       float64 `json:"score"`
	Rationale   string  `json:"rationale"`
}

type conflictsOutput struct {
	Conflicts   []conflictLine `json:"conflicts"`
	Resolutions [][]remedyLine `json:"resolutions,omitempty"`
}

func runConflicts(cmd *cobra.Command, args []string) error {
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

	conflicts, err := svc.Engine.DetectConflicts(ctx, sctx)
	if err != nil {
		return err
	}

	out := conflictsOutput{Conflicts: []conflictLine{}}
	for _, c := range conflicts {
		line := conflictLine{
			Kind:     c.Kind.String(),
			Severity: c.Severity.String(),
			Rotation: c.Rotation,
			Message:  c.Message,
		}
		if !c.Date.IsZero() {
			line.Date = c.Date.Format("2006-01-02")
		}
		for _, pid := range c.PersonIDs {
			if p, ok := sctx.Person(pid); ok {
				line.People = append(line.People, p.Name)
			}
		}
		out.Conflicts = append(out.Conflicts, line)
	}

	if proposeRemedies && len(conflicts) > 0 {
		resolutions, err := svc.Engine.ProposeResolutions(ctx, sctx, conflicts)
		if err != nil {
			return err
		}
		out.Resolutions = toRemedyLines(sctx, resolutions)
	}
	return printJSON(cmd, out)
}

func toRemedyLines(sctx *schedctx.Context, resolutions []conflict.Resolution) [][]remedyLine {
	var out [][]remedyLine
	for _, res := range resolutions {
		var lines []remedyLine
		for _, r := range res.Remedies {
			line := remedyLine{
				Action:    r.Action,
				Score:     r.Score,
				Rationale: r.Rationale,
			}
			if p, ok := sctx.Person(r.ReplacementID); ok {
				line.Replacement = p.Name
			}
			lines = append(lines, line)
		}
		out = append(out, lines)
	}
	return out
}
