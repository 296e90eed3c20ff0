package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/user/stratwatch/internal/evalview"
	"github.com/user/stratwatch/internal/state"
	"github.com/user/stratwatch/internal/types"
	"github.com/user/stratwatch/internal/usage"
	"github.com/user/stratwatch/pkg/workflow"
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().Bool("eval", false, "show the saved evaluation result")
	replayCmd.Flags().Bool("usage", false, "show estimated token usage per agent")
}

var replayCmd = &cobra.Command{
	Use:   "replay <session-id>",
	Short: "Infer phase progress from a recorded session log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		events := state.NewEventStore(cfg.DataDir)
		sessionID := types.SessionID(args[0])
		showEval, _ := cmd.Flags().GetBool("eval")
		showUsage, _ := cmd.Flags().GetBool("usage")

		ctx := context.Background()
		stored, err := events.Tail(ctx, sessionID, 10000)
		if err != nil {
			return fmt.Errorf("read events: %w", err)
		}
		if len(stored) == 0 {
			return fmt.Errorf("no events recorded for session %s", sessionID)
		}

		log := make([]workflow.Event, 0, len(stored))
		for _, e := range stored {
			log = append(log, e.Workflow())
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PHASE\tSTATUS")
		for _, p := range workflow.Infer(log, workflow.DefaultPipeline()) {
			fmt.Fprintf(w, "%s\t%s %s\n", p.Label, statusGlyphs[p.Status], p.Status)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		switch {
		case workflow.Failed(log):
			fmt.Printf("\n%d events, session failed\n", len(stored))
		case workflow.Complete(log):
			fmt.Printf("\n%d events, session complete\n", len(stored))
		default:
			fmt.Printf("\n%d events, session still in progress\n", len(stored))
		}

		if showEval {
			if err := printEvaluation(ctx, cfg.DataDir, sessionID); err != nil {
				return err
			}
		}
		if showUsage {
			if err := printUsage(cfg.Usage.Model, sessionID, stored); err != nil {
				return err
			}
		}
		return nil
	},
}

func printEvaluation(ctx context.Context, dataDir string, sessionID types.SessionID) error {
	strategies := state.NewStrategyStore(dataDir)
	artifact, err := strategies.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load strategy: %w", err)
	}
	if artifact.Evaluation == nil {
		fmt.Println("\nNo evaluation recorded.")
		return nil
	}

	view := evalview.New(artifact.Evaluation)
	overall := view.Overall()
	verdict := "passed"
	if !overall.Passed {
		verdict = "failed"
	}
	fmt.Printf("\nEvaluation: %s (average score %.2f, %d/%d evaluators passed)\n",
		verdict, overall.AverageScore, len(overall.PassedEvaluators),
		len(overall.PassedEvaluators)+len(overall.FailedEvaluators))
	printItems("errors", overall.Errors)
	printItems("warnings", overall.Warnings)

	for _, ev := range view.Evaluators() {
		verdict = "passed"
		if !ev.Passed {
			verdict = "failed"
		}
		if ev.Score != nil {
			fmt.Printf("  %s: %s (%.2f)\n", ev.Name, verdict, *ev.Score)
		} else {
			fmt.Printf("  %s: %s\n", ev.Name, verdict)
		}
	}
	return nil
}

func printItems(kind string, list evalview.ItemList) {
	if len(list.Items) == 0 {
		return
	}
	fmt.Printf("  %s:\n", kind)
	for _, item := range list.Items {
		fmt.Printf("    - %s\n", item)
	}
	if label := list.Label(); label != "" {
		fmt.Printf("    %s\n", label)
	}
}

func printUsage(model string, sessionID types.SessionID, events []*types.Event) error {
	estimator, err := usage.New(model)
	if err != nil {
		return fmt.Errorf("load token encoding: %w", err)
	}
	report := estimator.Estimate(sessionID, events)
	fmt.Printf("\nEstimated tokens: %d over %d events\n", report.Total, report.Events)
	for _, agent := range report.TopAgents() {
		fmt.Printf("  %s: %d\n", agent, report.ByAgent[agent])
	}
	return nil
}
