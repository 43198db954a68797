package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opendataloader-project/beneissue/internal/checkpoint"
	"github.com/opendataloader-project/beneissue/internal/graph"
	"github.com/opendataloader-project/beneissue/internal/state"
)

var fixCmd = &cobra.Command{
	Use:   "fix <repo>",
	Short: "Attempt to automatically fix an issue",
	Long: `Approves and runs the fix for an issue. An issue already analysed as
auto_eligible goes straight to the fix node; anything else is triaged and
analysed first and fixed only if eligible.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, issue, err := parseTarget(cmd, args)
		if err != nil {
			return err
		}

		rt, cleanup, err := newRuntime(cmd, runtimeOpts{model: true})
		if err != nil {
			return err
		}
		defer cleanup()

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Attempting to fix issue #%d in %s...\n", issue, repo)

		in := initialState(repo, issue, graph.CommandFix)
		kind, err := fixKind(cmd.Context(), rt.store, in.Key())
		if err != nil {
			return err
		}
		if kind == graph.KindFix {
			fmt.Fprintln(w, "This will: fix (approved analysis) → apply labels")
		} else {
			fmt.Fprintln(w, "This will: triage → analyze → fix (if eligible) → apply labels")
		}

		s, err := rt.run(cmd, kind, in, false)
		if err != nil {
			return err
		}
		if limitNotice(w, s) {
			return nil
		}

		if kind == graph.KindFull {
			printTriage(w, s)
			if s.TriageDecision != state.TriageValid {
				fmt.Fprintln(w, "\nIssue not eligible for fix.")
				return nil
			}
			printAnalysis(w, s)
		}
		printFix(w, s)
		if s.FixSuccess == nil && s.FixDecision != state.FixAutoEligible {
			fmt.Fprintln(w, "\nIssue not eligible for auto-fix.")
			fmt.Fprintf(w, "Score: %s\n", scoreText(s))
		}
		printLabels(w, "Labels", s)
		printUsage(w, s)
		return nil
	},
}

// fixKind picks the fix pipeline when the thread already holds an
// auto_eligible analysis, otherwise the full pipeline.
func fixKind(ctx context.Context, store checkpoint.Store, threadID string) (graph.Kind, error) {
	cp, err := store.Get(ctx, threadID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return graph.KindFull, nil
	}
	if err != nil {
		return "", fmt.Errorf("load checkpoint %s: %w", threadID, err)
	}
	if cp.State.FixDecision == state.FixAutoEligible {
		return graph.KindFix, nil
	}
	return graph.KindFull, nil
}

func init() {
	addIssueFlag(fixCmd)
}
