package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opendataloader-project/beneissue/internal/graph"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <repo>",
	Short: "Triage and analyse an issue, then comment and label it",
	Long: `Runs intake, triage and analysis. Issues that are eligible for an automated
fix are held for approval: run "beneissue fix" to go ahead.

With --dry-run the same graph is walked but no labels or comments are
written and no checkpoint is kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, issue, err := parseTarget(cmd, args)
		if err != nil {
			return err
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		rt, cleanup, err := newRuntime(cmd, runtimeOpts{model: true})
		if err != nil {
			return err
		}
		defer cleanup()

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Analyzing issue #%d in %s...\n", issue, repo)

		s, err := rt.run(cmd, graph.KindAnalyze, initialState(repo, issue, string(graph.KindAnalyze)), dryRun)
		if err != nil {
			return err
		}
		if limitNotice(w, s) {
			return nil
		}
		printTriage(w, s)
		printAnalysis(w, s)
		printUsage(w, s)

		if dryRun {
			printLabels(w, "Labels to add", s)
			fmt.Fprintln(w, "\n[DRY RUN] No actions taken on GitHub.")
			return nil
		}
		printLabels(w, "Labels applied", s)
		fmt.Fprintln(w, "Actions completed on GitHub.")
		return nil
	},
}

func init() {
	addIssueFlag(analyzeCmd)
	analyzeCmd.Flags().BoolP("dry-run", "n", false, "don't apply labels or post comments")
}
