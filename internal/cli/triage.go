package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opendataloader-project/beneissue/internal/graph"
)

var triageCmd = &cobra.Command{
	Use:   "triage <repo>",
	Short: "Classify an issue (no GitHub actions)",
	Args:  cobra.ExactArgs(1),
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
		fmt.Fprintf(w, "Triaging issue #%d in %s...\n", issue, repo)

		s, err := rt.run(cmd, graph.KindTriage, initialState(repo, issue, string(graph.KindTriage)), false)
		if err != nil {
			return err
		}
		if limitNotice(w, s) {
			return nil
		}
		printTriage(w, s)
		printLabels(w, "Labels to add", s)
		printUsage(w, s)
		return nil
	},
}

func init() {
	addIssueFlag(triageCmd)
}
