package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/opendataloader-project/beneissue/internal/github"
	"github.com/opendataloader-project/beneissue/internal/labels"
)

var labelsCmd = &cobra.Command{
	Use:   "labels <repo>",
	Short: "Sync the beneissue labels to a repository",
	Long: `Creates missing labels and fixes colors that drifted from the label table.
With --delete-unused, also removes triage/, fix/, sp/ and P* labels that the
table no longer defines.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo := args[0]
		if err := github.ValidateRepo(repo); err != nil {
			return err
		}
		deleteUnused, _ := cmd.Flags().GetBool("delete-unused")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Syncing beneissue labels to %s...\n\n", repo)
		actions, err := labels.Sync(github.NewClient(&github.ExecRunner{}), repo, cfg.LabelTable(), deleteUnused)
		if err != nil {
			return err
		}
		if failed := printSyncActions(w, actions); failed > 0 {
			return fmt.Errorf("%d label(s) could not be synced", failed)
		}
		return nil
	},
}

// printSyncActions writes one line per label and returns the failure count.
func printSyncActions(w io.Writer, actions []labels.SyncAction) int {
	failed := 0
	for _, a := range actions {
		switch a.Op {
		case labels.OpOK:
			fmt.Fprintf(w, "  OK:      %s\n", a.Name)
		case labels.OpCreated:
			fmt.Fprintf(w, "  Created: %s\n", a.Name)
		case labels.OpUpdated:
			fmt.Fprintf(w, "  Updated: %s\n", a.Name)
		case labels.OpDeleted:
			fmt.Fprintf(w, "  Deleted: %s\n", a.Name)
		case labels.OpFailed:
			failed++
			fmt.Fprintf(w, "  Failed:  %s - %v\n", a.Name, a.Err)
		}
	}
	return failed
}

func init() {
	labelsCmd.Flags().Bool("delete-unused", false, "delete beneissue-style labels not in the label table")
}
