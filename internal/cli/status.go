package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/opendataloader-project/beneissue/internal/artifact"
	"github.com/opendataloader-project/beneissue/internal/checkpoint"
	"github.com/opendataloader-project/beneissue/internal/db"
	"github.com/opendataloader-project/beneissue/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status <repo>",
	Short: "Show (or clear) the saved checkpoint for an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, issue, err := parseTarget(cmd, args)
		if err != nil {
			return err
		}

		rt, cleanup, err := newRuntime(cmd, runtimeOpts{})
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := cmd.Context()
		w := cmd.OutOrStdout()
		key := state.Key(repo, issue)
		if wipe, _ := cmd.Flags().GetBool("clear"); wipe {
			if err := rt.store.Delete(ctx, key); err != nil {
				return err
			}
			fmt.Fprintf(w, "Checkpoint for %s cleared.\n", key)
			return nil
		}
		cp, err := rt.store.Get(ctx, key)
		if errors.Is(err, checkpoint.ErrNotFound) {
			fmt.Fprintf(w, "No checkpoint for %s.\n", key)
			return nil
		}
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, _ := json.MarshalIndent(cp, "", "  ")
			fmt.Fprintln(w, string(data))
			return nil
		}
		printCheckpoint(w, cp)

		if rt.db != nil {
			runs, err := rt.db.ListRuns(ctx, repo, issue)
			if err != nil {
				return err
			}
			printRuns(w, runs)

			today := time.Now().UTC().Truncate(24 * time.Hour)
			n, err := rt.db.CountRunsSince(ctx, repo, "", today)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "\nRuns in %s today (UTC): %d\n", repo, n)
		}

		if show, _ := cmd.Flags().GetBool("transcripts"); show && rt.transcripts != nil {
			keys, err := rt.transcripts.List(ctx, artifact.TranscriptPrefix(repo, issue))
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "\nTranscripts:")
			for _, k := range keys {
				fmt.Fprintf(w, "  %s\n", k)
			}
		}
		return nil
	},
}

func printCheckpoint(w io.Writer, cp *checkpoint.Checkpoint) {
	next := cp.Next
	if cp.Completed {
		next = "(completed)"
	}
	fmt.Fprintf(w, "Thread:    %s\n", cp.ThreadID)
	fmt.Fprintf(w, "Pipeline:  %s\n", cp.Pipeline)
	fmt.Fprintf(w, "Next:      %s\n", next)
	fmt.Fprintf(w, "Updated:   %s\n", cp.UpdatedAt.Format("2006-01-02 15:04:05 MST"))

	s := cp.State
	if s.IssueTitle != "" {
		fmt.Fprintf(w, "Title:     %s\n", s.IssueTitle)
	}
	if s.TriageDecision != "" {
		printTriage(w, s)
	}
	printAnalysis(w, s)
	printFix(w, s)
	if len(s.LabelsToAdd) > 0 {
		printLabels(w, "Labels", s)
	}
	printUsage(w, s)
}

func printRuns(w io.Writer, runs []db.WorkflowRun) {
	if len(runs) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%-20s %-8s %-10s %-16s %-6s %s\n", "STARTED", "TYPE", "TRIAGE", "FIX", "SCORE", "PR")
	fmt.Fprintf(w, "%-20s %-8s %-10s %-16s %-6s %s\n",
		strings.Repeat("-", 20),
		strings.Repeat("-", 8),
		strings.Repeat("-", 10),
		strings.Repeat("-", 16),
		strings.Repeat("-", 6),
		strings.Repeat("-", 2))
	for _, r := range runs {
		score := "-"
		if r.Score != nil {
			score = fmt.Sprintf("%d", *r.Score)
		}
		fmt.Fprintf(w, "%-20s %-8s %-10s %-16s %-6s %s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.WorkflowType,
			deref(r.TriageDecision), deref(r.FixDecision), score, deref(r.PRURL))
	}
}

func deref(p *string) string {
	if p == nil {
		return "-"
	}
	return *p
}

func init() {
	addIssueFlag(statusCmd)
	statusCmd.Flags().String("format", "text", "Output format: text or json")
	statusCmd.Flags().Bool("transcripts", false, "list stored agent transcripts")
	statusCmd.Flags().Bool("clear", false, "delete the checkpoint so the next run starts fresh")
}
