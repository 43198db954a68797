package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opendataloader-project/beneissue/internal/github"
	"github.com/opendataloader-project/beneissue/internal/state"
)

// addIssueFlag registers the required --issue/-i flag.
func addIssueFlag(cmd *cobra.Command) {
	cmd.Flags().IntP("issue", "i", 0, "issue number")
	_ = cmd.MarkFlagRequired("issue")
}

// parseTarget validates the <repo> argument and the --issue flag.
func parseTarget(cmd *cobra.Command, args []string) (string, int, error) {
	repo := args[0]
	if err := github.ValidateRepo(repo); err != nil {
		return "", 0, err
	}
	issue, err := cmd.Flags().GetInt("issue")
	if err != nil {
		return "", 0, err
	}
	if err := github.ValidateIssueNumber(issue); err != nil {
		return "", 0, err
	}
	return repo, issue, nil
}

// initialState is the input of a run started from the command line.
func initialState(repo string, issue int, command string) state.IssueState {
	s := state.New(repo, issue)
	s.ProjectRoot = projectRoot
	s.Command = command
	return s
}

func printTriage(w io.Writer, s state.IssueState) {
	fmt.Fprintln(w, "\n--- Triage ---")
	fmt.Fprintf(w, "Decision: %s\n", s.TriageDecision)
	fmt.Fprintf(w, "Reason: %s\n", s.TriageReason)
	if s.DuplicateOf > 0 {
		fmt.Fprintf(w, "Duplicate of: #%d\n", s.DuplicateOf)
	}
	if len(s.TriageQuestions) > 0 {
		fmt.Fprintln(w, "Questions:")
		for _, q := range s.TriageQuestions {
			fmt.Fprintf(w, "  - %s\n", q)
		}
	}
}

func printAnalysis(w io.Writer, s state.IssueState) {
	if s.AnalysisSummary == "" {
		return
	}
	fmt.Fprintln(w, "\n--- Analysis ---")
	fmt.Fprintf(w, "Summary: %s\n", s.AnalysisSummary)
	if len(s.AffectedFiles) > 0 {
		fmt.Fprintf(w, "Affected files: %s\n", strings.Join(s.AffectedFiles, ", "))
	}
	if s.FixApproach != "" {
		fmt.Fprintf(w, "Approach: %s\n", s.FixApproach)
	}
	fmt.Fprintf(w, "Score: %s\n", scoreText(s))
	if s.Priority != "" {
		fmt.Fprintf(w, "Priority: %s\n", s.Priority)
	}
	if s.StoryPoints > 0 {
		fmt.Fprintf(w, "Story points: %d\n", s.StoryPoints)
	}
	if s.Assignee != "" {
		fmt.Fprintf(w, "Assignee: %s\n", s.Assignee)
	}
	fmt.Fprintf(w, "Fix decision: %s\n", s.FixDecision)
}

func printFix(w io.Writer, s state.IssueState) {
	if s.FixSuccess == nil {
		return
	}
	fmt.Fprintln(w, "\n--- Fix ---")
	if !*s.FixSuccess {
		msg := s.FixError
		if msg == "" {
			msg = "Unknown error"
		}
		fmt.Fprintf(w, "Fix failed: %s\n", msg)
		return
	}
	fmt.Fprintln(w, "Fix successful!")
	if s.PRURL != "" {
		fmt.Fprintf(w, "PR: %s\n", s.PRURL)
	}
}

func printLabels(w io.Writer, heading string, s state.IssueState) {
	fmt.Fprintf(w, "\n%s: [%s]\n", heading, strings.Join(s.LabelsToAdd, ", "))
}

func printUsage(w io.Writer, s state.IssueState) {
	if s.InputTokens == 0 && s.OutputTokens == 0 {
		return
	}
	fmt.Fprintf(w, "Tokens: %d in, %d out\n", s.InputTokens, s.OutputTokens)
}

func scoreText(s state.IssueState) string {
	if s.Score == nil {
		return "N/A"
	}
	return fmt.Sprintf("%d/100", s.Score.Total)
}

// limitNotice reports a run that stopped at the daily ceiling.
func limitNotice(w io.Writer, s state.IssueState) bool {
	if !s.DailyLimitExceeded {
		return false
	}
	fmt.Fprintf(w, "\nDaily limit reached (%d runs today). Nothing done.\n", s.DailyRunCount)
	return true
}
