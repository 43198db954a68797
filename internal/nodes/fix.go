package nodes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/opendataloader-project/beneissue/internal/agent"
	"github.com/opendataloader-project/beneissue/internal/extract"
	"github.com/opendataloader-project/beneissue/internal/github"
	"github.com/opendataloader-project/beneissue/internal/labels"
	"github.com/opendataloader-project/beneissue/internal/prompt"
	"github.com/opendataloader-project/beneissue/internal/state"
	"github.com/opendataloader-project/beneissue/internal/workspace"
)

const (
	fixErrorLimit     = 500
	msgCloneFailed    = "Failed to clone repository"
	msgNoChanges      = "No changes were made"
	msgAgentNotFound  = "Claude Code CLI not found. Install with: npm install -g @anthropic-ai/claude-code"
	msgUnknownFailure = "Unknown error"
)

// Fix runs the coding agent with write access in a fresh clone and opens a
// pull request for the result. It never returns an error; failures are
// reported through fix_success and fix_error. Work already committed or
// pushed before a later step fails is left in place.
func (d *Deps) Fix(ctx context.Context, s state.IssueState) (state.Update, error) {
	log := d.logger().With("node", "fix")
	cfg := d.cfg()
	tbl := d.table()

	ws, err := d.Workspaces.Clone(ctx, s.Repo)
	if err != nil {
		log.Error("clone failed", "error", err)
		return fixFailure(s, msgCloneFailed, tbl.FixFailed), nil
	}
	defer ws.Close()

	failed := func(msg string) (state.Update, error) {
		log.Error("fix failed", "error", msg)
		return fixFailure(s, msg, tbl.ForFix(state.FixManualRequired)), nil
	}

	p, err := prompt.LoadAndRender(prompt.Fix, s.ProjectRoot, prompt.Vars{
		"issue_number":     strconv.Itoa(s.IssueNumber),
		"repo":             s.Repo,
		"issue_title":      s.IssueTitle,
		"analysis_summary": orDefault(s.AnalysisSummary, "No analysis available"),
		"affected_files":   bulletList(s.AffectedFiles),
		"fix_approach":     s.FixApproach,
	})
	if err != nil {
		return failed(truncate(err.Error(), fixErrorLimit))
	}

	timeout := cfg.FixTimeout()
	res, err := d.Agent.Run(ctx, agent.Request{
		Prompt:       p,
		Dir:          ws.Dir,
		AllowedTools: agent.ReadWriteTools,
		Timeout:      timeout,
		Model:        cfg.Models.Fix,
	})
	if err != nil {
		if errors.Is(err, agent.ErrNotFound) {
			return failed(msgAgentNotFound)
		}
		return failed(truncate(err.Error(), fixErrorLimit))
	}
	d.saveTranscript(ctx, s, "fix", res.Stdout)

	if res.TimedOut {
		return failed(fmt.Sprintf("Timeout after %d seconds", int(timeout.Seconds())))
	}
	if res.ExitCode != 0 {
		return failed(truncate(orDefault(res.Stderr, msgUnknownFailure), fixErrorLimit))
	}

	changed, err := ws.HasChanges(ctx)
	if err != nil {
		return failed(truncate(err.Error(), fixErrorLimit))
	}
	if !changed {
		return failed(msgNoChanges)
	}

	branch := workspace.BranchName(s.IssueNumber)
	title := fmt.Sprintf("fix: %s (#%d)", s.IssueTitle, s.IssueNumber)
	if err := ws.CommitAll(ctx, branch, fmt.Sprintf("%s\n\nFixes #%d", title, s.IssueNumber)); err != nil {
		return failed(truncate(err.Error(), fixErrorLimit))
	}
	if err := ws.Push(ctx, branch); err != nil {
		return failed(truncate(err.Error(), fixErrorLimit))
	}

	pr, err := d.Host.CreatePR(s.Repo, github.PRCreateOpts{
		Title:  title,
		Body:   prBody(s),
		Branch: branch,
		Base:   cfg.Fix.BaseBranch,
	})
	if err != nil {
		return failed(truncate(err.Error(), fixErrorLimit))
	}
	url := extract.PRURL(pr.Output)
	if url == "" {
		url = pr.URL
	}

	log.Info("pull request opened", "url", url, "branch", branch)
	autoEligible := tbl.ForFix(state.FixAutoEligible)
	return state.Update{
		FixSuccess:     state.Ptr(true),
		PRURL:          state.Ptr(url),
		FixError:       state.Ptr(""),
		LabelsToAdd:    labels.Union(labels.Subtract(s.LabelsToAdd, autoEligible), tbl.FixCompleted),
		LabelsToRemove: labels.Union(s.LabelsToRemove, autoEligible),
	}, nil
}

func fixFailure(s state.IssueState, msg, label string) state.Update {
	return state.Update{
		FixSuccess:  state.Ptr(false),
		FixError:    state.Ptr(msg),
		LabelsToAdd: labels.Union(s.LabelsToAdd, label),
	}
}

func prBody(s state.IssueState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fixes #%d\n\n", s.IssueNumber)
	if s.AnalysisSummary != "" {
		fmt.Fprintf(&b, "## Summary\n%s\n\n", s.AnalysisSummary)
	}
	if len(s.AffectedFiles) > 0 {
		fmt.Fprintf(&b, "## Affected Files\n%s\n\n", bulletList(s.AffectedFiles))
	}
	b.WriteString("---\n*Generated by [beneissue](https://github.com/opendataloader-project/beneissue)*")
	return b.String()
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "No specific files identified"
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "- " + it
	}
	return strings.Join(lines, "\n")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
