package nodes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/opendataloader-project/beneissue/internal/agent"
	"github.com/opendataloader-project/beneissue/internal/config"
	"github.com/opendataloader-project/beneissue/internal/labels"
	"github.com/opendataloader-project/beneissue/internal/llm"
	"github.com/opendataloader-project/beneissue/internal/prompt"
	"github.com/opendataloader-project/beneissue/internal/state"
)

const analyzeErrorLimit = 200

// Analyze assesses fix-eligibility. It never returns an error: every
// failure becomes a manual_required fallback result.
func (d *Deps) Analyze(ctx context.Context, s state.IssueState) (state.Update, error) {
	if d.cfg().Analyze.Strategy == config.StrategyCompletion {
		return d.analyzeCompletion(ctx, s), nil
	}
	return d.analyzeAgent(ctx, s), nil
}

func (d *Deps) analyzeAgent(ctx context.Context, s state.IssueState) state.Update {
	log := d.logger().With("node", "analyze", "strategy", "agent")
	cfg := d.cfg()

	dir := s.ProjectRoot
	if dir == "" {
		ws, err := d.Workspaces.Clone(ctx, s.Repo)
		if err != nil {
			log.Error("clone failed", "error", err)
			return d.analyzeFallback(s, "Failed to clone repository")
		}
		defer ws.Close()
		dir = ws.Dir
	} else {
		log.Info("using local project root", "dir", dir)
	}

	p, err := prompt.LoadAndRender(prompt.Analyze, s.ProjectRoot, prompt.Vars{
		"issue_number": strconv.Itoa(s.IssueNumber),
		"issue_title":  s.IssueTitle,
		"issue_body":   s.IssueBody,
		"threshold":    strconv.Itoa(cfg.Scoring.Threshold),
		"team":         availableTeam(cfg),
		"repo_owner":   ownerOrUnknown(s),
	})
	if err != nil {
		return d.analyzeFallback(s, truncate(err.Error(), analyzeErrorLimit))
	}

	timeout := cfg.AnalyzeTimeout()
	res, err := d.Agent.Run(ctx, agent.Request{
		Prompt:       p,
		Dir:          dir,
		AllowedTools: agent.ReadOnlyTools,
		Timeout:      timeout,
		Model:        cfg.Models.Analyze,
	})
	if err != nil {
		if errors.Is(err, agent.ErrNotFound) {
			msg := fmt.Sprintf("%s not found. Ensure Node.js is installed.", d.Agent.Binary())
			log.Error(msg)
			return d.analyzeFallback(s, msg)
		}
		log.Error("agent failed", "error", err)
		return d.analyzeFallback(s, truncate(err.Error(), analyzeErrorLimit))
	}
	d.saveTranscript(ctx, s, "analyze", res.Stdout)

	if res.TimedOut {
		msg := fmt.Sprintf("Analysis timeout after %d seconds", int(timeout.Seconds()))
		log.Error("analysis timeout", "timeout", timeout)
		return d.analyzeFallback(s, msg)
	}

	r, strategy, err := llm.ParseAnalysis(res.Stdout)
	if err != nil {
		msg := "Failed to parse analysis output: " + truncate(res.Stdout, analyzeErrorLimit)
		log.Error("parse failed", "exit_code", res.ExitCode, "stdout_bytes", len(res.Stdout))
		return d.analyzeFallback(s, msg)
	}
	log.Debug("analysis recovered", "strategy", strategy.String())
	return d.analyzeResult(s, r, llm.Usage{})
}

func (d *Deps) analyzeCompletion(ctx context.Context, s state.IssueState) state.Update {
	log := d.logger().With("node", "analyze", "strategy", "completion")
	cfg := d.cfg()

	system, err := prompt.LoadAndRender(prompt.AnalyzeComplete, s.ProjectRoot, prompt.Vars{
		"repo":               s.Repo,
		"codebase_structure": s.CodebaseStructure,
	})
	if err != nil {
		return d.analyzeFallback(s, truncate(err.Error(), analyzeErrorLimit))
	}
	user := fmt.Sprintf("Title: %s\n\n%s", s.IssueTitle, s.IssueBody)

	r, usage, err := d.Assessor.Assess(ctx, cfg.Models.Analyze, system, user)
	if err != nil {
		log.Error("assessment failed", "error", err)
		u := d.analyzeFallback(s, truncate(err.Error(), analyzeErrorLimit))
		u.InputTokens, u.OutputTokens = usage.InputTokens, usage.OutputTokens
		return u
	}
	return d.analyzeResult(s, r, usage)
}

// analyzeResult converts a validated result into a state update.
func (d *Deps) analyzeResult(s state.IssueState, r *llm.AnalyzeResult, usage llm.Usage) state.Update {
	cfg := d.cfg()
	tbl := d.table()

	decision := r.FixDecision
	if decision == "" {
		decision = DecideFromScore(r.Score.Total, cfg.Scoring.Threshold, cfg.Scoring.MidThreshold)
	}

	assignee := r.Assignee
	if assignee == "" {
		assignee = cfg.AvailableAssignee()
	}
	if assignee == "" {
		assignee = s.RepoOwner()
	}

	add := []string{tbl.ForFix(decision), tbl.ForPriority(r.Priority), tbl.ForStoryPoints(r.StoryPoints)}
	for _, l := range r.Labels {
		if _, ok := tbl.Def(l); ok {
			add = append(add, l)
		}
	}

	files := r.AffectedFiles
	if files == nil {
		files = []string{}
	}

	d.logger().Info("analysis complete", "node", "analyze", "fix_decision", decision, "priority", r.Priority)

	u := state.Update{
		AnalysisSummary: state.Ptr(r.Summary),
		AffectedFiles:   files,
		FixDecision:     state.Ptr(decision),
		FixReason:       state.Ptr(r.Reason),
		FixApproach:     state.Ptr(r.Approach),
		CommentDraft:    state.Ptr(r.CommentDraft),
		Assignee:        state.Ptr(assignee),
		LabelsToAdd:     labels.Union(s.LabelsToAdd, add...),
		InputTokens:     usage.InputTokens,
		OutputTokens:    usage.OutputTokens,
	}
	if r.Score != nil {
		u.Score = r.Score
	}
	if r.Priority != "" {
		u.Priority = state.Ptr(r.Priority)
	}
	if r.StoryPoints != 0 {
		u.StoryPoints = state.Ptr(r.StoryPoints)
	}
	return u
}

// analyzeFallback is the result used whenever analysis could not complete.
// It depends only on its inputs.
func (d *Deps) analyzeFallback(s state.IssueState, reason string) state.Update {
	return AnalyzeFallback(reason, s.RepoOwner(), s.LabelsToAdd, d.table())
}

// AnalyzeFallback builds the manual_required result for a failed analysis.
func AnalyzeFallback(reason, owner string, prior []string, tbl *labels.Table) state.Update {
	return state.Update{
		AnalysisSummary: state.Ptr("Analysis incomplete: " + reason),
		AffectedFiles:   []string{},
		FixDecision:     state.Ptr(state.FixManualRequired),
		FixReason:       state.Ptr("Analysis failed: " + reason),
		CommentDraft:    state.Ptr("Automated analysis encountered an issue: " + reason + "\n\nPlease investigate manually."),
		Assignee:        state.Ptr(owner),
		LabelsToAdd:     labels.Union(prior, tbl.ForFix(state.FixManualRequired)),
	}
}

// DecideFromScore applies the two-tier threshold.
func DecideFromScore(score, high, mid int) state.FixDecision {
	switch {
	case score >= high:
		return state.FixAutoEligible
	case score >= mid:
		return state.FixManualRequired
	default:
		return state.FixCommentOnly
	}
}

func availableTeam(cfg *config.Config) string {
	var ids []string
	for _, m := range cfg.Team {
		if m.Available {
			ids = append(ids, m.GitHubID)
		}
	}
	return strings.Join(ids, ", ")
}

func ownerOrUnknown(s state.IssueState) string {
	if owner := s.RepoOwner(); owner != "" {
		return owner
	}
	return "unknown"
}
