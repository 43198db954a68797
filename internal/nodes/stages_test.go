package nodes

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/opendataloader-project/beneissue/internal/agent"
	"github.com/opendataloader-project/beneissue/internal/config"
	"github.com/opendataloader-project/beneissue/internal/labels"
	"github.com/opendataloader-project/beneissue/internal/llm"
	"github.com/opendataloader-project/beneissue/internal/state"
)

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// --- triage ---

func TestTriage_Duplicate(t *testing.T) {
	cls := &mockClassifier{
		result: &llm.TriageResult{Decision: state.TriageDuplicate, Reason: "same crash", DuplicateOf: 12},
		usage:  llm.Usage{InputTokens: 10, OutputTokens: 5},
	}
	d := newDeps(t, &mockHost{}, cleanGit())
	d.Classifier = cls

	s := baseState()
	s.ExistingIssues = []state.ExistingIssue{{Number: 12, Title: "App crashes on launch", State: "open"}}
	u, err := d.Triage(context.Background(), s)
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	out := s.Merge(u)

	if out.TriageDecision != state.TriageDuplicate || out.DuplicateOf != 12 {
		t.Errorf("decision = %q, duplicate_of = %d", out.TriageDecision, out.DuplicateOf)
	}
	if !contains(out.LabelsToAdd, "triage/duplicate") {
		t.Errorf("labels = %v, want triage/duplicate", out.LabelsToAdd)
	}
	if out.InputTokens != 10 || out.OutputTokens != 5 {
		t.Errorf("tokens = %d/%d", out.InputTokens, out.OutputTokens)
	}
	if !strings.Contains(cls.system, "#12: App crashes on launch") {
		t.Errorf("system prompt missing existing issues:\n%s", cls.system)
	}
	if !strings.HasPrefix(cls.user, "Title: Crash on startup") {
		t.Errorf("user content = %q", cls.user)
	}
}

func TestTriage_ErrorAborts(t *testing.T) {
	d := newDeps(t, &mockHost{}, cleanGit())
	d.Classifier = &mockClassifier{err: llm.ErrInvalidResult}

	if _, err := d.Triage(context.Background(), baseState()); !errors.Is(err, llm.ErrInvalidResult) {
		t.Errorf("err = %v, want ErrInvalidResult", err)
	}
}

func TestFormatExistingIssues(t *testing.T) {
	if got := formatExistingIssues(nil); got != "No existing issues loaded." {
		t.Errorf("empty = %q", got)
	}
	got := formatExistingIssues([]state.ExistingIssue{{Number: 3, Title: "T", State: "closed", Labels: []string{"bug", "P1"}}})
	if got != "- #3: T (closed) [bug, P1]" {
		t.Errorf("formatted = %q", got)
	}
}

// --- analyze ---

const agentOutput = "Looked around.\n```json\n" +
	`{"summary": "Missing nil check", "affected_files": ["config.go"], "approach": "Guard the load", ` +
	`"score": {"total": 85, "scope": 28, "risk": 25, "verifiability": 20, "clarity": 12}, ` +
	`"priority": "P1", "story_points": 2, "fix_decision": "auto_eligible", "reason": "small", "assignee": ""}` +
	"\n```\n"

func TestAnalyze_AgentSuccess(t *testing.T) {
	git := cleanGit()
	d := newDeps(t, &mockHost{}, git)
	ag := &mockAgent{result: &agent.Result{Stdout: agentOutput}}
	d.Agent = ag
	sink := &mockSink{}
	d.Transcripts = sink

	s := baseState()
	s.LabelsToAdd = []string{"triage/valid"}
	u, err := d.Analyze(context.Background(), s)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	out := s.Merge(u)

	if out.FixDecision != state.FixAutoEligible || out.Priority != state.PriorityP1 || out.StoryPoints != 2 {
		t.Errorf("decision = %q, priority = %q, sp = %d", out.FixDecision, out.Priority, out.StoryPoints)
	}
	if out.Score == nil || out.Score.Total != 85 {
		t.Errorf("score = %+v", out.Score)
	}
	if out.Assignee != "octo" {
		t.Errorf("assignee = %q, want repo owner", out.Assignee)
	}
	for _, want := range []string{"triage/valid", "fix/auto-eligible", "P1", "sp/2"} {
		if !contains(out.LabelsToAdd, want) {
			t.Errorf("labels %v missing %q", out.LabelsToAdd, want)
		}
	}
	if !git.called("clone") {
		t.Error("expected a fresh clone")
	}
	req := ag.reqs[0]
	if !reflect.DeepEqual(req.AllowedTools, agent.ReadOnlyTools) {
		t.Errorf("tools = %v, want read-only", req.AllowedTools)
	}
	if len(sink.keys) != 1 || !strings.HasPrefix(sink.keys[0], "octo/widgets/42/analyze-") {
		t.Errorf("transcripts = %v", sink.keys)
	}
}

func TestAnalyze_ProjectRootSkipsClone(t *testing.T) {
	git := cleanGit()
	d := newDeps(t, &mockHost{}, git)
	ag := &mockAgent{result: &agent.Result{Stdout: agentOutput}}
	d.Agent = ag

	s := baseState()
	s.ProjectRoot = t.TempDir()
	if _, err := d.Analyze(context.Background(), s); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if git.called("clone") {
		t.Error("clone should be skipped with a project root")
	}
	if ag.reqs[0].Dir != s.ProjectRoot {
		t.Errorf("dir = %q, want project root", ag.reqs[0].Dir)
	}
}

func TestAnalyze_Fallbacks(t *testing.T) {
	tests := []struct {
		name        string
		git         *scriptGit
		result      *agent.Result
		err         error
		wantSummary string
	}{
		{"timeout", cleanGit(), &agent.Result{TimedOut: true}, nil, "Analysis incomplete: Analysis timeout after 180 seconds"},
		{"not found", cleanGit(), nil, errors.Join(errors.New("npx"), agent.ErrNotFound), "Analysis incomplete: npx not found. Ensure Node.js is installed."},
		{"clone", failingCloneGit(), nil, nil, "Analysis incomplete: Failed to clone repository"},
		{"parse", cleanGit(), &agent.Result{Stdout: "I could not decide."}, nil, "Analysis incomplete: Failed to parse analysis output: I could not decide."},
		{"generic", cleanGit(), nil, errors.New(strings.Repeat("x", 300)), "Analysis incomplete: " + strings.Repeat("x", 200)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps(t, &mockHost{}, tt.git)
			d.Agent = &mockAgent{result: tt.result, err: tt.err}

			u, err := d.Analyze(context.Background(), baseState())
			if err != nil {
				t.Fatalf("Analyze must not return an error: %v", err)
			}
			if *u.AnalysisSummary != tt.wantSummary {
				t.Errorf("summary = %q, want %q", *u.AnalysisSummary, tt.wantSummary)
			}
			if *u.FixDecision != state.FixManualRequired {
				t.Errorf("decision = %q, want manual_required", *u.FixDecision)
			}
			if !contains(u.LabelsToAdd, "fix/manual-required") {
				t.Errorf("labels = %v", u.LabelsToAdd)
			}
			if *u.Assignee != "octo" {
				t.Errorf("assignee = %q", *u.Assignee)
			}
		})
	}
}

func TestAnalyzeFallback_Deterministic(t *testing.T) {
	tbl := labels.Default()
	a := AnalyzeFallback("boom", "octo", []string{"triage/valid"}, tbl)
	b := AnalyzeFallback("boom", "octo", []string{"triage/valid"}, tbl)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("fallback differs between calls:\n%+v\n%+v", a, b)
	}
	if *a.CommentDraft != "Automated analysis encountered an issue: boom\n\nPlease investigate manually." {
		t.Errorf("comment draft = %q", *a.CommentDraft)
	}
	if *a.FixReason != "Analysis failed: boom" {
		t.Errorf("fix reason = %q", *a.FixReason)
	}
}

func TestAnalyze_CompletionScoreThresholds(t *testing.T) {
	tests := []struct {
		total int
		want  state.FixDecision
	}{
		{90, state.FixAutoEligible},
		{80, state.FixAutoEligible},
		{79, state.FixManualRequired},
		{50, state.FixManualRequired},
		{49, state.FixCommentOnly},
	}
	for _, tt := range tests {
		d := newDeps(t, &mockHost{}, cleanGit())
		d.Config.Analyze.Strategy = config.StrategyCompletion
		d.Assessor = &mockAssessor{
			result: &llm.AnalyzeResult{Summary: "s", Score: &state.ScoreBreakdown{Total: tt.total}},
			usage:  llm.Usage{InputTokens: 7},
		}

		u, _ := d.Analyze(context.Background(), baseState())
		if *u.FixDecision != tt.want {
			t.Errorf("score %d: decision = %q, want %q", tt.total, *u.FixDecision, tt.want)
		}
		if u.InputTokens != 7 {
			t.Errorf("tokens = %d, want 7", u.InputTokens)
		}
	}
}

func TestAnalyze_CompletionErrorFallsBack(t *testing.T) {
	d := newDeps(t, &mockHost{}, cleanGit())
	d.Config.Analyze.Strategy = config.StrategyCompletion
	d.Assessor = &mockAssessor{err: llm.ErrInvalidResult, usage: llm.Usage{InputTokens: 3}}

	u, err := d.Analyze(context.Background(), baseState())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !strings.HasPrefix(*u.AnalysisSummary, "Analysis incomplete:") {
		t.Errorf("summary = %q", *u.AnalysisSummary)
	}
	if u.InputTokens != 3 {
		t.Errorf("tokens of the answered call should be kept, got %d", u.InputTokens)
	}
}

func TestAnalyze_TeamAssignee(t *testing.T) {
	d := newDeps(t, &mockHost{}, cleanGit())
	d.Config.Team = []config.TeamMember{{GitHubID: "bob", Available: true}}
	d.Agent = &mockAgent{result: &agent.Result{Stdout: agentOutput}}

	u, _ := d.Analyze(context.Background(), baseState())
	if *u.Assignee != "bob" {
		t.Errorf("assignee = %q, want bob", *u.Assignee)
	}
}

// --- fix ---

func TestFix_Success(t *testing.T) {
	git := dirtyGit()
	host := &mockHost{prOutput: "https://github.com/octo/widgets/pull/7"}
	d := newDeps(t, host, git)
	ag := &mockAgent{result: &agent.Result{Stdout: "edited config.go"}}
	d.Agent = ag

	s := baseState()
	s.AnalysisSummary = "Missing nil check"
	s.AffectedFiles = []string{"config.go"}
	s.LabelsToAdd = []string{"triage/valid", "fix/auto-eligible"}
	u, err := d.Fix(context.Background(), s)
	if err != nil {
		t.Fatalf("Fix: %v", err)
	}
	out := s.Merge(u)

	if !out.FixSucceeded() || out.PRURL != "https://github.com/octo/widgets/pull/7" {
		t.Errorf("success = %v, pr = %q, error = %q", out.FixSucceeded(), out.PRURL, out.FixError)
	}
	if !contains(out.LabelsToAdd, "fix/completed") || contains(out.LabelsToAdd, "fix/auto-eligible") {
		t.Errorf("labels_to_add = %v", out.LabelsToAdd)
	}
	if !contains(out.LabelsToRemove, "fix/auto-eligible") {
		t.Errorf("labels_to_remove = %v", out.LabelsToRemove)
	}
	if !reflect.DeepEqual(ag.reqs[0].AllowedTools, agent.ReadWriteTools) {
		t.Errorf("tools = %v", ag.reqs[0].AllowedTools)
	}
	if !git.called("beneissue/fix-issue-42") || !git.called("push") {
		t.Errorf("expected branch and push, calls = %v", git.calls)
	}
	pr := host.prs[0]
	if pr.Title != "fix: Crash on startup (#42)" || pr.Base != "main" || pr.Branch != "beneissue/fix-issue-42" {
		t.Errorf("pr = %+v", pr)
	}
	if !strings.Contains(pr.Body, "Fixes #42") {
		t.Errorf("pr body = %q", pr.Body)
	}
}

func TestFix_NoChanges(t *testing.T) {
	git := cleanGit()
	host := &mockHost{}
	d := newDeps(t, host, git)
	d.Agent = &mockAgent{result: &agent.Result{ExitCode: 0, Stdout: "all good"}}

	u, _ := d.Fix(context.Background(), baseState())
	if *u.FixSuccess || *u.FixError != "No changes were made" {
		t.Errorf("success = %v, error = %q", *u.FixSuccess, *u.FixError)
	}
	if git.called("checkout") || git.called("push") {
		t.Error("no branch should be created for a no-op run")
	}
	if len(host.prs) != 0 {
		t.Error("no PR should be opened for a no-op run")
	}
}

func TestFix_Failures(t *testing.T) {
	tests := []struct {
		name      string
		git       *scriptGit
		result    *agent.Result
		err       error
		prErr     error
		wantError string
		wantLabel string
	}{
		{"clone", failingCloneGit(), nil, nil, nil, "Failed to clone repository", "fix/failed"},
		{"exit code", dirtyGit(), &agent.Result{ExitCode: 1, Stderr: "boom"}, nil, nil, "boom", "fix/manual-required"},
		{"exit code no stderr", dirtyGit(), &agent.Result{ExitCode: 1}, nil, nil, "Unknown error", "fix/manual-required"},
		{"timeout", dirtyGit(), &agent.Result{TimedOut: true}, nil, nil, "Timeout after 300 seconds", "fix/manual-required"},
		{"not found", dirtyGit(), nil, agent.ErrNotFound, nil, msgAgentNotFound, "fix/manual-required"},
		{"pr", dirtyGit(), &agent.Result{}, nil, errors.New("create PR: forbidden"), "create PR: forbidden", "fix/manual-required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps(t, &mockHost{prErr: tt.prErr}, tt.git)
			d.Agent = &mockAgent{result: tt.result, err: tt.err}

			u, err := d.Fix(context.Background(), baseState())
			if err != nil {
				t.Fatalf("Fix must not return an error: %v", err)
			}
			if *u.FixSuccess {
				t.Error("expected fix_success=false")
			}
			if *u.FixError != tt.wantError {
				t.Errorf("error = %q, want %q", *u.FixError, tt.wantError)
			}
			if !contains(u.LabelsToAdd, tt.wantLabel) {
				t.Errorf("labels = %v, want %q", u.LabelsToAdd, tt.wantLabel)
			}
		})
	}
}

func TestFix_StderrTruncated(t *testing.T) {
	d := newDeps(t, &mockHost{}, dirtyGit())
	d.Agent = &mockAgent{result: &agent.Result{ExitCode: 2, Stderr: strings.Repeat("e", 800)}}

	u, _ := d.Fix(context.Background(), baseState())
	if len(*u.FixError) != 500 {
		t.Errorf("len(error) = %d, want 500", len(*u.FixError))
	}
}

// --- actions ---

func TestApplyLabels_BestEffort(t *testing.T) {
	host := &mockHost{labelErrs: map[string]error{"missing": errors.New("label not found")}}
	d := newDeps(t, host, cleanGit())

	s := baseState()
	s.LabelsToAdd = []string{"triage/valid", "missing", "P1"}
	s.LabelsToRemove = []string{"fix/auto-eligible"}
	u, err := d.ApplyLabels(context.Background(), s)
	if err != nil {
		t.Fatalf("ApplyLabels: %v", err)
	}
	if !u.IsEmpty() {
		t.Errorf("action node should return an empty update, wrote %v", u.Fields())
	}
	if !reflect.DeepEqual(host.added, []string{"triage/valid", "P1"}) {
		t.Errorf("added = %v", host.added)
	}
	if !reflect.DeepEqual(host.removed, []string{"fix/auto-eligible"}) {
		t.Errorf("removed = %v", host.removed)
	}
}

func TestBuildComment_Analysis(t *testing.T) {
	s := baseState()
	s.TriageDecision = state.TriageValid
	s.AnalysisSummary = "Missing nil check"
	s.AffectedFiles = []string{"config.go"}
	s.FixApproach = "Guard the load"
	s.Score = &state.ScoreBreakdown{Total: 85}
	s.FixDecision = state.FixAutoEligible
	s.CommentDraft = "Thanks for the report!"

	got := BuildComment(s)
	want := "---\n## Analysis Summary\nMissing nil check\n\n**Affected Files:**\n- `config.go`\n" +
		"\n**Recommended Approach:**\nGuard the load\n\n**Auto-fix Score:** 85/100\n**Decision:** auto_eligible\n" +
		"---\nThanks for the report!" + commentFooter
	if got != want {
		t.Errorf("comment =\n%s\nwant\n%s", got, want)
	}
}

func TestBuildComment_TriageAndFixFailure(t *testing.T) {
	s := baseState()
	s.TriageDecision = state.TriageDuplicate
	s.TriageReason = "same crash"
	s.DuplicateOf = 12
	got := BuildComment(s)
	for _, want := range []string{"**Triage Decision:** duplicate", "**Reason:** same crash", "**Duplicate of:** #12"} {
		if !strings.Contains(got, want) {
			t.Errorf("comment missing %q:\n%s", want, got)
		}
	}

	s = baseState()
	s.FixSuccess = state.Ptr(false)
	s.FixError = "No changes were made"
	if got := BuildComment(s); !strings.Contains(got, "## Automated Fix Failed\nNo changes were made") {
		t.Errorf("comment missing fix failure:\n%s", got)
	}
}

func TestPostComment_NothingToSay(t *testing.T) {
	host := &mockHost{}
	d := newDeps(t, host, cleanGit())

	s := baseState()
	s.TriageDecision = state.TriageValid
	if _, err := d.PostComment(context.Background(), s); err != nil {
		t.Fatalf("PostComment: %v", err)
	}
	if len(host.comments) != 0 {
		t.Errorf("posted %d comments, want 0", len(host.comments))
	}
}

func TestDecideFromScore(t *testing.T) {
	if got := DecideFromScore(100, 80, 50); got != state.FixAutoEligible {
		t.Errorf("100 -> %q", got)
	}
	if got := DecideFromScore(0, 80, 50); got != state.FixCommentOnly {
		t.Errorf("0 -> %q", got)
	}
}
