package nodes

import (
	"context"
	"errors"
	"testing"

	"github.com/opendataloader-project/beneissue/internal/agent"
	"github.com/opendataloader-project/beneissue/internal/config"
	"github.com/opendataloader-project/beneissue/internal/github"
	"github.com/opendataloader-project/beneissue/internal/llm"
	"github.com/opendataloader-project/beneissue/internal/state"
	"github.com/opendataloader-project/beneissue/internal/workspace"
)

type mockHost struct {
	issue     *github.Issue
	issueErr  error
	existing  []state.ExistingIssue
	listErr   error
	runCount  int
	runErr    error
	labelErrs map[string]error
	prOutput  string
	prErr     error

	added    []string
	removed  []string
	comments []string
	prs      []github.PRCreateOpts
}

func (m *mockHost) GetIssue(repo string, number int) (*github.Issue, error) {
	return m.issue, m.issueErr
}

func (m *mockHost) ListIssues(repo string, limit, exclude int) ([]state.ExistingIssue, error) {
	return m.existing, m.listErr
}

func (m *mockHost) DailyRunCount(repo, workflow string) (int, error) {
	return m.runCount, m.runErr
}

func (m *mockHost) AddLabel(repo string, number int, name string) error {
	if err := m.labelErrs[name]; err != nil {
		return err
	}
	m.added = append(m.added, name)
	return nil
}

func (m *mockHost) RemoveLabel(repo string, number int, name string) error {
	if err := m.labelErrs[name]; err != nil {
		return err
	}
	m.removed = append(m.removed, name)
	return nil
}

func (m *mockHost) Comment(repo string, number int, body string) error {
	m.comments = append(m.comments, body)
	return nil
}

func (m *mockHost) CreatePR(repo string, opts github.PRCreateOpts) (*github.PRCreateResult, error) {
	m.prs = append(m.prs, opts)
	if m.prErr != nil {
		return nil, m.prErr
	}
	return &github.PRCreateResult{URL: m.prOutput, Output: m.prOutput}, nil
}

type mockClassifier struct {
	result *llm.TriageResult
	usage  llm.Usage
	err    error
	system string
	user   string
}

func (m *mockClassifier) Classify(ctx context.Context, model, system, user string) (*llm.TriageResult, llm.Usage, error) {
	m.system, m.user = system, user
	return m.result, m.usage, m.err
}

type mockAssessor struct {
	result *llm.AnalyzeResult
	usage  llm.Usage
	err    error
}

func (m *mockAssessor) Assess(ctx context.Context, model, system, user string) (*llm.AnalyzeResult, llm.Usage, error) {
	return m.result, m.usage, m.err
}

type mockAgent struct {
	result *agent.Result
	err    error
	reqs   []agent.Request
}

func (m *mockAgent) Binary() string { return "npx" }

func (m *mockAgent) Run(ctx context.Context, req agent.Request) (*agent.Result, error) {
	m.reqs = append(m.reqs, req)
	return m.result, m.err
}

// scriptGit answers git commands from a function of the argv.
type scriptGit struct {
	calls [][]string
	fn    func(args []string) (string, error)
}

func (g *scriptGit) Run(ctx context.Context, dir string, args ...string) (string, error) {
	g.calls = append(g.calls, args)
	if g.fn == nil {
		return "", nil
	}
	return g.fn(args)
}

// called reports whether any git call included the argument sub.
func (g *scriptGit) called(sub string) bool {
	for _, c := range g.calls {
		for _, a := range c {
			if a == sub {
				return true
			}
		}
	}
	return false
}

// dirtyGit simulates a clone whose tree the agent modified.
func dirtyGit() *scriptGit {
	return &scriptGit{fn: func(args []string) (string, error) {
		switch args[0] {
		case "rev-parse":
			return "base", nil
		case "status":
			return " M main.go", nil
		}
		return "", nil
	}}
}

// cleanGit simulates a clone the agent left untouched.
func cleanGit() *scriptGit {
	return &scriptGit{fn: func(args []string) (string, error) {
		if args[0] == "rev-parse" {
			return "base", nil
		}
		return "", nil
	}}
}

func failingCloneGit() *scriptGit {
	return &scriptGit{fn: func(args []string) (string, error) {
		if args[0] == "clone" {
			return "", errors.New("repository not found")
		}
		return "", nil
	}}
}

type mockSink struct {
	keys []string
}

func (m *mockSink) Put(ctx context.Context, key string, data []byte) error {
	m.keys = append(m.keys, key)
	return nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Scoring.Threshold = 80
	cfg.Scoring.MidThreshold = 50
	cfg.Analyze.Strategy = config.StrategyAgent
	cfg.Analyze.Timeout = "3m"
	cfg.Fix.Timeout = "5m"
	cfg.Fix.BaseBranch = "main"
	cfg.Limits.Daily.Triage = 50
	cfg.Team = nil
	return cfg
}

func newDeps(t *testing.T, host *mockHost, git *scriptGit) *Deps {
	cfg := testConfig()
	return &Deps{
		Host:       host,
		Agent:      &mockAgent{result: &agent.Result{}},
		Workspaces: workspace.NewManager(git, t.TempDir(), "", workspace.Author{Name: "bot", Email: "bot@example.com"}),
		Config:     cfg,
		Labels:     cfg.LabelTable(),
	}
}

func baseState() state.IssueState {
	s := state.New("octo/widgets", 42)
	s.IssueTitle = "Crash on startup"
	s.IssueBody = "The app crashes when the config file is missing."
	return s
}
