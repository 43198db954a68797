// Package policytest runs repository-defined triage and analyze cases
// against the live stages and reports which expectations hold.
package policytest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/opendataloader-project/beneissue/internal/state"
)

// CasesDir is the case directory relative to the project root.
const CasesDir = ".claude/skills/beneissue/tests/cases"

// DefaultConcurrency bounds concurrent case runs.
const DefaultConcurrency = 4

// Stage names accepted in a case.
const (
	StageTriage  = "triage"
	StageAnalyze = "analyze"
)

// ErrNoCases is returned when the directory holds no matching case.
var ErrNoCases = errors.New("no test cases found")

// Case is one JSON test case.
type Case struct {
	Name     string   `json:"name"`
	Stage    string   `json:"stage"`
	Input    Input    `json:"input"`
	Expected Expected `json:"expected"`

	// File is the case file name; set by Load.
	File string `json:"-"`
	// LoadErr is set when the file could not be parsed.
	LoadErr error `json:"-"`
}

// Input is the synthetic issue.
type Input struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Expected lists the assertions. Unset fields are not checked.
type Expected struct {
	Decision       state.TriageDecision `json:"decision,omitempty"`
	ReasonContains []string             `json:"reason_contains,omitempty"`
	FixDecision    state.FixDecision    `json:"fix_decision,omitempty"`
	MinScore       *int                 `json:"min_score,omitempty"`
	MaxScore       *int                 `json:"max_score,omitempty"`
}

func (c Case) stage() string {
	if c.Stage == "" {
		return StageTriage
	}
	return c.Stage
}

// Load reads every *.json case in dir, sorted by file name. A file that
// does not parse is returned with LoadErr set.
func Load(dir string) ([]Case, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	sort.Strings(paths)

	cases := make([]Case, 0, len(paths))
	for _, p := range paths {
		c := Case{File: filepath.Base(p)}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		if err := json.Unmarshal(data, &c); err != nil {
			c.LoadErr = err
		}
		c.File = filepath.Base(p)
		if c.Name == "" {
			c.Name = strings.TrimSuffix(c.File, ".json")
		}
		cases = append(cases, c)
	}
	return cases, nil
}

// StageFunc runs one workflow stage over a state.
type StageFunc func(ctx context.Context, s state.IssueState) (state.Update, error)

// Runner executes cases.
type Runner struct {
	Triage  StageFunc
	Analyze StageFunc

	// Concurrency bounds parallel case runs; DefaultConcurrency when zero.
	Concurrency int
}

// Options filters and configures a run.
type Options struct {
	// Case keeps only cases whose file name contains it.
	Case string
	// Stage keeps only cases for this stage.
	Stage string
	// DryRun validates the cases without calling any stage.
	DryRun bool
}

// Status is the outcome of one case.
type Status string

const (
	StatusPass  Status = "PASS"
	StatusFail  Status = "FAIL"
	StatusValid Status = "VALID"
	StatusSkip  Status = "SKIP"
)

// Result is the outcome of one case.
type Result struct {
	Case   Case
	Status Status
	Reason string
}

// Report is the outcome of a run.
type Report struct {
	Results []Result
	Passed  int
	Failed  int
}

// OK reports whether no case failed.
func (r *Report) OK() bool { return r.Failed == 0 }

// Select applies the case and stage filters.
func Select(cases []Case, opts Options) []Case {
	var out []Case
	for _, c := range cases {
		if opts.Case != "" && !strings.Contains(strings.TrimSuffix(c.File, ".json"), opts.Case) {
			continue
		}
		if opts.Stage != "" && c.LoadErr == nil && c.stage() != opts.Stage {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Run executes the selected cases concurrently. Results keep the case order.
func (r *Runner) Run(ctx context.Context, cases []Case, opts Options) (*Report, error) {
	selected := Select(cases, opts)
	if len(selected) == 0 {
		return nil, ErrNoCases
	}

	results := make([]Result, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	limit := r.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	g.SetLimit(limit)

	for i, c := range selected {
		g.Go(func() error {
			results[i] = r.runOne(gctx, c, opts.DryRun)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := &Report{Results: results}
	for _, res := range results {
		switch res.Status {
		case StatusPass, StatusValid:
			rep.Passed++
		case StatusFail, StatusSkip:
			rep.Failed++
		}
	}
	return rep, nil
}

func (r *Runner) runOne(ctx context.Context, c Case, dryRun bool) Result {
	if c.LoadErr != nil {
		return Result{Case: c, Status: StatusSkip, Reason: "Invalid JSON - " + c.LoadErr.Error()}
	}
	switch c.stage() {
	case StageTriage, StageAnalyze:
	default:
		return Result{Case: c, Status: StatusSkip, Reason: fmt.Sprintf("unknown stage %q", c.Stage)}
	}
	if dryRun {
		return Result{Case: c, Status: StatusValid}
	}
	if reason := r.check(ctx, c); reason != "" {
		return Result{Case: c, Status: StatusFail, Reason: reason}
	}
	return Result{Case: c, Status: StatusPass}
}

// check runs the stages for c and returns the first failed expectation.
func (r *Runner) check(ctx context.Context, c Case) string {
	s := state.New("test/repo", 1)
	s.IssueTitle = c.Input.Title
	s.IssueBody = c.Input.Body
	s.IssueAuthor = "test-user"
	s.IssueLabels = []string{}

	if r.Triage == nil {
		return "triage stage not configured"
	}
	u, err := r.Triage(ctx, s)
	if err != nil {
		return err.Error()
	}
	s = s.Merge(u)

	want := c.Expected
	if want.Decision != "" && s.TriageDecision != want.Decision {
		return fmt.Sprintf("Expected decision '%s', got '%s'", want.Decision, s.TriageDecision)
	}
	for _, kw := range want.ReasonContains {
		if !strings.Contains(strings.ToLower(s.TriageReason), strings.ToLower(kw)) {
			return fmt.Sprintf("Reason missing keyword '%s'", kw)
		}
	}

	if c.stage() != StageAnalyze || s.TriageDecision != state.TriageValid {
		return ""
	}
	if r.Analyze == nil {
		return "analyze stage not configured"
	}
	u, err = r.Analyze(ctx, s)
	if err != nil {
		return err.Error()
	}
	s = s.Merge(u)

	if want.FixDecision != "" && s.FixDecision != want.FixDecision {
		return fmt.Sprintf("Expected fix_decision '%s', got '%s'", want.FixDecision, s.FixDecision)
	}
	score := 0
	if s.Score != nil {
		score = s.Score.Total
	}
	if want.MinScore != nil && score < *want.MinScore {
		return fmt.Sprintf("Score %d below minimum %d", score, *want.MinScore)
	}
	if want.MaxScore != nil && score > *want.MaxScore {
		return fmt.Sprintf("Score %d above maximum %d", score, *want.MaxScore)
	}
	return ""
}

// Print writes the per-case lines and the summary.
func (rep *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "Found %d test case(s)\n\n", len(rep.Results))
	for _, res := range rep.Results {
		c := res.Case
		switch res.Status {
		case StatusSkip:
			fmt.Fprintf(w, "SKIP %s: %s\n", c.File, res.Reason)
		case StatusValid:
			fmt.Fprintf(w, "VALID %s: %s\n", c.File, c.Name)
		case StatusPass:
			fmt.Fprintf(w, "RUN  %s: %s\n", c.File, c.Name)
			fmt.Fprintf(w, "PASS %s\n", c.File)
		case StatusFail:
			fmt.Fprintf(w, "RUN  %s: %s\n", c.File, c.Name)
			fmt.Fprintf(w, "FAIL %s: %s\n", c.File, res.Reason)
		}
	}
	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 50))
	fmt.Fprintf(w, "Results: %d passed, %d failed\n", rep.Passed, rep.Failed)
}
