package github

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/opendataloader-project/beneissue/internal/proc"
	"github.com/opendataloader-project/beneissue/internal/labels"
	"github.com/opendataloader-project/beneissue/internal/state"
)

// DefaultTimeout bounds a single gh invocation.
const DefaultTimeout = 60 * time.Second

// CmdRunner provides command execution. Interface for testing.
type CmdRunner interface {
	Run(args ...string) (string, error)
}

// ExecRunner runs gh commands via exec.
type ExecRunner struct {
	Timeout time.Duration
	Bin     string // defaults to "gh"
}

func (r *ExecRunner) Run(args ...string) (string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	bin := r.Bin
	if bin == "" {
		bin = "gh"
	}
	out, err := proc.Command(ctx, bin, args...).CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("gh %s: timeout after %s", args[0], timeout)
	}
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("gh %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Client provides GitHub operations. Every call names the repository
// explicitly with --repo, so the client does not depend on the working
// directory.
type Client struct {
	cmd CmdRunner
	now func() time.Time
}

// NewClient creates a GitHub client.
func NewClient(cmd CmdRunner) *Client {
	return &Client{cmd: cmd, now: time.Now}
}

// Issue represents a GitHub issue.
type Issue struct {
	Number int     `json:"number"`
	Title  string  `json:"title"`
	Body   string  `json:"body"`
	State  string  `json:"state"`
	Labels []Label `json:"labels"`
	Author Author  `json:"author"`
}

// Label represents a GitHub label.
type Label struct {
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}

// Author is the issue's creator.
type Author struct {
	Login string `json:"login"`
}

// LabelNames flattens the issue's labels.
func (i *Issue) LabelNames() []string {
	names := make([]string, 0, len(i.Labels))
	for _, l := range i.Labels {
		names = append(names, l.Name)
	}
	return names
}

// ValidateIssueNumber checks that an issue number is positive.
func ValidateIssueNumber(n int) error {
	if n <= 0 {
		return fmt.Errorf("invalid issue number %d: must be positive", n)
	}
	return nil
}

// ValidateRepo checks an "owner/name" repository string.
func ValidateRepo(repo string) error {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || strings.HasPrefix(repo, "-") {
		return fmt.Errorf("invalid repository %q: want owner/name", repo)
	}
	return nil
}

// GetIssue fetches a GitHub issue by number.
func (c *Client) GetIssue(repo string, number int) (*Issue, error) {
	if err := ValidateIssueNumber(number); err != nil {
		return nil, err
	}
	if err := ValidateRepo(repo); err != nil {
		return nil, err
	}

	out, err := c.cmd.Run("issue", "view", fmt.Sprintf("%d", number), "--repo", repo, "--json", "number,title,body,state,labels,author")
	if err != nil {
		return nil, fmt.Errorf("get issue %d: %w", number, err)
	}

	var issue Issue
	if err := json.Unmarshal([]byte(out), &issue); err != nil {
		return nil, fmt.Errorf("parse issue JSON: %w", err)
	}
	return &issue, nil
}

// ListIssues returns up to limit recent issues in any state, without
// exclude (pass 0 to keep all).
func (c *Client) ListIssues(repo string, limit, exclude int) ([]state.ExistingIssue, error) {
	if limit <= 0 {
		limit = 50
	}
	out, err := c.cmd.Run("issue", "list", "--repo", repo, "--state", "all",
		"--limit", fmt.Sprintf("%d", limit), "--json", "number,title,state,labels")
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}

	var raw []Issue
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("parse issue list JSON: %w", err)
	}
	issues := make([]state.ExistingIssue, 0, len(raw))
	for _, i := range raw {
		if i.Number == exclude {
			continue
		}
		issues = append(issues, state.ExistingIssue{
			Number: i.Number,
			Title:  i.Title,
			State:  strings.ToLower(i.State),
			Labels: i.LabelNames(),
		})
	}
	return issues, nil
}

// AddLabel adds one label to an issue.
func (c *Client) AddLabel(repo string, number int, name string) error {
	if _, err := c.cmd.Run("issue", "edit", fmt.Sprintf("%d", number), "--repo", repo, "--add-label", name); err != nil {
		return fmt.Errorf("add label %q: %w", name, err)
	}
	return nil
}

// RemoveLabel removes one label from an issue.
func (c *Client) RemoveLabel(repo string, number int, name string) error {
	if _, err := c.cmd.Run("issue", "edit", fmt.Sprintf("%d", number), "--repo", repo, "--remove-label", name); err != nil {
		return fmt.Errorf("remove label %q: %w", name, err)
	}
	return nil
}

// Comment posts a comment on an issue.
func (c *Client) Comment(repo string, number int, body string) error {
	if _, err := c.cmd.Run("issue", "comment", fmt.Sprintf("%d", number), "--repo", repo, "--body", body); err != nil {
		return fmt.Errorf("comment on issue %d: %w", number, err)
	}
	return nil
}

// PRCreateOpts holds options for creating a PR.
type PRCreateOpts struct {
	Title  string
	Body   string
	Branch string
	Base   string
}

// PRCreateResult holds the result of creating a PR. Output is the raw gh
// output, from which callers extract the URL.
type PRCreateResult struct {
	URL    string
	Output string
}

// CreatePR creates a pull request.
func (c *Client) CreatePR(repo string, opts PRCreateOpts) (*PRCreateResult, error) {
	args := []string{"pr", "create", "--repo", repo, "--title", opts.Title, "--body", opts.Body, "--head", opts.Branch}
	if opts.Base != "" {
		args = append(args, "--base", opts.Base)
	}

	out, err := c.cmd.Run(args...)
	if err != nil {
		return nil, fmt.Errorf("create PR: %w", err)
	}
	return &PRCreateResult{URL: lastLine(out), Output: out}, nil
}

// DailyRunCount counts today's (UTC) successful runs of workflow.
func (c *Client) DailyRunCount(repo, workflow string) (int, error) {
	today := c.now().UTC().Format("2006-01-02")
	out, err := c.cmd.Run("run", "list", "--repo", repo, "--workflow", workflow,
		"--status", "success", "--created", ">="+today, "--json", "databaseId", "--limit", "100")
	if err != nil {
		return 0, fmt.Errorf("list workflow runs: %w", err)
	}
	var runs []struct {
		ID int64 `json:"databaseId"`
	}
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		return 0, fmt.Errorf("parse run list JSON: %w", err)
	}
	return len(runs), nil
}

// ListLabels returns the repository's labels.
func (c *Client) ListLabels(repo string) ([]labels.Def, error) {
	out, err := c.cmd.Run("label", "list", "--repo", repo, "--limit", "200", "--json", "name,color,description")
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	var raw []Label
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("parse label list JSON: %w", err)
	}
	defs := make([]labels.Def, 0, len(raw))
	for _, l := range raw {
		defs = append(defs, labels.Def{Name: l.Name, Color: l.Color, Description: l.Description})
	}
	return defs, nil
}

// CreateLabel creates a repository label.
func (c *Client) CreateLabel(repo string, def labels.Def) error {
	_, err := c.cmd.Run("label", "create", def.Name, "--repo", repo, "--color", def.Color, "--description", def.Description)
	if err != nil {
		return fmt.Errorf("create label %q: %w", def.Name, err)
	}
	return nil
}

// EditLabel updates a label's color and description.
func (c *Client) EditLabel(repo string, def labels.Def) error {
	_, err := c.cmd.Run("label", "edit", def.Name, "--repo", repo, "--color", def.Color, "--description", def.Description)
	if err != nil {
		return fmt.Errorf("edit label %q: %w", def.Name, err)
	}
	return nil
}

// DeleteLabel removes a label from the repository.
func (c *Client) DeleteLabel(repo string, name string) error {
	if _, err := c.cmd.Run("label", "delete", name, "--repo", repo, "--yes"); err != nil {
		return fmt.Errorf("delete label %q: %w", name, err)
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
