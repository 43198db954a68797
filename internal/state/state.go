// Package state defines the record threaded through every workflow node.
//
// An IssueState is accumulated additively: nodes never mutate it in place,
// they return an Update and the graph merges it. Merge only copies fields
// that are set on the update, so a field written by an earlier node can be
// overwritten but never cleared.
package state

import (
	"fmt"
	"strings"
)

// TriageDecision is the outcome of the triage node.
type TriageDecision string

const (
	TriageValid     TriageDecision = "valid"
	TriageInvalid   TriageDecision = "invalid"
	TriageDuplicate TriageDecision = "duplicate"
	TriageNeedsInfo TriageDecision = "needs_info"
)

// Valid reports whether d is one of the known triage decisions.
func (d TriageDecision) Valid() bool {
	switch d {
	case TriageValid, TriageInvalid, TriageDuplicate, TriageNeedsInfo:
		return true
	}
	return false
}

// FixDecision is the outcome of the analyze node.
type FixDecision string

const (
	FixAutoEligible   FixDecision = "auto_eligible"
	FixManualRequired FixDecision = "manual_required"
	FixCommentOnly    FixDecision = "comment_only"
)

// Valid reports whether d is one of the known fix decisions.
func (d FixDecision) Valid() bool {
	switch d {
	case FixAutoEligible, FixManualRequired, FixCommentOnly:
		return true
	}
	return false
}

// LabelSuffix returns the decision in label form ("auto_eligible" -> "auto-eligible").
func (d FixDecision) LabelSuffix() string {
	return strings.ReplaceAll(string(d), "_", "-")
}

// Priority is the urgency tier assigned by analyze.
type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
)

// Valid reports whether p is a known priority tier.
func (p Priority) Valid() bool {
	switch p {
	case PriorityP0, PriorityP1, PriorityP2:
		return true
	}
	return false
}

// validStoryPoints is the Fibonacci size scale used by analyze.
var validStoryPoints = map[int]bool{1: true, 2: true, 3: true, 5: true, 8: true}

// ValidStoryPoints reports whether n is on the size scale.
func ValidStoryPoints(n int) bool {
	return validStoryPoints[n]
}

// Sub-score maximums. They sum to MaxTotal.
const (
	MaxScope         = 30
	MaxRisk          = 30
	MaxVerifiability = 25
	MaxClarity       = 15
	MaxTotal         = 100
)

// ScoreBreakdown is the fix-eligibility score.
type ScoreBreakdown struct {
	Total         int `json:"total"`
	Scope         int `json:"scope"`
	Risk          int `json:"risk"`
	Verifiability int `json:"verifiability"`
	Clarity       int `json:"clarity"`
}

// Validate checks every sub-score against its maximum and the total bound.
func (s ScoreBreakdown) Validate() error {
	checks := []struct {
		name     string
		val, max int
	}{
		{"scope", s.Scope, MaxScope},
		{"risk", s.Risk, MaxRisk},
		{"verifiability", s.Verifiability, MaxVerifiability},
		{"clarity", s.Clarity, MaxClarity},
		{"total", s.Total, MaxTotal},
	}
	for _, c := range checks {
		if c.val < 0 || c.val > c.max {
			return fmt.Errorf("score %s = %d out of range [0, %d]", c.name, c.val, c.max)
		}
	}
	return nil
}

// ExistingIssue is a prior issue used as duplicate-detection context.
type ExistingIssue struct {
	Number int      `json:"number"`
	Title  string   `json:"title"`
	State  string   `json:"state"`
	Labels []string `json:"labels,omitempty"`
}

// IssueState is the full workflow record for one run.
type IssueState struct {
	// Input
	Repo        string `json:"repo"`
	IssueNumber int    `json:"issue_number"`
	ProjectRoot string `json:"project_root,omitempty"`
	Command     string `json:"command,omitempty"`

	// Context
	IssueTitle         string          `json:"issue_title,omitempty"`
	IssueBody          string          `json:"issue_body,omitempty"`
	IssueLabels        []string        `json:"issue_labels,omitempty"`
	IssueAuthor        string          `json:"issue_author,omitempty"`
	ExistingIssues     []ExistingIssue `json:"existing_issues,omitempty"`
	CodebaseStructure  string          `json:"codebase_structure,omitempty"`
	DailyRunCount      int             `json:"daily_run_count"`
	DailyLimitExceeded bool            `json:"daily_limit_exceeded"`

	// Triage
	TriageDecision  TriageDecision `json:"triage_decision,omitempty"`
	TriageReason    string         `json:"triage_reason,omitempty"`
	DuplicateOf     int            `json:"duplicate_of,omitempty"`
	TriageQuestions []string       `json:"triage_questions,omitempty"`

	// Analyze
	AnalysisSummary string          `json:"analysis_summary,omitempty"`
	AffectedFiles   []string        `json:"affected_files,omitempty"`
	Score           *ScoreBreakdown `json:"score,omitempty"`
	Priority        Priority        `json:"priority,omitempty"`
	StoryPoints     int             `json:"story_points,omitempty"`
	FixDecision     FixDecision     `json:"fix_decision,omitempty"`
	FixReason       string          `json:"fix_reason,omitempty"`
	FixApproach     string          `json:"fix_approach,omitempty"`
	CommentDraft    string          `json:"comment_draft,omitempty"`
	Assignee        string          `json:"assignee,omitempty"`

	// Fix
	FixSuccess *bool  `json:"fix_success,omitempty"`
	PRURL      string `json:"pr_url,omitempty"`
	FixError   string `json:"fix_error,omitempty"`

	// Side effects
	LabelsToAdd    []string `json:"labels_to_add,omitempty"`
	LabelsToRemove []string `json:"labels_to_remove,omitempty"`
	CommentToPost  string   `json:"comment_to_post,omitempty"`

	// Usage
	InputTokens  int64 `json:"input_tokens,omitempty"`
	OutputTokens int64 `json:"output_tokens,omitempty"`
}

// New returns the initial state for a run.
func New(repo string, issue int) IssueState {
	return IssueState{Repo: repo, IssueNumber: issue}
}

// Key is the checkpoint key for this run, "{repo}:{issue_number}".
func (s IssueState) Key() string {
	return Key(s.Repo, s.IssueNumber)
}

// Key builds a checkpoint key.
func Key(repo string, issue int) string {
	return fmt.Sprintf("%s:%d", repo, issue)
}

// RepoOwner returns the owner part of "owner/repo", or "" if repo has no slash.
func (s IssueState) RepoOwner() string {
	owner, _, ok := strings.Cut(s.Repo, "/")
	if !ok {
		return ""
	}
	return owner
}

// FixSucceeded reports whether the fix flag is present and true.
func (s IssueState) FixSucceeded() bool {
	return s.FixSuccess != nil && *s.FixSuccess
}

// WithVerdicts returns in plus the triage and analysis results of s. Fix
// outputs, side effects and token totals are not carried.
func (s IssueState) WithVerdicts(in IssueState) IssueState {
	out := in.Clone()
	prev := s.Clone()

	out.TriageDecision = prev.TriageDecision
	out.TriageReason = prev.TriageReason
	out.DuplicateOf = prev.DuplicateOf
	out.TriageQuestions = prev.TriageQuestions

	out.AnalysisSummary = prev.AnalysisSummary
	out.AffectedFiles = prev.AffectedFiles
	out.Score = prev.Score
	out.Priority = prev.Priority
	out.StoryPoints = prev.StoryPoints
	out.FixDecision = prev.FixDecision
	out.FixReason = prev.FixReason
	out.FixApproach = prev.FixApproach
	out.CommentDraft = prev.CommentDraft
	out.Assignee = prev.Assignee
	return out
}

// Clone returns a deep copy of s.
func (s IssueState) Clone() IssueState {
	c := s
	c.IssueLabels = cloneStrings(s.IssueLabels)
	c.TriageQuestions = cloneStrings(s.TriageQuestions)
	c.AffectedFiles = cloneStrings(s.AffectedFiles)
	c.LabelsToAdd = cloneStrings(s.LabelsToAdd)
	c.LabelsToRemove = cloneStrings(s.LabelsToRemove)
	if s.ExistingIssues != nil {
		c.ExistingIssues = make([]ExistingIssue, len(s.ExistingIssues))
		for i, e := range s.ExistingIssues {
			e.Labels = cloneStrings(e.Labels)
			c.ExistingIssues[i] = e
		}
	}
	if s.Score != nil {
		score := *s.Score
		c.Score = &score
	}
	if s.FixSuccess != nil {
		ok := *s.FixSuccess
		c.FixSuccess = &ok
	}
	return c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
