package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opendataloader-project/beneissue/internal/extract"
	"github.com/opendataloader-project/beneissue/internal/state"
)

// ErrInvalidResult wraps a response that parsed but broke the schema, or
// did not parse at all.
var ErrInvalidResult = errors.New("invalid model result")

// TriageResult is the triage classification.
type TriageResult struct {
	Decision    state.TriageDecision `json:"decision"`
	Reason      string               `json:"reason"`
	DuplicateOf int                  `json:"duplicate_of,omitempty"`
	Questions   []string             `json:"questions,omitempty"`
}

// Validate checks the decision enumeration. duplicate_of is dropped for
// anything but a duplicate.
func (r *TriageResult) Validate() error {
	if !r.Decision.Valid() {
		return fmt.Errorf("decision %q is not one of valid, invalid, duplicate, needs_info", r.Decision)
	}
	if r.Decision != state.TriageDuplicate {
		r.DuplicateOf = 0
	}
	if r.DuplicateOf < 0 {
		return fmt.Errorf("duplicate_of %d must be positive", r.DuplicateOf)
	}
	return nil
}

// AnalyzeResult is the fix-eligibility assessment. The agent strategy
// recovers the same object from free-form output.
type AnalyzeResult struct {
	Summary       string                `json:"summary"`
	AffectedFiles []string              `json:"affected_files"`
	Approach      string                `json:"approach,omitempty"`
	Score         *state.ScoreBreakdown `json:"score,omitempty"`
	Priority      state.Priority        `json:"priority,omitempty"`
	StoryPoints   int                   `json:"story_points,omitempty"`
	FixDecision   state.FixDecision     `json:"fix_decision,omitempty"`
	Reason        string                `json:"reason,omitempty"`
	CommentDraft  string                `json:"comment_draft,omitempty"`
	Assignee      string                `json:"assignee,omitempty"`
	Labels        []string              `json:"labels,omitempty"`
}

// Validate checks the schema. A result needs either a fix decision or a
// score to derive one from.
func (r *AnalyzeResult) Validate() error {
	if strings.TrimSpace(r.Summary) == "" {
		return errors.New("summary is empty")
	}
	if r.Score != nil {
		if err := r.Score.Validate(); err != nil {
			return err
		}
	}
	if r.FixDecision != "" && !r.FixDecision.Valid() {
		return fmt.Errorf("fix_decision %q is not one of auto_eligible, manual_required, comment_only", r.FixDecision)
	}
	if r.FixDecision == "" && r.Score == nil {
		return errors.New("neither fix_decision nor score is set")
	}
	if r.Priority != "" && !r.Priority.Valid() {
		return fmt.Errorf("priority %q is not one of P0, P1, P2", r.Priority)
	}
	if r.StoryPoints != 0 && !state.ValidStoryPoints(r.StoryPoints) {
		return fmt.Errorf("story_points %d is not one of 1, 2, 3, 5, 8", r.StoryPoints)
	}
	return nil
}

// ParseTriage recovers a TriageResult from model output.
func ParseTriage(output string) (*TriageResult, error) {
	r, _, err := extract.Decode(output, "decision", (*TriageResult).Validate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	return r, nil
}

// ParseAnalysis recovers an AnalyzeResult from model or agent output.
func ParseAnalysis(output string) (*AnalyzeResult, extract.Strategy, error) {
	r, strategy, err := extract.Decode(output, "summary", (*AnalyzeResult).Validate)
	if err != nil {
		return nil, extract.StrategyNone, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	return r, strategy, nil
}

// Classify makes the single triage call. There is no retry; a transport
// error or invalid result is returned as is. Usage is reported whenever
// the model answered.
func (c *Client) Classify(ctx context.Context, model, system, user string) (*TriageResult, Usage, error) {
	resp, err := c.complete(ctx, "triage", Request{Model: model, System: system, User: user, MaxTokens: 1024})
	if err != nil {
		return nil, Usage{}, fmt.Errorf("triage call: %w", err)
	}
	r, err := ParseTriage(resp.Text)
	if err != nil {
		return nil, resp.Usage, err
	}
	return r, resp.Usage, nil
}

// Assess makes the structured analysis call, retrying transient API
// failures.
func (c *Client) Assess(ctx context.Context, model, system, user string) (*AnalyzeResult, Usage, error) {
	resp, err := c.completeWithRetry(ctx, "analyze", Request{Model: model, System: system, User: user})
	if err != nil {
		return nil, Usage{}, fmt.Errorf("analyze call: %w", err)
	}
	r, _, err := ParseAnalysis(resp.Text)
	if err != nil {
		return nil, resp.Usage, err
	}
	return r, resp.Usage, nil
}
