package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/opendataloader-project/beneissue/internal/state"
)

const commentFooter = "\n\n---\n*Analyzed by [beneissue](https://github.com/opendataloader-project/beneissue)*"

// ApplyLabels adds and removes the accumulated labels one by one. A label
// that fails is logged and skipped.
func (d *Deps) ApplyLabels(ctx context.Context, s state.IssueState) (state.Update, error) {
	log := d.logger().With("node", "apply_labels")
	for _, l := range s.LabelsToAdd {
		if err := d.Host.AddLabel(s.Repo, s.IssueNumber, l); err != nil {
			log.Warn("add label failed", "label", l, "error", err)
		}
	}
	for _, l := range s.LabelsToRemove {
		if err := d.Host.RemoveLabel(s.Repo, s.IssueNumber, l); err != nil {
			log.Warn("remove label failed", "label", l, "error", err)
		}
	}
	return state.Update{}, nil
}

// PostComment posts the assembled summary comment, if there is anything to
// say. A failed post is logged; labels are still applied afterwards.
func (d *Deps) PostComment(ctx context.Context, s state.IssueState) (state.Update, error) {
	body := BuildComment(s)
	if body == "" {
		return state.Update{}, nil
	}
	if err := d.Host.Comment(s.Repo, s.IssueNumber, body); err != nil {
		d.logger().Warn("post comment failed", "node", "post_comment", "error", err)
	}
	return state.Update{}, nil
}

// BuildComment assembles the issue comment from s. It returns "" when no
// section applies.
func BuildComment(s state.IssueState) string {
	var parts []string

	if s.TriageDecision != "" && s.TriageDecision != state.TriageValid {
		parts = append(parts, fmt.Sprintf("**Triage Decision:** %s", s.TriageDecision))
		parts = append(parts, fmt.Sprintf("**Reason:** %s", orDefault(s.TriageReason, "N/A")))
		if s.DuplicateOf > 0 {
			parts = append(parts, fmt.Sprintf("**Duplicate of:** #%d", s.DuplicateOf))
		}
		if len(s.TriageQuestions) > 0 {
			parts = append(parts, "\n**Questions:**")
			for _, q := range s.TriageQuestions {
				parts = append(parts, "- "+q)
			}
		}
	}

	if s.AnalysisSummary != "" {
		parts = append(parts, "---", "## Analysis Summary", s.AnalysisSummary)
		if len(s.AffectedFiles) > 0 {
			parts = append(parts, "\n**Affected Files:**")
			for _, f := range s.AffectedFiles {
				parts = append(parts, fmt.Sprintf("- `%s`", f))
			}
		}
		if s.FixApproach != "" {
			parts = append(parts, fmt.Sprintf("\n**Recommended Approach:**\n%s", s.FixApproach))
		}
		if s.Score != nil {
			parts = append(parts, fmt.Sprintf("\n**Auto-fix Score:** %d/100", s.Score.Total))
			parts = append(parts, fmt.Sprintf("**Decision:** %s", orDefault(string(s.FixDecision), "N/A")))
		}
	}

	if s.FixSuccess != nil && !*s.FixSuccess {
		parts = append(parts, "---", "## Automated Fix Failed", orDefault(s.FixError, msgUnknownFailure))
	}

	if extra := orDefault(s.CommentToPost, s.CommentDraft); strings.TrimSpace(extra) != "" {
		parts = append(parts, "---", extra)
	}

	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n") + commentFooter
}
