package nodes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opendataloader-project/beneissue/internal/labels"
	"github.com/opendataloader-project/beneissue/internal/prompt"
	"github.com/opendataloader-project/beneissue/internal/state"
)

const readmeLimit = 8000

// Triage classifies the issue with one model call. The reason text is
// never used for routing.
func (d *Deps) Triage(ctx context.Context, s state.IssueState) (state.Update, error) {
	cfg := d.cfg()

	name := cfg.Project.Name
	if name == "" {
		name = s.Repo
	}
	system, err := prompt.LoadAndRender(prompt.Triage, s.ProjectRoot, prompt.Vars{
		"project_name":        name,
		"project_description": cfg.Project.Description,
		"readme":              readme(s),
		"existing_issues":     formatExistingIssues(s.ExistingIssues),
	})
	if err != nil {
		return state.Update{}, err
	}
	user := fmt.Sprintf("Title: %s\n\n%s", s.IssueTitle, s.IssueBody)

	r, usage, err := d.Classifier.Classify(ctx, cfg.Models.Triage, system, user)
	if err != nil {
		return state.Update{}, fmt.Errorf("classify issue: %w", err)
	}

	if r.Decision == state.TriageDuplicate {
		d.logger().Info("duplicate detected", "node", "triage", "duplicate_of", r.DuplicateOf)
	}

	u := state.Update{
		TriageDecision: state.Ptr(r.Decision),
		TriageReason:   state.Ptr(r.Reason),
		DuplicateOf:    state.Ptr(r.DuplicateOf),
		LabelsToAdd:    labels.Union(s.LabelsToAdd, d.table().ForTriage(r.Decision)...),
		InputTokens:    usage.InputTokens,
		OutputTokens:   usage.OutputTokens,
	}
	if len(r.Questions) > 0 {
		u.TriageQuestions = r.Questions
	}
	return u, nil
}

// readme returns the README of the project root (or the working directory).
func readme(s state.IssueState) string {
	root := s.ProjectRoot
	if root == "" {
		root = "."
	}
	data, err := os.ReadFile(filepath.Join(root, "README.md"))
	if err != nil {
		return fmt.Sprintf("Repository: %s\n\nNo README.md found.", s.Repo)
	}
	return truncate(string(data), readmeLimit)
}

func formatExistingIssues(issues []state.ExistingIssue) string {
	if len(issues) == 0 {
		return "No existing issues loaded."
	}
	var b strings.Builder
	for _, i := range issues {
		fmt.Fprintf(&b, "- #%d: %s (%s)", i.Number, i.Title, i.State)
		if len(i.Labels) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(i.Labels, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
