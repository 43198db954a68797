package nodes

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opendataloader-project/beneissue/internal/state"
)

const (
	existingIssueLimit = 50
	treeMaxDepth       = 2
	treeMaxEntries     = 200
)

var skipDirs = map[string]bool{".git": true, "node_modules": true, "vendor": true}

// Intake fetches the issue and the context the later stages need. Only the
// issue fetch itself is fatal; prior issues and the run count degrade to
// empty values.
func (d *Deps) Intake(ctx context.Context, s state.IssueState) (state.Update, error) {
	log := d.logger().With("node", "intake")

	issue, err := d.Host.GetIssue(s.Repo, s.IssueNumber)
	if err != nil {
		return state.Update{}, fmt.Errorf("fetch issue: %w", err)
	}

	existing, err := d.Host.ListIssues(s.Repo, existingIssueLimit, s.IssueNumber)
	if err != nil {
		log.Warn("existing issues unavailable", "error", err)
		existing = []state.ExistingIssue{}
	}

	count, err := d.Host.DailyRunCount(s.Repo, WorkflowFile)
	if err != nil {
		log.Warn("daily run count unavailable", "error", err)
		count = 0
	}
	limit := d.dailyLimit(s.Command)
	exceeded := limit > 0 && count >= limit
	if exceeded {
		log.Warn("daily limit exceeded", "command", s.Command, "count", count, "limit", limit)
	}

	u := state.Update{
		IssueTitle:         state.Ptr(issue.Title),
		IssueBody:          state.Ptr(issue.Body),
		IssueLabels:        issue.LabelNames(),
		IssueAuthor:        state.Ptr(issue.Author.Login),
		ExistingIssues:     existing,
		DailyRunCount:      state.Ptr(count),
		DailyLimitExceeded: state.Ptr(exceeded),

		// Side effects are per run; a resumed thread must not replay the last run's.
		LabelsToAdd:    []string{},
		LabelsToRemove: []string{},
		CommentToPost:  state.Ptr(""),
	}

	if s.ProjectRoot != "" {
		tree, err := fileTree(s.ProjectRoot, treeMaxDepth, treeMaxEntries)
		if err != nil {
			log.Warn("codebase structure unavailable", "error", err)
		} else {
			u.CodebaseStructure = state.Ptr(tree)
		}
	}
	return u, nil
}

// dailyLimit is the run ceiling for the command that started the run.
// Runs without a command (workflow events) use the triage ceiling.
func (d *Deps) dailyLimit(command string) int {
	daily := d.cfg().Limits.Daily
	switch command {
	case "fix":
		return daily.Fix
	case "analyze":
		return daily.Analyze
	default:
		return daily.Triage
	}
}

// fileTree lists paths under root up to maxDepth levels deep, directories
// with a trailing slash, capped at maxEntries lines.
func fileTree(root string, maxDepth, maxEntries int) (string, error) {
	var lines []string
	truncated := false
	err := filepath.WalkDir(root, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		depth := strings.Count(rel, string(filepath.Separator)) + 1
		if e.IsDir() && skipDirs[e.Name()] {
			return filepath.SkipDir
		}
		if depth > maxDepth {
			if e.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if len(lines) >= maxEntries {
			truncated = true
			return filepath.SkipAll
		}
		line := filepath.ToSlash(rel)
		if e.IsDir() {
			line += "/"
		}
		lines = append(lines, line)
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(lines)
	if truncated {
		lines = append(lines, "...")
	}
	return strings.Join(lines, "\n"), nil
}
