// Package workspace manages the throwaway working copies used by the
// analyze and fix nodes. Every Clone gets its own temporary directory, so
// two runs for the same issue never share a tree.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/opendataloader-project/beneissue/internal/proc"
)

// DefaultGitTimeout bounds clone and push.
const DefaultGitTimeout = 60 * time.Second

// GitRunner provides git commands. Interface for testing.
type GitRunner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecGit implements GitRunner with the git binary. Hooks and credential
// helpers started by git are killed with it when ctx ends.
type ExecGit struct{}

func (g *ExecGit) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := proc.Command(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Author is the identity used for commits.
type Author struct {
	Name  string
	Email string
}

// Manager creates working copies.
type Manager struct {
	git     GitRunner
	baseDir string // parent of temp dirs; "" means os.TempDir()
	token   string
	timeout time.Duration
	author  Author
}

// NewManager creates a Manager. token, when set, is embedded in the clone
// URL as x-access-token so the copy can be pushed.
func NewManager(git GitRunner, baseDir, token string, author Author) *Manager {
	return &Manager{git: git, baseDir: baseDir, token: token, timeout: DefaultGitTimeout, author: author}
}

// CloneURL returns the HTTPS URL for repo ("owner/name").
func (m *Manager) CloneURL(repo string) string {
	if m.token != "" {
		return fmt.Sprintf("https://x-access-token:%s@github.com/%s.git", m.token, repo)
	}
	return fmt.Sprintf("https://github.com/%s.git", repo)
}

// Workspace is one working copy in a temporary directory.
type Workspace struct {
	Dir  string
	root string // temp dir to remove; "" once closed
	base string // HEAD at creation, for change detection
	m    *Manager
}

// Clone makes a shallow clone of repo in a fresh temporary directory.
func (m *Manager) Clone(ctx context.Context, repo string) (*Workspace, error) {
	if repo == "" || strings.HasPrefix(repo, "-") {
		return nil, fmt.Errorf("invalid repository %q", repo)
	}
	root, err := os.MkdirTemp(m.baseDir, "beneissue-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	dir := filepath.Join(root, "repo")

	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if _, err := m.git.Run(cctx, "", "clone", "--depth", "1", m.CloneURL(repo), dir); err != nil {
		os.RemoveAll(root)
		if cctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("clone %s: timeout after %s", repo, m.timeout)
		}
		return nil, fmt.Errorf("clone %s: %s", repo, m.redact(err.Error()))
	}

	ws := &Workspace{Dir: dir, root: root, m: m}
	ws.base, _ = m.git.Run(ctx, dir, "rev-parse", "HEAD")
	return ws, nil
}

// HasChanges reports whether the tree differs from its starting point:
// uncommitted changes, or commits made on top of the starting HEAD.
func (w *Workspace) HasChanges(ctx context.Context) (bool, error) {
	out, err := w.m.git.Run(ctx, w.Dir, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	if strings.TrimSpace(out) != "" {
		return true, nil
	}
	if w.base == "" {
		return false, nil
	}
	head, err := w.m.git.Run(ctx, w.Dir, "rev-parse", "HEAD")
	if err != nil {
		return false, fmt.Errorf("git rev-parse: %w", err)
	}
	return head != w.base, nil
}

// CommitAll creates branch at the current HEAD and commits every change on
// it. A tree whose changes were already committed by the agent just gets
// the branch.
func (w *Workspace) CommitAll(ctx context.Context, branch, message string) error {
	if err := validBranch(branch); err != nil {
		return err
	}
	if _, err := w.m.git.Run(ctx, w.Dir, "checkout", "-B", branch); err != nil {
		return fmt.Errorf("create branch: %w", err)
	}
	if _, err := w.m.git.Run(ctx, w.Dir, "add", "-A"); err != nil {
		return fmt.Errorf("stage changes: %w", err)
	}
	status, err := w.m.git.Run(ctx, w.Dir, "status", "--porcelain")
	if err != nil {
		return fmt.Errorf("git status: %w", err)
	}
	if strings.TrimSpace(status) == "" {
		return nil
	}
	_, err = w.m.git.Run(ctx, w.Dir,
		"-c", "user.name="+w.m.author.Name,
		"-c", "user.email="+w.m.author.Email,
		"commit", "-m", message)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Push pushes branch to origin.
func (w *Workspace) Push(ctx context.Context, branch string) error {
	if err := validBranch(branch); err != nil {
		return err
	}
	pctx, cancel := context.WithTimeout(ctx, w.m.timeout)
	defer cancel()
	if _, err := w.m.git.Run(pctx, w.Dir, "push", "-u", "origin", branch); err != nil {
		if pctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("push branch: timeout after %s", w.m.timeout)
		}
		return fmt.Errorf("push branch: %s", w.m.redact(err.Error()))
	}
	return nil
}

// Close removes the temporary directory. Safe to call more than once.
func (w *Workspace) Close() error {
	if w == nil || w.root == "" {
		return nil
	}
	root := w.root
	w.root = ""
	return os.RemoveAll(root)
}

// BranchName is the fix branch for an issue.
func BranchName(issue int) string {
	return sanitizeBranch(fmt.Sprintf("beneissue/fix-issue-%d", issue))
}

func validBranch(branch string) error {
	if branch == "" || strings.HasPrefix(branch, "-") {
		return fmt.Errorf("invalid branch name %q", branch)
	}
	return nil
}

func (m *Manager) redact(s string) string {
	if m.token == "" {
		return s
	}
	return strings.ReplaceAll(s, m.token, "***")
}

var nonAlphaNum = regexp.MustCompile(`[^a-zA-Z0-9/_-]+`)

// sanitizeBranch cleans up a branch name.
func sanitizeBranch(name string) string {
	s := nonAlphaNum.ReplaceAllString(name, "-")
	s = strings.Trim(s, "-")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}
