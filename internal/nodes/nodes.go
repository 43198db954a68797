// Package nodes implements the workflow stages. Each stage reads the
// running IssueState and returns a state.Update; none of them mutate the
// state they are given.
//
// Failures inside analyze and fix are converted to structured results so
// the run always reaches the action stages. Intake and triage return errors,
// which abort the run.
package nodes

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/opendataloader-project/beneissue/internal/agent"
	"github.com/opendataloader-project/beneissue/internal/config"
	"github.com/opendataloader-project/beneissue/internal/github"
	"github.com/opendataloader-project/beneissue/internal/labels"
	"github.com/opendataloader-project/beneissue/internal/llm"
	"github.com/opendataloader-project/beneissue/internal/state"
	"github.com/opendataloader-project/beneissue/internal/workspace"
)

// WorkflowFile is the workflow whose successful runs count toward the daily limit.
const WorkflowFile = "beneissue-workflow.yml"

// Host is the issue-hosting collaborator.
type Host interface {
	GetIssue(repo string, number int) (*github.Issue, error)
	ListIssues(repo string, limit, exclude int) ([]state.ExistingIssue, error)
	DailyRunCount(repo, workflow string) (int, error)
	AddLabel(repo string, number int, name string) error
	RemoveLabel(repo string, number int, name string) error
	Comment(repo string, number int, body string) error
	CreatePR(repo string, opts github.PRCreateOpts) (*github.PRCreateResult, error)
}

// Classifier runs the triage model call.
type Classifier interface {
	Classify(ctx context.Context, model, system, user string) (*llm.TriageResult, llm.Usage, error)
}

// Assessor runs the structured analysis model call.
type Assessor interface {
	Assess(ctx context.Context, model, system, user string) (*llm.AnalyzeResult, llm.Usage, error)
}

// AgentRunner runs the coding agent.
type AgentRunner interface {
	Binary() string
	Run(ctx context.Context, req agent.Request) (*agent.Result, error)
}

// TranscriptSink stores agent output. Optional.
type TranscriptSink interface {
	Put(ctx context.Context, key string, data []byte) error
}

// Deps holds the collaborators shared by every stage.
type Deps struct {
	Host        Host
	Classifier  Classifier
	Assessor    Assessor
	Agent       AgentRunner
	Workspaces  *workspace.Manager
	Config      *config.Config
	Labels      *labels.Table
	Transcripts TranscriptSink
	Logger      *slog.Logger
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return d.Logger
}

func (d *Deps) cfg() *config.Config {
	if d.Config == nil {
		return config.Default()
	}
	return d.Config
}

func (d *Deps) table() *labels.Table {
	if d.Labels == nil {
		return d.cfg().LabelTable()
	}
	return d.Labels
}

// saveTranscript uploads agent output. Failures are logged only.
func (d *Deps) saveTranscript(ctx context.Context, s state.IssueState, node, output string) {
	if d.Transcripts == nil || output == "" {
		return
	}
	key := fmt.Sprintf("%s/%d/%s-%d.log", s.Repo, s.IssueNumber, node, time.Now().Unix())
	if err := d.Transcripts.Put(ctx, key, []byte(output)); err != nil {
		d.logger().Warn("transcript upload failed", "node", node, "key", key, "error", err)
	}
}

// truncate cuts s to at most n bytes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
