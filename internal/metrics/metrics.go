// Package metrics turns the final state of a run into a workflow_runs row.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opendataloader-project/beneissue/internal/db"
	"github.com/opendataloader-project/beneissue/internal/state"
)

// WorkflowRunRecord is the per-run summary persisted after every run.
type WorkflowRunRecord struct {
	Repo         string
	IssueNumber  int
	WorkflowType string
	StartedAt    time.Time
	CompletedAt  time.Time

	TriageDecision string
	TriageReason   string
	DuplicateOf    int

	FixDecision string
	Score       *int
	Priority    string
	StoryPoints int

	FixSuccess *bool
	PRURL      string
	FixError   string

	InputTokens  int64
	OutputTokens int64
}

// FromState builds a record from a finished run.
func FromState(kind string, started, completed time.Time, s state.IssueState) WorkflowRunRecord {
	r := WorkflowRunRecord{
		Repo:           s.Repo,
		IssueNumber:    s.IssueNumber,
		WorkflowType:   kind,
		StartedAt:      started,
		CompletedAt:    completed,
		TriageDecision: string(s.TriageDecision),
		TriageReason:   s.TriageReason,
		DuplicateOf:    s.DuplicateOf,
		FixDecision:    string(s.FixDecision),
		Priority:       string(s.Priority),
		StoryPoints:    s.StoryPoints,
		PRURL:          s.PRURL,
		FixError:       s.FixError,
		InputTokens:    s.InputTokens,
		OutputTokens:   s.OutputTokens,
	}
	if s.Score != nil {
		total := s.Score.Total
		r.Score = &total
	}
	if s.FixSuccess != nil {
		ok := *s.FixSuccess
		r.FixSuccess = &ok
	}
	return r
}

// Row converts the record to its database form. Empty values become NULL.
func (r WorkflowRunRecord) Row() db.WorkflowRun {
	return db.WorkflowRun{
		Repo:           r.Repo,
		IssueNumber:    r.IssueNumber,
		WorkflowType:   r.WorkflowType,
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
		TriageDecision: nullString(r.TriageDecision),
		TriageReason:   nullString(r.TriageReason),
		DuplicateOf:    nullInt(r.DuplicateOf),
		FixDecision:    nullString(r.FixDecision),
		Score:          r.Score,
		Priority:       nullString(r.Priority),
		StoryPoints:    nullInt(r.StoryPoints),
		FixSuccess:     r.FixSuccess,
		PRURL:          nullString(r.PRURL),
		FixError:       nullString(r.FixError),
		InputTokens:    r.InputTokens,
		OutputTokens:   r.OutputTokens,
	}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullInt(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

// Sink stores run rows. *db.DB satisfies it.
type Sink interface {
	InsertRun(ctx context.Context, r db.WorkflowRun) (int64, error)
}

// Recorder persists a record for every finished run.
type Recorder struct {
	sink   Sink
	now    func() time.Time
	logger *slog.Logger
}

// NewRecorder returns a Recorder writing to sink.
func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{sink: sink, now: time.Now, logger: logger}
}

// Record stores the final state of a run.
func (r *Recorder) Record(ctx context.Context, kind string, started time.Time, s state.IssueState) error {
	rec := FromState(kind, started, r.now(), s)
	id, err := r.sink.InsertRun(ctx, rec.Row())
	if err != nil {
		return fmt.Errorf("record run %s: %w", s.Key(), err)
	}
	r.logger.Debug("run recorded", "id", id, "repo", rec.Repo, "issue", rec.IssueNumber, "workflow", kind)
	return nil
}
