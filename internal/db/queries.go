package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// CheckpointRow represents a row in the checkpoints table.
type CheckpointRow struct {
	ThreadID  string
	Pipeline  string
	NextNode  string
	Completed bool
	State     []byte
	UpdatedAt time.Time
}

// WorkflowRun represents a row in the workflow_runs table. Pointer fields
// are NULL when the run never reached the stage that sets them.
type WorkflowRun struct {
	ID             int64
	Repo           string
	IssueNumber    int
	WorkflowType   string
	StartedAt      time.Time
	CompletedAt    time.Time
	TriageDecision *string
	TriageReason   *string
	DuplicateOf    *int
	FixDecision    *string
	Score          *int
	Priority       *string
	StoryPoints    *int
	FixSuccess     *bool
	PRURL          *string
	FixError       *string
	InputTokens    int64
	OutputTokens   int64
}

// SaveCheckpoint upserts the checkpoint for a thread.
func (d *DB) SaveCheckpoint(ctx context.Context, row CheckpointRow) error {
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, pipeline, next_node, completed, state, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (thread_id) DO UPDATE SET
			pipeline = EXCLUDED.pipeline,
			next_node = EXCLUDED.next_node,
			completed = EXCLUDED.completed,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at`,
		row.ThreadID, row.Pipeline, row.NextNode, row.Completed, row.State, row.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", row.ThreadID, err)
	}
	return nil
}

// LoadCheckpoint returns the checkpoint for a thread, or ErrNotFound.
func (d *DB) LoadCheckpoint(ctx context.Context, threadID string) (*CheckpointRow, error) {
	var row CheckpointRow
	err := d.conn.QueryRowContext(ctx, `
		SELECT thread_id, pipeline, next_node, completed, state, updated_at
		FROM checkpoints WHERE thread_id = $1`, threadID,
	).Scan(&row.ThreadID, &row.Pipeline, &row.NextNode, &row.Completed, &row.State, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", threadID, err)
	}
	return &row, nil
}

// DeleteCheckpoint removes the checkpoint for a thread. Missing rows are not an error.
func (d *DB) DeleteCheckpoint(ctx context.Context, threadID string) error {
	if _, err := d.conn.ExecContext(ctx, "DELETE FROM checkpoints WHERE thread_id = $1", threadID); err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", threadID, err)
	}
	return nil
}

// InsertRun stores a completed workflow run and returns its id.
func (d *DB) InsertRun(ctx context.Context, r WorkflowRun) (int64, error) {
	var id int64
	err := d.conn.QueryRowContext(ctx, `
		INSERT INTO workflow_runs (
			repo, issue_number, workflow_type, started_at, completed_at,
			triage_decision, triage_reason, duplicate_of,
			fix_decision, score, priority, story_points,
			fix_success, pr_url, fix_error, input_tokens, output_tokens
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`,
		r.Repo, r.IssueNumber, r.WorkflowType, r.StartedAt.UTC(), r.CompletedAt.UTC(),
		r.TriageDecision, r.TriageReason, r.DuplicateOf,
		r.FixDecision, r.Score, r.Priority, r.StoryPoints,
		r.FixSuccess, r.PRURL, r.FixError, r.InputTokens, r.OutputTokens,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert workflow run: %w", err)
	}
	return id, nil
}

// CountRunsSince counts runs of a workflow type for repo started at or after since.
// An empty workflowType counts every type.
func (d *DB) CountRunsSince(ctx context.Context, repo, workflowType string, since time.Time) (int, error) {
	var n int
	err := d.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM workflow_runs
		WHERE repo = $1 AND ($2 = '' OR workflow_type = $2) AND started_at >= $3`,
		repo, workflowType, since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count workflow runs: %w", err)
	}
	return n, nil
}

// ListRuns returns the runs for one issue, newest first.
func (d *DB) ListRuns(ctx context.Context, repo string, issue int) ([]WorkflowRun, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT id, repo, issue_number, workflow_type, started_at, completed_at,
			triage_decision, triage_reason, duplicate_of,
			fix_decision, score, priority, story_points,
			fix_success, pr_url, fix_error, input_tokens, output_tokens
		FROM workflow_runs WHERE repo = $1 AND issue_number = $2
		ORDER BY started_at DESC, id DESC`, repo, issue)
	if err != nil {
		return nil, fmt.Errorf("query workflow runs: %w", err)
	}
	defer rows.Close()

	var runs []WorkflowRun
	for rows.Next() {
		var r WorkflowRun
		if err := rows.Scan(
			&r.ID, &r.Repo, &r.IssueNumber, &r.WorkflowType, &r.StartedAt, &r.CompletedAt,
			&r.TriageDecision, &r.TriageReason, &r.DuplicateOf,
			&r.FixDecision, &r.Score, &r.Priority, &r.StoryPoints,
			&r.FixSuccess, &r.PRURL, &r.FixError, &r.InputTokens, &r.OutputTokens,
		); err != nil {
			return nil, fmt.Errorf("scan workflow run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
