// Package checkpoint persists workflow state between runs so a thread can be
// resumed. A thread is identified by "{repo}:{issue_number}".
package checkpoint

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/opendataloader-project/beneissue/internal/state"
)

// ErrNotFound is returned by Get when a thread has no checkpoint.
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint is one persisted snapshot of a run.
type Checkpoint struct {
	ThreadID string `json:"thread_id"`
	Pipeline string `json:"pipeline"`
	// Next is the node that had not yet run when the snapshot was taken.
	Next      string           `json:"next,omitempty"`
	Completed bool             `json:"completed"`
	State     state.IssueState `json:"state"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Store is a key-value store of checkpoints. Delete of a missing thread
// is not an error.
type Store interface {
	Get(ctx context.Context, threadID string) (*Checkpoint, error)
	Put(ctx context.Context, cp Checkpoint) error
	Delete(ctx context.Context, threadID string) error
}

func (c Checkpoint) clone() Checkpoint {
	c.State = c.State.Clone()
	return c
}

// Memory is an in-process Store. Safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	byID map[string]Checkpoint
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{byID: make(map[string]Checkpoint)}
}

func (m *Memory) Get(ctx context.Context, threadID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp, ok := m.byID[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	out := cp.clone()
	return &out, nil
}

func (m *Memory) Put(ctx context.Context, cp Checkpoint) error {
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.byID[cp.ThreadID] = cp.clone()
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(ctx context.Context, threadID string) error {
	m.mu.Lock()
	delete(m.byID, threadID)
	m.mu.Unlock()
	return nil
}
