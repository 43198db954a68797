package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/opendataloader-project/beneissue/internal/db"
)

// Postgres stores checkpoints in the checkpoints table.
type Postgres struct {
	db *db.DB
}

// NewPostgres returns a Store backed by an open, migrated database.
func NewPostgres(d *db.DB) *Postgres {
	return &Postgres{db: d}
}

func (p *Postgres) Get(ctx context.Context, threadID string) (*Checkpoint, error) {
	row, err := p.db.LoadCheckpoint(ctx, threadID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	cp := &Checkpoint{
		ThreadID:  row.ThreadID,
		Pipeline:  row.Pipeline,
		Next:      row.NextNode,
		Completed: row.Completed,
		UpdatedAt: row.UpdatedAt,
	}
	if err := json.Unmarshal(row.State, &cp.State); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint %s: %w", threadID, err)
	}
	return cp, nil
}

func (p *Postgres) Put(ctx context.Context, cp Checkpoint) error {
	data, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("marshal checkpoint state: %w", err)
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	return p.db.SaveCheckpoint(ctx, db.CheckpointRow{
		ThreadID:  cp.ThreadID,
		Pipeline:  cp.Pipeline,
		NextNode:  cp.Next,
		Completed: cp.Completed,
		State:     data,
		UpdatedAt: cp.UpdatedAt,
	})
}

func (p *Postgres) Delete(ctx context.Context, threadID string) error {
	return p.db.DeleteCheckpoint(ctx, threadID)
}

// DefaultCacheSize is the number of threads kept by NewCached.
const DefaultCacheSize = 256

// Cached is a read-through, write-through LRU in front of another Store.
type Cached struct {
	next  Store
	cache *lru.Cache[string, Checkpoint]
}

// NewCached wraps next with an LRU of size entries.
func NewCached(next Store, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, Checkpoint](size)
	if err != nil {
		return nil, fmt.Errorf("create checkpoint cache: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) Get(ctx context.Context, threadID string) (*Checkpoint, error) {
	if cp, ok := c.cache.Get(threadID); ok {
		out := cp.clone()
		return &out, nil
	}
	cp, err := c.next.Get(ctx, threadID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(threadID, cp.clone())
	return cp, nil
}

func (c *Cached) Put(ctx context.Context, cp Checkpoint) error {
	if err := c.next.Put(ctx, cp); err != nil {
		c.cache.Remove(cp.ThreadID)
		return err
	}
	c.cache.Add(cp.ThreadID, cp.clone())
	return nil
}

func (c *Cached) Delete(ctx context.Context, threadID string) error {
	c.cache.Remove(threadID)
	return c.next.Delete(ctx, threadID)
}
