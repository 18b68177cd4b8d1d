// Package rendercache persists step render results. Metadata (status,
// column summary, checksum) lives on the step inside the workflow
// store; the table payload itself goes to a blob bucket under a key
// that embeds the delta id, so a stale payload can never be mistaken
// for a fresh one.
package rendercache

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/petrijr/deltaflow/internal/blob"
	"github.com/petrijr/deltaflow/internal/persistence"
	"github.com/petrijr/deltaflow/pkg/api"
)

// Config wires a Cache.
type Config struct {
	Bucket blob.Bucket
	Store  persistence.WorkflowStore

	// Budget caps the total payload bytes cached per workflow. Zero
	// means unlimited. When a write pushes a workflow over budget the
	// oldest superseded entries are evicted; an entry still referenced
	// by its step's latest delta is never evicted.
	Budget int64

	Logger *slog.Logger
}

// Cache reads and writes cached render results.
type Cache struct {
	bucket blob.Bucket
	store  persistence.WorkflowStore
	budget int64
	logger *slog.Logger
}

func New(cfg Config) *Cache {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		bucket: cfg.Bucket,
		store:  cfg.Store,
		budget: cfg.Budget,
		logger: logger,
	}
}

// Fresh returns the step's cached result if it was rendered under the
// step's latest relevant delta, nil otherwise.
func Fresh(step *api.Step) *api.CachedResult {
	if step.CachedResult == nil {
		return nil
	}
	if step.CachedResult.DeltaID != step.LastRelevantDeltaID {
		return nil
	}
	return step.CachedResult
}

// BlobKey is the bucket key for one step's result under one delta.
func BlobKey(workflowID, tabSlug, stepSlug string, deltaID int64) string {
	return fmt.Sprintf("%s/%s/%s/%d", workflowID, tabSlug, stepSlug, deltaID)
}

func stepPrefix(workflowID, tabSlug, stepSlug string) string {
	return fmt.Sprintf("%s/%s/%s/", workflowID, tabSlug, stepSlug)
}

// Put stores the result for the step under deltaID, superseding any
// prior entry. Results without columns (module errors, unreachable
// steps) keep only metadata; no payload is written for them.
func (c *Cache) Put(ctx context.Context, workflowID string, ref api.StepRef, deltaID int64, result api.RenderResult) (*api.CachedResult, error) {
	status := result.Status()

	cached := &api.CachedResult{
		DeltaID:   deltaID,
		Status:    status,
		Errors:    cloneErrors(result.Errors),
		Columns:   append([]api.Column(nil), result.Table.Columns...),
		NRows:     result.Table.NRows(),
		CreatedAt: time.Now(),
	}

	// Old payloads go before the new one lands: a reader that loses the
	// race sees a missing blob and treats it as corrupt, which forces a
	// clean re-render instead of serving a superseded table.
	if err := c.bucket.DeletePrefix(ctx, stepPrefix(workflowID, ref.TabSlug, ref.StepSlug)); err != nil {
		return nil, fmt.Errorf("rendercache: drop superseded payloads: %w", err)
	}

	if len(result.Table.Columns) > 0 {
		payload, err := persistence.EncodeValue(result.Table)
		if err != nil {
			return nil, fmt.Errorf("rendercache: encode table: %w", err)
		}
		sum := xxhash.Sum64(payload)

		framed := make([]byte, 8+len(payload))
		binary.BigEndian.PutUint64(framed, sum)
		copy(framed[8:], payload)

		key := BlobKey(workflowID, ref.TabSlug, ref.StepSlug, deltaID)
		if err := c.bucket.Put(ctx, key, framed); err != nil {
			return nil, fmt.Errorf("rendercache: write payload: %w", err)
		}
		cached.BlobKey = key
		cached.Size = int64(len(framed))
		cached.Hash = sum
	}

	err := c.store.UpdateStep(ctx, workflowID, ref, func(step *api.Step) error {
		step.CachedResult = cached
		return nil
	})
	if err != nil {
		return nil, err
	}

	if c.budget > 0 {
		if err := c.evictOverBudget(ctx, workflowID, ref); err != nil {
			c.logger.Warn("render cache eviction failed",
				slog.String("workflow_id", workflowID),
				slog.String("error", err.Error()))
		}
	}
	return cached, nil
}

// Load decodes the payload behind a cached result. Any inconsistency
// between metadata and stored bytes surfaces as ErrCorruptCache;
// callers treat that as "absent" and re-render.
func (c *Cache) Load(ctx context.Context, cached *api.CachedResult) (api.Table, error) {
	if cached.BlobKey == "" {
		// Metadata-only entry: an empty or error result.
		return api.Table{Columns: append([]api.Column(nil), cached.Columns...)}, nil
	}

	framed, err := c.bucket.Get(ctx, cached.BlobKey)
	if err != nil {
		return api.Table{}, fmt.Errorf("%w: payload %s missing: %v", api.ErrCorruptCache, cached.BlobKey, err)
	}
	if int64(len(framed)) != cached.Size || len(framed) < 8 {
		return api.Table{}, fmt.Errorf("%w: payload %s has %d bytes, expected %d", api.ErrCorruptCache, cached.BlobKey, len(framed), cached.Size)
	}
	sum := binary.BigEndian.Uint64(framed)
	payload := framed[8:]
	if xxhash.Sum64(payload) != sum || sum != cached.Hash {
		return api.Table{}, fmt.Errorf("%w: payload %s checksum mismatch", api.ErrCorruptCache, cached.BlobKey)
	}

	table, err := persistence.DecodeValue[api.Table](payload)
	if err != nil {
		return api.Table{}, fmt.Errorf("%w: payload %s does not decode: %v", api.ErrCorruptCache, cached.BlobKey, err)
	}
	return table, nil
}

// Clear drops the step's cached result and every payload attempt.
func (c *Cache) Clear(ctx context.Context, workflowID string, ref api.StepRef) error {
	if err := c.bucket.DeletePrefix(ctx, stepPrefix(workflowID, ref.TabSlug, ref.StepSlug)); err != nil {
		return err
	}
	return c.store.UpdateStep(ctx, workflowID, ref, func(step *api.Step) error {
		step.CachedResult = nil
		return nil
	})
}

type evictable struct {
	ref       api.StepRef
	blobKey   string
	size      int64
	createdAt time.Time
}

// evictOverBudget removes superseded entries, oldest first, until the
// workflow's cached payloads fit the budget again. The entry written by
// the current Put and every other still-live entry stay put; if live
// entries alone exceed the budget the overshoot is tolerated.
func (c *Cache) evictOverBudget(ctx context.Context, workflowID string, justWritten api.StepRef) error {
	wf, err := c.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}

	var total int64
	var candidates []evictable
	for _, tab := range wf.Tabs {
		for _, step := range tab.Steps {
			cached := step.CachedResult
			if cached == nil {
				continue
			}
			total += cached.Size
			ref := api.StepRef{TabSlug: tab.Slug, StepSlug: step.Slug}
			if ref == justWritten || cached.DeltaID == step.LastRelevantDeltaID {
				continue
			}
			candidates = append(candidates, evictable{
				ref:       ref,
				blobKey:   cached.BlobKey,
				size:      cached.Size,
				createdAt: cached.CreatedAt,
			})
		}
	}
	if total <= c.budget {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].createdAt.Before(candidates[j].createdAt)
	})
	for _, victim := range candidates {
		if total <= c.budget {
			break
		}
		if err := c.Clear(ctx, workflowID, victim.ref); err != nil {
			return err
		}
		total -= victim.size
		c.logger.Debug("evicted superseded render result",
			slog.String("workflow_id", workflowID),
			slog.String("tab_slug", victim.ref.TabSlug),
			slog.String("step_slug", victim.ref.StepSlug))
	}
	return nil
}

func cloneErrors(errs []api.RenderError) []api.RenderError {
	if len(errs) == 0 {
		return nil
	}
	return append([]api.RenderError(nil), errs...)
}
