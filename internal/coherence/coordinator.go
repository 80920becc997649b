package coherence

import (
	"context"
	"log/slog"

	"github.com/inkwell-cms/inkwell/internal/change"
	"github.com/inkwell-cms/inkwell/internal/platform/cache"
)

// Coordinator applies the invalidation table to the read-side cache.
// It subscribes to the change bus and, for every committed mutation,
// evicts exactly the keys the table names for that (entity, op) pair —
// never more, never less. Parameterized list and date-ranged keys are
// deliberately absent from the table: their cardinality is unbounded
// and their TTL bounds staleness instead.
type Coordinator struct {
	store  *cache.Store
	logger *slog.Logger
}

// NewCoordinator wires the coordinator to the cache store.
func NewCoordinator(store *cache.Store, logger *slog.Logger) *Coordinator {
	return &Coordinator{store: store, logger: logger}
}

// Register subscribes the coordinator to the bus.
func (c *Coordinator) Register(bus *change.Bus) {
	bus.Subscribe(c.OnChange)
}

// OnChange evicts the keys affected by the event. It is idempotent
// (deleting an absent key is a no-op) and cannot veto the mutation: a
// failed eviction is reported to the caller for logging and counting
// only.
func (c *Coordinator) OnChange(ctx context.Context, ev change.Event) error {
	keys := c.keysFor(ev)
	if len(keys) == 0 {
		return nil
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		if c.logger != nil {
			c.logger.Error("cache eviction failed",
				slog.String("entity", string(ev.Entity)),
				slog.String("op", string(ev.Op)),
				slog.Any("keys", keys),
				slog.Any("error", err))
		}
		return err
	}
	return nil
}

// keysFor is the invalidation table.
func (c *Coordinator) keysFor(ev change.Event) []string {
	switch ev.Entity {
	case change.EntityPost:
		switch ev.Op {
		case change.OpCreate:
			return []string{StatsKey(StatsPosts), StatsKey(StatsUsers)}
		case change.OpUpdate, change.OpDelete:
			return []string{PostKey(ev.ID), StatsKey(StatsPosts), StatsKey(StatsUsers)}
		}
	case change.EntityComment:
		// The parent post embeds the comment count and last comment,
		// so its single-resource key goes stale on any comment change.
		keys := []string{StatsKey(StatsComments), StatsKey(StatsPosts), StatsKey(StatsUsers)}
		if postID := ev.Relation(change.EntityPost); postID > 0 {
			keys = append([]string{PostKey(postID)}, keys...)
		}
		return keys
	case change.EntityRole:
		return []string{RolesMetaKey()}
	case change.EntityRoleAssignment:
		return []string{StatsKey(StatsUsers)}
	}
	return nil
}
