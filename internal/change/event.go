// Package change defines the typed change events emitted by the
// mutation pipeline and the synchronous in-process bus that delivers
// them to subscribers (the cache coherence coordinator, the permission
// registry rebuilder).
package change

import (
	"context"
	"errors"
	"log/slog"
)

// EntityType identifies the mutated entity.
type EntityType string

const (
	EntityPost           EntityType = "post"
	EntityComment        EntityType = "comment"
	EntityRole           EntityType = "role"
	EntityRoleAssignment EntityType = "role_assignment"
	EntityUser           EntityType = "user"
)

// Op is the mutation kind.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Ref points at a related entity affected by the mutation, e.g. the
// parent post of a comment.
type Ref struct {
	Entity EntityType
	ID     int64
}

// Event describes a committed mutation. Exactly one event is emitted
// per successful mutation, synchronously, after the transaction
// commits.
type Event struct {
	Entity    EntityType
	Op        Op
	ID        int64
	Relations []Ref
}

// Relation returns the ID of the first related entity of the given
// type, or 0 when none is recorded.
func (e Event) Relation(entity EntityType) int64 {
	for _, ref := range e.Relations {
		if ref.Entity == entity {
			return ref.ID
		}
	}
	return 0
}

// Subscriber consumes change events. Handlers must be idempotent and
// side-effect-only: the mutation is already committed and cannot be
// vetoed.
type Subscriber func(ctx context.Context, ev Event) error

// Bus fans events out to subscribers in subscription order, in the
// caller's goroutine. Subscription happens at wiring time, before the
// first Publish, so no locking is needed.
type Bus struct {
	logger *slog.Logger
	subs   []Subscriber
}

// NewBus constructs an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe appends a subscriber.
func (b *Bus) Subscribe(sub Subscriber) {
	b.subs = append(b.subs, sub)
}

// Publish delivers the event to every subscriber. All subscribers run
// even when an earlier one fails; the joined error is returned for the
// publisher to log.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, sub := range b.subs {
		if err := sub(ctx, ev); err != nil {
			if b.logger != nil {
				b.logger.Error("change event delivery failed",
					slog.String("entity", string(ev.Entity)),
					slog.String("op", string(ev.Op)),
					slog.Int64("id", ev.ID),
					slog.Any("error", err))
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
