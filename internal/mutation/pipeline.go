// Package mutation implements the single entry point for all writes:
// authorize, persist transactionally, then emit exactly one change
// event. Callers must not write to storage around it.
package mutation

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkwell-cms/inkwell/internal/authz"
	"github.com/inkwell-cms/inkwell/internal/change"
	"github.com/inkwell-cms/inkwell/internal/platform/db"
)

// TxRunner abstracts the transactional boundary so the pipeline can be
// exercised without a live database.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error
}

// PoolRunner runs transactions on a pgx pool.
type PoolRunner struct {
	Pool *pgxpool.Pool
}

// WithTx implements TxRunner.
func (r PoolRunner) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return db.WithTx(ctx, r.Pool, fn)
}

// Apply persists the mutation inside the given transaction and
// describes it as a change event. It runs only after the authorization
// decision allowed the action.
type Apply func(ctx context.Context, tx pgx.Tx) (change.Event, error)

// Pipeline wires decision, storage and event emission together.
type Pipeline struct {
	runner   TxRunner
	registry *authz.Registry
	bus      *change.Bus
	logger   *slog.Logger

	// OnEmitFailure is invoked when event delivery fails after a
	// successful commit; the app wires it to the drift counter.
	OnEmitFailure func()
}

// NewPipeline constructs the pipeline.
func NewPipeline(runner TxRunner, registry *authz.Registry, bus *change.Bus, logger *slog.Logger) *Pipeline {
	return &Pipeline{runner: runner, registry: registry, bus: bus, logger: logger}
}

// Registry exposes the permission registry for read-path decisions.
func (p *Pipeline) Registry() *authz.Registry {
	return p.registry
}

// Execute runs one mutation end to end. resource is the caller's
// fresh snapshot of the target (nil for create); the decision is made
// against exactly that snapshot.
//
// When the decision denies, storage is never touched. When the
// transaction commits, the event is published synchronously before
// returning; a delivery failure is logged and counted but the
// mutation is still reported as successful — staleness is bounded by
// TTL, a rolled-back write would not be.
func (p *Pipeline) Execute(ctx context.Context, principal *authz.Principal, action authz.Action, rt authz.ResourceType, resource authz.Resource, apply Apply) error {
	if err := p.registry.Decide(principal, action, rt, resource).Err(); err != nil {
		return err
	}

	var ev change.Event
	err := p.runner.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		ev, err = apply(ctx, tx)
		return err
	})
	if err != nil {
		return err
	}

	if err := p.bus.Publish(ctx, ev); err != nil {
		if p.logger != nil {
			p.logger.Error("post-commit event emission failed",
				slog.String("entity", string(ev.Entity)),
				slog.String("op", string(ev.Op)),
				slog.Int64("id", ev.ID),
				slog.Any("error", err))
		}
		if p.OnEmitFailure != nil {
			p.OnEmitFailure()
		}
	}
	return nil
}
