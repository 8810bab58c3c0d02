// Package fanout provides the two internal fan-out patterns the engine
// needs when executing a query: parallel-all (independent subtasks that
// may run concurrently) and sequential-chain (each subtask must finish
// before the next starts). The engine's per-row write pipeline — view
// projector, adapter write, index writer, ORM sync, remote view
// propagation — uses Chain, since each step depends on the previous
// step's effect on that row and the steps mutate shared derived state
// (secondary-index buckets, back-reference arrays) that isn't safe to
// touch from more than one row at a time.
package fanout

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of fan-out work.
type Task func(ctx context.Context) error

// All runs every task concurrently and waits for all of them to
// finish, returning the first error encountered (if any). This is the
// Go rendering of the spec's "parallel-all" pattern.
func All(ctx context.Context, tasks ...Task) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			return task(gctx)
		})
	}
	return g.Wait()
}

// Chain runs tasks one at a time, in order, stopping at the first
// error. This is the Go rendering of the spec's "sequential-chain"
// pattern, used to keep per-row invariants across the index writer,
// view projector, and ORM synchronizer.
func Chain(ctx context.Context, tasks ...Task) error {
	for _, task := range tasks {
		if err := task(ctx); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}
