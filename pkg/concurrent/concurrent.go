package concurrent

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Each runs action for every element of in on its own goroutine, at most limit at
// a time (limit <= 0 means unbounded). The first error cancels ctx for the rest and
// is returned once every started action has finished.
func Each[T any](ctx context.Context, in []T, limit int, action func(context.Context, int, T) error) error {
	group, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		group.SetLimit(limit)
	}
	for i, v := range in {
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return action(gctx, i, v)
		})
	}
	return group.Wait()
}

// Map is Each that keeps per-element results in input order.
func Map[T any, R any](ctx context.Context, in []T, limit int, mapFn func(context.Context, T) (R, error)) ([]R, error) {
	out := make([]R, len(in))
	err := Each(ctx, in, limit, func(ctx context.Context, i int, v T) error {
		r, err := mapFn(ctx, v)
		if err != nil {
			return err
		}
		out[i] = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Run starts every fn under one errgroup and waits. It is how long-lived loops of
// independently scheduled contexts are supervised: one failure cancels the others.
func Run(ctx context.Context, fns ...func(context.Context) error) error {
	group, gctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		group.Go(func() error { return fn(gctx) })
	}
	return group.Wait()
}
