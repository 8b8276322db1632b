/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package group

import (
	"context"
	"fmt"

	"github.com/numaproj/sweepflow/pkg/aggregate"
	"github.com/numaproj/sweepflow/pkg/pipes"
	"github.com/numaproj/sweepflow/pkg/temporal"
	"github.com/numaproj/sweepflow/pkg/watermark"
)

// Entry is the aggregate of one group.
type Entry[A any] struct {
	Key   int
	Value A
}

type groupAggregateOp[T, A any] struct {
	fn      Func[T]
	states  []*aggregate.State[T, A]
	pending temporal.Queue[Entry[A]]
}

func (g *groupAggregateOp[T, A]) OnElement(_ context.Context, e temporal.Object[T], _ int, _ *pipes.Output[temporal.Object[Entry[A]]]) error {
	i := g.fn(e.Value)
	if i < 0 || i >= len(g.states) {
		return fmt.Errorf("%w: %d of %d", ErrGroupRange, i, len(g.states))
	}
	g.states[i].Add(e)
	return nil
}

// collect moves the segments of every group ending at or before t into the
// output queue.
func (g *groupAggregateOp[T, A]) collect(t int64) {
	for key, s := range g.states {
		_ = s.Release(t, func(o temporal.Object[A]) error {
			g.pending.Push(temporal.Object[Entry[A]]{Value: Entry[A]{Key: key, Value: o.Value}, Interval: o.Interval})
			return nil
		})
	}
}

func (g *groupAggregateOp[T, A]) OnProgress(ctx context.Context, wm watermark.Watermark, out *pipes.Output[temporal.Object[Entry[A]]]) (watermark.Watermark, error) {
	g.collect(int64(wm))
	// open segments of any group may still precede queued results
	bound := wm
	for _, s := range g.states {
		if start, ok := s.MinStart(); ok {
			bound = min(bound, watermark.Watermark(start))
		}
	}
	if err := g.pending.Release(int64(bound), func(o temporal.Object[Entry[A]]) error {
		return out.Emit(ctx, o)
	}); err != nil {
		return wm, err
	}
	if start, ok := g.pending.MinStart(); ok {
		return min(bound, watermark.Watermark(start)), nil
	}
	return bound, nil
}

func (g *groupAggregateOp[T, A]) OnDone(ctx context.Context, out *pipes.Output[temporal.Object[Entry[A]]]) error {
	g.collect(temporal.Infinity)
	return g.pending.Flush(func(o temporal.Object[Entry[A]]) error {
		return out.Emit(ctx, o)
	})
}

func (g *groupAggregateOp[T, A]) MemoryUsage() int64 {
	var n int64
	for _, s := range g.states {
		n += s.MemoryUsage()
	}
	return n
}

// NewAggregate registers a combined group-and-aggregate operator in g. It
// emits the aggregate of each of the n groups tagged with the group number.
func NewAggregate[T, A any](g *pipes.Graph, name string, n int, group Func[T], fn aggregate.Func[T, A], opts ...pipes.Option) (*pipes.Pipe[temporal.Object[T], temporal.Object[Entry[A]]], error) {
	if n <= 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNoGroups)
	}
	op := &groupAggregateOp[T, A]{fn: group}
	for i := 0; i < n; i++ {
		op.states = append(op.states, aggregate.NewState(fn))
	}
	return pipes.NewPipe[temporal.Object[T], temporal.Object[Entry[A]]](g, name, op, temporal.StartOf[T], opts...)
}
