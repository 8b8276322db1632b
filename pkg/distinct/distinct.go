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

// Package distinct removes duplicates from a stream: at every instant, each
// value is valid at most once in the output.
package distinct

import (
	"context"
	"fmt"

	"github.com/numaproj/sweepflow/pkg/pipes"
	"github.com/numaproj/sweepflow/pkg/sweeparea"
	"github.com/numaproj/sweepflow/pkg/temporal"
	"github.com/numaproj/sweepflow/pkg/watermark"
)

// Config configures the sweep area of a distinct.
type Config[T comparable] struct {
	Kind    sweeparea.Kind
	Buckets uint32
	// Hash hashes values; required for sweeparea.Hash.
	Hash     func(T) uint64
	Budget   int64
	Eviction sweeparea.EvictionPolicy
}

type distinctOp[T comparable] struct {
	area    sweeparea.Area[T]
	hash    func(T) uint64
	pending temporal.Queue[T]
}

// uncovered returns the parts of o no resident equal object covers.
func (d *distinctOp[T]) uncovered(o temporal.Object[T]) []temporal.Interval {
	match := func(r temporal.Object[T]) bool {
		return r.Value == o.Value && r.Interval.Overlaps(o.Interval)
	}
	probe := sweeparea.Scan(match)
	if d.hash != nil {
		probe = sweeparea.Keyed(d.hash(o.Value), match)
	}
	parts := []temporal.Interval{o.Interval}
	for e := range d.area.Query(probe) {
		var rest []temporal.Interval
		for _, p := range parts {
			rest = append(rest, p.Subtract(e.Object.Interval)...)
		}
		parts = rest
		if len(parts) == 0 {
			break
		}
	}
	return parts
}

func (d *distinctOp[T]) OnElement(_ context.Context, e temporal.Object[T], _ int, _ *pipes.Output[temporal.Object[T]]) error {
	parts := d.uncovered(e)
	if len(parts) == 0 {
		return nil
	}
	for _, p := range parts {
		d.pending.Push(e.WithInterval(p))
	}
	d.area.Insert(e)
	return nil
}

func (d *distinctOp[T]) OnProgress(ctx context.Context, wm watermark.Watermark, out *pipes.Output[temporal.Object[T]]) (watermark.Watermark, error) {
	d.area.Expire(int64(wm))
	if err := d.pending.Release(int64(wm), func(o temporal.Object[T]) error {
		return out.Emit(ctx, o)
	}); err != nil {
		return wm, err
	}
	if s, ok := d.pending.MinStart(); ok {
		return min(wm, watermark.Watermark(s)), nil
	}
	return wm, nil
}

func (d *distinctOp[T]) OnDone(ctx context.Context, out *pipes.Output[temporal.Object[T]]) error {
	d.area.Clear()
	return d.pending.Flush(func(o temporal.Object[T]) error {
		return out.Emit(ctx, o)
	})
}

func (d *distinctOp[T]) MemoryUsage() int64 {
	return d.area.MemoryUsage()
}

// New registers a distinct in g.
func New[T comparable](g *pipes.Graph, name string, cfg Config[T], opts ...pipes.Option) (*pipes.Pipe[temporal.Object[T], temporal.Object[T]], error) {
	area, err := sweeparea.NewArea(sweeparea.Config[T]{
		Kind:     cfg.Kind,
		Buckets:  cfg.Buckets,
		Hash:     cfg.Hash,
		Name:     name,
		Budget:   cfg.Budget,
		Eviction: cfg.Eviction,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	op := &distinctOp[T]{area: area}
	if cfg.Kind == sweeparea.Hash {
		op.hash = cfg.Hash
	}
	return pipes.NewPipe[temporal.Object[T], temporal.Object[T]](g, name, op, temporal.StartOf[T], opts...)
}
