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

// Package difference computes the temporal difference of two streams. A
// value of the minuend is valid in the output at every instant it is valid
// in the minuend and no equal value is valid in the subtrahend.
//
// The minuend is connected under Minuend, the subtrahend under Subtrahend.
package difference

import (
	"context"
	"fmt"

	"github.com/numaproj/sweepflow/pkg/pipes"
	"github.com/numaproj/sweepflow/pkg/sweeparea"
	"github.com/numaproj/sweepflow/pkg/temporal"
	"github.com/numaproj/sweepflow/pkg/watermark"
)

// Source ids of the two inputs.
const (
	Minuend    = 0
	Subtrahend = 1
)

// Config configures the sweep areas of a difference.
type Config[T comparable] struct {
	Kind    sweeparea.Kind
	Buckets uint32
	// Hash hashes values; required for sweeparea.Hash.
	Hash func(T) uint64
}

type differenceOp[T comparable] struct {
	hash           func(T) uint64
	// pieces holds the minuend parts not yet known to be final
	pieces         sweeparea.Area[T]
	// subtrahend holds the subtrahend objects future pieces may overlap
	subtrahend     sweeparea.Area[T]
	minuendDone    bool
	subtrahendDone bool
}

// final reports whether no future subtrahend object can overlap p.
func (d *differenceOp[T]) final(p temporal.Object[T], wm watermark.Watermark) bool {
	if d.subtrahendDone {
		return p.Start() <= int64(wm)
	}
	return p.End() <= int64(wm)
}

func (d *differenceOp[T]) probe(o temporal.Object[T]) sweeparea.Probe[T] {
	match := func(r temporal.Object[T]) bool {
		return r.Value == o.Value && r.Interval.Overlaps(o.Interval)
	}
	if d.hash != nil {
		return sweeparea.Keyed(d.hash(o.Value), match)
	}
	return sweeparea.Scan(match)
}

func (d *differenceOp[T]) OnElement(_ context.Context, e temporal.Object[T], slot int, _ *pipes.Output[temporal.Object[T]]) error {
	switch slot {
	case Minuend:
		parts := []temporal.Interval{e.Interval}
		for s := range d.subtrahend.Query(d.probe(e)) {
			var rest []temporal.Interval
			for _, p := range parts {
				rest = append(rest, p.Subtract(s.Object.Interval)...)
			}
			parts = rest
			if len(parts) == 0 {
				break
			}
		}
		for _, p := range parts {
			d.pieces.Insert(e.WithInterval(p))
		}
	case Subtrahend:
		var hit []*sweeparea.Entry[T]
		for p := range d.pieces.Query(d.probe(e)) {
			hit = append(hit, p)
		}
		for _, p := range hit {
			d.pieces.Remove(p)
			for _, rest := range p.Object.Interval.Subtract(e.Interval) {
				d.pieces.Insert(p.Object.WithInterval(rest))
			}
		}
		if !d.minuendDone {
			d.subtrahend.Insert(e)
		}
	}
	return nil
}

func (d *differenceOp[T]) OnProgress(ctx context.Context, wm watermark.Watermark, out *pipes.Output[temporal.Object[T]]) (watermark.Watermark, error) {
	d.subtrahend.Expire(int64(wm))
	for _, p := range d.pieces.Items() {
		if !d.final(p.Object, wm) {
			return min(wm, watermark.Watermark(p.Object.Start())), nil
		}
		d.pieces.Remove(p)
		if err := out.Emit(ctx, p.Object); err != nil {
			return wm, err
		}
	}
	return wm, nil
}

// OnInputDone drops the subtrahend objects once no minuend object can probe
// them anymore.
func (d *differenceOp[T]) OnInputDone(_ context.Context, slot int, _ *pipes.Output[temporal.Object[T]]) error {
	switch slot {
	case Minuend:
		d.minuendDone = true
		d.subtrahend.Clear()
	case Subtrahend:
		d.subtrahendDone = true
	}
	return nil
}

func (d *differenceOp[T]) OnDone(ctx context.Context, out *pipes.Output[temporal.Object[T]]) error {
	d.subtrahend.Clear()
	for _, p := range d.pieces.Items() {
		d.pieces.Remove(p)
		if err := out.Emit(ctx, p.Object); err != nil {
			return err
		}
	}
	return nil
}

func (d *differenceOp[T]) MemoryUsage() int64 {
	return d.pieces.MemoryUsage() + d.subtrahend.MemoryUsage()
}

// Difference is a pipe subtracting the subtrahend from the minuend.
type Difference[T comparable] struct {
	*pipes.Pipe[temporal.Object[T], temporal.Object[T]]
	op *differenceOp[T]
}

// New registers a difference in g. Both inputs are declared up front, so the
// subtrahend may be connected before the minuend.
func New[T comparable](g *pipes.Graph, name string, cfg Config[T], opts ...pipes.Option) (*Difference[T], error) {
	area := func(suffix string) (sweeparea.Area[T], error) {
		return sweeparea.NewArea(sweeparea.Config[T]{
			Kind:    cfg.Kind,
			Buckets: cfg.Buckets,
			Hash:    cfg.Hash,
			Name:    name + suffix,
		})
	}
	pieces, err := area("-minuend")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	subtrahend, err := area("-subtrahend")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	op := &differenceOp[T]{pieces: pieces, subtrahend: subtrahend}
	if cfg.Kind == sweeparea.Hash {
		op.hash = cfg.Hash
	}
	opts = append([]pipes.Option{pipes.WithInputs(Minuend, Subtrahend)}, opts...)
	p, err := pipes.NewPipe[temporal.Object[T], temporal.Object[T]](g, name, op, temporal.StartOf[T], opts...)
	if err != nil {
		return nil, err
	}
	return &Difference[T]{Pipe: p, op: op}, nil
}

// Pending returns the number of minuend pieces not yet emitted.
func (d *Difference[T]) Pending() int {
	var n int
	d.Inspect(func() {
		n = d.op.pieces.Size()
	})
	return n
}
