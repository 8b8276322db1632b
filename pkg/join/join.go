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

// Package join implements the temporal join of two streams.
//
// Every arriving object probes the sweep area of the other side. Each match
// whose interval overlaps yields one result, valid in the overlap. The
// object is then inserted into the area of its own side, where it waits for
// the future objects of the other side until it expires.
//
// Results are buffered and released in start order once the combined
// watermark reached their start; results with equal starts keep the order
// they were produced in.
package join

import (
	"context"
	"errors"
	"fmt"

	"github.com/numaproj/sweepflow/pkg/pipes"
	"github.com/numaproj/sweepflow/pkg/sweeparea"
	"github.com/numaproj/sweepflow/pkg/temporal"
	"github.com/numaproj/sweepflow/pkg/watermark"
)

// Input slots of a join.
const (
	Left  = 0
	Right = 1
)

// ErrNoCombiner is returned when a join has no combiner.
var ErrNoCombiner = errors.New("join requires a combiner")

// Config configures a join.
type Config[L, R, O any] struct {
	// Combine builds the result of a matching pair.
	Combine func(l L, r R) O
	// Predicate filters the pairs. Nil accepts every pair.
	Predicate func(l L, r R) bool
	// LeftProbe replaces Predicate when a new left object probes the right
	// area, RightProbe when a new right object probes the left area.
	LeftProbe  func(l L, r R) bool
	RightProbe func(l L, r R) bool
	// LeftKind and RightKind select the sweep area of each side.
	LeftKind  sweeparea.Kind
	RightKind sweeparea.Kind
	Buckets   uint32
	// LeftHash and RightHash hash the join key of each side. When both are
	// set, probes only visit the bucket of the key; matching pairs must then
	// hash equally.
	LeftHash  func(L) uint64
	RightHash func(R) uint64
	// Budget bounds the memory of each area, see sweeparea.Budgeted.
	Budget   int64
	Eviction sweeparea.EvictionPolicy
}

type joinOp[L, R, O any] struct {
	combine    func(L, R) O
	leftProbe  func(L, R) bool
	rightProbe func(L, R) bool
	leftHash   func(L) uint64
	rightHash  func(R) uint64
	keyed      bool
	left       sweeparea.Area[L]
	right      sweeparea.Area[R]
	results    temporal.Queue[O]
	done       [2]bool
}

func (j *joinOp[L, R, O]) OnElement(_ context.Context, e Element[L, R], slot int, _ *pipes.Output[temporal.Object[O]]) error {
	switch slot {
	case Left:
		l := e.Left
		// right objects ending before l can not meet l or any later left object
		j.right.Expire(l.Start())
		for m := range j.right.Query(j.probeRight(l)) {
			if i, ok := l.Interval.Intersect(m.Object.Interval); ok {
				j.results.Push(temporal.Object[O]{Value: j.combine(l.Value, m.Object.Value), Interval: i})
			}
		}
		if !j.done[Right] {
			j.left.Insert(l)
		}
	case Right:
		r := e.Right
		j.left.Expire(r.Start())
		for m := range j.left.Query(j.probeLeft(r)) {
			if i, ok := m.Object.Interval.Intersect(r.Interval); ok {
				j.results.Push(temporal.Object[O]{Value: j.combine(m.Object.Value, r.Value), Interval: i})
			}
		}
		if !j.done[Left] {
			j.right.Insert(r)
		}
	default:
		return fmt.Errorf("unexpected join input %d", slot)
	}
	return nil
}

// probeRight is the probe of a new left object into the right area.
func (j *joinOp[L, R, O]) probeRight(l temporal.Object[L]) sweeparea.Probe[R] {
	var match func(temporal.Object[R]) bool
	if j.leftProbe != nil {
		match = func(r temporal.Object[R]) bool { return j.leftProbe(l.Value, r.Value) }
	}
	if j.keyed {
		return sweeparea.Keyed(j.leftHash(l.Value), match)
	}
	return sweeparea.Scan(match)
}

// probeLeft is the probe of a new right object into the left area.
func (j *joinOp[L, R, O]) probeLeft(r temporal.Object[R]) sweeparea.Probe[L] {
	var match func(temporal.Object[L]) bool
	if j.rightProbe != nil {
		match = func(l temporal.Object[L]) bool { return j.rightProbe(l.Value, r.Value) }
	}
	if j.keyed {
		return sweeparea.Keyed(j.rightHash(r.Value), match)
	}
	return sweeparea.Scan(match)
}

func (j *joinOp[L, R, O]) OnProgress(ctx context.Context, wm watermark.Watermark, out *pipes.Output[temporal.Object[O]]) (watermark.Watermark, error) {
	j.left.Expire(int64(wm))
	j.right.Expire(int64(wm))
	if err := j.results.Release(int64(wm), func(o temporal.Object[O]) error {
		return out.Emit(ctx, o)
	}); err != nil {
		return wm, err
	}
	if s, ok := j.results.MinStart(); ok {
		return min(wm, watermark.Watermark(s)), nil
	}
	return wm, nil
}

// OnInputDone clears the area only the finished side would have probed.
func (j *joinOp[L, R, O]) OnInputDone(_ context.Context, slot int, _ *pipes.Output[temporal.Object[O]]) error {
	j.done[slot] = true
	switch slot {
	case Left:
		j.right.Clear()
	case Right:
		j.left.Clear()
	}
	return nil
}

func (j *joinOp[L, R, O]) OnDone(ctx context.Context, out *pipes.Output[temporal.Object[O]]) error {
	j.left.Clear()
	j.right.Clear()
	return j.results.Flush(func(o temporal.Object[O]) error {
		return out.Emit(ctx, o)
	})
}

func (j *joinOp[L, R, O]) MemoryUsage() int64 {
	return j.left.MemoryUsage() + j.right.MemoryUsage()
}

// Join is a pipe joining a left and a right stream. Connect upstreams to
// LeftInput and RightInput.
type Join[L, R, O any] struct {
	*pipes.Pipe[Element[L, R], temporal.Object[O]]
	op    *joinOp[L, R, O]
	left  *side[L, L, R, O]
	right *side[R, L, R, O]
}

// New registers a join in g.
func New[L, R, O any](g *pipes.Graph, name string, cfg Config[L, R, O], opts ...pipes.Option) (*Join[L, R, O], error) {
	if cfg.Combine == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrNoCombiner)
	}
	op := &joinOp[L, R, O]{
		combine:    cfg.Combine,
		leftProbe:  cfg.Predicate,
		rightProbe: cfg.Predicate,
		leftHash:   cfg.LeftHash,
		rightHash:  cfg.RightHash,
		keyed:      cfg.LeftHash != nil && cfg.RightHash != nil,
	}
	if cfg.LeftProbe != nil {
		op.leftProbe = cfg.LeftProbe
	}
	if cfg.RightProbe != nil {
		op.rightProbe = cfg.RightProbe
	}
	var err error
	op.left, err = sweeparea.NewArea(sweeparea.Config[L]{
		Kind:     cfg.LeftKind,
		Buckets:  cfg.Buckets,
		Hash:     cfg.LeftHash,
		Name:     name + "-left",
		Budget:   cfg.Budget,
		Eviction: cfg.Eviction,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: left area: %w", name, err)
	}
	op.right, err = sweeparea.NewArea(sweeparea.Config[R]{
		Kind:     cfg.RightKind,
		Buckets:  cfg.Buckets,
		Hash:     cfg.RightHash,
		Name:     name + "-right",
		Budget:   cfg.Budget,
		Eviction: cfg.Eviction,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: right area: %w", name, err)
	}
	opts = append(opts, pipes.WithInputs(Left, Right))
	p, err := pipes.NewPipe[Element[L, R], temporal.Object[O]](g, name, op, stampOf[L, R], opts...)
	if err != nil {
		return nil, err
	}
	return &Join[L, R, O]{
		Pipe: p,
		op:   op,
		left: &side[L, L, R, O]{pipe: p, slot: Left, wrap: func(o temporal.Object[L]) Element[L, R] {
			return Element[L, R]{Left: o, Side: Left}
		}},
		right: &side[R, L, R, O]{pipe: p, slot: Right, wrap: func(o temporal.Object[R]) Element[L, R] {
			return Element[L, R]{Right: o, Side: Right}
		}},
	}, nil
}

// LeftInput is the sink of the left stream.
func (j *Join[L, R, O]) LeftInput() pipes.Sink[temporal.Object[L]] {
	return j.left
}

// RightInput is the sink of the right stream.
func (j *Join[L, R, O]) RightInput() pipes.Sink[temporal.Object[R]] {
	return j.right
}

// NewCartesian registers a join matching every overlapping pair.
func NewCartesian[L, R, O any](g *pipes.Graph, name string, combine func(L, R) O, opts ...pipes.Option) (*Join[L, R, O], error) {
	return New(g, name, Config[L, R, O]{Combine: combine}, opts...)
}

// NewEquiJoin registers a hash join matching pairs with equal keys.
func NewEquiJoin[L, R any, K comparable, O any](g *pipes.Graph, name string, leftKey func(L) K, rightKey func(R) K, hash func(K) uint64, combine func(L, R) O, opts ...pipes.Option) (*Join[L, R, O], error) {
	return New(g, name, Config[L, R, O]{
		Combine:   combine,
		Predicate: func(l L, r R) bool { return leftKey(l) == rightKey(r) },
		LeftKind:  sweeparea.Hash,
		RightKind: sweeparea.Hash,
		LeftHash:  func(l L) uint64 { return hash(leftKey(l)) },
		RightHash: func(r R) uint64 { return hash(rightKey(r)) },
	}, opts...)
}

// Sizes returns the number of resident objects of each side.
func (j *Join[L, R, O]) Sizes() (left, right int) {
	j.Inspect(func() {
		left, right = j.op.left.Size(), j.op.right.Size()
	})
	return left, right
}

// Pending returns the number of results waiting for the watermark.
func (j *Join[L, R, O]) Pending() (n int) {
	j.Inspect(func() {
		n = j.op.results.Len()
	})
	return n
}
