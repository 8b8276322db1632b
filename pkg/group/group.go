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

// Package group partitions a stream into a fixed number of groups.
//
// A Grouper exposes every group as its own source, so each group can be
// composed independently, e.g. one aggregation per group unioned back
// together. GroupAndAggregate computes the same result in one operator.
package group

import (
	"context"
	"errors"
	"fmt"

	"github.com/spaolacci/murmur3"

	"github.com/numaproj/sweepflow/pkg/pipes"
	"github.com/numaproj/sweepflow/pkg/temporal"
)

var (
	// ErrNoGroups is returned for a grouper without groups.
	ErrNoGroups = errors.New("at least one group is required")
	// ErrGroupRange is returned when the group function leaves [0, n).
	ErrGroupRange = errors.New("group out of range")
	// ErrSubscribeGroup is returned when a sink subscribes to the grouper
	// itself instead of one of its groups.
	ErrSubscribeGroup = errors.New("subscribe to a group of the grouper")
)

// Func maps a value to its group in [0, n).
type Func[T any] func(T) int

// ByKey groups by the murmur3 hash of a string key.
func ByKey[T any](key func(T) string, n int) Func[T] {
	return func(v T) int {
		return int(murmur3.Sum32([]byte(key(v))) % uint32(n))
	}
}

// Modulo groups integer values by their remainder.
func Modulo(n int) Func[int] {
	return func(v int) int {
		return ((v % n) + n) % n
	}
}

type grouperOp[T any] struct {
	pipes.Stateless[temporal.Object[T]]
	n  int
	fn Func[T]
}

func (g *grouperOp[T]) OnElement(ctx context.Context, e temporal.Object[T], _ int, out *pipes.Output[temporal.Object[T]]) error {
	i := g.fn(e.Value)
	if i < 0 || i >= g.n {
		return fmt.Errorf("%w: %d of %d", ErrGroupRange, i, g.n)
	}
	return out.EmitTo(ctx, i, e)
}

// Grouper routes every object to the group its value maps to. Heartbeats
// and done reach all groups.
type Grouper[T any] struct {
	*pipes.Pipe[temporal.Object[T], temporal.Object[T]]
	groups []*Group[T]
}

// New registers a grouper with n groups in g.
func New[T any](g *pipes.Graph, name string, n int, fn Func[T], opts ...pipes.Option) (*Grouper[T], error) {
	if n <= 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNoGroups)
	}
	p, err := pipes.NewPipe[temporal.Object[T], temporal.Object[T]](g, name, &grouperOp[T]{n: n, fn: fn}, temporal.StartOf[T], opts...)
	if err != nil {
		return nil, err
	}
	gr := &Grouper[T]{Pipe: p}
	for i := 0; i < n; i++ {
		gr.groups = append(gr.groups, &Group[T]{grouper: gr, index: i})
	}
	return gr, nil
}

// AddSink fails: sinks subscribe through Group.
func (gr *Grouper[T]) AddSink(s pipes.Sink[temporal.Object[T]], _ int) error {
	return fmt.Errorf("%w: %s -> %s", ErrSubscribeGroup, gr.Name(), s.Name())
}

// Len returns the number of groups.
func (gr *Grouper[T]) Len() int {
	return len(gr.groups)
}

// Group returns the source handle of group i.
func (gr *Grouper[T]) Group(i int) *Group[T] {
	return gr.groups[i]
}

// Groups returns all source handles in group order.
func (gr *Grouper[T]) Groups() []*Group[T] {
	return gr.groups
}

// Group is the source handle of one group. It shares the node of its
// grouper, so the graph walks see the grouper as upstream of the group's
// sinks.
type Group[T any] struct {
	grouper *Grouper[T]
	index   int
}

var _ pipes.Source[temporal.Object[int]] = (*Group[int])(nil)

func (g *Group[T]) ID() pipes.NodeID {
	return g.grouper.ID()
}

func (g *Group[T]) Name() string {
	return fmt.Sprintf("%s[%d]", g.grouper.Name(), g.index)
}

func (g *Group[T]) Graph() *pipes.Graph {
	return g.grouper.Graph()
}

// Index returns the group number.
func (g *Group[T]) Index() int {
	return g.index
}

// AddSink subscribes s under sourceID. A sink subscribes to a group at most
// once.
func (g *Group[T]) AddSink(s pipes.Sink[temporal.Object[T]], sourceID int) error {
	return g.grouper.Pipe.AddSink(&relabel[T]{Sink: s, sourceID: sourceID}, g.index)
}

func (g *Group[T]) RemoveSink(s pipes.Sink[temporal.Object[T]], sourceID int) bool {
	return g.grouper.Pipe.RemoveSink(&relabel[T]{Sink: s, sourceID: sourceID}, g.index)
}

// relabel delivers the grouper's output, addressed by group number, under
// the source id the sink subscribed with.
type relabel[T any] struct {
	pipes.Sink[temporal.Object[T]]
	sourceID int
}

func (r *relabel[T]) Process(ctx context.Context, e temporal.Object[T], _ int) error {
	return r.Sink.Process(ctx, e, r.sourceID)
}

func (r *relabel[T]) Heartbeat(ctx context.Context, ts int64, _ int) error {
	return r.Sink.Heartbeat(ctx, ts, r.sourceID)
}

func (r *relabel[T]) Done(ctx context.Context, _ int) error {
	return r.Sink.Done(ctx, r.sourceID)
}
