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

package join

import (
	"context"

	"github.com/numaproj/sweepflow/pkg/pipes"
	"github.com/numaproj/sweepflow/pkg/temporal"
)

// Element is the input of a join pipe: an object of either side.
type Element[L, R any] struct {
	Left  temporal.Object[L]
	Right temporal.Object[R]
	Side  int
}

// Start returns the start of the carried object.
func (e Element[L, R]) Start() int64 {
	if e.Side == Left {
		return e.Left.Interval.Start
	}
	return e.Right.Interval.Start
}

func stampOf[L, R any](e Element[L, R]) int64 {
	return e.Start()
}

// side is the typed sink of one join input. It shares the node of the join,
// so subscriptions to it are edges into the join. The source id given by
// the upstream is ignored; the side always feeds its own slot.
type side[T, L, R, O any] struct {
	pipe *pipes.Pipe[Element[L, R], temporal.Object[O]]
	slot int
	wrap func(temporal.Object[T]) Element[L, R]
}

var _ pipes.Sink[temporal.Object[int]] = (*side[int, int, int, int])(nil)

func (s *side[T, L, R, O]) ID() pipes.NodeID {
	return s.pipe.ID()
}

func (s *side[T, L, R, O]) Name() string {
	return s.pipe.Name()
}

func (s *side[T, L, R, O]) Graph() *pipes.Graph {
	return s.pipe.Graph()
}

func (s *side[T, L, R, O]) AddInput(int) error {
	return s.pipe.AddInput(s.slot)
}

func (s *side[T, L, R, O]) Process(ctx context.Context, e temporal.Object[T], _ int) error {
	return s.pipe.Process(ctx, s.wrap(e), s.slot)
}

func (s *side[T, L, R, O]) Heartbeat(ctx context.Context, ts int64, _ int) error {
	return s.pipe.Heartbeat(ctx, ts, s.slot)
}

func (s *side[T, L, R, O]) Done(ctx context.Context, _ int) error {
	return s.pipe.Done(ctx, s.slot)
}
