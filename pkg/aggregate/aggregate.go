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

// Package aggregate implements the temporal aggregation of a stream.
//
// The time line is cut into segments at every start and end of the input
// objects. Each segment carries the aggregate of the objects valid during
// it, so the output is a sequence of non-overlapping objects whose value
// changes whenever the set of valid inputs changes. A segment is final once
// the watermark passed its end.
package aggregate

import (
	"cmp"
	"context"
	"unsafe"

	"github.com/numaproj/sweepflow/pkg/pipes"
	"github.com/numaproj/sweepflow/pkg/temporal"
	"github.com/numaproj/sweepflow/pkg/watermark"
)

// Func folds v into the aggregate. acc is nil for the first value of a
// segment. The aggregate behind acc is shared with other segments and must
// not be modified.
type Func[I, A any] func(acc *A, v I) A

// Count counts the valid objects.
func Count[I any]() Func[I, int64] {
	return func(acc *int64, _ I) int64 {
		if acc == nil {
			return 1
		}
		return *acc + 1
	}
}

// Number is the constraint of Sum.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Sum adds the valid values.
func Sum[N Number]() Func[N, N] {
	return func(acc *N, v N) N {
		if acc == nil {
			return v
		}
		return *acc + v
	}
}

// Min keeps the smallest valid value.
func Min[T cmp.Ordered]() Func[T, T] {
	return func(acc *T, v T) T {
		if acc == nil {
			return v
		}
		return min(*acc, v)
	}
}

// Max keeps the largest valid value.
func Max[T cmp.Ordered]() Func[T, T] {
	return func(acc *T, v T) T {
		if acc == nil {
			return v
		}
		return max(*acc, v)
	}
}

type segment[A any] struct {
	iv  temporal.Interval
	acc A
}

// State is the segment list of one aggregation. Adding an object that
// starts before an already released segment ended breaks the start order
// of the output.
type State[I, A any] struct {
	fn       Func[I, A]
	segments []segment[A]
}

// NewState returns an empty state folding with fn.
func NewState[I, A any](fn Func[I, A]) *State[I, A] {
	return &State[I, A]{fn: fn}
}

// Add folds o into the segments it overlaps, creating segments for the parts
// of its interval no segment covers yet.
func (s *State[I, A]) Add(o temporal.Object[I]) {
	start, end := o.Interval.Start, o.Interval.End
	var merged []segment[A]
	i := 0
	// segments before o are untouched
	for i < len(s.segments) && s.segments[i].iv.End <= start {
		i++
	}
	merged = append(merged, s.segments[:i]...)
	cursor := start
	for ; i < len(s.segments) && s.segments[i].iv.Start < end; i++ {
		seg := s.segments[i]
		if seg.iv.Start < start {
			merged = append(merged, segment[A]{iv: temporal.Interval{Start: seg.iv.Start, End: start}, acc: seg.acc})
			seg.iv.Start = start
		}
		if seg.iv.Start > cursor {
			merged = append(merged, segment[A]{iv: temporal.Interval{Start: cursor, End: seg.iv.Start}, acc: s.fn(nil, o.Value)})
		}
		inside := segment[A]{iv: temporal.Interval{Start: seg.iv.Start, End: min(seg.iv.End, end)}, acc: s.fn(&seg.acc, o.Value)}
		merged = append(merged, inside)
		if seg.iv.End > end {
			merged = append(merged, segment[A]{iv: temporal.Interval{Start: end, End: seg.iv.End}, acc: seg.acc})
		}
		cursor = min(seg.iv.End, end)
	}
	if cursor < end {
		merged = append(merged, segment[A]{iv: temporal.Interval{Start: cursor, End: end}, acc: s.fn(nil, o.Value)})
	}
	merged = append(merged, s.segments[i:]...)
	s.segments = merged
}

// Release pops the segments ending at or before t into emit, in order.
func (s *State[I, A]) Release(t int64, emit func(temporal.Object[A]) error) error {
	n := 0
	for n < len(s.segments) && s.segments[n].iv.End <= t {
		seg := s.segments[n]
		if err := emit(temporal.Object[A]{Value: seg.acc, Interval: seg.iv}); err != nil {
			s.segments = s.segments[n+1:]
			return err
		}
		n++
	}
	s.segments = s.segments[n:]
	return nil
}

// Flush pops every segment into emit, in order.
func (s *State[I, A]) Flush(emit func(temporal.Object[A]) error) error {
	return s.Release(temporal.Infinity, emit)
}

// MinStart returns the start of the first open segment.
func (s *State[I, A]) MinStart() (int64, bool) {
	if len(s.segments) == 0 {
		return 0, false
	}
	return s.segments[0].iv.Start, true
}

// Len returns the number of open segments.
func (s *State[I, A]) Len() int {
	return len(s.segments)
}

// MemoryUsage estimates the bytes held by the open segments.
func (s *State[I, A]) MemoryUsage() int64 {
	return int64(len(s.segments)) * int64(unsafe.Sizeof(segment[A]{}))
}

type aggregateOp[I, A any] struct {
	state *State[I, A]
}

func (a *aggregateOp[I, A]) OnElement(_ context.Context, e temporal.Object[I], _ int, _ *pipes.Output[temporal.Object[A]]) error {
	a.state.Add(e)
	return nil
}

func (a *aggregateOp[I, A]) OnProgress(ctx context.Context, wm watermark.Watermark, out *pipes.Output[temporal.Object[A]]) (watermark.Watermark, error) {
	if err := a.state.Release(int64(wm), func(o temporal.Object[A]) error {
		return out.Emit(ctx, o)
	}); err != nil {
		return wm, err
	}
	if s, ok := a.state.MinStart(); ok {
		return min(wm, watermark.Watermark(s)), nil
	}
	return wm, nil
}

func (a *aggregateOp[I, A]) OnDone(ctx context.Context, out *pipes.Output[temporal.Object[A]]) error {
	return a.state.Flush(func(o temporal.Object[A]) error {
		return out.Emit(ctx, o)
	})
}

func (a *aggregateOp[I, A]) MemoryUsage() int64 {
	return a.state.MemoryUsage()
}

// New registers an aggregation of one or more start ordered inputs in g.
func New[I, A any](g *pipes.Graph, name string, fn Func[I, A], opts ...pipes.Option) (*pipes.Pipe[temporal.Object[I], temporal.Object[A]], error) {
	op := &aggregateOp[I, A]{state: NewState(fn)}
	return pipes.NewPipe[temporal.Object[I], temporal.Object[A]](g, name, op, temporal.StartOf[I], opts...)
}
