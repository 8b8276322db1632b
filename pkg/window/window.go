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

// Package window assigns validity intervals to raw events.
//
// A Sliding window keeps an event valid for the window size after its
// timestamp, so every object overlaps the events of the last size time
// units. A Fixed (tumbling) window aligns the interval to multiples of the
// size, so events of the same period share one interval.
//
// The size can be changed while the window runs. A change takes effect for
// the first event at or after its timestamp; pending changes are applied in
// the order they were requested, each exactly once.
package window

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/numaproj/sweepflow/pkg/pipes"
	"github.com/numaproj/sweepflow/pkg/temporal"
	"github.com/numaproj/sweepflow/pkg/watermark"
)

var (
	// ErrInvalidSize is returned for a non-positive window size.
	ErrInvalidSize = errors.New("window size must be positive")
	// ErrPastChange is returned for a size change at or before an event that
	// was already windowed, or before an already queued change.
	ErrPastChange = errors.New("size change is not in the future")
)

// Strategy selects how the interval of an event is derived.
type Strategy int

const (
	// Sliding windows are valid in [ts, ts+size).
	Sliding Strategy = iota
	// Fixed windows are valid in the size aligned period containing ts.
	Fixed
)

func (s Strategy) String() string {
	switch s {
	case Sliding:
		return "sliding"
	case Fixed:
		return "fixed"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// Config configures a window.
type Config struct {
	Strategy Strategy
	Size     int64
	// Offset shifts the alignment of Fixed windows.
	Offset int64
}

type change struct {
	at   int64
	size int64
}

type windowOp[T any] struct {
	pipes.Stateless[temporal.Object[T]]
	strategy Strategy

	// guarded by lock; ChangeSize is called from outside the pipe
	lock    sync.Mutex
	size    int64
	origin  int64
	pending []change
	last    int64
	started bool
}

// assign returns the interval of an event at ts, applying the changes that
// became due.
func (w *windowOp[T]) assign(ts int64) temporal.Interval {
	w.lock.Lock()
	defer w.lock.Unlock()
	for len(w.pending) > 0 && w.pending[0].at <= ts {
		c := w.pending[0]
		w.pending = w.pending[1:]
		w.size = c.size
		// fixed windows restart their alignment at the change so intervals
		// never move back in time
		w.origin = c.at
	}
	w.last = ts
	w.started = true
	switch w.strategy {
	case Fixed:
		start := w.origin + floorDiv(ts-w.origin, w.size)*w.size
		return temporal.Interval{Start: start, End: start + w.size}
	default:
		return temporal.Interval{Start: ts, End: ts + w.size}
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func (w *windowOp[T]) OnElement(ctx context.Context, e temporal.Event[T], _ int, out *pipes.Output[temporal.Object[T]]) error {
	i := w.assign(e.Timestamp)
	if !i.Valid() {
		return fmt.Errorf("%w: [%d, %d)", temporal.ErrEmptyInterval, i.Start, i.End)
	}
	return out.Emit(ctx, temporal.Object[T]{Value: e.Value, Interval: i})
}

// OnProgress holds back nothing for sliding windows. A fixed window emits
// intervals starting before the event timestamp, so it only promises the
// start of the period the watermark falls in.
func (w *windowOp[T]) OnProgress(_ context.Context, wm watermark.Watermark, _ *pipes.Output[temporal.Object[T]]) (watermark.Watermark, error) {
	if w.strategy != Fixed || wm == watermark.Initial || wm == watermark.Max {
		return wm, nil
	}
	w.lock.Lock()
	defer w.lock.Unlock()
	ts := int64(wm)
	if len(w.pending) > 0 && w.pending[0].at <= ts {
		// the next event may realign at the change
		return watermark.Watermark(min(ts, w.pending[0].at)), nil
	}
	return watermark.Watermark(w.origin + floorDiv(ts-w.origin, w.size)*w.size), nil
}

// Window is a pipe turning events into temporal objects.
type Window[T any] struct {
	*pipes.Pipe[temporal.Event[T], temporal.Object[T]]
	op *windowOp[T]
}

// New registers a window in g.
func New[T any](g *pipes.Graph, name string, cfg Config, opts ...pipes.Option) (*Window[T], error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("%s: %w: %d", name, ErrInvalidSize, cfg.Size)
	}
	switch cfg.Strategy {
	case Sliding, Fixed:
	default:
		return nil, fmt.Errorf("%s: unknown window strategy %v", name, cfg.Strategy)
	}
	op := &windowOp[T]{strategy: cfg.Strategy, size: cfg.Size, origin: cfg.Offset}
	p, err := pipes.NewPipe[temporal.Event[T], temporal.Object[T]](g, name, op, temporal.TimestampOf[T], opts...)
	if err != nil {
		return nil, err
	}
	return &Window[T]{Pipe: p, op: op}, nil
}

// NewSliding registers a sliding window of the given size.
func NewSliding[T any](g *pipes.Graph, name string, size int64, opts ...pipes.Option) (*Window[T], error) {
	return New[T](g, name, Config{Strategy: Sliding, Size: size}, opts...)
}

// ChangeSize queues a size change for the events at or after at. at must lie
// after every event windowed so far and after every queued change.
func (w *Window[T]) ChangeSize(at, size int64) error {
	if size <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	w.op.lock.Lock()
	defer w.op.lock.Unlock()
	if w.op.started && at <= w.op.last {
		return fmt.Errorf("%w: %d, last event at %d", ErrPastChange, at, w.op.last)
	}
	if n := len(w.op.pending); n > 0 && at <= w.op.pending[n-1].at {
		return fmt.Errorf("%w: %d, previous change at %d", ErrPastChange, at, w.op.pending[n-1].at)
	}
	w.op.pending = append(w.op.pending, change{at: at, size: size})
	return nil
}

// Size returns the size applied to the most recent event.
func (w *Window[T]) Size() int64 {
	w.op.lock.Lock()
	defer w.op.lock.Unlock()
	return w.op.size
}

// PendingChanges returns the number of queued size changes.
func (w *Window[T]) PendingChanges() int {
	w.op.lock.Lock()
	defer w.op.lock.Unlock()
	return len(w.op.pending)
}
