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

// Package sources contains element producing nodes driven by processors.
package sources

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/numaproj/sweepflow/pkg/metrics"
	"github.com/numaproj/sweepflow/pkg/pipes"
	"github.com/numaproj/sweepflow/pkg/processor"
	"github.com/numaproj/sweepflow/pkg/shared/logging"
)

// Func produces the seq-th element, or false once exhausted.
type Func[T any] func(seq int64) (T, bool)

// FromSlice produces items in order.
func FromSlice[T any](items []T) Func[T] {
	return func(seq int64) (T, bool) {
		if seq >= int64(len(items)) {
			var zero T
			return zero, false
		}
		return items[seq], true
	}
}

type options struct {
	batch    int
	schedule processor.Schedule
	log      *zap.SugaredLogger
}

type Option func(*options)

// WithBatch sets the number of elements produced per run. Defaults to 64.
func WithBatch(n int) Option {
	return func(o *options) {
		o.batch = n
	}
}

// WithSchedule sets the processor schedule. Defaults to every millisecond.
func WithSchedule(s processor.Schedule) Option {
	return func(o *options) {
		o.schedule = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) {
		o.log = l
	}
}

// Source pushes the elements of a Func into its sinks, one batch per
// processor run, and signals done once the Func is exhausted. When a stamp
// is set, every batch is followed by a heartbeat at the stamp of its last
// element.
type Source[T any] struct {
	pipes.Vertex
	emitter    *pipes.Emitter[T]
	fn         Func[T]
	stamp      func(T) int64
	batch      int
	heartbeats atomic.Bool
	proc       *processor.Processor
	log        *zap.SugaredLogger

	lock   sync.Mutex
	seq    int64
	last   int64
	closed bool
}

var (
	_ pipes.Source[int]     = (*Source[int])(nil)
	_ pipes.Closer          = (*Source[int])(nil)
	_ pipes.HeartbeatSwitch = (*Source[int])(nil)
	_ processor.Runnable    = (*Source[int])(nil)
)

// New registers a source in g. stamp may be nil when the elements carry no
// progress.
func New[T any](g *pipes.Graph, name string, fn Func[T], stamp func(T) int64, opts ...Option) *Source[T] {
	o := &options{batch: 64, schedule: processor.Every(time.Millisecond)}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logging.NewNopLogger()
	}
	if o.batch <= 0 {
		o.batch = 1
	}
	s := &Source[T]{
		emitter: pipes.NewEmitter[T](name),
		fn:      fn,
		stamp:   stamp,
		batch:   o.batch,
		log:     o.log.With("source", name),
		last:    math.MinInt64,
	}
	s.heartbeats.Store(true)
	s.proc = processor.New(name, s, processor.WithSchedule(o.schedule))
	s.Vertex = pipes.NewVertex(g, name, s)
	return s
}

// NewSlice registers a source producing items.
func NewSlice[T any](g *pipes.Graph, name string, items []T, stamp func(T) int64, opts ...Option) *Source[T] {
	return New(g, name, FromSlice(items), stamp, opts...)
}

func (s *Source[T]) AddSink(sink pipes.Sink[T], sourceID int) error {
	return s.emitter.AddSink(sink, sourceID)
}

func (s *Source[T]) RemoveSink(sink pipes.Sink[T], sourceID int) bool {
	return s.emitter.RemoveSink(sink, sourceID)
}

// Run produces one batch. It returns processor.ErrFinished once done was
// signalled.
func (s *Source[T]) Run(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return processor.ErrFinished
	}
	out := metrics.ElementsOut.WithLabelValues(s.Name())
	emitted := false
	for i := 0; i < s.batch; i++ {
		v, ok := s.fn(s.seq)
		if !ok {
			if err := s.heartbeat(ctx, emitted); err != nil {
				return err
			}
			return s.finish(ctx)
		}
		s.seq++
		if err := s.emitter.Emit(ctx, v); err != nil {
			return fmt.Errorf("%s: failed to emit element %d: %w", s.Name(), s.seq-1, err)
		}
		out.Inc()
		if s.stamp != nil {
			s.last = max(s.last, s.stamp(v))
		}
		emitted = true
	}
	return s.heartbeat(ctx, emitted)
}

func (s *Source[T]) heartbeat(ctx context.Context, emitted bool) error {
	if !emitted || s.stamp == nil || !s.heartbeats.Load() {
		return nil
	}
	return s.emitter.EmitHeartbeat(ctx, s.last)
}

func (s *Source[T]) finish(ctx context.Context) error {
	s.closed = true
	s.log.Debugw("Source exhausted", zap.Int64("elements", s.seq))
	if err := s.emitter.EmitDone(ctx); err != nil {
		return err
	}
	return processor.ErrFinished
}

// Drain produces everything synchronously, without the processor.
func (s *Source[T]) Drain(ctx context.Context) error {
	for {
		if err := s.Run(ctx); err != nil {
			if errors.Is(err, processor.ErrFinished) {
				return nil
			}
			return err
		}
	}
}

// Close stops the processor and signals done downstream if the source is
// not exhausted yet.
func (s *Source[T]) Close(ctx context.Context) error {
	s.proc.Stop()
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.log.Debugw("Source closed", zap.Int64("elements", s.seq))
	return s.emitter.EmitDone(ctx)
}

// SetHeartbeats switches the heartbeats following each batch.
func (s *Source[T]) SetHeartbeats(on bool) {
	s.heartbeats.Store(on)
}

// Processors returns the processor driving the source.
func (s *Source[T]) Processors() []*processor.Processor {
	return []*processor.Processor{s.proc}
}

// Processor returns the processor driving the source.
func (s *Source[T]) Processor() *processor.Processor {
	return s.proc
}

// IsDone reports whether the source signalled done.
func (s *Source[T]) IsDone() bool {
	return s.emitter.IsDone()
}
