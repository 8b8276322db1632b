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

// Package heartbeat generates heartbeats for inputs that do not produce
// progress on their own, so stateful operators keep expiring their state
// while no data arrives.
package heartbeat

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/numaproj/sweepflow/pkg/metrics"
	"github.com/numaproj/sweepflow/pkg/pipes"
	"github.com/numaproj/sweepflow/pkg/processor"
	"github.com/numaproj/sweepflow/pkg/shared/logging"
)

// Receiver is the heartbeat side of a sink.
type Receiver interface {
	Name() string
	Heartbeat(ctx context.Context, ts int64, sourceID int) error
}

type target struct {
	recv     Receiver
	sourceID int
	fn       ProgressFunc
	last     int64
}

type options struct {
	clock clock.Clock
	log   *zap.SugaredLogger
}

type Option func(*options)

// WithClock replaces the system clock of the generator's processor.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) {
		o.log = l
	}
}

// Generator polls a progress function per target at a fixed period and
// delivers a heartbeat whenever the progress increased. A target whose
// function stopped, or whose receiver finished, is dropped. The generator
// terminates once no target is left.
type Generator struct {
	name      string
	proc      *processor.Processor
	log       *zap.SugaredLogger
	generated prometheus.Counter

	lock    sync.Mutex
	targets []*target
}

var _ processor.Runnable = (*Generator)(nil)

// New returns a generator polling every period. Targets are added before
// the generator starts.
func New(name string, period time.Duration, opts ...Option) *Generator {
	o := &options{clock: clock.New()}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logging.NewNopLogger()
	}
	g := &Generator{
		name:      name,
		log:       o.log.With("generator", name),
		generated: metrics.HeartbeatsGenerated.WithLabelValues(name),
	}
	g.proc = processor.New(name, g, processor.WithSchedule(processor.Every(period)), processor.WithClock(o.clock))
	return g
}

// Add registers a target: heartbeats from fn are delivered to recv under
// sourceID.
func (g *Generator) Add(recv Receiver, sourceID int, fn ProgressFunc) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.targets = append(g.targets, &target{recv: recv, sourceID: sourceID, fn: fn, last: math.MinInt64})
}

// Len returns the number of live targets.
func (g *Generator) Len() int {
	g.lock.Lock()
	defer g.lock.Unlock()
	return len(g.targets)
}

// Run polls every target once.
func (g *Generator) Run(ctx context.Context) error {
	g.lock.Lock()
	defer g.lock.Unlock()
	live := make([]*target, 0, len(g.targets))
	for _, t := range g.targets {
		keep, err := g.poll(ctx, t)
		if err != nil {
			return err
		}
		if keep {
			live = append(live, t)
		}
	}
	g.targets = live
	if len(g.targets) == 0 {
		g.log.Info("No target left")
		return processor.ErrFinished
	}
	return nil
}

func (g *Generator) poll(ctx context.Context, t *target) (bool, error) {
	ts, ok := t.fn()
	if !ok {
		g.log.Debugw("Progress function stopped", zap.String("target", t.recv.Name()), zap.Int("source", t.sourceID))
		return false, nil
	}
	if ts <= t.last {
		return true, nil
	}
	err := t.recv.Heartbeat(ctx, ts, t.sourceID)
	switch {
	case err == nil:
		t.last = ts
		g.generated.Inc()
		return true, nil
	case errors.Is(err, pipes.ErrSinkDone), errors.Is(err, pipes.ErrClosed):
		g.log.Debugw("Target finished", zap.String("target", t.recv.Name()), zap.Int("source", t.sourceID))
		return false, nil
	default:
		return false, err
	}
}

// Processor returns the processor driving the generator.
func (g *Generator) Processor() *processor.Processor {
	return g.proc
}

func (g *Generator) Processors() []*processor.Processor {
	return []*processor.Processor{g.proc}
}
