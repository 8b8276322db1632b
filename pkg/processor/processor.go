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

// Package processor runs repeating units of work (element producing sources,
// heartbeat generators, metadata samplers) each in its own goroutine.
//
// A Processor either follows a Schedule or, without one, runs only when woken.
// Pausing suspends scheduled runs until the next Wake. Stop is observed at the
// next wake-up, so a task run that is in progress completes first.
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/numaproj/sweepflow/pkg/metrics"
	"github.com/numaproj/sweepflow/pkg/shared/logging"
)

var (
	// ErrFinished is returned by a Task that has no more work. The processor
	// then terminates without error.
	ErrFinished = errors.New("task finished")
	// ErrAlreadyStarted is returned when a processor is started twice.
	ErrAlreadyStarted = errors.New("processor already started")
)

// Task is one activation of a processor.
type Task interface {
	Run(ctx context.Context) error
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context) error

func (f TaskFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Runnable is implemented by graph nodes that own processors, so an executor
// can find and start them.
type Runnable interface {
	Processors() []*Processor
}

type Option func(*Processor)

// WithSchedule sets the activation schedule. Without one the processor runs
// only when woken.
func WithSchedule(s Schedule) Option {
	return func(p *Processor) {
		p.schedule = s
	}
}

// WithClock replaces the system clock.
func WithClock(c clock.Clock) Option {
	return func(p *Processor) {
		p.clock = c
	}
}

// StartPaused makes the processor wait for the first Wake.
func StartPaused() Option {
	return func(p *Processor) {
		p.paused.Store(true)
	}
}

// Processor is a repeating unit of work.
type Processor struct {
	name     string
	task     Task
	schedule Schedule
	clock    clock.Clock
	runs     prometheus.Counter
	failures prometheus.Counter

	started  atomic.Bool
	paused   atomic.Bool
	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error
}

// New returns a processor for task. It does nothing until Start.
func New(name string, task Task, opts ...Option) *Processor {
	p := &Processor{
		name:     name,
		task:     task,
		clock:    clock.New(),
		runs:     metrics.ProcessorRuns.WithLabelValues(name),
		failures: metrics.ProcessorErrors.WithLabelValues(name),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return p.name
}

// Start launches the processing goroutine.
func (p *Processor) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, p.name)
	}
	log := logging.FromContext(ctx).With("processor", p.name)
	go func() {
		defer close(p.done)
		p.err = p.loop(logging.WithLogger(ctx, log))
		if p.err != nil {
			log.Errorw("Processor terminated with error", zap.Error(p.err))
			return
		}
		log.Debug("Processor terminated")
	}()
	return nil
}

func (p *Processor) loop(ctx context.Context) error {
	for {
		var (
			timer *clock.Timer
			tick  <-chan time.Time
		)
		if p.schedule != nil && !p.paused.Load() {
			now := p.clock.Now()
			timer = p.clock.Timer(p.schedule.Next(now).Sub(now))
			tick = timer.C
		}
		select {
		case <-ctx.Done():
			stopTimer(timer)
			return nil
		case <-p.stop:
			stopTimer(timer)
			return nil
		case <-p.wake:
		case <-tick:
		}
		stopTimer(timer)
		if p.paused.Load() {
			continue
		}
		select {
		case <-p.stop:
			return nil
		default:
		}
		p.runs.Inc()
		if err := p.task.Run(ctx); err != nil {
			if errors.Is(err, ErrFinished) {
				return nil
			}
			p.failures.Inc()
			return fmt.Errorf("processor %s: %w", p.name, err)
		}
	}
}

func stopTimer(t *clock.Timer) {
	if t != nil {
		t.Stop()
	}
}

// Wake resumes a paused processor and triggers one run.
func (p *Processor) Wake() {
	p.paused.Store(false)
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Pause suspends scheduled runs until the next Wake.
func (p *Processor) Pause() {
	p.paused.Store(true)
}

// Paused reports whether the processor is paused.
func (p *Processor) Paused() bool {
	return p.paused.Load()
}

// Stop asks the processor to terminate at its next wake-up. It is safe to
// call more than once and before Start.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
}

// Done is closed when the processing goroutine has returned.
func (p *Processor) Done() <-chan struct{} {
	return p.done
}

// Started reports whether Start was called.
func (p *Processor) Started() bool {
	return p.started.Load()
}

// Wait blocks until the processor terminated and returns its error. A
// processor that was never started returns immediately.
func (p *Processor) Wait(ctx context.Context) error {
	if !p.started.Load() {
		return nil
	}
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
