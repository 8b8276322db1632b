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

package pipes

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/numaproj/sweepflow/pkg/metadata"
	"github.com/numaproj/sweepflow/pkg/metrics"
	"github.com/numaproj/sweepflow/pkg/processor"
	"github.com/numaproj/sweepflow/pkg/shared/logging"
	"github.com/numaproj/sweepflow/pkg/watermark"
)

type msgKind uint8

const (
	msgData msgKind = iota
	msgHeartbeat
	msgDone
)

func (k msgKind) String() string {
	switch k {
	case msgData:
		return "element"
	case msgHeartbeat:
		return "heartbeat"
	case msgDone:
		return "done"
	}
	return "unknown"
}

type message[I any] struct {
	kind msgKind
	elem I
	ts   int64
	// slot is the input index, AllInputs for broadcast heartbeats
	slot int
	// last marks the done completing the final open input
	last bool
}

type input struct {
	sourceID  int
	connected bool
	done      bool
}

type pipeMetrics struct {
	hbIn    prometheus.Counter
	hbOut   prometheus.Counter
	in      prometheus.Counter
	wm      prometheus.Gauge
	latency prometheus.Observer
}

// Pipe is a node that is both a Sink and a Source, driving an Operator.
//
// Deliveries are checked against the protocol when they are enqueued: an
// element, heartbeat or second done from an input that already signalled
// done is rejected with ErrSinkDone. Accepted deliveries are processed in
// arrival order, under the write side of the pipe lock. The first processing
// error sticks: every later delivery returns it.
type Pipe[I, O any] struct {
	Vertex
	emitter    *Emitter[O]
	op         Operator[I, O]
	stamp      func(I) int64
	log        *zap.SugaredLogger
	policy     watermark.Policy
	heartbeats atomic.Bool

	// guarded by boxLock
	boxLock  sync.Mutex
	inbox    []message[I]
	draining bool
	inputs   []input
	declared bool
	pending  int
	closed   bool
	err      error

	// guarded by lock
	lock          sync.RWMutex
	tracker       *watermark.Tracker
	lastHeartbeat watermark.Watermark
	finished      bool
	out           *Output[O]

	meta     *metadata.Manager
	sampler  *processor.Processor
	recorder metadata.Recorder
	metrics  pipeMetrics
}

// NewPipe registers a pipe driving op in g. stamp extracts the progress
// timestamp of an element; nil means elements do not advance the watermark.
func NewPipe[I, O any](g *Graph, name string, op Operator[I, O], stamp func(I) int64, opts ...Option) (*Pipe[I, O], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logging.NewNopLogger()
	}
	p := &Pipe[I, O]{
		emitter:       NewEmitter[O](name),
		op:            op,
		stamp:         stamp,
		log:           o.log.With("operator", name),
		policy:        o.policy,
		tracker:       watermark.NewTracker(len(o.inputs)),
		lastHeartbeat: watermark.Initial,
		recorder:      metadata.Nop,
		metrics: pipeMetrics{
			hbIn:    metrics.HeartbeatsIn.WithLabelValues(name),
			hbOut:   metrics.HeartbeatsOut.WithLabelValues(name),
			in:      metrics.ElementsIn.WithLabelValues(name),
			wm:      metrics.Watermark.WithLabelValues(name),
			latency: metrics.ProcessingTime.WithLabelValues(name),
		},
	}
	p.heartbeats.Store(o.heartbeats)
	if len(o.inputs) > 0 {
		p.declared = true
		for _, id := range o.inputs {
			if slices.ContainsFunc(p.inputs, func(in input) bool { return in.sourceID == id }) {
				return nil, fmt.Errorf("%s: %w: %d", name, ErrDuplicateInput, id)
			}
			p.inputs = append(p.inputs, input{sourceID: id})
		}
		p.pending = len(p.inputs)
	}
	if o.meta.Enabled() {
		m, err := metadata.NewManager(name, o.meta, p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		p.meta = m
		p.recorder = m.Recorder()
		p.sampler = processor.New(name+"-metadata", m, processor.WithSchedule(processor.Every(m.Config().Period)))
	}
	p.out = &Output[O]{
		emitter:  p.emitter,
		tracker:  p.tracker,
		recorder: p.recorder,
		counter:  metrics.ElementsOut.WithLabelValues(name),
	}
	p.Vertex = NewVertex(g, name, p)
	return p, nil
}

// AddSink subscribes s to the output of the pipe.
func (p *Pipe[I, O]) AddSink(s Sink[O], sourceID int) error {
	return p.emitter.AddSink(s, sourceID)
}

// RemoveSink unsubscribes s.
func (p *Pipe[I, O]) RemoveSink(s Sink[O], sourceID int) bool {
	return p.emitter.RemoveSink(s, sourceID)
}

// AddInput registers sourceID as an input slot.
func (p *Pipe[I, O]) AddInput(sourceID int) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.boxLock.Lock()
	defer p.boxLock.Unlock()
	if p.closed {
		return fmt.Errorf("%w: %s", ErrClosed, p.Name())
	}
	i := p.slotOf(sourceID)
	if p.declared {
		if i < 0 {
			return fmt.Errorf("%w: %d on %s", ErrUnknownSource, sourceID, p.Name())
		}
		if p.inputs[i].connected {
			return fmt.Errorf("%w: %d on %s", ErrDuplicateInput, sourceID, p.Name())
		}
		p.inputs[i].connected = true
		return nil
	}
	if i >= 0 {
		return fmt.Errorf("%w: %d on %s", ErrDuplicateInput, sourceID, p.Name())
	}
	if p.finished {
		return fmt.Errorf("%w: %s", ErrSinkDone, p.Name())
	}
	p.inputs = append(p.inputs, input{sourceID: sourceID, connected: true})
	p.tracker.AddSlot()
	p.pending++
	return nil
}

func (p *Pipe[I, O]) slotOf(sourceID int) int {
	return slices.IndexFunc(p.inputs, func(in input) bool { return in.sourceID == sourceID })
}

// Process delivers an element from sourceID.
func (p *Pipe[I, O]) Process(ctx context.Context, e I, sourceID int) error {
	return p.deliver(ctx, message[I]{kind: msgData, elem: e}, sourceID)
}

// Heartbeat delivers progress of sourceID, or of every input for AllInputs.
func (p *Pipe[I, O]) Heartbeat(ctx context.Context, ts int64, sourceID int) error {
	return p.deliver(ctx, message[I]{kind: msgHeartbeat, ts: ts}, sourceID)
}

// Done signals that sourceID finished.
func (p *Pipe[I, O]) Done(ctx context.Context, sourceID int) error {
	return p.deliver(ctx, message[I]{kind: msgDone}, sourceID)
}

func (p *Pipe[I, O]) deliver(ctx context.Context, m message[I], sourceID int) error {
	p.boxLock.Lock()
	skip, err := p.admit(&m, sourceID)
	if err != nil || skip {
		p.boxLock.Unlock()
		return err
	}
	p.inbox = append(p.inbox, m)
	if p.draining {
		p.boxLock.Unlock()
		return nil
	}
	p.draining = true
	p.boxLock.Unlock()
	return p.drain(ctx)
}

// admit checks a delivery against the protocol and fills in its slot. It
// runs under boxLock.
func (p *Pipe[I, O]) admit(m *message[I], sourceID int) (bool, error) {
	if p.err != nil {
		return false, p.err
	}
	if sourceID == AllInputs && m.kind == msgHeartbeat {
		if p.closed {
			return false, p.reject("closed", fmt.Errorf("%w: heartbeat to %s", ErrClosed, p.Name()))
		}
		if p.pending == 0 {
			return false, p.reject("done", fmt.Errorf("%w: heartbeat to finished %s", ErrSinkDone, p.Name()))
		}
		m.slot = AllInputs
		return false, nil
	}
	slot := p.slotOf(sourceID)
	if slot < 0 {
		return false, p.reject("unknown_source", fmt.Errorf("%w: %s from %d to %s", ErrUnknownSource, m.kind, sourceID, p.Name()))
	}
	in := &p.inputs[slot]
	if in.done {
		if p.closed && m.kind == msgDone {
			// inputs of a closed pipe were finished by Close
			return true, nil
		}
		if p.closed {
			return false, p.reject("closed", fmt.Errorf("%w: %s from %d to %s", ErrClosed, m.kind, sourceID, p.Name()))
		}
		return false, p.reject("done", fmt.Errorf("%w: %s from %d to %s", ErrSinkDone, m.kind, sourceID, p.Name()))
	}
	m.slot = slot
	if m.kind == msgDone {
		in.done = true
		p.pending--
		m.last = p.pending == 0
	}
	return false, nil
}

func (p *Pipe[I, O]) reject(reason string, err error) error {
	metrics.ProtocolErrors.WithLabelValues(p.Name(), reason).Inc()
	p.log.Errorw("Rejected delivery", zap.Error(err))
	return err
}

func (p *Pipe[I, O]) drain(ctx context.Context) error {
	for {
		p.boxLock.Lock()
		if len(p.inbox) == 0 {
			p.draining = false
			p.boxLock.Unlock()
			return nil
		}
		m := p.inbox[0]
		p.inbox[0] = message[I]{}
		p.inbox = p.inbox[1:]
		p.boxLock.Unlock()

		if err := p.step(ctx, m); err != nil {
			p.boxLock.Lock()
			p.err = err
			p.inbox = nil
			p.draining = false
			p.boxLock.Unlock()
			p.log.Errorw("Operator failed", zap.Error(err))
			return err
		}
	}
}

func (p *Pipe[I, O]) step(ctx context.Context, m message[I]) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	start := time.Now()
	defer func() {
		p.metrics.latency.Observe(float64(time.Since(start).Microseconds()))
	}()

	switch m.kind {
	case msgData:
		p.metrics.in.Inc()
		p.recorder.RecordIn(1)
		if p.stamp != nil {
			p.tracker.Advance(m.slot, watermark.Watermark(p.stamp(m.elem)))
		}
		if err := p.op.OnElement(ctx, m.elem, m.slot, p.out); err != nil {
			return fmt.Errorf("%s: failed to process element: %w", p.Name(), err)
		}
		if _, err := p.op.OnProgress(ctx, p.tracker.Min(), p.out); err != nil {
			return fmt.Errorf("%s: failed to advance: %w", p.Name(), err)
		}
		p.observeWatermark()
		return nil
	case msgHeartbeat:
		p.metrics.hbIn.Inc()
		var changed bool
		if m.slot == AllInputs {
			changed = p.tracker.AdvanceAll(watermark.Watermark(m.ts))
		} else {
			changed = p.tracker.Advance(m.slot, watermark.Watermark(m.ts))
		}
		if !changed {
			return nil
		}
		return p.progress(ctx)
	case msgDone:
		changed := false
		if m.slot >= 0 {
			changed = p.tracker.Finish(m.slot)
			if h, ok := p.op.(InputDoneHandler[O]); ok {
				if err := h.OnInputDone(ctx, m.slot, p.out); err != nil {
					return fmt.Errorf("%s: failed to finish input %d: %w", p.Name(), m.slot, err)
				}
			}
		}
		if m.last {
			return p.finish(ctx)
		}
		if changed {
			return p.progress(ctx)
		}
	}
	return nil
}

func (p *Pipe[I, O]) progress(ctx context.Context) error {
	safe, err := p.op.OnProgress(ctx, p.tracker.Min(), p.out)
	if err != nil {
		return fmt.Errorf("%s: failed to advance: %w", p.Name(), err)
	}
	p.observeWatermark()
	return p.forward(ctx, safe)
}

func (p *Pipe[I, O]) forward(ctx context.Context, safe watermark.Watermark) error {
	if !p.heartbeats.Load() || safe == watermark.Max || safe <= p.lastHeartbeat {
		return nil
	}
	if !p.policy.ShouldPropagate(p.lastHeartbeat, safe) {
		return nil
	}
	p.lastHeartbeat = safe
	p.metrics.hbOut.Inc()
	return p.emitter.EmitHeartbeat(ctx, int64(safe))
}

func (p *Pipe[I, O]) finish(ctx context.Context) error {
	if p.finished {
		return nil
	}
	p.finished = true
	var errs error
	if err := p.op.OnDone(ctx, p.out); err != nil {
		errs = fmt.Errorf("%s: failed to flush: %w", p.Name(), err)
	}
	if p.sampler != nil {
		p.sampler.Stop()
	}
	p.log.Debug("All inputs done")
	return multierr.Append(errs, p.emitter.EmitDone(ctx))
}

func (p *Pipe[I, O]) observeWatermark() {
	if wm := p.tracker.Min(); wm != watermark.Initial && wm != watermark.Max {
		p.metrics.wm.Set(float64(wm))
	}
}

// Close finishes every input that has not signalled done, so the pipe
// flushes and signals done downstream. Later elements and heartbeats fail
// with ErrClosed; later done signals are ignored.
func (p *Pipe[I, O]) Close(ctx context.Context) error {
	p.boxLock.Lock()
	if p.closed {
		p.boxLock.Unlock()
		return nil
	}
	p.closed = true
	if p.err != nil {
		p.boxLock.Unlock()
		return p.emitter.EmitDone(ctx)
	}
	var msgs []message[I]
	for i := range p.inputs {
		if p.inputs[i].done {
			continue
		}
		p.inputs[i].done = true
		p.pending--
		msgs = append(msgs, message[I]{kind: msgDone, slot: i, last: p.pending == 0})
	}
	if len(p.inputs) == 0 {
		msgs = append(msgs, message[I]{kind: msgDone, slot: AllInputs, last: true})
	}
	p.inbox = append(p.inbox, msgs...)
	if p.draining || len(msgs) == 0 {
		p.boxLock.Unlock()
		return nil
	}
	p.draining = true
	p.boxLock.Unlock()
	return p.drain(ctx)
}

// SetHeartbeats switches heartbeat forwarding. Heartbeats received while
// off still advance the watermark and expire state.
func (p *Pipe[I, O]) SetHeartbeats(on bool) {
	p.heartbeats.Store(on)
}

// HeartbeatsEnabled reports the state of the heartbeat switch.
func (p *Pipe[I, O]) HeartbeatsEnabled() bool {
	return p.heartbeats.Load()
}

// Watermark returns the combined watermark.
func (p *Pipe[I, O]) Watermark() watermark.Watermark {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.tracker.Min()
}

// MemoryUsage estimates the bytes held by the operator. It only takes the
// read side of the pipe lock.
func (p *Pipe[I, O]) MemoryUsage() int64 {
	p.lock.RLock()
	defer p.lock.RUnlock()
	if r, ok := p.op.(metadata.MemoryReporter); ok {
		return r.MemoryUsage()
	}
	return 0
}

// Inspect runs f under the read side of the pipe lock, for introspection of
// operator state from other goroutines.
func (p *Pipe[I, O]) Inspect(f func()) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	f()
}

// Err returns the sticky processing error, if any.
func (p *Pipe[I, O]) Err() error {
	p.boxLock.Lock()
	defer p.boxLock.Unlock()
	return p.err
}

// IsDone reports whether the pipe signalled done downstream.
func (p *Pipe[I, O]) IsDone() bool {
	return p.emitter.IsDone()
}

// SinkCount returns the number of subscribed sinks.
func (p *Pipe[I, O]) SinkCount() int {
	return p.emitter.SinkCount()
}

// Metadata returns the metadata manager, nil when metadata is disabled.
func (p *Pipe[I, O]) Metadata() *metadata.Manager {
	return p.meta
}

// Processors returns the metadata sampler, if any.
func (p *Pipe[I, O]) Processors() []*processor.Processor {
	if p.sampler == nil {
		return nil
	}
	return []*processor.Processor{p.sampler}
}
