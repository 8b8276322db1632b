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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/numaproj/sweepflow/pkg/metadata"
	"github.com/numaproj/sweepflow/pkg/watermark"
)

// Operator is the state machine a Pipe drives. All hooks run inside the
// pipe's critical section, one at a time, so implementations need no locking
// of their own.
type Operator[I, O any] interface {
	// OnElement handles one element of input slot. The slot watermark was
	// already advanced to the element's timestamp.
	OnElement(ctx context.Context, e I, slot int, out *Output[O]) error
	// OnProgress runs after every element and every watermark advance. It
	// expires state up to wm and releases results that became final. It
	// returns the progress that is safe to announce downstream, which is wm
	// unless the operator still holds back results.
	OnProgress(ctx context.Context, wm watermark.Watermark, out *Output[O]) (watermark.Watermark, error)
	// OnDone runs once, after every input signalled done. It flushes the
	// remaining results.
	OnDone(ctx context.Context, out *Output[O]) error
}

// InputDoneHandler is implemented by operators that react to a single input
// finishing before the others.
type InputDoneHandler[O any] interface {
	OnInputDone(ctx context.Context, slot int, out *Output[O]) error
}

// Stateless provides the progress and done hooks of operators without state.
type Stateless[O any] struct{}

func (Stateless[O]) OnProgress(_ context.Context, wm watermark.Watermark, _ *Output[O]) (watermark.Watermark, error) {
	return wm, nil
}

func (Stateless[O]) OnDone(context.Context, *Output[O]) error {
	return nil
}

// Output is the operator side of a pipe's emitter.
type Output[O any] struct {
	emitter  *Emitter[O]
	tracker  *watermark.Tracker
	recorder metadata.Recorder
	counter  prometheus.Counter
}

// Emit pushes a result downstream.
func (o *Output[O]) Emit(ctx context.Context, v O) error {
	o.recorder.RecordOut(1)
	o.counter.Inc()
	return o.emitter.Emit(ctx, v)
}

// EmitTo pushes a result into the sinks subscribed under sourceID only.
func (o *Output[O]) EmitTo(ctx context.Context, sourceID int, v O) error {
	o.recorder.RecordOut(1)
	o.counter.Inc()
	return o.emitter.EmitTo(ctx, sourceID, v)
}

// Watermark returns the combined watermark of the pipe.
func (o *Output[O]) Watermark() watermark.Watermark {
	return o.tracker.Min()
}

// InputWatermark returns the watermark of one input slot.
func (o *Output[O]) InputWatermark(slot int) watermark.Watermark {
	return o.tracker.Of(slot)
}
