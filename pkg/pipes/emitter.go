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

	"go.uber.org/multierr"
)

type subscription[T any] struct {
	sink     Sink[T]
	sourceID int
}

// Emitter fans out to the subscribed sinks. Pushes are synchronous and in
// order per sink. Embed it to implement Source.
type Emitter[T any] struct {
	name string
	lock sync.RWMutex
	subs []subscription[T]
	done bool
}

// NewEmitter returns an emitter without subscribers.
func NewEmitter[T any](name string) *Emitter[T] {
	return &Emitter[T]{name: name}
}

// AddSink subscribes s under sourceID.
func (e *Emitter[T]) AddSink(s Sink[T], sourceID int) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.done {
		return fmt.Errorf("%w: %s", ErrSourceDone, e.name)
	}
	for _, sub := range e.subs {
		if sub.sink.ID() == s.ID() && sub.sourceID == sourceID {
			return fmt.Errorf("%w: %d on %s", ErrDuplicateInput, sourceID, s.Name())
		}
	}
	e.subs = append(e.subs, subscription[T]{sink: s, sourceID: sourceID})
	return nil
}

// RemoveSink unsubscribes s, reporting whether it was subscribed.
func (e *Emitter[T]) RemoveSink(s Sink[T], sourceID int) bool {
	e.lock.Lock()
	defer e.lock.Unlock()
	i := slices.IndexFunc(e.subs, func(sub subscription[T]) bool {
		return sub.sink.ID() == s.ID() && sub.sourceID == sourceID
	})
	if i < 0 {
		return false
	}
	e.subs = slices.Delete(e.subs, i, i+1)
	return true
}

// SinkCount returns the number of subscriptions.
func (e *Emitter[T]) SinkCount() int {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return len(e.subs)
}

// IsDone reports whether done was emitted.
func (e *Emitter[T]) IsDone() bool {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.done
}

func (e *Emitter[T]) snapshot() []subscription[T] {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return slices.Clone(e.subs)
}

// Emit pushes v into every sink. All sinks are tried; errors are combined.
func (e *Emitter[T]) Emit(ctx context.Context, v T) error {
	var errs error
	for _, sub := range e.snapshot() {
		errs = multierr.Append(errs, sub.sink.Process(ctx, v, sub.sourceID))
	}
	return errs
}

// EmitTo pushes v only into the sinks subscribed under sourceID.
func (e *Emitter[T]) EmitTo(ctx context.Context, sourceID int, v T) error {
	var errs error
	for _, sub := range e.snapshot() {
		if sub.sourceID == sourceID {
			errs = multierr.Append(errs, sub.sink.Process(ctx, v, sub.sourceID))
		}
	}
	return errs
}

// EmitHeartbeat pushes a heartbeat into every sink.
func (e *Emitter[T]) EmitHeartbeat(ctx context.Context, ts int64) error {
	var errs error
	for _, sub := range e.snapshot() {
		errs = multierr.Append(errs, sub.sink.Heartbeat(ctx, ts, sub.sourceID))
	}
	return errs
}

// EmitDone signals done to every sink, once. Later calls are no-ops and
// later subscriptions fail.
func (e *Emitter[T]) EmitDone(ctx context.Context) error {
	e.lock.Lock()
	if e.done {
		e.lock.Unlock()
		return nil
	}
	e.done = true
	subs := slices.Clone(e.subs)
	e.lock.Unlock()
	var errs error
	for _, sub := range subs {
		errs = multierr.Append(errs, sub.sink.Done(ctx, sub.sourceID))
	}
	return errs
}
