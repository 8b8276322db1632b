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

// Package pipes implements the push dataflow protocol: sources push elements,
// heartbeats and done signals into the sinks subscribed to them, and pipes are
// both. Nodes live in a Graph arena; subscriptions are edges in it.
//
// Every Pipe serializes the deliveries of all its inputs through an inbox.
// A caller delivering into an idle pipe runs the pipe's processing steps
// itself; a caller finding it busy only enqueues and returns. No delivery
// blocks on another producer.
package pipes

import (
	"context"
	"fmt"
)

// AllInputs as a heartbeat source id advances every input of the receiver.
const AllInputs = -1

// Node is anything registered in a Graph.
type Node interface {
	ID() NodeID
	Name() string
	Graph() *Graph
}

// Sink receives the output of one or more sources. The sourceID tells the
// inputs apart.
type Sink[I any] interface {
	Node
	// Process delivers one element.
	Process(ctx context.Context, e I, sourceID int) error
	// Heartbeat promises that no element starting before ts follows on this input.
	Heartbeat(ctx context.Context, ts int64, sourceID int) error
	// Done signals that the input will not deliver anything else.
	Done(ctx context.Context, sourceID int) error
	// AddInput registers an input slot before the first delivery.
	AddInput(sourceID int) error
}

// Source pushes into the sinks subscribed to it.
type Source[O any] interface {
	Node
	AddSink(s Sink[O], sourceID int) error
	RemoveSink(s Sink[O], sourceID int) bool
}

// Connect subscribes dst to src under sourceID. Connecting to a source that
// already signalled done fails with ErrSourceDone, and the slot registered on
// dst is closed so dst does not wait on it.
func Connect[T any](ctx context.Context, src Source[T], dst Sink[T], sourceID int) error {
	if src.Graph() != dst.Graph() {
		return fmt.Errorf("%w: %s -> %s", ErrForeignGraph, src.Name(), dst.Name())
	}
	if err := dst.AddInput(sourceID); err != nil {
		return fmt.Errorf("failed to connect %s -> %s: %w", src.Name(), dst.Name(), err)
	}
	if err := src.AddSink(dst, sourceID); err != nil {
		_ = dst.Done(ctx, sourceID)
		return fmt.Errorf("failed to connect %s -> %s: %w", src.Name(), dst.Name(), err)
	}
	src.Graph().addEdge(Edge{From: src.ID(), To: dst.ID(), SourceID: sourceID})
	return nil
}

// Disconnect removes the subscription and signals done on dst's slot, since
// nothing will be delivered through it anymore.
func Disconnect[T any](ctx context.Context, src Source[T], dst Sink[T], sourceID int) error {
	if !src.RemoveSink(dst, sourceID) {
		return fmt.Errorf("%w: %d on %s", ErrUnknownSource, sourceID, src.Name())
	}
	src.Graph().removeEdge(Edge{From: src.ID(), To: dst.ID(), SourceID: sourceID})
	return dst.Done(ctx, sourceID)
}
