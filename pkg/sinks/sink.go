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

// Package sinks contains terminal nodes of a query: they consume results and
// never emit anything.
package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/numaproj/sweepflow/pkg/metrics"
	"github.com/numaproj/sweepflow/pkg/pipes"
)

// terminal enforces the sink side of the protocol for the sinks in this
// package: deliveries after done are rejected, done is observed once all
// inputs finished.
type terminal struct {
	pipes.Vertex
	lock     sync.Mutex
	inputs   map[int]bool
	pending  int
	finished chan struct{}
	in       prometheus.Counter
}

func (t *terminal) init(g *pipes.Graph, name string, node any) {
	t.Vertex = pipes.NewVertex(g, name, node)
	t.inputs = make(map[int]bool)
	t.finished = make(chan struct{})
	t.in = metrics.ElementsIn.WithLabelValues(name)
}

// AddInput registers an input slot.
func (t *terminal) AddInput(sourceID int) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if _, ok := t.inputs[sourceID]; ok {
		return fmt.Errorf("%w: %d on %s", pipes.ErrDuplicateInput, sourceID, t.Name())
	}
	if t.isFinished() {
		return fmt.Errorf("%w: %s", pipes.ErrSinkDone, t.Name())
	}
	t.inputs[sourceID] = false
	t.pending++
	return nil
}

// admit checks a delivery from sourceID. Callers hold the lock.
func (t *terminal) admit(sourceID int) error {
	done, ok := t.inputs[sourceID]
	if !ok {
		return fmt.Errorf("%w: %d to %s", pipes.ErrUnknownSource, sourceID, t.Name())
	}
	if done {
		return fmt.Errorf("%w: %d to %s", pipes.ErrSinkDone, sourceID, t.Name())
	}
	return nil
}

// admitHeartbeat is admit that also accepts AllInputs.
func (t *terminal) admitHeartbeat(sourceID int) error {
	if sourceID == pipes.AllInputs {
		if t.isFinished() {
			return fmt.Errorf("%w: heartbeat to %s", pipes.ErrSinkDone, t.Name())
		}
		return nil
	}
	return t.admit(sourceID)
}

// markDone records the done of sourceID and reports whether it was the last
// open input. Callers hold the lock.
func (t *terminal) markDone(sourceID int) (bool, error) {
	if err := t.admit(sourceID); err != nil {
		return false, err
	}
	t.inputs[sourceID] = true
	t.pending--
	if t.pending == 0 {
		close(t.finished)
		return true, nil
	}
	return false, nil
}

func (t *terminal) isFinished() bool {
	select {
	case <-t.finished:
		return true
	default:
		return false
	}
}

// Finished is closed once every input signalled done.
func (t *terminal) Finished() <-chan struct{} {
	return t.finished
}

// Wait blocks until every input signalled done or ctx is cancelled.
func (t *terminal) Wait(ctx context.Context) error {
	select {
	case <-t.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
