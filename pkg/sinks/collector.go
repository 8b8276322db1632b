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

package sinks

import (
	"context"
	"slices"

	"github.com/numaproj/sweepflow/pkg/pipes"
)

// Collector keeps everything it receives, in arrival order.
type Collector[T any] struct {
	terminal
	items      []T
	heartbeats []int64
	dones      int
}

var _ pipes.Sink[int] = (*Collector[int])(nil)

// NewCollector registers a collector in g.
func NewCollector[T any](g *pipes.Graph, name string) *Collector[T] {
	c := &Collector[T]{}
	c.init(g, name, c)
	return c
}

func (c *Collector[T]) Process(_ context.Context, e T, sourceID int) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.admit(sourceID); err != nil {
		return err
	}
	c.in.Inc()
	c.items = append(c.items, e)
	return nil
}

func (c *Collector[T]) Heartbeat(_ context.Context, ts int64, sourceID int) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.admitHeartbeat(sourceID); err != nil {
		return err
	}
	c.heartbeats = append(c.heartbeats, ts)
	return nil
}

func (c *Collector[T]) Done(_ context.Context, sourceID int) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if _, err := c.markDone(sourceID); err != nil {
		return err
	}
	c.dones++
	return nil
}

// Items returns a copy of the collected elements.
func (c *Collector[T]) Items() []T {
	c.lock.Lock()
	defer c.lock.Unlock()
	return slices.Clone(c.items)
}

// Heartbeats returns a copy of the received heartbeat timestamps.
func (c *Collector[T]) Heartbeats() []int64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return slices.Clone(c.heartbeats)
}

// Dones returns the number of done signals received.
func (c *Collector[T]) Dones() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.dones
}
