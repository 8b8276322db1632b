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

	"go.uber.org/atomic"

	"github.com/numaproj/sweepflow/pkg/pipes"
)

// Counter counts elements without keeping them.
type Counter[T any] struct {
	terminal
	count atomic.Int64
}

var _ pipes.Sink[int] = (*Counter[int])(nil)

// NewCounter registers a counter in g.
func NewCounter[T any](g *pipes.Graph, name string) *Counter[T] {
	c := &Counter[T]{}
	c.init(g, name, c)
	return c
}

func (c *Counter[T]) Process(_ context.Context, _ T, sourceID int) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.admit(sourceID); err != nil {
		return err
	}
	c.in.Inc()
	c.count.Inc()
	return nil
}

func (c *Counter[T]) Heartbeat(_ context.Context, _ int64, sourceID int) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.admitHeartbeat(sourceID)
}

func (c *Counter[T]) Done(_ context.Context, sourceID int) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	_, err := c.markDone(sourceID)
	return err
}

// Count returns the number of elements received so far.
func (c *Counter[T]) Count() int64 {
	return c.count.Load()
}

// Blackhole drops everything.
type Blackhole[T any] struct {
	terminal
}

var _ pipes.Sink[int] = (*Blackhole[int])(nil)

// NewBlackhole registers a blackhole in g.
func NewBlackhole[T any](g *pipes.Graph, name string) *Blackhole[T] {
	b := &Blackhole[T]{}
	b.init(g, name, b)
	return b
}

func (b *Blackhole[T]) Process(_ context.Context, _ T, sourceID int) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.admit(sourceID)
}

func (b *Blackhole[T]) Heartbeat(_ context.Context, _ int64, sourceID int) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.admitHeartbeat(sourceID)
}

func (b *Blackhole[T]) Done(_ context.Context, sourceID int) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	_, err := b.markDone(sourceID)
	return err
}
