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

	"github.com/numaproj/sweepflow/pkg/temporal"
	"github.com/numaproj/sweepflow/pkg/watermark"
)

type mapOp[I, O any] struct {
	Stateless[O]
	fn func(I) (O, error)
}

func (m *mapOp[I, O]) OnElement(ctx context.Context, e I, _ int, out *Output[O]) error {
	v, err := m.fn(e)
	if err != nil {
		return err
	}
	return out.Emit(ctx, v)
}

// NewMap returns a pipe applying fn to every element.
func NewMap[I, O any](g *Graph, name string, fn func(I) (O, error), stamp func(I) int64, opts ...Option) (*Pipe[I, O], error) {
	return NewPipe[I, O](g, name, &mapOp[I, O]{fn: fn}, stamp, opts...)
}

type filterOp[T any] struct {
	Stateless[T]
	keep func(T) bool
}

func (f *filterOp[T]) OnElement(ctx context.Context, e T, _ int, out *Output[T]) error {
	if !f.keep(e) {
		return nil
	}
	return out.Emit(ctx, e)
}

// NewFilter returns a pipe forwarding the elements keep accepts.
func NewFilter[T any](g *Graph, name string, keep func(T) bool, stamp func(T) int64, opts ...Option) (*Pipe[T, T], error) {
	return NewPipe[T, T](g, name, &filterOp[T]{keep: keep}, stamp, opts...)
}

// Consumer is the terminal end of a query.
type Consumer[I any] interface {
	Consume(ctx context.Context, e I, slot int) error
	// Finish runs once, after every input signalled done.
	Finish(ctx context.Context) error
}

// ConsumerFunc adapts a function to Consumer with a no-op Finish.
type ConsumerFunc[I any] func(ctx context.Context, e I, slot int) error

func (f ConsumerFunc[I]) Consume(ctx context.Context, e I, slot int) error {
	return f(ctx, e, slot)
}

func (f ConsumerFunc[I]) Finish(context.Context) error {
	return nil
}

type terminalOp[I any] struct {
	c Consumer[I]
}

func (t *terminalOp[I]) OnElement(ctx context.Context, e I, slot int, _ *Output[I]) error {
	return t.c.Consume(ctx, e, slot)
}

func (t *terminalOp[I]) OnProgress(_ context.Context, wm watermark.Watermark, _ *Output[I]) (watermark.Watermark, error) {
	return wm, nil
}

func (t *terminalOp[I]) OnDone(ctx context.Context, _ *Output[I]) error {
	return t.c.Finish(ctx)
}

// NewTerminal returns a sink handing every element to c.
func NewTerminal[I any](g *Graph, name string, c Consumer[I], stamp func(I) int64, opts ...Option) (*Pipe[I, I], error) {
	return NewPipe[I, I](g, name, &terminalOp[I]{c: c}, stamp, opts...)
}

type orderVerifier[T any] struct {
	Stateless[temporal.Object[T]]
	last    int64
	started bool
}

func (v *orderVerifier[T]) OnElement(ctx context.Context, e temporal.Object[T], _ int, out *Output[temporal.Object[T]]) error {
	if v.started && e.Start() < v.last {
		return fmt.Errorf("%w: %s after start %d", ErrOrderViolation, e, v.last)
	}
	v.started = true
	v.last = e.Start()
	return out.Emit(ctx, e)
}

// NewOrderVerifier returns a pass-through pipe that fails as soon as an
// element starts before its predecessor.
func NewOrderVerifier[T any](g *Graph, name string, opts ...Option) (*Pipe[temporal.Object[T], temporal.Object[T]], error) {
	return NewPipe[temporal.Object[T], temporal.Object[T]](g, name, &orderVerifier[T]{}, temporal.StartOf[T], opts...)
}
