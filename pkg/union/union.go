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

// Package union merges start ordered streams into one start ordered stream.
//
// Objects are buffered until the combined watermark of all inputs reached
// their start, so the buffer only holds the look-ahead of the inputs that
// run ahead of the slowest one.
package union

import (
	"context"
	"unsafe"

	"github.com/numaproj/sweepflow/pkg/pipes"
	"github.com/numaproj/sweepflow/pkg/temporal"
	"github.com/numaproj/sweepflow/pkg/watermark"
)

type unionOp[T any] struct {
	buffer temporal.Queue[T]
}

func (u *unionOp[T]) OnElement(_ context.Context, e temporal.Object[T], _ int, _ *pipes.Output[temporal.Object[T]]) error {
	u.buffer.Push(e)
	return nil
}

func (u *unionOp[T]) OnProgress(ctx context.Context, wm watermark.Watermark, out *pipes.Output[temporal.Object[T]]) (watermark.Watermark, error) {
	if err := u.buffer.Release(int64(wm), func(o temporal.Object[T]) error {
		return out.Emit(ctx, o)
	}); err != nil {
		return wm, err
	}
	if s, ok := u.buffer.MinStart(); ok {
		return min(wm, watermark.Watermark(s)), nil
	}
	return wm, nil
}

func (u *unionOp[T]) OnDone(ctx context.Context, out *pipes.Output[temporal.Object[T]]) error {
	return u.buffer.Flush(func(o temporal.Object[T]) error {
		return out.Emit(ctx, o)
	})
}

func (u *unionOp[T]) MemoryUsage() int64 {
	return int64(u.buffer.Len()) * int64(unsafe.Sizeof(temporal.Object[T]{}))
}

// New registers a union in g. Inputs are added by connecting upstreams.
func New[T any](g *pipes.Graph, name string, opts ...pipes.Option) (*pipes.Pipe[temporal.Object[T], temporal.Object[T]], error) {
	return pipes.NewPipe[temporal.Object[T], temporal.Object[T]](g, name, &unionOp[T]{}, temporal.StartOf[T], opts...)
}
