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

package sources

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/numaproj/sweepflow/pkg/pipes"
	"github.com/numaproj/sweepflow/pkg/sinks"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func stamp(v int) int64 { return int64(v) }

func TestSource_Drain(t *testing.T) {
	ctx := context.Background()
	g := pipes.NewGraph()
	src := NewSlice(g, "src", []int{1, 2, 3, 4, 5}, stamp, WithBatch(2))
	out := sinks.NewCollector[int](g, "out")
	require.NoError(t, pipes.Connect[int](ctx, src, out, 0))

	require.NoError(t, src.Drain(ctx))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, out.Items())
	assert.Equal(t, []int64{2, 4, 5}, out.Heartbeats())
	assert.Equal(t, 1, out.Dones())
	assert.True(t, src.IsDone())

	// exhausted sources stay finished
	require.NoError(t, src.Drain(ctx))
	require.NoError(t, src.Close(ctx))
	assert.Equal(t, 1, out.Dones())
}

func TestSource_HeartbeatsOff(t *testing.T) {
	ctx := context.Background()
	g := pipes.NewGraph()
	src := NewSlice(g, "src", []int{1, 2, 3}, stamp, WithBatch(1))
	out := sinks.NewCollector[int](g, "out")
	require.NoError(t, pipes.Connect[int](ctx, src, out, 0))
	g.SetHeartbeats(out.ID(), false)
	require.NoError(t, src.Drain(ctx))
	assert.Empty(t, out.Heartbeats())
	assert.Len(t, out.Items(), 3)
}

func TestSource_CloseEarly(t *testing.T) {
	ctx := context.Background()
	g := pipes.NewGraph()
	src := New(g, "endless", func(seq int64) (int, bool) { return int(seq), true }, nil)
	out := sinks.NewCollector[int](g, "out")
	require.NoError(t, pipes.Connect[int](ctx, src, out, 0))
	require.NoError(t, src.Run(ctx))
	assert.Len(t, out.Items(), 64)
	require.NoError(t, g.CloseAllSources(ctx, out.ID()))
	assert.Equal(t, 1, out.Dones())
	require.NoError(t, src.Drain(ctx))
	assert.Len(t, out.Items(), 64)

	err := pipes.Connect[int](ctx, src, sinks.NewCollector[int](g, "late"), 0)
	assert.ErrorIs(t, err, pipes.ErrSourceDone)
}

func TestSource_Processor(t *testing.T) {
	ctx := context.Background()
	g := pipes.NewGraph()
	items := make([]int, 500)
	for i := range items {
		items[i] = i
	}
	src := NewSlice(g, "src", items, stamp, WithBatch(50))
	out := sinks.NewCollector[int](g, "out")
	require.NoError(t, pipes.Connect[int](ctx, src, out, 0))
	require.Len(t, src.Processors(), 1)
	require.NoError(t, src.Processor().Start(ctx))

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, out.Wait(waitCtx))
	require.NoError(t, src.Processor().Wait(waitCtx))
	assert.Equal(t, items, out.Items())
}
