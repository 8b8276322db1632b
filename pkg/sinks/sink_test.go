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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/numaproj/sweepflow/pkg/pipes"
	"github.com/numaproj/sweepflow/pkg/temporal"
)

func TestCollector(t *testing.T) {
	ctx := context.Background()
	g := pipes.NewGraph()
	c := NewCollector[int](g, "collector")
	require.NoError(t, c.AddInput(0))
	require.NoError(t, c.AddInput(1))
	assert.ErrorIs(t, c.AddInput(1), pipes.ErrDuplicateInput)

	require.NoError(t, c.Process(ctx, 1, 0))
	require.NoError(t, c.Heartbeat(ctx, 5, pipes.AllInputs))
	require.NoError(t, c.Process(ctx, 2, 1))
	assert.ErrorIs(t, c.Process(ctx, 3, 2), pipes.ErrUnknownSource)

	require.NoError(t, c.Done(ctx, 0))
	assert.ErrorIs(t, c.Process(ctx, 3, 0), pipes.ErrSinkDone)
	assert.ErrorIs(t, c.Done(ctx, 0), pipes.ErrSinkDone)
	select {
	case <-c.Finished():
		t.Fatal("finished before every input was done")
	default:
	}

	require.NoError(t, c.Done(ctx, 1))
	assert.Equal(t, []int{1, 2}, c.Items())
	assert.Equal(t, []int64{5}, c.Heartbeats())
	assert.Equal(t, 2, c.Dones())
	assert.NoError(t, c.Wait(ctx))
	assert.ErrorIs(t, c.Heartbeat(ctx, 6, pipes.AllInputs), pipes.ErrSinkDone)
	assert.ErrorIs(t, c.AddInput(2), pipes.ErrSinkDone)
}

func TestCollector_WaitCancelled(t *testing.T) {
	c := NewCollector[int](pipes.NewGraph(), "waiting")
	require.NoError(t, c.AddInput(0))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Wait(ctx), context.DeadlineExceeded)
}

func TestCounterAndBlackhole(t *testing.T) {
	ctx := context.Background()
	g := pipes.NewGraph()
	c := NewCounter[string](g, "counter")
	b := NewBlackhole[string](g, "blackhole")
	for _, s := range []pipes.Sink[string]{c, b} {
		require.NoError(t, s.AddInput(0))
		require.NoError(t, s.Process(ctx, "a", 0))
		require.NoError(t, s.Process(ctx, "b", 0))
		require.NoError(t, s.Heartbeat(ctx, 1, 0))
		require.NoError(t, s.Done(ctx, 0))
		assert.ErrorIs(t, s.Process(ctx, "c", 0), pipes.ErrSinkDone)
	}
	assert.Equal(t, int64(2), c.Count())
}

func TestToLog(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.DebugLevel)
	l := NewToLog[temporal.Object[string]](pipes.NewGraph(), "log", WithLogger(zap.New(core).Sugar()))
	require.NoError(t, l.AddInput(0))
	require.NoError(t, l.Process(ctx, temporal.MustObject("x", 0, 100), 0))
	require.NoError(t, l.Heartbeat(ctx, 50, 0))
	require.NoError(t, l.Done(ctx, 0))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "Result", entries[0].Message)
	assert.Equal(t, `{"Value":"x","Interval":{"Start":0,"End":100}}`, entries[0].ContextMap()["payload"])
	assert.Equal(t, "Heartbeat", entries[1].Message)
	assert.Equal(t, "All inputs done", entries[2].Message)
}
