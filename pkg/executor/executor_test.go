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

package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/numaproj/sweepflow/pkg/heartbeat"
	"github.com/numaproj/sweepflow/pkg/pipes"
	"github.com/numaproj/sweepflow/pkg/sinks"
	"github.com/numaproj/sweepflow/pkg/sources"
	"github.com/numaproj/sweepflow/pkg/temporal"
	"github.com/numaproj/sweepflow/pkg/union"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type obj = temporal.Object[int]

func objects(n int) []obj {
	var out []obj
	for i := 0; i < n; i++ {
		out = append(out, temporal.MustObject(i, int64(i), int64(i+5)))
	}
	return out
}

func timeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestExecutor_StartAllQueries(t *testing.T) {
	ctx := timeout(t)
	g := pipes.NewGraph()
	a := sources.NewSlice(g, "a", objects(100), temporal.StartOf[int], sources.WithBatch(10))
	b := sources.NewSlice(g, "b", objects(50), temporal.StartOf[int], sources.WithBatch(10))
	u, err := union.New[int](g, "union")
	require.NoError(t, err)
	require.NoError(t, pipes.Connect[obj](ctx, a, u, 0))
	require.NoError(t, pipes.Connect[obj](ctx, b, u, 1))
	out := sinks.NewCollector[obj](g, "out")
	require.NoError(t, pipes.Connect[obj](ctx, u, out, 0))

	e := New()
	id, err := e.RegisterQuery(out)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, e.Queries())
	_, err = e.RegisterQuery(out)
	assert.ErrorIs(t, err, ErrDuplicateQuery)

	require.NoError(t, e.StartAllQueries(ctx))
	require.NoError(t, out.Wait(ctx))
	require.NoError(t, e.Wait(ctx))
	assert.Len(t, out.Items(), 150)
	assert.Equal(t, 1, out.Dones())

	assert.ErrorIs(t, e.StartQuery(ctx, id), ErrAlreadyStarted)
	assert.ErrorIs(t, e.StartQuery(ctx, "nope"), ErrUnknownQuery)
	// nothing left to start
	assert.NoError(t, e.StartAllQueries(ctx))
}

func TestExecutor_QueryDone(t *testing.T) {
	ctx := timeout(t)
	g := pipes.NewGraph()
	out := sinks.NewCollector[obj](g, "out")
	require.NoError(t, out.AddInput(0))
	require.NoError(t, out.Done(ctx, 0))

	e := New()
	id, err := e.RegisterQuery(out)
	require.NoError(t, err)
	assert.ErrorIs(t, e.StartQuery(ctx, id), ErrQueryDone)
}

func TestExecutor_StopQuery(t *testing.T) {
	ctx := timeout(t)
	g := pipes.NewGraph()
	endless := sources.New(g, "endless", func(seq int64) (obj, bool) {
		return temporal.MustObject(int(seq), seq, seq+1), true
	}, temporal.StartOf[int], sources.WithBatch(5))
	out := sinks.NewCounter[obj](g, "out")
	require.NoError(t, pipes.Connect[obj](ctx, endless, out, 0))

	e := New()
	id, err := e.RegisterQuery(out)
	require.NoError(t, err)
	require.NoError(t, e.StartQuery(ctx, id))
	assert.Eventually(t, func() bool { return out.Count() > 20 }, 2*time.Second, time.Millisecond)

	require.NoError(t, e.StopQuery(ctx, id))
	require.NoError(t, e.StopQuery(ctx, id))
	require.NoError(t, out.Wait(ctx))
	require.NoError(t, e.Wait(ctx))
	assert.True(t, endless.IsDone())
	assert.ErrorIs(t, e.StopQuery(ctx, "nope"), ErrUnknownQuery)
}

// Two queries sharing a source start its processor once.
func TestExecutor_SharedSource(t *testing.T) {
	ctx := timeout(t)
	g := pipes.NewGraph()
	src := sources.NewSlice(g, "shared", objects(30), temporal.StartOf[int])
	first := sinks.NewCollector[obj](g, "first")
	second := sinks.NewCollector[obj](g, "second")
	require.NoError(t, pipes.Connect[obj](ctx, src, first, 0))
	require.NoError(t, pipes.Connect[obj](ctx, src, second, 0))

	e := New()
	_, err := e.RegisterQuery(first)
	require.NoError(t, err)
	_, err = e.RegisterQuery(second)
	require.NoError(t, err)
	require.NoError(t, e.StartAllQueries(ctx))
	require.NoError(t, e.Wait(ctx))
	assert.Len(t, first.Items(), 30)
	assert.Len(t, second.Items(), 30)
}

func TestExecutor_AddProcessor(t *testing.T) {
	ctx := timeout(t)
	g := pipes.NewGraph()
	out := sinks.NewCollector[obj](g, "out")
	require.NoError(t, out.AddInput(0))
	gen := heartbeat.New("executor-heartbeats", time.Millisecond)
	gen.Add(out, 0, heartbeat.FromSlice(1, 2, 3))

	e := New()
	id, err := e.RegisterQuery(out)
	require.NoError(t, err)
	require.NoError(t, e.AddProcessor(id, gen))
	assert.ErrorIs(t, e.AddProcessor("nope", gen), ErrUnknownQuery)
	require.NoError(t, e.StartQuery(ctx, id))
	assert.ErrorIs(t, e.AddProcessor(id, gen), ErrAlreadyStarted)
	require.NoError(t, e.Wait(ctx))
	assert.Equal(t, []int64{1, 2, 3}, out.Heartbeats())
}
