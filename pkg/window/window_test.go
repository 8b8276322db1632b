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

package window

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/sweepflow/pkg/pipes"
	"github.com/numaproj/sweepflow/pkg/sinks"
	"github.com/numaproj/sweepflow/pkg/temporal"
)

func setup(t *testing.T, cfg Config) (*Window[string], *sinks.Collector[temporal.Object[string]]) {
	t.Helper()
	g := pipes.NewGraph()
	w, err := New[string](g, "window", cfg)
	require.NoError(t, err)
	require.NoError(t, w.AddInput(0))
	out := sinks.NewCollector[temporal.Object[string]](g, "out")
	require.NoError(t, pipes.Connect[temporal.Object[string]](context.Background(), w, out, 0))
	return w, out
}

func TestSliding_SizeChange(t *testing.T) {
	ctx := context.Background()
	w, out := setup(t, Config{Size: 100})

	require.NoError(t, w.Process(ctx, temporal.NewEvent("x", 0), 0))
	require.NoError(t, w.ChangeSize(200, 50))
	assert.Equal(t, 1, w.PendingChanges())
	require.NoError(t, w.Process(ctx, temporal.NewEvent("y", 150), 0))
	assert.Equal(t, int64(100), w.Size())
	require.NoError(t, w.Process(ctx, temporal.NewEvent("x", 250), 0))
	assert.Equal(t, int64(50), w.Size())
	assert.Equal(t, 0, w.PendingChanges())
	require.NoError(t, w.Process(ctx, temporal.NewEvent("z", 400), 0))
	require.NoError(t, w.Done(ctx, 0))

	assert.Equal(t, []temporal.Object[string]{
		temporal.MustObject("x", 0, 100),
		temporal.MustObject("y", 150, 250),
		temporal.MustObject("x", 250, 300),
		temporal.MustObject("z", 400, 450),
	}, out.Items())
	assert.Equal(t, 1, out.Dones())
}

func TestSliding_ChangesAppliedInOrder(t *testing.T) {
	ctx := context.Background()
	w, out := setup(t, Config{Size: 10})
	require.NoError(t, w.ChangeSize(5, 20))
	require.NoError(t, w.ChangeSize(8, 30))
	// both are due; the later one wins
	require.NoError(t, w.Process(ctx, temporal.NewEvent("a", 9), 0))
	assert.Equal(t, temporal.MustObject("a", 9, 39), out.Items()[0])
}

func TestChangeSize_Errors(t *testing.T) {
	ctx := context.Background()
	w, _ := setup(t, Config{Size: 10})
	assert.ErrorIs(t, w.ChangeSize(100, 0), ErrInvalidSize)

	require.NoError(t, w.Process(ctx, temporal.NewEvent("a", 50), 0))
	assert.ErrorIs(t, w.ChangeSize(50, 5), ErrPastChange)
	assert.ErrorIs(t, w.ChangeSize(10, 5), ErrPastChange)
	require.NoError(t, w.ChangeSize(70, 5))
	assert.ErrorIs(t, w.ChangeSize(60, 5), ErrPastChange)
	assert.ErrorIs(t, w.ChangeSize(70, 6), ErrPastChange)
}

func TestNew_Errors(t *testing.T) {
	g := pipes.NewGraph()
	_, err := New[int](g, "bad", Config{Size: 0})
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, err = New[int](g, "bad", Config{Size: 1, Strategy: Strategy(4)})
	assert.Error(t, err)
	assert.Equal(t, "fixed", Fixed.String())
}

func TestFixed(t *testing.T) {
	ctx := context.Background()
	w, out := setup(t, Config{Strategy: Fixed, Size: 10})
	for _, ts := range []int64{0, 3, 10, 19, 25} {
		require.NoError(t, w.Process(ctx, temporal.NewEvent("e", ts), 0))
	}
	require.NoError(t, w.ChangeSize(33, 100))
	require.NoError(t, w.Process(ctx, temporal.NewEvent("e", 27), 0))
	require.NoError(t, w.Process(ctx, temporal.NewEvent("e", 40), 0))
	require.NoError(t, w.Process(ctx, temporal.NewEvent("e", 140), 0))

	var got []temporal.Interval
	for _, o := range out.Items() {
		got = append(got, o.Interval)
	}
	assert.Equal(t, []temporal.Interval{
		{Start: 0, End: 10},
		{Start: 0, End: 10},
		{Start: 10, End: 20},
		{Start: 10, End: 20},
		{Start: 20, End: 30},
		{Start: 20, End: 30},
		{Start: 33, End: 133},
		{Start: 133, End: 233},
	}, got)
}

func TestFixed_NegativeTimestamps(t *testing.T) {
	ctx := context.Background()
	w, out := setup(t, Config{Strategy: Fixed, Size: 10, Offset: 5})
	require.NoError(t, w.Process(ctx, temporal.NewEvent("e", -7), 0))
	require.NoError(t, w.Process(ctx, temporal.NewEvent("e", 5), 0))
	assert.Equal(t, temporal.MustInterval(-15, -5), out.Items()[0].Interval)
	assert.Equal(t, temporal.MustInterval(5, 15), out.Items()[1].Interval)
}

func TestFixed_Heartbeat(t *testing.T) {
	ctx := context.Background()
	w, out := setup(t, Config{Strategy: Fixed, Size: 10})
	require.NoError(t, w.Process(ctx, temporal.NewEvent("e", 12), 0))
	require.NoError(t, w.Heartbeat(ctx, 17, 0))
	require.NoError(t, w.Heartbeat(ctx, 24, 0))
	// the period containing the watermark may still receive events
	assert.Equal(t, []int64{10, 20}, out.Heartbeats())

	s, sout := setup(t, Config{Size: 10})
	require.NoError(t, s.Heartbeat(ctx, 17, 0))
	assert.Equal(t, []int64{17}, sout.Heartbeats())
}
