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

package aggregate

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/sweepflow/pkg/pipes"
	"github.com/numaproj/sweepflow/pkg/sinks"
	"github.com/numaproj/sweepflow/pkg/temporal"
)

func TestState_Count(t *testing.T) {
	s := NewState(Count[string]())
	s.Add(temporal.MustObject("a", 0, 10))
	s.Add(temporal.MustObject("b", 5, 15))
	s.Add(temporal.MustObject("c", 5, 8))
	s.Add(temporal.MustObject("d", 20, 30))

	var got []temporal.Object[int64]
	emit := func(o temporal.Object[int64]) error {
		got = append(got, o)
		return nil
	}
	require.NoError(t, s.Release(8, emit))
	assert.Equal(t, []temporal.Object[int64]{
		temporal.MustObject(int64(1), 0, 5),
		temporal.MustObject(int64(3), 5, 8),
	}, got)
	start, ok := s.MinStart()
	assert.True(t, ok)
	assert.Equal(t, int64(8), start)
	assert.Positive(t, s.MemoryUsage())

	require.NoError(t, s.Flush(emit))
	assert.Equal(t, []temporal.Object[int64]{
		temporal.MustObject(int64(1), 0, 5),
		temporal.MustObject(int64(3), 5, 8),
		temporal.MustObject(int64(2), 8, 10),
		temporal.MustObject(int64(1), 10, 15),
		temporal.MustObject(int64(1), 20, 30),
	}, got)
	assert.Equal(t, 0, s.Len())
	_, ok = s.MinStart()
	assert.False(t, ok)
}

func TestHelpers(t *testing.T) {
	sum := Sum[int]()
	assert.Equal(t, 3, sum(nil, 3))
	acc := 3
	assert.Equal(t, 7, sum(&acc, 4))
	lo, hi := Min[string](), Max[string]()
	a := "b"
	assert.Equal(t, "a", lo(&a, "a"))
	assert.Equal(t, "b", hi(&a, "a"))
	assert.Equal(t, "z", hi(nil, "z"))
}

// At every instant the aggregate of the segment containing it equals the sum
// of the objects valid at that instant.
func TestAggregate_MatchesSnapshots(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(3))
	var input []temporal.Object[int]
	var ts int64
	for i := 0; i < 200; i++ {
		ts += r.Int63n(4)
		input = append(input, temporal.MustObject(r.Intn(10), ts, ts+1+r.Int63n(20)))
	}

	g := pipes.NewGraph()
	p, err := New[int, int](g, "sum", Sum[int]())
	require.NoError(t, err)
	require.NoError(t, p.AddInput(0))
	out := sinks.NewCollector[temporal.Object[int]](g, "out")
	require.NoError(t, pipes.Connect[temporal.Object[int]](ctx, p, out, 0))
	for i, o := range input {
		require.NoError(t, p.Process(ctx, o, 0))
		if i%10 == 0 {
			require.NoError(t, p.Heartbeat(ctx, o.Start(), 0))
		}
	}
	require.NoError(t, p.Done(ctx, 0))

	got := out.Items()
	for i := 1; i < len(got); i++ {
		require.LessOrEqual(t, got[i-1].End(), got[i].Start(), "segments overlap")
	}
	covered := 0
	for _, seg := range got {
		for instant := range seg.Interval.Snapshots(1) {
			want, valid := 0, 0
			for _, o := range input {
				if o.Interval.Contains(instant) {
					want += o.Value
					valid++
				}
			}
			require.Positive(t, valid, "segment without input at %d", instant)
			require.Equal(t, want, seg.Value, "sum at %d", instant)
			covered++
		}
	}
	// every instant of the input is covered by exactly one segment
	total := 0
	for instant := input[0].Start(); instant < ts+25; instant++ {
		for _, o := range input {
			if o.Interval.Contains(instant) {
				total++
				break
			}
		}
	}
	assert.Equal(t, total, covered)
}

func TestAggregate_ReleaseOnHeartbeat(t *testing.T) {
	ctx := context.Background()
	g := pipes.NewGraph()
	p, err := New[int, int64](g, "count", Count[int]())
	require.NoError(t, err)
	require.NoError(t, p.AddInput(0))
	out := sinks.NewCollector[temporal.Object[int64]](g, "out")
	require.NoError(t, pipes.Connect[temporal.Object[int64]](ctx, p, out, 0))

	require.NoError(t, p.Process(ctx, temporal.MustObject(1, 0, 10), 0))
	require.NoError(t, p.Process(ctx, temporal.MustObject(2, 4, 6), 0))
	require.NoError(t, p.Heartbeat(ctx, 7, 0))
	assert.Equal(t, []temporal.Object[int64]{
		temporal.MustObject(int64(1), 0, 4),
		temporal.MustObject(int64(2), 4, 6),
	}, out.Items())
	// the open segment [6, 10) holds the heartbeat back
	assert.Equal(t, []int64{6}, out.Heartbeats())
	assert.Positive(t, p.MemoryUsage())

	require.NoError(t, p.Done(ctx, 0))
	assert.Len(t, out.Items(), 3)
	assert.Equal(t, 1, out.Dones())
}
