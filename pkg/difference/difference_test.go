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

package difference

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/sweepflow/pkg/pipes"
	"github.com/numaproj/sweepflow/pkg/sinks"
	"github.com/numaproj/sweepflow/pkg/sweeparea"
	"github.com/numaproj/sweepflow/pkg/temporal"
)

type obj = temporal.Object[string]

func kinds() map[string]Config[string] {
	return map[string]Config[string]{
		"list": {Kind: sweeparea.List},
		"hash": {Kind: sweeparea.Hash, Hash: sweeparea.HashString, Buckets: 4},
	}
}

func build(t *testing.T, cfg Config[string]) (*Difference[string], *sinks.Collector[obj]) {
	t.Helper()
	g := pipes.NewGraph()
	d, err := New(g, "difference-"+cfg.Kind.String(), cfg)
	require.NoError(t, err)
	out := sinks.NewCollector[obj](g, "out")
	require.NoError(t, pipes.Connect[obj](context.Background(), d, out, 0))
	return d, out
}

func TestDifference_Split(t *testing.T) {
	ctx := context.Background()
	for name, cfg := range kinds() {
		t.Run(name, func(t *testing.T) {
			d, out := build(t, cfg)
			require.NoError(t, d.Process(ctx, temporal.MustObject("x", 0, 10), Minuend))
			require.NoError(t, d.Process(ctx, temporal.MustObject("x", 3, 5), Subtrahend))
			require.NoError(t, d.Process(ctx, temporal.MustObject("y", 4, 6), Subtrahend))
			assert.Empty(t, out.Items())
			assert.Equal(t, 2, d.Pending())

			require.NoError(t, d.Heartbeat(ctx, 20, Minuend))
			assert.Equal(t, []obj{temporal.MustObject("x", 0, 3)}, out.Items())
			assert.Equal(t, []int64{4}, out.Heartbeats())

			// without a subtrahend nothing can cut the rest anymore
			require.NoError(t, d.Done(ctx, Subtrahend))
			assert.Equal(t, []obj{
				temporal.MustObject("x", 0, 3),
				temporal.MustObject("x", 5, 10),
			}, out.Items())
			assert.Equal(t, []int64{4, 20}, out.Heartbeats())
			assert.Zero(t, d.Pending())

			require.NoError(t, d.Done(ctx, Minuend))
			assert.Equal(t, 1, out.Dones())
		})
	}
}

func TestDifference_SubtrahendFirst(t *testing.T) {
	ctx := context.Background()
	d, out := build(t, Config[string]{Kind: sweeparea.List})
	require.NoError(t, d.Process(ctx, temporal.MustObject("x", 0, 4), Subtrahend))
	require.NoError(t, d.Process(ctx, temporal.MustObject("x", 2, 8), Minuend))
	require.NoError(t, d.Process(ctx, temporal.MustObject("x", 2, 3), Minuend))
	require.NoError(t, d.Done(ctx, Minuend))
	require.NoError(t, d.Done(ctx, Subtrahend))
	assert.Equal(t, []obj{temporal.MustObject("x", 4, 8)}, out.Items())
}

// At every instant, a value is valid in the output exactly when it is valid
// in the minuend and not in the subtrahend.
func TestDifference_Snapshots(t *testing.T) {
	ctx := context.Background()
	values := []string{"a", "b"}
	for name, cfg := range kinds() {
		t.Run(name, func(t *testing.T) {
			d, out := build(t, cfg)
			r := rand.New(rand.NewSource(5))
			var inputs [2][]obj
			var next [2]int64
			for i := 0; i < 300; i++ {
				side := r.Intn(2)
				next[side] += r.Int63n(4)
				o := temporal.MustObject(values[r.Intn(len(values))], next[side], next[side]+1+r.Int63n(12))
				inputs[side] = append(inputs[side], o)
				require.NoError(t, d.Process(ctx, o, side))
				if r.Intn(8) == 0 {
					require.NoError(t, d.Heartbeat(ctx, next[side], side))
				}
			}
			require.NoError(t, d.Done(ctx, Minuend))
			require.NoError(t, d.Done(ctx, Subtrahend))

			got := out.Items()
			for i := 1; i < len(got); i++ {
				require.LessOrEqual(t, got[i-1].Start(), got[i].Start())
			}
			valid := func(os []obj, v string, instant int64) int {
				n := 0
				for _, o := range os {
					if o.Value == v && o.Interval.Contains(instant) {
						n++
					}
				}
				return n
			}
			horizon := max(next[0], next[1]) + 14
			for instant := int64(0); instant < horizon; instant++ {
				for _, v := range values {
					want := 0
					if valid(inputs[Subtrahend], v, instant) == 0 {
						want = valid(inputs[Minuend], v, instant)
					}
					require.Equal(t, want, valid(got, v, instant), "%s at %d", v, instant)
				}
			}
		})
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New(pipes.NewGraph(), "d", Config[string]{Kind: sweeparea.Hash})
	assert.ErrorIs(t, err, sweeparea.ErrNoHash)
}
