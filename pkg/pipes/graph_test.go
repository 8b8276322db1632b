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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lifecycleNode struct {
	Vertex
	log     *[]string
	openErr error
}

func (n *lifecycleNode) Open(context.Context) error {
	*n.log = append(*n.log, "open "+n.Name())
	return n.openErr
}

func (n *lifecycleNode) Close(context.Context) error {
	*n.log = append(*n.log, "close "+n.Name())
	return nil
}

func TestGraph_Ancestors(t *testing.T) {
	g := NewGraph()
	var log []string
	a := &lifecycleNode{log: &log}
	a.Vertex = NewVertex(g, "a", a)
	b := &lifecycleNode{log: &log}
	b.Vertex = NewVertex(g, "b", b)
	p := &lifecycleNode{log: &log}
	p.Vertex = NewVertex(g, "p", p)
	root := &lifecycleNode{log: &log}
	root.Vertex = NewVertex(g, "root", root)

	// a -> p, b -> p, p -> root, a -> root
	g.addEdge(Edge{From: a.ID(), To: p.ID()})
	g.addEdge(Edge{From: b.ID(), To: p.ID(), SourceID: 1})
	g.addEdge(Edge{From: p.ID(), To: root.ID()})
	g.addEdge(Edge{From: a.ID(), To: root.ID(), SourceID: 1})

	assert.Equal(t, []NodeID{a.ID(), b.ID(), p.ID()}, g.Ancestors(root.ID()))
	assert.Len(t, g.Upstream(root.ID()), 2)
	assert.Len(t, g.Downstream(a.ID()), 2)
	assert.Equal(t, 4, g.Len())
	assert.Equal(t, "p", g.Name(p.ID()))
	assert.Same(t, p, g.Node(p.ID()))

	ctx := context.Background()
	require.NoError(t, g.OpenAllSources(ctx, root.ID()))
	require.NoError(t, g.OpenAllSources(ctx, root.ID()))
	require.NoError(t, g.CloseAllSources(ctx, root.ID()))
	require.NoError(t, g.CloseAllSources(ctx, p.ID()))
	assert.Equal(t, []string{"open a", "open b", "open p", "close a", "close b", "close p"}, log)
}

func TestGraph_OpenError(t *testing.T) {
	g := NewGraph()
	var log []string
	boom := errors.New("boom")
	a := &lifecycleNode{log: &log, openErr: boom}
	a.Vertex = NewVertex(g, "a", a)
	root := &lifecycleNode{log: &log}
	root.Vertex = NewVertex(g, "root", root)
	g.addEdge(Edge{From: a.ID(), To: root.ID()})
	err := g.OpenAllSources(context.Background(), root.ID())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to open a")
}

func TestGraph_CloseFlowsDone(t *testing.T) {
	ctx := context.Background()
	g := NewGraph()
	src := entry(t, g, "src", 1)
	mid := entry(t, g, "mid", 0)
	sink := newRecorder[int](g, "sink")
	require.NoError(t, Connect[int](ctx, src, mid, 0))
	require.NoError(t, Connect[int](ctx, mid, sink, 0))

	require.NoError(t, src.Process(ctx, 1, 0))
	require.NoError(t, g.CloseAllSources(ctx, sink.ID()))
	elements, _, dones := sink.snapshot()
	assert.Equal(t, []int{1}, elements)
	assert.Equal(t, 1, dones)
	assert.True(t, mid.IsDone())
}

func TestGraph_SetHeartbeats(t *testing.T) {
	ctx := context.Background()
	g := NewGraph()
	src := entry(t, g, "src", 1)
	mid := entry(t, g, "mid", 0)
	require.NoError(t, Connect[int](ctx, src, mid, 0))
	g.SetHeartbeats(mid.ID(), false)
	assert.False(t, src.HeartbeatsEnabled())
	assert.False(t, mid.HeartbeatsEnabled())
	g.SetHeartbeats(mid.ID(), true)
	assert.True(t, src.HeartbeatsEnabled())
	assert.True(t, mid.HeartbeatsEnabled())
}
