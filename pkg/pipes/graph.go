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
	"slices"
	"sync"

	"go.uber.org/multierr"
)

// NodeID addresses a node in its Graph. IDs are dense and never reused.
type NodeID int

// Edge is a subscription: From pushes into To under SourceID.
type Edge struct {
	From     NodeID
	To       NodeID
	SourceID int
}

// Opener is implemented by nodes with work to do before data flows.
type Opener interface {
	Open(ctx context.Context) error
}

// Closer is implemented by nodes that can be forced to terminate. Closing a
// node must make its downstream observe done.
type Closer interface {
	Close(ctx context.Context) error
}

// HeartbeatSwitch is implemented by nodes that forward heartbeats.
type HeartbeatSwitch interface {
	SetHeartbeats(on bool)
}

type vertex struct {
	name   string
	node   any
	opened bool
	closed bool
}

// Graph is the arena holding every node of a dataflow and the subscriptions
// between them. Nodes refer to each other only through NodeIDs, so walking
// upstream never needs back pointers.
type Graph struct {
	lock     sync.RWMutex
	vertices []*vertex
	edges    []Edge
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{}
}

func (g *Graph) add(name string, node any) NodeID {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.vertices = append(g.vertices, &vertex{name: name, node: node})
	return NodeID(len(g.vertices) - 1)
}

func (g *Graph) addEdge(e Edge) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.edges = append(g.edges, e)
}

func (g *Graph) removeEdge(e Edge) {
	g.lock.Lock()
	defer g.lock.Unlock()
	if i := slices.Index(g.edges, e); i >= 0 {
		g.edges = slices.Delete(g.edges, i, i+1)
	}
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return len(g.vertices)
}

// Node returns the node registered under id.
func (g *Graph) Node(id NodeID) any {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return g.vertices[id].node
}

// Name returns the name of the node registered under id.
func (g *Graph) Name(id NodeID) string {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return g.vertices[id].name
}

// Edges returns a copy of every subscription.
func (g *Graph) Edges() []Edge {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return slices.Clone(g.edges)
}

// Upstream returns the subscriptions feeding id.
func (g *Graph) Upstream(id NodeID) []Edge {
	g.lock.RLock()
	defer g.lock.RUnlock()
	var out []Edge
	for _, e := range g.edges {
		if e.To == id {
			out = append(out, e)
		}
	}
	return out
}

// Downstream returns the subscriptions fed by id.
func (g *Graph) Downstream(id NodeID) []Edge {
	g.lock.RLock()
	defer g.lock.RUnlock()
	var out []Edge
	for _, e := range g.edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}

// Ancestors returns every node root transitively depends on, sources first,
// each once. root itself is not included.
func (g *Graph) Ancestors(root NodeID) []NodeID {
	g.lock.RLock()
	defer g.lock.RUnlock()
	visited := make(map[NodeID]bool)
	var order []NodeID
	var visit func(id NodeID)
	visit = func(id NodeID) {
		for _, e := range g.edges {
			if e.To != id || visited[e.From] {
				continue
			}
			visited[e.From] = true
			visit(e.From)
			order = append(order, e.From)
		}
	}
	visit(root)
	return order
}

// OpenAllSources opens every node upstream of root, depth first with
// sources before their consumers. Nodes already opened are skipped.
func (g *Graph) OpenAllSources(ctx context.Context, root NodeID) error {
	for _, id := range g.Ancestors(root) {
		v := g.claim(id, func(v *vertex) bool {
			if v.opened {
				return false
			}
			v.opened = true
			return true
		})
		if v == nil {
			continue
		}
		if o, ok := v.node.(Opener); ok {
			if err := o.Open(ctx); err != nil {
				return fmt.Errorf("failed to open %s: %w", v.name, err)
			}
		}
	}
	return nil
}

// CloseAllSources closes every node upstream of root, sources first so that
// done flows down through the consumers. Nodes already closed are skipped.
// Errors of individual nodes are combined.
func (g *Graph) CloseAllSources(ctx context.Context, root NodeID) error {
	var errs error
	for _, id := range g.Ancestors(root) {
		v := g.claim(id, func(v *vertex) bool {
			if v.closed {
				return false
			}
			v.closed = true
			return true
		})
		if v == nil {
			continue
		}
		if c, ok := v.node.(Closer); ok {
			if err := c.Close(ctx); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("failed to close %s: %w", v.name, err))
			}
		}
	}
	return errs
}

// SetHeartbeats switches heartbeat forwarding on every node of the query
// rooted at root, root included.
func (g *Graph) SetHeartbeats(root NodeID, on bool) {
	ids := append(g.Ancestors(root), root)
	for _, id := range ids {
		if s, ok := g.Node(id).(HeartbeatSwitch); ok {
			s.SetHeartbeats(on)
		}
	}
}

// claim runs f on the vertex under the write lock and returns the vertex
// when f reports true.
func (g *Graph) claim(id NodeID, f func(v *vertex) bool) *vertex {
	g.lock.Lock()
	defer g.lock.Unlock()
	v := g.vertices[id]
	if !f(v) {
		return nil
	}
	return v
}

// Vertex identifies a node in its graph. Embed it to implement Node.
type Vertex struct {
	graph *Graph
	id    NodeID
	name  string
}

// NewVertex registers node in g under name.
func NewVertex(g *Graph, name string, node any) Vertex {
	return Vertex{graph: g, id: g.add(name, node), name: name}
}

func (v Vertex) ID() NodeID {
	return v.id
}

func (v Vertex) Name() string {
	return v.name
}

func (v Vertex) Graph() *Graph {
	return v.graph
}
