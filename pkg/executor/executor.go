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

// Package executor drives the lifecycle of continuous queries.
//
// A query is identified by its root sink. Starting a query opens every node
// upstream of the root and starts every processor found there, each once even
// when queries share nodes. Stopping a query closes its sources, which makes
// done flow down to the root, and stops its processors.
package executor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/numaproj/sweepflow/pkg/pipes"
	"github.com/numaproj/sweepflow/pkg/processor"
	"github.com/numaproj/sweepflow/pkg/shared/logging"
)

var (
	// ErrAlreadyStarted is returned when a query is started twice.
	ErrAlreadyStarted = errors.New("query already started")
	// ErrQueryDone is returned when the root of a query already finished.
	ErrQueryDone = errors.New("query already done")
	// ErrUnknownQuery is returned for an id that was never registered.
	ErrUnknownQuery = errors.New("unknown query")
	// ErrDuplicateQuery is returned when a root is registered twice.
	ErrDuplicateQuery = errors.New("query root already registered")
)

type query struct {
	id      string
	root    pipes.Node
	extra   []processor.Runnable
	procs   []*processor.Processor
	started bool
	stopped bool
}

// Executor holds the registered queries.
type Executor struct {
	log *zap.SugaredLogger

	lock    sync.Mutex
	queries map[string]*query
	order   []string
}

type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Executor) {
		e.log = l
	}
}

// New returns an executor without queries.
func New(opts ...Option) *Executor {
	e := &Executor{queries: make(map[string]*query)}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logging.NewNopLogger()
	}
	return e
}

// RegisterQuery attaches root as the root of a new query and returns the
// query id.
func (e *Executor) RegisterQuery(root pipes.Node) (string, error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	for _, q := range e.queries {
		if q.root.Graph() == root.Graph() && q.root.ID() == root.ID() {
			return "", fmt.Errorf("%w: %s", ErrDuplicateQuery, root.Name())
		}
	}
	id := uuid.NewString()
	e.queries[id] = &query{id: id, root: root}
	e.order = append(e.order, id)
	e.log.Infow("Registered query", zap.String("query", id), zap.String("root", root.Name()))
	return id, nil
}

// AddProcessor attaches processors that are not part of the graph, such as
// a heartbeat generator, to a query. They start and stop with the query.
func (e *Executor) AddProcessor(id string, r processor.Runnable) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	q, ok := e.queries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuery, id)
	}
	if q.started {
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, id)
	}
	q.extra = append(q.extra, r)
	return nil
}

// Queries returns the ids of every registered query in registration order.
func (e *Executor) Queries() []string {
	e.lock.Lock()
	defer e.lock.Unlock()
	return slices.Clone(e.order)
}

// StartQuery opens the sources of a query and starts its processors. The
// processors run until they finish, the query is stopped or ctx is done.
func (e *Executor) StartQuery(ctx context.Context, id string) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	q, ok := e.queries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuery, id)
	}
	return e.start(ctx, q)
}

// StartAllQueries starts every query not started yet.
func (e *Executor) StartAllQueries(ctx context.Context) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	var errs error
	for _, id := range e.order {
		q := e.queries[id]
		if q.started {
			continue
		}
		errs = multierr.Append(errs, e.start(ctx, q))
	}
	return errs
}

func (e *Executor) start(ctx context.Context, q *query) error {
	if q.started {
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, q.id)
	}
	if isDone(q.root) {
		return fmt.Errorf("%w: %s", ErrQueryDone, q.id)
	}
	q.started = true
	g := q.root.Graph()
	if err := g.OpenAllSources(ctx, q.root.ID()); err != nil {
		return fmt.Errorf("query %s: %w", q.id, err)
	}
	runnables := q.extra
	for _, id := range append(g.Ancestors(q.root.ID()), q.root.ID()) {
		if r, ok := g.Node(id).(processor.Runnable); ok {
			runnables = append(runnables, r)
		}
	}
	for _, r := range runnables {
		for _, p := range r.Processors() {
			if slices.Contains(q.procs, p) {
				continue
			}
			q.procs = append(q.procs, p)
			if p.Started() {
				// shared with a query started before
				continue
			}
			if err := p.Start(ctx); err != nil {
				return fmt.Errorf("query %s: %w", q.id, err)
			}
		}
	}
	e.log.Infow("Started query", zap.String("query", q.id), zap.Int("processors", len(q.procs)))
	return nil
}

// StopQuery closes every source of a query and stops its processors.
func (e *Executor) StopQuery(ctx context.Context, id string) error {
	e.lock.Lock()
	q, ok := e.queries[id]
	if !ok {
		e.lock.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownQuery, id)
	}
	if q.stopped {
		e.lock.Unlock()
		return nil
	}
	q.stopped = true
	procs := slices.Clone(q.procs)
	e.lock.Unlock()

	for _, p := range procs {
		p.Stop()
	}
	err := q.root.Graph().CloseAllSources(ctx, q.root.ID())
	e.log.Infow("Stopped query", zap.String("query", id))
	return err
}

// StopAllQueries stops every registered query.
func (e *Executor) StopAllQueries(ctx context.Context) error {
	var errs error
	for _, id := range e.Queries() {
		errs = multierr.Append(errs, e.StopQuery(ctx, id))
	}
	return errs
}

// Wait blocks until every started processor terminated and returns the
// first processor error.
func (e *Executor) Wait(ctx context.Context) error {
	e.lock.Lock()
	var procs []*processor.Processor
	for _, id := range e.order {
		for _, p := range e.queries[id].procs {
			if !slices.Contains(procs, p) {
				procs = append(procs, p)
			}
		}
	}
	e.lock.Unlock()

	var eg errgroup.Group
	for _, p := range procs {
		eg.Go(func() error {
			return p.Wait(ctx)
		})
	}
	return eg.Wait()
}

// isDone reports whether a root node already finished.
func isDone(n pipes.Node) bool {
	switch d := n.(type) {
	case interface{ IsDone() bool }:
		return d.IsDone()
	case interface{ Finished() <-chan struct{} }:
		select {
		case <-d.Finished():
			return true
		default:
		}
	}
	return false
}
