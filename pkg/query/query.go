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

// Package query assembles the synthetic query run by the command line: two
// keyed reading streams are windowed, joined on their key and counted per
// key group.
package query

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/numaproj/sweepflow/pkg/aggregate"
	"github.com/numaproj/sweepflow/pkg/config"
	"github.com/numaproj/sweepflow/pkg/group"
	"github.com/numaproj/sweepflow/pkg/heartbeat"
	"github.com/numaproj/sweepflow/pkg/join"
	"github.com/numaproj/sweepflow/pkg/pipes"
	"github.com/numaproj/sweepflow/pkg/processor"
	"github.com/numaproj/sweepflow/pkg/shared/expr"
	"github.com/numaproj/sweepflow/pkg/shared/logging"
	"github.com/numaproj/sweepflow/pkg/sources"
	"github.com/numaproj/sweepflow/pkg/sweeparea"
	"github.com/numaproj/sweepflow/pkg/temporal"
	"github.com/numaproj/sweepflow/pkg/window"
)

// Reading is one element of a synthetic stream.
type Reading struct {
	Key   string `json:"key"`
	Value int64  `json:"value"`
}

// Match is a joined pair of readings.
type Match struct {
	Key   string `json:"key"`
	Left  int64  `json:"left"`
	Right int64  `json:"right"`
}

// Result counts the matches of one key group.
type Result = temporal.Object[group.Entry[int64]]

type event = temporal.Event[Reading]

// Params shape the synthetic streams.
type Params struct {
	// Keys is the number of distinct reading keys.
	Keys int
	// Groups is the number of key groups counted apart.
	Groups int
	// Limit stops every stream after that many readings, 0 never stops.
	Limit int64
	// Interval is the production period of the streams.
	Interval time.Duration
	// Clock stamps the readings and the generated heartbeats.
	Clock  clock.Clock
	Logger *zap.SugaredLogger
}

func (p *Params) defaults() {
	if p.Keys <= 0 {
		p.Keys = 8
	}
	if p.Groups <= 0 {
		p.Groups = 4
	}
	if p.Interval <= 0 {
		p.Interval = 10 * time.Millisecond
	}
	if p.Clock == nil {
		p.Clock = clock.New()
	}
	if p.Logger == nil {
		p.Logger = logging.NewNopLogger()
	}
}

// Query is an assembled query. Counts is the node results are read from.
type Query struct {
	Left      *sources.Source[event]
	Right     *sources.Source[event]
	Windows   []*window.Window[Reading]
	Join      *join.Join[Reading, Reading, Match]
	Counts    *pipes.Pipe[temporal.Object[Match], Result]
	Generator *heartbeat.Generator
}

// stream stamps readings with the clock, never going back in time. The key
// of the seq-th reading is seq*stride modulo keys.
func stream(c clock.Clock, keys int, limit, stride int64) sources.Func[event] {
	last := int64(math.MinInt64)
	return func(seq int64) (event, bool) {
		if limit > 0 && seq >= limit {
			return event{}, false
		}
		last = max(last, c.Now().UnixMilli())
		return event{
			Value:     Reading{Key: fmt.Sprintf("key-%d", (seq*stride)%int64(keys)), Value: seq},
			Timestamp: last,
		}, true
	}
}

// Build registers the query in g and connects it to sink.
//
// The right stream sends no heartbeats of its own. Its progress comes from
// a heartbeat generator trailing the clock by one heartbeat period, the way
// an idle external source would be paced.
func Build(ctx context.Context, g *pipes.Graph, opts config.QueryOptions, p Params, sink pipes.Sink[Result]) (*Query, error) {
	p.defaults()
	log := p.Logger
	kind, err := opts.Kind()
	if err != nil {
		return nil, err
	}
	hash, err := opts.Hasher()
	if err != nil {
		return nil, err
	}
	pred, err := opts.Predicate()
	if err != nil {
		return nil, err
	}

	schedule := sources.WithSchedule(processor.Every(p.Interval))
	q := &Query{
		Left:  sources.New(g, "left", stream(p.Clock, p.Keys, p.Limit, 1), temporal.TimestampOf[Reading], schedule, sources.WithLogger(log)),
		Right: sources.New(g, "right", stream(p.Clock, p.Keys, p.Limit, 3), temporal.TimestampOf[Reading], schedule, sources.WithLogger(log)),
	}
	q.Right.SetHeartbeats(false)

	for _, src := range []*sources.Source[event]{q.Left, q.Right} {
		w, err := window.NewSliding[Reading](g, src.Name()+"-window", opts.WindowSize, pipes.WithLogger(log))
		if err != nil {
			return nil, err
		}
		if err := pipes.Connect[event](ctx, src, w, 0); err != nil {
			return nil, err
		}
		q.Windows = append(q.Windows, w)
	}

	jc := join.Config[Reading, Reading, Match]{
		Combine: func(l, r Reading) Match {
			return Match{Key: l.Key, Left: l.Value, Right: r.Value}
		},
		Predicate: func(l, r Reading) bool { return l.Key == r.Key },
		LeftKind:  kind,
		RightKind: kind,
		Buckets:   opts.BucketCount,
	}
	if kind == sweeparea.Hash {
		jc.LeftHash = func(r Reading) uint64 { return hash(r.Key) }
		jc.RightHash = jc.LeftHash
	}
	if pred != nil {
		// the expression refines the key match
		refine := expr.Bind[Reading, Reading](pred, log)
		jc.Predicate = func(l, r Reading) bool { return l.Key == r.Key && refine(l, r) }
	}
	q.Join, err = join.New(g, "join", jc, pipes.WithLogger(log))
	if err != nil {
		return nil, err
	}
	if err := pipes.Connect[temporal.Object[Reading]](ctx, q.Windows[0], q.Join.LeftInput(), join.Left); err != nil {
		return nil, err
	}
	if err := pipes.Connect[temporal.Object[Reading]](ctx, q.Windows[1], q.Join.RightInput(), join.Right); err != nil {
		return nil, err
	}

	byKey := group.ByKey(func(m Match) string { return m.Key }, p.Groups)
	q.Counts, err = group.NewAggregate(g, "count-by-key", p.Groups, byKey, aggregate.Count[Match](), pipes.WithLogger(log))
	if err != nil {
		return nil, err
	}
	if err := pipes.Connect[temporal.Object[Match]](ctx, q.Join, q.Counts, 0); err != nil {
		return nil, err
	}
	if err := pipes.Connect[Result](ctx, q.Counts, sink, 0); err != nil {
		return nil, err
	}

	q.Generator = heartbeat.New("right-heartbeats", opts.HeartbeatPeriod, heartbeat.WithLogger(log))
	q.Generator.Add(q.Windows[1], 0, heartbeat.SystemTime(p.Clock, opts.HeartbeatPeriod))
	log.Infow("Query built",
		zap.Int64("windowSize", opts.WindowSize),
		zap.String("implementor", kind.String()),
		zap.String("hashFn", opts.HashFn),
		zap.Int("groups", p.Groups))
	return q, nil
}
