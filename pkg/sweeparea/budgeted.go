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

package sweeparea

import (
	"fmt"
	"iter"
	"math"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/numaproj/sweepflow/pkg/metrics"
	"github.com/numaproj/sweepflow/pkg/temporal"
)

// EvictionPolicy picks the entry dropped when a budgeted area is over budget.
type EvictionPolicy int

const (
	// EvictEarliestEnd drops the entry that would expire first.
	EvictEarliestEnd EvictionPolicy = iota
	// EvictLeastRecentlyUsed drops the entry inserted or matched longest ago.
	EvictLeastRecentlyUsed
)

func (p EvictionPolicy) String() string {
	switch p {
	case EvictEarliestEnd:
		return "earliest_end"
	case EvictLeastRecentlyUsed:
		return "lru"
	}
	return fmt.Sprintf("EvictionPolicy(%d)", int(p))
}

// Budgeted bounds the memory of an area by evicting entries once the
// estimate exceeds the budget. Evicted entries are lost, so results become
// approximate; evictions are counted instead of reported as errors.
type Budgeted[T any] struct {
	inner     Area[T]
	budget    int64
	policy    EvictionPolicy
	recent    *simplelru.LRU[*Entry[T], struct{}]
	evictions int
	counter   prometheus.Counter
	onEvict   func(*Entry[T])
}

var _ Area[int] = (*Budgeted[int])(nil)

// BudgetOption configures a Budgeted area.
type BudgetOption[T any] func(*Budgeted[T])

// OnEvict registers a callback invoked for every evicted entry.
func OnEvict[T any](f func(*Entry[T])) BudgetOption[T] {
	return func(b *Budgeted[T]) {
		b.onEvict = f
	}
}

// NewBudgeted wraps inner with a budget in bytes. name labels the eviction
// counter.
func NewBudgeted[T any](name string, inner Area[T], budget int64, policy EvictionPolicy, opts ...BudgetOption[T]) (*Budgeted[T], error) {
	if budget <= 0 {
		return nil, fmt.Errorf("memory budget must be positive, got %d", budget)
	}
	b := &Budgeted[T]{
		inner:   inner,
		budget:  budget,
		policy:  policy,
		counter: metrics.SweepAreaEvictions.WithLabelValues(name, policy.String()),
	}
	switch policy {
	case EvictEarliestEnd:
	case EvictLeastRecentlyUsed:
		l, err := simplelru.NewLRU[*Entry[T], struct{}](math.MaxInt32, nil)
		if err != nil {
			return nil, err
		}
		b.recent = l
	default:
		return nil, fmt.Errorf("unknown eviction policy %v", policy)
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Evictions returns the number of entries evicted so far.
func (b *Budgeted[T]) Evictions() int {
	return b.evictions
}

func (b *Budgeted[T]) Insert(o temporal.Object[T]) *Entry[T] {
	e := b.inner.Insert(o)
	if b.recent != nil {
		b.recent.Add(e, struct{}{})
	}
	for b.inner.MemoryUsage() > b.budget && b.inner.Size() > 0 {
		b.evict()
	}
	return e
}

func (b *Budgeted[T]) evict() {
	var victim *Entry[T]
	switch b.policy {
	case EvictEarliestEnd:
		for _, e := range b.inner.Items() {
			if victim == nil || e.Object.Interval.End < victim.Object.Interval.End {
				victim = e
			}
		}
	case EvictLeastRecentlyUsed:
		victim, _, _ = b.recent.RemoveOldest()
	}
	if victim == nil || !b.inner.Remove(victim) {
		return
	}
	b.evictions++
	b.counter.Inc()
	if b.onEvict != nil {
		b.onEvict(victim)
	}
}

func (b *Budgeted[T]) Query(p Probe[T]) iter.Seq[*Entry[T]] {
	if b.recent == nil {
		return b.inner.Query(p)
	}
	return func(yield func(*Entry[T]) bool) {
		for e := range b.inner.Query(p) {
			// touching only reorders the recency list, the area is unchanged
			b.recent.Get(e)
			if !yield(e) {
				return
			}
		}
	}
}

func (b *Budgeted[T]) Remove(e *Entry[T]) bool {
	if b.recent != nil {
		b.recent.Remove(e)
	}
	return b.inner.Remove(e)
}

func (b *Budgeted[T]) Expire(t int64) []*Entry[T] {
	removed := b.inner.Expire(t)
	if b.recent != nil {
		for _, e := range removed {
			b.recent.Remove(e)
		}
	}
	return removed
}

func (b *Budgeted[T]) Items() []*Entry[T] {
	return b.inner.Items()
}

func (b *Budgeted[T]) MinStart() (int64, bool) {
	return b.inner.MinStart()
}

func (b *Budgeted[T]) Size() int {
	return b.inner.Size()
}

func (b *Budgeted[T]) Clear() {
	if b.recent != nil {
		b.recent.Purge()
	}
	b.inner.Clear()
}

func (b *Budgeted[T]) MemoryUsage() int64 {
	return b.inner.MemoryUsage()
}
