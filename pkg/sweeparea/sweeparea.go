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

// Package sweeparea holds the currently valid elements of a stream for a
// stateful operator. Entries are matched against probes and expire once
// their interval ends at or before the operator watermark.
//
// A sweep area is owned by one operator and is not safe for concurrent use.
package sweeparea

import (
	"cmp"
	"container/heap"
	"errors"
	"fmt"
	"iter"
	"slices"
	"unsafe"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/numaproj/sweepflow/pkg/metrics"
	"github.com/numaproj/sweepflow/pkg/temporal"
)

const defaultBuckets = 64

var (
	ErrNoHash = errors.New("hash sweep area requires a hash function")

	// entryOverhead approximates the bookkeeping bytes of one entry
	entryOverhead = int64(unsafe.Sizeof(Entry[struct{}]{})) + 8
)

// Entry is one resident element. Object must not be modified while the
// entry is resident.
type Entry[T any] struct {
	Object temporal.Object[T]
	seq    uint64
	bucket int
	// position in the end heap, -1 when not in it
	index   int
	bytes   int64
	removed bool
}

// Seq is the arrival number of the entry within its area.
func (e *Entry[T]) Seq() uint64 {
	return e.seq
}

// compareEntries orders by start, then arrival.
func compareEntries[T any](a, b *Entry[T]) int {
	if c := cmp.Compare(a.Object.Interval.Start, b.Object.Interval.Start); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}

// Probe describes a lookup. Hashed restricts a hash area to the bucket of
// Hash; Match filters the candidates. A nil Match accepts everything.
type Probe[T any] struct {
	Hash   uint64
	Hashed bool
	Match  func(temporal.Object[T]) bool
}

// Scan returns a probe checking every entry with match.
func Scan[T any](match func(temporal.Object[T]) bool) Probe[T] {
	return Probe[T]{Match: match}
}

// Keyed returns a probe limited to the bucket of hash.
func Keyed[T any](hash uint64, match func(temporal.Object[T]) bool) Probe[T] {
	return Probe[T]{Hash: hash, Hashed: true, Match: match}
}

func (p Probe[T]) accepts(o temporal.Object[T]) bool {
	return p.Match == nil || p.Match(o)
}

// Area is the contract shared by sweep areas and their decorators.
type Area[T any] interface {
	// Insert adds o and returns its entry.
	Insert(o temporal.Object[T]) *Entry[T]
	// Query yields the entries accepted by p. Each call starts a new scan.
	// The area must not be modified during the scan.
	Query(p Probe[T]) iter.Seq[*Entry[T]]
	// Remove drops e, reporting whether it was resident.
	Remove(e *Entry[T]) bool
	// Expire removes every entry ending at or before t and returns them in
	// start order.
	Expire(t int64) []*Entry[T]
	// Items returns every entry in start order.
	Items() []*Entry[T]
	// MinStart returns the earliest start of a resident entry.
	MinStart() (int64, bool)
	Size() int
	Clear()
	// MemoryUsage estimates the bytes held.
	MemoryUsage() int64
}

// Config configures a sweep area.
type Config[T any] struct {
	Kind Kind
	// Buckets is the number of hash buckets.
	Buckets uint32
	// Hash hashes a stored value. Required for Hash.
	Hash func(T) uint64
	// SizeOf estimates the bytes of a value, unsafe.Sizeof by default.
	SizeOf func(T) int64
	// Name labels the size and eviction metrics; no size metric is kept
	// when empty.
	Name string
	// Budget bounds the memory estimate in bytes. Zero means unbounded.
	Budget int64
	// Eviction picks the victims once Budget is exceeded.
	Eviction EvictionPolicy
}

// NewArea builds the area described by cfg, wrapped in a Budgeted area when
// a budget is set.
func NewArea[T any](cfg Config[T]) (Area[T], error) {
	s, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Budget <= 0 {
		return s, nil
	}
	b, err := NewBudgeted[T](cfg.Name, s, cfg.Budget, cfg.Eviction)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// SweepArea is the list or hash implementation of Area.
type SweepArea[T any] struct {
	kind    Kind
	hash    func(T) uint64
	sizeOf  func(T) int64
	seq     uint64
	size    int
	bytes   int64
	gauge   prometheus.Gauge
	list    []*Entry[T]
	buckets [][]*Entry[T]
	ends    endHeap[T]
}

var _ Area[int] = (*SweepArea[int])(nil)

// New returns an empty sweep area.
func New[T any](cfg Config[T]) (*SweepArea[T], error) {
	s := &SweepArea[T]{kind: cfg.Kind, hash: cfg.Hash, sizeOf: cfg.SizeOf}
	if s.sizeOf == nil {
		var zero T
		n := int64(unsafe.Sizeof(zero))
		s.sizeOf = func(T) int64 { return n }
	}
	if cfg.Name != "" {
		s.gauge = metrics.SweepAreaSize.WithLabelValues(cfg.Name, cfg.Kind.String())
	}
	switch cfg.Kind {
	case List:
	case Hash:
		if cfg.Hash == nil {
			return nil, ErrNoHash
		}
		n := cfg.Buckets
		if n == 0 {
			n = defaultBuckets
		}
		s.buckets = make([][]*Entry[T], n)
	default:
		return nil, fmt.Errorf("unknown sweep area kind %v", cfg.Kind)
	}
	return s, nil
}

// Kind returns the indexing strategy.
func (s *SweepArea[T]) Kind() Kind {
	return s.kind
}

func (s *SweepArea[T]) Insert(o temporal.Object[T]) *Entry[T] {
	s.seq++
	e := &Entry[T]{Object: o, seq: s.seq, index: -1, bytes: entryOverhead + s.sizeOf(o.Value)}
	switch s.kind {
	case List:
		// arrivals are mostly start ordered, so this is usually an append
		i, _ := slices.BinarySearchFunc(s.list, e, compareEntries[T])
		s.list = slices.Insert(s.list, i, e)
	case Hash:
		e.bucket = int(s.hash(o.Value) % uint64(len(s.buckets)))
		s.buckets[e.bucket] = append(s.buckets[e.bucket], e)
		heap.Push(&s.ends, e)
	}
	s.size++
	s.bytes += e.bytes
	s.observe()
	return e
}

func (s *SweepArea[T]) Query(p Probe[T]) iter.Seq[*Entry[T]] {
	return func(yield func(*Entry[T]) bool) {
		switch s.kind {
		case List:
			for _, e := range s.list {
				if p.accepts(e.Object) && !yield(e) {
					return
				}
			}
		case Hash:
			if p.Hashed {
				for _, e := range s.buckets[p.Hash%uint64(len(s.buckets))] {
					if p.accepts(e.Object) && !yield(e) {
						return
					}
				}
				return
			}
			for _, b := range s.buckets {
				for _, e := range b {
					if p.accepts(e.Object) && !yield(e) {
						return
					}
				}
			}
		}
	}
}

func (s *SweepArea[T]) Remove(e *Entry[T]) bool {
	if e == nil || e.removed {
		return false
	}
	switch s.kind {
	case List:
		i, found := slices.BinarySearchFunc(s.list, e, compareEntries[T])
		if !found || s.list[i] != e {
			return false
		}
		s.list = slices.Delete(s.list, i, i+1)
	case Hash:
		b := s.buckets[e.bucket]
		i := slices.Index(b, e)
		if i < 0 {
			return false
		}
		s.buckets[e.bucket] = slices.Delete(b, i, i+1)
		if e.index >= 0 {
			heap.Remove(&s.ends, e.index)
		}
	}
	s.drop(e)
	s.observe()
	return true
}

func (s *SweepArea[T]) drop(e *Entry[T]) {
	e.removed = true
	s.size--
	s.bytes -= e.bytes
}

func (s *SweepArea[T]) Expire(t int64) []*Entry[T] {
	var removed []*Entry[T]
	switch s.kind {
	case List:
		kept := s.list[:0]
		for _, e := range s.list {
			if e.Object.Interval.End <= t {
				removed = append(removed, e)
				continue
			}
			kept = append(kept, e)
		}
		clear(s.list[len(kept):])
		s.list = kept
	case Hash:
		for s.ends.Len() > 0 && s.ends[0].Object.Interval.End <= t {
			e := heap.Pop(&s.ends).(*Entry[T])
			b := s.buckets[e.bucket]
			if i := slices.Index(b, e); i >= 0 {
				s.buckets[e.bucket] = slices.Delete(b, i, i+1)
			}
			removed = append(removed, e)
		}
		slices.SortFunc(removed, compareEntries[T])
	}
	for _, e := range removed {
		s.drop(e)
	}
	if len(removed) > 0 {
		s.observe()
	}
	return removed
}

func (s *SweepArea[T]) Items() []*Entry[T] {
	switch s.kind {
	case List:
		return slices.Clone(s.list)
	case Hash:
		out := make([]*Entry[T], 0, s.size)
		for _, b := range s.buckets {
			out = append(out, b...)
		}
		slices.SortFunc(out, compareEntries[T])
		return out
	}
	return nil
}

func (s *SweepArea[T]) MinStart() (int64, bool) {
	if s.size == 0 {
		return 0, false
	}
	switch s.kind {
	case List:
		return s.list[0].Object.Interval.Start, true
	case Hash:
		m := temporal.Infinity
		for _, b := range s.buckets {
			for _, e := range b {
				m = min(m, e.Object.Interval.Start)
			}
		}
		return m, true
	}
	return 0, false
}

func (s *SweepArea[T]) Size() int {
	return s.size
}

func (s *SweepArea[T]) Clear() {
	for _, e := range s.Items() {
		e.removed = true
	}
	s.list = nil
	for i := range s.buckets {
		s.buckets[i] = nil
	}
	s.ends = nil
	s.size = 0
	s.bytes = 0
	s.observe()
}

func (s *SweepArea[T]) MemoryUsage() int64 {
	return s.bytes
}

func (s *SweepArea[T]) observe() {
	if s.gauge != nil {
		s.gauge.Set(float64(s.size))
	}
}

// endHeap orders hash entries by interval end.
type endHeap[T any] []*Entry[T]

func (h endHeap[T]) Len() int { return len(h) }

func (h endHeap[T]) Less(i, j int) bool {
	return h[i].Object.Interval.End < h[j].Object.Interval.End
}

func (h endHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *endHeap[T]) Push(x any) {
	e := x.(*Entry[T])
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *endHeap[T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
