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

package temporal

import (
	"container/heap"
)

// Queue buffers objects until they may be released in start order. Objects
// with equal starts come out in the order they were pushed.
type Queue[T any] struct {
	h   queueHeap[T]
	seq uint64
}

type queued[T any] struct {
	obj Object[T]
	seq uint64
}

// Push adds o.
func (q *Queue[T]) Push(o Object[T]) {
	q.seq++
	heap.Push(&q.h, queued[T]{obj: o, seq: q.seq})
}

// Len returns the number of buffered objects.
func (q *Queue[T]) Len() int {
	return len(q.h)
}

// MinStart returns the smallest buffered start.
func (q *Queue[T]) MinStart() (int64, bool) {
	if len(q.h) == 0 {
		return 0, false
	}
	return q.h[0].obj.Interval.Start, true
}

// Pop removes the object with the smallest start.
func (q *Queue[T]) Pop() (Object[T], bool) {
	if len(q.h) == 0 {
		return Object[T]{}, false
	}
	return heap.Pop(&q.h).(queued[T]).obj, true
}

// Release pops every object starting at or before t into f, in order. It
// stops at the first error of f.
func (q *Queue[T]) Release(t int64, f func(Object[T]) error) error {
	for len(q.h) > 0 && q.h[0].obj.Interval.Start <= t {
		o, _ := q.Pop()
		if err := f(o); err != nil {
			return err
		}
	}
	return nil
}

// Flush pops everything into f, in order.
func (q *Queue[T]) Flush(f func(Object[T]) error) error {
	return q.Release(Infinity, f)
}

type queueHeap[T any] []queued[T]

func (h queueHeap[T]) Len() int { return len(h) }

func (h queueHeap[T]) Less(i, j int) bool {
	if h[i].obj.Interval.Start != h[j].obj.Interval.Start {
		return h[i].obj.Interval.Start < h[j].obj.Interval.Start
	}
	return h[i].seq < h[j].seq
}

func (h queueHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *queueHeap[T]) Push(x any) {
	*h = append(*h, x.(queued[T]))
}

func (h *queueHeap[T]) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = queued[T]{}
	*h = old[:n-1]
	return x
}
