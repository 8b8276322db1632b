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

package queue

import "sync"

// OverflowQueue is a thread safe ring of the latest maxSize samples; the
// oldest sample is dropped on overflow.
type OverflowQueue[T any] struct {
	lock     sync.RWMutex
	elements []T
	head     int
	full     bool
}

// New returns a queue keeping at most size elements. Size must be positive.
func New[T any](size int) *OverflowQueue[T] {
	if size <= 0 {
		size = 1
	}
	return &OverflowQueue[T]{elements: make([]T, size)}
}

// Append adds an element, dropping the oldest one when full.
func (q *OverflowQueue[T]) Append(value T) {
	q.lock.Lock()
	defer q.lock.Unlock()
	q.elements[q.head] = value
	q.head = (q.head + 1) % len(q.elements)
	if q.head == 0 {
		q.full = true
	}
}

// Items returns a copy of the elements, oldest first.
func (q *OverflowQueue[T]) Items() []T {
	q.lock.RLock()
	defer q.lock.RUnlock()
	if !q.full {
		r := make([]T, q.head)
		copy(r, q.elements[:q.head])
		return r
	}
	r := make([]T, 0, len(q.elements))
	r = append(r, q.elements[q.head:]...)
	return append(r, q.elements[:q.head]...)
}

// Last returns the newest element.
func (q *OverflowQueue[T]) Last() (T, bool) {
	q.lock.RLock()
	defer q.lock.RUnlock()
	var zero T
	if !q.full && q.head == 0 {
		return zero, false
	}
	i := q.head - 1
	if i < 0 {
		i = len(q.elements) - 1
	}
	return q.elements[i], true
}

// Length returns the current number of elements.
func (q *OverflowQueue[T]) Length() int {
	q.lock.RLock()
	defer q.lock.RUnlock()
	if q.full {
		return len(q.elements)
	}
	return q.head
}

// Reset drops every element.
func (q *OverflowQueue[T]) Reset() {
	q.lock.Lock()
	defer q.lock.Unlock()
	clear(q.elements)
	q.head = 0
	q.full = false
}
