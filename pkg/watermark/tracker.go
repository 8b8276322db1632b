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

package watermark

// Tracker keeps the latest watermark of every input slot of an operator and
// the minimum across them. Slots are dense indexes assigned by the owner.
//
// Tracker is not safe for concurrent use; it is owned by the operator's
// processing step.
type Tracker struct {
	marks []Watermark
	min   Watermark
}

// NewTracker returns a tracker with n slots, all at Initial.
func NewTracker(n int) *Tracker {
	t := &Tracker{min: Initial}
	for i := 0; i < n; i++ {
		t.AddSlot()
	}
	return t
}

// AddSlot appends a slot at Initial and returns its index.
func (t *Tracker) AddSlot() int {
	t.marks = append(t.marks, Initial)
	t.min = Initial
	return len(t.marks) - 1
}

// Len returns the number of slots.
func (t *Tracker) Len() int {
	return len(t.marks)
}

// Advance moves the slot to max(current, ts). It reports whether the minimum
// over all slots changed. A timestamp behind the current mark is ignored.
func (t *Tracker) Advance(slot int, ts Watermark) bool {
	if ts <= t.marks[slot] {
		return false
	}
	t.marks[slot] = ts
	return t.recompute()
}

// Finish moves the slot to Max, so it no longer holds back the minimum.
func (t *Tracker) Finish(slot int) bool {
	return t.Advance(slot, Max)
}

// AdvanceAll moves every slot to max(current, ts).
func (t *Tracker) AdvanceAll(ts Watermark) bool {
	for i := range t.marks {
		if ts > t.marks[i] {
			t.marks[i] = ts
		}
	}
	return t.recompute()
}

// Of returns the watermark of one slot.
func (t *Tracker) Of(slot int) Watermark {
	return t.marks[slot]
}

// Min returns the combined watermark. With no slot it is Initial.
func (t *Tracker) Min() Watermark {
	return t.min
}

func (t *Tracker) recompute() bool {
	if len(t.marks) == 0 {
		return false
	}
	m := Max
	for _, w := range t.marks {
		if w < m {
			m = w
		}
	}
	changed := m != t.min
	t.min = m
	return changed
}
