/*
Copyright 2025 The Perkeep Authors

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

package shell

import (
	"sort"

	"perkeep.org/webui/pkg/blob"
)

// A Selection is the set of permanodes the user has checked across
// the grid. It remembers the index of the last plain click so a
// shift-click can select the whole range between the two.
type Selection struct {
	refs      map[blob.Ref]bool
	lastIndex int
}

func NewSelection() *Selection {
	return &Selection{
		refs:      make(map[blob.Ref]bool),
		lastIndex: -1,
	}
}

// Toggle flips br's membership. index is br's position in the
// current result order, remembered for a later shift-click.
func (s *Selection) Toggle(br blob.Ref, index int) {
	if s.refs[br] {
		delete(s.refs, br)
	} else {
		s.refs[br] = true
	}
	s.lastIndex = index
}

// SelectRange handles a shift-click on index: every item between the
// last clicked index and index, inclusive, becomes selected,
// whatever its prior state. items is the current result order.
func (s *Selection) SelectRange(items []blob.Ref, index int) {
	if index < 0 || index >= len(items) {
		return
	}
	lo, hi := s.lastIndex, index
	if lo < 0 {
		lo = index
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	for i := lo; i <= hi; i++ {
		s.refs[items[i]] = true
	}
	s.lastIndex = index
}

// Contains reports whether br is selected.
func (s *Selection) Contains(br blob.Ref) bool { return s.refs[br] }

// Len returns how many permanodes are selected.
func (s *Selection) Len() int { return len(s.refs) }

// Refs returns the selected refs, sorted for deterministic fan-outs.
func (s *Selection) Refs() []blob.Ref {
	out := make([]blob.Ref, 0, len(s.refs))
	for br := range s.refs {
		out = append(out, br)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Remove unselects br without touching the range anchor.
func (s *Selection) Remove(br blob.Ref) { delete(s.refs, br) }

// Clear empties the selection and forgets the range anchor.
func (s *Selection) Clear() {
	s.refs = make(map[blob.Ref]bool)
	s.lastIndex = -1
}
