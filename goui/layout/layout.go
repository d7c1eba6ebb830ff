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

// Package layout computes the justified thumbnail grid of the search
// aspect: heterogeneous-aspect items packed into rows that fill the
// available width exactly, with virtualization helpers deciding which
// items a viewport needs materialized.
package layout

import (
	"math"
	"time"
)

const (
	// DefaultMargin is the gap between items and at row edges.
	DefaultMargin = 7

	// infiniteScrollThreshold is how close to the layout's bottom
	// edge the viewport may get before more results are needed.
	infiniteScrollThreshold = 100

	// lastRowStretch is the fraction of the available width a final
	// row must naturally reach to be stretched flush instead of
	// left ragged.
	lastRowStretch = 0.85

	// ScrollSaveInterval throttles scroll-position writes into the
	// current history entry.
	ScrollSaveInterval = 2 * time.Second
)

// An Item is one thumbnail to lay out. Aspect is its intrinsic
// width/height ratio.
type Item struct {
	Aspect float64
}

// A Rect is an item's absolute position within the layout.
type Rect struct {
	Top    int
	Left   int
	Width  int
	Height int
}

// A Layout is the packed geometry for one item sequence at one
// available width. Positions is parallel to the input items.
type Layout struct {
	Positions []Rect
	// Height is the top of the last row plus its height. The
	// sentinel preserving scroll extent sits at Height-1.
	Height int
}

// Params configures a packing.
type Params struct {
	AvailWidth   int
	TargetHeight int
	Margin       int // 0 means DefaultMargin
}

func (p Params) margin() int {
	if p.Margin == 0 {
		return DefaultMargin
	}
	return p.Margin
}

// Pack arranges items into justified rows. Every row fills
// p.AvailWidth exactly, except possibly the last: a final row whose
// natural width is below 85% of the available width stays at its
// natural size.
func Pack(items []Item, p Params) *Layout {
	margin := p.margin()
	l := &Layout{Positions: make([]Rect, len(items))}
	aspect := func(i int) float64 {
		if items[i].Aspect <= 0 {
			// Unloaded thumbs report no ratio yet; treat as square.
			return 1
		}
		return items[i].Aspect
	}
	natural := func(i int) int {
		return int(math.Round(aspect(i) * float64(p.TargetHeight)))
	}

	top := 0
	i := 0
	for i < len(items) {
		// Accumulate until the next item would overflow, then
		// keep or defer it, whichever lands closer to the
		// available width.
		rowWidth := margin
		j := i
		for j < len(items) {
			w := rowWidth + natural(j) + margin
			if j > i && w > p.AvailWidth {
				if w-p.AvailWidth < p.AvailWidth-rowWidth {
					rowWidth = w
					j++
				}
				break
			}
			rowWidth = w
			j++
		}

		lastRow := j == len(items)
		stretch := !lastRow || float64(rowWidth) >= lastRowStretch*float64(p.AvailWidth)
		rowHeight := p.TargetHeight
		if stretch {
			rowHeight = justifyRow(l, i, j, top, p.AvailWidth, margin, aspect, natural)
		} else {
			left := margin
			for k := i; k < j; k++ {
				w := natural(k)
				l.Positions[k] = Rect{Top: top, Left: left, Width: w, Height: p.TargetHeight}
				left += w + margin
			}
		}
		top += rowHeight + margin
		l.Height = l.Positions[j-1].Top + rowHeight
		i = j
	}
	return l
}

// justifyRow widens or narrows items[i:j] so the row spans exactly
// availWidth, spreading the correction one item at a time so rounding
// residue is absorbed fairly. The row's height is the smallest
// per-item scaled height, giving a flush bottom edge. Returns the row
// height.
func justifyRow(l *Layout, i, j, top, availWidth, margin int, aspect func(int) float64, natural func(int) int) int {
	n := j - i
	availThumb := availWidth - margin*(n+1)
	usedThumb := 0
	for k := i; k < j; k++ {
		usedThumb += natural(k)
	}

	remaining := availThumb - usedThumb
	rowHeight := math.MaxInt
	left := margin
	for k := i; k < j; k++ {
		delta := int(math.Round(float64(remaining) / float64(j-k)))
		remaining -= delta
		w := natural(k) + delta
		h := int(math.Round(float64(w) / aspect(k)))
		if h < rowHeight {
			rowHeight = h
		}
		l.Positions[k] = Rect{Top: top, Left: left, Width: w}
		left += w + margin
	}
	for k := i; k < j; k++ {
		l.Positions[k].Height = rowHeight
	}
	return rowHeight
}

// Visible returns the indexes of items whose vertical band intersects
// [scrollTop, scrollTop+viewportHeight], plus anchor (an index, or -1)
// even when it is out of band. The caller renders exactly these plus
// the scroll-extent sentinel.
func (l *Layout) Visible(scrollTop, viewportHeight, anchor int) []int {
	var out []int
	for i, r := range l.Positions {
		if r.Top+r.Height >= scrollTop && r.Top <= scrollTop+viewportHeight {
			out = append(out, i)
		} else if i == anchor {
			out = append(out, i)
		}
	}
	return out
}

// NeedsMore reports whether the viewport is near enough to the
// layout's bottom edge that the session should load another page.
// Callers also check it after every relayout, so a viewport taller
// than the loaded pages keeps filling.
func (l *Layout) NeedsMore(scrollTop, viewportHeight int) bool {
	return l.Height-scrollTop-viewportHeight < infiniteScrollThreshold
}
