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

package layout

import (
	"math/rand"
	"reflect"
	"testing"
)

func itemsOf(aspects ...float64) []Item {
	items := make([]Item, len(aspects))
	for i, a := range aspects {
		items[i] = Item{Aspect: a}
	}
	return items
}

// rows groups position indexes by row top, in top order.
func rows(l *Layout) [][]int {
	var out [][]int
	lastTop := -1
	for i, r := range l.Positions {
		if r.Top != lastTop {
			out = append(out, nil)
			lastTop = r.Top
		}
		out[len(out)-1] = append(out[len(out)-1], i)
	}
	return out
}

func TestPackRaggedLastRow(t *testing.T) {
	l := Pack(itemsOf(1, 1, 1, 1, 1, 1, 3), Params{AvailWidth: 1000, TargetHeight: 200})
	rs := rows(l)
	if len(rs) != 2 {
		t.Fatalf("%d rows; want 2", len(rs))
	}
	if !reflect.DeepEqual(rs[0], []int{0, 1, 2, 3, 4}) || !reflect.DeepEqual(rs[1], []int{5, 6}) {
		t.Fatalf("rows = %v", rs)
	}

	// The first row fills the available width exactly.
	last := l.Positions[4]
	if got := last.Left + last.Width + DefaultMargin; got != 1000 {
		t.Errorf("first row right edge = %d; want 1000", got)
	}
	for _, i := range rs[0] {
		if l.Positions[i].Height != l.Positions[0].Height {
			t.Errorf("item %d height %d != row height %d", i, l.Positions[i].Height, l.Positions[0].Height)
		}
	}

	// The last row's natural width (821) is under 85% of 1000, so
	// it stays ragged at the target height.
	if w := l.Positions[5].Width; w != 200 {
		t.Errorf("item 5 width = %d; want natural 200", w)
	}
	if w := l.Positions[6].Width; w != 600 {
		t.Errorf("item 6 width = %d; want natural 600", w)
	}
	for _, i := range rs[1] {
		if h := l.Positions[i].Height; h != 200 {
			t.Errorf("item %d height = %d; want 200", i, h)
		}
	}
	wantHeight := l.Positions[6].Top + l.Positions[6].Height
	if l.Height != wantHeight {
		t.Errorf("Height = %d; want %d", l.Height, wantHeight)
	}
}

func TestPackStretchesWideLastRow(t *testing.T) {
	// Natural row width 901 is at least 85% of 1000, so the last
	// row stretches flush.
	l := Pack(itemsOf(2, 2.4), Params{AvailWidth: 1000, TargetHeight: 200})
	last := l.Positions[1]
	if got := last.Left + last.Width + DefaultMargin; got != 1000 {
		t.Errorf("right edge = %d; want 1000", got)
	}
	if l.Positions[0].Height != l.Positions[1].Height {
		t.Errorf("heights differ: %d vs %d", l.Positions[0].Height, l.Positions[1].Height)
	}
}

func TestPackInvariants(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	items := make([]Item, 60)
	for i := range items {
		items[i] = Item{Aspect: 0.4 + 2.2*rnd.Float64()}
	}
	p := Params{AvailWidth: 1200, TargetHeight: 180}
	l := Pack(items, p)
	rs := rows(l)
	for ri, row := range rs {
		first := l.Positions[row[0]]
		if first.Left != DefaultMargin {
			t.Errorf("row %d starts at %d; want %d", ri, first.Left, DefaultMargin)
		}
		for _, i := range row {
			if l.Positions[i].Height != first.Height {
				t.Errorf("row %d: uneven heights", ri)
			}
		}
		lastInRow := l.Positions[row[len(row)-1]]
		edge := lastInRow.Left + lastInRow.Width + DefaultMargin
		if ri < len(rs)-1 && edge != p.AvailWidth {
			t.Errorf("row %d right edge = %d; want %d", ri, edge, p.AvailWidth)
		}
		if ri == len(rs)-1 && edge > p.AvailWidth {
			t.Errorf("last row overflows: edge %d > %d", edge, p.AvailWidth)
		}
	}
	lastRow := rs[len(rs)-1]
	lastItem := l.Positions[lastRow[len(lastRow)-1]]
	if l.Height != lastItem.Top+lastItem.Height {
		t.Errorf("Height = %d; want %d", l.Height, lastItem.Top+lastItem.Height)
	}
}

func TestVisible(t *testing.T) {
	l := Pack(itemsOf(1, 1, 1, 1, 1, 1, 1, 1), Params{AvailWidth: 430, TargetHeight: 200})
	rs := rows(l)
	if len(rs) < 3 {
		t.Fatalf("%d rows; want at least 3 for the band test", len(rs))
	}
	secondTop := l.Positions[rs[1][0]].Top

	got := l.Visible(secondTop, 10, -1)
	if !reflect.DeepEqual(got, rs[1]) {
		t.Errorf("Visible = %v; want second row %v", got, rs[1])
	}

	// An out-of-band anchor is kept materialized.
	anchor := rs[len(rs)-1][0]
	got = l.Visible(secondTop, 10, anchor)
	want := append(append([]int(nil), rs[1]...), anchor)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Visible with anchor = %v; want %v", got, want)
	}
}

func TestNeedsMore(t *testing.T) {
	l := &Layout{Height: 1000}
	if !l.NeedsMore(500, 450) {
		t.Error("50px left; want more")
	}
	if l.NeedsMore(100, 450) {
		t.Error("450px left; want no more")
	}
}
