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

package mapquery

import (
	"context"
	"strings"
	"sync"
	"time"

	"perkeep.org/webui/goui/geo"
	"perkeep.org/webui/pkg/blob"
	"perkeep.org/webui/pkg/schema/nodeattr"
	"perkeep.org/webui/pkg/search"
	"perkeep.org/webui/pkg/types/camtypes"
)

// zoomCooldown is how long the viewport must hold still after a zoom
// or pan before the query is reissued.
const zoomCooldown = 500 * time.Millisecond

// PopupThumbSize is the pixel size of a popup's image thumbnail.
const PopupThumbSize = 64

// IconKind selects the marker icon for a result's node type.
type IconKind string

const (
	IconFoursquare IconKind = "foursquare"
	IconCamera     IconKind = "camera"
	IconFile       IconKind = "file"
	IconCircle     IconKind = "circle"
)

// A Marker is one located search result.
type Marker struct {
	Ref      blob.Ref
	Location camtypes.Location
	Icon     IconKind
	// ThumbRef, if valid, is the image file to show as the
	// popup's thumbnail anchor.
	ThumbRef blob.Ref
	// Title is the result's display title, possibly empty.
	Title string
}

// PopupText is the marker's popup fallback when no thumbnail is
// shown: the title if any, else the ref.
func (m *Marker) PopupText() string {
	if m.Title != "" {
		return m.Title
	}
	return m.Ref.String()
}

// A MarkerLayer renders markers on the tile map. Freeze suspends
// per-add animation and reclustering while a batch is applied;
// Unfreeze commits it.
type MarkerLayer interface {
	Freeze()
	Unfreeze()
	Add(markers []*Marker)
	Remove(refs []blob.Ref)
}

// markerFromResult builds the marker for br, or ok=false when
// neither the permanode nor its resolved content carries a location.
func markerFromResult(br blob.Ref, meta search.MetaMap) (*Marker, bool) {
	db := meta.Get(br)
	if db == nil {
		return nil, false
	}
	loc := db.Location
	if loc == nil {
		if cref, ok := db.ContentRef(); ok {
			if cdb := db.PeerBlob(cref); cdb.Location != nil {
				loc = cdb.Location
			}
		}
	}
	if loc == nil {
		return nil, false
	}
	m := &Marker{
		Ref:      br,
		Location: *loc,
		Icon:     iconFor(db),
		Title:    db.Title(),
	}
	if cref, ok := db.ContentRef(); ok {
		if cdb := db.PeerBlob(cref); cdb.File != nil && cdb.File.IsImage() {
			m.ThumbRef = cref
		}
	}
	return m, true
}

func iconFor(db *search.DescribedBlob) IconKind {
	if db.Permanode != nil {
		switch db.Permanode.Attr.Get(nodeattr.Type) {
		case "foursquare.com:checkin", "foursquare.com:venue":
			return IconFoursquare
		}
	}
	if cref, ok := db.ContentRef(); ok {
		if cdb := db.PeerBlob(cref); cdb.File != nil {
			if cdb.File.IsImage() {
				return IconCamera
			}
			return IconFile
		}
	}
	return IconCircle
}

// Geocoder resolves a place name to candidate rectangles. Callers
// bind geocode.Lookup with the endpoint and convert its rects to
// bounds.
type Geocoder func(ctx context.Context, address string) ([]camtypes.LocationBounds, error)

// A View owns the map aspect's marker set: it diffs each query
// result against the markers on screen and applies the delta to the
// layer in bulk.
type View struct {
	q     *Query
	layer MarkerLayer
	// OnError, if set, is called when a debounced refresh fails.
	OnError func(err error)

	mu           sync.Mutex
	markers      map[blob.Ref]*Marker
	sawFirstMove bool
	cooldown     *time.Timer
	closed       bool
}

// NewView returns a view feeding layer from q.
func NewView(q *Query, layer MarkerLayer) *View {
	return &View{
		q:       q,
		layer:   layer,
		markers: make(map[blob.Ref]*Marker),
	}
}

// Refresh sends the query and applies the marker delta. A send
// already in flight makes it a no-op.
func (v *View) Refresh(ctx context.Context) error {
	res, err := v.q.Send(ctx)
	if err != nil || res == nil {
		return err
	}
	v.apply(res)
	return nil
}

// apply diffs res against the current markers: refs already present
// are retained, new ones added, absent ones removed. The layer is
// frozen across the whole batch.
func (v *View) apply(res *search.SearchResult) {
	var meta search.MetaMap
	if res.Describe != nil {
		meta = res.Describe.Meta
	}

	v.mu.Lock()
	seen := make(map[blob.Ref]bool)
	var added []*Marker
	for _, rb := range res.Blobs {
		br := rb.Blob
		seen[br] = true
		if _, ok := v.markers[br]; ok {
			continue
		}
		m, ok := markerFromResult(br, meta)
		if !ok {
			continue
		}
		v.markers[br] = m
		added = append(added, m)
	}
	var removed []blob.Ref
	for br := range v.markers {
		if !seen[br] {
			delete(v.markers, br)
			removed = append(removed, br)
		}
	}
	v.mu.Unlock()

	v.layer.Freeze()
	if len(added) > 0 {
		v.layer.Add(added)
	}
	if len(removed) > 0 {
		v.layer.Remove(removed)
	}
	v.layer.Unfreeze()
}

// Markers returns the markers currently on the layer.
func (v *View) Markers() []*Marker {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*Marker, 0, len(v.markers))
	for _, m := range v.markers {
		out = append(out, m)
	}
	return out
}

// InitialFrame returns the rectangle to frame after the first load:
// the expression's own locrect if it has one, else a geocoding of
// its loc: predicate, else the bounding box of the loaded markers.
// The result never spans the antimeridian in normalized coordinates.
func (v *View) InitialFrame(ctx context.Context, gc Geocoder) (*camtypes.LocationBounds, bool) {
	for _, pred := range strings.Fields(v.q.Expr()) {
		if b, err := geo.RectangleFromPredicate(pred); err == nil {
			wrapped := geo.WrapAntimeridian(*b)
			return &wrapped, true
		}
		if loc := geo.Location(pred); loc != "" && gc != nil {
			rects, err := gc(ctx, loc)
			if err == nil && len(rects) > 0 {
				wrapped := geo.WrapAntimeridian(rects[0])
				return &wrapped, true
			}
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	var bounds *camtypes.LocationBounds
	for _, m := range v.markers {
		bounds = bounds.Expand(m.Location)
	}
	if bounds == nil {
		return nil, false
	}
	wrapped := geo.WrapAntimeridian(*bounds)
	return &wrapped, true
}

// ViewportChanged notes a zoom or pan. After the viewport holds
// still for the cooldown, the query is constrained to the new bounds
// and reissued. The first move after mount reflects the initial
// auto-framing, not user intent, and is discarded.
func (v *View) ViewportChanged(ctx context.Context, north, west, south, east float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	if !v.sawFirstMove {
		v.sawFirstMove = true
		return
	}
	if v.cooldown != nil {
		v.cooldown.Stop()
	}
	v.cooldown = time.AfterFunc(zoomCooldown, func() {
		v.mu.Lock()
		if v.closed {
			v.mu.Unlock()
			return
		}
		v.mu.Unlock()
		v.q.SetZoom(north, west, south, east)
		if err := v.Refresh(ctx); err != nil && v.OnError != nil {
			v.OnError(err)
		}
	})
}

// Close cancels any pending cooldown; later viewport events are
// ignored.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	if v.cooldown != nil {
		v.cooldown.Stop()
		v.cooldown = nil
	}
}
