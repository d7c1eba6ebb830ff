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
	"perkeep.org/webui/pkg/blob"
	"perkeep.org/webui/pkg/schema/nodeattr"
	"perkeep.org/webui/pkg/search"
	"perkeep.org/webui/pkg/types/camtypes"
)

// A RenderedItem is one grid cell, ready for the DOM layer.
type RenderedItem struct {
	// ThumbRef, if valid, is the file blob to thumbnail.
	ThumbRef blob.Ref
	Title    string
	Height   int
}

// An ItemHandler renders one described result. AspectRatio feeds the
// grid packer; Render produces the cell at the packed height.
type ItemHandler interface {
	AspectRatio() float64
	Render(height int) RenderedItem
}

// A HandlerFunc inspects a described blob and returns a handler for
// it, or nil to pass it to the next candidate.
type HandlerFunc func(db *search.DescribedBlob) ItemHandler

// A Registry picks the handler for a result by asking its handler
// funcs in registration order. It always answers: unclaimed blobs
// get a generic node handler.
type Registry struct {
	funcs []HandlerFunc
}

// NewRegistry returns a registry with the built-in handlers:
// foursquare checkins, then images, then other files.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(checkinHandler)
	r.Register(imageHandler)
	r.Register(fileHandler)
	return r
}

// Register appends f as the lowest-priority candidate.
func (r *Registry) Register(f HandlerFunc) {
	r.funcs = append(r.funcs, f)
}

// HandlerFor returns the first handler claiming db. It never returns
// nil.
func (r *Registry) HandlerFor(db *search.DescribedBlob) ItemHandler {
	for _, f := range r.funcs {
		if h := f(db); h != nil {
			return h
		}
	}
	return nodeHandler{db}
}

func checkinHandler(db *search.DescribedBlob) ItemHandler {
	if db.Permanode == nil {
		return nil
	}
	if db.Permanode.Attr.Get(nodeattr.Type) != "foursquare.com:checkin" {
		return nil
	}
	return nodeHandler{db}
}

func imageHandler(db *search.DescribedBlob) ItemHandler {
	cref, ok := db.ContentRef()
	if !ok {
		return nil
	}
	content := db.PeerBlob(cref)
	if content.Image == nil {
		return nil
	}
	return imageItem{db: db, thumb: cref, image: content.Image}
}

func fileHandler(db *search.DescribedBlob) ItemHandler {
	if _, _, ok := db.PermanodeFile(); !ok {
		return nil
	}
	return nodeHandler{db}
}

type imageItem struct {
	db    *search.DescribedBlob
	thumb blob.Ref
	image *camtypes.ImageInfo
}

func (it imageItem) AspectRatio() float64 {
	if it.image.Height == 0 {
		return 1
	}
	return float64(it.image.Width) / float64(it.image.Height)
}

func (it imageItem) Render(height int) RenderedItem {
	return RenderedItem{
		ThumbRef: it.thumb,
		Title:    it.db.Title(),
		Height:   height,
	}
}

// nodeHandler renders permanodes with no richer representation as a
// square title card.
type nodeHandler struct {
	db *search.DescribedBlob
}

func (nodeHandler) AspectRatio() float64 { return 1 }

func (h nodeHandler) Render(height int) RenderedItem {
	return RenderedItem{
		Title:  h.db.Title(),
		Height: height,
	}
}
