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

// Package geocode maps user-entered location names into lat/long
// rectangles, by way of the server's geocode endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"sync"

	"go4.org/ctxutil"
	"go4.org/syncutil/singleflight"
	"golang.org/x/net/context/ctxhttp"

	"perkeep.org/webui/pkg/types/camtypes"
)

type LatLong struct {
	Lat  float64 `json:"lat"`
	Long float64 `json:"lng"`
}

type Rect struct {
	NorthEast LatLong `json:"northeast"`
	SouthWest LatLong `json:"southwest"`
}

// Bounds returns the rectangle as location bounds.
func (r Rect) Bounds() camtypes.LocationBounds {
	return camtypes.LocationBounds{
		North: r.NorthEast.Lat,
		South: r.SouthWest.Lat,
		West:  r.SouthWest.Long,
		East:  r.NorthEast.Long,
	}
}

var (
	mu    sync.RWMutex
	cache = map[string][]Rect{}

	sf singleflight.Group
)

// Lookup returns rectangles for the given address. endpoint is the
// server's geocode handler URL; the address is passed in its "q"
// parameter. Results are cached for the life of the process and
// concurrent lookups of the same address are coalesced.
func Lookup(ctx context.Context, endpoint, address string) ([]Rect, error) {
	key := endpoint + "\x00" + address
	mu.RLock()
	rects, ok := cache[key]
	mu.RUnlock()
	if ok {
		return rects, nil
	}

	rectsi, err := sf.Do(key, func() (interface{}, error) {
		urlStr := endpoint + "?q=" + url.QueryEscape(address)
		res, err := ctxhttp.Get(ctx, ctxutil.Client(ctx), urlStr)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		rects, err := decodeResponse(res.Body)
		if err == nil {
			mu.Lock()
			cache[key] = rects
			mu.Unlock()
		}
		return rects, err
	})
	if err != nil {
		return nil, err
	}
	return rectsi.([]Rect), nil
}

type resTop struct {
	Results []*result `json:"results"`
}

type result struct {
	Geometry *geometry `json:"geometry"`
}

type geometry struct {
	Bounds   *Rect `json:"bounds"`
	Viewport *Rect `json:"viewport"`
}

func decodeResponse(r io.Reader) (rects []Rect, err error) {
	var top resTop
	if err := json.NewDecoder(r).Decode(&top); err != nil {
		return nil, err
	}
	for _, res := range top.Results {
		if res.Geometry == nil || res.Geometry.Bounds == nil {
			continue
		}
		b := res.Geometry.Bounds
		if b.NorthEast.Lat == 90 && b.NorthEast.Long == 180 &&
			b.SouthWest.Lat == -90 && b.SouthWest.Long == -180 {
			// A "whole world" rect comes back for very large
			// addresses; the viewport is more useful then.
			if res.Geometry.Viewport != nil {
				rects = append(rects, *res.Geometry.Viewport)
			}
		} else {
			rects = append(rects, *b)
		}
	}
	return
}
