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

// Package camtypes is like the server's camtypes: the JSON view
// types the index synthesizes about blobs, as consumed by the UI.
package camtypes

import (
	"math"
	"strings"

	"perkeep.org/webui/pkg/blob"
)

// FileInfo describes a file or directory.
type FileInfo struct {
	FileName string `json:"fileName"`

	// Size is the size of file, or if a directory, the size of its
	// serialized static-set.
	Size int64 `json:"size"`

	// MIMEType may be empty for non-files or when unknown.
	MIMEType string `json:"mimeType,omitempty"`

	// Time is the earliest of metadata times; may be omitted (zero)
	// if unknown.
	Time string `json:"time,omitempty"`
	// ModTime is the file modification time, if known.
	ModTime string `json:"modTime,omitempty"`

	// WholeRef is the digest of the entire file contents.
	WholeRef blob.Ref `json:"wholeRef,omitempty"`
}

// IsImage reports whether the file is an image.
func (fi *FileInfo) IsImage() bool {
	return strings.HasPrefix(fi.MIMEType, "image/")
}

// IsVideo reports whether the file is a video.
func (fi *FileInfo) IsVideo() bool {
	return strings.HasPrefix(fi.MIMEType, "video/")
}

// StatusError is an error reported in the server's status response.
type StatusError struct {
	Error string `json:"error"`
	URL   string `json:"url,omitempty"` // optional
}

// ImageInfo describes an image file.
type ImageInfo struct {
	// Width is the visible width of the image (after any necessary EXIF rotation).
	Width uint16 `json:"width"`
	// Height is the visible height of the image (after any necessary EXIF rotation).
	Height uint16 `json:"height"`
}

// Location is a geographical coordinate.
//
// Northern latitudes are positive, southern latitudes are negative.
// Eastern longitudes are positive, western longitudes are negative.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Longitude is a longitude in degrees east, possibly outside the
// [-180,180] range.
type Longitude float64

// WrapTo180 returns l converted to the [-180,180] interval.
func (l Longitude) WrapTo180() float64 {
	lf := float64(l)
	if lf >= -180 && lf <= 180 {
		return lf
	}
	if lf == 0 {
		return lf
	}
	if lf > 0 {
		return math.Mod(lf+180., 360.) - 180.
	}
	return math.Mod(lf-180., 360.) + 180.
}

// LocationBounds is a location area delimited by its fields. See
// Location for the fields' meanings and values.
type LocationBounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	West  float64 `json:"west"`
	East  float64 `json:"east"`
}

// SpansDateLine reports whether b spans the antimeridian.
func (b *LocationBounds) SpansDateLine() bool { return b.East < b.West }

func (b *LocationBounds) isEmpty() bool {
	return b == nil ||
		b.North == 0 &&
			b.South == 0 &&
			b.West == 0 &&
			b.East == 0
}

func (b *LocationBounds) isWithinLongitude(loc Location) bool {
	if b.SpansDateLine() {
		return loc.Longitude >= b.West || loc.Longitude <= b.East
	}
	return loc.Longitude >= b.West && loc.Longitude <= b.East
}

// Contains reports whether loc is within b.
func (b *LocationBounds) Contains(loc Location) bool {
	if b.isEmpty() {
		return false
	}
	if loc.Latitude > b.North || loc.Latitude < b.South {
		return false
	}
	return b.isWithinLongitude(loc)
}

// Expand returns a new LocationBounds nb. If either of loc's
// coordinates is outside of b, nb is b expanded as little as possible
// in order to include loc. Otherwise nb is just a copy of b.
func (b *LocationBounds) Expand(loc Location) *LocationBounds {
	if b.isEmpty() {
		return &LocationBounds{
			North: loc.Latitude,
			South: loc.Latitude,
			West:  loc.Longitude,
			East:  loc.Longitude,
		}
	}
	nb := &LocationBounds{
		North: b.North,
		South: b.South,
		West:  b.West,
		East:  b.East,
	}
	if loc.Latitude > nb.North {
		nb.North = loc.Latitude
	} else if loc.Latitude < nb.South {
		nb.South = loc.Latitude
	}
	if nb.isWithinLongitude(loc) {
		return nb
	}
	center := nb.Center()
	dToCenter := center.Longitude - loc.Longitude
	if math.Abs(dToCenter) <= 180 {
		if dToCenter > 0 {
			// expand Westwards
			nb.West = loc.Longitude
		} else {
			// expand Eastwards
			nb.East = loc.Longitude
		}
		return nb
	}
	if dToCenter > 0 {
		// expand Eastwards
		nb.East = loc.Longitude
	} else {
		// expand Westwards
		nb.West = loc.Longitude
	}
	return nb
}

// Center returns the center of the bounds.
func (b *LocationBounds) Center() Location {
	var lat, long float64
	lat = b.South + (b.North-b.South)/2.
	if !b.SpansDateLine() {
		long = b.West + (b.East-b.West)/2.
		return Location{
			Latitude:  lat,
			Longitude: long,
		}
	}
	awest := math.Abs(b.West)
	aeast := math.Abs(b.East)
	if awest > aeast {
		long = b.East - (awest-aeast)/2.
	} else {
		long = b.West + (aeast-awest)/2.
	}
	return Location{
		Latitude:  lat,
		Longitude: long,
	}
}
