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

// Package geo provides utilities helping with geographic coordinates
// in the map aspect of the web UI.
package geo

import (
	"fmt"
	"strconv"
	"strings"

	"perkeep.org/webui/pkg/types/camtypes"
)

const (
	LocPredicatePrefix     = "loc"
	LocAreaPredicatePrefix = "locrect"
	LocMapPredicatePrefix  = "map"
)

// IsLocPredicate returns whether the given predicate is a location
// predicate of the form "loc:something".
func IsLocPredicate(predicate string) bool {
	if !strings.HasPrefix(predicate, LocPredicatePrefix+":") {
		return false
	}
	loc := strings.TrimPrefix(predicate, LocPredicatePrefix+":")
	if loc == "" {
		return false
	}
	return true
}

// IsLocAreaPredicate returns whether predicate is a location area
// predicate, i.e. of the form "locrect:N,W,S,E".
func IsLocAreaPredicate(predicate string) bool {
	if _, err := rectangleFromPredicate(predicate, LocAreaPredicatePrefix); err != nil {
		return false
	}
	return true
}

// IsLocMapPredicate returns whether predicate is a map location
// predicate, i.e. of the form "map:N,W,S,E".
func IsLocMapPredicate(predicate string) bool {
	if _, err := rectangleFromPredicate(predicate, LocMapPredicatePrefix); err != nil {
		return false
	}
	return true
}

// Location returns the location text of a "loc:" predicate, or "".
func Location(predicate string) string {
	if !IsLocPredicate(predicate) {
		return ""
	}
	return strings.TrimPrefix(predicate, LocPredicatePrefix+":")
}

// RectangleFromPredicate returns the rectangular area of a "locrect:"
// predicate.
func RectangleFromPredicate(predicate string) (*camtypes.LocationBounds, error) {
	return rectangleFromPredicate(predicate, LocAreaPredicatePrefix)
}

// rectangleFromPredicate, if predicate is a valid location predicate
// of the given kind, returns the corresponding rectangular area.
func rectangleFromPredicate(predicate, kind string) (*camtypes.LocationBounds, error) {
	errNotARectangle := fmt.Errorf("not a valid %v predicate", kind)
	if !strings.HasPrefix(predicate, kind+":") {
		return nil, errNotARectangle
	}
	loc := strings.TrimPrefix(predicate, kind+":")
	coords := strings.Split(loc, ",")
	if len(coords) != 4 {
		return nil, errNotARectangle
	}
	var coord [4]float64
	for k, v := range coords {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, errNotARectangle
		}
		coord[k] = f
	}
	return &camtypes.LocationBounds{
		North: coord[0],
		South: coord[2],
		East:  coord[3],
		West:  coord[1],
	}, nil
}

// MapPredicate formats b as a map viewport predicate,
// "map:N,W,S,E", with six decimal digits of precision.
func MapPredicate(b camtypes.LocationBounds) string {
	return fmt.Sprintf("%s:%.6f,%.6f,%.6f,%.6f",
		LocMapPredicatePrefix, b.North, b.West, b.South, b.East)
}

// WrapAntimeridian returns b with its east longitude pushed past
// +180 when the bounds span the antimeridian, so that east > west
// always holds. Tile libraries cannot draw a rectangle across the
// antimeridian in normalized coordinates; the denormalized form
// renders continuously.
func WrapAntimeridian(b camtypes.LocationBounds) camtypes.LocationBounds {
	if b.East >= b.West {
		return b
	}
	return camtypes.LocationBounds{
		North: b.North,
		South: b.South,
		West:  b.West,
		East:  b.East + 360,
	}
}
