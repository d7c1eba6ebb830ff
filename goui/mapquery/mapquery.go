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

// Package mapquery runs the search queries of the map aspect of the
// web UI: the user's expression constrained by a "map:" viewport
// predicate, with marker lifecycle helpers keyed by blob ref.
package mapquery

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"perkeep.org/webui/goui/geo"
	"perkeep.org/webui/pkg/search"
	"perkeep.org/webui/pkg/types/camtypes"
)

const (
	// LimitClustered is the query limit when the server bins
	// markers per tile; a representative subset comes back.
	LimitClustered = 1000
	// LimitUnclustered caps an unbinned query.
	LimitUnclustered = 100
)

// Searcher is the part of the client the map query needs.
type Searcher interface {
	Query(ctx context.Context, sq *search.SearchQuery) (*search.SearchResult, error)
}

// Query holds the parameters of the map aspect's current query.
type Query struct {
	cl Searcher

	mu sync.Mutex
	// expr is the search expression, with any zoom (map:)
	// predicate kept at its end.
	expr string
	// limit is the maximum number of results requested.
	limit int
	// zoom is the viewport of the last successful query.
	zoom *camtypes.LocationBounds
	// nextZoom is the viewport for the next query.
	nextZoom *camtypes.LocationBounds
	// pending keeps at most one query in flight.
	pending bool
}

// New returns a query for expr, or an error if expr violates the
// zoom predicate rules (see SetZoom). clustered selects the limit the
// server's marker binning expects.
func New(cl Searcher, expr string, clustered bool) (*Query, error) {
	if err := checkZoomExpr(expr); err != nil {
		return nil, err
	}
	limit := LimitUnclustered
	if clustered {
		limit = LimitClustered
	}
	return &Query{
		cl:    cl,
		expr:  ShiftZoomPredicate(expr),
		limit: limit,
	}, nil
}

// Expr returns the query's search expression.
func (q *Query) Expr() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.expr
}

func (q *Query) SetLimit(limit int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.limit = limit
}

// Send issues the query. It returns (nil, nil) when another send is
// already in flight. An empty expression queries for everything
// located, "has:location".
func (q *Query) Send(ctx context.Context) (*search.SearchResult, error) {
	q.mu.Lock()
	if q.pending {
		q.mu.Unlock()
		return nil, nil
	}
	q.pending = true
	expr := mapToLocrect(q.effectiveExprLocked())
	limit := q.limit
	next := q.nextZoom
	q.mu.Unlock()

	sq := &search.SearchQuery{
		Expression: expr,
		Describe:   search.UIDescribeRequest(),
		Limit:      limit,
		Sort:       search.MapSort,
	}
	res, err := q.cl.Query(ctx, sq)

	q.mu.Lock()
	q.pending = false
	if err == nil {
		q.zoom = next
	}
	q.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return res, nil
}

// effectiveExprLocked substitutes "has:location" for an expression
// that is empty apart from its zoom predicate. Requires q.mu held.
func (q *Query) effectiveExprLocked() string {
	if strings.TrimSpace(DeleteZoomPredicate(q.expr)) != "" {
		return q.expr
	}
	zoom := ""
	fields := strings.Fields(q.expr)
	if len(fields) > 0 && geo.IsLocMapPredicate(fields[len(fields)-1]) {
		zoom = " " + fields[len(fields)-1]
	}
	return "has:location" + zoom
}

// SetZoom constrains the query to the given viewport, by replacing
// the expression's map predicate.
//
// The map predicate reads like locrect but is client-only: it
// represents the world area visible on screen while zooming or
// panning. Stricter rules apply than for other predicates:
//
// 1. at most one map predicate in the whole expression.
// 2. it is interpreted as a logical 'and' with the rest of the
// expression regardless of position, so logical 'or's around it are
// forbidden.
//
// The predicate is kept at the end of the expression, for clarity.
func (q *Query) SetZoom(north, west, south, east float64) {
	if west <= east && east-west > 360 {
		// Zoomed out past a full world width.
		west = -179.99
		east = 179.99
	}
	// The predicate prints at 1e-6 precision; round outward so
	// boundary points stay included.
	const precision = 1e-6
	next := &camtypes.LocationBounds{
		North: north + precision,
		South: south - precision,
		West:  camtypes.Longitude(west - precision).WrapTo180(),
		East:  camtypes.Longitude(east + precision).WrapTo180(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextZoom = next
	q.expr = handleZoomPredicate(q.expr, false, geo.MapPredicate(*next))
}

// Zoom returns the viewport of the last successful query.
func (q *Query) Zoom() *camtypes.LocationBounds {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.zoom
}

// checkZoomExpr verifies the map predicate rules documented on
// SetZoom. Stripping parens around the predicate itself would need a
// real parser like the server's; field splitting covers what the UI
// generates.
func checkZoomExpr(expr string) error {
	sq := strings.TrimSpace(expr)
	if sq == "" {
		return nil
	}
	fields := strings.Fields(sq)
	if len(fields) == 1 {
		return nil
	}
	var pos []int
	for k, v := range fields {
		if geo.IsLocMapPredicate(v) {
			pos = append(pos, k)
		}
	}
	if len(pos) > 1 {
		return fmt.Errorf("map predicate should be unique")
	}
	for _, v := range pos {
		if v < len(fields)-1 && fields[v+1] == "or" {
			return fmt.Errorf(`map predicate with logical "or" forbidden`)
		}
		if v > 0 && fields[v-1] == "or" {
			return fmt.Errorf(`map predicate with logical "or" forbidden`)
		}
	}
	return nil
}

// HasZoomParameter reports whether queryString is the "q" parameter
// of a search query and contains a map zoom predicate.
func HasZoomParameter(queryString string) bool {
	qs := strings.TrimSpace(queryString)
	if !strings.HasPrefix(qs, "q=") {
		return false
	}
	qs = strings.TrimPrefix(qs, "q=")
	for _, v := range strings.Fields(qs) {
		if geo.IsLocMapPredicate(v) {
			return true
		}
	}
	return false
}

// mapToLocrect changes a trailing "map:" predicate to the "locrect:"
// predicate the server understands, parenthesizing whatever precedes
// it.
func mapToLocrect(expr string) string {
	sq := strings.TrimSpace(expr)
	if sq == "" {
		return expr
	}
	fields := strings.Fields(expr)
	lastPred := fields[len(fields)-1]
	if !geo.IsLocMapPredicate(lastPred) {
		return expr
	}
	locrect := strings.Replace(lastPred, geo.LocMapPredicatePrefix+":", geo.LocAreaPredicatePrefix+":", 1)
	if len(fields) == 1 {
		return locrect
	}
	return fmt.Sprintf("(%v) %v", strings.Join(fields[:len(fields)-1], " "), locrect)
}

// ShiftZoomPredicate moves expr's "map:" predicate, if any, to the
// end of the expression.
func ShiftZoomPredicate(expr string) string {
	return handleZoomPredicate(expr, false, "")
}

// DeleteZoomPredicate removes expr's "map:" predicate, if any.
func DeleteZoomPredicate(expr string) string {
	return handleZoomPredicate(expr, true, "")
}

func handleZoomPredicate(expr string, delete bool, replacement string) string {
	if delete && replacement != "" {
		panic("deletion mode and replacement mode are mutually exclusive")
	}
	replace := replacement != ""

	sq := strings.TrimSpace(expr)
	if sq == "" {
		if replace {
			return replacement
		}
		return expr
	}
	fields := strings.Fields(expr)
	pos := -1
	for k, v := range fields {
		if geo.IsLocMapPredicate(v) {
			pos = k
			break
		}
	}

	// easiest case: there is no zoom
	if pos == -1 {
		if replace {
			return sq + " " + replacement
		}
		return sq
	}

	// there's already a zoom at the end
	if pos == len(fields)-1 {
		if delete {
			return strings.Join(fields[:pos], " ")
		}
		if replace {
			return strings.TrimSpace(strings.Join(fields[:pos], " ") + " " + replacement)
		}
		return sq
	}

	// The zoom is somewhere else in the expression. Erase the
	// "and"s glued to it, then shift it to the end.
	var before int
	if pos > 0 && fields[pos-1] == "and" {
		before = pos - 1
	} else {
		before = pos
	}
	var after int
	if pos < len(fields)-1 && fields[pos+1] == "and" {
		after = pos + 2
	} else {
		after = pos + 1
	}
	rest := strings.TrimSpace(strings.Join(fields[:before], " ") + " " + strings.Join(fields[after:], " "))
	if delete {
		return rest
	}
	if replace {
		return rest + " " + replacement
	}
	return rest + " " + fields[pos]
}
