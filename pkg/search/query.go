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

// Package search defines the JSON types the client exchanges with
// the server's search handler: queries, constraints, describe
// requests, and their results.
package search

import (
	"fmt"
	"time"

	"perkeep.org/webui/pkg/blob"
	"perkeep.org/webui/pkg/types/camtypes"
)

// SortType is the sort order of search results.
type SortType string

const (
	// UnspecifiedSort lets the server pick.
	UnspecifiedSort SortType = ""
	// CreatedDesc sorts by creation time, newest first. It is the
	// UI's default.
	CreatedDesc SortType = "-created"
	// CreatedAsc sorts by creation time, oldest first.
	CreatedAsc SortType = "created"
	// MapSort requests the server's geo binning: a subset of
	// location-carrying results spread over the queried area.
	MapSort SortType = "map"
)

// SearchQuery is the JSON body of a search request to
// <searchRoot>/camli/search/query.
type SearchQuery struct {
	// Exactly one of Expression or Constraint must be set.
	Expression string      `json:"expression,omitempty"`
	Constraint *Constraint `json:"constraint,omitempty"`

	Limit int      `json:"limit,omitempty"` // optional. default is automatic.
	Sort  SortType `json:"sort,omitempty"`

	// Continue is the token from a previous result page.
	// It is mutually exclusive with Around.
	Continue string `json:"continue,omitempty"`

	// Around requests a page centered on this blob.
	Around blob.Ref `json:"around,omitempty"`

	// Describe optionally describes the results server-side.
	Describe *DescribeRequest `json:"describe,omitempty"`
}

// SearchResult is the JSON response to a search request.
type SearchResult struct {
	Blobs    []*SearchResultBlob `json:"blobs"`
	Describe *DescribeResponse   `json:"description,omitempty"`

	// Continue, if set, is the token to resume pagination.
	// Its absence means the query is complete.
	Continue string `json:"continue,omitempty"`

	// LocationArea is the bounding box of the results' locations,
	// if the query was location-sorted.
	LocationArea *camtypes.LocationBounds `json:"locationArea,omitempty"`
}

// SearchResultBlob is one matching blob of a search result.
type SearchResultBlob struct {
	Blob blob.Ref `json:"blob"`
}

func (r *SearchResultBlob) String() string {
	return fmt.Sprintf("[blob: %s]", r.Blob)
}

// Constraint specifies a blob matching constraint.
// A blob matches if it matches all non-zero fields' predicates.
// A zero constraint matches nothing.
type Constraint struct {
	// If Logical is non-nil, all other fields are ignored.
	Logical *LogicalConstraint `json:"logical,omitempty"`

	// Anything, if true, matches all blobs.
	Anything bool `json:"anything,omitempty"`

	CamliType     string `json:"camliType,omitempty"`    // camliType of the JSON blob
	AnyCamliType  bool   `json:"anyCamliType,omitempty"` // if true, any schema blob matches
	BlobRefPrefix string `json:"blobRefPrefix,omitempty"`

	File *FileConstraint `json:"file,omitempty"`

	BlobSize *IntConstraint `json:"blobSize,omitempty"`

	Permanode *PermanodeConstraint `json:"permanode,omitempty"`
}

// LogicalConstraint combines two constraints.
type LogicalConstraint struct {
	Op string      `json:"op"` // "and", "or", "xor", "not"
	A  *Constraint `json:"a"`
	B  *Constraint `json:"b,omitempty"` // not valid if Op == "not"
}

// StringConstraint matches a string.
// All non-zero fields must match.
type StringConstraint struct {
	Empty           bool   `json:"empty,omitempty"` // matches empty string
	Equals          string `json:"equals,omitempty"`
	Contains        string `json:"contains,omitempty"`
	HasPrefix       string `json:"hasPrefix,omitempty"`
	HasSuffix       string `json:"hasSuffix,omitempty"`
	CaseInsensitive bool   `json:"caseInsensitive,omitempty"`
}

// IntConstraint matches an integer.
type IntConstraint struct {
	Min     int64 `json:"min,omitempty"` // inclusive
	Max     int64 `json:"max,omitempty"` // inclusive. if zero, ignored.
	ZeroMin bool  `json:"zeroMin,omitempty"`
	ZeroMax bool  `json:"zeroMax,omitempty"`
}

// TimeConstraint matches a time.
type TimeConstraint struct {
	Before time.Time     `json:"before,omitempty"` // <
	After  time.Time     `json:"after,omitempty"`  // >=
	InLast time.Duration `json:"inLast,omitempty"` // >=
}

// FileConstraint matches "file" schema blobs.
// All non-zero fields must match.
type FileConstraint struct {
	FileSize *IntConstraint    `json:"fileSize,omitempty"`
	IsImage  bool              `json:"isImage,omitempty"`
	FileName *StringConstraint `json:"fileName,omitempty"`
	MIMEType *StringConstraint `json:"mimeType,omitempty"`
	Time     *TimeConstraint   `json:"time,omitempty"`
	ModTime  *TimeConstraint   `json:"modTime,omitempty"`

	// WholeRef matches the digest of the whole file contents.
	WholeRef blob.Ref `json:"wholeRef,omitempty"`
}

// PermanodeConstraint matches permanodes.
// All non-zero fields must match.
type PermanodeConstraint struct {
	// At specifies the time at which to pretend we're resolving
	// attributes. Attribute claims after this point in time are
	// ignored. If zero, the current time is used.
	At time.Time `json:"at,omitempty"`

	// ModTime optionally matches a permanode's last modified time.
	ModTime *TimeConstraint `json:"modTime,omitempty"`

	// Attr is the attribute to match, e.g. "camliContent",
	// "camliMember", "tag", "title".
	Attr         string            `json:"attr,omitempty"`
	Value        string            `json:"value,omitempty"`    // if non-zero, absolute match
	ValueAny     []string          `json:"valueAny,omitempty"` // value is any of these strings
	ValueMatches *StringConstraint `json:"valueMatches,omitempty"`
	// ValueInSet matches if the attribute value is a blobref in
	// the set of blobs matching this constraint.
	ValueInSet *Constraint `json:"valueInSet,omitempty"`

	// Location, if non-nil, matches permanodes having a location
	// within the given area.
	Location *LocationConstraint `json:"location,omitempty"`

	// SkipHidden skips permanodes of known hidden types
	// (e.g. tombstoned or defVisibility:hide nodes).
	SkipHidden bool `json:"skipHidden,omitempty"`
}

// LocationConstraint matches blobs having a location within the given
// bounds, or any location at all if Any is set.
type LocationConstraint struct {
	// Any, if true, matches any location.
	Any bool `json:"any,omitempty"`

	// North, South, East, West bound the location area.
	// A west > east area spans the antimeridian.
	North float64 `json:"north,omitempty"`
	South float64 `json:"south,omitempty"`
	East  float64 `json:"east,omitempty"`
	West  float64 `json:"west,omitempty"`
}
