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

package search

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"perkeep.org/webui/pkg/blob"
	"perkeep.org/webui/pkg/schema/nodeattr"
	"perkeep.org/webui/pkg/types/camtypes"
)

// DescribeRequest is the JSON description request, either as the
// "describe" member of a search query, or sent on its own to
// <searchRoot>/camli/search/describe.
type DescribeRequest struct {
	// BlobRefs are the blobs to describe. If length zero, BlobRef
	// is used.
	BlobRefs []blob.Ref `json:"blobrefs,omitempty"`

	// BlobRef is the blob to describe.
	BlobRef blob.Ref `json:"blobref,omitempty"`

	// Depth is the optional traversal depth to describe from the
	// root BlobRef. If zero, the server default is used.
	Depth int `json:"depth,omitempty"`

	// MaxDirChildren optionally limits the number of children
	// fetched when describing a static directory.
	MaxDirChildren int `json:"maxDirChildren,omitempty"`

	// At specifies the time at which to evaluate attribute claims.
	// If nil, all claims are considered.
	At *time.Time `json:"at,omitempty"`

	// Rules instruct the server how to keep expanding the described
	// set. All rules are tested and matching rules grow the response
	// set until no rule matches anything new.
	Rules []*DescribeRule `json:"rules,omitempty"`
}

// DescribeRule is one expansion rule of a DescribeRequest.
type DescribeRule struct {
	// All non-zero 'If*' fields must match for the rule to match:

	// IfResultRoot, if true, only matches blobs that were part of
	// the original search results, not blobs expanded later.
	IfResultRoot bool `json:"ifResultRoot,omitempty"`

	// IfCamliNodeType matches permanodes whose "camliNodeType"
	// attribute equals this value.
	IfCamliNodeType string `json:"ifCamliNodeType,omitempty"`

	// Attrs lists attributes whose blobref values to describe. A
	// value ending in "*" matches attribute name prefixes
	// (e.g. "camliPath:*" or "*").
	Attrs []string `json:"attrs,omitempty"`

	// Rules are run on the described results of Attrs.
	Rules []*DescribeRule `json:"rules,omitempty"`
}

// DescribeResponse is the JSON response from
// <searchRoot>/camli/search/describe.
type DescribeResponse struct {
	Meta MetaMap `json:"meta"`
}

// UnmarshalJSON links each described blob back to the response's meta
// map, so navigation methods like Title and PeerBlob can resolve
// references.
func (r *DescribeResponse) UnmarshalJSON(b []byte) error {
	type wireResponse DescribeResponse
	var w wireResponse
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*r = DescribeResponse(w)
	r.Meta.Bind()
	return nil
}

// A MetaMap is a map from blobref string to its description.
type MetaMap map[string]*DescribedBlob

// Get returns the description of br, or nil if br is zero or not in
// the map.
func (m MetaMap) Get(br blob.Ref) *DescribedBlob {
	if !br.Valid() {
		return nil
	}
	return m[br.String()]
}

// Bind points every description at m itself, so that navigation
// methods like Title and PeerBlob resolve against m. Callers merging
// descriptions from several responses into one map must re-bind the
// merged map, or lookups stay confined to each description's original
// response.
func (m MetaMap) Bind() {
	for refStr, db := range m {
		if db == nil {
			continue
		}
		db.meta = m
		if !db.BlobRef.Valid() {
			db.BlobRef = blob.ParseOrZero(refStr)
		}
	}
}

// DescribedBlob is the description of one blob in a MetaMap.
type DescribedBlob struct {
	BlobRef   blob.Ref `json:"blobRef"`
	CamliType string   `json:"camliType,omitempty"`
	Size      int64    `json:"size"`

	// if camliType "permanode"
	Permanode *DescribedPermanode `json:"permanode,omitempty"`

	// if camliType "file"
	File *camtypes.FileInfo `json:"file,omitempty"`
	// if camliType "directory"
	Dir *camtypes.FileInfo `json:"dir,omitempty"`
	// if camliType "file", and File.IsImage()
	Image *camtypes.ImageInfo `json:"image,omitempty"`
	// if camliType "file" and media file
	MediaTags map[string]string `json:"mediaTags,omitempty"`

	// if camliType "directory"
	DirChildren []blob.Ref `json:"dirChildren,omitempty"`

	// Location is the blob's location, directly or via its
	// content or a referenced venue permanode.
	Location *camtypes.Location `json:"location,omitempty"`

	// Stub is set if this blob was referenced but not described.
	Stub bool `json:"-"`

	meta MetaMap // the map this description was decoded into
}

// DomID returns a DOM element id string for the described blob.
func (b *DescribedBlob) DomID() string {
	if b == nil {
		return ""
	}
	return b.BlobRef.DomID()
}

// Title returns the best display title for the blob: its permanode's
// "title" attribute, the title of its camliContent, or its file or
// directory name. It returns "" if none apply.
func (b *DescribedBlob) Title() string {
	depth := 0
	for b != nil && depth < 3 {
		if b.Permanode != nil {
			if t := b.Permanode.Attr.Get(nodeattr.Title); t != "" {
				return t
			}
			if cref, ok := b.ContentRef(); ok {
				b = b.meta.Get(cref)
				depth++
				continue
			}
		}
		if b.File != nil {
			return b.File.FileName
		}
		if b.Dir != nil {
			return b.Dir.FileName
		}
		return ""
	}
	return ""
}

// Description returns the permanode's "description" attribute, if any.
func (b *DescribedBlob) Description() string {
	if b == nil || b.Permanode == nil {
		return ""
	}
	return b.Permanode.Attr.Get(nodeattr.Description)
}

// ContentRef returns the blobref of the permanode's camliContent
// attribute, if it is a valid blobref.
func (b *DescribedBlob) ContentRef() (br blob.Ref, ok bool) {
	if b != nil && b.Permanode != nil {
		if cref := b.Permanode.Attr.Get(nodeattr.CamliContent); cref != "" {
			return blob.Parse(cref)
		}
	}
	return
}

// ContentImageRef returns the blobref of the permanode's
// camliContentImage attribute, if it is a valid blobref.
func (b *DescribedBlob) ContentImageRef() (br blob.Ref, ok bool) {
	if b != nil && b.Permanode != nil {
		if cref := b.Permanode.Attr.Get(nodeattr.CamliContentImage); cref != "" {
			return blob.Parse(cref)
		}
	}
	return
}

// PermanodeFile returns in path the blobref of the described permanode
// and the blobref of its File camliContent.
// If b isn't a permanode, or doesn't have a camliContent that
// is a file blob, ok is false.
func (b *DescribedBlob) PermanodeFile() (path []blob.Ref, fi *camtypes.FileInfo, ok bool) {
	if b == nil || b.Permanode == nil {
		return
	}
	if cref, ok2 := b.ContentRef(); ok2 {
		if cdes := b.meta.Get(cref); cdes != nil && cdes.File != nil {
			return []blob.Ref{b.BlobRef, cdes.BlobRef}, cdes.File, true
		}
	}
	return
}

// Members returns all of b's children, as given by b's camliMember and
// camliPath:* attributes. Only the first entry for a given camliPath
// attribute is used.
func (b *DescribedBlob) Members() []*DescribedBlob {
	if b == nil || b.Permanode == nil {
		return nil
	}
	m := make([]*DescribedBlob, 0)
	for _, bstr := range b.Permanode.Attr[nodeattr.CamliMember] {
		if br, ok := blob.Parse(bstr); ok {
			m = append(m, b.PeerBlob(br))
		}
	}
	for k, bstrs := range b.Permanode.Attr {
		if strings.HasPrefix(k, nodeattr.CamliPathPrefix) && len(bstrs) > 0 {
			if br, ok := blob.Parse(bstrs[0]); ok {
				m = append(m, b.PeerBlob(br))
			}
		}
	}
	return m
}

// PeerBlob returns the description of br from the same response as b.
// The returned DescribedBlob is never nil: if br was not described, a
// stub with its Stub field set is returned.
func (b *DescribedBlob) PeerBlob(br blob.Ref) *DescribedBlob {
	if b != nil && b.meta != nil {
		if peer := b.meta.Get(br); peer != nil {
			return peer
		}
		return &DescribedBlob{meta: b.meta, BlobRef: br, Stub: true}
	}
	return &DescribedBlob{BlobRef: br, Stub: true}
}

// DescribedPermanode is the description of a permanode: its current
// attributes, as resolved from its signed claims.
type DescribedPermanode struct {
	Attr    url.Values `json:"attr"` // a map[string][]string
	ModTime time.Time  `json:"modtime,omitempty"`
}

// IsContainer reports whether the permanode has either named
// ("camliPath:"-prefixed) or unnamed ("camliMember") member
// attributes.
func (dp *DescribedPermanode) IsContainer() bool {
	if members := dp.Attr[nodeattr.CamliMember]; len(members) > 0 {
		return true
	}
	for k := range dp.Attr {
		if strings.HasPrefix(k, nodeattr.CamliPathPrefix) {
			return true
		}
	}
	return false
}

// UIDescribeRequest returns the describe request the browser UI sends
// with its search queries: depth 1 from each result, expanding
// camliContent and camliContentImage, the venues of checkin
// permanodes, and the photos of venue permanodes.
func UIDescribeRequest() *DescribeRequest {
	return &DescribeRequest{
		Depth: 1,
		Rules: []*DescribeRule{
			{
				Attrs: []string{nodeattr.CamliContent, nodeattr.CamliContentImage},
			},
			{
				IfCamliNodeType: "foursquare.com:checkin",
				Attrs:           []string{"foursquareVenuePermanode"},
			},
			{
				IfCamliNodeType: "foursquare.com:venue",
				Attrs:           []string{"camliPath:photos"},
				Rules: []*DescribeRule{
					{
						Attrs: []string{"camliPath:*"},
					},
				},
			},
		},
	}
}
