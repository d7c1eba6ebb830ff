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
	"time"

	"perkeep.org/webui/pkg/blob"
)

// ClaimsResponse is the JSON response from
// <searchRoot>/camli/search/claims.
type ClaimsResponse struct {
	Claims []*ClaimInfo `json:"claims"`
}

// ClaimInfo is one claim in a ClaimsResponse, in claim-date order.
type ClaimInfo struct {
	BlobRef   blob.Ref  `json:"blobref"`
	Signer    blob.Ref  `json:"signer"`
	Permanode blob.Ref  `json:"permanode"`
	Date      time.Time `json:"date"`
	Type      string    `json:"type"`
	Attr      string    `json:"attr,omitempty"`
	Value     string    `json:"value,omitempty"`
}

// SignerPathsResponse is the JSON response from
// <searchRoot>/camli/search/signerpaths.
type SignerPathsResponse struct {
	Paths []*SignerPath `json:"paths"`
	Meta  MetaMap       `json:"meta,omitempty"`
	Error string        `json:"error,omitempty"`
}

// SignerPath is one camliPath edge from a base permanode to a target.
type SignerPath struct {
	ClaimRef blob.Ref `json:"claimRef"`
	BaseRef  blob.Ref `json:"baseRef"`
	Suffix   string   `json:"suffix"`
}

// SignerAttrValueResponse is the JSON response from
// <searchRoot>/camli/search/signerattrvalue.
type SignerAttrValueResponse struct {
	Permanode blob.Ref `json:"permanode"`
	Meta      MetaMap  `json:"meta,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// WholeDigestResponse is the JSON response from
// <searchRoot>/camli/search/files, listing the file schema blobs
// whose whole contents have the requested digest.
type WholeDigestResponse struct {
	Files []blob.Ref `json:"files"`
}
