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

// Package nodeattr contains constants for permanode attribute names.
package nodeattr

const (
	// Type is the permanode type ("camliNodeType").
	// Importer-specific ones are of the form "domain.com:objecttype".
	Type = "camliNodeType"

	// CamliContent is "camliContent", the blobref of the permanode's
	// content. For files or images, the camliContent is the fileref
	// (the blobref of the "file" schema blob).
	CamliContent = "camliContent"

	// CamliContentImage is "camliContentImage", an alternative image
	// representing the permanode, e.g. a thumbnail source for a
	// non-image node.
	CamliContentImage = "camliContentImage"

	// CamliMember is "camliMember", the blobref of a member of this
	// (set-style) permanode.
	CamliMember = "camliMember"

	// CamliPathPrefix is the prefix of the "camliPath:<suffix>"
	// attribute family naming a permanode's children.
	CamliPathPrefix = "camliPath:"

	// CamliRoot is the name of the root permanode of a publishing
	// root.
	CamliRoot = "camliRoot"

	// Access is "camliAccess", the access control attribute.
	Access = "camliAccess"

	// Title is http://schema.org/title
	Title = "title"

	// Tag is a free-form tag value.
	Tag = "tag"

	// Description is http://schema.org/description
	// Value is plain text, no HTML, newlines are newlines.
	Description = "description"

	// Location is free-flowing text definition of a location or
	// place, such as a city name, or a full postal address.
	Location = "location"

	// DateCreated is http://schema.org/dateCreated in RFC 3339
	// format.
	DateCreated = "dateCreated"

	// DateModified is http://schema.org/dateModified, in RFC 3339
	// format.
	DateModified = "dateModified"

	Latitude  = "latitude"
	Longitude = "longitude"
)
