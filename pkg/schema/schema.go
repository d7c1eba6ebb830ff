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

// Package schema manipulates schema blobs: the JSON-encoded blobs
// that describe other blobs, such as permanodes and claims.
//
// A schema blob's blobref is computed from its canonical
// serialization, so this package is careful to always produce the
// same bytes the server would.
package schema

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"perkeep.org/webui/pkg/blob"
)

// MaxSchemaBlobSize is the upper bound for how large a schema blob
// may be.
const MaxSchemaBlobSize = 1 << 20

var ErrNoCamliVersion = errors.New("schema: no camliVersion key in map")

// Claim types.
const (
	SetAttributeClaim = "set-attribute"
	AddAttributeClaim = "add-attribute"
	DelAttributeClaim = "del-attribute"
	DeleteClaim       = "delete"
)

// A Blob is a parsed schema blob.
// It is immutable.
type Blob struct {
	br  blob.Ref
	str string
	ss  *superset
}

// Type returns the blob's "camliType" field.
func (b *Blob) Type() string { return b.ss.Type }

// BlobRef returns the schema blob's blobref.
func (b *Blob) BlobRef() blob.Ref { return b.br }

// JSON returns the JSON bytes of the schema blob.
func (b *Blob) JSON() string { return b.str }

// ClaimDate returns the blob's "claimDate" field, if well-formed.
func (b *Blob) ClaimDate() (time.Time, error) {
	return time.Parse(time.RFC3339, b.ss.ClaimDate)
}

// ClaimType returns the blob's "claimType" field.
func (b *Blob) ClaimType() string { return b.ss.ClaimType }

// Permanode returns the permanode the claim blob modifies.
func (b *Blob) Permanode() blob.Ref { return blob.ParseOrZero(b.ss.Permanode) }

// Target returns a delete claim's target.
func (b *Blob) Target() blob.Ref { return blob.ParseOrZero(b.ss.Target) }

// Attribute returns the claim blob's "attribute" field.
func (b *Blob) Attribute() string { return b.ss.Attribute }

// Value returns the claim blob's "value" field.
func (b *Blob) Value() string { return b.ss.Value }

// Signer returns the blob's "camliSigner" field.
func (b *Blob) Signer() blob.Ref { return blob.ParseOrZero(b.ss.Signer) }

// Builder returns a new Builder with b's fields, for deriving a
// modified blob.
func (b *Blob) Builder() *Builder {
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(b.str), &m); err != nil {
		panic("failed to decode previously-thought-valid Blob's JSON: " + err.Error())
	}
	return &Builder{m}
}

// superset is the convenient json.Unmarshal target covering the
// schema fields the UI reads back.
type superset struct {
	Version int    `json:"camliVersion"`
	Type    string `json:"camliType"`

	Signer string `json:"camliSigner"`
	Sig    string `json:"camliSig"`

	ClaimType string `json:"claimType"`
	ClaimDate string `json:"claimDate"`

	Permanode string `json:"permaNode"`
	Attribute string `json:"attribute"`
	Value     string `json:"value"`

	Target string `json:"target"`

	Random string `json:"random"`

	Members []string `json:"members"`
}

// BlobFromReader parses a schema blob from r, which should be the
// body of the provided blobref.
// The hash is not verified; callers wanting the content-address
// invariant should compare ref against blob.RefFromBytes of the body.
func BlobFromReader(ref blob.Ref, r io.Reader) (*Blob, error) {
	if !ref.Valid() {
		return nil, errors.New("schema.BlobFromReader: invalid blobref")
	}
	all, err := io.ReadAll(io.LimitReader(r, MaxSchemaBlobSize+1))
	if err != nil {
		return nil, err
	}
	if len(all) > MaxSchemaBlobSize {
		return nil, fmt.Errorf("schema: blob %v over expected limit; size=%d", ref, len(all))
	}
	ss := new(superset)
	// Unmarshal (not a streaming Decode) so that anything but
	// whitespace after the JSON object is rejected.
	if err := json.Unmarshal(all, ss); err != nil {
		return nil, fmt.Errorf("schema: parsing blob %v: %w", ref, err)
	}
	return &Blob{br: ref, str: string(all), ss: ss}, nil
}

// A Builder builds a JSON schema blob.
// After mutating the Builder, call Blob to get the built blob.
type Builder struct {
	m map[string]interface{}
}

// NewBuilder returns a new blob schema builder.
// The "camliVersion" field is set to "1" by default and the required
// "camliType" field is NOT set.
func NewBuilder() *Builder {
	return &Builder{map[string]interface{}{
		"camliVersion": 1,
	}}
}

func newMap(version int, ctype string) *Builder {
	return &Builder{map[string]interface{}{
		"camliVersion": version,
		"camliType":    ctype,
	}}
}

// SetType sets the camliType field.
func (bb *Builder) SetType(t string) *Builder {
	bb.m["camliType"] = t
	return bb
}

// Type returns the camliType field.
func (bb *Builder) Type() string {
	if s, ok := bb.m["camliType"].(string); ok {
		return s
	}
	return ""
}

// SetSigner sets the camliSigner field.
func (bb *Builder) SetSigner(signer blob.Ref) *Builder {
	bb.m["camliSigner"] = signer.String()
	return bb
}

// SetClaimDate sets the claimDate field.
// It panics if the Builder isn't building a claim.
func (bb *Builder) SetClaimDate(t time.Time) *Builder {
	if bb.Type() != "claim" {
		// This is a little gross, using panic here, but I
		// don't want all callers to check errors.  This is
		// really a programming error, not a runtime error
		// that would arise from e.g. random user data.
		panic("SetClaimDate called on non-claim *Builder; camliType=" + bb.Type())
	}
	bb.m["claimDate"] = RFC3339FromTime(t)
	return bb
}

// JSON returns the JSON of the blob as built so far, in its canonical
// form.
func (bb *Builder) JSON() (string, error) {
	return mapJSON(bb.m)
}

// Blob builds the Blob. The builder continues to be usable after a
// call to Blob.
func (bb *Builder) Blob() *Blob {
	json, err := bb.JSON()
	if err != nil {
		panic(err)
	}
	ss := new(superset)
	if err := jsonUnmarshalString(json, ss); err != nil {
		panic(err)
	}
	return &Blob{
		str: json,
		ss:  ss,
		br:  blob.RefFromString(json),
	}
}

func jsonUnmarshalString(s string, v interface{}) error {
	return json.Unmarshal([]byte(s), v)
}

// mapJSON returns the map m encoded as JSON in its recommended
// canonical form. The canonical form is readable with newlines and
// indentation, and always starts with the header bytes:
//
//	{"camliVersion":
//
// The camliVersion key is removed from the map while the rest is
// serialized and then spliced back in front, which keeps the
// remaining keys in encoding/json's sorted order, matching the bytes
// the server hashes.
func mapJSON(m map[string]interface{}) (string, error) {
	version, hasVersion := m["camliVersion"]
	if !hasVersion {
		return "", ErrNoCamliVersion
	}
	delete(m, "camliVersion")
	jsonBytes, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", err
	}
	m["camliVersion"] = version
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "{\"camliVersion\": %v,\n", version)
	buf.Write(jsonBytes[2:])
	return buf.String(), nil
}

// NewUnsignedPermanode returns a new random permanode, not yet
// signed.
func NewUnsignedPermanode() *Builder {
	bb := newMap(1, "permanode")
	chars := make([]byte, 20)
	if _, err := io.ReadFull(rand.Reader, chars); err != nil {
		panic("error reading random bytes: " + err.Error())
	}
	bb.m["random"] = base64.StdEncoding.EncodeToString(chars)
	return bb
}

// NewPlannedPermanode returns a permanode with a fixed key. Like
// NewUnsignedPermanode, this builder is also not yet signed. Callers
// of NewPlannedPermanode must sign the map with a fixed claimDate to
// create consistent blobrefs between runs.
func NewPlannedPermanode(key string) *Builder {
	bb := newMap(1, "permanode")
	bb.m["key"] = key
	return bb
}

func newClaim(permaNode blob.Ref, t time.Time, claimType string) *Builder {
	bb := newMap(1, "claim")
	bb.m["permaNode"] = permaNode.String()
	bb.m["claimType"] = claimType
	bb.SetClaimDate(t)
	return bb
}

func newAttrChangeClaim(permaNode blob.Ref, t time.Time, claimType, attr, value string) *Builder {
	bb := newClaim(permaNode, t, claimType)
	bb.m["attribute"] = attr
	bb.m["value"] = value
	return bb
}

// NewSetAttributeClaim returns a claim builder to set attr to value
// on permaNode, replacing any prior values.
func NewSetAttributeClaim(permaNode blob.Ref, attr, value string) *Builder {
	return newAttrChangeClaim(permaNode, claimTimeNow(), SetAttributeClaim, attr, value)
}

// NewAddAttributeClaim returns a claim builder to add value to the
// multi-valued attribute attr on permaNode.
func NewAddAttributeClaim(permaNode blob.Ref, attr, value string) *Builder {
	return newAttrChangeClaim(permaNode, claimTimeNow(), AddAttributeClaim, attr, value)
}

// NewDelAttributeClaim returns a claim builder to remove value from
// the values of attr on permaNode. If value is empty then all the
// values of attr are removed.
func NewDelAttributeClaim(permaNode blob.Ref, attr, value string) *Builder {
	bb := newAttrChangeClaim(permaNode, claimTimeNow(), DelAttributeClaim, attr, value)
	if value == "" {
		delete(bb.m, "value")
	}
	return bb
}

// NewDeleteClaim returns a claim builder to delete target. Until the
// delete claim is itself deleted, the target of target becomes
// invisible.
func NewDeleteClaim(target blob.Ref) *Builder {
	bb := newMap(1, "claim")
	bb.m["target"] = target.String()
	bb.m["claimType"] = DeleteClaim
	bb.SetClaimDate(claimTimeNow())
	return bb
}

// ShareHaveRef is the share type specifying that if you "have the
// reference" (know the blobref of the share blob), then you have
// access to the referenced object from that share blob.
// This is the "send a link to a friend" access model.
const ShareHaveRef = "haveref"

// NewShareRef creates a *Builder for a "share" claim.
func NewShareRef(authType string, target blob.Ref, transitive bool) *Builder {
	bb := newMap(1, "claim")
	bb.m["claimType"] = "share"
	bb.SetClaimDate(claimTimeNow())
	bb.m["authType"] = authType
	bb.m["target"] = target.String()
	bb.m["transitive"] = transitive
	return bb
}

// A StaticSet is an in-memory representation of an unsigned
// "static-set" schema blob.
type StaticSet struct {
	mu   sync.Mutex
	refs []blob.Ref
}

// Add adds ref to the set.
func (ss *StaticSet) Add(ref blob.Ref) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.refs = append(ss.refs, ref)
}

// Blob builds the "static-set" schema blob.
func (ss *StaticSet) Blob() *Blob {
	bb := newMap(1, "static-set")
	ss.mu.Lock()
	defer ss.mu.Unlock()
	members := make([]string, 0, len(ss.refs))
	for _, ref := range ss.refs {
		members = append(members, ref.String())
	}
	sort.Strings(members)
	bb.m["members"] = members
	return bb.Blob()
}

// clockNow is swapped out by tests needing deterministic claim
// dates.
var clockNow = time.Now

// claimTimeNow returns the current time at the whole-second
// precision claims record on the wire.
func claimTimeNow() time.Time {
	return clockNow().Truncate(time.Second)
}

// RFC3339FromTime returns an RFC3339-formatted time in UTC.
// Fractional seconds are only included if the time has fractional
// seconds.
func RFC3339FromTime(t time.Time) string {
	if t.UnixNano()%1e9 == 0 {
		return t.UTC().Format(time.RFC3339)
	}
	return t.UTC().Format(time.RFC3339Nano)
}

var bytesCamliVersion = []byte("camliVersion")

// LikelySchemaBlob returns quickly whether buf likely contains (or is
// the prefix of) a schema blob.
func LikelySchemaBlob(buf []byte) bool {
	if len(buf) == 0 || buf[0] != '{' {
		return false
	}
	return bytes.Contains(buf, bytesCamliVersion)
}
