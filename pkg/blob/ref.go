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

// Package blob defines types to refer to content-addressed,
// immutable blobs.
package blob

import (
	"bytes"
	"crypto/sha1"
	"errors"
	"fmt"
	"hash"
	"reflect"
	"strings"
)

// Pattern is the regular expression which matches a blobref.
// It does not contain ^ or $.
const Pattern = `\b([a-z][a-z0-9]*)-([a-f0-9]+)\b`

// Ref is a reference to a blob.
// It is used as a value type and supports equality (with ==) and the
// ability to use it as a map key.
type Ref struct {
	digest digestType
}

// SizedRef is like a Ref but includes a size.
// It should also be used as a value type and supports equality.
type SizedRef struct {
	Ref  Ref    `json:"blobRef"`
	Size uint32 `json:"size"`
}

func (sr SizedRef) String() string {
	return fmt.Sprintf("[%s; %d bytes]", sr.Ref.String(), sr.Size)
}

// digestType is an interface type, but any type implementing it must
// be of concrete type [N]byte, so it supports equality with ==, which
// is a requirement for Ref.
type digestType interface {
	bytes() []byte
	digestName() string
	newHash() hash.Hash
}

func (r Ref) String() string {
	if r.digest == nil {
		return "<invalid-blob.Ref>"
	}
	dname := r.digest.digestName()
	bs := r.digest.bytes()
	buf := make([]byte, 0, len(dname)+1+len(bs)*2)
	return string(r.appendString(buf))
}

const hexDigit = "0123456789abcdef"

func (r Ref) appendString(buf []byte) []byte {
	buf = append(buf, r.digest.digestName()...)
	buf = append(buf, '-')
	for _, b := range r.digest.bytes() {
		buf = append(buf, hexDigit[b>>4], hexDigit[b&0xf])
	}
	return buf
}

// HashName returns the lowercase hash function name of the reference.
// It panics if r is zero.
func (r Ref) HashName() string {
	if r.digest == nil {
		panic("HashName called on invalid Ref")
	}
	return r.digest.digestName()
}

// Digest returns the lower hex digest of the blobref, without the
// e.g. "sha1-" prefix. It panics if r is zero.
func (r Ref) Digest() string {
	if r.digest == nil {
		panic("Digest called on invalid Ref")
	}
	bs := r.digest.bytes()
	buf := make([]byte, 0, len(bs)*2)
	for _, b := range bs {
		buf = append(buf, hexDigit[b>>4], hexDigit[b&0xf])
	}
	return string(buf)
}

// DigestPrefix returns the first digits hex digits of the digest.
func (r Ref) DigestPrefix(digits int) string {
	v := r.Digest()
	if len(v) < digits {
		return v
	}
	return v[:digits]
}

// DomID returns a DOM element id string for the reference.
func (r Ref) DomID() string {
	if !r.Valid() {
		return ""
	}
	return "camli-" + r.String()
}

// Hash returns a new hash.Hash of r's type.
// It panics if r is zero or of an unsupported type.
func (r Ref) Hash() hash.Hash {
	return r.digest.newHash()
}

// HashMatches reports whether h's digest equals r's.
func (r Ref) HashMatches(h hash.Hash) bool {
	if r.digest == nil {
		return false
	}
	return bytes.Equal(h.Sum(nil), r.digest.bytes())
}

// Valid reports whether the reference is non-zero.
func (r Ref) Valid() bool { return r.digest != nil }

// IsSupported reports whether the reference names a hash function
// this package can compute.
func (r Ref) IsSupported() bool {
	if !r.Valid() {
		return false
	}
	_, ok := metaFromString[r.digest.digestName()]
	return ok
}

// Parse parses s as a blobref and reports whether it was parsed
// successfully.
func Parse(s string) (ref Ref, ok bool) {
	i := strings.Index(s, "-")
	if i < 1 {
		return
	}
	name := s[:i] // e.g. "sha1"
	hex := s[i+1:]
	meta, ok := metaFromString[name]
	if !ok {
		return parseUnknown(name, hex)
	}
	if len(hex) != meta.size*2 {
		return Ref{}, false
	}
	buf := make([]byte, meta.size)
	bad := false
	for i := 0; i < len(hex); i += 2 {
		buf[i/2] = hexVal(hex[i], &bad)<<4 | hexVal(hex[i+1], &bad)
	}
	if bad {
		return Ref{}, false
	}
	return Ref{meta.ctor(buf)}, true
}

// ParseOrZero parses s as a blobref. If s is invalid, a zero Ref is
// returned which can be tested with the Valid method.
func ParseOrZero(s string) Ref {
	ref, ok := Parse(s)
	if !ok {
		return Ref{}
	}
	return ref
}

// MustParse parses s as a blobref and panics on failure.
func MustParse(s string) Ref {
	ref, ok := Parse(s)
	if !ok {
		panic("invalid blobref " + s)
	}
	return ref
}

// ValidRefString reports whether s is a valid blobref string.
func ValidRefString(s string) bool {
	return ParseOrZero(s).Valid()
}

// '0' => 0 ... 'f' => 15, else sets *bad to true.
func hexVal(b byte, bad *bool) byte {
	if '0' <= b && b <= '9' {
		return b - '0'
	}
	if 'a' <= b && b <= 'f' {
		return b - 'a' + 10
	}
	*bad = true
	return 0
}

func validDigestName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if 'a' <= r && r <= 'z' {
			continue
		}
		if '0' <= r && r <= '9' {
			continue
		}
		return false
	}
	return true
}

// parseUnknown parses a blobref whose digest type isn't known to this
// client, e.g. "foo-ababab". The server may understand more hashes
// than we do; such refs stay opaque but equality-comparable.
func parseUnknown(digest, hex string) (ref Ref, ok bool) {
	if !validDigestName(digest) {
		return
	}
	if len(hex) < 2 || len(hex)%2 != 0 || len(hex) > maxOtherDigestLen*2 {
		return
	}
	o := otherDigest{
		name:   digest,
		sumLen: len(hex) / 2,
	}
	bad := false
	for i := 0; i < len(hex); i += 2 {
		o.sum[i/2] = hexVal(hex[i], &bad)<<4 | hexVal(hex[i+1], &bad)
	}
	if bad {
		return
	}
	return Ref{o}, true
}

func fromSHA1Bytes(b []byte) digestType {
	var a sha1Digest
	if len(b) != len(a) {
		panic("bogus sha-1 length")
	}
	copy(a[:], b)
	return a
}

// RefFromHash returns a blobref representing the given hash.
// It panics if the hash isn't of a known type.
func RefFromHash(h hash.Hash) Ref {
	meta, ok := metaFromType[reflect.TypeOf(h)]
	if !ok {
		panic(fmt.Sprintf("unsupported hash type %T", h))
	}
	return Ref{meta.ctor(h.Sum(nil))}
}

// RefFromString returns a blobref of the bytes of s, for the
// currently recommended hash function.
func RefFromString(s string) Ref {
	h := NewHash()
	h.Write([]byte(s))
	return RefFromHash(h)
}

// RefFromBytes returns a blobref of b, for the currently recommended
// hash function.
func RefFromBytes(b []byte) Ref {
	h := NewHash()
	h.Write(b)
	return RefFromHash(h)
}

// NewHash returns a new hash.Hash of the currently recommended hash
// type. Currently this is SHA-1, to agree with the server's blobrefs.
func NewHash() hash.Hash {
	return sha1.New()
}

type sha1Digest [sha1.Size]byte

func (s sha1Digest) digestName() string { return "sha1" }
func (s sha1Digest) bytes() []byte      { return s[:] }
func (s sha1Digest) newHash() hash.Hash { return sha1.New() }

const maxOtherDigestLen = 128

type otherDigest struct {
	name   string
	sum    [maxOtherDigestLen]byte
	sumLen int // bytes in sum that are valid
}

func (d otherDigest) digestName() string { return d.name }
func (d otherDigest) bytes() []byte      { return d.sum[:d.sumLen] }
func (d otherDigest) newHash() hash.Hash { return nil }

var sha1Meta = &digestMeta{
	ctor: fromSHA1Bytes,
	size: sha1.Size,
}

var metaFromString = map[string]*digestMeta{
	"sha1": sha1Meta,
}

var metaFromType = map[reflect.Type]*digestMeta{
	reflect.TypeOf(sha1.New()): sha1Meta,
}

type digestMeta struct {
	ctor func(b []byte) digestType
	size int // bytes of digest
}

// UnmarshalJSON implements json.Unmarshaler.
// JSON null unmarshals to a zero, invalid Ref.
func (r *Ref) UnmarshalJSON(d []byte) error {
	if r.digest != nil {
		return errors.New("blob: can't UnmarshalJSON into a non-zero Ref")
	}
	if string(d) == "null" || string(d) == `""` {
		return nil
	}
	if len(d) < 2 || d[0] != '"' || d[len(d)-1] != '"' {
		return fmt.Errorf("blob: expecting a JSON string to unmarshal, got %q", d)
	}
	refStr := string(d[1 : len(d)-1])
	p, ok := Parse(refStr)
	if !ok {
		return fmt.Errorf("blob: invalid blobref %q", refStr)
	}
	*r = p
	return nil
}

// MarshalJSON implements json.Marshaler.
// An invalid Ref marshals as JSON null.
func (r Ref) MarshalJSON() ([]byte, error) {
	if !r.Valid() {
		return []byte("null"), nil
	}
	dname := r.digest.digestName()
	bs := r.digest.bytes()
	buf := make([]byte, 0, 3+len(dname)+len(bs)*2)
	buf = append(buf, '"')
	buf = r.appendString(buf)
	buf = append(buf, '"')
	return buf, nil
}
