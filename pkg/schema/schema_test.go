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

package schema

import (
	"strings"
	"testing"
	"time"

	"perkeep.org/webui/pkg/blob"
)

const testRef = "sha1-0beec7b5ea3f0fdbc95d0dd47f3c5bc275da8abf"

func setFixedClaimTime(t *testing.T, rfc3339 string) {
	t.Helper()
	fixed, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		t.Fatal(err)
	}
	old := clockNow
	clockNow = func() time.Time { return fixed }
	t.Cleanup(func() { clockNow = old })
}

func TestCanonicalJSONHeader(t *testing.T) {
	setFixedClaimTime(t, "2011-05-29T00:21:33Z")
	bb := NewSetAttributeClaim(blob.MustParse(testRef), "title", "alpha")
	j, err := bb.JSON()
	if err != nil {
		t.Fatal(err)
	}
	const wantPrefix = "{\"camliVersion\": 1,\n"
	if !strings.HasPrefix(j, wantPrefix) {
		t.Errorf("canonical JSON starts %q; want prefix %q", j[:30], wantPrefix)
	}
	if !strings.Contains(j, "  \"attribute\": \"title\"") {
		t.Errorf("canonical JSON missing two-space indented attribute; got:\n%s", j)
	}
	// The splice must not disturb the builder's map.
	if _, ok := bb.m["camliVersion"]; !ok {
		t.Error("camliVersion key lost from builder map after JSON()")
	}
	// Serialization is deterministic.
	j2, _ := bb.JSON()
	if j != j2 {
		t.Error("JSON() not deterministic")
	}
}

func TestClaims(t *testing.T) {
	setFixedClaimTime(t, "2011-05-29T00:21:33Z")
	pn := blob.MustParse(testRef)
	tests := []struct {
		name string
		bb   *Builder
		want string
	}{
		{
			name: "set",
			bb:   NewSetAttributeClaim(pn, "title", "alpha"),
			want: `{"camliVersion": 1,
  "attribute": "title",
  "camliType": "claim",
  "claimDate": "2011-05-29T00:21:33Z",
  "claimType": "set-attribute",
  "permaNode": "` + testRef + `",
  "value": "alpha"
}`,
		},
		{
			name: "add",
			bb:   NewAddAttributeClaim(pn, "tag", "funny"),
			want: `{"camliVersion": 1,
  "attribute": "tag",
  "camliType": "claim",
  "claimDate": "2011-05-29T00:21:33Z",
  "claimType": "add-attribute",
  "permaNode": "` + testRef + `",
  "value": "funny"
}`,
		},
		{
			name: "del-one",
			bb:   NewDelAttributeClaim(pn, "tag", "funny"),
			want: `{"camliVersion": 1,
  "attribute": "tag",
  "camliType": "claim",
  "claimDate": "2011-05-29T00:21:33Z",
  "claimType": "del-attribute",
  "permaNode": "` + testRef + `",
  "value": "funny"
}`,
		},
		{
			name: "del-all",
			bb:   NewDelAttributeClaim(pn, "tag", ""),
			want: `{"camliVersion": 1,
  "attribute": "tag",
  "camliType": "claim",
  "claimDate": "2011-05-29T00:21:33Z",
  "claimType": "del-attribute",
  "permaNode": "` + testRef + `"
}`,
		},
		{
			name: "delete",
			bb:   NewDeleteClaim(pn),
			want: `{"camliVersion": 1,
  "camliType": "claim",
  "claimDate": "2011-05-29T00:21:33Z",
  "claimType": "delete",
  "target": "` + testRef + `"
}`,
		},
	}
	for _, tt := range tests {
		got, err := tt.bb.JSON()
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s claim JSON:\n%s\nwant:\n%s", tt.name, got, tt.want)
		}
	}
}

func TestClaimDateWholeSeconds(t *testing.T) {
	// Claims record their date at whole-second precision even
	// when the clock carries fractional seconds.
	setFixedClaimTime(t, "2011-05-29T00:21:33.123456789Z")
	pn := blob.MustParse(testRef)
	claims := []struct {
		name string
		bb   *Builder
	}{
		{"set", NewSetAttributeClaim(pn, "title", "alpha")},
		{"add", NewAddAttributeClaim(pn, "tag", "funny")},
		{"del", NewDelAttributeClaim(pn, "tag", "")},
		{"delete", NewDeleteClaim(pn)},
		{"share", NewShareRef(ShareHaveRef, pn, true)},
	}
	for _, tt := range claims {
		j, err := tt.bb.JSON()
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if !strings.Contains(j, `"claimDate": "2011-05-29T00:21:33Z"`) {
			t.Errorf("%s claim date not truncated to seconds; got:\n%s", tt.name, j)
		}
	}
}

func TestBlobRoundTrip(t *testing.T) {
	setFixedClaimTime(t, "2013-02-03T04:05:06Z")
	pn := blob.MustParse(testRef)
	b := NewSetAttributeClaim(pn, "title", "alpha").Blob()

	// The blob's ref is the hash of its canonical bytes.
	if want := blob.RefFromString(b.JSON()); b.BlobRef() != want {
		t.Errorf("BlobRef = %v; want %v", b.BlobRef(), want)
	}

	back, err := BlobFromReader(b.BlobRef(), strings.NewReader(b.JSON()))
	if err != nil {
		t.Fatal(err)
	}
	if back.Type() != "claim" || back.ClaimType() != SetAttributeClaim {
		t.Errorf("parsed type/claimType = %q/%q", back.Type(), back.ClaimType())
	}
	if back.Permanode() != pn {
		t.Errorf("parsed permanode = %v; want %v", back.Permanode(), pn)
	}
	if back.Attribute() != "title" || back.Value() != "alpha" {
		t.Errorf("parsed attr/value = %q/%q", back.Attribute(), back.Value())
	}
	cd, err := back.ClaimDate()
	if err != nil {
		t.Fatal(err)
	}
	if got := RFC3339FromTime(cd); got != "2013-02-03T04:05:06Z" {
		t.Errorf("claimDate = %q", got)
	}
}

func TestBlobFromReaderTrailingJunk(t *testing.T) {
	b := NewUnsignedPermanode().Blob()
	if _, err := BlobFromReader(b.BlobRef(), strings.NewReader(b.JSON()+"\n \t")); err != nil {
		t.Errorf("trailing whitespace rejected: %v", err)
	}
	if _, err := BlobFromReader(b.BlobRef(), strings.NewReader(b.JSON()+"x")); err == nil {
		t.Error("trailing junk accepted")
	}
}

func TestNewUnsignedPermanode(t *testing.T) {
	a := NewUnsignedPermanode().Blob()
	b := NewUnsignedPermanode().Blob()
	if a.BlobRef() == b.BlobRef() {
		t.Error("two random permanodes have equal refs")
	}
	if a.Type() != "permanode" {
		t.Errorf("type = %q", a.Type())
	}
	if !strings.Contains(a.JSON(), `"random"`) {
		t.Error("permanode JSON missing random field")
	}
}

func TestRFC3339(t *testing.T) {
	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Unix(1336036562, 0), "2012-05-03T08:36:02Z"},
		{time.Unix(1336036562, 255e6), "2012-05-03T08:36:02.255Z"},
	}
	for _, tt := range tests {
		if got := RFC3339FromTime(tt.in.UTC()); got != tt.want {
			t.Errorf("RFC3339FromTime(%v) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestSetClaimDatePanicsOnNonClaim(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	NewUnsignedPermanode().SetClaimDate(time.Now())
}
