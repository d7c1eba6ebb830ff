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

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"perkeep.org/webui/pkg/blob"
	"perkeep.org/webui/pkg/schema"
	"perkeep.org/webui/pkg/search"
)

// testServer is a fake server covering the endpoints the client
// talks to. Zero-value handlers return 404.
type testServer struct {
	t *testing.T

	mu       sync.Mutex
	requests []string // "METHOD path"

	signerRef blob.Ref

	// per-endpoint hooks; nil means 404
	query        func(sq *search.SearchQuery) interface{}
	wholeDigest  func(digest string) []blob.Ref
	verifyRef    blob.Ref // echoed in X-Camli-Contents on HEAD
	uploadedFile blob.Ref // returned by the upload helper

	srv *httptest.Server
	cl  *Client
}

func newTestServer(t *testing.T) *testServer {
	ts := &testServer{
		t:         t,
		signerRef: blob.RefFromString("fake public key"),
	}
	ts.srv = httptest.NewServer(http.HandlerFunc(ts.handle))
	t.Cleanup(ts.srv.Close)
	cl, err := New(OptionServer(ts.srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	ts.cl = cl
	return ts
}

func (ts *testServer) logReq(r *http.Request) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.requests = append(ts.requests, r.Method+" "+r.URL.Path)
}

func (ts *testServer) countRequests(substr string) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	n := 0
	for _, r := range ts.requests {
		if strings.Contains(r, substr) {
			n++
		}
	}
	return n
}

func (ts *testServer) handle(w http.ResponseWriter, r *http.Request) {
	ts.logReq(r)
	switch {
	case r.URL.Path == "/":
		json.NewEncoder(w).Encode(&Config{
			BlobRoot:       "/bs/",
			SearchRoot:     "/my-search/",
			JSONSignRoot:   "/sighelper/",
			StatusRoot:     "/status/",
			UploadHelper:   "/ui/?camli.mode=uploadhelper",
			DownloadHelper: "/ui/download/",
			WSAuthToken:    "wstoken",
			Signing: &SignerConfig{
				PublicKeyBlobRef: ts.signerRef,
				SignHandler:      "/sighelper/camli/sig/sign",
			},
		})
	case r.URL.Path == "/sighelper/camli/sig/sign":
		body, _ := io.ReadAll(r.Body)
		vals, err := url.ParseQuery(string(body))
		if err != nil || vals.Get("json") == "" {
			http.Error(w, "bad sign request", 400)
			return
		}
		// "Sign" by appending a fake signature footer.
		clear := vals.Get("json")
		signed := strings.TrimSuffix(clear, "}") + `,"camliSig":"fake"}` + "\n"
		io.WriteString(w, signed)
	case r.URL.Path == "/bs/camli/upload":
		if err := r.ParseMultipartForm(16 << 20); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		var received []map[string]interface{}
		for name, files := range r.MultipartForm.File {
			f, _ := files[0].Open()
			all, _ := io.ReadAll(f)
			f.Close()
			if blob.RefFromBytes(all).String() != name {
				http.Error(w, "part name is not the digest of its contents", 400)
				return
			}
			received = append(received, map[string]interface{}{
				"blobRef": name,
				"size":    len(all),
			})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"received": received})
	case r.URL.Path == "/my-search/camli/search/query":
		if ts.query == nil {
			http.NotFound(w, r)
			return
		}
		sq := new(search.SearchQuery)
		if err := json.NewDecoder(r.Body).Decode(sq); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		json.NewEncoder(w).Encode(ts.query(sq))
	case r.URL.Path == "/my-search/camli/search/files":
		if ts.wholeDigest == nil {
			http.NotFound(w, r)
			return
		}
		refs := ts.wholeDigest(r.FormValue("wholedigest"))
		if refs == nil {
			refs = []blob.Ref{}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"files": refs})
	case strings.HasPrefix(r.URL.Path, "/ui/download/") && r.Method == "HEAD":
		if ts.verifyRef.Valid() && r.URL.Query().Get("verifycontents") == ts.verifyRef.String() {
			w.Header().Set("X-Camli-Contents", ts.verifyRef.String())
		}
		w.WriteHeader(200)
	case r.URL.Path == "/ui/" && r.URL.Query().Get("camli.mode") == "uploadhelper":
		if err := r.ParseMultipartForm(16 << 20); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"got": []map[string]interface{}{
				{"filename": "whatever", "fileref": ts.uploadedFile.String()},
			},
		})
	case r.URL.Path == "/status/status.json":
		json.NewEncoder(w).Encode(map[string]interface{}{"version": "test-server"})
	default:
		http.NotFound(w, r)
	}
}

func TestDiscovery(t *testing.T) {
	ts := newTestServer(t)
	sr, err := ts.cl.SearchRoot()
	if err != nil {
		t.Fatal(err)
	}
	if want := ts.srv.URL + "/my-search/"; sr != want {
		t.Errorf("SearchRoot = %q; want %q", sr, want)
	}
	wsURL := ts.cl.WebSocketURL()
	if !strings.HasPrefix(wsURL, "ws://") || !strings.HasSuffix(wsURL, "/camli/search/ws?authtoken=wstoken") {
		t.Errorf("WebSocketURL = %q", wsURL)
	}
}

func TestCreatePermanodeAndSetTitle(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	pn, err := ts.cl.CreatePermanode(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !pn.Valid() {
		t.Fatal("invalid permanode ref")
	}
	claim, err := ts.cl.SetAttribute(ctx, pn, "title", "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if !claim.Valid() {
		t.Fatal("invalid claim ref")
	}
	if got := ts.countRequests("/bs/camli/upload"); got != 2 {
		t.Errorf("got %d uploads; want 2", got)
	}
	if got := ts.countRequests("/sighelper/"); got != 2 {
		t.Errorf("got %d sign requests; want 2", got)
	}
}

func TestShare(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	target := blob.RefFromString("shared bytes")
	shareRef, err := ts.cl.Share(ctx, target, true)
	if err != nil {
		t.Fatal(err)
	}
	if !shareRef.Valid() {
		t.Fatal("invalid share ref")
	}
	if got := ts.countRequests("/bs/camli/upload"); got != 1 {
		t.Errorf("got %d uploads; want 1", got)
	}
	if got := ts.countRequests("/sighelper/"); got != 1 {
		t.Errorf("got %d sign requests; want 1", got)
	}
}

func TestSigningFailedBeforeRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&Config{BlobRoot: "/bs/"})
	}))
	defer srv.Close()
	cl, err := New(OptionServer(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	_, err = cl.SetAttribute(context.Background(), blob.RefFromString("p"), "title", "x")
	if KindOf(err) != KindSigningFailed {
		t.Errorf("err = %v; want kind %v", err, KindSigningFailed)
	}
}

func TestBuildQuery(t *testing.T) {
	sq, err := BuildQuery("is:image", QueryOpts{Limit: 50})
	if err != nil {
		t.Fatal(err)
	}
	if sq.Expression != "is:image" || sq.Sort != search.CreatedDesc || sq.Limit != 50 {
		t.Errorf("unexpected query: %+v", sq)
	}

	c := &search.Constraint{Anything: true}
	sq, err = BuildQuery(c, QueryOpts{Sort: search.MapSort})
	if err != nil {
		t.Fatal(err)
	}
	if sq.Constraint != c || sq.Sort != search.MapSort {
		t.Errorf("unexpected query: %+v", sq)
	}

	_, err = BuildQuery("x", QueryOpts{Continue: "token", Around: blob.RefFromString("a")})
	if KindOf(err) != KindBadRequest {
		t.Errorf("around+continue err = %v; want bad-request", err)
	}
}

func TestQuery(t *testing.T) {
	ts := newTestServer(t)
	ref := blob.RefFromString("hit")
	ts.query = func(sq *search.SearchQuery) interface{} {
		if sq.Expression != "tag:x" {
			ts.t.Errorf("server got expression %q", sq.Expression)
		}
		return &search.SearchResult{
			Blobs: []*search.SearchResultBlob{{Blob: ref}},
		}
	}
	sq, err := BuildQuery("tag:x", QueryOpts{})
	if err != nil {
		t.Fatal(err)
	}
	res, err := ts.cl.Query(context.Background(), sq)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Blobs) != 1 || res.Blobs[0].Blob != ref {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestUploadFileDedup(t *testing.T) {
	ts := newTestServer(t)
	contents := bytes.Repeat([]byte("zab"), 5<<20/3)
	wholeRef := blob.RefFromBytes(contents)
	fileSchema := blob.RefFromString("the file schema blob")

	ts.wholeDigest = func(digest string) []blob.Ref {
		if digest != wholeRef.String() {
			ts.t.Errorf("wholedigest lookup for %q; want %q", digest, wholeRef)
		}
		return []blob.Ref{fileSchema}
	}
	ts.verifyRef = wholeRef

	got, err := ts.cl.UploadFile(context.Background(), "big.bin", time.Time{}, bytes.NewReader(contents))
	if err != nil {
		t.Fatal(err)
	}
	if got != fileSchema {
		t.Errorf("UploadFile = %v; want existing %v", got, fileSchema)
	}
	if n := ts.countRequests("GET /my-search/camli/search/files"); n != 1 {
		t.Errorf("%d wholedigest lookups; want 1", n)
	}
	if n := ts.countRequests("HEAD /ui/download/"); n != 1 {
		t.Errorf("%d verifycontents HEADs; want 1", n)
	}
	if n := ts.countRequests("POST /ui/"); n != 0 {
		t.Errorf("%d upload helper POSTs; want 0 (dedup)", n)
	}
}

func TestUploadFileNoCandidate(t *testing.T) {
	ts := newTestServer(t)
	ts.wholeDigest = func(digest string) []blob.Ref { return nil }
	ts.uploadedFile = blob.RefFromString("new file schema")

	got, err := ts.cl.UploadFile(context.Background(), "new.bin", time.Now(), strings.NewReader("fresh bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if got != ts.uploadedFile {
		t.Errorf("UploadFile = %v; want %v", got, ts.uploadedFile)
	}
	if n := ts.countRequests("POST /ui/"); n != 1 {
		t.Errorf("%d upload helper POSTs; want 1", n)
	}
}

func TestGetBlobContentsVerifies(t *testing.T) {
	contents := []byte("some blob")
	good := blob.RefFromBytes(contents)
	bad := blob.RefFromString("some other blob")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			json.NewEncoder(w).Encode(&Config{BlobRoot: "/bs/"})
			return
		}
		if strings.HasPrefix(r.URL.Path, "/bs/camli/") {
			w.Write(contents)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()
	cl, err := New(OptionServer(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	got, err := cl.GetBlobContents(ctx, good)
	if err != nil || !bytes.Equal(got, contents) {
		t.Errorf("GetBlobContents = %q, %v", got, err)
	}
	_, err = cl.GetBlobContents(ctx, bad)
	if KindOf(err) != KindVerifyMismatch {
		t.Errorf("mismatched fetch err = %v; want verify-mismatch", err)
	}
}

func TestAddMembers(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	items := []blob.Ref{
		blob.RefFromString("item one"),
		blob.RefFromString("item two"),
		blob.RefFromString("item three"),
	}
	parent, err := ts.cl.AddMembers(ctx, blob.Ref{}, true, "My Set", items)
	if err != nil {
		t.Fatal(err)
	}
	if !parent.Valid() {
		t.Fatal("invalid parent ref")
	}
	// One permanode upload plus three membership claims; the title
	// claim is best-effort and may or may not have landed yet.
	if n := ts.countRequests("/bs/camli/upload"); n < 4 {
		t.Errorf("%d uploads; want at least 4", n)
	}
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t)
	st, err := ts.cl.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Version != "test-server" {
		t.Errorf("Version = %q", st.Version)
	}
}

func TestClaimSignedBytesMatchRef(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	pn := blob.RefFromString("some permanode")
	signed, err := ts.cl.Sign(ctx, schema.NewSetAttributeClaim(pn, "tag", "x"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(signed, `{"camliVersion": 1,`) {
		t.Errorf("signed blob lost its canonical header: %s", signed)
	}
	if !strings.Contains(signed, fmt.Sprintf("%q", ts.signerRef.String())) {
		t.Errorf("signed blob lacks camliSigner: %s", signed)
	}
}
