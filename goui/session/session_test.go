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

package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"perkeep.org/webui/pkg/blob"
	"perkeep.org/webui/pkg/search"
)

type fakeQueryer struct {
	mu      sync.Mutex
	queries []*search.SearchQuery
	fn      func(sq *search.SearchQuery) (*search.SearchResult, error)
	wsURL   string
}

func (f *fakeQueryer) Query(ctx context.Context, sq *search.SearchQuery) (*search.SearchResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, sq)
	f.mu.Unlock()
	return f.fn(sq)
}

func (f *fakeQueryer) WebSocketURL() string { return f.wsURL }

func (f *fakeQueryer) numQueries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func resultBlobs(refs ...blob.Ref) []*search.SearchResultBlob {
	var out []*search.SearchResultBlob
	for _, r := range refs {
		out = append(out, &search.SearchResultBlob{Blob: r})
	}
	return out
}

func blobRefs(res *search.SearchResult) []blob.Ref {
	var out []blob.Ref
	for _, b := range res.Blobs {
		out = append(out, b.Blob)
	}
	return out
}

func refsEqual(a, b []blob.Ref) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var (
	refA = blob.RefFromString("a")
	refB = blob.RefFromString("b")
	refC = blob.RefFromString("c")
	refD = blob.RefFromString("d")
)

func metaFor(refs ...blob.Ref) search.MetaMap {
	m := make(search.MetaMap)
	for _, r := range refs {
		m[r.String()] = &search.DescribedBlob{BlobRef: r, CamliType: "permanode"}
	}
	return m
}

func TestLoadMoreConcatenatesPages(t *testing.T) {
	pages := map[string]*search.SearchResult{
		"": {
			Blobs:    resultBlobs(refA, refB),
			Describe: &search.DescribeResponse{Meta: metaFor(refA, refB)},
			Continue: "p2",
		},
		"p2": {
			Blobs:    resultBlobs(refC),
			Describe: &search.DescribeResponse{Meta: metaFor(refC)},
		},
	}
	fq := &fakeQueryer{fn: func(sq *search.SearchQuery) (*search.SearchResult, error) {
		return pages[sq.Continue], nil
	}}
	var kinds []ChangeKind
	ss := New(fq, "tag:x", WithHandlers(Handlers{
		Changed: func(k ChangeKind) { kinds = append(kinds, k) },
	}))
	defer ss.Close()
	ctx := context.Background()

	if err := ss.LoadMoreResults(ctx); err != nil {
		t.Fatal(err)
	}
	if ss.IsComplete() {
		t.Fatal("complete after first page with continuation")
	}
	if err := ss.LoadMoreResults(ctx); err != nil {
		t.Fatal(err)
	}
	if !ss.IsComplete() {
		t.Fatal("not complete after server omitted continue")
	}
	// Complete: further loads are no-ops.
	if err := ss.LoadMoreResults(ctx); err != nil {
		t.Fatal(err)
	}
	if got := fq.numQueries(); got != 2 {
		t.Errorf("%d queries; want 2", got)
	}

	res := ss.GetCurrentResults()
	if !refsEqual(blobRefs(res), []blob.Ref{refA, refB, refC}) {
		t.Errorf("blobs = %v", blobRefs(res))
	}
	for _, r := range []blob.Ref{refA, refB, refC} {
		if res.Describe.Meta.Get(r) == nil {
			t.Errorf("meta missing %v", r)
		}
	}
	if len(kinds) != 2 || kinds[0] != ChangeNew || kinds[1] != ChangeAppend {
		t.Errorf("kinds = %v; want [new append]", kinds)
	}
}

func TestMetaMergeLaterWins(t *testing.T) {
	first := metaFor(refA)
	first[refA.String()].CamliType = "file"
	pages := map[string]*search.SearchResult{
		"": {
			Blobs:    resultBlobs(refA),
			Describe: &search.DescribeResponse{Meta: first},
			Continue: "p2",
		},
		"p2": {
			Blobs:    resultBlobs(refB),
			Describe: &search.DescribeResponse{Meta: metaFor(refA, refB)},
		},
	}
	fq := &fakeQueryer{fn: func(sq *search.SearchQuery) (*search.SearchResult, error) {
		return pages[sq.Continue], nil
	}}
	ss := New(fq, "tag:x")
	defer ss.Close()
	ctx := context.Background()
	ss.LoadMoreResults(ctx)
	ss.LoadMoreResults(ctx)
	got := ss.GetCurrentResults().Describe.Meta.Get(refA)
	if got == nil || got.CamliType != "permanode" {
		t.Errorf("meta for %v = %+v; want later page's permanode", refA, got)
	}
}

func TestMetaMergeResolvesAcrossPages(t *testing.T) {
	// A permanode loaded on page one whose camliContent file is
	// only described on page two must still resolve its title from
	// the merged cache.
	page := func(body string) *search.DescribeResponse {
		var dr search.DescribeResponse
		if err := json.Unmarshal([]byte(body), &dr); err != nil {
			t.Fatal(err)
		}
		return &dr
	}
	first := page(`{"meta": {
		"` + refA.String() + `": {
			"blobRef": "` + refA.String() + `",
			"camliType": "permanode",
			"size": 100,
			"permanode": {"attr": {"camliContent": ["` + refB.String() + `"]}}
		}
	}}`)
	second := page(`{"meta": {
		"` + refB.String() + `": {
			"blobRef": "` + refB.String() + `",
			"camliType": "file",
			"size": 42,
			"file": {"fileName": "trip.jpg", "size": 42}
		}
	}}`)
	pages := map[string]*search.SearchResult{
		"": {
			Blobs:    resultBlobs(refA),
			Describe: first,
			Continue: "p2",
		},
		"p2": {
			Blobs:    resultBlobs(refB),
			Describe: second,
		},
	}
	fq := &fakeQueryer{fn: func(sq *search.SearchQuery) (*search.SearchResult, error) {
		return pages[sq.Continue], nil
	}}
	ss := New(fq, "tag:x")
	defer ss.Close()
	ctx := context.Background()
	ss.LoadMoreResults(ctx)
	ss.LoadMoreResults(ctx)

	db := ss.GetCurrentResults().Describe.Meta.Get(refA)
	if db == nil {
		t.Fatal("meta missing page-one permanode")
	}
	if got := db.Title(); got != "trip.jpg" {
		t.Errorf("Title = %q; want %q", got, "trip.jpg")
	}
	if _, fi, ok := db.PermanodeFile(); !ok || fi.FileName != "trip.jpg" {
		t.Errorf("PermanodeFile = %v, %v; want trip.jpg", fi, ok)
	}
}

func TestLoadMoreIdempotentWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	fq := &fakeQueryer{fn: func(sq *search.SearchQuery) (*search.SearchResult, error) {
		<-release
		return &search.SearchResult{Blobs: resultBlobs(refA)}, nil
	}}
	ss := New(fq, "tag:x")
	defer ss.Close()
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		ss.LoadMoreResults(ctx)
		close(done)
	}()
	// Wait for the first load to be in flight.
	for fq.numQueries() == 0 {
		time.Sleep(time.Millisecond)
	}
	// Second call while in flight is a no-op.
	if err := ss.LoadMoreResults(ctx); err != nil {
		t.Fatal(err)
	}
	close(release)
	<-done
	if got := fq.numQueries(); got != 1 {
		t.Errorf("%d queries; want 1", got)
	}
}

func TestRefreshIfNecessary(t *testing.T) {
	fq := &fakeQueryer{fn: func(sq *search.SearchQuery) (*search.SearchResult, error) {
		if sq.Continue != "" {
			t.Errorf("refresh sent continuation %q", sq.Continue)
		}
		return &search.SearchResult{Blobs: resultBlobs(refA, refB)}, nil
	}}
	var kinds []ChangeKind
	var mu sync.Mutex
	ss := New(fq, "tag:x", WithHandlers(Handlers{
		Changed: func(k ChangeKind) {
			mu.Lock()
			kinds = append(kinds, k)
			mu.Unlock()
		},
	}))
	defer ss.Close()
	ctx := context.Background()
	ss.LoadMoreResults(ctx)
	if err := ss.RefreshIfNecessary(ctx); err != nil {
		t.Fatal(err)
	}
	// Two previously-loaded blobs < PageSize, so the refresh asks
	// for a full page.
	last := fq.queries[len(fq.queries)-1]
	if last.Limit != PageSize {
		t.Errorf("refresh limit = %d; want %d", last.Limit, PageSize)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != 2 || kinds[1] != ChangeUpdate {
		t.Errorf("kinds = %v; want [... update]", kinds)
	}
}

func TestAroundDoesNotPaginate(t *testing.T) {
	fq := &fakeQueryer{fn: func(sq *search.SearchQuery) (*search.SearchResult, error) {
		if sq.Around != refB {
			t.Errorf("query around = %v; want %v", sq.Around, refB)
		}
		return &search.SearchResult{
			Blobs:    resultBlobs(refA, refB, refC),
			Continue: "more",
		}, nil
	}}
	ss := New(fq, "tag:x", WithAround(refB))
	defer ss.Close()
	ctx := context.Background()
	ss.LoadMoreResults(ctx)
	if !ss.IsComplete() {
		t.Error("around session should not paginate")
	}
}

func newSocketServer(t *testing.T, send chan string) (*httptest.Server, string) {
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Read the subscription, then relay canned messages.
		var sub subscribeMessage
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		for msg := range send {
			msg = strings.ReplaceAll(msg, "$TAG", sub.Tag)
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		conn.Close()
	}))
	t.Cleanup(srv.Close)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSocketUpdateReplaces(t *testing.T) {
	send := make(chan string)
	_, wsURL := newSocketServer(t, send)

	fq := &fakeQueryer{
		wsURL: wsURL,
		fn: func(sq *search.SearchQuery) (*search.SearchResult, error) {
			return &search.SearchResult{Blobs: resultBlobs(refA, refB, refC)}, nil
		},
	}
	changed := make(chan ChangeKind, 4)
	ss := New(fq, "tag:x", WithHandlers(Handlers{
		Changed: func(k ChangeKind) { changed <- k },
	}))
	defer ss.Close()
	ctx := context.Background()
	ss.LoadMoreResults(ctx)
	<-changed // the initial new

	if err := ss.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	page := func(refs ...blob.Ref) string {
		var names []string
		for _, r := range refs {
			names = append(names, `{"blob":"`+r.String()+`"}`)
		}
		return `{"tag":"$TAG","result":{"blobs":[` + strings.Join(names, ",") + `]}}`
	}
	// First socket result duplicates the loaded page and is ignored.
	send <- page(refA, refB, refC)
	// The second is a fresh view.
	send <- page(refA, refB, refD)

	select {
	case k := <-changed:
		if k != ChangeUpdate {
			t.Fatalf("kind = %v; want update", k)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no update event")
	}
	got := blobRefs(ss.GetCurrentResults())
	if !refsEqual(got, []blob.Ref{refA, refB, refD}) {
		t.Errorf("blobs = %v; want [a b d]", got)
	}
}

func TestSocketStatusAndFailure(t *testing.T) {
	send := make(chan string)
	_, wsURL := newSocketServer(t, send)

	fq := &fakeQueryer{
		wsURL: wsURL,
		fn: func(sq *search.SearchQuery) (*search.SearchResult, error) {
			return &search.SearchResult{Blobs: resultBlobs(refA, refB, refC)}, nil
		},
	}
	status := make(chan string, 1)
	errc := make(chan error, 1)
	ss := New(fq, "tag:x", WithHandlers(Handlers{
		Status: func(st json.RawMessage) { status <- string(st) },
		Error:  func(err error) { errc <- err },
	}))
	defer ss.Close()
	ctx := context.Background()
	ss.LoadMoreResults(ctx)
	if err := ss.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	send <- `{"tag":"_status","status":{"blobsIndexed":12}}`
	select {
	case st := <-status:
		if !strings.Contains(st, "blobsIndexed") {
			t.Errorf("status = %q", st)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no status event")
	}

	// Server hangs up: the session reports the lost channel once
	// and keeps its cache.
	close(send)
	select {
	case <-errc:
	case <-time.After(5 * time.Second):
		t.Fatal("no error event")
	}
	if ss.SocketState() != SocketFailed {
		t.Errorf("socket state = %v; want failed", ss.SocketState())
	}
	got := blobRefs(ss.GetCurrentResults())
	if !refsEqual(got, []blob.Ref{refA, refB, refC}) {
		t.Errorf("cache lost after socket failure: %v", got)
	}

	// With the socket failed, polling works again.
	if err := ss.RefreshIfNecessary(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestRefreshNoopWhileSocketLive(t *testing.T) {
	send := make(chan string)
	defer close(send)
	_, wsURL := newSocketServer(t, send)
	fq := &fakeQueryer{
		wsURL: wsURL,
		fn: func(sq *search.SearchQuery) (*search.SearchResult, error) {
			return &search.SearchResult{Blobs: resultBlobs(refA)}, nil
		},
	}
	ss := New(fq, "tag:x")
	defer ss.Close()
	ctx := context.Background()
	ss.LoadMoreResults(ctx)
	if err := ss.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	before := fq.numQueries()
	if err := ss.RefreshIfNecessary(ctx); err != nil {
		t.Fatal(err)
	}
	if got := fq.numQueries(); got != before {
		t.Errorf("refresh queried while socket live (%d -> %d)", before, got)
	}
}

func TestCloseSuppressesHandlers(t *testing.T) {
	send := make(chan string)
	_, wsURL := newSocketServer(t, send)
	fq := &fakeQueryer{
		wsURL: wsURL,
		fn: func(sq *search.SearchQuery) (*search.SearchResult, error) {
			return &search.SearchResult{}, nil
		},
	}
	errc := make(chan error, 1)
	ss := New(fq, "tag:x", WithHandlers(Handlers{
		Error: func(err error) { errc <- err },
	}))
	ctx := context.Background()
	ss.LoadMoreResults(ctx)
	if err := ss.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	ss.Close()
	close(send) // server hangs up after the close
	select {
	case err := <-errc:
		t.Errorf("error handler ran after Close: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}
