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

// Package session implements a standing search query: it caches
// result pages, paginates, and keeps the cache fresh through the
// server's search WebSocket, falling back to polling when the socket
// is unavailable.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"perkeep.org/webui/pkg/blob"
	"perkeep.org/webui/pkg/search"
)

// PageSize is how many results one page requests.
const PageSize = 50

// ChangeKind discriminates what a changed notification means for the
// cached results.
type ChangeKind string

const (
	// ChangeNew replaced the whole cache with a first page.
	ChangeNew ChangeKind = "new"
	// ChangeAppend concatenated a page onto the cache.
	ChangeAppend ChangeKind = "append"
	// ChangeUpdate replaced the cache with a fresh complete view.
	ChangeUpdate ChangeKind = "update"
)

// Queryer is the part of the client a session needs.
type Queryer interface {
	Query(ctx context.Context, sq *search.SearchQuery) (*search.SearchResult, error)
	WebSocketURL() string
}

// SocketState is the push channel's state, orthogonal to the loading
// state.
type SocketState int

const (
	SocketAbsent SocketState = iota
	SocketConnecting
	SocketLive
	SocketFailed
)

// Handlers are the session's event callbacks. Any of them may be
// nil. They are never called concurrently with each other.
type Handlers struct {
	// Changed is called after the cached results changed.
	Changed func(kind ChangeKind)
	// Status is called with server-side progress updates from the
	// push channel.
	Status func(status json.RawMessage)
	// Error is called when the push channel is lost. The session
	// keeps serving cached results; callers degrade to polling via
	// RefreshIfNecessary.
	Error func(err error)
}

var instanceCounter int64

// A SearchSession is one standing query. It is not safe to share the
// returned result snapshots across a Close.
type SearchSession struct {
	q        Queryer
	query    interface{} // string expression or *search.Constraint
	describe *search.DescribeRequest
	around   blob.Ref
	handlers Handlers
	tag      string
	logger   *log.Logger

	// handlerMu serializes handler invocations.
	handlerMu sync.Mutex

	mu       sync.Mutex // guards the rest
	blobs    []*search.SearchResultBlob
	meta     search.MetaMap
	cont     string
	loaded   bool // first page arrived
	complete bool
	loading  bool
	closed   bool
	socket   SocketState
	conn     *websocket.Conn
}

// Option configures a new session.
type Option func(*SearchSession)

// WithHandlers sets the session's event callbacks.
func WithHandlers(h Handlers) Option {
	return func(ss *SearchSession) { ss.handlers = h }
}

// WithAround centers the session's single page on the given blob.
// An around session does not paginate.
func WithAround(br blob.Ref) Option {
	return func(ss *SearchSession) { ss.around = br }
}

// WithLogger sets the session's logger. The default discards.
func WithLogger(l *log.Logger) Option {
	return func(ss *SearchSession) { ss.logger = l }
}

// New returns a new session for the given query, which is either a
// string search expression or a *search.Constraint. Results are
// described with the UI's default describe rules. No query is issued
// until LoadMoreResults.
func New(q Queryer, exprOrConstraint interface{}, opts ...Option) *SearchSession {
	ss := &SearchSession{
		q:        q,
		query:    exprOrConstraint,
		describe: search.UIDescribeRequest(),
		meta:     make(search.MetaMap),
		tag:      fmt.Sprintf("q%d", atomic.AddInt64(&instanceCounter, 1)),
	}
	for _, opt := range opts {
		opt(ss)
	}
	return ss
}

// GetCurrentResults returns the cached results. It never returns
// nil; before the first load the page is empty.
func (ss *SearchSession) GetCurrentResults() *search.SearchResult {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	blobs := make([]*search.SearchResultBlob, len(ss.blobs))
	copy(blobs, ss.blobs)
	return &search.SearchResult{
		Blobs:    blobs,
		Describe: &search.DescribeResponse{Meta: ss.meta},
	}
}

// IsComplete reports whether the server has no more pages for this
// query.
func (ss *SearchSession) IsComplete() bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.complete
}

// SocketState returns the push channel's state.
func (ss *SearchSession) SocketState() SocketState {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.socket
}

func (ss *SearchSession) newQuery(limit int, cont string) (*search.SearchQuery, error) {
	sq := &search.SearchQuery{
		Limit:    limit,
		Sort:     search.CreatedDesc,
		Describe: ss.describe,
		Continue: cont,
	}
	if cont == "" {
		sq.Around = ss.around
	}
	switch v := ss.query.(type) {
	case string:
		sq.Expression = v
	case *search.Constraint:
		sq.Constraint = v
	default:
		return nil, fmt.Errorf("session: unsupported query type %T", ss.query)
	}
	return sq, nil
}

// LoadMoreResults requests the next page. It is idempotent across
// concurrent calls: while a load is in flight, or once the query is
// complete, calls are no-ops.
func (ss *SearchSession) LoadMoreResults(ctx context.Context) error {
	ss.mu.Lock()
	if ss.closed || ss.complete || ss.loading {
		ss.mu.Unlock()
		return nil
	}
	ss.loading = true
	sq, err := ss.newQuery(PageSize, ss.cont)
	if err != nil {
		ss.loading = false
		ss.mu.Unlock()
		return err
	}
	first := !ss.loaded
	ss.mu.Unlock()

	res, err := ss.q.Query(ctx, sq)

	ss.mu.Lock()
	ss.loading = false
	if ss.closed {
		ss.mu.Unlock()
		return nil
	}
	if err != nil {
		ss.mu.Unlock()
		return err
	}
	kind := ChangeAppend
	if first {
		kind = ChangeNew
		ss.blobs = res.Blobs
		ss.meta = make(search.MetaMap)
	} else {
		ss.blobs = append(ss.blobs, res.Blobs...)
	}
	ss.mergeMetaLocked(res)
	ss.loaded = true
	ss.cont = res.Continue
	// An around page is a single centered window; it does not
	// paginate further.
	ss.complete = res.Continue == "" || ss.around.Valid()
	ss.mu.Unlock()

	ss.emitChanged(kind)
	return nil
}

// mergeMetaLocked merges the page's meta key-wise into the cache,
// later pages winning on collision. The merged map is re-bound so a
// description from one page can resolve refs described on another.
// Requires ss.mu held.
func (ss *SearchSession) mergeMetaLocked(res *search.SearchResult) {
	if res.Describe == nil {
		return
	}
	for refStr, db := range res.Describe.Meta {
		ss.meta[refStr] = db
	}
	ss.meta.Bind()
}

// RefreshIfNecessary re-issues the whole query when the push channel
// is not live, replacing the cache. With a live or connecting socket
// it is a no-op: the socket already delivers fresh views.
func (ss *SearchSession) RefreshIfNecessary(ctx context.Context) error {
	ss.mu.Lock()
	if ss.closed || ss.socket == SocketLive || ss.socket == SocketConnecting {
		ss.mu.Unlock()
		return nil
	}
	limit := len(ss.blobs)
	if limit < PageSize {
		limit = PageSize
	}
	sq, err := ss.newQuery(limit, "")
	if err != nil {
		ss.mu.Unlock()
		return err
	}
	ss.mu.Unlock()

	res, err := ss.q.Query(ctx, sq)
	if err != nil {
		return err
	}

	ss.mu.Lock()
	if ss.closed {
		ss.mu.Unlock()
		return nil
	}
	ss.replaceLocked(res)
	ss.mu.Unlock()

	ss.emitChanged(ChangeUpdate)
	return nil
}

// replaceLocked replaces the cache with a complete fresh view.
// Requires ss.mu held.
func (ss *SearchSession) replaceLocked(res *search.SearchResult) {
	ss.blobs = res.Blobs
	ss.meta = make(search.MetaMap)
	ss.mergeMetaLocked(res)
	ss.loaded = true
	ss.cont = res.Continue
	ss.complete = res.Continue == "" || ss.around.Valid()
}

// Close disposes the session: the push channel is torn down and all
// handlers are suppressed from now on, including the socket's own
// close notification.
func (ss *SearchSession) Close() error {
	ss.mu.Lock()
	if ss.closed {
		ss.mu.Unlock()
		return nil
	}
	ss.closed = true
	conn := ss.conn
	ss.conn = nil
	ss.socket = SocketAbsent
	ss.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (ss *SearchSession) emitChanged(kind ChangeKind) {
	ss.handlerMu.Lock()
	defer ss.handlerMu.Unlock()
	if ss.handlers.Changed != nil {
		ss.handlers.Changed(kind)
	}
}

func (ss *SearchSession) emitStatus(st json.RawMessage) {
	ss.handlerMu.Lock()
	defer ss.handlerMu.Unlock()
	if ss.handlers.Status != nil {
		ss.handlers.Status(st)
	}
}

func (ss *SearchSession) emitError(err error) {
	ss.handlerMu.Lock()
	defer ss.handlerMu.Unlock()
	if ss.handlers.Error != nil {
		ss.handlers.Error(err)
	}
}

func (ss *SearchSession) logf(format string, arg ...interface{}) {
	if ss.logger != nil {
		ss.logger.Printf(format, arg...)
	}
}
