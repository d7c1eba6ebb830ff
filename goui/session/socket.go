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
	"errors"

	"github.com/gorilla/websocket"

	"perkeep.org/webui/pkg/search"
)

// ErrNoSocket is returned by Connect when the server offers no push
// channel.
var ErrNoSocket = errors.New("session: server offers no search WebSocket")

// subscribeMessage is the client-to-server subscription message.
type subscribeMessage struct {
	Tag   string              `json:"tag"`
	Query *search.SearchQuery `json:"query,omitempty"`
}

// updateMessage is a server-to-client message: either a fresh result
// for a subscribed tag, or a "_status" progress update.
type updateMessage struct {
	Tag    string               `json:"tag"`
	Result *search.SearchResult `json:"result,omitempty"`
	Status json.RawMessage      `json:"status,omitempty"`
}

// Connect opens the push channel and subscribes the session's query,
// sized to cover everything loaded so far. The first result message
// is discarded, since it duplicates the already-loaded pages; each
// later one replaces the cache and emits a changed{update}. On any
// socket failure the session emits error once and stays on its
// cached results.
func (ss *SearchSession) Connect(ctx context.Context) error {
	wsURL := ss.q.WebSocketURL()
	if wsURL == "" {
		return ErrNoSocket
	}

	ss.mu.Lock()
	if ss.closed || ss.socket == SocketLive || ss.socket == SocketConnecting {
		ss.mu.Unlock()
		return nil
	}
	ss.socket = SocketConnecting
	limit := len(ss.blobs)
	if limit < PageSize {
		limit = PageSize
	}
	sq, err := ss.newQuery(limit, "")
	if err != nil {
		ss.socket = SocketAbsent
		ss.mu.Unlock()
		return err
	}
	ss.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		ss.socketFailed(err)
		return err
	}
	if err := conn.WriteJSON(&subscribeMessage{Tag: ss.tag, Query: sq}); err != nil {
		conn.Close()
		ss.socketFailed(err)
		return err
	}

	ss.mu.Lock()
	if ss.closed {
		ss.mu.Unlock()
		conn.Close()
		return nil
	}
	ss.conn = conn
	ss.socket = SocketLive
	ss.mu.Unlock()

	go ss.readLoop(conn)
	return nil
}

func (ss *SearchSession) readLoop(conn *websocket.Conn) {
	sawFirstResult := false
	for {
		var msg updateMessage
		if err := conn.ReadJSON(&msg); err != nil {
			ss.socketFailed(err)
			return
		}
		switch msg.Tag {
		case "_status":
			ss.emitStatus(msg.Status)
		case ss.tag:
			if msg.Result == nil {
				continue
			}
			if !sawFirstResult {
				// The first result duplicates the XHR page.
				sawFirstResult = true
				continue
			}
			ss.mu.Lock()
			if ss.closed {
				ss.mu.Unlock()
				return
			}
			ss.replaceLocked(msg.Result)
			ss.mu.Unlock()
			ss.emitChanged(ChangeUpdate)
		default:
			ss.logf("session: ignoring message for unknown tag %q", msg.Tag)
		}
	}
}

// socketFailed marks the push channel lost and emits error, unless
// the session was closed first (Close suppresses the socket's own
// teardown notification).
func (ss *SearchSession) socketFailed(err error) {
	ss.mu.Lock()
	if ss.closed {
		ss.mu.Unlock()
		return
	}
	ss.socket = SocketFailed
	if ss.conn != nil {
		ss.conn.Close()
		ss.conn = nil
	}
	ss.mu.Unlock()
	ss.logf("session: push channel lost: %v", err)
	ss.emitError(err)
}
