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

// Package shell composes the web UI's page: it owns the current URL,
// the selection, and the current search session, and dispatches the
// commands (add to set, tag, delete, upload) the aspects trigger.
// Ownership is a tree: the session, grid and map are children; they
// report intents upward through callbacks and never reach back in.
package shell

import (
	"context"
	"errors"
	"io"
	"log"
	"net/url"
	"sync"
	"time"

	"perkeep.org/webui/goui/session"
	"perkeep.org/webui/pkg/blob"
	"perkeep.org/webui/pkg/schema/nodeattr"
	"perkeep.org/webui/pkg/search"
)

// SaveMinDisplay is how long a save indicator stays up even when the
// server answers faster, so quick saves do not flicker.
const SaveMinDisplay = 250 * time.Millisecond

// A Connection is the part of the server client the shell drives.
type Connection interface {
	Query(ctx context.Context, sq *search.SearchQuery) (*search.SearchResult, error)
	WebSocketURL() string
	AddMembers(ctx context.Context, parent blob.Ref, createSet bool, defaultTitle string, items []blob.Ref) (blob.Ref, error)
	EditTags(ctx context.Context, permanodes []blob.Ref, add, del []string) error
	SetAttribute(ctx context.Context, permanode blob.Ref, attr, value string) (blob.Ref, error)
	DelAttribute(ctx context.Context, permanode blob.Ref, attr, value string) (blob.Ref, error)
	Delete(ctx context.Context, target blob.Ref) (blob.Ref, error)
	CreatePermanode(ctx context.Context) (blob.Ref, error)
	UploadFile(ctx context.Context, fileName string, modTime time.Time, contents io.ReadSeeker) (blob.Ref, error)
}

// A Shell is the page-level composition root.
type Shell struct {
	conn     Connection
	registry *Registry
	// SessionHandlers, if set before the first navigation, is
	// installed on every session the shell creates.
	SessionHandlers session.Handlers
	// Logger, if set, receives errors from background work the
	// shell cannot surface to a caller, such as the post-command
	// refresh.
	Logger *log.Logger

	mu   sync.Mutex
	page Page
	sess *session.SearchSession
	// sessExpr is the expression the current session serves.
	sessExpr string
	sel      *Selection
}

// New returns a shell over conn with the built-in item handlers.
func New(conn Connection) *Shell {
	return &Shell{
		conn:     conn,
		registry: NewRegistry(),
		sel:      NewSelection(),
	}
}

// Registry returns the item handler registry, for aspects to extend.
func (sh *Shell) Registry() *Registry { return sh.registry }

// Selection returns the current selection.
func (sh *Shell) Selection() *Selection {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.sel
}

// Page returns the current page.
func (sh *Shell) Page() Page {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.page
}

// Session returns the current search session, nil before the first
// search navigation.
func (sh *Shell) Session() *session.SearchSession {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.sess
}

// Navigate switches the shell to u. A search page with a new query
// disposes the prior session and starts a fresh one; detail pages
// keep the session so backing out of a detail resumes where the grid
// left off. It reports whether the shell handles u, which makes it
// the navigator's OnWillNavigate.
func (sh *Shell) Navigate(u *url.URL) bool {
	page, err := ParsePage(u)
	if err != nil {
		return false
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if page.Kind == SearchPage && (sh.sess == nil || page.Expression != sh.sessExpr) {
		sq, err := page.Query()
		if err != nil {
			return false
		}
		if sh.sess != nil {
			sh.sess.Close()
		}
		sh.sess = session.New(sh.conn, sq.Constraint, session.WithHandlers(sh.SessionHandlers))
		sh.sessExpr = page.Expression
		sh.sel.Clear()
		// Best-effort push channel; polling still works without
		// it.
		sess := sh.sess
		go func() {
			if err := sess.Connect(context.Background()); err != nil && !errors.Is(err, session.ErrNoSocket) {
				sh.logf("shell: search socket: %v", err)
			}
		}()
	}
	sh.page = page
	return true
}

// AddSelectionToSet adds the selected permanodes to parent, or to a
// newly created set titled defaultTitle when createSet is set. All
// member claims are attempted; on completion, whatever the failures,
// the selection is cleared and the session refreshed. Returns the
// parent and the joined failures.
func (sh *Shell) AddSelectionToSet(ctx context.Context, parent blob.Ref, createSet bool, defaultTitle string) (blob.Ref, error) {
	items := sh.Selection().Refs()
	parent, err := sh.conn.AddMembers(ctx, parent, createSet, defaultTitle, items)
	sh.completeCommand(ctx)
	return parent, err
}

// EditSelectionTags adds and removes tags on every selected
// permanode, concurrently; all edits are attempted and failures
// joined.
func (sh *Shell) EditSelectionTags(ctx context.Context, add, del []string) error {
	err := sh.conn.EditTags(ctx, sh.Selection().Refs(), add, del)
	sh.completeCommand(ctx)
	return err
}

// DeleteSelection issues a delete claim per selected permanode.
// Successfully deleted refs leave the selection; failed ones stay
// selected and their errors are joined. Callers showing an
// optimistic strikethrough revert it per failed ref (see Optimistic).
func (sh *Shell) DeleteSelection(ctx context.Context) error {
	sel := sh.Selection()
	var errs []error
	for _, br := range sel.Refs() {
		if _, err := sh.conn.Delete(ctx, br); err != nil {
			errs = append(errs, err)
			continue
		}
		sel.Remove(br)
	}
	sh.refresh(ctx)
	return errors.Join(errs...)
}

// completeCommand is the shared tail of a selection command: clear
// the selection and refresh the session so the grid reflects the new
// claims.
func (sh *Shell) completeCommand(ctx context.Context) {
	sh.Selection().Clear()
	sh.refresh(ctx)
}

// refresh re-runs the current session's query, if any. The claims the
// command uploaded already succeeded or failed on their own; a stale
// grid is worth a log line, not a command failure.
func (sh *Shell) refresh(ctx context.Context) {
	sess := sh.Session()
	if sess == nil {
		return
	}
	if err := sess.RefreshIfNecessary(ctx); err != nil {
		sh.logf("shell: refresh after command: %v", err)
	}
}

func (sh *Shell) logf(format string, args ...interface{}) {
	if sh.Logger != nil {
		sh.Logger.Printf(format, args...)
	}
}

// SaveAttribute sets one attribute, holding completion until the
// minimum display time so the save indicator does not flicker.
func (sh *Shell) SaveAttribute(ctx context.Context, permanode blob.Ref, attr, value string) error {
	return WithMinDisplay(ctx, SaveMinDisplay, func() error {
		_, err := sh.conn.SetAttribute(ctx, permanode, attr, value)
		return err
	})
}

// An UploadItem is one file picked for upload.
type UploadItem struct {
	Name     string
	ModTime  time.Time
	Contents io.ReadSeeker
}

// An UploadRow is one upload's outcome. A row either carries the
// resulting refs or its error; earlier successful rows are retained
// when a later one fails.
type UploadRow struct {
	Name      string
	FileRef   blob.Ref
	Permanode blob.Ref
	Err       error
}

// Upload uploads each item, wraps it in a permanode, and points the
// permanode's camliContent at the file. Failures annotate their row
// and do not stop the batch.
func (sh *Shell) Upload(ctx context.Context, items []UploadItem) []UploadRow {
	rows := make([]UploadRow, len(items))
	for i, it := range items {
		rows[i].Name = it.Name
		fileRef, err := sh.conn.UploadFile(ctx, it.Name, it.ModTime, it.Contents)
		if err != nil {
			rows[i].Err = err
			continue
		}
		rows[i].FileRef = fileRef
		pn, err := sh.conn.CreatePermanode(ctx)
		if err != nil {
			rows[i].Err = err
			continue
		}
		rows[i].Permanode = pn
		if _, err := sh.conn.SetAttribute(ctx, pn, nodeattr.CamliContent, fileRef.String()); err != nil {
			rows[i].Err = err
		}
	}
	sh.refresh(ctx)
	return rows
}

// Optimistic applies a provisional UI state, runs op, and reverts
// the state when op fails, per the destructive-action contract.
func Optimistic(apply, revert func(), op func() error) error {
	apply()
	if err := op(); err != nil {
		revert()
		return err
	}
	return nil
}

// WithMinDisplay runs op and does not return before d has elapsed,
// unless ctx is done first.
func WithMinDisplay(ctx context.Context, d time.Duration, op func() error) error {
	t := time.NewTimer(d)
	defer t.Stop()
	err := op()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
	return err
}
