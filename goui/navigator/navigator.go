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

// Package navigator routes single-page-app navigation: it intercepts
// in-app anchor clicks and history traversal, and lets the shell
// decide per URL whether it handles the transition or the browser
// reloads.
package navigator

import (
	"net/url"
)

// State is what a history entry carries. Scroll restoration stores
// {"scroll": <scrollTop>}.
type State map[string]interface{}

// History is the subset of the browser history the navigator drives.
type History interface {
	PushState(state State, u *url.URL)
	ReplaceState(state State, u *url.URL)
}

// Location is the subset of the browser location the navigator
// reads, plus the full-reload escape hatch.
type Location interface {
	URL() *url.URL
	Reload()
}

// A Click is the part of an anchor click event that decides whether
// the navigator intercepts it.
type Click struct {
	URL *url.URL
	// Button is the mouse button, 0 for primary.
	Button                 int
	Alt, Ctrl, Meta, Shift bool
}

// A Navigator owns the page's history entries. OnWillNavigate is
// asked before every in-app transition; returning false hands the
// navigation back to the browser.
type Navigator struct {
	h   History
	loc Location
	// OnWillNavigate reports whether the app handles a transition
	// to u. Required.
	OnWillNavigate func(u *url.URL) bool
}

// New returns a navigator over h and loc. The initial history entry
// is seeded with an empty state, so the entry round-trips: the
// browser pops it as non-null and a later ReplaceState always has
// something to write over.
func New(h History, loc Location, onWillNavigate func(u *url.URL) bool) *Navigator {
	h.ReplaceState(State{}, loc.URL())
	return &Navigator{
		h:              h,
		loc:            loc,
		OnWillNavigate: onWillNavigate,
	}
}

// sameOrigin reports whether u stays on the current page's origin.
// A relative URL (no scheme or host) does.
func (n *Navigator) sameOrigin(u *url.URL) bool {
	cur := n.loc.URL()
	if u.Scheme != "" && u.Scheme != cur.Scheme {
		return false
	}
	if u.Host != "" && u.Host != cur.Host {
		return false
	}
	return true
}

// HandleClick is called for anchor clicks. It reports whether the
// event's default must be cancelled: true means the navigator pushed
// a new history entry, false leaves the click to the browser.
func (n *Navigator) HandleClick(c Click) bool {
	if c.Button != 0 || c.Alt || c.Ctrl || c.Meta || c.Shift {
		return false
	}
	if c.URL == nil || !n.sameOrigin(c.URL) {
		return false
	}
	return n.Navigate(c.URL)
}

// Navigate asks the app to handle a transition to u, pushing a fresh
// history entry when it does. It reports whether the transition was
// handled.
func (n *Navigator) Navigate(u *url.URL) bool {
	if !n.OnWillNavigate(u) {
		return false
	}
	n.h.PushState(State{}, u)
	return true
}

// HandlePopState is called on history traversal. A null state is the
// browser's initial-load quirk and is ignored. A non-null state the
// app does not handle falls back to exactly one full reload.
func (n *Navigator) HandlePopState(state State, u *url.URL) {
	if state == nil {
		return
	}
	if !n.OnWillNavigate(u) {
		n.loc.Reload()
	}
}

// ReplaceState rewrites the current entry's state in place, keeping
// its URL. Scroll persistence writes through here.
func (n *Navigator) ReplaceState(state State) {
	n.h.ReplaceState(state, n.loc.URL())
}
