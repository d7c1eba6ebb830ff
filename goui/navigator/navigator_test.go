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

package navigator

import (
	"net/url"
	"testing"
)

type entry struct {
	state State
	url   *url.URL
}

type fakeHistory struct {
	pushed   []entry
	replaced []entry
}

func (h *fakeHistory) PushState(s State, u *url.URL) {
	h.pushed = append(h.pushed, entry{s, u})
}

func (h *fakeHistory) ReplaceState(s State, u *url.URL) {
	h.replaced = append(h.replaced, entry{s, u})
}

type fakeLocation struct {
	u       *url.URL
	reloads int
}

func (l *fakeLocation) URL() *url.URL { return l.u }

func (l *fakeLocation) Reload() { l.reloads++ }

func mustURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func newTestNav(t *testing.T, handle bool) (*Navigator, *fakeHistory, *fakeLocation, *[]string) {
	h := &fakeHistory{}
	loc := &fakeLocation{u: mustURL(t, "https://pk.example/ui/?q=tag:pony")}
	var asked []string
	n := New(h, loc, func(u *url.URL) bool {
		asked = append(asked, u.String())
		return handle
	})
	return n, h, loc, &asked
}

func TestInitialEntrySeeded(t *testing.T) {
	_, h, loc, _ := newTestNav(t, true)
	if len(h.replaced) != 1 {
		t.Fatalf("%d initial replaceState calls; want 1", len(h.replaced))
	}
	if h.replaced[0].state == nil {
		t.Error("initial state is null; want empty")
	}
	if h.replaced[0].url != loc.u {
		t.Errorf("initial entry url = %v", h.replaced[0].url)
	}
}

func TestHandleClick(t *testing.T) {
	inApp := "https://pk.example/ui/?p=sha1-deadbeef"
	tests := []struct {
		name      string
		click     Click
		handle    bool
		intercept bool
	}{
		{"plain left click", Click{URL: nil}, true, true},
		{"relative url", Click{URL: nil}, true, true},
		{"middle button", Click{Button: 1}, true, false},
		{"ctrl click", Click{Ctrl: true}, true, false},
		{"meta click", Click{Meta: true}, true, false},
		{"shift click", Click{Shift: true}, true, false},
		{"app declines", Click{}, false, false},
	}
	for _, tt := range tests {
		n, h, _, _ := newTestNav(t, tt.handle)
		c := tt.click
		if tt.name == "relative url" {
			c.URL = mustURL(t, "?b=sha1-deadbeef")
		} else if c.URL == nil {
			c.URL = mustURL(t, inApp)
		}
		if got := n.HandleClick(c); got != tt.intercept {
			t.Errorf("%s: intercepted = %v; want %v", tt.name, got, tt.intercept)
		}
		want := 0
		if tt.intercept {
			want = 1
		}
		if len(h.pushed) != want {
			t.Errorf("%s: %d pushes; want %d", tt.name, len(h.pushed), want)
		}
	}
}

func TestHandleClickCrossOrigin(t *testing.T) {
	n, h, _, asked := newTestNav(t, true)
	if n.HandleClick(Click{URL: mustURL(t, "https://elsewhere.example/x")}) {
		t.Error("cross-origin click intercepted")
	}
	if n.HandleClick(Click{URL: mustURL(t, "http://pk.example/ui/")}) {
		t.Error("cross-scheme click intercepted")
	}
	if len(*asked) != 0 || len(h.pushed) != 0 {
		t.Error("cross-origin click reached the app")
	}
}

func TestPopState(t *testing.T) {
	// Null state: browser-initial quirk, ignored.
	n, _, loc, asked := newTestNav(t, true)
	n.HandlePopState(nil, loc.u)
	if len(*asked) != 0 || loc.reloads != 0 {
		t.Error("null popstate was not ignored")
	}

	// Handled non-null state: no reload.
	n.HandlePopState(State{}, loc.u)
	if len(*asked) != 1 {
		t.Errorf("app asked %d times; want 1", len(*asked))
	}
	if loc.reloads != 0 {
		t.Error("handled popstate reloaded")
	}

	// Unhandled non-null state: exactly one reload.
	n, _, loc, _ = newTestNav(t, false)
	n.HandlePopState(State{"scroll": 120}, loc.u)
	if loc.reloads != 1 {
		t.Errorf("%d reloads; want 1", loc.reloads)
	}
}

func TestReplaceStateFacade(t *testing.T) {
	n, h, loc, _ := newTestNav(t, true)
	n.ReplaceState(State{"scroll": 640})
	last := h.replaced[len(h.replaced)-1]
	if got := last.state["scroll"]; got != 640 {
		t.Errorf("scroll = %v; want 640", got)
	}
	if last.url != loc.u {
		t.Error("replaceState changed the entry URL")
	}
}
