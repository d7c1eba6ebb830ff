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

package shell

import (
	"fmt"
	"net/url"

	"perkeep.org/webui/pkg/blob"
	"perkeep.org/webui/pkg/search"
)

// PageKind is which aspect a URL selects.
type PageKind int

const (
	// SearchPage is the main browser, driven by the "q" parameter.
	SearchPage PageKind = iota
	// PermanodePage is the detail view of one permanode ("p").
	PermanodePage
	// BlobPage is the raw view of one blob ("b").
	BlobPage
	// DirectoryPage is the tree view of one directory ("d").
	DirectoryPage
)

// A Page is a parsed UI URL.
type Page struct {
	Kind PageKind
	// Ref is the subject of a detail page.
	Ref blob.Ref
	// Expression is a search page's "q" parameter, possibly empty.
	Expression string
}

// ParsePage routes u to an aspect. The detail parameters "p", "b"
// and "d" take precedence, in that order; everything else is the
// main browser with "q" as its sole canonical parameter.
func ParsePage(u *url.URL) (Page, error) {
	q := u.Query()
	for _, route := range []struct {
		param string
		kind  PageKind
	}{
		{"p", PermanodePage},
		{"b", BlobPage},
		{"d", DirectoryPage},
	} {
		v := q.Get(route.param)
		if v == "" {
			continue
		}
		br, ok := blob.Parse(v)
		if !ok {
			return Page{}, fmt.Errorf("shell: invalid blobref in %q parameter: %q", route.param, v)
		}
		return Page{Kind: route.kind, Ref: br}, nil
	}
	return Page{Kind: SearchPage, Expression: q.Get("q")}, nil
}

// Query translates a search page's expression into a query body.
func (p Page) Query() (*search.SearchQuery, error) {
	if p.Kind != SearchPage {
		return nil, fmt.Errorf("shell: no search query for page kind %d", p.Kind)
	}
	return search.QueryFromSearchParam(p.Expression)
}

// URLValues is ParsePage's inverse, for building in-app links.
func (p Page) URLValues() url.Values {
	v := url.Values{}
	switch p.Kind {
	case PermanodePage:
		v.Set("p", p.Ref.String())
	case BlobPage:
		v.Set("b", p.Ref.String())
	case DirectoryPage:
		v.Set("d", p.Ref.String())
	default:
		if p.Expression != "" {
			v.Set("q", p.Expression)
		}
	}
	return v
}
