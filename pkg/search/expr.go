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

package search

import (
	"encoding/json"
	"fmt"
	"strings"

	"perkeep.org/webui/pkg/blob"
	"perkeep.org/webui/pkg/schema/nodeattr"
)

// QueryFromSearchParam translates the browser's "q" URL parameter
// into a search query body. Recognized prefixes:
//
//	tag:<value>    permanodes with that exact tag
//	title:<value>  permanodes whose title contains the value
//	bre:<blobref>  that exact blob
//	raw:<json>     a raw JSON constraint
//
// A plain value matches permanodes whose title or tag fuzzily matches
// it. An empty parameter matches all permanodes.
func QueryFromSearchParam(q string) (*SearchQuery, error) {
	q = strings.TrimSpace(q)
	switch {
	case q == "":
		return &SearchQuery{
			Constraint: &Constraint{
				Permanode: &PermanodeConstraint{
					SkipHidden: true,
				},
			},
		}, nil
	case strings.HasPrefix(q, "tag:"):
		return &SearchQuery{
			Constraint: attrConstraint(nodeattr.Tag, strings.TrimPrefix(q, "tag:")),
		}, nil
	case strings.HasPrefix(q, "title:"):
		return &SearchQuery{
			Constraint: &Constraint{
				Permanode: &PermanodeConstraint{
					Attr: nodeattr.Title,
					ValueMatches: &StringConstraint{
						Contains:        strings.TrimPrefix(q, "title:"),
						CaseInsensitive: true,
					},
					SkipHidden: true,
				},
			},
		}, nil
	case strings.HasPrefix(q, "bre:"):
		refStr := strings.TrimPrefix(q, "bre:")
		if !blob.ValidRefString(refStr) {
			return nil, fmt.Errorf("search: invalid blobref %q", refStr)
		}
		return &SearchQuery{
			Constraint: &Constraint{
				BlobRefPrefix: refStr,
			},
		}, nil
	case strings.HasPrefix(q, "raw:"):
		c := new(Constraint)
		if err := json.Unmarshal([]byte(strings.TrimPrefix(q, "raw:")), c); err != nil {
			return nil, fmt.Errorf("search: bad raw constraint: %v", err)
		}
		return &SearchQuery{Constraint: c}, nil
	}
	// A plain value is a fuzzy title or tag match.
	return &SearchQuery{
		Constraint: &Constraint{
			Logical: &LogicalConstraint{
				Op: "or",
				A: &Constraint{
					Permanode: &PermanodeConstraint{
						Attr: nodeattr.Title,
						ValueMatches: &StringConstraint{
							Contains:        q,
							CaseInsensitive: true,
						},
						SkipHidden: true,
					},
				},
				B: attrConstraint(nodeattr.Tag, q),
			},
		},
	}, nil
}

func attrConstraint(attr, value string) *Constraint {
	return &Constraint{
		Permanode: &PermanodeConstraint{
			Attr:       attr,
			Value:      value,
			SkipHidden: true,
		},
	}
}
