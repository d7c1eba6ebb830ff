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
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"perkeep.org/webui/pkg/blob"
	"perkeep.org/webui/pkg/schema/nodeattr"
)

// claimConcurrency bounds how many claims a fan-out signs and uploads
// at once.
const claimConcurrency = 5

// AddMembers adds the items to the set permanode parent, one
// camliMember add-attribute claim per item. If createSet is true, a
// new set permanode is created first and parent is ignored; the new
// set gets defaultTitle as its title, best-effort (a failed title
// claim does not abort the membership claims).
//
// The returned ref is the parent that was used. Claim failures are
// aggregated: every item is attempted, and the joined errors are
// returned alongside the parent ref.
func (c *Client) AddMembers(ctx context.Context, parent blob.Ref, createSet bool, defaultTitle string, items []blob.Ref) (blob.Ref, error) {
	if createSet {
		newSet, err := c.CreatePermanode(ctx)
		if err != nil {
			return blob.Ref{}, err
		}
		parent = newSet
		go func() {
			if _, err := c.SetAttribute(context.WithoutCancel(ctx), parent, nodeattr.Title, defaultTitle); err != nil {
				c.log.Printf("client: setting title of new set %v failed: %v", parent, err)
			}
		}()
	}
	if !parent.Valid() {
		return blob.Ref{}, errorf(KindBadRequest, "addmembers", "no parent set given")
	}
	errs := make([]error, len(items))
	var g errgroup.Group
	g.SetLimit(claimConcurrency)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			_, errs[i] = c.AddAttribute(ctx, parent, nodeattr.CamliMember, item.String())
			return nil
		})
	}
	g.Wait()
	return parent, errors.Join(errs...)
}

// EditTags applies adds and deletes as per-permanode per-tag claims,
// run concurrently. All claims are attempted; failures are joined.
// Successes are not rolled back.
func (c *Client) EditTags(ctx context.Context, permanodes []blob.Ref, add, del []string) error {
	type change struct {
		pn     blob.Ref
		tag    string
		delete bool
	}
	var changes []change
	for _, pn := range permanodes {
		for _, tag := range add {
			changes = append(changes, change{pn: pn, tag: tag})
		}
		for _, tag := range del {
			changes = append(changes, change{pn: pn, tag: tag, delete: true})
		}
	}
	errs := make([]error, len(changes))
	var g errgroup.Group
	g.SetLimit(claimConcurrency)
	for i, ch := range changes {
		i, ch := i, ch
		g.Go(func() error {
			if ch.delete {
				_, errs[i] = c.DelAttribute(ctx, ch.pn, nodeattr.Tag, ch.tag)
			} else {
				_, errs[i] = c.AddAttribute(ctx, ch.pn, nodeattr.Tag, ch.tag)
			}
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}
