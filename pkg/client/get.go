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
	"fmt"
	"io"

	"perkeep.org/webui/pkg/blob"
)

// Fetch returns the blob's contents. The caller must close rc.
func (c *Client) Fetch(ctx context.Context, br blob.Ref) (rc io.ReadCloser, size int64, err error) {
	const op = "fetch"
	if !br.Valid() {
		return nil, 0, errorf(KindBadRequest, op, "invalid blobref")
	}
	root, err := c.BlobRoot()
	if err != nil {
		return nil, 0, err
	}
	req, err := c.newRequest(ctx, "GET", pathJoin(root, "camli/"+br.String()), nil)
	if err != nil {
		return nil, 0, newError(KindBadRequest, op, err)
	}
	res, err := c.doReq(ctx, req)
	if err != nil {
		return nil, 0, newError(KindNetwork, op, err)
	}
	if res.StatusCode != 200 {
		res.Body.Close()
		return nil, 0, errorf(statusKind(res.StatusCode), op, "got status %q fetching %v", res.Status, br)
	}
	return res.Body, res.ContentLength, nil
}

// GetBlobContents fetches the blob and verifies that its bytes hash
// to br, failing with a verify-mismatch error otherwise.
func (c *Client) GetBlobContents(ctx context.Context, br blob.Ref) ([]byte, error) {
	const op = "fetch"
	rc, _, err := c.Fetch(ctx, br)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	all, err := io.ReadAll(rc)
	if err != nil {
		return nil, newError(KindNetwork, op, err)
	}
	if br.IsSupported() {
		h := br.Hash()
		h.Write(all)
		if !br.HashMatches(h) {
			return nil, newError(KindVerifyMismatch, op, fmt.Errorf("fetched bytes don't match %v", br))
		}
	}
	c.statsMutex.Lock()
	c.stats.Fetches.Blobs++
	c.stats.Fetches.Bytes += int64(len(all))
	c.statsMutex.Unlock()
	return all, nil
}
