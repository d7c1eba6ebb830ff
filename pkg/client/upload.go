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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"

	"perkeep.org/webui/pkg/blob"
	"perkeep.org/webui/pkg/schema"
)

// uploadResponse is the blob server's response to a multipart upload.
type uploadResponse struct {
	Received  []blob.SizedRef `json:"received"`
	ErrorText string          `json:"errorText,omitempty"`
}

// UploadString uploads the blob with s's bytes, named by their
// digest.
func (c *Client) UploadString(ctx context.Context, s string) error {
	return c.UploadBlob(ctx, blob.RefFromString(s), []byte(s))
}

// UploadBlob uploads contents as the blob br. br must be the digest
// of contents; the server rejects mismatches.
func (c *Client) UploadBlob(ctx context.Context, br blob.Ref, contents []byte) error {
	const op = "upload"
	root, err := c.BlobRoot()
	if err != nil {
		return err
	}
	c.statsMutex.Lock()
	c.stats.UploadRequests.Blobs++
	c.stats.UploadRequests.Bytes += int64(len(contents))
	c.statsMutex.Unlock()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(br.String(), br.String())
	if err != nil {
		return newError(KindUploadFailed, op, err)
	}
	if _, err := part.Write(contents); err != nil {
		return newError(KindUploadFailed, op, err)
	}
	if err := mw.Close(); err != nil {
		return newError(KindUploadFailed, op, err)
	}

	req, err := c.newRequest(ctx, "POST", pathJoin(root, "camli/upload"), &body)
	if err != nil {
		return newError(KindBadRequest, op, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	res, err := c.doReq(ctx, req)
	if err != nil {
		return newError(KindNetwork, op, err)
	}
	defer res.Body.Close()
	if res.StatusCode != 200 && res.StatusCode != 303 {
		return errorf(statusKind(res.StatusCode), op, "got status %q from upload handler", res.Status)
	}
	var ures uploadResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&ures); err != nil {
		return newError(KindMalformedResponse, op, err)
	}
	if ures.ErrorText != "" {
		c.log.Printf("client: blob server reports error: %s", ures.ErrorText)
	}
	for _, sb := range ures.Received {
		if sb.Ref == br {
			c.statsMutex.Lock()
			c.stats.Uploads.Blobs++
			c.stats.Uploads.Bytes += int64(len(contents))
			c.statsMutex.Unlock()
			return nil
		}
	}
	return errorf(KindUploadFailed, op, "server didn't receive blob %v", br)
}

// CreatePermanode generates a fresh permanode, signs it, uploads it,
// and returns the uploaded blob's ref.
func (c *Client) CreatePermanode(ctx context.Context) (blob.Ref, error) {
	return c.SignAndUpload(ctx, schema.NewUnsignedPermanode())
}

// SetAttribute signs and uploads a set-attribute claim, replacing any
// prior values of attr on the permanode. It returns the claim's ref.
func (c *Client) SetAttribute(ctx context.Context, permanode blob.Ref, attr, value string) (blob.Ref, error) {
	return c.SignAndUpload(ctx, schema.NewSetAttributeClaim(permanode, attr, value))
}

// AddAttribute signs and uploads an add-attribute claim, appending
// value to attr's values on the permanode. It returns the claim's
// ref.
func (c *Client) AddAttribute(ctx context.Context, permanode blob.Ref, attr, value string) (blob.Ref, error) {
	return c.SignAndUpload(ctx, schema.NewAddAttributeClaim(permanode, attr, value))
}

// DelAttribute signs and uploads a del-attribute claim, removing
// value from attr's values on the permanode, or all values if value
// is empty. It returns the claim's ref.
func (c *Client) DelAttribute(ctx context.Context, permanode blob.Ref, attr, value string) (blob.Ref, error) {
	return c.SignAndUpload(ctx, schema.NewDelAttributeClaim(permanode, attr, value))
}

// Delete signs and uploads a delete claim tombstoning target. It
// returns the claim's ref.
func (c *Client) Delete(ctx context.Context, target blob.Ref) (blob.Ref, error) {
	return c.SignAndUpload(ctx, schema.NewDeleteClaim(target))
}

// Share signs and uploads a haveref share claim for target: anyone
// who knows the returned ref can fetch the target, and its whole
// tree when transitive is set.
func (c *Client) Share(ctx context.Context, target blob.Ref, transitive bool) (blob.Ref, error) {
	return c.SignAndUpload(ctx, schema.NewShareRef(schema.ShareHaveRef, target, transitive))
}
