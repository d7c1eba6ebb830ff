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
	"net/url"
	"time"

	"go4.org/syncutil"

	"perkeep.org/webui/pkg/blob"
	"perkeep.org/webui/pkg/schema"
	"perkeep.org/webui/pkg/search"
)

// digestGate bounds the number of file digests computed at once, so
// a burst of dropped files doesn't hash them all concurrently.
var digestGate = syncutil.NewGate(4)

// digestChunkSize is how many bytes are read per digest step.
const digestChunkSize = 1 << 20

// WholeFileDigest computes the blobref of r's entire contents,
// reading in 1 MiB chunks so a slow reader can be interrupted via
// ctx between chunks.
func (c *Client) WholeFileDigest(ctx context.Context, r io.Reader) (blob.Ref, error) {
	digestGate.Start()
	defer digestGate.Done()
	h := blob.NewHash()
	buf := make([]byte, digestChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return blob.Ref{}, err
		}
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return blob.Ref{}, err
		}
	}
	return blob.RefFromHash(h), nil
}

// SearchExistingFileSchema returns the refs of "file" schema blobs
// whose whole contents have the given digest. It may return no refs
// and no error when the server knows none.
func (c *Client) SearchExistingFileSchema(ctx context.Context, wholeRef blob.Ref) ([]blob.Ref, error) {
	const op = "wholedigest"
	sr, err := c.SearchRoot()
	if err != nil {
		return nil, err
	}
	res := new(search.WholeDigestResponse)
	url_ := pathJoin(sr, "camli/search/files") + "?wholedigest=" + url.QueryEscape(wholeRef.String())
	if err := c.getJSON(ctx, op, url_, res); err != nil {
		return nil, err
	}
	return res.Files, nil
}

// FileHasContents reports whether f refers to a "file" or "bytes"
// schema blob whose chunks are all available on the server and match
// the digest of wholeRef. It reports false when the server has no
// download helper configured.
func (c *Client) FileHasContents(ctx context.Context, f, wholeRef blob.Ref) bool {
	if err := c.condDiscovery(); err != nil {
		return false
	}
	if c.downloadHelper == "" {
		return false
	}
	url_ := pathJoin(c.downloadHelper, f.String()) + "/?verifycontents=" + url.QueryEscape(wholeRef.String())
	req, err := c.newRequest(ctx, "HEAD", url_, nil)
	if err != nil {
		return false
	}
	res, err := c.doReq(ctx, req)
	if err != nil {
		c.log.Printf("client: download helper HEAD error: %v", err)
		return false
	}
	defer res.Body.Close()
	return res.Header.Get("X-Camli-Contents") == wholeRef.String()
}

// uploadHelperResponse is the upload helper's response shape.
type uploadHelperResponse struct {
	Got []struct {
		FileName string   `json:"filename"`
		FileRef  blob.Ref `json:"fileref"`
	} `json:"got"`
}

// UploadFile stores the file's contents and returns the ref of its
// "file" schema blob. If the server already has a file with the same
// whole-contents digest and confirms it still has all its chunks, that
// existing schema blob's ref is returned without re-uploading.
// modTime, if non-zero, is recorded on the new file.
func (c *Client) UploadFile(ctx context.Context, fileName string, modTime time.Time, contents io.ReadSeeker) (blob.Ref, error) {
	const op = "uploadfile"
	wholeRef, err := c.WholeFileDigest(ctx, contents)
	if err != nil {
		return blob.Ref{}, newError(KindUploadFailed, op, err)
	}
	if existing, err := c.SearchExistingFileSchema(ctx, wholeRef); err == nil {
		for _, f := range existing {
			if c.FileHasContents(ctx, f, wholeRef) {
				return f, nil
			}
		}
	} else {
		c.log.Printf("client: dedup lookup for %v failed, uploading: %v", wholeRef, err)
	}
	if _, err := contents.Seek(0, io.SeekStart); err != nil {
		return blob.Ref{}, newError(KindUploadFailed, op, err)
	}
	return c.uploadFileHelper(ctx, fileName, modTime, contents)
}

func (c *Client) uploadFileHelper(ctx context.Context, fileName string, modTime time.Time, contents io.Reader) (blob.Ref, error) {
	const op = "uploadfile"
	if err := c.condDiscovery(); err != nil {
		return blob.Ref{}, err
	}
	if c.uploadHelper == "" {
		return blob.Ref{}, errorf(KindUploadFailed, op, "server has no upload helper")
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if !modTime.IsZero() {
		if err := mw.WriteField("modtime", schema.RFC3339FromTime(modTime)); err != nil {
			return blob.Ref{}, newError(KindUploadFailed, op, err)
		}
	}
	part, err := mw.CreateFormFile("ui-upload-file-helper-form", fileName)
	if err != nil {
		return blob.Ref{}, newError(KindUploadFailed, op, err)
	}
	if _, err := io.Copy(part, contents); err != nil {
		return blob.Ref{}, newError(KindUploadFailed, op, err)
	}
	if err := mw.Close(); err != nil {
		return blob.Ref{}, newError(KindUploadFailed, op, err)
	}
	req, err := c.newRequest(ctx, "POST", c.uploadHelper, &body)
	if err != nil {
		return blob.Ref{}, newError(KindBadRequest, op, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	res, err := c.doReq(ctx, req)
	if err != nil {
		return blob.Ref{}, newError(KindNetwork, op, err)
	}
	defer res.Body.Close()
	if res.StatusCode != 200 {
		return blob.Ref{}, errorf(statusKind(res.StatusCode), op, "got status %q from upload helper", res.Status)
	}
	var ures uploadHelperResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&ures); err != nil {
		return blob.Ref{}, newError(KindMalformedResponse, op, err)
	}
	if len(ures.Got) == 0 || !ures.Got[0].FileRef.Valid() {
		return blob.Ref{}, errorf(KindUploadFailed, op, "upload helper response has no fileref")
	}
	return ures.Got[0].FileRef, nil
}
