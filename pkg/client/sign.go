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
	"io"
	"net/url"
	"strings"

	"perkeep.org/webui/pkg/blob"
	"perkeep.org/webui/pkg/schema"
)

// Sign sends the builder's clear-text JSON to the server's signing
// handler and returns the signed blob bytes. The signer's public key
// ref is attached to the blob before serialization. A missing signing
// configuration fails before any round-trip.
func (c *Client) Sign(ctx context.Context, bb *schema.Builder) (signed string, err error) {
	const op = "sign"
	signer, err := c.Signer()
	if err != nil {
		return "", err
	}
	bb.SetSigner(signer.PublicKeyBlobRef)
	clearText, err := bb.JSON()
	if err != nil {
		return "", newError(KindSigningFailed, op, err)
	}
	body := "json=" + url.QueryEscape(clearText)
	req, err := c.newRequest(ctx, "POST", c.signHandler, strings.NewReader(body))
	if err != nil {
		return "", newError(KindBadRequest, op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res, err := c.doReq(ctx, req)
	if err != nil {
		return "", newError(KindNetwork, op, err)
	}
	defer res.Body.Close()
	out, err := io.ReadAll(io.LimitReader(res.Body, schema.MaxSchemaBlobSize))
	if err != nil {
		return "", newError(KindNetwork, op, err)
	}
	if res.StatusCode != 200 {
		return "", errorf(KindSigningFailed, op, "got status %q from sign handler: %s", res.Status, out)
	}
	return string(out), nil
}

// SignAndUpload signs the builder's blob and uploads the signed
// bytes, returning the uploaded blob's ref. This is the tail of every
// claim and permanode creation.
func (c *Client) SignAndUpload(ctx context.Context, bb *schema.Builder) (blob.Ref, error) {
	signed, err := c.Sign(ctx, bb)
	if err != nil {
		return blob.Ref{}, err
	}
	br := blob.RefFromString(signed)
	if err := c.UploadString(ctx, signed); err != nil {
		return blob.Ref{}, err
	}
	return br, nil
}
