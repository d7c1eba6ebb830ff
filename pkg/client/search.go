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
	"errors"
	"fmt"
	"io"
	"net/url"

	"perkeep.org/webui/pkg/blob"
	"perkeep.org/webui/pkg/search"
)

// QueryOpts are the optional parts of a search query built with
// BuildQuery.
type QueryOpts struct {
	Describe *search.DescribeRequest
	Limit    int
	Sort     search.SortType // default is -created

	// Continue resumes pagination. Mutually exclusive with Around.
	Continue string
	// Around centers the result page on this blob.
	Around blob.Ref
}

// BuildQuery builds a search query body. exprOrConstraint is either a
// string search expression or a *search.Constraint. Sort defaults to
// -created. Supplying both Continue and Around is an error, reported
// before any round-trip.
func BuildQuery(exprOrConstraint interface{}, opts QueryOpts) (*search.SearchQuery, error) {
	const op = "search"
	sq := &search.SearchQuery{
		Limit:    opts.Limit,
		Sort:     opts.Sort,
		Describe: opts.Describe,
	}
	switch v := exprOrConstraint.(type) {
	case string:
		sq.Expression = v
	case *search.Constraint:
		sq.Constraint = v
	default:
		return nil, errorf(KindBadRequest, op, "unsupported query type %T", exprOrConstraint)
	}
	if sq.Sort == search.UnspecifiedSort {
		sq.Sort = search.CreatedDesc
	}
	if opts.Continue != "" && opts.Around.Valid() {
		return nil, errorf(KindBadRequest, op, "around and continue are mutually exclusive")
	}
	sq.Continue = opts.Continue
	sq.Around = opts.Around
	return sq, nil
}

// Query sends a search query and returns the parsed result page.
func (c *Client) Query(ctx context.Context, sq *search.SearchQuery) (*search.SearchResult, error) {
	body, err := c.QueryRaw(ctx, sq)
	if err != nil {
		return nil, err
	}
	res := new(search.SearchResult)
	if err := json.Unmarshal(body, res); err != nil {
		return nil, newError(KindMalformedResponse, "search", err)
	}
	return res, nil
}

// QueryRaw sends a search query and returns the raw JSON response
// body.
func (c *Client) QueryRaw(ctx context.Context, sq *search.SearchQuery) ([]byte, error) {
	const op = "search"
	if sq.Continue != "" && sq.Around.Valid() {
		return nil, errorf(KindBadRequest, op, "around and continue are mutually exclusive")
	}
	sr, err := c.SearchRoot()
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(sq)
	if err != nil {
		return nil, newError(KindBadRequest, op, err)
	}
	req, err := c.newRequest(ctx, "POST", pathJoin(sr, "camli/search/query"), bytes.NewReader(body))
	if err != nil {
		return nil, newError(KindBadRequest, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.doReq(ctx, req)
	if err != nil {
		return nil, newError(KindNetwork, op, err)
	}
	defer res.Body.Close()
	if res.StatusCode != 200 {
		return nil, errorf(statusKind(res.StatusCode), op, "got status %q from search handler", res.Status)
	}
	all, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return nil, newError(KindNetwork, op, err)
	}
	return all, nil
}

// Describe sends a standalone describe request.
func (c *Client) Describe(ctx context.Context, dr *search.DescribeRequest) (*search.DescribeResponse, error) {
	const op = "describe"
	sr, err := c.SearchRoot()
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(dr)
	if err != nil {
		return nil, newError(KindBadRequest, op, err)
	}
	req, err := c.newRequest(ctx, "POST", pathJoin(sr, "camli/search/describe"), bytes.NewReader(body))
	if err != nil {
		return nil, newError(KindBadRequest, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.doReq(ctx, req)
	if err != nil {
		return nil, newError(KindNetwork, op, err)
	}
	defer res.Body.Close()
	if res.StatusCode != 200 {
		return nil, errorf(statusKind(res.StatusCode), op, "got status %q from describe handler", res.Status)
	}
	dres := new(search.DescribeResponse)
	if err := json.NewDecoder(io.LimitReader(res.Body, 8<<20)).Decode(dres); err != nil {
		return nil, newError(KindMalformedResponse, op, err)
	}
	return dres, nil
}

// Claims returns the permanode's claims, in date order.
func (c *Client) Claims(ctx context.Context, pn blob.Ref) (*search.ClaimsResponse, error) {
	const op = "claims"
	if !pn.Valid() {
		return nil, errorf(KindBadRequest, op, "invalid permanode ref")
	}
	sr, err := c.SearchRoot()
	if err != nil {
		return nil, err
	}
	res := new(search.ClaimsResponse)
	url_ := pathJoin(sr, "camli/search/claims") + "?permanode=" + url.QueryEscape(pn.String())
	if err := c.getJSON(ctx, op, url_, res); err != nil {
		return nil, err
	}
	return res, nil
}

// PathsOfSignerTarget returns the camliPath edges from signer's
// permanodes to target.
func (c *Client) PathsOfSignerTarget(ctx context.Context, signer, target blob.Ref) ([]*search.SignerPath, error) {
	const op = "signerpaths"
	sr, err := c.SearchRoot()
	if err != nil {
		return nil, err
	}
	res := new(search.SignerPathsResponse)
	url_ := fmt.Sprintf("%s?signer=%s&target=%s",
		pathJoin(sr, "camli/search/signerpaths"),
		url.QueryEscape(signer.String()), url.QueryEscape(target.String()))
	if err := c.getJSON(ctx, op, url_, res); err != nil {
		return nil, err
	}
	if res.Error != "" {
		return nil, newError(KindServer, op, errors.New(res.Error))
	}
	return res.Paths, nil
}

// PermanodeOfSignerAttrValue returns the signer's permanode whose
// attribute attr has the value value.
func (c *Client) PermanodeOfSignerAttrValue(ctx context.Context, signer blob.Ref, attr, value string) (blob.Ref, error) {
	const op = "signerattrvalue"
	sr, err := c.SearchRoot()
	if err != nil {
		return blob.Ref{}, err
	}
	res := new(search.SignerAttrValueResponse)
	url_ := fmt.Sprintf("%s?signer=%s&attr=%s&value=%s",
		pathJoin(sr, "camli/search/signerattrvalue"),
		url.QueryEscape(signer.String()), url.QueryEscape(attr), url.QueryEscape(value))
	if err := c.getJSON(ctx, op, url_, res); err != nil {
		return blob.Ref{}, err
	}
	if res.Error != "" {
		return blob.Ref{}, newError(KindNotFound, op, errors.New(res.Error))
	}
	if !res.Permanode.Valid() {
		return blob.Ref{}, errorf(KindNotFound, op, "no permanode found")
	}
	return res.Permanode, nil
}
