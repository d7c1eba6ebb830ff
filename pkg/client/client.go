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

// Package client implements the UI's access to the server: discovery,
// search, blob fetching, signing, and uploads.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/context/ctxhttp"

	"perkeep.org/webui/pkg/auth"
)

// A Client provides access to the server.
type Client struct {
	// server is the input from the user, pre-discovery. For
	// example "http://foo.com" or "foo.com:3179".
	server string

	authMode   auth.AuthMode
	httpClient *http.Client
	log        *log.Logger // not nil

	discoOnce sync.Once
	discoErr  error
	config    *Config
	// resolved endpoint URLs, set by doDiscovery:
	blobRoot       string
	searchRoot     string
	signHandler    string
	statusRoot     string
	uploadHelper   string
	downloadHelper string

	statsMutex sync.Mutex
	stats      Stats
}

// Option is an optional argument to New.
type Option func(*Client)

// OptionServer sets the server to talk to, as a "host:port" (assumed
// http) or a URL prefix.
func OptionServer(server string) Option {
	return func(c *Client) { c.server = server }
}

// OptionAuthMode sets the authentication mode.
func OptionAuthMode(am auth.AuthMode) Option {
	return func(c *Client) { c.authMode = am }
}

// OptionHTTPClient sets the HTTP client to use. If not used, the
// default HTTP client is used.
func OptionHTTPClient(cl *http.Client) Option {
	return func(c *Client) { c.httpClient = cl }
}

// OptionLogger sets the client's logger. A nil logger discards.
func OptionLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger == nil {
			logger = log.New(io.Discard, "", 0)
		}
		c.log = logger
	}
}

// OptionConfig sets the discovery configuration directly, skipping
// the discovery request. The browser uses this: the server embeds the
// configuration in the page it serves.
func OptionConfig(conf *Config) Option {
	return func(c *Client) { c.config = conf }
}

// New returns a new Client.
// Errors from discovery are not returned until subsequent operations.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		authMode:   auth.None{},
		httpClient: http.DefaultClient,
		log:        log.New(io.Discard, "", 0),
	}
	for _, v := range opts {
		v(c)
	}
	if c.server == "" && c.config == nil {
		return nil, errors.New("client: no server and no configuration given")
	}
	if c.config != nil {
		if err := c.initFromConfig(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Stats contains upload and fetch statistics.
type Stats struct {
	UploadRequests struct {
		Blobs int
		Bytes int64
	}
	Uploads struct {
		Blobs int
		Bytes int64
	}
	Fetches struct {
		Blobs int
		Bytes int64
	}
}

// Stats returns the client's usage statistics so far.
func (c *Client) Stats() Stats {
	c.statsMutex.Lock()
	defer c.statsMutex.Unlock()
	return c.stats // copy
}

func (c *Client) discoRoot() string {
	s := c.server
	if !strings.HasPrefix(s, "http") {
		s = "http://" + s
	}
	return s
}

func (c *Client) initFromConfig() error {
	base, err := url.Parse(c.discoRoot())
	if err != nil {
		return err
	}
	conf := c.config
	for _, f := range []struct {
		dst  *string
		path string
	}{
		{&c.blobRoot, conf.BlobRoot},
		{&c.searchRoot, conf.SearchRoot},
		{&c.statusRoot, conf.StatusRoot},
		{&c.uploadHelper, conf.UploadHelper},
		{&c.downloadHelper, conf.DownloadHelper},
	} {
		if *f.dst, err = resolve(base, f.path); err != nil {
			return err
		}
	}
	if conf.Signing != nil {
		if c.signHandler, err = resolve(base, conf.Signing.SignHandler); err != nil {
			return err
		}
	}
	if conf.AuthToken != "" {
		if _, ok := c.authMode.(auth.None); ok {
			am, err := auth.NewTokenAuth(conf.AuthToken)
			if err != nil {
				return err
			}
			c.authMode = am
		}
	}
	return nil
}

func (c *Client) condDiscovery() error {
	c.discoOnce.Do(func() { c.discoErr = c.doDiscovery() })
	return c.discoErr
}

func (c *Client) doDiscovery() error {
	if c.config != nil {
		return nil // configured directly
	}
	const op = "discovery"
	req, err := http.NewRequest("GET", c.discoRoot(), nil)
	if err != nil {
		return newError(KindBadRequest, op, err)
	}
	req.Header.Set("Accept", "text/x-camli-configuration")
	c.authMode.AddAuthHeader(req)
	res, err := c.httpClient.Do(req)
	if err != nil {
		return newError(KindNetwork, op, err)
	}
	defer res.Body.Close()
	if res.StatusCode != 200 {
		return errorf(statusKind(res.StatusCode), op, "got status %q from %q", res.Status, c.discoRoot())
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return newError(KindNetwork, op, err)
	}
	conf, err := ParseConfig(body)
	if err != nil {
		return newError(KindMalformedResponse, op, err)
	}
	c.config = conf
	if err := c.initFromConfig(); err != nil {
		return newError(KindMalformedResponse, op, err)
	}
	return nil
}

// ErrNoSearchRoot is returned when the server doesn't support search.
var ErrNoSearchRoot = errors.New("client: server doesn't support search")

// ErrNoSigning is returned when the server has no signing handler
// configured.
var ErrNoSigning = errors.New("client: server has no signing configuration")

// SearchRoot returns the server's resolved search handler URL, or
// ErrNoSearchRoot if the server doesn't support search.
func (c *Client) SearchRoot() (string, error) {
	if err := c.condDiscovery(); err != nil {
		return "", err
	}
	if c.searchRoot == "" {
		return "", ErrNoSearchRoot
	}
	return c.searchRoot, nil
}

// BlobRoot returns the server's resolved blob handler URL.
func (c *Client) BlobRoot() (string, error) {
	if err := c.condDiscovery(); err != nil {
		return "", err
	}
	return c.blobRoot, nil
}

// Signer returns the signing configuration, or ErrNoSigning wrapped
// as a signing-failed Error if the server has none. No round-trip is
// made.
func (c *Client) Signer() (*SignerConfig, error) {
	if err := c.condDiscovery(); err != nil {
		return nil, err
	}
	if c.config.Signing == nil || !c.config.Signing.PublicKeyBlobRef.Valid() || c.signHandler == "" {
		return nil, newError(KindSigningFailed, "sign", ErrNoSigning)
	}
	return c.config.Signing, nil
}

// WebSocketURL returns the search push channel URL, with the ws(s)
// scheme and the auth token attached, or "" if the server supports no
// search or supplied no token.
func (c *Client) WebSocketURL() string {
	if err := c.condDiscovery(); err != nil {
		return ""
	}
	if c.searchRoot == "" || c.config.WSAuthToken == "" {
		return ""
	}
	u, err := url.Parse(pathJoin(c.searchRoot, "camli/search/ws"))
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery = "authtoken=" + url.QueryEscape(c.config.WSAuthToken)
	return u.String()
}

// MapClustering reports whether the server wants map results
// clustered client-side.
func (c *Client) MapClustering() bool {
	if err := c.condDiscovery(); err != nil {
		return false
	}
	return c.config.MapClustering
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	c.authMode.AddAuthHeader(req)
	return req, nil
}

func (c *Client) doReq(ctx context.Context, req *http.Request) (*http.Response, error) {
	return ctxhttp.Do(ctx, c.httpClient, req)
}

// getJSON issues a GET and decodes the 200 response body into dst.
func (c *Client) getJSON(ctx context.Context, op, url string, dst interface{}) error {
	req, err := c.newRequest(ctx, "GET", url, nil)
	if err != nil {
		return newError(KindBadRequest, op, err)
	}
	res, err := c.doReq(ctx, req)
	if err != nil {
		return newError(KindNetwork, op, err)
	}
	defer res.Body.Close()
	if res.StatusCode != 200 {
		return errorf(statusKind(res.StatusCode), op, "got status %q from %s", res.Status, url)
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 8<<20)).Decode(dst); err != nil {
		return newError(KindMalformedResponse, op, fmt.Errorf("error parsing JSON from %s: %v", url, err))
	}
	return nil
}
