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
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"perkeep.org/webui/pkg/blob"
)

// Config is the server's discovery configuration, as served at the
// server root. Handler fields are URL paths, absolute or relative to
// the server root; see Client's accessors for the resolved forms.
type Config struct {
	BlobRoot     string `json:"blobRoot"`
	SearchRoot   string `json:"searchRoot,omitempty"`
	JSONSignRoot string `json:"jsonSignRoot,omitempty"`
	StatusRoot   string `json:"statusRoot,omitempty"`

	UploadHelper   string `json:"uploadHelper,omitempty"`
	DownloadHelper string `json:"downloadHelper,omitempty"`

	Signing *SignerConfig `json:"signing,omitempty"`

	PublishRoots map[string]*PublishRoot `json:"publishRoots,omitempty"`

	// WSAuthToken authenticates the search WebSocket.
	WSAuthToken string `json:"wsAuthToken,omitempty"`
	// AuthToken authenticates the UI's HTTP requests.
	AuthToken string `json:"authToken,omitempty"`

	UIRoot        string `json:"uiRoot,omitempty"`
	MapClustering bool   `json:"mapClustering,omitempty"`
	OwnerName     string `json:"ownerName,omitempty"`
}

// SignerConfig describes the server's signing handler.
type SignerConfig struct {
	PublicKeyBlobRef blob.Ref `json:"publicKeyBlobRef"`
	SignHandler      string   `json:"signHandler"`
	VerifyHandler    string   `json:"verifyHandler"`
}

// PublishRoot describes one configured publishing root.
type PublishRoot struct {
	Prefix           []string `json:"prefix"`
	CurrentPermanode blob.Ref `json:"currentPermanode,omitempty"`
}

// ParseConfig parses a discovery response body.
func ParseConfig(body []byte) (*Config, error) {
	conf := new(Config)
	if err := json.Unmarshal(body, conf); err != nil {
		return nil, fmt.Errorf("client: error parsing discovery response: %v", err)
	}
	if conf.BlobRoot == "" {
		return nil, fmt.Errorf("client: no blobRoot in discovery response")
	}
	return conf, nil
}

// resolve resolves a discovery path against the server base URL.
// An empty path resolves to "".
func resolve(base *url.URL, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	u, err := base.Parse(path)
	if err != nil {
		return "", fmt.Errorf("client: invalid discovery path %q: %v", path, err)
	}
	return u.String(), nil
}

// pathJoin joins a resolved root and a suffix with exactly one slash.
func pathJoin(root, suffix string) string {
	return strings.TrimRight(root, "/") + "/" + strings.TrimLeft(suffix, "/")
}
