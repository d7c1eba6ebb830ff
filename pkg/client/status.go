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

	"perkeep.org/webui/pkg/types/camtypes"
)

// ServerStatus is the server's status.json response. Only the fields
// the UI reads are parsed.
type ServerStatus struct {
	Version string                 `json:"version"`
	Errors  []camtypes.StatusError `json:"errors,omitempty"`
}

// Status fetches the server's status.
func (c *Client) Status(ctx context.Context) (*ServerStatus, error) {
	const op = "status"
	if err := c.condDiscovery(); err != nil {
		return nil, err
	}
	if c.statusRoot == "" {
		return nil, errorf(KindNotFound, op, "server has no status handler")
	}
	st := new(ServerStatus)
	if err := c.getJSON(ctx, op, pathJoin(c.statusRoot, "status.json"), st); err != nil {
		return nil, err
	}
	return st, nil
}
