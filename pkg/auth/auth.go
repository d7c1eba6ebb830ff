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

// Package auth implements the client side of the server's
// authentication schemes.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// An AuthMode adds the credentials a client needs to authenticate
// with the server.
type AuthMode interface {
	// AddAuthHeader inserts in req the credentials needed for a
	// client to authenticate.
	AddAuthHeader(req *http.Request)
}

// ErrNoAuth is returned when the server requires credentials that
// weren't supplied.
var ErrNoAuth = errors.New("auth: missing credentials")

// None is the AuthMode for an open server.
type None struct{}

func (None) AddAuthHeader(req *http.Request) {
	// Nothing.
}

// UserPass sends HTTP basic auth.
type UserPass struct {
	Username, Password string
}

func (up *UserPass) AddAuthHeader(req *http.Request) {
	req.SetBasicAuth(up.Username, up.Password)
}

// TokenAuth sends the single-use token the server's discovery
// response advertises (the "authToken" discovery field), as basic
// auth with the fixed username used by the web UI.
type TokenAuth struct {
	Token string
}

func (t *TokenAuth) AddAuthHeader(req *http.Request) {
	req.SetBasicAuth("ui", t.Token)
}

// NewTokenAuth returns an AuthMode for the given discovery auth
// token.
func NewTokenAuth(token string) (AuthMode, error) {
	if token == "" {
		return nil, fmt.Errorf("auth: empty token")
	}
	return &TokenAuth{Token: token}, nil
}

// FromConfig parses an auth string and returns the corresponding
// AuthMode. The supported forms are "none", "token:<token>", and
// "userpass:user:password".
func FromConfig(authConfig string) (AuthMode, error) {
	pieces := strings.Split(authConfig, ":")
	switch pieces[0] {
	case "none":
		return None{}, nil
	case "token":
		if len(pieces) != 2 {
			return nil, fmt.Errorf("auth: wrong token auth string %q; want \"token:<token>\"", authConfig)
		}
		return NewTokenAuth(pieces[1])
	case "userpass":
		if len(pieces) != 3 {
			return nil, fmt.Errorf("auth: wrong userpass auth string %q; want \"userpass:user:password\"", authConfig)
		}
		return &UserPass{Username: pieces[1], Password: pieces[2]}, nil
	}
	return nil, fmt.Errorf("auth: unknown auth type %q", pieces[0])
}
