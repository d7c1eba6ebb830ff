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
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a client failure.
type ErrorKind string

const (
	// KindNetwork is a transport-level failure: the request never
	// got a response.
	KindNetwork ErrorKind = "network-error"
	// KindAuthMissing is a 401 or 403 from the server.
	KindAuthMissing ErrorKind = "auth-missing"
	// KindMalformedResponse is a response body the client could
	// not parse.
	KindMalformedResponse ErrorKind = "malformed-response"
	// KindSigningFailed is a failure to sign a claim, including a
	// missing signer configuration, detected before any round-trip.
	KindSigningFailed ErrorKind = "signing-failed"
	// KindUploadFailed is a blob or file upload the server did not
	// acknowledge.
	KindUploadFailed ErrorKind = "upload-failed"
	// KindVerifyMismatch is a downloaded blob whose bytes do not
	// hash to its ref.
	KindVerifyMismatch ErrorKind = "verify-mismatch"
	// KindNotFound is a 404.
	KindNotFound ErrorKind = "not-found"
	// KindBadRequest is a 400, or a request the client rejects
	// before sending.
	KindBadRequest ErrorKind = "bad-request"
	// KindServer is any 5xx.
	KindServer ErrorKind = "server-error"
)

// Error is the error type returned by all Client operations.
type Error struct {
	Kind ErrorKind
	Op   string // the operation, e.g. "sign" or "upload"
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("client: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func errorf(kind ErrorKind, op, format string, arg ...interface{}) *Error {
	return newError(kind, op, fmt.Errorf(format, arg...))
}

// KindOf returns the ErrorKind of err, or "" if err is not a client
// Error.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// statusKind maps an unexpected HTTP status to an ErrorKind.
func statusKind(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuthMissing
	case code == http.StatusNotFound:
		return KindNotFound
	case code == http.StatusBadRequest:
		return KindBadRequest
	case code >= 500:
		return KindServer
	}
	return KindMalformedResponse
}
