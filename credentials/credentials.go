// Copyright 2026 Tim Ford
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package credentials

import (
	"context"
	"fmt"
	"os"

	"github.com/timford/cloudauth"
	"github.com/timford/cloudauth/internal/credsfile"
)

// Credentials holds credentials for authorizing API requests. Instances are
// created once, by [DefaultCredentials] or one of the direct factories, and
// live for the duration of the client session. They are safe for concurrent
// use: the cached token is the only mutable state and it is owned by the
// wrapped provider.
type Credentials struct {
	json      []byte
	projectID func() string
	email     func(context.Context) string

	auth.TokenProvider
}

// AuthorizationHeader returns the complete header line, in the form
// "Authorization: <type> <token>", that authorizes a request at the time of
// the call, refreshing the underlying token first if the cached one has
// expired. Concurrent callers are safe; at most one refresh is in flight per
// credential instance.
func (c *Credentials) AuthorizationHeader(ctx context.Context) (string, error) {
	tok, err := c.Token(ctx)
	if err != nil {
		return "", err
	}
	return tok.AuthorizationHeader(), nil
}

// AccountEmail returns the email of the account these credentials represent,
// or an empty string when the backend has no notion of one. For compute
// engine credentials the answer may require a metadata-server query; that
// lookup is best effort and its result is cached.
func (c *Credentials) AccountEmail(ctx context.Context) string {
	if c.email == nil {
		return ""
	}
	return c.email(ctx)
}

// JSON returns the bytes associated with the file used to source
// credentials, if one was used.
func (c *Credentials) JSON() []byte {
	return c.json
}

// ProjectID returns the associated project ID from the underlying file, if
// one declared it, or from the metadata server for compute engine
// credentials. The lookup, if any, only happens on first call.
func (c *Credentials) ProjectID() string {
	if c.projectID == nil {
		return ""
	}
	return c.projectID()
}

// anonymousProvider implements [auth.TokenProvider] with a constant empty
// token. It never expires and never goes through the refreshing cache.
type anonymousProvider struct{}

func (anonymousProvider) Token(context.Context) (*auth.Token, error) {
	return &auth.Token{}, nil
}

// NewAnonymousCredentials returns credentials that authorize nothing. Useful
// against publicly readable resources.
func NewAnonymousCredentials() *Credentials {
	return &Credentials{TokenProvider: anonymousProvider{}}
}

// NewServiceAccountCredentials returns credentials for the service account
// described by the JSON key file contents b.
func NewServiceAccountCredentials(b []byte, opts *DetectOptions) (*Credentials, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	f, err := credsfile.ParseServiceAccount(b)
	if err != nil {
		return nil, fmt.Errorf("credentials: malformed service account file: %w", err)
	}
	return serviceAccountCredentials(f, b, opts)
}

// NewServiceAccountCredentialsFromFile returns credentials for the service
// account key file at path. The file may be a JSON key or, as a second
// attempt when the contents are not JSON at all, a PKCS#12 keystore.
func NewServiceAccountCredentialsFromFile(path string, opts *DetectOptions) (*Credentials, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("credentials: cannot read credentials file %q: %w", path, err)
	}
	f, jsonErr := credsfile.ParseServiceAccount(b)
	if jsonErr == nil && f != nil && f.Type == credsfile.ServiceAccountKey {
		return serviceAccountCredentials(f, b, opts)
	}
	f, err = credsfile.ParseServiceAccountP12(b)
	if err != nil {
		// The keystore library's errors are too implementation-specific to
		// help a caller who may not even know a keystore is involved.
		return nil, fmt.Errorf("credentials: invalid credentials file %q", path)
	}
	return serviceAccountCredentials(f, nil, opts)
}

// NewUserCredentials returns credentials for the authorized user described
// by the JSON file contents b.
func NewUserCredentials(b []byte, opts *DetectOptions) (*Credentials, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	f, err := credsfile.ParseUserCredentials(b)
	if err != nil {
		return nil, fmt.Errorf("credentials: malformed authorized user file: %w", err)
	}
	return userCredentials(f, b, opts)
}

// NewUserCredentialsFromFile returns credentials for the authorized user
// JSON file at path.
func NewUserCredentialsFromFile(path string, opts *DetectOptions) (*Credentials, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("credentials: cannot read credentials file %q: %w", path, err)
	}
	return NewUserCredentials(b, opts)
}
