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
	"errors"
	"fmt"

	"github.com/timford/cloudauth"
	"github.com/timford/cloudauth/internal/credsfile"
)

// errNotServiceAccount reports that a credential file exists and is well
// formed, but is not the backend type the caller asked for. It is
// deliberately distinguishable from both success and hard failure so the
// resolver can treat it as absence and move on to the next search step. It
// is never surfaced to end users.
var errNotServiceAccount = errors.New("credentials: file is not a service account credentials file")

// fileCredentials classifies the credential file contents b and constructs
// the matching backend. path is only used in error messages.
//
// The contents are first read as JSON and dispatched on the "type"
// discriminator. When the bytes are not JSON at all they are re-read as a
// PKCS#12 keystore holding a service account key.
//
// Caller-supplied scope and subject overrides only make sense for service
// accounts, so an authorized_user file found while they are set, or while
// serviceAccountOnly resolution was requested, yields [errNotServiceAccount]
// rather than an error.
func fileCredentials(b []byte, path string, serviceAccountOnly bool, opts *DetectOptions) (*Credentials, error) {
	fileType, err := credsfile.ParseFileType(b)
	if err != nil {
		f, p12Err := credsfile.ParseServiceAccountP12(b)
		if p12Err != nil {
			// The keystore library's errors are too implementation-specific
			// to help a caller who may not even know a keystore is involved.
			return nil, fmt.Errorf("credentials: invalid credentials file %q", path)
		}
		return serviceAccountCredentials(f, nil, opts)
	}

	switch fileType {
	case credsfile.UserCredentialsKey:
		if serviceAccountOnly || opts.Subject != "" || len(opts.Scopes) > 0 {
			return nil, errNotServiceAccount
		}
		f, err := credsfile.ParseUserCredentials(b)
		if err != nil {
			return nil, fmt.Errorf("credentials: malformed authorized user file %q: %w", path, err)
		}
		return userCredentials(f, b, opts)
	case credsfile.ServiceAccountKey:
		f, err := credsfile.ParseServiceAccount(b)
		if err != nil {
			return nil, fmt.Errorf("credentials: malformed service account file %q: %w", path, err)
		}
		return serviceAccountCredentials(f, b, opts)
	default:
		return nil, fmt.Errorf("credentials: unsupported credential type %q when reading credentials from %q", fileType, path)
	}
}

// serviceAccountCredentials builds a service account credential from f,
// applying the caller's scope and subject overrides after parsing so that
// they always win over anything declared in the file.
func serviceAccountCredentials(f *credsfile.ServiceAccountFile, json []byte, opts *DetectOptions) (*Credentials, error) {
	opts2LO := &auth.Options2LO{
		Email:        f.ClientEmail,
		PrivateKey:   []byte(f.PrivateKey),
		PrivateKeyID: f.PrivateKeyID,
		Scopes:       opts.scopes(),
		TokenURL:     f.TokenURL,
		Subject:      opts.Subject,
		Client:       opts.client(),
		Logger:       opts.Logger,
	}
	if opts2LO.TokenURL == "" {
		opts2LO.TokenURL = jwtTokenURL
	}
	tp, err := auth.New2LOTokenProvider(opts2LO)
	if err != nil {
		return nil, err
	}
	return newCredentials(tp, json, f.ProjectID, staticEmail(f.ClientEmail), opts), nil
}

// userCredentials builds an authorized user credential from f using the
// refresh-token grant.
func userCredentials(f *credsfile.UserCredentialsFile, json []byte, opts *DetectOptions) (*Credentials, error) {
	opts3LO := &auth.Options3LO{
		ClientID:     f.ClientID,
		ClientSecret: f.ClientSecret,
		RefreshToken: f.RefreshToken,
		TokenURL:     opts.tokenURL(),
		Client:       opts.client(),
		Logger:       opts.Logger,
	}
	tp, err := auth.New3LOTokenProvider(opts3LO)
	if err != nil {
		return nil, err
	}
	return newCredentials(tp, json, f.QuotaProjectID, nil, opts), nil
}

func newCredentials(tp auth.TokenProvider, json []byte, projectID string, email func(context.Context) string, opts *DetectOptions) *Credentials {
	return &Credentials{
		json:      json,
		projectID: staticProjectID(projectID),
		email:     email,
		TokenProvider: auth.NewCachedTokenProvider(tp, &auth.CachedTokenProviderOptions{
			ExpireEarly: opts.EarlyTokenRefresh,
		}),
	}
}

func staticEmail(email string) func(context.Context) string {
	if email == "" {
		return nil
	}
	return func(context.Context) string { return email }
}

func staticProjectID(projectID string) func() string {
	if projectID == "" {
		return nil
	}
	return func() string { return projectID }
}
