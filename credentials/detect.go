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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/compute/metadata"

	"github.com/timford/cloudauth/internal"
	"github.com/timford/cloudauth/internal/credsfile"
)

const (
	// jwtTokenURL is the OAuth 2.0 token URL to use with the JWT (2LO) flow.
	jwtTokenURL = "https://oauth2.googleapis.com/token"

	// googleTokenURL is the default OAuth 2.0 token endpoint for user
	// credential flows.
	googleTokenURL = "https://oauth2.googleapis.com/token"

	// adcSetupURL documents how to set up Application Default Credentials.
	adcSetupURL = "https://cloud.google.com/docs/authentication/external/set-up-adc"
)

var (
	// for testing
	timeNow         = time.Now
	allowOnGCECheck = true
	metadataOnGCE   = metadata.OnGCE
)

// OnGCE reports whether this process is running on a compute engine style
// environment with a reachable metadata service.
func OnGCE() bool {
	return allowOnGCECheck && metadataOnGCE()
}

// DetectOptions provides configuration for [DefaultCredentials] and the
// credential factories in this package.
type DetectOptions struct {
	// Scopes that credentials tokens should have. Example:
	// https://www.googleapis.com/auth/cloud-platform. When set together with
	// file-based resolution, the file must describe a service account; scope
	// overrides do not apply to authorized user files. Optional.
	Scopes []string
	// Subject is the user email used for [domain wide delegation]. It only
	// applies to service accounts. Optional.
	//
	// [domain wide delegation]: https://developers.google.com/identity/protocols/oauth2/service-account#delegatingauthority
	Subject string
	// EarlyTokenRefresh configures how early before a token expires that it
	// should be refreshed. Optional.
	EarlyTokenRefresh time.Duration
	// TokenURL allows to set the token endpoint for user credential flows.
	// If unset the default value is: https://oauth2.googleapis.com/token.
	// Optional.
	TokenURL string
	// CredentialsFile overrides detection logic and sources a credential file
	// from the provided filepath. If provided, CredentialsJSON must not be.
	// Optional.
	CredentialsFile string
	// CredentialsJSON overrides detection logic and uses the JSON bytes as
	// the source for the credential. If provided, CredentialsFile must not
	// be. Optional.
	CredentialsJSON []byte
	// Client configures the underlying client used to make network requests
	// when fetching tokens. Optional.
	Client *http.Client
	// Logger is used for debug logging. If provided, logging will be enabled
	// at the loggers configured level. By default logging is disabled unless
	// enabled by setting GOOGLE_SDK_GO_LOGGING_LEVEL in which case a default
	// logger will be used. Optional.
	Logger *slog.Logger
}

func (o *DetectOptions) validate() error {
	if o == nil {
		return errors.New("credentials: options must be provided")
	}
	if len(o.CredentialsJSON) > 0 && o.CredentialsFile != "" {
		return errors.New("credentials: both credentials file and JSON were provided")
	}
	return nil
}

func (o *DetectOptions) tokenURL() string {
	if o.TokenURL != "" {
		return o.TokenURL
	}
	return googleTokenURL
}

func (o *DetectOptions) scopes() []string {
	scopes := make([]string, len(o.Scopes))
	copy(scopes, o.Scopes)
	return scopes
}

func (o *DetectOptions) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return internal.CloneDefaultClient()
}

// DefaultCredentials searches for "Application Default Credentials" and
// returns a credential based on the [DetectOptions] provided.
//
// It looks for credentials in the following places, preferring the first
// location found:
//
//   - A JSON file whose path is specified by the GOOGLE_APPLICATION_CREDENTIALS
//     environment variable. A file that is explicitly named but cannot be
//     read or parsed is a configuration mistake and always a hard error.
//   - A JSON file in a location known to the gcloud command-line tool. On
//     Windows, this is %APPDATA%/gcloud/application_default_credentials.json.
//     On other systems, $HOME/.config/gcloud/application_default_credentials.json.
//     Absence at this optional location is normal and moves the search along.
//   - On compute engine, credentials sourced from the metadata service.
//
// When every location is exhausted a terminal error pointing at the ADC
// setup documentation is returned.
func DefaultCredentials(opts *DetectOptions) (*Credentials, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	creds, err := detectPaths(opts, false)
	if err != nil {
		return nil, err
	}
	if creds != nil {
		return creds, nil
	}

	if OnGCE() {
		return NewComputeEngineCredentials(opts), nil
	}

	return nil, fmt.Errorf("credentials: could not find default credentials. See %v for more information", adcSetupURL)
}

// DefaultServiceAccountCredentials is the narrow variant of
// [DefaultCredentials] that only accepts service account material. The
// metadata service cannot produce a service account file, so the implicit
// compute engine step is skipped; an authorized user file found along the
// way is treated as absence, not as an error.
func DefaultServiceAccountCredentials(opts *DetectOptions) (*Credentials, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	creds, err := detectPaths(opts, true)
	if err != nil {
		return nil, err
	}
	if creds != nil {
		return creds, nil
	}
	return nil, fmt.Errorf("credentials: could not create service account credentials from Application Default Credentials paths. See %v for more information", adcSetupURL)
}

// detectPaths runs the explicit portion of the search: caller-supplied
// material, the environment variable, then the well-known gcloud file. A
// (nil, nil) return means nothing was found anywhere it is legal for
// nothing to be found.
func detectPaths(opts *DetectOptions, serviceAccountOnly bool) (*Credentials, error) {
	if len(opts.CredentialsJSON) > 0 {
		creds, err := fileCredentials(opts.CredentialsJSON, "credentials JSON", serviceAccountOnly, opts)
		if errors.Is(err, errNotServiceAccount) {
			return nil, errors.New("credentials: provided JSON is not a service account credentials file")
		}
		return creds, err
	}

	if filename := credsfile.GetFileNameFromEnv(opts.CredentialsFile); filename != "" {
		// An explicitly named file that cannot be used is a hard error, even
		// when it holds the wrong backend type: the sentinel must not leak
		// out as a confusing "not found".
		creds, err := readCredentialsFile(filename, serviceAccountOnly, opts)
		if errors.Is(err, errNotServiceAccount) {
			return nil, fmt.Errorf("credentials: file %q is not a service account credentials file", filename)
		}
		return creds, err
	}

	filename := credsfile.GetWellKnownFileName()
	if _, err := os.Stat(filename); err != nil {
		// Not having a gcloud credential file is normal.
		return nil, nil
	}
	creds, err := readCredentialsFile(filename, serviceAccountOnly, opts)
	if errors.Is(err, errNotServiceAccount) {
		// The file exists but is not the backend type asked for; let the
		// search continue.
		return nil, nil
	}
	return creds, err
}

func readCredentialsFile(filename string, serviceAccountOnly bool, opts *DetectOptions) (*Credentials, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("credentials: cannot read credentials file %q: %w", filename, err)
	}
	return fileCredentials(b, filename, serviceAccountOnly, opts)
}
