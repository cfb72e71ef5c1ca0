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

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/googleapis/gax-go/v2/internallog"

	"github.com/timford/cloudauth/internal"
)

// Options3LO are the options for a 3-legged flow whose user-consent leg has
// already happened: the refresh token obtained from it is exchanged for
// access tokens on demand.
type Options3LO struct {
	// ClientID is the application's ID.
	ClientID string
	// ClientSecret is the application's secret.
	ClientSecret string
	// TokenURL is the URL the refresh grant is sent to. Required.
	TokenURL string
	// RefreshToken is the token used to obtain access tokens. Required.
	RefreshToken string
	// Client is the client to be used to make the underlying token requests.
	// Optional.
	Client *http.Client
	// Logger is used for debug logging. If provided, logging will be enabled
	// at the loggers configured level. By default logging is disabled unless
	// enabled by setting GOOGLE_SDK_GO_LOGGING_LEVEL in which case a default
	// logger will be used. Optional.
	Logger *slog.Logger
}

func (o *Options3LO) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return internal.CloneDefaultClient()
}

func (o *Options3LO) validate() error {
	if o == nil {
		return errors.New("auth: options must be provided")
	}
	if o.ClientID == "" {
		return errors.New("auth: client ID must be provided")
	}
	if o.RefreshToken == "" {
		return errors.New("auth: refresh token must be provided")
	}
	if o.TokenURL == "" {
		return errors.New("auth: token URL must be provided")
	}
	return nil
}

// New3LOTokenProvider returns a [TokenProvider] based on the provided fields
// set on [Options3LO].
func New3LOTokenProvider(opts *Options3LO) (TokenProvider, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return tokenProvider3LO{o: opts, Client: opts.client(), logger: internallog.New(opts.Logger)}, nil
}

type tokenProvider3LO struct {
	o      *Options3LO
	Client *http.Client
	logger *slog.Logger
}

func (tp tokenProvider3LO) Token(ctx context.Context) (*Token, error) {
	v := url.Values{}
	v.Set("grant_type", refreshTokenGrantType)
	v.Set("refresh_token", tp.o.RefreshToken)
	v.Set("client_id", tp.o.ClientID)
	v.Set("client_secret", tp.o.ClientSecret)
	return doTokenRoundTrip(ctx, tp.Client, tp.logger, tp.o.TokenURL, v)
}
