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

// Package oauth2adapt helps converts types used in [github.com/timford/cloudauth]
// and [golang.org/x/oauth2].
package oauth2adapt

import (
	"context"
	"errors"

	"golang.org/x/oauth2"

	"github.com/timford/cloudauth"
)

// TokenProviderFromTokenSource converts any [golang.org/x/oauth2.TokenSource]
// into an [auth.TokenProvider].
func TokenProviderFromTokenSource(ts oauth2.TokenSource) auth.TokenProvider {
	return tokenProviderAdapter{ts: ts}
}

type tokenProviderAdapter struct {
	ts oauth2.TokenSource
}

// Token fulfills the [auth.TokenProvider] interface. It is a light wrapper
// around the underlying TokenSource; the source's own caching applies and
// context is not plumbed through, as the interface it wraps predates context.
func (tp tokenProviderAdapter) Token(context.Context) (*auth.Token, error) {
	tok, err := tp.ts.Token()
	if err != nil {
		var err2 *oauth2.RetrieveError
		if ok := errors.As(err, &err2); ok {
			return nil, &auth.Error{
				Response: err2.Response,
				Body:     err2.Body,
				Err:      err2,
			}
		}
		return nil, err
	}
	return &auth.Token{
		Value:  tok.AccessToken,
		Type:   tok.TokenType,
		Expiry: tok.Expiry,
	}, nil
}

// TokenSourceFromTokenProvider converts any [auth.TokenProvider] into a
// [golang.org/x/oauth2.TokenSource].
func TokenSourceFromTokenProvider(tp auth.TokenProvider) oauth2.TokenSource {
	return tokenSourceAdapter{tp: tp}
}

type tokenSourceAdapter struct {
	tp auth.TokenProvider
}

// Token fulfills the [golang.org/x/oauth2.TokenSource] interface.
func (ts tokenSourceAdapter) Token() (*oauth2.Token, error) {
	tok, err := ts.tp.Token(context.Background())
	if err != nil {
		var err2 *auth.Error
		if ok := errors.As(err, &err2); ok {
			return nil, &retrieveErrorAdapter{
				RetrieveError: &oauth2.RetrieveError{
					Response: err2.Response,
					Body:     err2.Body,
				},
				authError: err2,
			}
		}
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: tok.Value,
		TokenType:   tok.Type,
		Expiry:      tok.Expiry,
	}, nil
}

// retrieveErrorAdapter is returned from the adapted TokenSource so that
// callers from both worlds can match the error type they know:
// [errors.As] finds the [oauth2.RetrieveError] through the As method and the
// [auth.Error] through Unwrap.
type retrieveErrorAdapter struct {
	*oauth2.RetrieveError
	authError *auth.Error
}

func (e *retrieveErrorAdapter) Unwrap() error {
	return e.authError
}

func (e *retrieveErrorAdapter) As(target interface{}) bool {
	if t, ok := target.(**oauth2.RetrieveError); ok {
		*t = e.RetrieveError
		return true
	}
	return false
}
