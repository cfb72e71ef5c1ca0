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

// Package auth provides the token model and token-exchange flows that back
// the credential types in the credentials package. The entry point for most
// users is [github.com/timford/cloudauth/credentials.DefaultCredentials].
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/googleapis/gax-go/v2/internallog"
	"golang.org/x/sync/singleflight"

	"github.com/timford/cloudauth/internal"
)

const (
	defaultExpiryDelta = 10 * time.Second

	// defaultTokenLifetime is the assertion lifetime requested when
	// [Options2LO.Expires] is unset.
	defaultTokenLifetime = time.Hour

	jwtBearerGrantType    = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	refreshTokenGrantType = "refresh_token"
)

var (
	// for testing
	timeNow = time.Now
)

// TokenProvider specifies an interface for anything that can return a token.
type TokenProvider interface {
	// Token returns a Token or an error.
	// The Token returned must be safe to use
	// concurrently.
	// The returned Token must not be modified.
	// The context provided must be sent along to any requests that are made in
	// the implementing code.
	Token(context.Context) (*Token, error)
}

// Token holds a credential token used to authorize requests. All fields are
// considered read-only: a refresh replaces a Token wholesale, it never
// mutates one in place.
type Token struct {
	// Value is the token used to authorize requests. It is usually an access
	// token but may be other types of tokens such as ID tokens in some flows.
	Value string
	// Type is the type of token Value is. If uninitialized, it should be
	// assumed to be a "Bearer" token.
	Type string
	// Expiry is the time the token is set to expire.
	Expiry time.Time
	// Metadata may include the extra fields of the response the token was
	// parsed from, keyed as the server sent them.
	Metadata map[string]interface{}
}

// IsValid reports that a [Token] is non-nil, has a [Token.Value], and has not
// expired. A token is considered expired if [Token.Expiry] has passed or will
// pass in the next 10 seconds.
func (t *Token) IsValid() bool {
	return t.isValidWithEarlyExpiry(defaultExpiryDelta)
}

func (t *Token) isValidWithEarlyExpiry(earlyExpiry time.Duration) bool {
	if t == nil || t.Value == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return !t.Expiry.Round(0).Add(-earlyExpiry).Before(timeNow())
}

// AuthorizationHeader returns the complete header line that authorizes a
// request with this token, in the form "Authorization: <type> <value>". An
// empty token authorizes nothing and yields an empty header.
func (t *Token) AuthorizationHeader() string {
	if t == nil || t.Value == "" {
		return ""
	}
	typ := t.Type
	if typ == "" {
		typ = "Bearer"
	}
	return fmt.Sprintf("Authorization: %s %s", typ, t.Value)
}

// CachedTokenProviderOptions provides options for configuring a cached
// [TokenProvider].
type CachedTokenProviderOptions struct {
	// ExpireEarly configures the amount of time before a token expires, that
	// it should be refreshed. If unset, the default value is 10 seconds.
	ExpireEarly time.Duration
}

func (ctpo *CachedTokenProviderOptions) expireEarly() time.Duration {
	if ctpo == nil || ctpo.ExpireEarly == 0 {
		return defaultExpiryDelta
	}
	return ctpo.ExpireEarly
}

// NewCachedTokenProvider wraps a [TokenProvider] to cache the tokens returned
// by the underlying provider. Refreshes are purely demand-driven: a network
// call only happens on a request that finds no usable cached token.
// Concurrent requests racing to refresh collapse into a single call to the
// underlying provider, and all of them receive that call's outcome. A failed
// refresh leaves the cached state untouched, but an expired token is never
// served: the failure is returned instead.
func NewCachedTokenProvider(tp TokenProvider, opts *CachedTokenProviderOptions) TokenProvider {
	if ctp, ok := tp.(*cachedTokenProvider); ok {
		return ctp
	}
	return &cachedTokenProvider{
		tp:          tp,
		expireEarly: opts.expireEarly(),
	}
}

type tokenState int

const (
	// empty means no token has ever been cached.
	empty tokenState = iota
	// fresh means the cached token exists and has not expired.
	fresh
	// stale means the cached token exists but has expired.
	stale
)

type cachedTokenProvider struct {
	tp          TokenProvider
	expireEarly time.Duration

	group singleflight.Group

	mu          sync.Mutex
	cachedToken *Token
}

func (c *cachedTokenProvider) Token(ctx context.Context) (*Token, error) {
	if tok := c.validToken(); tok != nil {
		return tok, nil
	}
	v, err, _ := c.group.Do("", func() (interface{}, error) {
		// A caller that was queued behind a completed refresh uses its
		// result; Do only dedupes calls in flight at the same time.
		if tok := c.validToken(); tok != nil {
			return tok, nil
		}
		t, err := c.tp.Token(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cachedToken = t
		c.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Token), nil
}

func (c *cachedTokenProvider) validToken() *Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cachedToken.isValidWithEarlyExpiry(c.expireEarly) {
		return c.cachedToken
	}
	return nil
}

func (c *cachedTokenProvider) tokenState() tokenState {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.cachedToken == nil:
		return empty
	case c.cachedToken.isValidWithEarlyExpiry(c.expireEarly):
		return fresh
	default:
		return stale
	}
}

// Error is an error associated with retrieving a [Token]. It can hold useful
// additional details for debugging.
type Error struct {
	// Response is the HTTP response associated with error, if there was one.
	// The body will always be already closed and consumed.
	Response *http.Response
	// Body is the full, unmodified payload of the upstream response. It is
	// kept whole so field-mismatch bugs are diagnosable without tracing.
	Body []byte
	// Err is the underlying wrapped error.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: cannot fetch token: %v\nResponse: %s", e.Err, e.Body)
	}
	return fmt.Sprintf("auth: cannot fetch token: %v\nResponse: %s", e.statusCode(), e.Body)
}

func (e *Error) statusCode() int {
	if e.Response == nil {
		return 0
	}
	return e.Response.StatusCode
}

// Temporary returns true if the error is considered temporary and may be able
// to be retried.
func (e *Error) Temporary() bool {
	if e.Response == nil {
		return false
	}
	sc := e.Response.StatusCode
	return sc == 500 || sc == 503 || sc == 408 || sc == 429
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Options2LO is the configuration settings for doing a 2-legged JWT OAuth2
// flow.
type Options2LO struct {
	// Email is the service account's email. This value is set as the "iss" in
	// the JWT.
	Email string
	// PrivateKey contains the contents of an RSA private key or the
	// contents of a PEM file that contains a private key. It is used to sign
	// the JWT created.
	PrivateKey []byte
	// PrivateKeyID is the ID of the key used to sign the JWT. It is used as
	// the "kid" in the JWT header. Optional.
	PrivateKeyID string
	// Subject is the user to impersonate with [domain-wide delegation]. It is
	// used as the "sub" in the JWT. Optional.
	//
	// [domain-wide delegation]: https://developers.google.com/identity/protocols/oauth2/service-account#delegatingauthority
	Subject string
	// Scopes specifies requested permissions for the token. Optional.
	Scopes []string
	// TokenURL is the URL the JWT is sent to. Required.
	TokenURL string
	// Expires specifies the lifetime of the token. Defaults to an hour if
	// unset.
	Expires time.Duration
	// Audience specifies the "aud" in the JWT. Optional.
	Audience string
	// Client is the client to be used to make the underlying token requests.
	// Optional.
	Client *http.Client
	// Logger is used for debug logging. If provided, logging will be enabled
	// at the loggers configured level. By default logging is disabled unless
	// enabled by setting GOOGLE_SDK_GO_LOGGING_LEVEL in which case a default
	// logger will be used. Optional.
	Logger *slog.Logger
}

func (o *Options2LO) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return internal.CloneDefaultClient()
}

func (o *Options2LO) validate() error {
	if o == nil {
		return errors.New("auth: options must be provided")
	}
	if o.Email == "" {
		return errors.New("auth: email must be provided")
	}
	if len(o.PrivateKey) == 0 {
		return errors.New("auth: private key must be provided")
	}
	if o.TokenURL == "" {
		return errors.New("auth: token URL must be provided")
	}
	return nil
}

// New2LOTokenProvider returns a [TokenProvider] based on the provided fields
// set on [Options2LO].
func New2LOTokenProvider(opts *Options2LO) (TokenProvider, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return tokenProvider2LO{o: opts, Client: opts.client(), logger: internallog.New(opts.Logger)}, nil
}

type tokenProvider2LO struct {
	o      *Options2LO
	Client *http.Client
	logger *slog.Logger
}

func (tp tokenProvider2LO) Token(ctx context.Context) (*Token, error) {
	pk, err := internal.ParseKey(tp.o.PrivateKey)
	if err != nil {
		return nil, err
	}
	now := timeNow()
	exp := defaultTokenLifetime
	if tp.o.Expires > 0 {
		exp = tp.o.Expires
	}
	claims := jwt.MapClaims{
		"iss":   tp.o.Email,
		"scope": strings.Join(tp.o.Scopes, " "),
		"aud":   tp.o.TokenURL,
		"iat":   jwt.NewNumericDate(now),
		"exp":   jwt.NewNumericDate(now.Add(exp)),
	}
	if sub := tp.o.Subject; sub != "" {
		claims["sub"] = sub
	}
	if aud := tp.o.Audience; aud != "" {
		claims["aud"] = aud
	}
	assertion := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid := tp.o.PrivateKeyID; kid != "" {
		assertion.Header["kid"] = kid
	}
	payload, err := assertion.SignedString(pk)
	if err != nil {
		return nil, fmt.Errorf("auth: cannot sign assertion: %w", err)
	}
	v := url.Values{}
	v.Set("grant_type", jwtBearerGrantType)
	v.Set("assertion", payload)
	return doTokenRoundTrip(ctx, tp.Client, tp.logger, tp.o.TokenURL, v)
}

// doTokenRoundTrip posts the url-encoded grant to tokenURL and interprets
// the body as a token response.
func doTokenRoundTrip(ctx context.Context, client *http.Client, logger *slog.Logger, tokenURL string, v url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(v.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	logger.DebugContext(ctx, "token request", "request", internallog.HTTPRequest(req, []byte(v.Encode())))
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: cannot fetch token: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("auth: cannot fetch token: %w", err)
	}
	logger.DebugContext(ctx, "token response", "response", internallog.HTTPResponse(resp, body))
	return ParseTokenResponse(resp, body, timeNow())
}
