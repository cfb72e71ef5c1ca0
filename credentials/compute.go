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
	"net/http"
	"net/url"
	"strings"
	"sync"

	"cloud.google.com/go/compute/metadata"

	"github.com/timford/cloudauth"
)

var (
	computeTokenURI   = "instance/service-accounts/default/token"
	computeAccountURI = "instance/service-accounts/default/?recursive=true"
)

// ServiceAccountMetadata describes the identity a compute engine instance
// runs as, as reported by the metadata server's introspection endpoint. A
// successful query always carries at least the scope that allowed the query
// itself, so Scopes is never empty.
type ServiceAccountMetadata struct {
	Email  string
	Scopes []string
}

// parseMetadataResponse interprets an introspection response body. The email
// and scopes fields are required; scopes normalize from either an array or a
// bare string to a set.
func parseMetadataResponse(body []byte) (*ServiceAccountMetadata, error) {
	fields, err := auth.ResponseFields(nil, body, "email", "scopes")
	if err != nil {
		return nil, err
	}
	email, _ := fields["email"].(string)
	return &ServiceAccountMetadata{
		Email:  email,
		Scopes: auth.ScopeSet(fields["scopes"]),
	}, nil
}

// ComputeServiceAccountMetadata queries the metadata server for the identity
// the instance runs as. Unlike [Credentials.AccountEmail] it reports lookup
// failures to the caller. client may be nil for a default client.
func ComputeServiceAccountMetadata(ctx context.Context, client *http.Client) (*ServiceAccountMetadata, error) {
	info := &computeAccountInfo{client: metadata.NewClient(client)}
	return info.metadata(ctx)
}

// NewComputeEngineCredentials returns credentials backed by the compute
// engine metadata service. Construction never fails and performs no network
// activity; an unreachable metadata server only surfaces when a token,
// email, or project ID is first asked for.
func NewComputeEngineCredentials(opts *DetectOptions) *Credentials {
	client := metadata.NewClient(opts.Client)
	info := &computeAccountInfo{client: client}
	return &Credentials{
		projectID: sync.OnceValue(func() string {
			projectID, _ := metadata.ProjectIDWithContext(context.Background())
			return projectID
		}),
		email:         info.accountEmail,
		TokenProvider: computeTokenProvider(opts, client),
	}
}

// computeTokenProvider creates an [auth.TokenProvider] that uses the
// metadata service to retrieve tokens.
func computeTokenProvider(opts *DetectOptions, client *metadata.Client) auth.TokenProvider {
	return auth.NewCachedTokenProvider(computeProvider{
		scopes: opts.scopes(),
		client: client,
	}, &auth.CachedTokenProviderOptions{
		ExpireEarly: opts.EarlyTokenRefresh,
	})
}

// computeProvider fetches tokens from the metadata service.
type computeProvider struct {
	scopes []string
	client *metadata.Client
}

func (cs computeProvider) Token(ctx context.Context) (*auth.Token, error) {
	tokenURI, err := url.Parse(computeTokenURI)
	if err != nil {
		return nil, err
	}
	if len(cs.scopes) > 0 {
		v := url.Values{}
		v.Set("scopes", strings.Join(cs.scopes, ","))
		tokenURI.RawQuery = v.Encode()
	}
	tokenJSON, err := cs.client.GetWithContext(ctx, tokenURI.String())
	if err != nil {
		return nil, fmt.Errorf("credentials: cannot fetch token from the metadata server: %w", err)
	}
	return auth.ParseTokenResponse(nil, []byte(tokenJSON), timeNow())
}

// computeAccountInfo lazily queries and caches the instance identity. The
// query is separate from token refresh and only runs when a caller asks who
// the credential represents.
type computeAccountInfo struct {
	client *metadata.Client

	mu   sync.Mutex
	info *ServiceAccountMetadata
}

func (c *computeAccountInfo) metadata(ctx context.Context) (*ServiceAccountMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info != nil {
		return c.info, nil
	}
	body, err := c.client.GetWithContext(ctx, computeAccountURI)
	if err != nil {
		return nil, fmt.Errorf("credentials: cannot fetch service account info from the metadata server: %w", err)
	}
	info, err := parseMetadataResponse([]byte(body))
	if err != nil {
		return nil, err
	}
	// Only cache a complete record.
	c.info = info
	return info, nil
}

func (c *computeAccountInfo) accountEmail(ctx context.Context) string {
	info, err := c.metadata(ctx)
	if err != nil {
		// The instance always has a default account even when introspection
		// is unavailable.
		return "default"
	}
	return info.Email
}
