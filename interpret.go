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
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ResponseFields parses body as a JSON object and verifies that every field
// in required is present. Acceptance is structural, never based on the
// status code alone: token endpoints have been observed returning 200s with
// malformed bodies, so even a success status gets its body inspected. On a
// parse failure or a missing field the returned [*Error] keeps the full,
// unmodified payload and names the fields that were expected.
func ResponseFields(resp *http.Response, body []byte, required ...string) (map[string]interface{}, error) {
	fields := map[string]interface{}{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &Error{
			Response: resp,
			Body:     body,
			Err:      fmt.Errorf("could not find all required fields in response (%s): %w", strings.Join(required, ", "), err),
		}
	}
	var missing []string
	for _, k := range required {
		if _, ok := fields[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, &Error{
			Response: resp,
			Body:     body,
			Err:      fmt.Errorf("could not find all required fields in response (%s)", strings.Join(required, ", ")),
		}
	}
	return fields, nil
}

// ParseTokenResponse interprets body as a token-endpoint response. It
// requires the access_token, expires_in and token_type fields and computes
// the token expiration as now plus the server-reported lifetime, so an
// expiration is never backdated. resp may be nil when the transport does not
// surface the raw response.
func ParseTokenResponse(resp *http.Response, body []byte, now time.Time) (*Token, error) {
	fields, err := ResponseFields(resp, body, "access_token", "expires_in", "token_type")
	if err != nil {
		return nil, err
	}
	return &Token{
		Value: fieldString(fields, "access_token"),
		Type:  fieldString(fields, "token_type"),
		// Presence was validated above; the zero default only guards against
		// a non-numeric value.
		Expiry:   now.Add(time.Duration(fieldSeconds(fields, "expires_in")) * time.Second),
		Metadata: fields,
	}, nil
}

// ScopeSet normalizes the wire forms of a scope list. Servers report scopes
// as a JSON array of strings, or as a bare string when a single scope is
// held. Both normalize to a sorted set with duplicates collapsed.
func ScopeSet(v interface{}) []string {
	seen := map[string]bool{}
	switch scopes := v.(type) {
	case string:
		seen[scopes] = true
	case []interface{}:
		for _, s := range scopes {
			if str, ok := s.(string); ok {
				seen[str] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func fieldString(fields map[string]interface{}, key string) string {
	s, _ := fields[key].(string)
	return s
}

func fieldSeconds(fields map[string]interface{}, key string) int64 {
	switch v := fields[key].(type) {
	case float64:
		return int64(v)
	case string:
		// Some token endpoints quote the lifetime.
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}
