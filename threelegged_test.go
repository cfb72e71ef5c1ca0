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
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNew3LOTokenProvider_RefreshGrant(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		if got, want := r.Form.Get("grant_type"), "refresh_token"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
		if got, want := r.Form.Get("refresh_token"), "refresh-me"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
		if got, want := r.Form.Get("client_id"), "client-id"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
		if got, want := r.Form.Get("client_secret"), "client-secret"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "token", "token_type": "Bearer", "expires_in": 3600}`))
	}))
	defer ts.Close()

	opts := &Options3LO{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "refresh-me",
		TokenURL:     ts.URL,
	}
	tp, err := New3LOTokenProvider(opts)
	if err != nil {
		t.Fatal(err)
	}
	tok, err := tp.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got, want := tok.Value, "token"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !tok.IsValid() {
		t.Error("got invalid token, want valid")
	}
}

func TestNew3LOTokenProvider_Validate(t *testing.T) {
	tests := []struct {
		name string
		opts *Options3LO
	}{
		{
			name: "missing options",
		},
		{
			name: "missing client ID",
			opts: &Options3LO{
				RefreshToken: "refresh-me",
				TokenURL:     "url",
			},
		},
		{
			name: "missing refresh token",
			opts: &Options3LO{
				ClientID: "client-id",
				TokenURL: "url",
			},
		},
		{
			name: "missing token URL",
			opts: &Options3LO{
				ClientID:     "client-id",
				RefreshToken: "refresh-me",
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New3LOTokenProvider(tc.opts); err == nil {
				t.Error("got nil, want an error")
			}
		})
	}
}
