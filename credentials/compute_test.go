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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/compute/metadata"
	"github.com/google/go-cmp/cmp"
)

const computeMetadataEnvVar = "GCE_METADATA_HOST"

func TestComputeTokenProvider(t *testing.T) {
	scope := "https://www.googleapis.com/auth/bigquery"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "service-accounts/default/token") {
			t.Errorf("got path %q, want the token endpoint", r.URL.Path)
		}
		if got := r.URL.Query().Get("scopes"); got != scope {
			t.Errorf("got %q, want %q", got, scope)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "90d64460d14870c08c81352a05dedd3465940a7c", "token_type": "bearer", "expires_in": 86400}`))
	}))
	defer ts.Close()
	t.Setenv(computeMetadataEnvVar, strings.TrimPrefix(ts.URL, "http://"))

	tp := computeTokenProvider(&DetectOptions{
		Scopes: []string{scope},
	}, metadata.NewClient(nil))
	tok, err := tp.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if want := "90d64460d14870c08c81352a05dedd3465940a7c"; tok.Value != want {
		t.Errorf("got %q, want %q", tok.Value, want)
	}
	if want := "bearer"; tok.Type != want {
		t.Errorf("got %q, want %q", tok.Type, want)
	}
}

func TestComputeTokenProvider_BadResponse(t *testing.T) {
	payload := `{"expires_in": 86400, "token_type": "bearer"}`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}))
	defer ts.Close()
	t.Setenv(computeMetadataEnvVar, strings.TrimPrefix(ts.URL, "http://"))

	tp := computeTokenProvider(&DetectOptions{}, metadata.NewClient(nil))
	_, err := tp.Token(context.Background())
	if err == nil {
		t.Fatal("got nil, want an error")
	}
	if got := err.Error(); !strings.Contains(got, payload) {
		t.Errorf("error %q should embed the original payload", got)
	}
	if got := err.Error(); !strings.Contains(got, "access_token") {
		t.Errorf("error %q should name the missing field", got)
	}
}

// Constructing compute engine credentials must not touch the network; the
// project ID lookup, like the account email, only runs when asked for.
func TestNewComputeEngineCredentials_LazyProjectID(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if !strings.HasSuffix(r.URL.Path, "project/project-id") {
			t.Errorf("got path %q, want the project-id endpoint", r.URL.Path)
		}
		w.Write([]byte("fake_project"))
	}))
	defer ts.Close()
	t.Setenv(computeMetadataEnvVar, strings.TrimPrefix(ts.URL, "http://"))

	creds := NewComputeEngineCredentials(&DetectOptions{})
	if calls != 0 {
		t.Fatalf("construction made %d metadata requests, want 0", calls)
	}
	if got, want := creds.ProjectID(), "fake_project"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if calls != 1 {
		t.Errorf("ProjectID() made %d metadata requests, want 1", calls)
	}
}

func TestParseMetadataResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
		want *ServiceAccountMetadata
	}{
		{
			name: "scopes array",
			body: `{"email": "sa@fake_project.iam.gserviceaccount.com", "scopes": ["b", "a"]}`,
			want: &ServiceAccountMetadata{
				Email:  "sa@fake_project.iam.gserviceaccount.com",
				Scopes: []string{"a", "b"},
			},
		},
		{
			name: "single scope as bare string",
			body: `{"email": "sa@fake_project.iam.gserviceaccount.com", "scopes": "a"}`,
			want: &ServiceAccountMetadata{
				Email:  "sa@fake_project.iam.gserviceaccount.com",
				Scopes: []string{"a"},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseMetadataResponse([]byte(tc.body))
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("metadata mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseMetadataResponse_MissingFields(t *testing.T) {
	payload := `{"email": "sa@fake_project.iam.gserviceaccount.com"}`
	_, err := parseMetadataResponse([]byte(payload))
	if err == nil {
		t.Fatal("got nil, want an error")
	}
	for _, want := range []string{payload, "email", "scopes"} {
		if got := err.Error(); !strings.Contains(got, want) {
			t.Errorf("error %q should contain %q", got, want)
		}
	}
}

func TestComputeAccountInfo(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"email": "sa@fake_project.iam.gserviceaccount.com", "scopes": ["a"], "aliases": ["default"]}`))
	}))
	defer ts.Close()
	t.Setenv(computeMetadataEnvVar, strings.TrimPrefix(ts.URL, "http://"))

	info := &computeAccountInfo{client: metadata.NewClient(nil)}
	for i := 0; i < 3; i++ {
		if got, want := info.accountEmail(context.Background()), "sa@fake_project.iam.gserviceaccount.com"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
	if calls != 1 {
		t.Errorf("introspection calls = %d, want 1 (result should be cached)", calls)
	}
}

func TestComputeServiceAccountMetadata(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"email": "sa@fake_project.iam.gserviceaccount.com", "scopes": ["a"]}`))
	}))
	defer ts.Close()
	t.Setenv(computeMetadataEnvVar, strings.TrimPrefix(ts.URL, "http://"))

	got, err := ComputeServiceAccountMetadata(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := &ServiceAccountMetadata{
		Email:  "sa@fake_project.iam.gserviceaccount.com",
		Scopes: []string{"a"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeAccountInfo_Unavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer ts.Close()
	t.Setenv(computeMetadataEnvVar, strings.TrimPrefix(ts.URL, "http://"))

	info := &computeAccountInfo{client: metadata.NewClient(nil)}
	if got, want := info.accountEmail(context.Background()), "default"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
