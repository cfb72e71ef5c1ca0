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

package credentials_test

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/timford/cloudauth/credentials"
)

func ExampleDefaultCredentials() {
	ctx := context.Background()
	creds, err := credentials.DefaultCredentials(&credentials.DetectOptions{
		Scopes: []string{"https://www.googleapis.com/auth/devstorage.full_control"},
	})
	if err != nil {
		log.Fatal(err)
	}
	header, err := creds.AuthorizationHeader(ctx)
	if err != nil {
		log.Fatal(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://storage.googleapis.com/...", nil)
	if err != nil {
		log.Fatal(err)
	}
	if name, value, ok := strings.Cut(header, ": "); ok {
		req.Header.Set(name, value)
	}
	http.DefaultClient.Do(req)
}

func ExampleDefaultCredentials_withFilepath() {
	// A service account key file can be downloaded from the cloud console
	// for your project, under "APIs & Auth".
	filepath := "/path/to/your-project-key.json"
	creds, err := credentials.DefaultCredentials(&credentials.DetectOptions{
		Scopes:          []string{"https://www.googleapis.com/auth/bigquery"},
		CredentialsFile: filepath,
	})
	if err != nil {
		log.Fatal(err)
	}
	_ = creds
}
