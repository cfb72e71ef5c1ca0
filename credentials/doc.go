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

// Package credentials provides support for making OAuth2 authorized and
// authenticated HTTP requests to cloud APIs. It supports Application
// Default Credentials resolution as well as directly constructed service
// account, authorized user, compute engine, and anonymous credentials.
//
// # Credential search order
//
// [DefaultCredentials] searches, in order: the file named by the
// GOOGLE_APPLICATION_CREDENTIALS environment variable, the well-known gcloud
// location of the application default credentials file, and finally the
// compute engine metadata service when one is reachable. The first source
// found wins; an explicitly named file that cannot be used never falls
// through to a later source.
//
// # Token caching
//
// Every credential wraps its token source in a refreshing cache: a valid
// cached token is served without network activity, expiry triggers a
// demand-driven refresh, and concurrent refreshes of one credential collapse
// into a single upstream call.
package credentials
