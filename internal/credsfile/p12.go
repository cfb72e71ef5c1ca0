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

package credsfile

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"

	"golang.org/x/crypto/pkcs12"
)

// p12Password is the fixed passphrase used for every service account
// keystore issued in PKCS#12 format.
const p12Password = "notasecret"

// ParseServiceAccountP12 parses a PKCS#12 keystore into a
// [ServiceAccountFile]. The keystore only carries the signing key and its
// certificate; the account email is taken from the certificate subject and
// everything else is left for the caller to fill in.
func ParseServiceAccountP12(b []byte) (*ServiceAccountFile, error) {
	privateKey, cert, err := pkcs12.Decode(b, p12Password)
	if err != nil {
		return nil, err
	}
	key, ok := privateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("credsfile: PKCS#12 keystore does not contain an RSA key")
	}
	if cert == nil {
		return nil, errors.New("credsfile: PKCS#12 keystore does not contain a certificate")
	}
	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	return &ServiceAccountFile{
		Type:        ServiceAccountKey,
		PrivateKey:  string(pem.EncodeToMemory(block)),
		ClientEmail: cert.Subject.CommonName,
	}, nil
}
