// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://test-issuer.com"
	testAudience = "test-audience"
	testKeyID    = "test-key-id"
)

type testIdP struct {
	key     *rsa.PrivateKey
	server  *httptest.Server
	jwksURL string
}

func newTestIdP(t testing.TB) *testIdP {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pub, err := jwk.FromRaw(&key.PublicKey)
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, testKeyID))
	require.NoError(t, pub.Set(jwk.AlgorithmKey, jwa.RS256))

	keyset := jwk.NewSet()
	require.NoError(t, keyset.AddKey(pub))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(keyset)
	}))
	t.Cleanup(server.Close)

	return &testIdP{key: key, server: server, jwksURL: server.URL + "/.well-known/jwks.json"}
}

func (p *testIdP) validator(t testing.TB) *JWTValidator {
	t.Helper()
	v, err := NewJWTValidator(JWTValidatorConfig{
		JWKSURL:  p.jwksURL,
		Issuer:   testIssuer,
		Audience: testAudience,
	})
	require.NoError(t, err)
	t.Cleanup(v.Close)
	return v
}

type tokenSpec struct {
	issuer   string
	audience string
	subject  string
	expires  time.Time
	claims   map[string]any
}

func (p *testIdP) token(t testing.TB, ts tokenSpec) string {
	t.Helper()

	if ts.issuer == "" {
		ts.issuer = testIssuer
	}
	if ts.audience == "" {
		ts.audience = testAudience
	}
	if ts.expires.IsZero() {
		ts.expires = time.Now().Add(time.Hour)
	}

	tok := jwt.New()
	require.NoError(t, tok.Set(jwt.IssuerKey, ts.issuer))
	require.NoError(t, tok.Set(jwt.AudienceKey, ts.audience))
	if ts.subject != "" {
		require.NoError(t, tok.Set(jwt.SubjectKey, ts.subject))
	}
	require.NoError(t, tok.Set(jwt.IssuedAtKey, time.Now().Add(-2*time.Hour)))
	require.NoError(t, tok.Set(jwt.ExpirationKey, ts.expires))
	for k, v := range ts.claims {
		require.NoError(t, tok.Set(k, v))
	}

	key, err := jwk.FromRaw(p.key)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, testKeyID))

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, key))
	require.NoError(t, err)
	return string(signed)
}
