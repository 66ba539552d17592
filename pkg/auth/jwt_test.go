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
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/postforge/pkg/config"
)

func TestNewJWTValidator(t *testing.T) {
	idp := newTestIdP(t)

	_, err := NewJWTValidator(JWTValidatorConfig{})
	assert.Error(t, err)

	_, err = NewJWTValidator(JWTValidatorConfig{JWKSURL: idp.server.URL + "/missing", Issuer: testIssuer, Audience: testAudience})
	assert.Error(t, err)

	v := idp.validator(t)
	assert.NotNil(t, v)
}

func TestJWTValidator_ValidateToken(t *testing.T) {
	idp := newTestIdP(t)
	v := idp.validator(t)
	ctx := context.Background()

	token := idp.token(t, tokenSpec{
		subject: "user-123",
		claims:  map[string]any{"email": "user@example.com", "role": "designer", "team": "growth"},
	})

	claims, err := v.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.Subject)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "designer", claims.Role)
	assert.Equal(t, "growth", claims.GetStringClaim("team"))
	assert.True(t, claims.HasAnyRole("admin", "designer"))
	assert.NotContains(t, claims.Custom, "email")
}

func TestJWTValidator_Rejects(t *testing.T) {
	idp := newTestIdP(t)
	v := idp.validator(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "not-a-jwt", ErrInvalidToken},
		{"wrong issuer", idp.token(t, tokenSpec{subject: "u", issuer: "https://evil.example"}), ErrInvalidToken},
		{"wrong audience", idp.token(t, tokenSpec{subject: "u", audience: "other"}), ErrInvalidToken},
		{"expired", idp.token(t, tokenSpec{subject: "u", expires: time.Now().Add(-time.Hour)}), ErrTokenExpired},
		{"no subject", idp.token(t, tokenSpec{}), ErrMissingClaims},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ValidateToken(ctx, tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestJWTValidator_RejectsForeignKey(t *testing.T) {
	idp := newTestIdP(t)
	v := idp.validator(t)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	key, err := jwk.FromRaw(other)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, testKeyID))

	tok := jwt.New()
	require.NoError(t, tok.Set(jwt.IssuerKey, testIssuer))
	require.NoError(t, tok.Set(jwt.AudienceKey, testAudience))
	require.NoError(t, tok.Set(jwt.SubjectKey, "intruder"))
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, key))
	require.NoError(t, err)

	_, err = v.ValidateToken(context.Background(), string(signed))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewValidatorFromConfig(t *testing.T) {
	v, err := NewValidatorFromConfig(nil)
	assert.NoError(t, err)
	assert.Nil(t, v)

	v, err = NewValidatorFromConfig(&config.AuthConfig{Enabled: false})
	assert.NoError(t, err)
	assert.Nil(t, v)

	idp := newTestIdP(t)
	v, err = NewValidatorFromConfig(&config.AuthConfig{
		Enabled:  true,
		JWKSURL:  idp.jwksURL,
		Issuer:   testIssuer,
		Audience: testAudience,
	})
	require.NoError(t, err)
	require.NotNil(t, v)
	v.Close()
}
