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

// Package auth validates bearer tokens for the postforge HTTP API.
//
// Tokens are JWTs signed by an external identity provider. Keys are fetched
// from the provider's JWKS endpoint and refreshed in the background so key
// rotation needs no restart.
//
//	server:
//	  auth:
//	    enabled: true
//	    jwks_url: "https://auth.example.com/.well-known/jwks.json"
//	    issuer: "https://auth.example.com"
//	    audience: "postforge-api"
//
// The token subject becomes the owner of the sessions a caller creates.
package auth

import (
	"context"
)

type contextKey string

// ClaimsContextKey is the context key for validated claims.
const ClaimsContextKey contextKey = "postforge_auth_claims"

// Claims are the validated claims of a token.
type Claims struct {
	// Subject identifies the caller (sub claim).
	Subject string `json:"sub"`

	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`

	// Custom holds every claim not mapped above.
	Custom map[string]any `json:"-"`
}

// GetStringClaim returns a custom claim as a string.
func (c *Claims) GetStringClaim(key string) string {
	if c.Custom == nil {
		return ""
	}
	s, _ := c.Custom[key].(string)
	return s
}

// HasAnyRole checks if the caller has any of the roles.
func (c *Claims) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if c.Role == role {
			return true
		}
	}
	return false
}

// ClaimsFromContext extracts claims from a context.
// Returns nil if no claims are present.
func ClaimsFromContext(ctx context.Context) *Claims {
	if claims, ok := ctx.Value(ClaimsContextKey).(*Claims); ok {
		return claims
	}
	return nil
}

// ContextWithClaims returns a new context carrying claims.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, claims)
}

// SubjectFromContext returns the token subject, or "" when the request is
// unauthenticated.
func SubjectFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.Subject
	}
	return ""
}
