// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-identity.
//
// go-identity is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package auth

import (
	"crypto"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures bearer token validation. Exactly one of Secret and
// PublicKey must be set.
type JWTConfig struct {
	// Secret verifies HMAC-signed tokens.
	Secret []byte

	// PublicKey verifies RSA, ECDSA or Ed25519 signed tokens.
	PublicKey crypto.PublicKey

	Issuer   string
	Audience string
	Leeway   time.Duration

	// HeaderName defaults to Authorization.
	HeaderName string
}

// Claims are the token claims understood by the API. Scope is a space
// separated list as in OAuth 2.0.
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthenticator validates bearer tokens.
type JWTAuthenticator struct {
	key    any
	header string
	parser *jwt.Parser
}

// NewJWTAuthenticator builds a validator from config.
func NewJWTAuthenticator(config *JWTConfig) (*JWTAuthenticator, error) {
	if config == nil {
		return nil, errors.New("auth: jwt config is required")
	}
	var (
		key     any
		methods []string
	)
	switch {
	case len(config.Secret) > 0 && config.PublicKey != nil:
		return nil, errors.New("auth: set either a jwt secret or a public key, not both")
	case len(config.Secret) > 0:
		key = config.Secret
		methods = []string{"HS256", "HS384", "HS512"}
	case config.PublicKey != nil:
		key = config.PublicKey
		methods = []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512", "EdDSA"}
	default:
		return nil, errors.New("auth: jwt secret or public key is required")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods(methods), jwt.WithExpirationRequired()}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}
	if config.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(config.Leeway))
	}

	header := config.HeaderName
	if header == "" {
		header = "Authorization"
	}
	return &JWTAuthenticator{key: key, header: header, parser: jwt.NewParser(opts...)}, nil
}

func (a *JWTAuthenticator) AuthenticateHTTP(r *http.Request) (*Principal, error) {
	raw := bearerToken(r, a.header)
	if raw == "" {
		return nil, ErrUnauthenticated
	}
	claims := &Claims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject claim", ErrUnauthenticated)
	}
	return &Principal{
		Subject: claims.Subject,
		Scopes:  strings.Fields(claims.Scope),
		Method:  "jwt",
	}, nil
}

func (a *JWTAuthenticator) Name() string {
	return "jwt"
}
