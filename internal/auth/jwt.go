package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"classync/pkg/interfaces"
	"classync/pkg/types"
)

// TokenSource produces the caller's bearer token, or "" when nobody is
// signed in yet.
type TokenSource func(ctx context.Context) (string, error)

// principalClaims is the claim set classync tokens carry.
type principalClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
	Name string `json:"name"`
}

// JWTProvider resolves principals from HS256-signed tokens, the shape the
// tutoring platform's managed auth issues.
type JWTProvider struct {
	secret []byte
	source TokenSource
}

// NewJWTProvider creates a provider verifying tokens with the given secret.
// source may be nil when only ParsePrincipal is used (gateway handshakes).
func NewJWTProvider(secret []byte, source TokenSource) *JWTProvider {
	return &JWTProvider{secret: secret, source: source}
}

// CurrentPrincipal resolves the current token into a principal. An empty
// token means signed out: (nil, nil).
func (p *JWTProvider) CurrentPrincipal(ctx context.Context) (*interfaces.Principal, error) {
	if p.source == nil {
		return nil, nil
	}
	token, err := p.source(ctx)
	if err != nil {
		return nil, fmt.Errorf("token lookup: %w", err)
	}
	if token == "" {
		return nil, nil
	}
	return p.ParsePrincipal(token)
}

// ParsePrincipal verifies a raw token and extracts the principal.
func (p *JWTProvider) ParsePrincipal(raw string) (*interfaces.Principal, error) {
	claims := &principalClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		// FUNCTIONAL DISCOVERY: Algorithm must be pinned; accepting whatever
		// the header claims would let a forged token pick "none"
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || !types.IsValidUserID(claims.Subject) {
		return nil, ErrInvalidSubject
	}
	role := types.Role(claims.Role)
	if !types.IsValidRole(role) {
		return nil, ErrInvalidTokenRole
	}
	return &interfaces.Principal{ID: claims.Subject, Role: role, Name: claims.Name}, nil
}

// IssueToken signs a token for a principal. Exists for tooling and tests;
// production tokens come from the platform's auth service.
func (p *JWTProvider) IssueToken(principal *interfaces.Principal) (string, error) {
	claims := &principalClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: principal.ID},
		Role:             string(principal.Role),
		Name:             principal.Name,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
