package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/irsalhamdi/course-enrollment/core/claims"
)

var ErrInvalidToken = errors.New("invalid bearer token")

// Verifier turns a raw bearer token into the principal it was issued to.
type Verifier interface {
	Verify(ctx context.Context, token string) (claims.Principal, error)
}

type tokenClaims struct {
	Role    string `json:"role,omitempty"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

func (tc tokenClaims) principal() claims.Principal {
	role := tc.Role
	if role == "" {
		role = claims.RoleStudent
	}
	return claims.Principal{
		UserID:   tc.Subject,
		Role:     role,
		Name:     tc.Name,
		Email:    tc.Email,
		ImageURL: tc.Picture,
	}
}

// JWTVerifier accepts HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	issuer string
}

func NewJWTVerifier(secret, issuer string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}, nil
}

func (v *JWTVerifier) Verify(ctx context.Context, raw string) (claims.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var tc tokenClaims
	_, err := jwt.ParseWithClaims(raw, &tc, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return claims.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if tc.Subject == "" {
		return claims.Principal{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return tc.principal(), nil
}

// Issue signs a token for p. The identity provider normally does this; it
// exists for local development and tests.
func (v *JWTVerifier) Issue(p claims.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	tc := tokenClaims{
		Role:    p.Role,
		Name:    p.Name,
		Email:   p.Email,
		Picture: p.ImageURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString(v.secret)
}

// OIDCVerifier accepts ID tokens issued by an OpenID Connect provider.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discovering oidc provider[%s]: %w", issuer, err)
	}

	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, raw string) (claims.Principal, error) {
	tok, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return claims.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var c struct {
		tokenClaims
		Metadata struct {
			Role string `json:"role"`
		} `json:"public_metadata"`
	}
	if err := tok.Claims(&c); err != nil {
		return claims.Principal{}, fmt.Errorf("%w: decoding claims: %v", ErrInvalidToken, err)
	}

	if c.Role == "" {
		c.Role = c.Metadata.Role
	}
	c.Subject = tok.Subject

	return c.tokenClaims.principal(), nil
}
