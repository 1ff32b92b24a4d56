package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Identity is the verified subject of an identity provider token.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
}

// IDTokenVerifier checks a raw ID token from the sign-in flow.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, raw string) (Identity, error)
}

type OIDC struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDC discovers the provider at issuerURL.
func NewOIDC(ctx context.Context, issuerURL, clientID string) (*OIDC, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	return &OIDC{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

// NewOIDCWithKeys builds a verifier against a fixed key set, without discovery.
func NewOIDCWithKeys(issuerURL, clientID string, keys oidc.KeySet) *OIDC {
	return &OIDC{verifier: oidc.NewVerifier(issuerURL, keys, &oidc.Config{ClientID: clientID})}
}

func (o *OIDC) VerifyIDToken(ctx context.Context, raw string) (Identity, error) {
	tok, err := o.verifier.Verify(ctx, raw)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := tok.Claims(&claims); err != nil {
		return Identity{}, fmt.Errorf("failed to parse token claims: %w", err)
	}
	if tok.Subject == "" {
		return Identity{}, errors.New("token has no subject")
	}
	return Identity{Subject: tok.Subject, Email: claims.Email, EmailVerified: claims.EmailVerified}, nil
}
