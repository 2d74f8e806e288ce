package token

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-rollcall/internal/config"
	"golang.org/x/oauth2"
)

// Discovery holds the endpoints and ID token verifier of an OIDC provider.
type Discovery struct {
	Endpoint oauth2.Endpoint
	Verifier *oidc.IDTokenVerifier
}

// Discover fetches the provider's OIDC metadata. It returns nil, nil when no
// issuer is configured so callers can pass the result to WithDiscovery as is.
func Discover(ctx context.Context, cfg config.OAuthConfig) (*Discovery, error) {
	issuer := cfg.GetOIDCIssuer()
	if issuer == "" {
		return nil, nil
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	return &Discovery{
		Endpoint: provider.Endpoint(),
		Verifier: provider.Verifier(&oidc.Config{
			ClientID: cfg.GetClientID(),
		}),
	}, nil
}
