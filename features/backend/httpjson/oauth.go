package httpjson

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ClientCredentials returns a TokenFetcher performing the OAuth2
// client-credentials grant described by cfg. When client is not nil it is
// used for the token request.
func ClientCredentials(cfg *clientcredentials.Config, client *http.Client) TokenFetcher {
	return func(ctx context.Context) (Token, error) {
		if cfg.ClientID == "" || cfg.ClientSecret == "" {
			return Token{}, ErrNoToken
		}
		if client != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
		}
		t, err := cfg.Token(ctx)
		if err != nil {
			return Token{}, fmt.Errorf("client credentials grant: %w", err)
		}
		return Token{Value: t.AccessToken, ExpiresAt: t.Expiry}, nil
	}
}
