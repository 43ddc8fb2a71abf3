package api

import (
	"context"
	"time"

	"github.com/onlyoffice/pipedrive-int/internal/auth"
	"github.com/onlyoffice/pipedrive-int/internal/host"
)

// TokenSource adapts the gateway's /api/me endpoint to the auth.Source
// contract: ask the host for a signed app-context token, trade it for a CRM
// access token.
func (c *Client) TokenSource(commands host.Commands) auth.Source {
	return auth.SourceFunc(func(ctx context.Context) (auth.Token, error) {
		contextToken, err := commands.SignedToken(ctx)
		if err != nil {
			return auth.Token{}, err
		}

		me, err := c.GetMe(ctx, contextToken)
		if err != nil {
			return auth.Token{}, err
		}

		return auth.Token{
			AccessToken: me.Response.AccessToken,
			// expires_at is unix milliseconds on the wire.
			ExpiresAt: time.UnixMilli(me.Response.ExpiresAt),
		}, nil
	})
}
