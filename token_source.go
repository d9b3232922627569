package goDocs

import (
	"context"

	"github.com/MrEthical07/goDocs/jwt"
	"golang.org/x/oauth2"
)

// TokenSource adapts the client's session to oauth2.TokenSource so libraries built on
// golang.org/x/oauth2 can reuse it. When no token is held, Token runs (or joins) the
// refresh flight. Expiry is filled from the token's exp claim when it is a JWT.
//
// ctx is used for every store read and refresh wait the source performs.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	if ctx == nil {
		ctx = context.Background()
	}
	return &sessionTokenSource{client: c, ctx: ctx}
}

type sessionTokenSource struct {
	client *Client
	ctx    context.Context
}

func (s *sessionTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.client.Token(s.ctx)
	if err != nil {
		return nil, err
	}

	claims, inspectErr := jwt.Inspect(token)
	if token == "" || (inspectErr == nil && claims.Expired(s.client.now())) {
		token, err = s.client.RefreshSession(s.ctx)
		if err != nil {
			return nil, err
		}
		claims, inspectErr = jwt.Inspect(token)
	}

	out := &oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}
	if inspectErr == nil {
		out.Expiry = claims.ExpiresAt
	}
	return out, nil
}
