package session

import (
	"context"

	"golang.org/x/oauth2"
)

// Token returns the current token pair as an oauth2 token. The token is
// invalid when the session is logged out.
func (m *Manager) Token() *oauth2.Token {
	m.mu.Lock()
	defer m.mu.Unlock()

	return &oauth2.Token{
		AccessToken:  m.state.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: m.state.RefreshToken,
		Expiry:       m.state.AccessTokenExpiry,
	}
}

// TokenSource returns an oauth2.TokenSource backed by the session. An expired
// access token is refreshed through RefreshAccessToken, so concurrent callers
// share one refresh request.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, manager: m}
}

type tokenSource struct {
	ctx     context.Context
	manager *Manager
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	tok := s.manager.Token()
	if tok.AccessToken == "" {
		return nil, ErrNotAuthenticated
	}
	if tok.Valid() {
		return tok, nil
	}

	if err := s.manager.RefreshAccessToken(s.ctx); err != nil {
		return nil, err
	}

	tok = s.manager.Token()
	if tok.AccessToken == "" {
		return nil, ErrNotAuthenticated
	}
	return tok, nil
}
