package twitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/nicklaw5/helix/v2"
	"github.com/pscheid92/twitchevents/internal/domain"
)

// TokenRefreshError reports a failed refresh. Revoked means the refresh token itself
// was rejected and the user has to authorize again.
type TokenRefreshError struct {
	Revoked bool
	Err     error
}

func (e *TokenRefreshError) Error() string {
	if e.Revoked {
		return fmt.Sprintf("token revoked: %v", e.Err)
	}
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *TokenRefreshError) Unwrap() error { return e.Err }

// Tokens holds the user access token and, when available, the refresh token.
type Tokens struct {
	mu           sync.Mutex
	accessToken  string
	refreshToken string
	onRefresh    func(accessToken, refreshToken string)
}

// NewTokens returns a token store. refreshToken may be empty, which disables refresh.
func NewTokens(accessToken, refreshToken string) *Tokens {
	return &Tokens{accessToken: accessToken, refreshToken: refreshToken}
}

// OnRefresh registers a callback invoked with the new pair after every successful refresh.
func (t *Tokens) OnRefresh(fn func(accessToken, refreshToken string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRefresh = fn
}

func (t *Tokens) AccessToken() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.accessToken
}

// CanRefresh reports whether a refresh token is available.
func (t *Tokens) CanRefresh() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refreshToken != ""
}

// Refresh exchanges the refresh token for a new pair. stale is the access token the
// caller saw rejected; if another caller already replaced it, no request is made.
func (t *Tokens) Refresh(ctx context.Context, client *helix.Client, stale string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.accessToken != stale {
		return nil
	}
	if t.refreshToken == "" {
		return &TokenRefreshError{Revoked: true, Err: domain.ErrUnauthorized}
	}

	resp, err := client.RefreshUserAccessToken(t.refreshToken)
	if err != nil {
		return &TokenRefreshError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		revoked := resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized
		err := fmt.Errorf("status %d: %s", resp.StatusCode, resp.ErrorMessage)
		if revoked {
			err = errors.Join(domain.ErrUnauthorized, err)
		}
		return &TokenRefreshError{Revoked: revoked, Err: err}
	}

	t.accessToken = resp.Data.AccessToken
	if resp.Data.RefreshToken != "" {
		t.refreshToken = resp.Data.RefreshToken
	}
	slog.InfoContext(ctx, "User access token refreshed", "expires_in", resp.Data.ExpiresIn)

	if t.onRefresh != nil {
		t.onRefresh(t.accessToken, t.refreshToken)
	}
	return nil
}
