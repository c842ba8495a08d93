// Package twitch talks to the Twitch Helix API and chat on behalf of the EventSub client.
package twitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nicklaw5/helix/v2"
	"github.com/pscheid92/twitchevents/internal/domain"
	"github.com/pscheid92/twitchevents/internal/eventsub"
	"github.com/pscheid92/twitchevents/internal/platform/version"
)

// SubscriberConfig configures Helix access.
type SubscriberConfig struct {
	ClientID     string
	ClientSecret string
	// APIBaseURL overrides the Helix endpoint, e.g. for the Twitch CLI mock API.
	APIBaseURL string
	HTTPClient helix.HTTPClient
}

// Subscriber creates EventSub subscriptions bound to a WebSocket session.
type Subscriber struct {
	cfg    SubscriberConfig
	tokens *Tokens
}

func NewSubscriber(cfg SubscriberConfig, tokens *Tokens) *Subscriber {
	return &Subscriber{cfg: cfg, tokens: tokens}
}

// Subscribe posts one subscription request. A 401 triggers a single token refresh and
// retry; if that fails too the error wraps domain.ErrUnauthorized. A 409 means the
// subscription already exists for this session and counts as success.
func (s *Subscriber) Subscribe(ctx context.Context, req eventsub.Request) (string, error) {
	token := s.tokens.AccessToken()
	id, status, err := s.create(ctx, req, token)
	if status != http.StatusUnauthorized {
		return id, err
	}

	slog.WarnContext(ctx, "Helix rejected user token, refreshing", "type", req.Type)
	client, cerr := s.client(ctx, "")
	if cerr != nil {
		return "", cerr
	}
	if rerr := s.tokens.Refresh(ctx, client, token); rerr != nil {
		return "", &domain.SubscriptionError{Topic: req.Topic, StatusCode: status, Err: errors.Join(domain.ErrUnauthorized, rerr)}
	}

	id, status, err = s.create(ctx, req, s.tokens.AccessToken())
	if status == http.StatusUnauthorized {
		return "", &domain.SubscriptionError{Topic: req.Topic, StatusCode: status, Err: errors.Join(domain.ErrUnauthorized, err)}
	}
	return id, err
}

func (s *Subscriber) create(ctx context.Context, req eventsub.Request, token string) (string, int, error) {
	client, err := s.client(ctx, token)
	if err != nil {
		return "", 0, err
	}

	resp, err := client.CreateEventSubSubscription(&helix.EventSubSubscription{
		Type:      req.Type,
		Version:   req.Version,
		Condition: condition(req.Condition),
		Transport: helix.EventSubTransport{
			Method:    "websocket",
			SessionID: req.SessionID,
		},
	})
	if err != nil {
		return "", 0, &domain.SubscriptionError{Topic: req.Topic, Err: err}
	}

	switch resp.StatusCode {
	case http.StatusAccepted:
		if len(resp.Data.EventSubSubscriptions) == 0 {
			return "", resp.StatusCode, &domain.SubscriptionError{Topic: req.Topic, StatusCode: resp.StatusCode, Err: errors.New("no subscription returned")}
		}
		return resp.Data.EventSubSubscriptions[0].ID, resp.StatusCode, nil
	case http.StatusConflict:
		slog.DebugContext(ctx, "EventSub subscription already exists", "type", req.Type)
		return "", resp.StatusCode, nil
	default:
		err := fmt.Errorf("%s: %s", resp.Error, resp.ErrorMessage)
		return "", resp.StatusCode, &domain.SubscriptionError{Topic: req.Topic, StatusCode: resp.StatusCode, Err: err}
	}
}

func (s *Subscriber) client(ctx context.Context, token string) (*helix.Client, error) {
	client, err := helix.NewClientWithContext(ctx, &helix.Options{
		ClientID:        s.cfg.ClientID,
		ClientSecret:    s.cfg.ClientSecret,
		UserAccessToken: token,
		APIBaseURL:      s.cfg.APIBaseURL,
		HTTPClient:      s.cfg.HTTPClient,
		UserAgent:       version.UserAgent(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create helix client: %w", err)
	}
	return client, nil
}

func condition(c map[string]string) helix.EventSubCondition {
	return helix.EventSubCondition{
		BroadcasterUserID:   c["broadcaster_user_id"],
		ToBroadcasterUserID: c["to_broadcaster_user_id"],
		UserID:              c["user_id"],
		ModeratorUserID:     c["moderator_user_id"],
	}
}
