package twitch

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	twitchirc "github.com/gempir/go-twitch-irc/v4"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/twitchevents/internal/domain"
)

// chatFlagWindow bounds how long an IRC message is kept for matching. EventSub chat
// notifications normally arrive within a second of the IRC line.
const chatFlagWindow = 30 * time.Second

// IRCConfig selects the chat channel to watch. An empty Username connects anonymously.
type IRCConfig struct {
	Username string
	Token    string
	Channel  string
}

type chatFlags struct {
	firstTime bool
	returning bool
	moderator bool
	seenAt    time.Time
}

// ChatEnricher watches a channel over IRC and copies the first-message, returning-chatter
// and moderator tags onto EventSub chat messages with the same message id.
type ChatEnricher struct {
	client  *twitchirc.Client
	channel string
	clock   clockwork.Clock

	mu    sync.Mutex
	seen  map[string]chatFlags
	order []string
}

func NewChatEnricher(cfg IRCConfig, clock clockwork.Clock) *ChatEnricher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	var client *twitchirc.Client
	if cfg.Username == "" {
		client = twitchirc.NewAnonymousClient()
	} else {
		token := cfg.Token
		if !strings.HasPrefix(token, "oauth:") {
			token = "oauth:" + token
		}
		client = twitchirc.NewClient(cfg.Username, token)
	}

	e := &ChatEnricher{
		client:  client,
		channel: strings.ToLower(strings.TrimPrefix(cfg.Channel, "#")),
		clock:   clock,
		seen:    make(map[string]chatFlags),
	}

	client.OnPrivateMessage(e.observe)
	client.OnConnect(func() {
		slog.Info("IRC connected", "channel", e.channel)
	})
	client.OnReconnectMessage(func(twitchirc.ReconnectMessage) {
		slog.Info("IRC server requested reconnect", "channel", e.channel)
	})
	client.Join(e.channel)

	return e
}

// Run connects and blocks until ctx is cancelled or the connection fails for good.
func (e *ChatEnricher) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.client.Connect()
	}()

	select {
	case <-ctx.Done():
		_ = e.client.Disconnect()
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// Enrich sets the IRC-only flags if the message was already seen on IRC.
func (e *ChatEnricher) Enrich(msg *domain.ChatMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pruneLocked()
	flags, ok := e.seen[msg.MessageID]
	if !ok {
		return
	}
	msg.FirstTimeChatter = flags.firstTime
	msg.ReturningChatter = flags.returning
	msg.Moderator = msg.Moderator || flags.moderator
}

func (e *ChatEnricher) observe(m twitchirc.PrivateMessage) {
	if m.ID == "" {
		return
	}

	flags := chatFlags{
		firstTime: m.FirstMessage || m.Tags["first-msg"] == "1",
		returning: m.Tags["returning-chatter"] == "1",
		moderator: m.Tags["mod"] == "1" || m.User.Badges["moderator"] > 0 || m.User.Badges["broadcaster"] > 0,
		seenAt:    e.clock.Now(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.pruneLocked()
	if _, dup := e.seen[m.ID]; !dup {
		e.order = append(e.order, m.ID)
	}
	e.seen[m.ID] = flags
}

func (e *ChatEnricher) pruneLocked() {
	cutoff := e.clock.Now().Add(-chatFlagWindow)
	n := 0
	for _, id := range e.order {
		if e.seen[id].seenAt.After(cutoff) {
			break
		}
		delete(e.seen, id)
		n++
	}
	e.order = e.order[n:]
}
