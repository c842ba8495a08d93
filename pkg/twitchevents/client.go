package twitchevents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/twitchevents/internal/adapter/metrics"
	"github.com/pscheid92/twitchevents/internal/adapter/twitch"
	"github.com/pscheid92/twitchevents/internal/adapter/websocket"
	"github.com/pscheid92/twitchevents/internal/domain"
	"github.com/pscheid92/twitchevents/internal/eventsub"
	"github.com/pscheid92/twitchevents/internal/platform/correlation"
	"github.com/pscheid92/twitchevents/internal/platform/retry"
)

const DefaultDisposeTimeout = 5 * time.Second

var (
	ErrInvalidHandle = domain.ErrInvalidHandle
	ErrUnauthorized  = domain.ErrUnauthorized
	ErrQueueClosed   = domain.ErrQueueClosed
)

type (
	ConfigError = domain.ConfigError
	FatalError  = domain.FatalError
	State       = domain.SessionState
)

// KindError is the kind of the event that reports a fatal error.
const KindError = string(domain.KindError)

// Options configures a Client. ClientID, UserToken and BroadcasterID are required; every
// other field has a default.
type Options struct {
	ClientID      string
	UserToken     string
	BroadcasterID string
	// ClientSecret and RefreshToken enable refreshing UserToken when Helix rejects it.
	ClientSecret string
	RefreshToken string
	// OnTokenRefresh is called with the new pair after a refresh so the host can persist it.
	OnTokenRefresh func(accessToken, refreshToken string)

	EventSubURL  string
	HelixBaseURL string

	// IRCChannel enables chat enrichment from IRC. IRCUsername may be empty for an
	// anonymous read-only connection.
	IRCUsername string
	IRCChannel  string

	KeepaliveMultiplier  float64
	WelcomeTimeout       time.Duration
	BackoffInitial       time.Duration
	BackoffMax           time.Duration
	MaxReconnectAttempts int
	QueueSoftLimit       int
	// DedupeWindow is the number of recent message ids remembered; negative disables it.
	DedupeWindow   int
	DisposeTimeout time.Duration

	// Registerer receives the client metrics. Nil disables metrics.
	Registerer prometheus.Registerer
	Clock      clockwork.Clock

	dialer     eventsub.Dialer
	subscriber eventsub.Subscriber
	enricher   chatEnricher
}

// chatEnricher is the IRC side channel; Run blocks until ctx ends.
type chatEnricher interface {
	eventsub.ChatEnricher
	Run(ctx context.Context) error
}

func (o Options) withDefaults() Options {
	if o.EventSubURL == "" {
		o.EventSubURL = eventsub.DefaultURL
	}
	if o.KeepaliveMultiplier <= 1 {
		o.KeepaliveMultiplier = eventsub.DefaultKeepaliveMultiplier
	}
	if o.WelcomeTimeout <= 0 {
		o.WelcomeTimeout = eventsub.DefaultWelcomeTimeout
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = eventsub.DefaultBackoffInitial
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = eventsub.DefaultBackoffMax
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = eventsub.DefaultMaxAttempts
	}
	if o.QueueSoftLimit <= 0 {
		o.QueueSoftLimit = eventsub.DefaultQueueSoftLimit
	}
	if o.DedupeWindow == 0 {
		o.DedupeWindow = eventsub.DefaultDedupeWindow
	}
	if o.DisposeTimeout <= 0 {
		o.DisposeTimeout = DefaultDisposeTimeout
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

func (o Options) validate() error {
	required := []struct{ field, value string }{
		{"client_id", o.ClientID},
		{"user_token", o.UserToken},
		{"broadcaster_id", o.BroadcasterID},
	}
	for _, r := range required {
		if r.value == "" {
			return &ConfigError{Field: r.field, Err: errors.New("is required")}
		}
	}
	if o.RefreshToken != "" && o.ClientSecret == "" {
		return &ConfigError{Field: "client_secret", Err: errors.New("is required when a refresh token is set")}
	}
	return nil
}

// Event is one polled event. Body is the normalized payload as JSON; for KindError it
// is {"error": "..."}.
type Event struct {
	Kind       string
	Body       string
	Topic      string
	MessageID  string
	ReceivedAt time.Time
	// Raw is the event object exactly as Twitch sent it, including fields Body drops.
	// It is empty for KindError.
	Raw string
	// Payload is the decoded struct from internal/domain, or nil for KindError.
	Payload any
}

// Client is one EventSub session and its event queue.
type Client struct {
	id      string
	opts    Options
	machine *eventsub.Machine
	queue   *eventsub.Queue
	cancel  context.CancelFunc
	done    chan error
	ircDone chan struct{}

	disposed    atomic.Bool
	disposeOnce sync.Once
	disposeErr  error
}

// New validates record and opts and starts connecting in the background. It never
// waits for the network; an invalid record or missing option returns a *ConfigError
// and nothing is started.
func New(record string, opts Options) (*Client, error) {
	spec, err := domain.ParseSubscriptionSpec(record)
	if err != nil {
		return nil, err
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	id := correlation.NewID()

	var (
		clientMetrics    *metrics.ClientMetrics
		transportMetrics *metrics.TransportMetrics
	)
	if opts.Registerer != nil {
		// several clients may share one registry
		reg := prometheus.WrapRegistererWith(prometheus.Labels{"client": id}, opts.Registerer)
		clientMetrics = metrics.NewClientMetrics(reg)
		transportMetrics = metrics.NewTransportMetrics(reg)
	}

	dialer := opts.dialer
	if dialer == nil {
		dialer = websocket.NewDialer(transportMetrics)
	}
	subscriber := opts.subscriber
	if subscriber == nil {
		tokens := twitch.NewTokens(opts.UserToken, opts.RefreshToken)
		if opts.OnTokenRefresh != nil {
			tokens.OnRefresh(opts.OnTokenRefresh)
		}
		subscriber = twitch.NewSubscriber(twitch.SubscriberConfig{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			APIBaseURL:   opts.HelixBaseURL,
		}, tokens)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ctx = correlation.WithID(ctx, id)

	irc := opts.enricher
	if irc == nil && opts.IRCChannel != "" && spec.Enabled(domain.TopicChatMessage) {
		irc = twitch.NewChatEnricher(twitch.IRCConfig{
			Username: opts.IRCUsername,
			Token:    opts.UserToken,
			Channel:  opts.IRCChannel,
		}, opts.Clock)
	}

	var (
		enricher eventsub.ChatEnricher
		ircDone  chan struct{}
	)
	if irc != nil && spec.Enabled(domain.TopicChatMessage) {
		enricher = irc
		ircDone = make(chan struct{})
		go func() {
			defer close(ircDone)
			if err := irc.Run(ctx); err != nil {
				slog.WarnContext(ctx, "IRC enrichment stopped", "error", err)
			}
		}()
	}

	queue := eventsub.NewQueue(opts.QueueSoftLimit, clientMetrics)
	machine := eventsub.NewMachine(eventsub.Config{
		URL:                 opts.EventSubURL,
		KeepaliveMultiplier: opts.KeepaliveMultiplier,
		WelcomeTimeout:      opts.WelcomeTimeout,
		Reconnect: retry.Policy{
			MaxAttempts:    opts.MaxReconnectAttempts,
			InitialBackoff: opts.BackoffInitial,
			MaxBackoff:     opts.BackoffMax,
		},
		DedupeWindow: opts.DedupeWindow,
	}, eventsub.Deps{
		Dialer:        dialer,
		Subscriber:    subscriber,
		Subscriptions: eventsub.NewSubscriptionManager(spec, opts.BroadcasterID),
		Normalizer:    eventsub.NewNormalizer(spec, enricher, opts.Clock),
		Queue:         queue,
		Clock:         opts.Clock,
		Metrics:       clientMetrics,
	})

	slog.InfoContext(ctx, "EventSub client starting",
		"topics", len(spec.Topics()),
		"required_scopes", spec.RequiredScopes(),
		"broadcaster_id", opts.BroadcasterID)

	c := &Client{
		id:      id,
		opts:    opts,
		machine: machine,
		queue:   queue,
		cancel:  cancel,
		done:    make(chan error, 1),
		ircDone: ircDone,
	}
	go func() {
		err := machine.Run(ctx)
		// Run only returns in Closed or Faulted; stop the IRC connection with it.
		cancel()
		c.done <- err
	}()

	return c, nil
}

// Poll returns the next event without blocking. ok is false when the queue is empty.
// After Dispose it returns ErrInvalidHandle.
func (c *Client) Poll() (Event, bool, error) {
	if c.disposed.Load() {
		return Event{}, false, ErrInvalidHandle
	}

	env, ok := c.queue.PopOne()
	if !ok {
		return Event{}, false, nil
	}
	return toEvent(env), true, nil
}

func toEvent(env domain.Envelope) Event {
	e := Event{
		Kind:       string(env.Kind),
		Body:       string(env.Body),
		MessageID:  env.MessageID,
		ReceivedAt: env.ReceivedAt,
		Raw:        string(env.Raw),
		Payload:    env.Payload,
	}
	if env.Topic.Valid() {
		e.Topic = env.Topic.Type()
	}
	return e
}

// Dispose stops the session and releases the connection. It waits up to
// Options.DisposeTimeout for the network goroutine, then closes the transport from the
// outside. Events still queued are discarded. Dispose is idempotent.
func (c *Client) Dispose() error {
	c.disposeOnce.Do(func() {
		c.disposed.Store(true)
		c.cancel()

		if !c.awaitStop() {
			slog.Warn("EventSub client did not stop in time, closing transport", "timeout", c.opts.DisposeTimeout)
			c.machine.ForceClose()
			if !c.awaitStop() {
				c.disposeErr = fmt.Errorf("dispose: network goroutine still running after %s", 2*c.opts.DisposeTimeout)
			}
		}

		if c.ircDone != nil {
			select {
			case <-c.ircDone:
			case <-c.opts.Clock.After(c.opts.DisposeTimeout):
			}
		}
		c.queue.Close()
	})
	return c.disposeErr
}

func (c *Client) awaitStop() bool {
	select {
	case <-c.done:
		return true
	case <-c.opts.Clock.After(c.opts.DisposeTimeout):
		return false
	}
}

// State reports the session state for diagnostics.
func (c *Client) State() State {
	return c.machine.State()
}

// Session returns a snapshot of the current EventSub session.
func (c *Client) Session() domain.Session {
	return c.machine.Session()
}

// Subscriptions returns the per-topic subscription status of the current session.
func (c *Client) Subscriptions() []domain.PendingSubscription {
	return c.machine.Subscriptions()
}

// ID is the correlation id attached to this client's log lines and metrics.
func (c *Client) ID() string {
	return c.id
}

// Pending is the number of events waiting to be polled.
func (c *Client) Pending() int {
	return c.queue.Len()
}
