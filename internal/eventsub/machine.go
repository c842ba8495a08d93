package eventsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/twitchevents/internal/adapter/metrics"
	"github.com/pscheid92/twitchevents/internal/domain"
	"github.com/pscheid92/twitchevents/internal/platform/retry"
	"golang.org/x/time/rate"
)

const (
	DefaultURL                 = "wss://eventsub.wss.twitch.tv/ws?keepalive_timeout_seconds=30"
	DefaultKeepaliveMultiplier = 1.5
	DefaultWelcomeTimeout      = 10 * time.Second
	DefaultBackoffInitial      = 1 * time.Second
	DefaultBackoffMax          = 30 * time.Second
	DefaultMaxAttempts         = 6
	DefaultDedupeWindow        = 1024
	defaultSubscribeRate       = 10
)

// Dialer opens one EventSub connection.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Conn is an open EventSub connection. ReadMessage returns the next text frame and a
// *domain.CloseError once the server closes. Close unblocks a pending ReadMessage.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// Subscriber creates one EventSub subscription and returns its server id. An error
// wrapping domain.ErrUnauthorized means the token could not be refreshed.
type Subscriber interface {
	Subscribe(ctx context.Context, req Request) (string, error)
}

type Config struct {
	URL                 string
	KeepaliveMultiplier float64
	WelcomeTimeout      time.Duration
	// Reconnect paces consecutive failed connection attempts; MaxAttempts is the
	// ceiling after which the machine faults.
	Reconnect      retry.Policy
	SubscribeRetry retry.Policy
	SubscribeRate  rate.Limit
	DedupeWindow   int
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.KeepaliveMultiplier <= 1 {
		c.KeepaliveMultiplier = DefaultKeepaliveMultiplier
	}
	if c.WelcomeTimeout <= 0 {
		c.WelcomeTimeout = DefaultWelcomeTimeout
	}
	if c.Reconnect.InitialBackoff <= 0 {
		c.Reconnect.InitialBackoff = DefaultBackoffInitial
	}
	if c.Reconnect.MaxBackoff <= 0 {
		c.Reconnect.MaxBackoff = DefaultBackoffMax
	}
	if c.Reconnect.MaxAttempts <= 0 {
		c.Reconnect.MaxAttempts = DefaultMaxAttempts
	}
	if c.SubscribeRetry.MaxAttempts <= 0 {
		c.SubscribeRetry = retry.Policy{
			MaxAttempts:      3,
			InitialBackoff:   time.Second,
			RateLimitBackoff: 30 * time.Second,
		}
	}
	if c.SubscribeRate <= 0 {
		c.SubscribeRate = defaultSubscribeRate
	}
	if c.DedupeWindow == 0 {
		c.DedupeWindow = DefaultDedupeWindow
	}
	return c
}

type Deps struct {
	Dialer        Dialer
	Subscriber    Subscriber
	Subscriptions *SubscriptionManager
	Normalizer    *Normalizer
	Queue         *Queue
	Clock         clockwork.Clock
	Metrics       *metrics.ClientMetrics
}

// Machine runs the session lifecycle. Run owns the connection, the timers and the
// subscription manager; the other methods are safe to call from any goroutine.
type Machine struct {
	cfg        Config
	dialer     Dialer
	subscriber Subscriber
	subs       *SubscriptionManager
	normalizer *Normalizer
	queue      *Queue
	clock      clockwork.Clock
	metrics    *metrics.ClientMetrics
	limiter    *rate.Limiter
	dedupe     *dedupe

	state atomic.Int32

	mu       sync.Mutex
	conn     Conn
	session  domain.Session
	snapshot []domain.PendingSubscription
	fatal    error
}

func NewMachine(cfg Config, deps Deps) *Machine {
	cfg = cfg.withDefaults()
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	cfg.Reconnect.Clock = clock
	cfg.SubscribeRetry.Clock = clock

	m := &Machine{
		cfg:        cfg,
		dialer:     deps.Dialer,
		subscriber: deps.Subscriber,
		subs:       deps.Subscriptions,
		normalizer: deps.Normalizer,
		queue:      deps.Queue,
		clock:      clock,
		metrics:    deps.Metrics,
		limiter:    rate.NewLimiter(cfg.SubscribeRate, 1),
		dedupe:     newDedupe(cfg.DedupeWindow),
	}
	m.state.Store(int32(domain.StateConnecting))
	return m
}

func (m *Machine) State() domain.SessionState {
	return domain.SessionState(m.state.Load())
}

func (m *Machine) Session() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session
	s.State = m.State()
	return s
}

// Subscriptions returns the pending subscriptions of the current session.
func (m *Machine) Subscriptions() []domain.PendingSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.PendingSubscription(nil), m.snapshot...)
}

// Err returns the fatal error once the machine is Faulted.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fatal
}

// ForceClose closes the current connection without waiting for Run.
func (m *Machine) ForceClose() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// dropConn closes conn unless ForceClose already did.
func (m *Machine) dropConn(conn Conn) {
	m.mu.Lock()
	owned := m.conn == conn
	if owned {
		m.conn = nil
	}
	m.mu.Unlock()

	if owned {
		_ = conn.Close()
	}
}

// Run connects and keeps the session alive until ctx is cancelled (Closed, nil),
// the server closes for good (Closed, nil) or recovery is impossible (Faulted,
// *domain.FatalError). A fatal error is also pushed to the queue as an error envelope.
func (m *Machine) Run(ctx context.Context) error {
	url := m.cfg.URL
	failures := 0

	for {
		if ctx.Err() != nil {
			m.setState(ctx, domain.StateClosed)
			return nil
		}
		m.setState(ctx, domain.StateConnecting)

		conn, err := m.dialer.Dial(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				m.setState(ctx, domain.StateClosed)
				return nil
			}
			failures++
			slog.WarnContext(ctx, "EventSub dial failed", "url", url, "attempt", failures, "error", err)
			m.metrics.Reconnect("dial_failed")
			url = m.cfg.URL

			if failures > m.cfg.Reconnect.MaxAttempts {
				return m.fault(ctx, "reconnect attempts exhausted", err)
			}
			m.setState(ctx, domain.StateReconnecting)
			if !m.wait(ctx, failures) {
				m.setState(ctx, domain.StateClosed)
				return nil
			}
			continue
		}

		out := m.serveSession(ctx, conn, url)
		if out.live {
			failures = 0
		}

		switch out.kind {
		case outcomeCancelled:
			m.setState(ctx, domain.StateClosed)
			return nil
		case outcomeClosed:
			slog.InfoContext(ctx, "EventSub connection closed by server", "error", out.err)
			m.setState(ctx, domain.StateClosed)
			return nil
		case outcomeFatal:
			return m.fault(ctx, out.reason, out.err)
		}

		m.metrics.Reconnect(out.reason)
		m.setState(ctx, domain.StateReconnecting)

		if out.kind == outcomeReconnect {
			// server-initiated; the new URL is only valid briefly, so no backoff
			slog.InfoContext(ctx, "EventSub reconnect requested", "url", out.url)
			url = out.url
			if out.live {
				continue
			}
			// a session that never went live still counts, so a reconnect loop faults
			failures++
			if failures > m.cfg.Reconnect.MaxAttempts {
				return m.fault(ctx, "reconnect attempts exhausted", errors.New("server requested reconnect before the session went live"))
			}
			continue
		}

		url = m.cfg.URL
		failures++
		slog.WarnContext(ctx, "EventSub session lost, restarting", "reason", out.reason, "attempt", failures, "error", out.err)

		if failures > m.cfg.Reconnect.MaxAttempts {
			return m.fault(ctx, "reconnect attempts exhausted", out.err)
		}
		if !m.wait(ctx, failures) {
			m.setState(ctx, domain.StateClosed)
			return nil
		}
	}
}

// wait sleeps before the next connection attempt. The first attempt after a failure
// is immediate, later ones back off exponentially. It reports false if ctx ended.
func (m *Machine) wait(ctx context.Context, failures int) bool {
	if failures <= 1 {
		return true
	}
	backoff := m.cfg.Reconnect.Backoff(failures - 1)
	slog.DebugContext(ctx, "Waiting before reconnect", "backoff_seconds", backoff.Seconds())
	return m.cfg.Reconnect.Sleep(ctx, backoff) == nil
}

func (m *Machine) fault(ctx context.Context, reason string, cause error) error {
	fatal := &domain.FatalError{Reason: reason, Err: cause}

	m.mu.Lock()
	m.fatal = fatal
	m.mu.Unlock()

	slog.ErrorContext(ctx, "EventSub client faulted", "reason", reason, "error", cause)
	m.setState(ctx, domain.StateFaulted)
	if m.queue.Push(domain.NewErrorEnvelope(fatal, m.clock.Now())) {
		m.metrics.EventEnqueued(string(domain.KindError))
	}
	return fatal
}

func (m *Machine) setState(ctx context.Context, s domain.SessionState) {
	prev := domain.SessionState(m.state.Swap(int32(s)))
	if prev == s {
		return
	}
	m.metrics.SetSessionState(int(s))
	slog.DebugContext(ctx, "Session state changed", "from", prev.String(), "to", s.String())
}

func (m *Machine) setConn(conn Conn) {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
}

func (m *Machine) publishSession(s domain.Session) {
	m.mu.Lock()
	m.session = s
	m.snapshot = m.subs.Snapshot()
	m.mu.Unlock()
}

func (m *Machine) publishSubscriptions() {
	snap := m.subs.Snapshot()
	m.mu.Lock()
	m.snapshot = snap
	m.mu.Unlock()
}

// transientCloseCodes restart the session; any other close code ends it.
var transientCloseCodes = map[int]bool{
	1006: true, // abnormal closure
	4000: true, // internal server error
	4002: true, // client failed ping-pong
	4003: true, // connection unused, no subscription in time
	4004: true, // reconnect grace time expired
	4005: true, // network timeout
	4006: true, // network error
}

func classifySubscribeError(err error) retry.Action {
	if errors.Is(err, domain.ErrUnauthorized) {
		return retry.Stop
	}
	subErr, ok := errors.AsType[*domain.SubscriptionError](err)
	if !ok || subErr.StatusCode == 0 {
		return retry.Retry
	}

	switch {
	case subErr.StatusCode == 429:
		return retry.After
	case subErr.StatusCode >= 500:
		return retry.Retry
	default:
		return retry.Stop
	}
}

func closeReason(code int) string {
	return fmt.Sprintf("close_%d", code)
}
