package eventsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/twitchevents/internal/adapter/metrics"
	"github.com/pscheid92/twitchevents/internal/domain"
	"github.com/pscheid92/twitchevents/internal/platform/retry"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const (
	defaultTestURL = "wss://eventsub.test/ws"
	waitFor        = 2 * time.Second
	tick           = 5 * time.Millisecond
)

var errConnClosed = errors.New("use of closed network connection")

// --- fakeConn ---

type fakeConn struct {
	url    string
	frames chan []byte
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

func newFakeConn(url string) *fakeConn {
	return &fakeConn{
		url:    url,
		frames: make(chan []byte),
		errs:   make(chan error),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case err := <-c.errs:
		return nil, err
	case <-c.closed:
		return nil, errConnClosed
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// send blocks until the reader goroutine took the frame.
func (c *fakeConn) send(t *testing.T, raw string) {
	t.Helper()
	select {
	case c.frames <- []byte(raw):
	case <-time.After(waitFor):
		t.Fatalf("frame was not read: %.60s", raw)
	}
}

func (c *fakeConn) fail(t *testing.T, err error) {
	t.Helper()
	select {
	case c.errs <- err:
	case <-time.After(waitFor):
		t.Fatalf("error was not read: %v", err)
	}
}

// flush returns once every frame sent before it has been handled by the session loop.
func (c *fakeConn) flush(t *testing.T) {
	t.Helper()
	c.send(t, keepaliveFrame())
	c.send(t, keepaliveFrame())
}

// --- fakeDialer ---

type fakeDialer struct {
	mu      sync.Mutex
	urls    []string
	dialed  []*fakeConn
	failAll error
	conns   chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 32)}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	failAll := d.failAll
	d.mu.Unlock()

	if failAll != nil {
		return nil, failAll
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := newFakeConn(url)
	d.mu.Lock()
	d.dialed = append(d.dialed, c)
	d.mu.Unlock()
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) setFailAll(err error) {
	d.mu.Lock()
	d.failAll = err
	d.mu.Unlock()
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) dialedURLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

func (d *fakeDialer) allConns() []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeConn(nil), d.dialed...)
}

func (d *fakeDialer) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(waitFor):
		t.Fatal("no connection was dialed")
		return nil
	}
}

// --- fakeSubscriber ---

type fakeSubscriber struct {
	mu      sync.Mutex
	reqs    []Request
	respond func(Request) (string, error)
	// block holds every Subscribe until its session ends, so no session goes live.
	block bool
}

func (s *fakeSubscriber) Subscribe(ctx context.Context, req Request) (string, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	respond, block := s.respond, s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if respond != nil {
		return respond(req)
	}
	return "sub-" + req.Type + "-" + req.SessionID, nil
}

func (s *fakeSubscriber) requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.reqs...)
}

func (s *fakeSubscriber) requestsFor(sessionID string) []Request {
	var out []Request
	for _, r := range s.requests() {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out
}

// --- harness ---

type harness struct {
	clock   *clockwork.FakeClock
	dialer  *fakeDialer
	sub     *fakeSubscriber
	queue   *Queue
	metrics *metrics.ClientMetrics
	machine *Machine

	cancel context.CancelFunc
	done   chan error
}

func newHarness(t *testing.T, record string, configure ...func(*Config, *fakeSubscriber)) *harness {
	t.Helper()

	spec, err := domain.ParseSubscriptionSpec(record)
	require.NoError(t, err)

	h := &harness{
		clock:   clockwork.NewFakeClock(),
		dialer:  newFakeDialer(),
		sub:     &fakeSubscriber{},
		metrics: metrics.NewClientMetrics(prometheus.NewRegistry()),
		done:    make(chan error, 1),
	}
	h.queue = NewQueue(0, h.metrics)

	cfg := Config{
		URL:            defaultTestURL,
		SubscribeRate:  rate.Inf,
		SubscribeRetry: retry.Policy{MaxAttempts: 1},
	}
	for _, fn := range configure {
		fn(&cfg, h.sub)
	}

	h.machine = NewMachine(cfg, Deps{
		Dialer:        h.dialer,
		Subscriber:    h.sub,
		Subscriptions: NewSubscriptionManager(spec, "1337"),
		Normalizer:    NewNormalizer(spec, nil, h.clock),
		Queue:         h.queue,
		Clock:         h.clock,
		Metrics:       h.metrics,
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.machine.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(waitFor):
			t.Error("machine did not stop")
		}
	})
	return h
}

func (h *harness) waitState(t *testing.T, want domain.SessionState) {
	t.Helper()
	require.Eventually(t, func() bool { return h.machine.State() == want }, waitFor, tick,
		"state never became %s (is %s)", want, h.machine.State())
}

func (h *harness) waitDone(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.done:
		h.done <- err
		return err
	case <-time.After(waitFor):
		t.Fatal("machine did not return")
		return nil
	}
}

// goLive welcomes conn as sessionID and waits until a subscription is confirmed.
func (h *harness) goLive(t *testing.T, conn *fakeConn, sessionID string) {
	t.Helper()
	conn.send(t, welcomeFrame(sessionID, 10))
	h.waitState(t, domain.StateLive)
}

// --- frames ---

func welcomeFrame(sessionID string, keepaliveSeconds int) string {
	return fmt.Sprintf(`{"metadata":{"message_id":"w-%s","message_type":"session_welcome","message_timestamp":"2026-01-01T00:00:00Z"},"payload":{"session":{"id":%q,"status":"connected","connected_at":"2026-01-01T00:00:00Z","keepalive_timeout_seconds":%d,"reconnect_url":null}}}`,
		sessionID, sessionID, keepaliveSeconds)
}

func keepaliveFrame() string {
	return `{"metadata":{"message_id":"k","message_type":"session_keepalive","message_timestamp":"2026-01-01T00:00:00Z"},"payload":{}}`
}

func reconnectFrame(url string) string {
	return fmt.Sprintf(`{"metadata":{"message_id":"r","message_type":"session_reconnect"},"payload":{"session":{"id":"old","status":"reconnecting","keepalive_timeout_seconds":null,"reconnect_url":%q}}}`, url)
}

func notificationFrame(messageID string, topic domain.Topic, event string) string {
	return fmt.Sprintf(`{"metadata":{"message_id":%q,"message_type":"notification","message_timestamp":"2026-01-01T00:00:00Z","subscription_type":%q,"subscription_version":%q},"payload":{"subscription":{"id":"sub","status":"enabled","type":%q,"version":%q},"event":%s}}`,
		messageID, topic.Type(), topic.Version(), topic.Type(), topic.Version(), event)
}

func revocationFrame(topic domain.Topic, subscriptionID string) string {
	return fmt.Sprintf(`{"metadata":{"message_id":"rv","message_type":"revocation"},"payload":{"subscription":{"id":%q,"status":"authorization_revoked","type":%q,"version":%q}}}`,
		subscriptionID, topic.Type(), topic.Version())
}
