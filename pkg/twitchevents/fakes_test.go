package twitchevents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pscheid92/twitchevents/internal/domain"
	"github.com/pscheid92/twitchevents/internal/eventsub"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond

	followEvent = `{"user_id":"1234","user_login":"cool_user","user_name":"Cool_User","broadcaster_user_id":"1337","broadcaster_user_login":"cooler_user","broadcaster_user_name":"Cooler_User","followed_at":"2020-07-15T18:16:11.17106713Z"}`
	cheerEvent  = `{"is_anonymous":false,"user_id":"1234","user_login":"cool_user","user_name":"Cool_User","broadcaster_user_id":"1337","broadcaster_user_login":"cooler_user","broadcaster_user_name":"Cooler_User","message":"pogchamp","bits":1000}`
)

var errClosed = errors.New("use of closed network connection")

type fakeConn struct {
	frames chan []byte
	errs   chan error
	closed chan struct{}
	once   sync.Once
	// stuck makes ReadMessage ignore Close until release is closed.
	stuck   bool
	release chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 16), errs: make(chan error, 1), closed: make(chan struct{}), release: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	if c.stuck {
		<-c.release
		return nil, errClosed
	}
	select {
	case f := <-c.frames:
		return f, nil
	case err := <-c.errs:
		return nil, err
	case <-c.closed:
		return nil, errClosed
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) send(frame string) { c.frames <- []byte(frame) }

// serverClose ends the stream with a close frame. Frames still buffered may be read
// after it, so callers wait for them to be handled first.
func (c *fakeConn) serverClose(code int) {
	c.errs <- &domain.CloseError{Code: code, Reason: "bye"}
}

type fakeDialer struct {
	mu      sync.Mutex
	conns   chan *fakeConn
	failAll bool
	dials   int
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 4)}
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (eventsub.Conn, error) {
	d.mu.Lock()
	d.dials++
	fail := d.failAll
	d.mu.Unlock()

	if fail {
		return nil, &domain.TransportError{Op: "dial", Err: errors.New("connection refused")}
	}
	select {
	case c := <-d.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type fakeSubscriber struct {
	err error
}

func (s *fakeSubscriber) Subscribe(_ context.Context, req eventsub.Request) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "sub-" + req.Type, nil
}

func testOptions(d *fakeDialer, s *fakeSubscriber) Options {
	return Options{
		ClientID:      "client",
		UserToken:     "token",
		BroadcasterID: "1337",
		dialer:        d,
		subscriber:    s,
	}
}

func newTestClient(t *testing.T, record string, opts Options) *Client {
	t.Helper()
	c, err := New(record, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Dispose() })
	return c
}

func waitState(t *testing.T, c *Client, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want }, waitFor, tick, "state never became %s (is %s)", want, c.State())
}

func pollOne(t *testing.T, c *Client) Event {
	t.Helper()
	var ev Event
	require.Eventually(t, func() bool {
		e, ok, err := c.Poll()
		require.NoError(t, err)
		ev = e
		return ok
	}, waitFor, tick)
	return ev
}

func welcomeFrame(sessionID string) string {
	return fmt.Sprintf(`{"metadata":{"message_id":"w-%s","message_type":"session_welcome","message_timestamp":"2026-01-01T00:00:00Z"},"payload":{"session":{"id":%q,"status":"connected","connected_at":"2026-01-01T00:00:00Z","keepalive_timeout_seconds":30,"reconnect_url":null}}}`,
		sessionID, sessionID)
}

func notificationFrame(messageID string, topic domain.Topic, event string) string {
	return fmt.Sprintf(`{"metadata":{"message_id":%q,"message_type":"notification","message_timestamp":"2026-01-01T00:00:00Z","subscription_type":%q,"subscription_version":%q},"payload":{"subscription":{"id":"sub","status":"enabled","type":%q,"version":%q},"event":%s}}`,
		messageID, topic.Type(), topic.Version(), topic.Type(), topic.Version(), event)
}

// stubEnricher records whether its IRC loop is still running.
type stubEnricher struct {
	started chan struct{}
	stopped chan struct{}
}

func newStubEnricher() *stubEnricher {
	return &stubEnricher{started: make(chan struct{}), stopped: make(chan struct{})}
}

func (e *stubEnricher) Enrich(*domain.ChatMessage) {}

func (e *stubEnricher) Run(ctx context.Context) error {
	close(e.started)
	<-ctx.Done()
	close(e.stopped)
	return nil
}
