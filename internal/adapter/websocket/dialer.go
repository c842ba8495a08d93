// Package websocket is the gorilla/websocket transport for EventSub connections.
package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pscheid92/twitchevents/internal/adapter/metrics"
	"github.com/pscheid92/twitchevents/internal/domain"
	"github.com/pscheid92/twitchevents/internal/eventsub"
	"github.com/pscheid92/twitchevents/internal/platform/version"
)

const (
	handshakeTimeout = 10 * time.Second
	closeDeadline    = 2 * time.Second
	// EventSub frames are small; the largest are chat messages with many fragments.
	readLimit = 1 << 20
)

// Dialer opens EventSub connections.
type Dialer struct {
	dialer  *websocket.Dialer
	header  http.Header
	metrics *metrics.TransportMetrics
}

// NewDialer returns a dialer using the proxy settings from the environment.
// m may be nil.
func NewDialer(m *metrics.TransportMetrics) *Dialer {
	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())

	return &Dialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		header:  header,
		metrics: m,
	}
}

func (d *Dialer) Dial(ctx context.Context, url string) (eventsub.Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, d.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		d.countDial("error")
		return nil, &domain.TransportError{Op: "dial", URL: url, Err: err}
	}

	conn.SetReadLimit(readLimit)
	d.countDial("ok")
	if d.metrics != nil {
		d.metrics.ActiveConnections.Inc()
	}
	slog.DebugContext(ctx, "EventSub connection opened", "url", url)

	return &Conn{conn: conn, metrics: d.metrics}, nil
}

func (d *Dialer) countDial(result string) {
	if d.metrics != nil {
		d.metrics.Dials.WithLabelValues(result).Inc()
	}
}

// Conn is one EventSub WebSocket. The client never sends data frames; Twitch closes
// connections that do with code 4001.
type Conn struct {
	conn      *websocket.Conn
	metrics   *metrics.TransportMetrics
	closeOnce sync.Once
	closeErr  error
}

// ReadMessage returns the next text frame. A close frame from the server, or an
// abnormal end of the stream, is returned as *domain.CloseError.
func (c *Conn) ReadMessage() ([]byte, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if ce, ok := errors.AsType[*websocket.CloseError](err); ok {
				return nil, &domain.CloseError{Code: ce.Code, Reason: ce.Text}
			}
			return nil, err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if c.metrics != nil {
			c.metrics.BytesReceived.Add(float64(len(data)))
		}
		return data, nil
	}
}

// Close sends a normal closure frame and closes the socket. It is safe to call
// concurrently with ReadMessage and more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeDeadline))
		c.closeErr = c.conn.Close()
		if c.metrics != nil {
			c.metrics.ActiveConnections.Dec()
		}
	})
	return c.closeErr
}
