package eventsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/twitchevents/internal/domain"
	"github.com/pscheid92/twitchevents/internal/platform/correlation"
	"github.com/pscheid92/twitchevents/internal/platform/retry"
)

type outcomeKind int

const (
	outcomeRestart   outcomeKind = iota // reconnect to the default URL
	outcomeReconnect                    // server asked us to move to url
	outcomeClosed
	outcomeFatal
	outcomeCancelled
)

type outcome struct {
	kind   outcomeKind
	reason string
	url    string
	err    error
	live   bool
}

type frame struct {
	data []byte
	err  error
}

type subscribeResult struct {
	req            Request
	subscriptionID string
	err            error
}

// session is the state of one connection, from dial until teardown.
type session struct {
	m   *Machine
	ctx context.Context
	url string

	info     domain.Session
	welcomed bool
	live     bool
	deadline time.Duration
	timer    clockwork.Timer

	results chan subscribeResult
	wg      sync.WaitGroup
}

// serveSession runs one connection until it ends and tears it down completely before
// returning: the connection is closed, the reader and subscriber goroutines have exited
// and unanswered subscriptions are marked failed.
func (m *Machine) serveSession(ctx context.Context, conn Conn, url string) outcome {
	m.setConn(conn)

	sessCtx, cancel := context.WithCancel(ctx)
	s := &session{
		m:       m,
		ctx:     sessCtx,
		url:     url,
		info:    domain.Session{URL: url, State: domain.StateConnecting},
		results: make(chan subscribeResult),
	}

	frames := make(chan frame)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		readFrames(sessCtx, conn, frames)
	}()

	out := s.loop(frames)
	out.live = s.live

	cancel()
	m.dropConn(conn)
	s.wg.Wait()

	m.subs.OnSessionEnd()
	m.publishSubscriptions()
	return out
}

func readFrames(ctx context.Context, conn Conn, frames chan<- frame) {
	for {
		data, err := conn.ReadMessage()
		select {
		case frames <- frame{data: data, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *session) loop(frames <-chan frame) outcome {
	s.timer = s.m.clock.NewTimer(s.m.cfg.WelcomeTimeout)
	defer s.timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return outcome{kind: outcomeCancelled}

		case <-s.timer.Chan():
			if !s.welcomed {
				return outcome{kind: outcomeRestart, reason: "welcome_timeout", err: fmt.Errorf("no welcome within %s", s.m.cfg.WelcomeTimeout)}
			}
			slog.WarnContext(s.ctx, "EventSub keepalive deadline exceeded", "deadline_seconds", s.deadline.Seconds())
			return outcome{kind: outcomeRestart, reason: "keepalive_timeout", err: fmt.Errorf("no frame within %s", s.deadline)}

		case f := <-frames:
			if f.err != nil {
				return s.onReadError(f.err)
			}
			if out, done := s.onFrame(f.data); done {
				return out
			}

		case r := <-s.results:
			if out, done := s.onSubscribeResult(r); done {
				return out
			}
		}
	}
}

func (s *session) onFrame(data []byte) (outcome, bool) {
	msg, err := Decode(data)
	if err != nil {
		s.m.metrics.DecodeError()
		slog.WarnContext(s.ctx, "Dropping malformed EventSub frame", "error", err)
		return outcome{}, false
	}
	s.m.metrics.FrameReceived(msg.MessageType())

	switch msg := msg.(type) {
	case Welcome:
		s.onWelcome(msg)
	case Keepalive:
		s.resetDeadline()
	case Notification:
		s.resetDeadline()
		s.onNotification(msg)
	case Revocation:
		s.resetDeadline()
		s.onRevocation(msg)
	case Reconnect:
		return outcome{kind: outcomeReconnect, reason: "reconnect_frame", url: msg.URL}, true
	case Close:
		return s.onClose(msg), true
	}
	return outcome{}, false
}

func (s *session) onWelcome(w Welcome) {
	if s.welcomed {
		slog.WarnContext(s.ctx, "Ignoring repeated welcome on the same connection")
		return
	}

	reqs, err := s.m.subs.OnSessionStart(w)
	if err != nil {
		slog.WarnContext(s.ctx, "Ignoring unusable welcome", "error", err)
		return
	}

	s.welcomed = true
	s.ctx = correlation.WithSessionID(s.ctx, w.SessionID)
	s.deadline = time.Duration(float64(w.KeepaliveInterval) * s.m.cfg.KeepaliveMultiplier)
	s.info.ID = w.SessionID
	s.info.ConnectedAt = w.ConnectedAt
	s.info.KeepaliveInterval = w.KeepaliveInterval
	s.m.setState(s.ctx, domain.StateWelcomed)
	s.resetDeadline()

	slog.InfoContext(s.ctx, "EventSub session welcomed", "keepalive_seconds", w.KeepaliveInterval.Seconds(), "subscriptions", len(reqs))

	s.m.setState(s.ctx, domain.StateSubscribing)
	s.info.State = domain.StateSubscribing
	s.m.publishSession(s.info)

	ctx := s.ctx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.m.subscribeAll(ctx, reqs, s.results)
	}()
}

func (s *session) onNotification(n Notification) {
	if !s.welcomed {
		s.m.metrics.EventDiscarded("not_welcomed")
		return
	}
	if s.m.dedupe.Seen(n.MessageID) {
		s.m.metrics.EventDiscarded("duplicate")
		slog.DebugContext(s.ctx, "Dropping redelivered notification", "message_id", n.MessageID)
		return
	}

	env, ok, err := s.m.normalizer.Normalize(n)
	if err != nil {
		s.m.metrics.DecodeError()
		slog.WarnContext(s.ctx, "Dropping undecodable notification", "type", n.Type, "message_id", n.MessageID, "error", err)
		return
	}
	if !ok {
		s.m.metrics.EventDiscarded("not_subscribed")
		slog.DebugContext(s.ctx, "Discarding notification for unrequested topic", "type", n.Type)
		return
	}

	if !s.m.queue.Push(env) {
		s.m.metrics.EventDiscarded("queue_closed")
		return
	}
	s.m.metrics.EventEnqueued(string(env.Kind))
}

func (s *session) onRevocation(r Revocation) {
	if s.m.subs.OnRevocation(r.Topic, r.SubscriptionID, r.Reason) {
		s.m.metrics.SubscriptionResult(domain.SubscriptionRevoked.String())
		s.m.publishSubscriptions()
	}
	slog.WarnContext(s.ctx, "EventSub subscription revoked", "type", r.Type, "subscription_id", r.SubscriptionID, "reason", r.Reason)
}

func (s *session) onClose(c Close) outcome {
	err := &domain.CloseError{Code: c.Code, Reason: c.Reason}
	if transientCloseCodes[c.Code] {
		return outcome{kind: outcomeRestart, reason: closeReason(c.Code), err: err}
	}
	return outcome{kind: outcomeClosed, reason: closeReason(c.Code), err: err}
}

func (s *session) onReadError(err error) outcome {
	if ce, ok := errors.AsType[*domain.CloseError](err); ok {
		s.m.metrics.FrameReceived(TypeClose)
		return s.onClose(CloseMessage(ce.Code, ce.Reason))
	}
	if s.ctx.Err() != nil {
		return outcome{kind: outcomeCancelled}
	}
	return outcome{
		kind:   outcomeRestart,
		reason: "transport_error",
		err:    &domain.TransportError{Op: "read", URL: s.url, Err: err},
	}
}

func (s *session) onSubscribeResult(r subscribeResult) (outcome, bool) {
	defer s.m.publishSubscriptions()
	ctx := correlation.WithID(s.ctx, r.req.CorrelationID.String())

	if r.err == nil {
		if s.m.subs.OnAck(r.req.CorrelationID, r.subscriptionID) {
			s.m.metrics.SubscriptionResult(domain.SubscriptionConfirmed.String())
			slog.InfoContext(ctx, "Subscribed", "type", r.req.Type, "subscription_id", r.subscriptionID)
		}
		if !s.live && s.m.subs.Confirmed() > 0 {
			s.live = true
			s.m.setState(ctx, domain.StateLive)
			s.info.State = domain.StateLive
			s.m.publishSession(s.info)
		}
		return outcome{}, false
	}

	if errors.Is(r.err, domain.ErrUnauthorized) {
		return outcome{kind: outcomeFatal, reason: "unauthorized", err: r.err}, true
	}

	if s.m.subs.OnReject(r.req.CorrelationID, r.err) {
		s.m.metrics.SubscriptionResult(domain.SubscriptionFailed.String())
		slog.WarnContext(ctx, "Subscription rejected", "type", r.req.Type, "error", r.err)
	}
	if s.m.subs.AllFailed() {
		return outcome{kind: outcomeFatal, reason: "every subscription was rejected", err: r.err}, true
	}
	return outcome{}, false
}

func (s *session) resetDeadline() {
	if !s.welcomed {
		return
	}
	s.info.LastFrameAt = s.m.clock.Now()
	s.timer.Reset(s.deadline)
}

// subscribeAll issues the session's requests one at a time and reports each result
// back to the session loop. It stops when the session ends.
func (m *Machine) subscribeAll(ctx context.Context, reqs []Request, results chan<- subscribeResult) {
	for _, req := range reqs {
		if err := m.limiter.Wait(ctx); err != nil {
			return
		}

		reqCtx := correlation.WithID(ctx, req.CorrelationID.String())
		p := m.cfg.SubscribeRetry
		p.OnRetry = func(attempt int, err error, backoff time.Duration) {
			slog.WarnContext(reqCtx, "EventSub subscribe failed, retrying", "type", req.Type, "attempt", attempt, "backoff_seconds", backoff.Seconds(), "error", err)
		}

		id, err := retry.Do(reqCtx, p, classifySubscribeError, func() (string, error) {
			return m.subscriber.Subscribe(reqCtx, req)
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			err = subscriptionFailure(req, err)
		}

		select {
		case results <- subscribeResult{req: req, subscriptionID: id, err: err}:
		case <-ctx.Done():
			return
		}
	}
}

// subscriptionFailure makes sure a failed request is reported as a *domain.SubscriptionError.
func subscriptionFailure(req Request, err error) error {
	if _, ok := errors.AsType[*domain.SubscriptionError](err); ok {
		return err
	}
	return &domain.SubscriptionError{Topic: req.Topic, Err: err}
}
