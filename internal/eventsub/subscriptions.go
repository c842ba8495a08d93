package eventsub

import (
	"github.com/google/uuid"
	"github.com/pscheid92/twitchevents/internal/domain"
)

// Request is one subscribe call for the current session.
type Request struct {
	CorrelationID uuid.UUID
	Topic         domain.Topic
	Type          string
	Version       string
	Condition     map[string]string
	SessionID     string
}

// SubscriptionManager tracks the pending subscriptions of the current session.
// It is owned by the session goroutine and is not safe for concurrent use.
type SubscriptionManager struct {
	spec          domain.SubscriptionSpec
	broadcasterID string
	newID         func() uuid.UUID

	sessionID string
	pending   []*domain.PendingSubscription
	byID      map[uuid.UUID]*domain.PendingSubscription
}

func NewSubscriptionManager(spec domain.SubscriptionSpec, broadcasterID string) *SubscriptionManager {
	return &SubscriptionManager{
		spec:          spec,
		broadcasterID: broadcasterID,
		newID:         uuid.New,
		byID:          make(map[uuid.UUID]*domain.PendingSubscription),
	}
}

// OnSessionStart drops all state of the previous session and returns one request per
// enabled topic in topic order. Requests can only be built from a Welcome.
func (m *SubscriptionManager) OnSessionStart(w Welcome) ([]Request, error) {
	if w.SessionID == "" {
		return nil, domain.ErrNotWelcomed
	}

	m.sessionID = w.SessionID
	m.pending = m.pending[:0]
	clear(m.byID)

	topics := m.spec.Topics()
	requests := make([]Request, 0, len(topics))
	for _, t := range topics {
		p := &domain.PendingSubscription{
			Topic:         t,
			CorrelationID: m.newID(),
			SessionID:     w.SessionID,
			Status:        domain.SubscriptionRequested,
		}
		m.pending = append(m.pending, p)
		m.byID[p.CorrelationID] = p

		requests = append(requests, Request{
			CorrelationID: p.CorrelationID,
			Topic:         t,
			Type:          t.Type(),
			Version:       t.Version(),
			Condition:     t.Condition(m.broadcasterID),
			SessionID:     w.SessionID,
		})
	}
	return requests, nil
}

// OnAck confirms a requested subscription. It reports false for ids of earlier sessions
// and for subscriptions that are no longer requested.
func (m *SubscriptionManager) OnAck(correlationID uuid.UUID, subscriptionID string) bool {
	p, ok := m.byID[correlationID]
	if !ok || p.Status != domain.SubscriptionRequested {
		return false
	}
	p.Status = domain.SubscriptionConfirmed
	p.SubscriptionID = subscriptionID
	return true
}

// OnReject marks a requested subscription failed.
func (m *SubscriptionManager) OnReject(correlationID uuid.UUID, err error) bool {
	p, ok := m.byID[correlationID]
	if !ok || p.Status != domain.SubscriptionRequested {
		return false
	}
	p.Status = domain.SubscriptionFailed
	p.Err = err
	return true
}

// OnRevocation marks the confirmed subscription with the given server id revoked.
// An empty subscriptionID matches by topic alone.
func (m *SubscriptionManager) OnRevocation(topic domain.Topic, subscriptionID, reason string) bool {
	for _, p := range m.pending {
		if p.Status != domain.SubscriptionConfirmed {
			continue
		}
		if subscriptionID != "" && p.SubscriptionID != subscriptionID {
			continue
		}
		if subscriptionID == "" && p.Topic != topic {
			continue
		}
		p.Status = domain.SubscriptionRevoked
		p.Err = &domain.SubscriptionError{Topic: p.Topic, Err: revokedError(reason)}
		return true
	}
	return false
}

// OnSessionEnd fails every subscription still waiting for an answer.
func (m *SubscriptionManager) OnSessionEnd() {
	for _, p := range m.pending {
		if p.Status == domain.SubscriptionRequested {
			p.Status = domain.SubscriptionFailed
			p.Err = domain.ErrSessionEnded
		}
	}
}

func (m *SubscriptionManager) Confirmed() int {
	return m.count(domain.SubscriptionConfirmed)
}

func (m *SubscriptionManager) Outstanding() int {
	return m.count(domain.SubscriptionRequested)
}

// AllFailed reports whether the session requested subscriptions and none of them succeeded.
func (m *SubscriptionManager) AllFailed() bool {
	return len(m.pending) > 0 && m.count(domain.SubscriptionFailed) == len(m.pending)
}

func (m *SubscriptionManager) SessionID() string { return m.sessionID }

// Snapshot copies the pending subscriptions in request order.
func (m *SubscriptionManager) Snapshot() []domain.PendingSubscription {
	out := make([]domain.PendingSubscription, len(m.pending))
	for i, p := range m.pending {
		out[i] = *p
	}
	return out
}

func (m *SubscriptionManager) count(status domain.SubscriptionStatus) int {
	n := 0
	for _, p := range m.pending {
		if p.Status == status {
			n++
		}
	}
	return n
}

type revokedError string

func (r revokedError) Error() string { return "revoked: " + string(r) }
