package eventsub

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pscheid92/twitchevents/internal/domain"
)

// EventSub metadata.message_type values.
const (
	TypeWelcome      = "session_welcome"
	TypeKeepalive    = "session_keepalive"
	TypeReconnect    = "session_reconnect"
	TypeNotification = "notification"
	TypeRevocation   = "revocation"
	TypeClose        = "close"
)

// Message is one decoded inbound frame. The set of implementations is closed.
type Message interface {
	MessageType() string
}

type Welcome struct {
	SessionID         string
	KeepaliveInterval time.Duration
	ConnectedAt       time.Time
}

type Keepalive struct{}

type Reconnect struct {
	SessionID string
	URL       string
}

// Notification carries one event. Topic is domain.TopicUnknown when Type has no table row.
type Notification struct {
	MessageID      string
	Timestamp      time.Time
	Type           string
	Topic          domain.Topic
	Version        string
	SubscriptionID string
	Payload        json.RawMessage
}

type Revocation struct {
	Type           string
	Topic          domain.Topic
	SubscriptionID string
	Reason         string
}

// Close is synthesized from a transport close frame; Twitch never sends it as JSON.
type Close struct {
	Code   int
	Reason string
}

func (Welcome) MessageType() string      { return TypeWelcome }
func (Keepalive) MessageType() string    { return TypeKeepalive }
func (Reconnect) MessageType() string    { return TypeReconnect }
func (Notification) MessageType() string { return TypeNotification }
func (Revocation) MessageType() string   { return TypeRevocation }
func (Close) MessageType() string        { return TypeClose }

func CloseMessage(code int, reason string) Close {
	return Close{Code: code, Reason: reason}
}

type wireEnvelope struct {
	Metadata struct {
		MessageID           string `json:"message_id"`
		MessageType         string `json:"message_type"`
		MessageTimestamp    string `json:"message_timestamp"`
		SubscriptionType    string `json:"subscription_type"`
		SubscriptionVersion string `json:"subscription_version"`
	} `json:"metadata"`
	Payload json.RawMessage `json:"payload"`
}

type wireSession struct {
	ID                      string `json:"id"`
	Status                  string `json:"status"`
	KeepaliveTimeoutSeconds *int   `json:"keepalive_timeout_seconds"`
	ReconnectURL            string `json:"reconnect_url"`
	ConnectedAt             string `json:"connected_at"`
}

type wireSubscription struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Type    string `json:"type"`
	Version string `json:"version"`
}

type wirePayload struct {
	Session      *wireSession      `json:"session"`
	Subscription *wireSubscription `json:"subscription"`
	Event        json.RawMessage   `json:"event"`
}

// Decode parses one text frame. A malformed frame or unknown message type returns a
// *domain.DecodeError; a notification for an unknown subscription type decodes fine.
func Decode(raw []byte) (Message, error) {
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &domain.DecodeError{Reason: "malformed envelope", Err: err}
	}

	var p wirePayload
	if len(env.Payload) > 0 && !isNull(env.Payload) {
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, &domain.DecodeError{Reason: "malformed payload", Err: err}
		}
	}

	switch env.Metadata.MessageType {
	case TypeWelcome:
		return decodeWelcome(p.Session)
	case TypeKeepalive:
		return Keepalive{}, nil
	case TypeReconnect:
		if p.Session == nil || p.Session.ReconnectURL == "" {
			return nil, &domain.DecodeError{Reason: "reconnect without reconnect_url"}
		}
		return Reconnect{SessionID: p.Session.ID, URL: p.Session.ReconnectURL}, nil
	case TypeNotification:
		return decodeNotification(env.Metadata.MessageID, env.Metadata.MessageTimestamp, env.Metadata.SubscriptionType, env.Metadata.SubscriptionVersion, p)
	case TypeRevocation:
		if p.Subscription == nil {
			return nil, &domain.DecodeError{Reason: "revocation without subscription"}
		}
		return Revocation{
			Type:           p.Subscription.Type,
			Topic:          topicOf(p.Subscription.Type),
			SubscriptionID: p.Subscription.ID,
			Reason:         p.Subscription.Status,
		}, nil
	case "":
		return nil, &domain.DecodeError{Reason: "missing message_type"}
	default:
		return nil, &domain.DecodeError{Reason: fmt.Sprintf("unknown message_type %q", env.Metadata.MessageType)}
	}
}

func decodeWelcome(s *wireSession) (Message, error) {
	if s == nil || s.ID == "" {
		return nil, &domain.DecodeError{Reason: "welcome without session id"}
	}
	if s.KeepaliveTimeoutSeconds == nil || *s.KeepaliveTimeoutSeconds <= 0 {
		return nil, &domain.DecodeError{Reason: "welcome without keepalive_timeout_seconds"}
	}

	w := Welcome{
		SessionID:         s.ID,
		KeepaliveInterval: time.Duration(*s.KeepaliveTimeoutSeconds) * time.Second,
	}
	if s.ConnectedAt != "" {
		at, err := time.Parse(time.RFC3339Nano, s.ConnectedAt)
		if err != nil {
			return nil, &domain.DecodeError{Reason: "welcome connected_at", Err: err}
		}
		w.ConnectedAt = at
	}
	return w, nil
}

func decodeNotification(id, timestamp, metaType, metaVersion string, p wirePayload) (Message, error) {
	if len(p.Event) == 0 || isNull(p.Event) {
		return nil, &domain.DecodeError{Reason: "notification without event"}
	}

	n := Notification{
		MessageID: id,
		Type:      metaType,
		Version:   metaVersion,
		Payload:   p.Event,
	}
	if p.Subscription != nil {
		if p.Subscription.Type != "" {
			n.Type = p.Subscription.Type
		}
		if p.Subscription.Version != "" {
			n.Version = p.Subscription.Version
		}
		n.SubscriptionID = p.Subscription.ID
	}
	if n.Type == "" {
		return nil, &domain.DecodeError{Reason: "notification without subscription type"}
	}
	n.Topic = topicOf(n.Type)

	if timestamp != "" {
		if at, err := time.Parse(time.RFC3339Nano, timestamp); err == nil {
			n.Timestamp = at
		}
	}
	return n, nil
}

func topicOf(eventType string) domain.Topic {
	if t, ok := domain.TopicByType(eventType); ok {
		return t
	}
	return domain.TopicUnknown
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// IsDecodeError reports whether err is a dropped-frame error.
func IsDecodeError(err error) bool {
	_, ok := errors.AsType[*domain.DecodeError](err)
	return ok
}
