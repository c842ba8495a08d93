package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/google/uuid"
)

var ErrNoSubscriptions = errors.New("no subscriptions requested")

// SubscriptionSpec is the validated, immutable set of topics a client subscribes to.
type SubscriptionSpec struct {
	enabled     [topicCount]bool
	permissions []string
}

// NewSubscriptionSpec enables exactly the given topics.
func NewSubscriptionSpec(topics ...Topic) (SubscriptionSpec, error) {
	var spec SubscriptionSpec
	for _, t := range topics {
		if !t.Valid() {
			return SubscriptionSpec{}, &ConfigError{Field: "subscriptions", Err: fmt.Errorf("unknown topic %d", int(t))}
		}
		spec.enabled[t] = true
	}
	if len(spec.Topics()) == 0 {
		return SubscriptionSpec{}, &ConfigError{Field: "subscriptions", Err: ErrNoSubscriptions}
	}
	return spec, nil
}

// ParseSubscriptionSpec validates a flat JSON record of topic key to boolean, e.g.
// {"follow": true, "cheer": false}. Unknown keys and non-boolean values are rejected.
func ParseSubscriptionSpec(record string) (SubscriptionSpec, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(record), &raw); err != nil {
		return SubscriptionSpec{}, &ConfigError{Field: "subscriptions", Err: fmt.Errorf("record is not a JSON object: %w", err)}
	}

	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var spec SubscriptionSpec
	for _, key := range keys {
		value := bytes.TrimSpace(raw[key])
		var on bool
		switch string(value) {
		case "true":
			on = true
		case "false":
		default:
			return SubscriptionSpec{}, &ConfigError{Field: key, Err: fmt.Errorf("expected boolean, got %s", value)}
		}

		if scope, ok := permissionKeys[key]; ok {
			if on {
				spec.permissions = append(spec.permissions, scope)
			}
			continue
		}

		t, ok := TopicByKey(key)
		if !ok {
			return SubscriptionSpec{}, &ConfigError{Field: key, Err: errors.New("unknown subscription")}
		}
		spec.enabled[t] = on
	}

	if len(spec.Topics()) == 0 {
		return SubscriptionSpec{}, &ConfigError{Field: "subscriptions", Err: ErrNoSubscriptions}
	}
	return spec, nil
}

// Enabled reports whether notifications for t may reach the host.
func (s SubscriptionSpec) Enabled(t Topic) bool {
	return t.Valid() && s.enabled[t]
}

// Topics returns the enabled topics in enumeration order.
func (s SubscriptionSpec) Topics() []Topic {
	var out []Topic
	for t := Topic(0); t < topicCount; t++ {
		if s.enabled[t] {
			out = append(out, t)
		}
	}
	return out
}

// RequiredScopes is the sorted, de-duplicated scope list a user token must carry.
func (s SubscriptionSpec) RequiredScopes() []string {
	var scopes []string
	for _, t := range s.Topics() {
		scopes = append(scopes, t.Scopes()...)
	}
	scopes = append(scopes, s.permissions...)
	slices.Sort(scopes)
	return slices.Compact(scopes)
}

// SubscriptionStatus is the lifecycle of one subscribe request within a session.
type SubscriptionStatus int

const (
	SubscriptionRequested SubscriptionStatus = iota
	SubscriptionConfirmed
	SubscriptionFailed
	SubscriptionRevoked
)

func (s SubscriptionStatus) String() string {
	switch s {
	case SubscriptionRequested:
		return "requested"
	case SubscriptionConfirmed:
		return "confirmed"
	case SubscriptionFailed:
		return "failed"
	case SubscriptionRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// PendingSubscription tracks one topic request issued for the current session.
type PendingSubscription struct {
	Topic          Topic
	CorrelationID  uuid.UUID
	SessionID      string
	Status         SubscriptionStatus
	SubscriptionID string
	Err            error
}
