package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidHandle = errors.New("invalid handle")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrQueueClosed   = errors.New("queue closed")
	ErrNotWelcomed   = errors.New("session not welcomed")
	ErrSessionEnded  = errors.New("session ended before acknowledgment")
)

// ConfigError reports an invalid subscription record or client option.
// It is returned from construction; no network activity has started.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid config: %v", e.Err)
	}
	return fmt.Sprintf("invalid config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// DecodeError reports a single frame or payload that could not be decoded.
// The frame is dropped and the session continues.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Err)
	}
	return "decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TransportError reports a dropped or unopenable connection.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// CloseError is a close frame received from the server.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("connection closed: %d %s", e.Code, e.Reason)
}

// SubscriptionError reports a topic the server refused to subscribe.
// Only that topic is marked failed.
type SubscriptionError struct {
	Topic      Topic
	StatusCode int
	Err        error
}

func (e *SubscriptionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("subscribe %s: status %d: %v", e.Topic.Type(), e.StatusCode, e.Err)
	}
	return fmt.Sprintf("subscribe %s: %v", e.Topic.Type(), e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// FatalError moves the client to the Faulted state. It is surfaced to the host exactly once.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fatal: %s: %v", e.Reason, e.Err)
	}
	return "fatal: " + e.Reason
}

func (e *FatalError) Unwrap() error { return e.Err }
