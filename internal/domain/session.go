package domain

import "time"

// SessionState is the connection lifecycle of the EventSub client.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateWelcomed
	StateSubscribing
	StateLive
	StateReconnecting
	StateClosed
	StateFaulted
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateWelcomed:
		return "welcomed"
	case StateSubscribing:
		return "subscribing"
	case StateLive:
		return "live"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further network activity will happen.
func (s SessionState) Terminal() bool {
	return s == StateClosed || s == StateFaulted
}

// Session is the single live EventSub connection as seen by the state machine.
type Session struct {
	ID                string
	URL               string
	State             SessionState
	ConnectedAt       time.Time
	KeepaliveInterval time.Duration
	LastFrameAt       time.Time
	ReconnectURL      string
}
