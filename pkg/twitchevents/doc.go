// Package twitchevents is an embeddable Twitch EventSub client for hosts that drain
// events from a per-frame loop.
//
// A Client keeps one EventSub WebSocket session alive in the background, subscribes to
// the topics enabled in a flat JSON record such as {"follow": true, "cheer": false} and
// buffers normalized events until the host calls Poll. Poll never blocks. Reconnects,
// keepalive timeouts and per-topic rejections are handled internally; the host only sees
// a ConfigError from New and, if recovery becomes impossible, one event of kind "error".
//
// Handles wraps Clients behind 64-bit handles for callers across a language boundary.
package twitchevents
