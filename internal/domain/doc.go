// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (topic.go, event.go, payloads.go, subscription.go,
// session.go, errors.go) with shared types and cross-cutting contracts. No network code lives here.
package domain
