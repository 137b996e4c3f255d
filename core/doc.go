// Package core contains the relay domain: payload access, event
// classification, message formatting, routing and the Relay orchestrator.
// Transport, persistence and delivery adapters depend on this package; core
// must not depend on any of them and performs no network I/O.
package core
