// Package audit relays security-relevant authentication events to a sink.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON lines, slog, no-op).
//   - [Dispatcher]: bounded async relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured record with timestamp, type, subject, outcome, metadata.
//
// This package does NOT decide which events to emit; the Engine does. Failure
// reasons recorded here are for operators only and must never be copied into
// errors returned to callers.
package audit
