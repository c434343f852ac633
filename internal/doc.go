// Package internal documents the subjectboard server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, problem responses, and routing
// - domain: content and group logic, request schemas, and ids
// - storage: postgres and sqlite repositories behind one interface
// - realtime: the event hub and server-sent event stream
// - jobs: River workers for durable audit delivery
// - audit, config, metrics, telemetry, sanitize, validation: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
