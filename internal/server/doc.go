// Package server provides HTTP routing, middleware, and the local status endpoint for the live session.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Middleware
//
//   - [Logging] : one structured log line per request
//   - [RequestID] : X-Request-ID propagation
//   - [Recover] : panics become 500 responses
//
// # Status Endpoint
//
// [StatusHandler] serves the latest [session.Snapshot] as JSON so scripts and dashboards can watch a running
// session (started with `vsa tui --status-addr` or `vsa analyze --status-addr`). It is read-only; intents still go
// through the dispatcher.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
