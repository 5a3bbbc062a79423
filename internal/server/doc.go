// Package server exposes a slotbox Store to other processes over HTTP.
//
// The server listens on a unix socket or TCP address and maps the handle
// protocol onto a small REST surface:
//
//   - POST   /v1/endpoints/{endpoint}/sessions: open a handle
//   - PUT    /v1/sessions/{id}/channel: bind the handle to a channel
//   - POST   /v1/sessions/{id}/message: write one message
//   - GET    /v1/sessions/{id}/message?capacity=N: read the stored message
//   - DELETE /v1/sessions/{id}: close the handle
//   - GET    /v1/stats: store counters as JSON
//   - GET    /v1/events: Server-Sent Events stream of writes
//
// Failures are reported as JSON {"error": ..., "code": ...} with a code from
// slotbox.ErrorCode, so the client package can rebuild the sentinel error.
//
// Handles that go unused for the configured idle timeout are closed by a
// background reaper. The server supports graceful shutdown via context
// cancellation, with a 5-second timeout for in-flight requests.
package server
