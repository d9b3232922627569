// Package tokenstore persists the client's single session token.
//
// # Backends
//
//   - [Memory]: process-local, lost on exit.
//   - [File]: JSON document on disk, keyed by a fixed name.
//   - [Redis]: one key in Redis, shared by processes that use the same prefix and key.
//
// Every backend holds at most one token. Load on an empty store returns "" and a nil
// error; Clear on an empty store is a no-op.
//
// # Architecture boundaries
//
// This package only stores and returns strings. It does NOT decide when a token is
// written or cleared; write serialization against the in-flight refresh is the
// Client's job.
//
// # What this package must NOT do
//
//   - Import goDocs (no upward imports).
//   - Inspect, parse, or validate token contents.
package tokenstore
