// Package goDocs provides an authenticated HTTP client for the documents API, with
// bearer tokens, cookie-based session refresh, and a client-side logout.
//
// A [Client] is safe to call from multiple goroutines after initialization through
// [Builder.Build]. All requests share one token store and one refresh flight.
//
// # Session recovery
//
// Every request carries the held token as "Authorization: Bearer <token>". When the
// backend answers 401, the request waits for a refresh: the first such request
// starts a call to the refresh endpoint and every other 401 joins it. When the
// refresh settles, each waiter is resubmitted exactly once with the new token, or
// fails with the refresh error. A request is never resubmitted twice.
//
// Only an explicit rejection of the refresh credential (401 or 403 from the refresh
// endpoint) clears the stored token and returns [ErrSessionExpired]. Network and
// server failures during refresh keep the token so a later call can retry.
//
// # Architecture boundaries
//
// goDocs is the public surface: [Client], [Builder], [Config], the error taxonomy, and
// metrics and audit types. Token persistence lives in tokenstore, unverified JWT claim
// inspection in jwt, and the typed documents API in documents.
//
// # What this package must NOT do
//
//   - Verify token signatures. The client never holds a verification key.
//   - Refresh on responses from the refresh or logout endpoints themselves.
//   - Return backend logout failures to the caller. Logout always clears locally.
package goDocs
