// Package fakeapi is an in-process implementation of the documents backend REST
// contract. It backs the client tests, the example program and the load test.
//
// Access tokens are HS256 JWTs minted with a per-server secret. Refresh credentials are
// opaque tokens carried in the refresh_token cookie and rotated on every refresh. Only
// their SHA-256 digests are kept.
//
// # What this package must NOT do
//
//   - Import the goDocs client. It only speaks HTTP.
//   - Persist anything. All state lives in memory for the life of the Server.
package fakeapi
