// Package documents provides typed request functions for the documents backend on top
// of a goDocs.Client: feed, search, saved items, the current user, OAuth exchange and
// the presigned upload lifecycle.
//
// Every call goes through the client, so each one inherits bearer attachment and
// single-flight session recovery. The only exception is PutObject, which sends bytes
// to a presigned URL that must not see the bearer token.
package documents
