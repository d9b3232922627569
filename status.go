package goDocs

import (
	"context"
	"time"
)

// Status is a point-in-time view of a Client, read by metric exporters.
type Status struct {
	State State

	// Authenticated reports whether a token is held. ExpiresAt is its unverified exp
	// claim and is zero for opaque tokens.
	Authenticated bool
	ExpiresAt     time.Time

	// StoreErr is set when the token store could not be read.
	StoreErr error

	// AuditDropped counts audit events dropped under backpressure, by event type.
	AuditDropped map[string]uint64
}

// Status reads the client's refresh state, session and audit backpressure.
func (c *Client) Status(ctx context.Context) Status {
	if ctx == nil {
		ctx = context.Background()
	}
	out := Status{
		State:        c.State(),
		AuditDropped: c.AuditDroppedByEvent(),
	}
	session, err := c.Session(ctx)
	if err != nil {
		out.StoreErr = err
		return out
	}
	out.Authenticated = session.Authenticated
	out.ExpiresAt = session.ExpiresAt
	return out
}

// AuditDroppedByEvent returns audit drop counts keyed by event type.
func (c *Client) AuditDroppedByEvent() map[string]uint64 {
	if c == nil {
		return map[string]uint64{}
	}
	return c.audit.DroppedByEvent()
}
