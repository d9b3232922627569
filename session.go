package goDocs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goDocs/jwt"
	"go.uber.org/zap"
)

type refreshPayload struct {
	AccessToken string `json:"accessToken"`
}

type refreshOutcome struct {
	epoch uint64
	err   error
}

// Session describes the token currently held by a Client. Subject and ExpiresAt are
// read from the token without verification and are zero for opaque tokens.
type Session struct {
	Token         string
	Subject       string
	ExpiresAt     time.Time
	Authenticated bool
}

// Token returns the held token, or "" when logged out.
func (c *Client) Token(ctx context.Context) (string, error) {
	if !c.ready() {
		return "", ErrClientNotReady
	}
	return c.loadToken(ctx)
}

// Session returns the held token together with its advisory claims.
func (c *Client) Session(ctx context.Context) (Session, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return Session{}, err
	}
	if token == "" {
		return Session{}, nil
	}
	out := Session{Token: token, Authenticated: true}
	if claims, err := jwt.Inspect(token); err == nil {
		out.Subject = claims.Subject
		out.ExpiresAt = claims.ExpiresAt
	}
	return out, nil
}

// SetToken stores token as the session token, as done after login or an OAuth
// exchange. An empty token clears the session. SetToken waits for an in-flight
// refresh to settle first.
func (c *Client) SetToken(ctx context.Context, token string) error {
	if !c.ready() {
		return ErrClientNotReady
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if token == "" {
		return c.clearLocked(ctx, AuditTokenCleared)
	}
	if err := c.store.Save(ctx, token); err != nil {
		return fmt.Errorf("goDocs: save token: %w", err)
	}
	c.emitAudit(ctx, AuditTokenSet, true, token, nil)
	return nil
}

// RefreshSession obtains a new access token from the refresh endpoint using the
// ambient credential carried by the HTTP client (the refresh cookie) and stores it.
//
// Concurrent callers, including requests recovering from a 401, share one refresh
// call. An explicit rejection of the refresh credential returns ErrSessionExpired
// and clears the stored token; network and server failures keep it.
func (c *Client) RefreshSession(ctx context.Context) (string, error) {
	if !c.ready() {
		return "", ErrClientNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return c.awaitRefresh(ctx)
}

// awaitRefresh starts the refresh flight or joins the one in progress. The caller's
// ctx bounds only its own wait; the flight runs on a detached context.
func (c *Client) awaitRefresh(ctx context.Context) (string, error) {
	var led atomic.Bool
	ch := c.flight.DoChan(c.config.Endpoints.Refresh, func() (any, error) {
		led.Store(true)
		return c.runRefresh(ctx)
	})

	select {
	case res := <-ch:
		if !led.Load() {
			c.metricInc(MetricRefreshJoined)
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// runRefresh is executed once per refresh episode, by the flight leader.
func (c *Client) runRefresh(parent context.Context) (token string, err error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.inFlight.Store(true)
	defer c.inFlight.Store(false)
	defer func() {
		c.lastRefresh.Store(&refreshOutcome{epoch: c.epoch.Add(1), err: err})
	}()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.config.Refresh.Timeout)
	defer cancel()

	c.metricInc(MetricRefreshStarted)
	token, err = c.callRefresh(ctx)
	if err != nil {
		c.metricInc(MetricRefreshFailure)
		if errors.Is(err, ErrSessionExpired) {
			c.metricInc(MetricSessionExpired)
			c.logger.Info("goDocs: refresh credential rejected, clearing session", zap.Error(err))
			c.emitAudit(ctx, AuditSessionExpired, false, "", err)
			if clearErr := c.clearLocked(ctx, AuditTokenCleared); clearErr != nil {
				c.logger.Warn("goDocs: token clear after session expiry failed", zap.Error(clearErr))
			}
			return "", err
		}
		c.logger.Warn("goDocs: refresh failed, keeping session", zap.Error(err))
		c.emitAudit(ctx, AuditRefreshFailure, false, "", err)
		return "", err
	}

	if err := c.store.Save(ctx, token); err != nil {
		c.metricInc(MetricRefreshFailure)
		return "", fmt.Errorf("goDocs: save refreshed token: %w", err)
	}

	c.metricInc(MetricRefreshSuccess)
	c.logger.Debug("goDocs: session refreshed")
	c.emitAudit(ctx, AuditRefreshSuccess, true, token, nil)
	return token, nil
}

// callRefresh performs the refresh HTTP call and classifies its outcome.
func (c *Client) callRefresh(ctx context.Context) (string, error) {
	req, err := c.newPendingRequest(ctx, http.MethodPost, c.config.Endpoints.Refresh, RequestOptions{})
	if err != nil {
		return "", err
	}
	current, err := c.loadToken(ctx)
	if err != nil {
		return "", err
	}

	resp, err := c.send(ctx, req, current)
	if err != nil {
		return "", err
	}

	switch {
	case resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden:
		return "", newAPIError(KindSessionExpired, resp.Status, serverMessage(resp), req.method, req.path, nil)
	case resp.Status >= 300:
		return c.finishRefreshFailure(req, resp)
	}

	var payload refreshPayload
	if err := resp.DecodeJSON(&payload); err != nil {
		return "", newAPIError(KindServer, resp.Status, "malformed refresh response", req.method, req.path, err)
	}
	if payload.AccessToken == "" {
		return "", newAPIError(KindServer, resp.Status, "refresh response missing accessToken", req.method, req.path, nil)
	}
	return payload.AccessToken, nil
}

func (c *Client) finishRefreshFailure(req *pendingRequest, resp *Response) (string, error) {
	kind := kindForStatus(resp.Status)
	if kind == 0 {
		kind = KindServer
	}
	return "", newAPIError(kind, resp.Status, serverMessage(resp), req.method, req.path, nil)
}

// Logout asks the backend to invalidate the session and then clears the local token.
// The server call ignores cancellation of ctx and is bounded by Config.Timeout.
// Backend failures are logged and never returned; the only error Logout reports is
// a failure of the token store itself.
func (c *Client) Logout(ctx context.Context) error {
	if !c.ready() {
		return ErrClientNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.metricInc(MetricLogout)
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.Timeout)
	defer cancel()
	if _, err := c.Do(callCtx, http.MethodPost, c.config.Endpoints.Logout, RequestOptions{}); err != nil {
		c.metricInc(MetricLogoutFailure)
		c.logger.Warn("goDocs: server logout failed, clearing local session anyway", zap.Error(err))
		if c.audit != nil {
			c.audit.Emit(ctx, c.auditEvent(ctx, AuditLogoutFailure, false, "", err))
		}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.clearLocked(context.WithoutCancel(ctx), AuditLogout)
}

// clearLocked removes the stored token. writeMu must be held.
func (c *Client) clearLocked(ctx context.Context, event string) error {
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("goDocs: clear token: %w", err)
	}
	c.metricInc(MetricTokenCleared)
	c.emitAudit(ctx, event, true, "", nil)
	return nil
}

// emitAudit offers an event to the dispatcher without blocking. It is the only way
// to emit while writeMu is held.
func (c *Client) emitAudit(ctx context.Context, eventType string, success bool, token string, err error) {
	if c.audit == nil {
		return
	}
	c.audit.Offer(c.auditEvent(ctx, eventType, success, token, err))
}

func (c *Client) auditEvent(ctx context.Context, eventType string, success bool, token string, err error) AuditEvent {
	event := AuditEvent{
		Timestamp: c.now().UTC(),
		EventType: eventType,
		RequestID: RequestIDFromContext(ctx),
		Success:   success,
	}
	if token != "" {
		if claims, inspectErr := jwt.Inspect(token); inspectErr == nil {
			event.Subject = claims.Subject
		}
	}
	if err != nil {
		event.Error = err.Error()
		if kind := KindOf(err); kind != 0 {
			event.Metadata = map[string]string{"kind": kind.String()}
		}
	}
	return event
}
