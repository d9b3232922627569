package goDocs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goDocs/jwt"
	"github.com/MrEthical07/goDocs/tokenstore"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// maxReplays caps how many times one request is resubmitted after a refresh.
const maxReplays = 1

// Client defines a public type used by goDocs APIs.
//
// Client instances are safe for concurrent use after [Builder.Build]. All requests
// share one token store and one refresh flight.
type Client struct {
	config  Config
	baseURL string
	http    *http.Client
	store   tokenstore.Store
	logger  *zap.Logger
	metrics *Metrics
	audit   *auditDispatcher
	now     func() time.Time

	// flight deduplicates refresh calls. The refresh function holds writeMu for its
	// whole duration, so SetToken and Logout never interleave with an episode.
	flight   singleflight.Group
	writeMu  sync.Mutex
	inFlight atomic.Bool

	// epoch counts settled refresh episodes; lastRefresh is the newest outcome.
	epoch       atomic.Uint64
	lastRefresh atomic.Pointer[refreshOutcome]

	closers []func() error
	closed  atomic.Bool
}

// State is the refresh state of a Client.
type State uint8

const (
	StateIdle State = iota
	StateRefreshInFlight
)

func (s State) String() string {
	if s == StateRefreshInFlight {
		return "refresh_in_flight"
	}
	return "idle"
}

// RequestOptions carries the optional parts of a request.
type RequestOptions struct {
	Query  url.Values
	Header http.Header
	// JSON is marshalled as the request body when non-nil.
	JSON any
	// Body is sent as-is when JSON is nil.
	Body        []byte
	ContentType string
}

// Response is a fully read backend response.
type Response struct {
	Status    int
	Header    http.Header
	Body      []byte
	RequestID string
	// Replayed is true when the response came from a resubmission after refresh.
	Replayed bool
}

// DecodeJSON unmarshals the body into out. An empty body leaves out untouched.
func (r *Response) DecodeJSON(out any) error {
	if r == nil || len(r.Body) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// pendingRequest is a replayable request description. attempt counts resubmissions
// caused by refresh and never exceeds maxReplays.
type pendingRequest struct {
	method    string
	path      string
	query     url.Values
	header    http.Header
	body      []byte
	requestID string
	attempt   int
}

// State reports whether a refresh call is currently outstanding.
func (c *Client) State() State {
	if c != nil && c.inFlight.Load() {
		return StateRefreshInFlight
	}
	return StateIdle
}

// Close releases resources created by Build (audit goroutine, owned Redis client).
func (c *Client) Close() error {
	if c == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.audit != nil {
		c.audit.Close()
	}
	var errs []error
	for _, fn := range c.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AuditDropped returns how many audit events were dropped under backpressure.
func (c *Client) AuditDropped() uint64 {
	if c == nil || c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}

// MetricsSnapshot returns a copy of the client's counters.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

func (c *Client) metricInc(id MetricID) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Inc(id)
}

func (c *Client) ready() bool {
	return c != nil && !c.closed.Load() && c.store != nil && c.http != nil
}

// Get issues a GET request. See Do.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, RequestOptions{Query: query})
}

// Post issues a POST request with a JSON body. See Do.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, RequestOptions{JSON: body})
}

// Put issues a PUT request with a JSON body. See Do.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, RequestOptions{JSON: body})
}

// Delete issues a DELETE request. See Do.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, RequestOptions{})
}

// DoJSON is Do followed by decoding a successful body into out.
func (c *Client) DoJSON(ctx context.Context, method, path string, opts RequestOptions, out any) error {
	resp, err := c.Do(ctx, method, path, opts)
	if err != nil {
		return err
	}
	return resp.DecodeJSON(out)
}

// Do sends method path against the configured base URL.
//
// The held token, if any, is sent as a bearer credential. A 401 on a request that
// has not been replayed yet, on any path except the refresh and logout endpoints,
// starts or joins the client's single refresh flight; on success the request is
// resubmitted once with the new token. Non-2xx results are returned as *APIError.
func (c *Client) Do(ctx context.Context, method, path string, opts RequestOptions) (*Response, error) {
	if !c.ready() {
		return nil, ErrClientNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := c.newPendingRequest(ctx, method, path, opts)
	if err != nil {
		return nil, err
	}

	c.metricInc(MetricRequest)
	start := time.Now()
	resp, err := c.execute(ctx, req)
	c.metrics.Observe(MetricRequestLatency, time.Since(start))
	if err != nil {
		c.countError(err)
		return nil, err
	}
	return resp, nil
}

func (c *Client) newPendingRequest(ctx context.Context, method, path string, opts RequestOptions) (*pendingRequest, error) {
	if path == "" || !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	if method == "" {
		method = http.MethodGet
	}

	header := opts.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}

	body := opts.Body
	contentType := opts.ContentType
	if opts.JSON != nil {
		data, err := json.Marshal(opts.JSON)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = data
		if contentType == "" {
			contentType = "application/json"
		}
	}
	if len(body) > 0 && contentType != "" {
		header.Set("Content-Type", contentType)
	}

	return &pendingRequest{
		method:    method,
		path:      path,
		query:     opts.Query,
		header:    header,
		body:      body,
		requestID: requestIDOrNew(ctx),
	}, nil
}

func (c *Client) execute(ctx context.Context, req *pendingRequest) (*Response, error) {
	token, err := c.loadToken(ctx)
	if err != nil {
		return nil, err
	}

	token, err = c.maybeRefreshProactively(ctx, req, token)
	if err != nil {
		return nil, err
	}

	sentEpoch := c.epoch.Load()
	resp, err := c.send(ctx, req, token)
	if err != nil {
		return nil, err
	}
	if !c.isRefreshTrigger(req, resp) {
		return c.finish(req, resp)
	}

	fresh, err := c.recoverSession(ctx, token, c.markReply(sentEpoch))
	if err != nil {
		return nil, err
	}

	req.attempt++
	c.metricInc(MetricRequestReplayed)
	c.logger.Debug("goDocs: replaying request after refresh",
		zap.String("method", req.method),
		zap.String("path", req.path),
		zap.String("request_id", req.requestID),
	)

	resp, err = c.send(ctx, req, fresh)
	if err != nil {
		return nil, err
	}
	resp.Replayed = true
	return c.finish(req, resp)
}

// isRefreshTrigger reports whether resp should start refresh recovery for req.
func (c *Client) isRefreshTrigger(req *pendingRequest, resp *Response) bool {
	return resp.Status == http.StatusUnauthorized &&
		req.attempt < maxReplays &&
		!c.config.isSessionEndpoint(req.path)
}

// recoverSession returns a token to replay with after a 401 for a request sent with
// sentWith. A token that changed since the request was sent is reused as is. An
// episode's failure is returned only to requests whose 401 arrived while that episode
// was in flight, or when that episode ended the session after the request was sent.
// Every other 401 starts, or joins, a new episode.
func (c *Client) recoverSession(ctx context.Context, sentWith string, mark episodeMark) (string, error) {
	current, err := c.loadToken(ctx)
	if err != nil {
		return "", err
	}
	if current != "" && current != sentWith {
		return current, nil
	}

	if last := c.lastRefresh.Load(); last != nil && last.err != nil {
		if mark.joined != 0 && last.epoch == mark.joined {
			return "", last.err
		}
		if current == "" && last.epoch > mark.sent && errors.Is(last.err, ErrSessionExpired) {
			return "", last.err
		}
	}
	return c.awaitRefresh(ctx)
}

// episodeMark places a request relative to refresh episodes. sent is the number of
// settled episodes when the request went out; joined is the epoch of the episode
// that was in flight when its 401 arrived, or zero.
type episodeMark struct {
	sent   uint64
	joined uint64
}

func (c *Client) markReply(sent uint64) episodeMark {
	mark := episodeMark{sent: sent}
	settled := c.epoch.Load()
	if c.inFlight.Load() {
		mark.joined = settled + 1
	}
	return mark
}

func (c *Client) maybeRefreshProactively(ctx context.Context, req *pendingRequest, token string) (string, error) {
	window := c.config.Refresh.ProactiveWindow
	if window <= 0 || token == "" || c.config.isSessionEndpoint(req.path) {
		return token, nil
	}
	claims, err := jwt.Inspect(token)
	if err != nil || !claims.ExpiresWithin(c.now(), window) {
		return token, nil
	}

	c.metricInc(MetricProactiveRefresh)
	fresh, err := c.awaitRefresh(ctx)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) || ctx.Err() != nil {
			return "", err
		}
		c.logger.Debug("goDocs: proactive refresh failed, sending with current token", zap.Error(err))
		return token, nil
	}
	return fresh, nil
}

func (c *Client) send(ctx context.Context, req *pendingRequest, token string) (*Response, error) {
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if len(req.body) > 0 {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, newAPIError(KindClient, 0, "", req.method, req.path, err)
	}
	for k, v := range req.header {
		httpReq.Header[k] = append([]string(nil), v...)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if c.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}
	httpReq.Header.Set(HeaderRequestID, req.requestID)
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, newAPIError(KindNetwork, 0, "", req.method, req.path, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, newAPIError(KindNetwork, httpResp.StatusCode, "", req.method, req.path, err)
	}

	return &Response{
		Status:    httpResp.StatusCode,
		Header:    httpResp.Header,
		Body:      data,
		RequestID: req.requestID,
	}, nil
}

// finish turns a non-2xx response into an APIError.
func (c *Client) finish(req *pendingRequest, resp *Response) (*Response, error) {
	kind := kindForStatus(resp.Status)
	if kind == 0 {
		return resp, nil
	}
	return nil, newAPIError(kind, resp.Status, serverMessage(resp), req.method, req.path, nil)
}

type errorPayload struct {
	Message string `json:"message"`
}

// serverMessage extracts the payload's "message", falling back to the status text.
func serverMessage(resp *Response) string {
	var payload errorPayload
	if len(resp.Body) > 0 && json.Unmarshal(resp.Body, &payload) == nil && payload.Message != "" {
		return payload.Message
	}
	return http.StatusText(resp.Status)
}

func (c *Client) countError(err error) {
	switch KindOf(err) {
	case KindUnauthorized, KindSessionExpired:
		c.metricInc(MetricUnauthorized)
	case KindClient:
		c.metricInc(MetricClientError)
	case KindServer:
		c.metricInc(MetricServerError)
	case KindNetwork:
		c.metricInc(MetricNetworkError)
	}
}

func (c *Client) loadToken(ctx context.Context) (string, error) {
	token, err := c.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("goDocs: load token: %w", err)
	}
	return token, nil
}
