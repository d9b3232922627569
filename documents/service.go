package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	goDocs "github.com/MrEthical07/goDocs"
)

var (
	// ErrInvalidArgument is returned before any request is sent when a required
	// argument is empty or out of range.
	ErrInvalidArgument = errors.New("documents: invalid argument")
	// ErrUploadFailed is returned by WaitForUpload when processing ended in failure.
	ErrUploadFailed = errors.New("documents: upload failed")
)

const defaultPollInterval = 500 * time.Millisecond

// Service defines a public type used by goDocs APIs.
//
// Service instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Service struct {
	client  *goDocs.Client
	objects *http.Client
}

// NewService wraps client. objects carries presigned uploads; nil selects a plain
// client with a five minute timeout and no cookie jar.
func NewService(client *goDocs.Client, objects *http.Client) *Service {
	if objects == nil {
		objects = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Service{client: client, objects: objects}
}

/*
====================================
DOCUMENTS
====================================
*/

// Feed returns one page of the document feed.
func (s *Service) Feed(ctx context.Context, q FeedQuery) (Page[Document], error) {
	query := pageQuery(q.Page, q.Limit)
	if q.Category != "" {
		query.Set("category", q.Category)
	}

	var out Page[Document]
	err := s.client.DoJSON(ctx, http.MethodGet, "/documents", goDocs.RequestOptions{Query: query}, &out)
	return out, err
}

// Search returns one page of documents matching q.Query.
func (s *Service) Search(ctx context.Context, q SearchQuery) (Page[Document], error) {
	if strings.TrimSpace(q.Query) == "" {
		return Page[Document]{}, fmt.Errorf("%w: empty search query", ErrInvalidArgument)
	}
	query := pageQuery(q.Page, q.Limit)
	query.Set("q", q.Query)

	var out Page[Document]
	err := s.client.DoJSON(ctx, http.MethodGet, "/documents/search", goDocs.RequestOptions{Query: query}, &out)
	return out, err
}

// Get returns one document.
func (s *Service) Get(ctx context.Context, id string) (Document, error) {
	path, err := documentPath(id, "")
	if err != nil {
		return Document{}, err
	}

	var out Document
	err = s.client.DoJSON(ctx, http.MethodGet, path, goDocs.RequestOptions{}, &out)
	return out, err
}

// Save bookmarks a document for the current user.
func (s *Service) Save(ctx context.Context, id string) error {
	path, err := documentPath(id, "/save")
	if err != nil {
		return err
	}
	_, err = s.client.Do(ctx, http.MethodPost, path, goDocs.RequestOptions{})
	return err
}

// Unsave removes a bookmark. Removing an absent bookmark succeeds.
func (s *Service) Unsave(ctx context.Context, id string) error {
	path, err := documentPath(id, "/save")
	if err != nil {
		return err
	}
	_, err = s.client.Delete(ctx, path)
	return err
}

// Saved returns one page of the current user's bookmarks.
func (s *Service) Saved(ctx context.Context, page, limit int) (Page[Document], error) {
	var out Page[Document]
	err := s.client.DoJSON(ctx, http.MethodGet, "/documents/saved", goDocs.RequestOptions{Query: pageQuery(page, limit)}, &out)
	return out, err
}

/*
====================================
ACCOUNT
====================================
*/

type sessionPayload struct {
	AccessToken string `json:"accessToken"`
	User        User   `json:"user"`
}

// CurrentUser returns the account the held token belongs to.
func (s *Service) CurrentUser(ctx context.Context) (User, error) {
	var out User
	err := s.client.DoJSON(ctx, http.MethodGet, "/auth/me", goDocs.RequestOptions{}, &out)
	return out, err
}

// Login authenticates with email and password and stores the returned token. The
// refresh cookie set by the response lands in the client's cookie jar.
func (s *Service) Login(ctx context.Context, email, password string) (User, error) {
	if email == "" || password == "" {
		return User{}, fmt.Errorf("%w: email and password are required", ErrInvalidArgument)
	}
	body := map[string]string{"email": email, "password": password}
	return s.startSession(ctx, "/auth/login", body)
}

// ExchangeOAuth trades a provider credential for a session and stores the token.
func (s *Service) ExchangeOAuth(ctx context.Context, provider, credential string) (User, error) {
	if provider == "" || credential == "" {
		return User{}, fmt.Errorf("%w: provider and credential are required", ErrInvalidArgument)
	}
	path := "/auth/oauth/" + url.PathEscape(provider)
	return s.startSession(ctx, path, map[string]string{"credential": credential})
}

func (s *Service) startSession(ctx context.Context, path string, body any) (User, error) {
	var out sessionPayload
	if err := s.client.DoJSON(ctx, http.MethodPost, path, goDocs.RequestOptions{JSON: body}, &out); err != nil {
		return User{}, err
	}
	if out.AccessToken == "" {
		return User{}, &goDocs.APIError{
			Kind:    goDocs.KindServer,
			Status:  http.StatusOK,
			Message: "response missing accessToken",
			Method:  http.MethodPost,
			Path:    path,
		}
	}
	if err := s.client.SetToken(ctx, out.AccessToken); err != nil {
		return User{}, err
	}
	return out.User, nil
}

/*
====================================
UPLOADS
====================================
*/

// CreateUpload registers an upload and returns its presigned target.
func (s *Service) CreateUpload(ctx context.Context, req UploadRequest) (UploadTicket, error) {
	if strings.TrimSpace(req.FileName) == "" || req.Size <= 0 {
		return UploadTicket{}, fmt.Errorf("%w: upload needs a file name and a positive size", ErrInvalidArgument)
	}

	var out UploadTicket
	err := s.client.DoJSON(ctx, http.MethodPost, "/uploads/presign", goDocs.RequestOptions{JSON: req}, &out)
	if err != nil {
		return UploadTicket{}, err
	}
	if out.UploadID == "" || out.URL == "" {
		return UploadTicket{}, &goDocs.APIError{
			Kind:    goDocs.KindServer,
			Status:  http.StatusOK,
			Message: "presign response missing uploadId or url",
			Method:  http.MethodPost,
			Path:    "/uploads/presign",
		}
	}
	return out, nil
}

// PutObject sends body to the ticket's presigned URL with the ticket's headers. No
// bearer token or session cookie is attached.
func (s *Service) PutObject(ctx context.Context, ticket UploadTicket, body io.Reader, size int64) error {
	if ticket.URL == "" {
		return fmt.Errorf("%w: ticket has no url", ErrInvalidArgument)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, ticket.URL, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	req.ContentLength = size
	for k, v := range ticket.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.objects.Do(req)
	if err != nil {
		return &goDocs.APIError{Kind: goDocs.KindNetwork, Method: http.MethodPut, Path: "/objects", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		kind := goDocs.KindClient
		if resp.StatusCode >= 500 {
			kind = goDocs.KindServer
		}
		return &goDocs.APIError{
			Kind:    kind,
			Status:  resp.StatusCode,
			Message: http.StatusText(resp.StatusCode),
			Method:  http.MethodPut,
			Path:    "/objects",
		}
	}
	return nil
}

// CompleteUpload tells the server the object bytes are in place.
func (s *Service) CompleteUpload(ctx context.Context, id string) (UploadStatus, error) {
	path, err := uploadPath(id, "/complete")
	if err != nil {
		return UploadStatus{}, err
	}
	var out UploadStatus
	err = s.client.DoJSON(ctx, http.MethodPost, path, goDocs.RequestOptions{}, &out)
	return out, err
}

// UploadStatus reads the current state of an upload.
func (s *Service) UploadStatus(ctx context.Context, id string) (UploadStatus, error) {
	path, err := uploadPath(id, "")
	if err != nil {
		return UploadStatus{}, err
	}
	var out UploadStatus
	err = s.client.DoJSON(ctx, http.MethodGet, path, goDocs.RequestOptions{}, &out)
	return out, err
}

// WaitForUpload polls UploadStatus every interval until the upload is ready or failed,
// or ctx ends. A failed upload returns its status together with ErrUploadFailed.
func (s *Service) WaitForUpload(ctx context.Context, id string, interval time.Duration) (UploadStatus, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := s.UploadStatus(ctx, id)
		if err != nil {
			return UploadStatus{}, err
		}
		switch status.Status {
		case StatusReady:
			return status, nil
		case StatusFailed:
			return status, fmt.Errorf("%w: %s", ErrUploadFailed, status.Reason)
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Upload runs the whole lifecycle: presign, put, complete, and wait until ready.
func (s *Service) Upload(ctx context.Context, req UploadRequest, body io.Reader, interval time.Duration) (UploadStatus, error) {
	ticket, err := s.CreateUpload(ctx, req)
	if err != nil {
		return UploadStatus{}, err
	}
	if err := s.PutObject(ctx, ticket, body, req.Size); err != nil {
		return UploadStatus{}, err
	}
	if _, err := s.CompleteUpload(ctx, ticket.UploadID); err != nil {
		return UploadStatus{}, err
	}
	return s.WaitForUpload(ctx, ticket.UploadID, interval)
}

/*
====================================
HELPERS
====================================
*/

func pageQuery(page, limit int) url.Values {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

func documentPath(id, suffix string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%w: empty document id", ErrInvalidArgument)
	}
	return "/documents/" + url.PathEscape(id) + suffix, nil
}

func uploadPath(id, suffix string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%w: empty upload id", ErrInvalidArgument)
	}
	return "/uploads/" + url.PathEscape(id) + suffix, nil
}
