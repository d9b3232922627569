package documents

import "time"

// Document is one catalog entry.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Category  string    `json:"category"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	Saved     bool      `json:"saved"`
}

// Page is one page of a listing.
type Page[T any] struct {
	Items   []T  `json:"items"`
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasMore bool `json:"hasMore"`
}

// User is the authenticated account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// FeedQuery selects a feed page. Zero Page and Limit use the server defaults.
type FeedQuery struct {
	Page     int
	Limit    int
	Category string
}

// SearchQuery selects a search results page. Query is required.
type SearchQuery struct {
	Query string
	Page  int
	Limit int
}

// UploadRequest describes a file about to be uploaded.
type UploadRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size"`
}

// UploadTicket is the presigned target returned by CreateUpload.
type UploadTicket struct {
	UploadID string            `json:"uploadId"`
	URL      string            `json:"url"`
	Headers  map[string]string `json:"headers"`
}

// Upload statuses.
const (
	StatusPending    = "pending"
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// UploadStatus is the server-side state of an upload.
type UploadStatus struct {
	UploadID string `json:"uploadId"`
	Status   string `json:"status"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
	Reason   string `json:"reason,omitempty"`
}

// Terminal reports whether the upload reached ready or failed.
func (s UploadStatus) Terminal() bool {
	return s.Status == StatusReady || s.Status == StatusFailed
}
