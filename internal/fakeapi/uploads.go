package fakeapi

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Upload statuses reported by GET /uploads/{id}.
const (
	UploadPending    = "pending"
	UploadUploaded   = "uploaded"
	UploadProcessing = "processing"
	UploadReady      = "ready"
	UploadFailed     = "failed"
)

const maxUploadSize = 32 << 20

type upload struct {
	ID          string
	Owner       string
	FileName    string
	ContentType string
	Size        int64
	Signature   string
	Status      string
	Received    int64
	pollsLeft   int
	CreatedAt   time.Time
}

type uploadStatus struct {
	UploadID string `json:"uploadId"`
	Status   string `json:"status"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) handlePresign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FileName    string `json:"fileName"`
		ContentType string `json:"contentType"`
		Size        int64  `json:"size"`
	}
	if !decodeBody(r, &body) || strings.TrimSpace(body.FileName) == "" {
		writeError(w, http.StatusBadRequest, "fileName is required")
		return
	}
	if body.Size <= 0 || body.Size > maxUploadSize {
		writeError(w, http.StatusBadRequest, "size out of range")
		return
	}
	if body.ContentType == "" {
		body.ContentType = "application/octet-stream"
	}

	var sig [16]byte
	if _, err := rand.Read(sig[:]); err != nil {
		writeError(w, http.StatusInternalServerError, "signature failed")
		return
	}

	u := &upload{
		ID:          uuid.NewString(),
		Owner:       userIDFromContext(r.Context()),
		FileName:    body.FileName,
		ContentType: body.ContentType,
		Size:        body.Size,
		Signature:   hex.EncodeToString(sig[:]),
		Status:      UploadPending,
		CreatedAt:   s.cfg.Now(),
	}

	s.mu.Lock()
	s.uploads[u.ID] = u
	s.mu.Unlock()

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"uploadId": u.ID,
		"url":      scheme + "://" + r.Host + "/objects/" + u.ID + "?sig=" + u.Signature,
		"headers":  map[string]string{"Content-Type": u.ContentType},
	})
}

// handleObjectPut is the presigned target. It authenticates by signature, never by
// bearer token.
func (s *Server) handleObjectPut(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "" {
		writeError(w, http.StatusBadRequest, "presigned uploads must not carry credentials")
		return
	}

	s.mu.Lock()
	u, ok := s.uploads[r.PathValue("id")]
	if !ok || u.Signature != r.URL.Query().Get("sig") {
		s.mu.Unlock()
		writeError(w, http.StatusForbidden, "signature mismatch")
		return
	}
	if u.Status != UploadPending {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "object already uploaded")
		return
	}
	s.mu.Unlock()

	n, err := io.Copy(io.Discard, io.LimitReader(r.Body, maxUploadSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}

	s.mu.Lock()
	u.Received = n
	u.Status = UploadUploaded
	s.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.ownedUploadLocked(r)
	if !ok {
		writeError(w, http.StatusNotFound, "upload not found")
		return
	}
	if u.Status != UploadUploaded {
		writeError(w, http.StatusConflict, "object not uploaded")
		return
	}

	u.Status = UploadProcessing
	u.pollsLeft = s.cfg.ProcessingPolls
	writeJSON(w, http.StatusAccepted, u.status())
}

func (s *Server) handleUploadStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.ownedUploadLocked(r)
	if !ok {
		writeError(w, http.StatusNotFound, "upload not found")
		return
	}

	if u.Status == UploadProcessing {
		if u.pollsLeft > 0 {
			u.pollsLeft--
		} else if u.Received != u.Size {
			u.Status = UploadFailed
		} else {
			u.Status = UploadReady
		}
	}
	writeJSON(w, http.StatusOK, u.status())
}

func (s *Server) ownedUploadLocked(r *http.Request) (*upload, bool) {
	u, ok := s.uploads[r.PathValue("id")]
	if !ok || u.Owner != userIDFromContext(r.Context()) {
		return nil, false
	}
	return u, true
}

func (u *upload) status() uploadStatus {
	out := uploadStatus{
		UploadID: u.ID,
		Status:   u.Status,
		FileName: u.FileName,
		Size:     u.Size,
	}
	if u.Status == UploadFailed {
		out.Reason = "received size does not match declared size"
	}
	return out
}
