package fakeapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Document is the catalog entry payload.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Category  string    `json:"category"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	Saved     bool      `json:"saved"`
}

// Page is one page of a document listing.
type Page struct {
	Items   []Document `json:"items"`
	Page    int        `json:"page"`
	Limit   int        `json:"limit"`
	Total   int        `json:"total"`
	HasMore bool       `json:"hasMore"`
}

var seedCategories = []string{"research", "legal", "finance"}

func seedDocuments(now time.Time) []Document {
	docs := make([]Document, 0, 30)
	for i := 1; i <= 30; i++ {
		category := seedCategories[i%len(seedCategories)]
		docs = append(docs, Document{
			ID:        fmt.Sprintf("doc-%02d", i),
			Title:     fmt.Sprintf("%s brief %d", strings.ToUpper(category[:1])+category[1:], i),
			Summary:   fmt.Sprintf("Summary of %s document number %d.", category, i),
			Category:  category,
			Author:    "Ada Lovelace",
			CreatedAt: now.Add(-time.Duration(i) * time.Hour).UTC().Truncate(time.Second),
		})
	}
	return docs
}

func pagination(r *http.Request) (page, limit int, ok bool) {
	page, limit = 1, defaultPageSize
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, 0, false
		}
		page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			return 0, 0, false
		}
		limit = n
	}
	return page, limit, true
}

// pageOf slices docs into one page and stamps Saved for userID. s.mu must be held.
func (s *Server) pageOfLocked(docs []Document, userID string, page, limit int) Page {
	out := Page{Page: page, Limit: limit, Total: len(docs), Items: []Document{}}
	start := (page - 1) * limit
	if start >= len(docs) {
		return out
	}
	end := min(start+limit, len(docs))
	for _, d := range docs[start:end] {
		d.Saved = s.saved[userID][d.ID]
		out.Items = append(out.Items, d)
	}
	out.HasMore = end < len(docs)
	return out
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := pagination(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid page or limit")
		return
	}
	category := r.URL.Query().Get("category")

	s.mu.Lock()
	defer s.mu.Unlock()

	var docs []Document
	for _, d := range s.documents {
		if category == "" || d.Category == category {
			docs = append(docs, d)
		}
	}
	writeJSON(w, http.StatusOK, s.pageOfLocked(docs, userIDFromContext(r.Context()), page, limit))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	page, limit, ok := pagination(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid page or limit")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var docs []Document
	for _, d := range s.documents {
		if strings.Contains(strings.ToLower(d.Title), q) || strings.Contains(strings.ToLower(d.Summary), q) {
			docs = append(docs, d)
		}
	}
	writeJSON(w, http.StatusOK, s.pageOfLocked(docs, userIDFromContext(r.Context()), page, limit))
}

func (s *Server) handleSaved(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := pagination(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid page or limit")
		return
	}
	userID := userIDFromContext(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()

	var docs []Document
	for _, d := range s.documents {
		if s.saved[userID][d.ID] {
			docs = append(docs, d)
		}
	}
	writeJSON(w, http.StatusOK, s.pageOfLocked(docs, userID, page, limit))
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.documentLocked(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	d.Saved = s.saved[userID][d.ID]
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	s.setSaved(w, r, true)
}

func (s *Server) handleUnsave(w http.ResponseWriter, r *http.Request) {
	s.setSaved(w, r, false)
}

func (s *Server) setSaved(w http.ResponseWriter, r *http.Request, saved bool) {
	userID := userIDFromContext(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.documentLocked(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if saved {
		if s.saved[userID] == nil {
			s.saved[userID] = make(map[string]bool)
		}
		s.saved[userID][d.ID] = true
	} else {
		delete(s.saved[userID], d.ID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) documentLocked(id string) (Document, bool) {
	for _, d := range s.documents {
		if d.ID == id {
			return d, true
		}
	}
	return Document{}, false
}
