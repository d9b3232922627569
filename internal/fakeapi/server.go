package fakeapi

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Demo credentials accepted by POST /auth/login on a fresh Server.
const (
	DemoEmail    = "ada@example.com"
	DemoPassword = "correct-horse-battery"
	DemoUserID   = "u-ada"
)

// RefreshCookie is the name of the cookie carrying the refresh credential.
const RefreshCookie = "refresh_token"

// Config tunes a Server. Zero values select the defaults noted per field.
type Config struct {
	// Secret signs access tokens. Default: 32 random bytes.
	Secret []byte
	// AccessTTL is the access token lifetime. Default: 15m.
	AccessTTL time.Duration
	// ProcessingPolls is how many status reads a completed upload stays in
	// "processing" before turning "ready". Default: 1.
	ProcessingPolls int
	// Now overrides time.Now for token minting and validation.
	Now func() time.Time
}

// Server is an http.Handler serving the backend contract. It is safe for concurrent use.
type Server struct {
	cfg Config
	mux *http.ServeMux

	mu              sync.Mutex
	generation      int
	refreshSessions map[[32]byte]string
	users           map[string]User
	passwords       map[string]string // email -> argon2id hash
	documents       []Document
	saved           map[string]map[string]bool
	uploads         map[string]*upload
	tokenHits       map[string]int

	refreshFailStatus atomic.Int32
	logoutFailStatus  atomic.Int32
	refreshDelay      atomic.Int64

	refreshCalls atomic.Int64
	logoutCalls  atomic.Int64
}

// New returns a Server seeded with the demo user and a fixed document catalog.
func New(cfg Config) *Server {
	if len(cfg.Secret) == 0 {
		cfg.Secret = make([]byte, 32)
		if _, err := rand.Read(cfg.Secret); err != nil {
			panic(fmt.Sprintf("fakeapi: secret: %v", err))
		}
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.ProcessingPolls <= 0 {
		cfg.ProcessingPolls = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	demoHash, err := hashPassword(DemoPassword)
	if err != nil {
		panic(fmt.Sprintf("fakeapi: hash demo password: %v", err))
	}

	s := &Server{
		cfg:             cfg,
		refreshSessions: make(map[[32]byte]string),
		users: map[string]User{
			DemoUserID: {ID: DemoUserID, Email: DemoEmail, Name: "Ada Lovelace"},
		},
		passwords: map[string]string{DemoEmail: demoHash},
		documents: seedDocuments(cfg.Now()),
		saved:     make(map[string]map[string]bool),
		uploads:   make(map[string]*upload),
		tokenHits: make(map[string]int),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("POST /auth/oauth/{provider}", s.handleOAuth)
	mux.Handle("GET /auth/me", s.guard(s.handleMe))

	mux.Handle("GET /documents", s.guard(s.handleFeed))
	mux.Handle("GET /documents/search", s.guard(s.handleSearch))
	mux.Handle("GET /documents/saved", s.guard(s.handleSaved))
	mux.Handle("GET /documents/{id}", s.guard(s.handleDocument))
	mux.Handle("POST /documents/{id}/save", s.guard(s.handleSave))
	mux.Handle("DELETE /documents/{id}/save", s.guard(s.handleUnsave))

	mux.Handle("POST /uploads/presign", s.guard(s.handlePresign))
	mux.Handle("POST /uploads/{id}/complete", s.guard(s.handleComplete))
	mux.Handle("GET /uploads/{id}", s.guard(s.handleUploadStatus))
	mux.HandleFunc("PUT /objects/{id}", s.handleObjectPut)

	s.mux = mux
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

/*
====================================
TEST KNOBS
====================================
*/

// FailRefresh makes every refresh call answer status. Zero restores normal behavior.
func (s *Server) FailRefresh(status int) {
	s.refreshFailStatus.Store(int32(status))
}

// FailLogout makes every logout call answer status. Zero restores normal behavior.
func (s *Server) FailLogout(status int) {
	s.logoutFailStatus.Store(int32(status))
}

// SetRefreshDelay delays every refresh response by d, to widen race windows.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.refreshDelay.Store(int64(d))
}

// ExpireAccessTokens invalidates every access token issued so far. Refresh cookies
// stay valid.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()
}

// RevokeSessions invalidates every refresh cookie issued so far.
func (s *Server) RevokeSessions() {
	s.mu.Lock()
	clear(s.refreshSessions)
	s.mu.Unlock()
}

// RefreshCalls returns how many refresh requests reached the server.
func (s *Server) RefreshCalls() int64 {
	return s.refreshCalls.Load()
}

// LogoutCalls returns how many logout requests reached the server.
func (s *Server) LogoutCalls() int64 {
	return s.logoutCalls.Load()
}

// Hits returns how many guarded requests were presented with token, accepted or not.
func (s *Server) Hits(token string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenHits[token]
}

// IssueSession mints an access token and a refresh credential for userID without
// going through login. The caller installs the refresh credential as a cookie.
func (s *Server) IssueSession(userID string) (access, refresh string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return "", "", fmt.Errorf("fakeapi: unknown user %q", userID)
	}
	return s.issueLocked(userID)
}

/*
====================================
RESPONSES
====================================
*/

type errorBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Message: message})
}

func decodeBody(r *http.Request, v any) bool {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v) == nil
}
