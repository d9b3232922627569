package fakeapi

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// User is the account payload returned by /auth/me, login and OAuth exchange.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type accessClaims struct {
	Generation int `json:"gen"`
	jwt.RegisteredClaims
}

type sessionPayload struct {
	AccessToken string `json:"accessToken"`
	User        *User  `json:"user,omitempty"`
}

type userIDContextKey struct{}

func userIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDContextKey{}).(string)
	return id
}

/*
====================================
TOKENS
====================================
*/

const refreshTokenSize = 32

// issueLocked mints an access token and a fresh refresh credential. s.mu must be held.
func (s *Server) issueLocked(userID string) (string, string, error) {
	access, err := s.mintAccessLocked(userID)
	if err != nil {
		return "", "", err
	}

	var raw [refreshTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", "", err
	}
	refresh := base64.RawURLEncoding.EncodeToString(raw[:])
	s.refreshSessions[sha256.Sum256([]byte(refresh))] = userID
	return access, refresh, nil
}

func (s *Server) mintAccessLocked(userID string) (string, error) {
	now := s.cfg.Now()
	claims := accessClaims{
		Generation: s.generation,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
}

// rotateLocked swaps the refresh credential for a new one. s.mu must be held.
func (s *Server) rotateLocked(refresh string) (access, next string, ok bool, err error) {
	key := sha256.Sum256([]byte(refresh))
	userID, found := s.refreshSessions[key]
	if !found {
		return "", "", false, nil
	}
	delete(s.refreshSessions, key)
	access, next, err = s.issueLocked(userID)
	return access, next, true, err
}

func (s *Server) validateAccess(token string) (string, bool) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.cfg.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if claims.Generation != s.generation {
		return "", false
	}
	if _, ok := s.users[claims.Subject]; !ok {
		return "", false
	}
	return claims.Subject, true
}

// guard rejects requests without a current bearer access token.
func (s *Server) guard(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		s.mu.Lock()
		s.tokenHits[token]++
		s.mu.Unlock()

		userID, ok := s.validateAccess(token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "access token expired or invalid")
			return
		}

		ctx := context.WithValue(r.Context(), userIDContextKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

/*
====================================
COOKIES
====================================
*/

func setRefreshCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    token,
		Path:     "/auth",
		MaxAge:   int((7 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearRefreshCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

/*
====================================
HANDLERS
====================================
*/

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(r, &body) {
		writeError(w, http.StatusBadRequest, "malformed login body")
		return
	}

	s.mu.Lock()
	encoded, ok := s.passwords[body.Email]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid email or password")
		return
	}
	match, err := verifyPassword(body.Password, encoded)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "credential check failed")
		return
	}
	if !match {
		writeError(w, http.StatusBadRequest, "invalid email or password")
		return
	}

	s.mu.Lock()
	user := s.userByEmailLocked(body.Email)
	access, refresh, err := s.issueLocked(user.ID)
	s.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token issue failed")
		return
	}

	setRefreshCookie(w, r, refresh)
	writeJSON(w, http.StatusOK, sessionPayload{AccessToken: access, User: &user})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	if d := time.Duration(s.refreshDelay.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
	}
	if status := int(s.refreshFailStatus.Load()); status != 0 {
		writeError(w, status, "refresh rejected")
		return
	}

	cookie, err := r.Cookie(RefreshCookie)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "missing refresh credential")
		return
	}

	s.mu.Lock()
	access, next, ok, err := s.rotateLocked(cookie.Value)
	s.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	if !ok {
		clearRefreshCookie(w, r)
		writeError(w, http.StatusUnauthorized, "refresh credential revoked")
		return
	}

	setRefreshCookie(w, r, next)
	writeJSON(w, http.StatusOK, sessionPayload{AccessToken: access})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.logoutCalls.Add(1)

	if status := int(s.logoutFailStatus.Load()); status != 0 {
		writeError(w, status, "logout failed")
		return
	}

	if cookie, err := r.Cookie(RefreshCookie); err == nil && cookie.Value != "" {
		s.mu.Lock()
		delete(s.refreshSessions, sha256.Sum256([]byte(cookie.Value)))
		s.mu.Unlock()
	}

	clearRefreshCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOAuth(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	if provider != "google" && provider != "github" {
		writeError(w, http.StatusNotFound, "unknown provider")
		return
	}

	var body struct {
		Credential string `json:"credential"`
	}
	if !decodeBody(r, &body) || strings.TrimSpace(body.Credential) == "" {
		writeError(w, http.StatusBadRequest, "credential is required")
		return
	}

	email := provider + "-" + body.Credential + "@example.com"

	s.mu.Lock()
	user := s.userByEmailLocked(email)
	if user.ID == "" {
		user = User{ID: "u-" + uuid.NewString(), Email: email, Name: provider + " user"}
		s.users[user.ID] = user
	}
	access, refresh, err := s.issueLocked(user.ID)
	s.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token issue failed")
		return
	}

	setRefreshCookie(w, r, refresh)
	writeJSON(w, http.StatusOK, sessionPayload{AccessToken: access, User: &user})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	user := s.users[userIDFromContext(r.Context())]
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) userByEmailLocked(email string) User {
	for _, u := range s.users {
		if u.Email == email {
			return u
		}
	}
	return User{}
}
