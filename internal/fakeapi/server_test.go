package fakeapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server, *http.Client) {
	t.Helper()

	api := New(cfg)
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return api, srv, &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

func doJSON(t *testing.T, client *http.Client, method, url, token string, body any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func login(t *testing.T, client *http.Client, base string) string {
	t.Helper()

	var out sessionPayload
	status := doJSON(t, client, http.MethodPost, base+"/auth/login", "",
		map[string]string{"email": DemoEmail, "password": DemoPassword}, &out)
	if status != http.StatusOK {
		t.Fatalf("login status %d", status)
	}
	if out.AccessToken == "" || out.User == nil || out.User.ID != DemoUserID {
		t.Fatalf("unexpected login payload %+v", out)
	}
	return out.AccessToken
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	_, srv, client := newTestServer(t, Config{})

	status := doJSON(t, client, http.MethodPost, srv.URL+"/auth/login", "",
		map[string]string{"email": DemoEmail, "password": "nope"}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestGuardRequiresCurrentBearer(t *testing.T) {
	api, srv, client := newTestServer(t, Config{})
	access := login(t, client, srv.URL)

	if status := doJSON(t, client, http.MethodGet, srv.URL+"/auth/me", "", nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer, got %d", status)
	}

	var me User
	if status := doJSON(t, client, http.MethodGet, srv.URL+"/auth/me", access, nil, &me); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if me.Email != DemoEmail {
		t.Fatalf("unexpected user %+v", me)
	}

	api.ExpireAccessTokens()
	if status := doJSON(t, client, http.MethodGet, srv.URL+"/auth/me", access, nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 after expiry, got %d", status)
	}
	if hits := api.Hits(access); hits != 2 {
		t.Fatalf("expected 2 hits for token, got %d", hits)
	}
}

func TestGuardRejectsExpiredJWT(t *testing.T) {
	var offset atomic.Int64
	clock := func() time.Time { return time.Now().Add(time.Duration(offset.Load())) }
	_, srv, client := newTestServer(t, Config{AccessTTL: time.Minute, Now: clock})
	access := login(t, client, srv.URL)

	offset.Store(int64(2 * time.Minute))
	if status := doJSON(t, client, http.MethodGet, srv.URL+"/auth/me", access, nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", status)
	}
}

func TestRefreshRotatesCookie(t *testing.T) {
	api, srv, client := newTestServer(t, Config{})
	first := login(t, client, srv.URL)

	var refreshed sessionPayload
	if status := doJSON(t, client, http.MethodPost, srv.URL+"/auth/refresh", "", nil, &refreshed); status != http.StatusOK {
		t.Fatalf("refresh status %d", status)
	}
	if refreshed.AccessToken == "" || refreshed.AccessToken == first {
		t.Fatalf("expected a new access token")
	}
	if api.RefreshCalls() != 1 {
		t.Fatalf("expected 1 refresh call, got %d", api.RefreshCalls())
	}

	// A second client replaying no cookie is rejected.
	if status := doJSON(t, http.DefaultClient, http.MethodPost, srv.URL+"/auth/refresh", "", nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without cookie, got %d", status)
	}
}

func TestRefreshRejectsRotatedCredential(t *testing.T) {
	api, srv, _ := newTestServer(t, Config{})
	_, refresh, err := api.IssueSession(DemoUserID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	send := func() int {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/auth/refresh", nil)
		req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: refresh})
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("refresh: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if status := send(); status != http.StatusOK {
		t.Fatalf("first use: expected 200, got %d", status)
	}
	if status := send(); status != http.StatusUnauthorized {
		t.Fatalf("reuse: expected 401, got %d", status)
	}
}

func TestRefreshFailureKnob(t *testing.T) {
	api, srv, client := newTestServer(t, Config{})
	login(t, client, srv.URL)

	api.FailRefresh(http.StatusInternalServerError)
	if status := doJSON(t, client, http.MethodPost, srv.URL+"/auth/refresh", "", nil, nil); status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", status)
	}
	api.FailRefresh(0)
	if status := doJSON(t, client, http.MethodPost, srv.URL+"/auth/refresh", "", nil, nil); status != http.StatusOK {
		t.Fatalf("expected recovery, got %d", status)
	}
}

func TestLogoutRevokesRefreshCookie(t *testing.T) {
	api, srv, client := newTestServer(t, Config{})
	login(t, client, srv.URL)

	if status := doJSON(t, client, http.MethodPost, srv.URL+"/auth/logout", "", nil, nil); status != http.StatusNoContent {
		t.Fatalf("logout status %d", status)
	}
	if status := doJSON(t, client, http.MethodPost, srv.URL+"/auth/refresh", "", nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", status)
	}
	if api.LogoutCalls() != 1 {
		t.Fatalf("expected 1 logout call, got %d", api.LogoutCalls())
	}
}

func TestFeedPaginationAndCategory(t *testing.T) {
	_, srv, client := newTestServer(t, Config{})
	access := login(t, client, srv.URL)

	tests := []struct {
		name      string
		query     string
		wantItems int
		wantTotal int
		wantMore  bool
	}{
		{name: "default page", query: "", wantItems: 20, wantTotal: 30, wantMore: true},
		{name: "second page", query: "?page=2", wantItems: 10, wantTotal: 30, wantMore: false},
		{name: "past the end", query: "?page=9", wantItems: 0, wantTotal: 30, wantMore: false},
		{name: "category", query: "?category=legal&limit=5", wantItems: 5, wantTotal: 10, wantMore: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var page Page
			if status := doJSON(t, client, http.MethodGet, srv.URL+"/documents"+tc.query, access, nil, &page); status != http.StatusOK {
				t.Fatalf("status %d", status)
			}
			if len(page.Items) != tc.wantItems || page.Total != tc.wantTotal || page.HasMore != tc.wantMore {
				t.Fatalf("got items=%d total=%d more=%v", len(page.Items), page.Total, page.HasMore)
			}
		})
	}

	if status := doJSON(t, client, http.MethodGet, srv.URL+"/documents?limit=0", access, nil, nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for limit=0, got %d", status)
	}
}

func TestSaveUnsaveRoundTrip(t *testing.T) {
	_, srv, client := newTestServer(t, Config{})
	access := login(t, client, srv.URL)

	if status := doJSON(t, client, http.MethodPost, srv.URL+"/documents/doc-03/save", access, nil, nil); status != http.StatusNoContent {
		t.Fatalf("save status %d", status)
	}

	var saved Page
	doJSON(t, client, http.MethodGet, srv.URL+"/documents/saved", access, nil, &saved)
	if saved.Total != 1 || saved.Items[0].ID != "doc-03" || !saved.Items[0].Saved {
		t.Fatalf("unexpected saved page %+v", saved)
	}

	if status := doJSON(t, client, http.MethodDelete, srv.URL+"/documents/doc-03/save", access, nil, nil); status != http.StatusNoContent {
		t.Fatalf("unsave status %d", status)
	}
	doJSON(t, client, http.MethodGet, srv.URL+"/documents/saved", access, nil, &saved)
	if saved.Total != 0 {
		t.Fatalf("expected empty saved list, got %d", saved.Total)
	}

	if status := doJSON(t, client, http.MethodPost, srv.URL+"/documents/missing/save", access, nil, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestUploadLifecycle(t *testing.T) {
	_, srv, client := newTestServer(t, Config{ProcessingPolls: 1})
	access := login(t, client, srv.URL)

	var ticket struct {
		UploadID string            `json:"uploadId"`
		URL      string            `json:"url"`
		Headers  map[string]string `json:"headers"`
	}
	status := doJSON(t, client, http.MethodPost, srv.URL+"/uploads/presign", access,
		map[string]any{"fileName": "a.pdf", "contentType": "application/pdf", "size": 5}, &ticket)
	if status != http.StatusCreated {
		t.Fatalf("presign status %d", status)
	}
	if !strings.HasPrefix(ticket.URL, srv.URL+"/objects/") || ticket.Headers["Content-Type"] != "application/pdf" {
		t.Fatalf("unexpected ticket %+v", ticket)
	}

	req, _ := http.NewRequest(http.MethodPut, ticket.URL, strings.NewReader("hello"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put status %d", resp.StatusCode)
	}

	if status := doJSON(t, client, http.MethodPost, srv.URL+"/uploads/"+ticket.UploadID+"/complete", access, nil, nil); status != http.StatusAccepted {
		t.Fatalf("complete status %d", status)
	}

	var st uploadStatus
	doJSON(t, client, http.MethodGet, srv.URL+"/uploads/"+ticket.UploadID, access, nil, &st)
	if st.Status != UploadProcessing {
		t.Fatalf("expected processing on first poll, got %q", st.Status)
	}
	doJSON(t, client, http.MethodGet, srv.URL+"/uploads/"+ticket.UploadID, access, nil, &st)
	if st.Status != UploadReady {
		t.Fatalf("expected ready on second poll, got %q", st.Status)
	}
}

func TestObjectPutRejectsBadSignature(t *testing.T) {
	_, srv, client := newTestServer(t, Config{})
	access := login(t, client, srv.URL)

	var ticket struct {
		UploadID string `json:"uploadId"`
	}
	doJSON(t, client, http.MethodPost, srv.URL+"/uploads/presign", access,
		map[string]any{"fileName": "a.txt", "size": 1}, &ticket)

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/objects/"+ticket.UploadID+"?sig=wrong", strings.NewReader("x"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	encoded, err := hashPassword("correct-horse-battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding %q", encoded)
	}

	ok, err := verifyPassword("correct-horse-battery", encoded)
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	ok, err = verifyPassword("wrong", encoded)
	if err != nil || ok {
		t.Fatalf("expected mismatch, got ok=%v err=%v", ok, err)
	}

	for _, bad := range []string{"", "plain", "$bcrypt$v=19$m=1,t=1,p=1$aa$bb", "$argon2id$v=19$m=x$aa$bb"} {
		if _, err := verifyPassword("x", bad); !errors.Is(err, errBadHash) {
			t.Fatalf("expected errBadHash for %q, got %v", bad, err)
		}
	}
}
