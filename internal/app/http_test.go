package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"algomap/api/internal/ratelimit"
	"algomap/api/internal/store"
)

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestHandler(fs *fakeStore, limiter *ratelimit.Limiter) http.Handler {
	svc, _ := newTestService(fs)
	return NewHTTPServer(svc, "*", limiter).Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.1:50000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	var env envelope
	if err := json.Unmarshal(recorder.Body.Bytes(), &env); err != nil {
		t.Fatalf("response is not the standard envelope: %v (body %q)", err, recorder.Body.String())
	}
	return recorder, env
}

func signUpHTTP(t *testing.T, handler http.Handler, email string) (token string, userID string) {
	t.Helper()
	recorder, env := doJSON(t, handler, http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email":       email,
		"password":    "correct horse",
		"displayName": "Dana",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	var data struct {
		AccessToken string `json:"accessToken"`
		UserID      string `json:"userId"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode signup data: %v", err)
	}
	if data.AccessToken == "" {
		t.Fatal("signup returned no access token")
	}
	return data.AccessToken, data.UserID
}

func TestHealthEnvelope(t *testing.T) {
	handler := newTestHandler(newFakeStore(), nil)

	recorder, env := doJSON(t, handler, http.MethodGet, "/api/health", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if !env.Success {
		t.Error("expected success envelope")
	}
	if got := recorder.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if recorder.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestUnknownRouteEnvelope(t *testing.T) {
	handler := newTestHandler(newFakeStore(), nil)
	token, _ := signUpHTTP(t, handler, "dana@example.com")

	recorder, env := doJSON(t, handler, http.MethodGet, "/api/nope", token, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d", recorder.Code)
	}
	if env.Success || env.Code != "NOT_FOUND" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	handler := newTestHandler(newFakeStore(), nil)

	for _, path := range []string{"/api/themes", "/api/roadmap"} {
		recorder, env := doJSON(t, handler, http.MethodGet, path, "", nil)
		if recorder.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token: status = %d", path, recorder.Code)
		}
		if env.Success || env.Code != "UNAUTHORIZED" {
			t.Errorf("GET %s envelope = %+v", path, env)
		}
	}

	recorder, _ := doJSON(t, handler, http.MethodGet, "/api/themes", "not-a-jwt", nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: status = %d", recorder.Code)
	}
}

func TestSessionEndpoint(t *testing.T) {
	handler := newTestHandler(newFakeStore(), nil)

	_, env := doJSON(t, handler, http.MethodGet, "/api/session", "", nil)
	var anon struct {
		Authenticated bool `json:"authenticated"`
	}
	if err := json.Unmarshal(env.Data, &anon); err != nil {
		t.Fatalf("decode session data: %v", err)
	}
	if anon.Authenticated {
		t.Error("expected authenticated=false without a token")
	}

	token, userID := signUpHTTP(t, handler, "dana@example.com")
	_, env = doJSON(t, handler, http.MethodGet, "/api/session", token, nil)
	var authed struct {
		Authenticated bool   `json:"authenticated"`
		UserID        string `json:"userId"`
	}
	if err := json.Unmarshal(env.Data, &authed); err != nil {
		t.Fatalf("decode session data: %v", err)
	}
	if !authed.Authenticated || authed.UserID != userID {
		t.Errorf("session data = %+v", authed)
	}
}

func TestThemeRoundTrip(t *testing.T) {
	fs := newFakeStore()
	handler := newTestHandler(fs, nil)
	token, userID := signUpHTTP(t, handler, "dana@example.com")

	recorder, env := doJSON(t, handler, http.MethodPost, "/api/themes", token, map[string]any{
		"name":     "Graph Algorithms",
		"category": "graph",
		"subtopics": []map[string]any{
			{"name": "DFS", "theory": "Depth first traversal."},
		},
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create theme status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	var created struct {
		ID        string `json:"id"`
		CreatedBy string `json:"createdBy"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode theme: %v", err)
	}
	if created.CreatedBy != userID {
		t.Errorf("createdBy = %q, want %q", created.CreatedBy, userID)
	}

	recorder, env = doJSON(t, handler, http.MethodGet, "/api/themes", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("list themes status = %d", recorder.Code)
	}
	var listed struct {
		Themes []struct {
			ID string `json:"id"`
		} `json:"themes"`
	}
	if err := json.Unmarshal(env.Data, &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Themes) != 1 || listed.Themes[0].ID != created.ID {
		t.Errorf("list = %+v", listed)
	}

	// Track the theme and read the aggregated subtopic view.
	recorder, _ = doJSON(t, handler, http.MethodPost, "/api/roadmap", token, map[string]any{
		"themeId": created.ID,
		"status":  "in-progress",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("upsert node status = %d, body %s", recorder.Code, recorder.Body.String())
	}

	recorder, env = doJSON(t, handler, http.MethodGet, "/api/themes/"+created.ID+"/subtopics/DFS", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("aggregate status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	var aggregate struct {
		Theory string `json:"theory"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(env.Data, &aggregate); err != nil {
		t.Fatalf("decode aggregate: %v", err)
	}
	if aggregate.Theory != "Depth first traversal." || aggregate.Status != store.StatusInProgress {
		t.Errorf("aggregate = %+v", aggregate)
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	handler := newTestHandler(newFakeStore(), nil)
	signUpHTTP(t, handler, "dana@example.com")

	recorder, env := doJSON(t, handler, http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email":       "dana@example.com",
		"password":    "another pass",
		"displayName": "Dana Again",
	})
	if recorder.Code != http.StatusConflict {
		t.Fatalf("status = %d", recorder.Code)
	}
	if env.Code != "EMAIL_EXISTS" {
		t.Errorf("code = %q", env.Code)
	}
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	handler := newTestHandler(newFakeStore(), nil)

	recorder, env := doJSON(t, handler, http.MethodPost, "/api/session/refresh", "", map[string]any{
		"refreshToken": "rft_bogus",
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", recorder.Code)
	}
	if env.Code != "UNAUTHORIZED" {
		t.Errorf("code = %q", env.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := ratelimit.New(time.Minute, 2)
	defer limiter.Stop()
	handler := newTestHandler(newFakeStore(), limiter)

	for i := 0; i < 2; i++ {
		recorder, _ := doJSON(t, handler, http.MethodGet, "/api/health", "", nil)
		if recorder.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, recorder.Code)
		}
	}

	recorder, env := doJSON(t, handler, http.MethodGet, "/api/health", "", nil)
	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", recorder.Code)
	}
	if env.Code != "RATE_LIMITED" {
		t.Errorf("code = %q", env.Code)
	}

	// Keys are per client and path, so another client is unaffected.
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.RemoteAddr = "198.51.100.7:40000"
	other := httptest.NewRecorder()
	handler.ServeHTTP(other, req)
	if other.Code != http.StatusOK {
		t.Errorf("other client: status = %d", other.Code)
	}
}
