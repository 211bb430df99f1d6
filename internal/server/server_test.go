package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"crewline/internal/config"
	"crewline/internal/db"
	"crewline/internal/domain"
	"crewline/internal/engine"
	"crewline/internal/migrate"
	"crewline/internal/session"
)

const testAdminSecret = "test-admin-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("Test Org")
	cfg.Events.TaskTemplates = nil
	e := engine.New(conn, cfg, nil, nil)
	e.Now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	handler, err := New(Config{
		Engine: e,
		Auth: AuthConfig{
			AdminSecret: testAdminSecret,
			JWTSecret:   "test-jwt-secret",
			Sessions:    session.New(time.Hour),
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, token string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func login(t *testing.T, srv *testServer) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"secret": testAdminSecret,
		"actor":  "tester",
	}, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", res.StatusCode, string(data))
	}
	var body LoginResponse
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	return body.Token
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/volunteers", nil, "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("without token: status %d", res.StatusCode)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should be open: status %d", res.StatusCode)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"secret": "wrong",
	}, "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad secret: status %d", res.StatusCode)
	}
}

func TestVolunteerLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/volunteers", CreateVolunteerRequest{
		Handle: "ada",
		Name:   "Ada L",
	}, token)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var v domain.Volunteer
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal volunteer: %v", err)
	}
	if v.Status != domain.StatusProbation || v.Commitments != 0 {
		t.Fatalf("created volunteer = %+v", v)
	}

	// duplicate handle is a conflict
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/volunteers", CreateVolunteerRequest{Handle: "ada"}, token)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/volunteers/by-handle/ada", nil, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("by-handle status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/volunteers/9999/status", SetStatusRequest{Status: "lead"}, token)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing volunteer status %d: %s", res.StatusCode, string(data))
	}
}

func TestEventCompletionOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv)
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/volunteers", CreateVolunteerRequest{Handle: "ada"}, token)
	var v domain.Volunteer
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatal(err)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/events", CreateEventRequest{
		Title:  "Spring service day",
		Format: "service_day",
		Tasks:  []string{"Setup", "Teardown"},
	}, token)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create event status %d: %s", res.StatusCode, string(data))
	}
	var created EventResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatal(err)
	}
	if len(created.Tasks) != 2 {
		t.Fatalf("tasks = %d", len(created.Tasks))
	}

	for _, task := range created.Tasks {
		res, data = doJSON(t, client, http.MethodPost,
			srv.URL+"/v0/tasks/"+itoa(task.ID)+"/assignments",
			AssignRequest{VolunteerID: v.ID}, token)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("assign status %d: %s", res.StatusCode, string(data))
		}
	}

	res, data = doJSON(t, client, http.MethodPut,
		srv.URL+"/v0/events/"+itoa(created.Event.ID)+"/status",
		SetEventStatusRequest{Status: "completed"}, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete event status %d: %s", res.StatusCode, string(data))
	}
	var done EventStatusResponse
	if err := json.Unmarshal(data, &done); err != nil {
		t.Fatal(err)
	}
	if done.Event.Status != domain.EventCompleted {
		t.Fatalf("event status = %s", done.Event.Status)
	}
	if done.Cascade == nil || done.Cascade.TasksCompleted != 2 {
		t.Fatalf("cascade = %+v", done.Cascade)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/volunteers/"+itoa(v.ID), nil, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get volunteer status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatal(err)
	}
	if v.Commitments != 2 {
		t.Fatalf("commitments = %d, want 2", v.Commitments)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv)
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/logout", nil, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("logout status %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/volunteers", nil, token)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked token still accepted: status %d", res.StatusCode)
	}
}

func itoa(id int64) string {
	return fmt.Sprintf("%d", id)
}
