package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"testing"

	"reqmgr/internal/auth"
	"reqmgr/internal/db"
	"reqmgr/internal/domain"
	"reqmgr/internal/engine"
	"reqmgr/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn)
	ctx := context.Background()
	seed := func(username, role string) {
		u := domain.User{Username: username, DisplayName: username, Role: role}
		if _, err := e.Repo.InsertUser(ctx, u, auth.HashCredential(username+"-pass")); err != nil {
			t.Fatalf("seed %s: %v", username, err)
		}
	}
	seed("alice", domain.RoleAdmin)
	seed("bob", domain.RoleStaff)

	svc := auth.Service{Repo: e.Repo, Secret: "test-secret"}
	handler, err := New(Config{Engine: e, Auth: svc, BasePath: "/v1"})
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

func login(t *testing.T, srv *testServer, username string) string {
	t.Helper()
	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/login", map[string]any{
		"username": username,
		"password": username + "-pass",
	}, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login %s status %d: %s", username, res.StatusCode, string(data))
	}
	var out LoginResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	return out.Token
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/login", map[string]any{
		"username": "alice",
		"password": "wrong",
	}, "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "invalid_credentials" {
		t.Fatalf("code = %q", envelope.Error.Code)
	}
}

func TestRequiresAuthentication(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/requirements", nil, "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/health", nil, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}

func TestRequirementLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	admin := login(t, srv, "alice")
	staff := login(t, srv, "bob")

	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/requirements", map[string]any{
		"title":       "Ship feature",
		"description": "all of it",
		"assignee_id": 2,
	}, admin)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created domain.Requirement
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal requirement: %v", err)
	}
	if created.Status != domain.StatusPending {
		t.Fatalf("status = %s", created.Status)
	}
	id := created.ID

	// staff cannot create
	res, _ = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/requirements", map[string]any{
		"title":       "nope",
		"description": "nope",
		"assignee_id": 2,
	}, staff)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("staff create status %d", res.StatusCode)
	}

	url := srv.URL + "/v1/requirements/" + itoa(id)
	res, data = doJSON(t, srv.client, http.MethodPost, url+"/submit", map[string]any{"comment": "done"}, staff)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}

	// approving twice: the second caller loses with a conflict
	res, data = doJSON(t, srv.client, http.MethodPost, url+"/approve", map[string]any{}, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.client, http.MethodPost, url+"/approve", map[string]any{}, admin)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("second approve status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.client, http.MethodGet, url, nil, staff)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, string(data))
	}
	var got domain.Requirement
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status != domain.StatusCompleted {
		t.Fatalf("final status = %s", got.Status)
	}
}

func TestTrashVisibility(t *testing.T) {
	srv := newTestServer(t)
	admin := login(t, srv, "alice")
	staff := login(t, srv, "bob")

	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/requirements", map[string]any{
		"title":       "temp",
		"description": "temp",
		"assignee_id": 2,
	}, admin)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created domain.Requirement
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	url := srv.URL + "/v1/requirements/" + itoa(created.ID)

	res, _ = doJSON(t, srv.client, http.MethodDelete, url, nil, admin)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d", res.StatusCode)
	}
	// assignee no longer sees the requirement
	res, _ = doJSON(t, srv.client, http.MethodGet, url, nil, staff)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("get deleted status %d", res.StatusCode)
	}
	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/admin/trash", nil, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("trash status %d: %s", res.StatusCode, string(data))
	}
	var trash []domain.Requirement
	if err := json.Unmarshal(data, &trash); err != nil {
		t.Fatalf("unmarshal trash: %v", err)
	}
	if len(trash) != 1 {
		t.Fatalf("trash size %d", len(trash))
	}

	res, _ = doJSON(t, srv.client, http.MethodPost, url+"/restore", map[string]any{}, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("restore status %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.client, http.MethodGet, url, nil, staff)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get restored status %d", res.StatusCode)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
