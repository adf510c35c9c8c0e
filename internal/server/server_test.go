package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"reqline/internal/app"
	"reqline/internal/db"
	"reqline/internal/engine"
	"reqline/internal/migrate"
	"reqline/internal/store"
)

const testSolutionID = "reqline-test"

var actorHeader = map[string]string{"X-Actor-Id": "tester"}

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	_, cfg, err := app.ResolveSolutionAndConfig(context.Background(), testSolutionID, "tester", store.Store{DB: conn})
	if err != nil {
		t.Fatalf("resolve solution: %v", err)
	}
	e := engine.New(conn, cfg)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{AllowLegacyActorHeader: true},
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
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
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
	for k, v := range headers {
		req.Header.Set(k, v)
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

func TestRequirementLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/solutions/"+testSolutionID+"/requirements", map[string]any{
		"type": "outcome",
		"props": map[string]any{
			"title":       "Customers can export reports",
			"description": "The system produces a downloadable report for each billing period.",
		},
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("propose status %d: %s", res.StatusCode, string(data))
	}
	var created RequirementResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal requirement: %v", err)
	}
	if created.State != "proposed" || created.ReqID != "GO-1" {
		t.Fatalf("unexpected requirement: %+v", created)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/requirements/"+created.ID+"/review", map[string]any{}, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("review status %d: %s", res.StatusCode, string(data))
	}
	srv.Engine.Runner.Wait()

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/requirements/"+created.ID+"/endorsements", map[string]any{
		"decision": "approve",
		"comments": "ship it",
	}, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("endorse status %d: %s", res.StatusCode, string(data))
	}
	var endorsed RequirementResponse
	if err := json.Unmarshal(data, &endorsed); err != nil {
		t.Fatalf("unmarshal endorsed: %v", err)
	}
	if endorsed.State != "active" {
		t.Fatalf("expected active after endorsement, got %s", endorsed.State)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/requirements/"+created.ID+"/review", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("review state status %d: %s", res.StatusCode, string(data))
	}
	var review struct {
		Overall string `json:"overall"`
	}
	if err := json.Unmarshal(data, &review); err != nil {
		t.Fatalf("unmarshal review state: %v", err)
	}
	if review.Overall != "approved" {
		t.Fatalf("expected approved overall, got %s", review.Overall)
	}
}

func TestApproveWrongStateReturns422(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/solutions/"+testSolutionID+"/requirements", map[string]any{
		"type":  "outcome",
		"props": map[string]any{"title": "Not reviewed yet"},
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("propose status %d: %s", res.StatusCode, string(data))
	}
	var created RequirementResponse
	_ = json.Unmarshal(data, &created)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/requirements/"+created.ID+"/approve", map[string]any{}, actorHeader)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
}

func TestSingletonConflictReturns422(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/solutions/"+testSolutionID+"/requirements", map[string]any{
		"type":  "vision",
		"props": map[string]any{"title": "The vision"},
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("propose status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/solutions/"+testSolutionID+"/requirements", map[string]any{
		"type":  "vision",
		"props": map[string]any{"title": "A second vision"},
	}, actorHeader)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/solutions", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
}
