package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"pactline/internal/config"
	"pactline/internal/db"
	"pactline/internal/engine"
	"pactline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	ctx := context.Background()
	for _, u := range []engine.RegisterUserOpts{
		{ID: "alice", Email: "alice@example.com"},
		{ID: "bob", Email: "bob@example.com"},
		{ID: "root", Email: "root@example.com", IsAdmin: true},
	} {
		if _, err := e.RegisterUser(ctx, u); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
	handler, err := New(Config{Engine: e, BasePath: "/v1", Auth: AuthConfig{AllowLegacyActorHeader: true}})
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

func asActor(id string) map[string]string {
	return map[string]string{"X-Actor-Id": id}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func createDraft() map[string]any {
	return map[string]any{
		"title":             "Garden for guitar lessons",
		"counterpartUserId": "bob",
		"conditions":        []map[string]any{{"description": "Mow the lawn weekly"}},
		"counterparts":      []map[string]any{{"description": "One guitar lesson per week"}},
	}
}

func TestContractLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/contracts", createDraft(), asActor("alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created ContractResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal contract: %v", err)
	}
	if created.Status != "pending" || created.CreatedBy != "alice" {
		t.Fatalf("created = %+v", created)
	}

	// Counterpart may not activate.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/contracts/"+created.ID+"/activate", nil, asActor("bob"))
	if res.StatusCode != http.StatusForbidden || errorCode(t, data) != "forbidden" {
		t.Fatalf("bob activate: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/contracts/"+created.ID+"/activate", nil, asActor("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("activate: %d %s", res.StatusCode, string(data))
	}

	// Re-activation is a state conflict.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/contracts/"+created.ID+"/activate", nil, asActor("alice"))
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "precondition_failed" {
		t.Fatalf("second activate: %d %s", res.StatusCode, string(data))
	}

	condID := created.Conditions[0].ID
	cpID := created.Counterparts[0].ID

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/contracts/"+created.ID+"/conditions/"+condID+"/complete", nil, asActor("bob"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete condition: %d %s", res.StatusCode, string(data))
	}
	var afterCond ContractResponse
	if err := json.Unmarshal(data, &afterCond); err != nil {
		t.Fatal(err)
	}
	if afterCond.Status != "active" {
		t.Fatalf("status after one of two = %s", afterCond.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/contracts/"+created.ID+"/counterparts/"+cpID+"/complete", nil, asActor("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete counterpart: %d %s", res.StatusCode, string(data))
	}
	var final ContractResponse
	if err := json.Unmarshal(data, &final); err != nil {
		t.Fatal(err)
	}
	if final.Status != "completed" {
		t.Fatalf("final status = %s", final.Status)
	}
	if final.Counterparts[0].CompletedAt == nil || len(final.Counterparts[0].VerifiedBy) != 1 {
		t.Fatalf("counterpart completion fields: %+v", final.Counterparts[0])
	}

	// Repeating a completion reports the item as already done.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/contracts/"+created.ID+"/conditions/"+condID+"/complete", nil, asActor("bob"))
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "precondition_failed" {
		t.Fatalf("re-complete: %d %s", res.StatusCode, string(data))
	}
}

func TestValidationErrorsOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	body := createDraft()
	body["title"] = ""
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/contracts", body, asActor("alice"))
	if res.StatusCode != http.StatusUnprocessableEntity || errorCode(t, data) != "validation_failed" {
		t.Fatalf("empty title: %d %s", res.StatusCode, string(data))
	}

	body = createDraft()
	body["counterparts"] = []map[string]any{}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/contracts", body, asActor("alice"))
	if res.StatusCode != http.StatusUnprocessableEntity || errorCode(t, data) != "validation_failed" {
		t.Fatalf("missing obligations: %d %s", res.StatusCode, string(data))
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/contracts", nil, nil)
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "unauthorized" {
		t.Fatalf("no credentials: %d %s", res.StatusCode, string(data))
	}

	// Health stays open.
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d", res.StatusCode)
	}
}

func TestVisibilityOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/users", map[string]any{"email": "carol@example.com"}, asActor("carol"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register carol: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/contracts", createDraft(), asActor("alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}
	var created ContractResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatal(err)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/contracts/"+created.ID, nil, asActor("carol"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider read: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/admin/contracts", nil, asActor("carol"))
	if res.StatusCode != http.StatusForbidden || errorCode(t, data) != "admin_required" {
		t.Fatalf("non-admin list: %d %s", res.StatusCode, string(data))
	}
}

func TestInvitationsOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/invitations", map[string]any{"email": "bob@example.com"}, asActor("alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("send: %d %s", res.StatusCode, string(data))
	}
	var inv InvitationResponse
	if err := json.Unmarshal(data, &inv); err != nil {
		t.Fatal(err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/invitations/"+inv.ID+"/respond", map[string]any{"accept": true}, asActor("bob"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept: %d %s", res.StatusCode, string(data))
	}
	var accepted InvitationResponse
	if err := json.Unmarshal(data, &accepted); err != nil {
		t.Fatal(err)
	}
	if accepted.Status != "accepted" {
		t.Fatalf("status = %s", accepted.Status)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, asActor("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", res.StatusCode, string(data))
	}
	var me UserResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatal(err)
	}
	if len(me.Contacts) != 1 || me.Contacts[0] != "bob" {
		t.Fatalf("contacts = %v", me.Contacts)
	}
}

func TestEventLogIsAdminOnly(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/contracts", createDraft(), asActor("alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}

	// Participants do not get to read other users' activity.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events", nil, asActor("bob"))
	if res.StatusCode != http.StatusForbidden || errorCode(t, data) != "admin_required" {
		t.Fatalf("non-admin events: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events", nil, asActor("root"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin events: %d %s", res.StatusCode, string(data))
	}
	var events []EventResponse
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatal(err)
	}
	if len(events) == 0 {
		t.Fatalf("expected at least the creation event")
	}
}

func TestUserSearchOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/users/search?q=bo", nil, asActor("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("search: %d %s", res.StatusCode, string(data))
	}
	var hits []UserResponse
	if err := json.Unmarshal(data, &hits); err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "bob" {
		t.Fatalf("hits = %v", hits)
	}
}
