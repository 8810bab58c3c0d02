package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kvquery/kvquery/internal/engine"
	"github.com/kvquery/kvquery/internal/ratelimit"
	"github.com/kvquery/kvquery/internal/schema"
	"github.com/kvquery/kvquery/internal/storage/memadapter"
	"github.com/kvquery/kvquery/pkg/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	adapter := memadapter.New()
	registry := schema.NewRegistry()
	eng := engine.New(adapter, registry, nil, engine.Options{})

	td := schema.NewTableDescriptor("users", "id", true)
	if err := eng.RegisterTable(context.Background(), td); err != nil {
		t.Fatalf("RegisterTable: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.RestAPI.CORS = false
	cfg.RateLimit = ratelimit.Config{Enabled: false}
	return NewServer(eng, cfg)
}

func doRequest(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestQueryEndpointUpsertThenSelect(t *testing.T) {
	s := newTestServer(t)

	upsert := map[string]interface{}{
		"action":     "upsert",
		"table":      "users",
		"actionArgs": map[string]interface{}{"name": "Ada"},
	}
	rec := doRequest(s, http.MethodPost, "/api/v1/query", upsert)
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var upsertResp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &upsertResp); err != nil {
		t.Fatalf("decode upsert response: %v", err)
	}
	data, ok := upsertResp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("expected object data, got %T", upsertResp.Data)
	}
	pks, ok := data["AffectedRowPKs"].([]interface{})
	if !ok || len(pks) != 1 {
		t.Fatalf("expected 1 affected pk, got %v", data["AffectedRowPKs"])
	}
	pk := pks[0]

	sel := map[string]interface{}{
		"action": "select",
		"table":  "users",
		"where":  map[string]interface{}{"path": "id", "op": "=", "value": pk},
	}
	rec = doRequest(s, http.MethodPost, "/api/v1/query", sel)
	if rec.Code != http.StatusOK {
		t.Fatalf("select expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var selResp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &selResp); err != nil {
		t.Fatalf("decode select response: %v", err)
	}
	selData := selResp.Data.(map[string]interface{})
	rows, ok := selData["Rows"].([]interface{})
	if !ok || len(rows) != 1 {
		t.Fatalf("expected 1 selected row, got %v", selData["Rows"])
	}
	row := rows[0].(map[string]interface{})
	if row["name"] != "Ada" {
		t.Fatalf("expected name Ada, got %v", row["name"])
	}
}

func TestQueryEndpointRejectsUnknownTable(t *testing.T) {
	s := newTestServer(t)
	sel := map[string]interface{}{"action": "select", "table": "ghosts"}
	rec := doRequest(s, http.MethodPost, "/api/v1/query", sel)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestQueryEndpointInstanceTableSelect(t *testing.T) {
	s := newTestServer(t)
	req := map[string]interface{}{
		"action": "select",
		"table":  []map[string]interface{}{{"id": 1, "name": "Ada"}, {"id": 2, "name": "Bob"}},
		"where":  map[string]interface{}{"path": "name", "op": "=", "value": "Bob"},
	}
	rec := doRequest(s, http.MethodPost, "/api/v1/query", req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	data := resp.Data.(map[string]interface{})
	rows := data["Rows"].([]interface{})
	if len(rows) != 1 || rows[0].(map[string]interface{})["name"] != "Bob" {
		t.Fatalf("expected matching instance row Bob, got %v", rows)
	}
}

func TestStartWithContextStopsOnCancel(t *testing.T) {
	s := newTestServer(t)
	s.config.RestAPI.Port = 0
	s.config.RestAPI.AutoPort = true
	s.config.RestAPI.Host = "127.0.0.1"

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.StartWithContext(ctx, time.Second) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("StartWithContext returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("StartWithContext did not return after cancel")
	}
}
