package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/warevault/rules/rules"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := config{
		AuditBuffer: 16,
		CacheTTL:    time.Second,
	}
	logg := slog.New(slog.NewTextHandler(io.Discard, nil))

	server, err := NewServer(context.Background(), cfg, logg)
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}
	t.Cleanup(server.audit.Close)
	return server
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func urgentRuleRequest() RuleRequest {
	return RuleRequest{
		Name:     "Urgent orders to zone A",
		Type:     "ALLOCATION",
		Priority: 90,
		Events:   []string{"ORDER_CREATED"},
		Conditions: []ConditionRequest{
			{Field: "priority", Operator: "EQUALS", Value: "URGENT"},
		},
		Actions: []ActionRequest{
			{Type: "ASSIGN_ZONE", Params: map[string]any{"zone": "A"}},
		},
	}
}

func createRule(t *testing.T, server *Server, req RuleRequest) rules.Rule {
	t.Helper()
	rec := doJSON(t, server, http.MethodPost, "/api/v1/rules", req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create rule: status %d, body %s", rec.Code, rec.Body)
	}
	return decode[rules.Rule](t, rec)
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode[map[string]string](t, rec)
	if body["status"] != "healthy" {
		t.Errorf("status = %q", body["status"])
	}
}

func TestCreateAndGetRule(t *testing.T) {
	server := newTestServer(t)

	created := createRule(t, server, urgentRuleRequest())
	if created.ID == "" {
		t.Fatal("created rule should have an ID")
	}
	if created.Status != rules.StatusDraft {
		t.Errorf("new rules start as drafts, got %s", created.Status)
	}

	rec := doJSON(t, server, http.MethodGet, "/api/v1/rules/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}
	got := decode[rules.Rule](t, rec)
	if got.Name != "Urgent orders to zone A" {
		t.Errorf("name = %q", got.Name)
	}
	if len(got.Conditions) != 1 || got.Conditions[0].Value.AsString() != "URGENT" {
		t.Errorf("conditions = %+v", got.Conditions)
	}
}

func TestCreateRuleRejectsInvalid(t *testing.T) {
	server := newTestServer(t)

	req := urgentRuleRequest()
	req.Conditions[0].Operator = "LIKE"

	rec := doJSON(t, server, http.MethodPost, "/api/v1/rules", req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetUnknownRule(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/rules/does-not-exist", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestUpdateRuleBumpsVersion(t *testing.T) {
	server := newTestServer(t)
	created := createRule(t, server, urgentRuleRequest())

	req := urgentRuleRequest()
	req.Name = "Urgent orders to zone B"
	req.Actions[0].Params["zone"] = "B"

	rec := doJSON(t, server, http.MethodPut, "/api/v1/rules/"+created.ID, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d, body %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, server, http.MethodGet, "/api/v1/rules/"+created.ID, nil)
	got := decode[rules.Rule](t, rec)
	if got.Version != 2 {
		t.Errorf("version = %d, want 2", got.Version)
	}
	if got.Name != "Urgent orders to zone B" {
		t.Errorf("name = %q", got.Name)
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	server := newTestServer(t)
	created := createRule(t, server, urgentRuleRequest())
	base := "/api/v1/rules/" + created.ID

	// Drafts cannot deactivate.
	rec := doJSON(t, server, http.MethodPost, base+"/deactivate", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("deactivating a draft: status %d, want 409", rec.Code)
	}

	rec = doJSON(t, server, http.MethodPost, base+"/activate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("activate: status %d, body %s", rec.Code, rec.Body)
	}
	if got := decode[rules.Rule](t, rec); got.Status != rules.StatusActive {
		t.Errorf("status = %s, want ACTIVE", got.Status)
	}

	rec = doJSON(t, server, http.MethodPost, base+"/archive", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("archive: status %d", rec.Code)
	}

	// Archived is terminal.
	rec = doJSON(t, server, http.MethodPost, base+"/activate", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("un-archiving: status %d, want 409", rec.Code)
	}
}

func TestListRules(t *testing.T) {
	server := newTestServer(t)
	createRule(t, server, urgentRuleRequest())

	second := urgentRuleRequest()
	second.Name = "Notify on shorted picks"
	second.Type = "NOTIFICATION"
	second.Events = []string{"PICK_SHORTED"}
	second.Actions = []ActionRequest{
		{Type: "SEND_NOTIFICATION", Params: map[string]any{"channel": "slack"}},
	}
	createRule(t, server, second)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/rules", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	body := decode[struct {
		Rules []rules.Rule `json:"rules"`
	}](t, rec)
	if len(body.Rules) != 2 {
		t.Errorf("expected 2 rules, got %d", len(body.Rules))
	}
}

func TestFireEndpoint(t *testing.T) {
	server := newTestServer(t)
	created := createRule(t, server, urgentRuleRequest())

	rec := doJSON(t, server, http.MethodPost, "/api/v1/rules/"+created.ID+"/activate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("activate: status %d", rec.Code)
	}

	rec = doJSON(t, server, http.MethodPost, "/api/v1/fire", FireRequest{
		Event:      "ORDER_CREATED",
		EntityType: "order",
		Entity:     map[string]any{"id": "ord-1", "priority": "URGENT"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("fire: status %d, body %s", rec.Code, rec.Body)
	}

	trace := decode[rules.Trace](t, rec)
	if len(trace.Rules) != 1 {
		t.Fatalf("expected 1 evaluated rule, got %d", len(trace.Rules))
	}
	outcome := trace.Rules[0]
	if !outcome.Matched {
		t.Error("expected the rule to match")
	}
	if len(outcome.Actions) != 1 || !outcome.Actions[0].Succeeded {
		t.Errorf("action outcomes = %+v", outcome.Actions)
	}
}

func TestFireEndpointValidatesRequest(t *testing.T) {
	server := newTestServer(t)

	testCases := []struct {
		name string
		body FireRequest
	}{
		{"missing event", FireRequest{EntityType: "order", Entity: map[string]any{}}},
		{"missing entity type", FireRequest{Event: "ORDER_CREATED", Entity: map[string]any{}}},
		{"missing entity", FireRequest{Event: "ORDER_CREATED", EntityType: "order"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, server, http.MethodPost, "/api/v1/fire", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestTestRuleEndpoint(t *testing.T) {
	server := newTestServer(t)
	created := createRule(t, server, urgentRuleRequest())

	// Drafts are testable without activation.
	rec := doJSON(t, server, http.MethodPost,
		fmt.Sprintf("/api/v1/rules/%s/test", created.ID),
		TestRequest{Entity: map[string]any{"priority": "URGENT"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("test: status %d, body %s", rec.Code, rec.Body)
	}

	result := decode[rules.TestResult](t, rec)
	if !result.Matched {
		t.Error("expected the sample to match")
	}
	if len(result.WouldFire) != 1 || result.WouldFire[0].Type != "ASSIGN_ZONE" {
		t.Errorf("resolved actions = %+v", result.WouldFire)
	}

	// Testing never counts as an execution.
	rec = doJSON(t, server, http.MethodGet, "/api/v1/rules/"+created.ID, nil)
	if got := decode[rules.Rule](t, rec); got.ExecutionCount != 0 {
		t.Errorf("execution count = %d, want 0", got.ExecutionCount)
	}
}
