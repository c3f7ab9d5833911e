package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chatdb/chatdb/internal/auth"
	"github.com/chatdb/chatdb/internal/config"
	"github.com/chatdb/chatdb/internal/examples"
	"github.com/chatdb/chatdb/internal/explore"
	"github.com/chatdb/chatdb/internal/intent"
	"github.com/chatdb/chatdb/internal/profile"
	"github.com/chatdb/chatdb/internal/query"
	"github.com/chatdb/chatdb/internal/schema"
)

type fakeExplorer struct {
	err        error
	gotSource  string
	gotKeyword string
	gotExecute bool
	gotAsk     string
}

func (f *fakeExplorer) BackendName() string { return "mysql" }

func (f *fakeExplorer) ListSources(context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []string{"orders", "products"}, nil
}

func (f *fakeExplorer) Schema(_ context.Context, source string) (schema.Snapshot, error) {
	f.gotSource = source
	if f.err != nil {
		return schema.Snapshot{}, f.err
	}
	return schema.NewSnapshot(source, []schema.Column{
		{Name: "price", Category: schema.CategoryNumeric, Samples: []any{int64(10)}},
	}), nil
}

func (f *fakeExplorer) Examples(_ context.Context, source, keyword string, execute bool) ([]examples.Example, error) {
	f.gotSource, f.gotKeyword, f.gotExecute = source, keyword, execute
	if f.err != nil {
		return nil, f.err
	}
	return []examples.Example{{Description: "Sort rows by price in ascending order", Construct: examples.ConstructSort}}, nil
}

func (f *fakeExplorer) Ask(_ context.Context, source, utterance string, execute bool) (explore.Answer, error) {
	f.gotSource, f.gotAsk, f.gotExecute = source, utterance, execute
	if f.err != nil {
		return explore.Answer{}, f.err
	}
	rendered := query.Rendered{Kind: query.KindSQL, Source: source, SQL: "SELECT DISTINCT category FROM products", Text: "SELECT DISTINCT category FROM products"}
	return explore.Answer{
		Source:    source,
		Utterance: utterance,
		Intent:    intent.Intent{Tag: intent.TagDistinct, Params: map[string]string{"field": "category"}},
		Outcome:   explore.OutcomeQuery,
		Query:     &rendered,
	}, nil
}

func loadConfig(t *testing.T, env map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load("chatdb-api", mapLookup(env))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["service"] != "chatdb-api" || body["backend"] != "mysql" {
		t.Fatalf("body = %#v", body)
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{
		Readiness: CheckBackend(func(context.Context) error {
			return errors.New("dependency down")
		}),
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestMetricsEndpointExposesDomainCollectors(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "chatdb_http_requests_total") {
		t.Fatal("expected http request counter in metrics output")
	}
}

func TestListSources(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Explorer: &fakeExplorer{}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sources", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var body struct {
		Backend string   `json:"backend"`
		Sources []string `json:"sources"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body.Backend != "mysql" || strings.Join(body.Sources, ",") != "orders,products" {
		t.Fatalf("body = %#v", body)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	explorer := &fakeExplorer{}
	h := NewHandler(loadConfig(t, nil), Dependencies{Explorer: explorer})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sources/products/schema", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if explorer.gotSource != "products" {
		t.Fatalf("source = %q", explorer.gotSource)
	}
	var snap schema.Snapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if snap.SourceName != "products" || len(snap.Columns) != 1 || snap.Columns[0].Category != schema.CategoryNumeric {
		t.Fatalf("snapshot = %#v", snap)
	}
}

func TestExamplesEndpointPassesKeywordAndExecute(t *testing.T) {
	explorer := &fakeExplorer{}
	h := NewHandler(loadConfig(t, nil), Dependencies{Explorer: explorer})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sources/products/examples?keyword=sort&execute=true", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if explorer.gotKeyword != "sort" || !explorer.gotExecute {
		t.Fatalf("keyword = %q execute = %v", explorer.gotKeyword, explorer.gotExecute)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sources/products/examples?execute=maybe", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestAskEndpoint(t *testing.T) {
	explorer := &fakeExplorer{}
	h := NewHandler(loadConfig(t, nil), Dependencies{Explorer: explorer})
	rr := httptest.NewRecorder()
	body := bytes.NewBufferString(`{"utterance":"distinct category"}`)
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/sources/products/ask", body))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var answer map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &answer); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if answer["outcome"] != "query" {
		t.Fatalf("answer = %#v", answer)
	}
	rendered, _ := answer["query"].(map[string]any)
	if rendered["sql"] != "SELECT DISTINCT category FROM products" {
		t.Fatalf("query = %#v", answer["query"])
	}
	if explorer.gotAsk != "distinct category" || explorer.gotExecute {
		t.Fatalf("ask = %q execute = %v", explorer.gotAsk, explorer.gotExecute)
	}
}

func TestAskRejectsBadBodies(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Explorer: &fakeExplorer{}})
	tests := []struct {
		body string
		code string
	}{
		{`{"utterance":"x","extra":1}`, "INVALID_JSON"},
		{`not json`, "INVALID_JSON"},
		{`{"utterance":"   "}`, "UTTERANCE_REQUIRED"},
	}
	for _, tc := range tests {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/sources/products/ask", strings.NewReader(tc.body)))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %q status = %d", tc.body, rr.Code)
		}
		if got := errorCode(t, rr); got != tc.code {
			t.Fatalf("body %q error_code = %q, want %q", tc.body, got, tc.code)
		}
	}
}

func TestExploreErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: table %q", profile.ErrSourceNotFound, "ghost"), http.StatusNotFound, "SOURCE_NOT_FOUND"},
		{fmt.Errorf("%w: dial tcp", profile.ErrSourceUnavailable), http.StatusServiceUnavailable, "SOURCE_UNAVAILABLE"},
		{&explore.ExecutionError{Query: query.Rendered{Kind: query.KindSQL, Text: "SELECT 1"}, Err: errors.New("syntax")}, http.StatusBadGateway, "EXECUTION_FAILED"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range tests {
		h := NewHandler(loadConfig(t, nil), Dependencies{Explorer: &fakeExplorer{err: tc.err}})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/sources/products/ask", strings.NewReader(`{"utterance":"show all rows","execute":true}`)))
		if rr.Code != tc.status {
			t.Fatalf("err %v status = %d, want %d", tc.err, rr.Code, tc.status)
		}
		if got := errorCode(t, rr); got != tc.code {
			t.Fatalf("err %v error_code = %q", tc.err, got)
		}
	}
}

func TestExecutionErrorIncludesRenderedQuery(t *testing.T) {
	execErr := &explore.ExecutionError{Query: query.Rendered{Kind: query.KindSQL, Text: "SELECT * FROM products"}, Err: errors.New("table locked")}
	h := NewHandler(loadConfig(t, nil), Dependencies{Explorer: &fakeExplorer{err: execErr}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sources/products/examples?execute=1", nil))

	var body struct {
		Context map[string]any `json:"context"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body.Context["query"] != "SELECT * FROM products" || body.Context["details"] != "table locked" {
		t.Fatalf("context = %#v", body.Context)
	}
}

func TestExplorerNotConfigured(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sources", nil))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"CHATDB_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("k1:alice:explorer,k2:bob:query_runner")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}
	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Explorer:       &fakeExplorer{},
	})

	unauthResp := httptest.NewRecorder()
	h.ServeHTTP(unauthResp, httptest.NewRequest(http.MethodGet, "/v1/sources", nil))
	if unauthResp.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", unauthResp.Code)
	}

	authReq := httptest.NewRequest(http.MethodGet, "/v1/sources", nil)
	authReq.Header.Set("X-API-Key", "k1")
	authResp := httptest.NewRecorder()
	h.ServeHTTP(authResp, authReq)
	if authResp.Code != http.StatusOK {
		t.Fatalf("auth status = %d", authResp.Code)
	}

	// Health stays public.
	healthResp := httptest.NewRecorder()
	h.ServeHTTP(healthResp, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if healthResp.Code != http.StatusOK {
		t.Fatalf("health status = %d", healthResp.Code)
	}
}

func TestExecuteRequiresQueryRunnerRole(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"CHATDB_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("k1:alice:explorer,k2:bob:query_runner")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}
	explorer := &fakeExplorer{}
	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Explorer:       explorer,
	})

	ask := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/sources/products/ask", strings.NewReader(`{"utterance":"show all rows","execute":true}`))
		req.Header.Set("X-API-Key", key)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}
	if rr := ask("k1"); rr.Code != http.StatusForbidden {
		t.Fatalf("explorer execute status = %d", rr.Code)
	}
	if explorer.gotAsk != "" {
		t.Fatal("explorer should not be called when forbidden")
	}
	if rr := ask("k2"); rr.Code != http.StatusOK {
		t.Fatalf("query_runner execute status = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/sources/products/examples?execute=true", nil)
	req.Header.Set("X-API-Key", "k1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("explorer examples execute status = %d", rr.Code)
	}
}

func TestAuthRequiredWithoutMiddlewareFailsClosed(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"CHATDB_AUTH_REQUIRED": "true"})
	h := NewHandler(cfg, Dependencies{Explorer: &fakeExplorer{}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sources", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(_ context.Context) error {
			order = append(order, 1)
			return nil
		},
		nil,
		func(_ context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(_ context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	err := combined(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestCheckObjectStoreConfig(t *testing.T) {
	cfg := loadConfig(t, nil)
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err != nil {
		t.Fatalf("CheckObjectStoreConfig() error = %v", err)
	}
	cfg.ObjectStore.Bucket = ""
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err == nil {
		t.Fatal("expected missing bucket error")
	}
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	code, _ := body["error_code"].(string)
	return code
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
