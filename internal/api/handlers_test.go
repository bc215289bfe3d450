// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tandem/internal/collector"
	"github.com/tomtom215/tandem/internal/eventprocessor"
	"github.com/tomtom215/tandem/internal/models"
	"github.com/tomtom215/tandem/internal/recommend"
)

type fakeCollector struct {
	mu      sync.Mutex
	actions []models.UserAction
	err     error
}

func (f *fakeCollector) Collect(_ context.Context, action *models.UserAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.actions = append(f.actions, *action)
	return nil
}

type fakeRecommender struct {
	err  error
	args []int64
}

func (f *fakeRecommender) GetSimilarEvents(_ context.Context, eventID, userID int64, maxResults int) ([]models.RecommendedEvent, error) {
	f.args = []int64{eventID, userID, int64(maxResults)}
	return []models.RecommendedEvent{{EventID: 2, Score: 0.1}, {EventID: 3, Score: 0.5}}, f.err
}

func (f *fakeRecommender) GetRecommendationsForUser(_ context.Context, userID int64, maxResults int) ([]models.RecommendedEvent, error) {
	f.args = []int64{userID, int64(maxResults)}
	return []models.RecommendedEvent{{EventID: 30, Score: 0.8}}, f.err
}

func (f *fakeRecommender) GetInteractionsCount(_ context.Context, eventIDs []int64) ([]models.RecommendedEvent, error) {
	f.args = eventIDs
	out := make([]models.RecommendedEvent, len(eventIDs))
	for i, id := range eventIDs {
		out[i] = models.RecommendedEvent{EventID: id}
	}
	return out, f.err
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeConn struct{ connected bool }

func (f fakeConn) IsConnected() bool { return f.connected }

func setupRouter(deps Dependencies) http.Handler {
	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitDisabled = true
	return NewRouter(NewHandler(deps), cfg, 0).Setup()
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, models.APIResponse) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp models.APIResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, resp
}

func TestCollectAction(t *testing.T) {
	col := &fakeCollector{}
	h := setupRouter(Dependencies{Collector: col})

	rec, resp := do(t, h, http.MethodPost, "/api/v1/actions", `{"user_id":1,"event_id":2,"action_type":"LIKE","timestamp":"2026-01-02T03:04:05Z"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if resp.Status != "success" || resp.Metadata.RequestID == "" {
		t.Errorf("resp = %+v", resp)
	}
	if rec.Header().Get("X-Request-ID") != resp.Metadata.RequestID {
		t.Error("request id header and metadata differ")
	}
	if len(col.actions) != 1 || col.actions[0].EventID != 2 || col.actions[0].Timestamp.Year() != 2026 {
		t.Errorf("collected %+v", col.actions)
	}
}

func TestCollectAction_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"bad json", `{"user_id":`, nil, http.StatusBadRequest, CodeBadRequest},
		{"missing user", `{"event_id":2,"action_type":"LIKE"}`, nil, http.StatusBadRequest, CodeValidation},
		{"collector rejects", `{"user_id":1,"event_id":2,"action_type":"SHARE"}`, fmt.Errorf("%w: unknown", collector.ErrInvalidAction), http.StatusBadRequest, CodeValidation},
		{"stream down", `{"user_id":1,"event_id":2,"action_type":"LIKE"}`, fmt.Errorf("publish: %w", eventprocessor.ErrTransientStream), http.StatusServiceUnavailable, CodeStreamUnavailable},
		{"buffer down", `{"user_id":1,"event_id":2,"action_type":"LIKE"}`, fmt.Errorf("%w: badger closed", collector.ErrBufferUnavailable), http.StatusServiceUnavailable, CodeStreamUnavailable},
		{"unexpected", `{"user_id":1,"event_id":2,"action_type":"LIKE"}`, errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setupRouter(Dependencies{Collector: &fakeCollector{err: tt.err}})
			rec, resp := do(t, h, http.MethodPost, "/api/v1/actions", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if resp.Error == nil || resp.Error.Code != tt.wantErr {
				t.Errorf("error = %+v, want code %s", resp.Error, tt.wantErr)
			}
		})
	}
}

func TestSimilarEvents(t *testing.T) {
	rec := &fakeRecommender{}
	h := setupRouter(Dependencies{Recommender: rec})

	resp, body := do(t, h, http.MethodGet, "/api/v1/events/10/similar?user_id=5&max_results=3", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.Code, resp.Body.String())
	}
	if body.Metadata.Count != 2 {
		t.Errorf("count = %d, want 2", body.Metadata.Count)
	}
	if fmt.Sprint(rec.args) != "[10 5 3]" {
		t.Errorf("args = %v", rec.args)
	}

	do(t, h, http.MethodGet, "/api/v1/events/10/similar?user_id=5", "")
	if rec.args[2] != DefaultMaxResults {
		t.Errorf("default max_results = %d", rec.args[2])
	}
}

func TestQueries_Validation(t *testing.T) {
	h := setupRouter(Dependencies{Recommender: &fakeRecommender{}})
	tests := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{"non-numeric event", http.MethodGet, "/api/v1/events/abc/similar?user_id=1", ""},
		{"missing user", http.MethodGet, "/api/v1/events/1/similar", ""},
		{"zero event", http.MethodGet, "/api/v1/events/0/similar?user_id=1", ""},
		{"huge max", http.MethodGet, "/api/v1/users/1/recommendations?max_results=5000", ""},
		{"bad max", http.MethodGet, "/api/v1/users/1/recommendations?max_results=ten", ""},
		{"negative id in list", http.MethodPost, "/api/v1/events/interactions", `{"event_ids":[1,-2]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := do(t, h, tt.method, tt.target, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (%s)", rec.Code, rec.Body.String())
			}
			if resp.Error == nil || resp.Error.Code != CodeValidation {
				t.Errorf("error = %+v", resp.Error)
			}
		})
	}
}

func TestRecommendationsAndInteractions(t *testing.T) {
	rec := &fakeRecommender{}
	h := setupRouter(Dependencies{Recommender: rec})

	resp, _ := do(t, h, http.MethodGet, "/api/v1/users/42/recommendations?max_results=5", "")
	if resp.Code != http.StatusOK || fmt.Sprint(rec.args) != "[42 5]" {
		t.Errorf("status = %d args = %v", resp.Code, rec.args)
	}

	resp, body := do(t, h, http.MethodPost, "/api/v1/events/interactions", `{"event_ids":[3,1,3]}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	if fmt.Sprint(rec.args) != "[3 1 3]" || body.Metadata.Count != 3 {
		t.Errorf("args = %v count = %d", rec.args, body.Metadata.Count)
	}
}

func TestQueries_StoreUnavailable(t *testing.T) {
	h := setupRouter(Dependencies{Recommender: &fakeRecommender{err: fmt.Errorf("recent events: %w", recommend.ErrStoreUnavailable)}})
	rec, resp := do(t, h, http.MethodGet, "/api/v1/users/1/recommendations", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp.Error.Code != CodeStoreUnavailable {
		t.Errorf("code = %s", resp.Error.Code)
	}
}

func TestRoutesFollowRoles(t *testing.T) {
	h := setupRouter(Dependencies{Collector: &fakeCollector{}})
	rec, _ := do(t, h, http.MethodGet, "/api/v1/users/1/recommendations", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("query route without recommender: status %d, want 404", rec.Code)
	}

	h = setupRouter(Dependencies{Recommender: &fakeRecommender{}})
	rec, _ = do(t, h, http.MethodPost, "/api/v1/actions", `{}`)
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("ingest route without collector: status %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name     string
		deps     Dependencies
		wantCode int
	}{
		{"no dependencies", Dependencies{}, http.StatusOK},
		{"all up", Dependencies{Store: fakePinger{}, NATS: fakeConn{connected: true}}, http.StatusOK},
		{"store down", Dependencies{Store: fakePinger{err: errors.New("closed")}, NATS: fakeConn{connected: true}}, http.StatusServiceUnavailable},
		{"nats down", Dependencies{NATS: fakeConn{}}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setupRouter(tt.deps)
			rec, _ := do(t, h, http.MethodGet, "/api/v1/health/ready", "")
			if rec.Code != tt.wantCode {
				t.Errorf("ready status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			live, _ := do(t, h, http.MethodGet, "/api/v1/health/live", "")
			if live.Code != http.StatusOK {
				t.Errorf("live status = %d", live.Code)
			}
		})
	}
}

func TestHealthStats(t *testing.T) {
	h := setupRouter(Dependencies{Stats: map[string]StatsFunc{
		"collector": func() interface{} { return collector.Stats{Collected: 7} },
	}})
	rec, resp := do(t, h, http.MethodGet, "/api/v1/health/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data = %T", resp.Data)
	}
	stats, ok := data["collector"].(map[string]interface{})
	if !ok || stats["collected"] != float64(7) {
		t.Errorf("collector stats = %v", data["collector"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := setupRouter(Dependencies{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("metrics status = %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitRequests = 1
	h := NewRouter(NewHandler(Dependencies{Recommender: &fakeRecommender{}}), cfg, 0).Setup()

	first, _ := do(t, h, http.MethodGet, "/api/v1/users/1/recommendations", "")
	second, resp := do(t, h, http.MethodGet, "/api/v1/users/1/recommendations", "")
	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
		t.Fatalf("statuses = %d, %d", first.Code, second.Code)
	}
	if resp.Error == nil || resp.Error.Code != CodeRateLimited {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestSanitizeLogValue(t *testing.T) {
	if got := sanitizeLogValue("a\nb\x7f"); got != `a\x0ab\x7f` {
		t.Errorf("sanitizeLogValue() = %q", got)
	}
}
