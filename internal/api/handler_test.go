package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/nidhogg/hindsight/internal/embed"
	"github.com/nidhogg/hindsight/internal/event"
	"github.com/nidhogg/hindsight/internal/history"
	"github.com/nidhogg/hindsight/internal/pattern"
	"github.com/nidhogg/hindsight/internal/report"
)

// newTestServer wires a Handler over in-memory backends (no Postgres/Redis).
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zap.NewNop()
	embedder := embed.NewHashProvider(embed.DefaultDimension)

	events := event.NewStore(event.NewMemoryBackend(), embedder, logger)
	reports := report.NewIndex(report.NewMemoryBackend(), embedder, logger)
	recognizer := pattern.NewRecognizer(reports, logger)
	aggregator := history.NewAggregator(events, reports, logger)

	h := NewHandler(events, reports, recognizer, aggregator, logger)
	ts := httptest.NewServer(h.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// --- Tests ---

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	resp := getJSON(t, ts, "/api/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("health body = %v", body)
	}
}

func TestLogAndQueryEvents(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/events", map[string]any{
		"event_type": "equipment_failure",
		"payload": map[string]any{
			"equipment_id": "SP-001",
			"failure_type": "bearing_wear",
		},
		"user_id": "operator-1",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("log event status = %d", resp.StatusCode)
	}
	var created map[string]string
	decodeJSON(t, resp, &created)
	if created["id"] == "" {
		t.Fatal("missing event id")
	}

	resp = postJSON(t, ts, "/api/events/similar", map[string]any{
		"event_type": "equipment_failure",
		"reference": map[string]any{
			"equipment_id": "SP-001",
			"failure_type": "bearing_wear",
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("similar events status = %d", resp.StatusCode)
	}
	var similar struct {
		Count int `json:"count"`
	}
	decodeJSON(t, resp, &similar)
	if similar.Count != 1 {
		t.Errorf("similar count = %d, want 1", similar.Count)
	}

	resp = getJSON(t, ts, "/api/events/history?entity_type=equipment&entity_id=SP-001&days=7")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d", resp.StatusCode)
	}
	var hist struct {
		Count int `json:"count"`
	}
	decodeJSON(t, resp, &hist)
	if hist.Count != 1 {
		t.Errorf("history count = %d, want 1", hist.Count)
	}

	// Missing event type is a validation error.
	resp = postJSON(t, ts, "/api/events", map[string]any{"payload": map[string]any{}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid log event status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestReportLifecycle(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/reports", map[string]any{
		"title":       "Solar Pump Bearing Failure Analysis",
		"summary":     "Bearing wear on pump SP-001.",
		"report_type": "failure_analysis",
		"content":     map[string]any{"priority": "high"},
		"entity_refs": map[string][]string{"equipment": {"SP-001"}},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("store report status = %d", resp.StatusCode)
	}
	var created map[string]string
	decodeJSON(t, resp, &created)
	id := created["id"]

	resp = getJSON(t, ts, "/api/reports/"+id)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get report status = %d", resp.StatusCode)
	}
	var rep report.Report
	decodeJSON(t, resp, &rep)
	if rep.Title != "Solar Pump Bearing Failure Analysis" {
		t.Errorf("title = %q", rep.Title)
	}

	resp = postJSON(t, ts, "/api/reports/search", map[string]any{
		"query":        "bearing failure",
		"equipment_id": "SP-001",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search status = %d", resp.StatusCode)
	}
	var result report.SearchResult
	decodeJSON(t, resp, &result)
	if len(result.Reports) != 1 {
		t.Fatalf("search returned %d reports, want 1", len(result.Reports))
	}

	resp = getJSON(t, ts, "/api/entities/equipment/SP-001/reports")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("entity reports status = %d", resp.StatusCode)
	}
	var byEntity struct {
		Count int `json:"count"`
	}
	decodeJSON(t, resp, &byEntity)
	if byEntity.Count != 1 {
		t.Errorf("entity reports count = %d, want 1", byEntity.Count)
	}

	resp = postJSON(t, ts, "/api/reports/"+id+"/archive", map[string]any{
		"reason":      "superseded",
		"archived_by": "operator-1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("archive status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/reports/search", map[string]any{"query": "bearing failure"})
	decodeJSON(t, resp, &result)
	if len(result.Reports) != 0 {
		t.Error("archived report still searchable")
	}

	resp = getJSON(t, ts, "/api/reports/00000000-0000-0000-0000-000000000000")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown report status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPatternsEndpoints(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 2; i++ {
		resp := postJSON(t, ts, "/api/reports", map[string]any{
			"title":       "Bearing incident",
			"report_type": "failure_analysis",
			"content":     map[string]any{"failure_type": "bearing_wear"},
			"entity_refs": map[string][]string{"equipment": {"SP-001"}},
		})
		resp.Body.Close()
	}

	resp := getJSON(t, ts, "/api/patterns?days=30")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patterns status = %d", resp.StatusCode)
	}
	var p pattern.SystemPatterns
	decodeJSON(t, resp, &p)
	if p.TotalReports != 2 {
		t.Errorf("total reports = %d, want 2", p.TotalReports)
	}

	resp = getJSON(t, ts, "/api/patterns/entity/SP-001")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("entity patterns status = %d", resp.StatusCode)
	}
	var ep pattern.EntityPatterns
	decodeJSON(t, resp, &ep)
	if !ep.HasData || ep.TotalReports != 2 {
		t.Errorf("entity patterns = %+v", ep)
	}
}

func TestHistoricalContextEndpoint(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 3; i++ {
		resp := postJSON(t, ts, "/api/events", map[string]any{
			"event_type": "equipment_failure",
			"payload": map[string]any{
				"equipment_id":      "SP-001",
				"failure_type":      "bearing_wear",
				"status":            "completed",
				"resolution_method": "bearing replacement",
			},
		})
		resp.Body.Close()
	}

	resp := postJSON(t, ts, "/api/context", map[string]any{
		"event_type": "equipment_failure",
		"data": map[string]any{
			"equipment_id": "SP-001",
			"failure_type": "bearing_wear",
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("context status = %d", resp.StatusCode)
	}
	var c history.Context
	decodeJSON(t, resp, &c)
	if c.TotalSimilarEvents != 3 {
		t.Errorf("similar events = %d, want 3", c.TotalSimilarEvents)
	}
	if len(c.Recommendations) == 0 {
		t.Error("expected recommendations")
	}

	resp = postJSON(t, ts, "/api/context", map[string]any{"data": map[string]any{}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid context status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}
