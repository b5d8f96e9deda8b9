package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/icebreaker/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Snapshot file does not exist."}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		httpClient: ts.server.Client(),
	}
}

// useTestServer points the CLI commands at ts for the duration of the test.
func useTestServer(t *testing.T, ts *testServer) {
	t.Helper()
	old := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() {
		newAPIClient = old
		rootCmd.SetArgs(nil)
	})
}

var ctx = context.Background()

func TestAPIClient_PostAndDecode(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/trigger": `{"snapshot_id":"s_123"}`,
	})

	resp, err := ts.client().post(ctx, "/api/trigger", map[string]any{"urls": refsFromArgs([]string{"https://a", "https://b"})})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["snapshot_id"] != "s_123" {
		t.Errorf("snapshot_id = %q, want s_123", result["snapshot_id"])
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	var body struct {
		URLs []struct {
			URL string `json:"url"`
		} `json:"urls"`
	}
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if len(body.URLs) != 2 || body.URLs[0].URL != "https://a" || body.URLs[1].URL != "https://b" {
		t.Errorf("body = %s", ts.requests[0].Body)
	}
}

func TestDecodeJSON_ErrorBody(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.client().post(ctx, "/api/analyze", map[string]string{"snapshotId": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result map[string]string
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "Snapshot file does not exist.") {
		t.Errorf("error = %v", err)
	}
}

func TestCompareCommand_Sync(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/compare": `{"run_id":"r1","snapshot_id":"s1","insights":"Both love Go"}`,
	})
	useTestServer(t, ts)

	rootCmd.SetArgs([]string{"compare", "https://www.linkedin.com/in/ada", "https://www.linkedin.com/in/grace"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("compare: %v", err)
	}

	if len(ts.requests) != 1 || ts.requests[0].Path != "/api/compare" {
		t.Fatalf("requests = %+v", ts.requests)
	}
}

func TestCompareCommand_Async(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/runs": `{"run_id":"r2","status":"queued"}`,
	})
	useTestServer(t, ts)

	rootCmd.SetArgs([]string{"compare", "--async", "https://a.example", "https://b.example"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("compare --async: %v", err)
	}
	compareCmd.Flags().Set("async", "false")

	if len(ts.requests) != 1 || ts.requests[0].Method != http.MethodPost || ts.requests[0].Path != "/api/runs" {
		t.Fatalf("requests = %+v", ts.requests)
	}
}

func TestCompareCommand_RequiresTwoURLs(t *testing.T) {
	ts := newTestServer(t, nil)
	useTestServer(t, ts)

	rootCmd.SetArgs([]string{"compare", "https://a.example"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error with a single URL")
	}
	if len(ts.requests) != 0 {
		t.Errorf("server called %d times", len(ts.requests))
	}
}

func TestRunsListCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/runs": `[{"id":"r1","snapshot_id":"s1","state":"done","created_at":"2026-01-02T03:04:05Z","updated_at":"2026-01-02T03:04:05Z"}]`,
	})
	useTestServer(t, ts)

	rootCmd.SetArgs([]string{"runs", "list", "--limit", "5"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("runs list: %v", err)
	}
	if len(ts.requests) != 1 || ts.requests[0].Path != "/api/runs?limit=5&offset=0" {
		t.Fatalf("requests = %+v", ts.requests)
	}
}

func TestSnapshotCommand_EscapesID(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/snapshot/s 1": `[{"name":"Ada"}]`,
	})
	useTestServer(t, ts)

	rootCmd.SetArgs([]string{"snapshot", "s 1"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(ts.requests) != 1 || ts.requests[0].Path != "/api/snapshot/s%201" {
		t.Fatalf("requests = %+v", ts.requests)
	}
}

func TestServerURL(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"127.0.0.1", "http://127.0.0.1:5000"},
		{"0.0.0.0", "http://127.0.0.1:5000"},
		{"", "http://127.0.0.1:5000"},
		{"::1", "http://[::1]:5000"},
	}
	for _, tt := range tests {
		cfg := config.Config{Server: config.ServerConfig{Host: tt.host, Port: 5000}}
		if got := serverURL(cfg); got != tt.want {
			t.Errorf("serverURL(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestParseDuration(t *testing.T) {
	if got := parseDuration("k", "12s", time.Second); got != 12*time.Second {
		t.Errorf("parseDuration(12s) = %v", got)
	}
	if got := parseDuration("k", "soon", time.Second); got != time.Second {
		t.Errorf("parseDuration(soon) = %v, want fallback", got)
	}
	if got := parseDuration("k", "-1s", time.Second); got != time.Second {
		t.Errorf("parseDuration(-1s) = %v, want fallback", got)
	}
}

func TestSetupLogging_JSON(t *testing.T) {
	old := slog.Default()
	defer slog.SetDefault(old)

	var buf bytes.Buffer
	setupLogging(config.LogConfig{Level: "debug", Format: "json"}, &buf)
	slog.Debug("hello", "job_id", "s1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line is not JSON: %q", buf.String())
	}
	if rec["msg"] != "hello" || rec["job_id"] != "s1" {
		t.Errorf("record = %v", rec)
	}
}

func TestColorize(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(ansiRed, "hello")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}

	noColor = false
	result = colorize(ansiRed, "hello")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestStateLabel(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()
	noColor = true

	tests := []struct {
		state, kind, want string
	}{
		{"done", "", "done"},
		{"failed", "timeout", "failed (timeout)"},
		{"failed", "", "failed"},
		{"polling", "", "polling"},
	}
	for _, tt := range tests {
		if got := stateLabel(tt.state, tt.kind); got != tt.want {
			t.Errorf("stateLabel(%q, %q) = %q, want %q", tt.state, tt.kind, got, tt.want)
		}
	}
}
