package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/icebreaker/internal/apperr"
	"github.com/kalambet/icebreaker/internal/collect"
	"github.com/kalambet/icebreaker/internal/pipeline"
	"github.com/kalambet/icebreaker/internal/storage"
)

// --- mocks ---

type mockPipeline struct {
	run  *pipeline.Run
	err  error
	refs []collect.ProfileRef
}

func (m *mockPipeline) Submit(ctx context.Context, refs []collect.ProfileRef) (string, error) {
	return "", nil
}

func (m *mockPipeline) FetchResult(ctx context.Context, jobID string) ([]byte, error) {
	return nil, nil
}

func (m *mockPipeline) Analyze(ctx context.Context, jobID string) (string, error) {
	return "", nil
}

func (m *mockPipeline) Run(ctx context.Context, refs []collect.ProfileRef) (*pipeline.Run, error) {
	m.refs = refs
	return m.run, m.err
}

// --- helpers ---

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func openMCPStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// --- tests ---

func TestMCPTool_CompareProfiles(t *testing.T) {
	p := &mockPipeline{run: &pipeline.Run{ID: "r1", State: pipeline.StateDone, Insight: "Shared interest: X"}}
	handler := mcpCompareProfiles(MCPDeps{Pipeline: p})

	result, err := handler(context.Background(), makeCallToolRequest("compare_profiles", map[string]interface{}{
		"url_a": "https://www.linkedin.com/in/ada",
		"url_b": "https://www.linkedin.com/in/grace",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != "Shared interest: X" {
		t.Errorf("text = %q", got)
	}
	if len(p.refs) != 2 || p.refs[1].URL != "https://www.linkedin.com/in/grace" {
		t.Errorf("refs = %+v", p.refs)
	}
}

func TestMCPTool_CompareProfiles_MissingArg(t *testing.T) {
	handler := mcpCompareProfiles(MCPDeps{Pipeline: &mockPipeline{}})

	result, err := handler(context.Background(), makeCallToolRequest("compare_profiles", map[string]interface{}{
		"url_a": "https://www.linkedin.com/in/ada",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing url_b")
	}
}

func TestMCPTool_CompareProfiles_PipelineError(t *testing.T) {
	p := &mockPipeline{
		run: &pipeline.Run{ID: "r1", State: pipeline.StateFailed},
		err: apperr.New(apperr.ErrTimeout, "collect.poll", "snapshot not ready"),
	}
	handler := mcpCompareProfiles(MCPDeps{Pipeline: p})

	result, _ := handler(context.Background(), makeCallToolRequest("compare_profiles", map[string]interface{}{
		"url_a": "https://a.example", "url_b": "https://b.example",
	}))
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if !strings.Contains(toolText(t, result), "timeout") {
		t.Errorf("text = %q, want error kind", toolText(t, result))
	}
}

func TestMCPTool_GetRun(t *testing.T) {
	store := openMCPStore(t)
	ts := time.Now()
	if err := store.SaveRun(storage.Run{ID: "r1", JobID: "job1", State: "done", Insight: "hi", CreatedAt: ts, UpdatedAt: ts}); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	handler := mcpGetRun(MCPDeps{Runs: store})

	result, err := handler(context.Background(), makeCallToolRequest("get_run", map[string]interface{}{"run_id": "r1"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var run storage.Run
	if err := json.Unmarshal([]byte(toolText(t, result)), &run); err != nil {
		t.Fatalf("decoding run: %v", err)
	}
	if run.ID != "r1" || run.JobID != "job1" || run.Insight != "hi" {
		t.Errorf("run = %+v", run)
	}
}

func TestMCPTool_GetRun_NotFound(t *testing.T) {
	handler := mcpGetRun(MCPDeps{Runs: openMCPStore(t)})
	result, _ := handler(context.Background(), makeCallToolRequest("get_run", map[string]interface{}{"run_id": "nope"}))
	if !result.IsError {
		t.Fatal("expected tool error for unknown run")
	}
}

func TestMCPTool_GetRun_NoStore(t *testing.T) {
	handler := mcpGetRun(MCPDeps{})
	result, _ := handler(context.Background(), makeCallToolRequest("get_run", map[string]interface{}{"run_id": "r1"}))
	if !result.IsError {
		t.Fatal("expected tool error without run store")
	}
}

func TestNewMCPServer(t *testing.T) {
	s := NewMCPServer(MCPDeps{Pipeline: &mockPipeline{}, Version: "1.2.3"})
	if s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
