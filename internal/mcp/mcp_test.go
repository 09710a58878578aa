package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pensum-app/pensum/internal/config"
	"github.com/pensum-app/pensum/internal/db"
	"github.com/pensum-app/pensum/internal/errors"
	"github.com/pensum-app/pensum/internal/scheduler"
	"github.com/pensum-app/pensum/internal/session"
)

const testBank = `{
  "topic": "Chemistry",
  "questions": [
    {"code": "C-001", "text": "Symbol for gold?", "type": "single",
     "options": [{"text": "Au", "is_correct": true}, {"text": "Ag", "is_correct": false}]},
    {"code": "C-002", "text": "Noble gases?", "type": "multiple",
     "options": [{"text": "Neon", "is_correct": true}, {"text": "Argon", "is_correct": true}, {"text": "Iron", "is_correct": false}]}
  ]
}`

// testSetup creates a temporary database, config and handlers for testing.
func testSetup(t *testing.T) (*Handlers, *config.Config) {
	t.Helper()

	tmpDir := t.TempDir()
	conn, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true // Allow temp dirs in tests

	st := db.NewStore(conn)
	engine := session.NewEngine(st, scheduler.New(scheduler.WithoutFuzz()), session.LimitsFromConfig(cfg))
	return NewHandlers(st, session.NewRegistry(engine), cfg), cfg
}

// importTestBank imports testBank through the tool and returns the topic id.
func importTestBank(t *testing.T, h *Handlers) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "chem.json")
	if err := os.WriteFile(path, []byte(testBank), 0600); err != nil {
		t.Fatalf("failed to write bank: %v", err)
	}
	result, err := h.HandleTopicImport(context.Background(), makeRequest(map[string]any{"path": path}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out := parseOutput(t, result)
	if out["imported"].(float64) != 2 {
		t.Fatalf("expected 2 imported, got %v", out["imported"])
	}
	return out["topic_id"].(string)
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func TestHandleTopicList(t *testing.T) {
	h, _ := testSetup(t)
	ctx := context.Background()

	result, err := h.HandleTopicList(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out := parseOutput(t, result)
	if topics := out["topics"].([]any); len(topics) != 0 {
		t.Errorf("expected no topics, got %d", len(topics))
	}

	topicID := importTestBank(t, h)

	result, _ = h.HandleTopicList(ctx, makeRequest(nil))
	out = parseOutput(t, result)
	topics := out["topics"].([]any)
	if len(topics) != 1 {
		t.Fatalf("expected 1 topic, got %d", len(topics))
	}
	if got := topics[0].(map[string]any)["id"]; got != topicID {
		t.Errorf("topic id = %v, want %s", got, topicID)
	}
}

func TestHandleTopicImport(t *testing.T) {
	h, _ := testSetup(t)
	ctx := context.Background()
	importTestBank(t, h)

	badPath := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(badPath, []byte(`{"topic": "x", "questions": []}`), 0600); err != nil {
		t.Fatalf("failed to write bank: %v", err)
	}

	tests := []struct {
		name       string
		args       map[string]any
		wantError  bool
		errorCode  string
		wantIssues bool
	}{
		{
			name:      "missing file",
			args:      map[string]any{"path": filepath.Join(t.TempDir(), "missing.json")},
			wantError: true,
			errorCode: "NOT_FOUND",
		},
		{
			name:      "no path",
			args:      map[string]any{},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name:      "wrong extension",
			args:      map[string]any{"path": "/tmp/bank.yaml"},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name:       "invalid bank",
			args:       map[string]any{"path": badPath},
			wantIssues: true,
		},
		{
			name:      "wrong argument type",
			args:      map[string]any{"path": 42},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleTopicImport(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if tt.wantError {
				if !result.IsError {
					t.Fatalf("expected error result, got success")
				}
				assertErrorCode(t, result, tt.errorCode)
				return
			}
			out := parseOutput(t, result)
			issues := out["errors"].([]any)
			if tt.wantIssues && len(issues) == 0 {
				t.Errorf("expected validation errors, got none")
			}
		})
	}
}

func TestHandleTopicImport_Conflict(t *testing.T) {
	h, _ := testSetup(t)
	importTestBank(t, h)

	path := filepath.Join(t.TempDir(), "again.json")
	if err := os.WriteFile(path, []byte(testBank), 0600); err != nil {
		t.Fatalf("failed to write bank: %v", err)
	}
	result, err := h.HandleTopicImport(context.Background(), makeRequest(map[string]any{"path": path}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "CONFLICT")
}

func TestHandleSessionFlow(t *testing.T) {
	h, _ := testSetup(t)
	ctx := context.Background()
	topicID := importTestBank(t, h)
	base := map[string]any{"user_id": "alice", "topic_id": topicID}

	result, err := h.HandleSessionLoad(ctx, makeRequest(base))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out := parseOutput(t, result)
	if out["new"].(float64) != 2 || out["done"].(bool) {
		t.Fatalf("unexpected load output: %v", out)
	}
	next := out["next"].(map[string]any)
	questionID := next["question_id"].(string)

	result, _ = h.HandleSessionNext(ctx, makeRequest(base))
	out = parseOutput(t, result)
	if got := out["next"].(map[string]any)["question_id"]; got != questionID {
		t.Errorf("session_next = %v, want %s", got, questionID)
	}

	grade := map[string]any{"user_id": "alice", "topic_id": topicID, "question_id": questionID, "rating": "easy"}
	result, _ = h.HandleSessionGrade(ctx, makeRequest(grade))
	out = parseOutput(t, result)
	if out["graded"] != questionID || out["rating"] != "easy" {
		t.Errorf("unexpected grade output: %v", out)
	}
	if out["new"].(float64) != 1 {
		t.Errorf("expected 1 new card left, got %v", out["new"])
	}

	// Grade the last card without naming it.
	result, _ = h.HandleSessionGrade(ctx, makeRequest(map[string]any{"user_id": "alice", "topic_id": topicID, "rating": "3"}))
	out = parseOutput(t, result)
	if !out["done"].(bool) {
		t.Errorf("expected done after grading both cards, got %v", out)
	}

	result, _ = h.HandleSessionStats(ctx, makeRequest(base))
	out = parseOutput(t, result)
	if out["total"].(float64) != 2 || out["new_due"].(float64) != 0 {
		t.Errorf("unexpected stats: %v", out)
	}
}

func TestHandleSessionErrors(t *testing.T) {
	h, _ := testSetup(t)
	ctx := context.Background()
	topicID := importTestBank(t, h)

	tests := []struct {
		name      string
		handler   func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args      map[string]any
		errorCode string
	}{
		{
			name:      "load without user",
			handler:   h.HandleSessionLoad,
			args:      map[string]any{"topic_id": topicID},
			errorCode: "UNAUTHENTICATED",
		},
		{
			name:      "load unknown topic",
			handler:   h.HandleSessionLoad,
			args:      map[string]any{"user_id": "alice", "topic_id": "nope"},
			errorCode: "NOT_FOUND",
		},
		{
			name:      "next without topic",
			handler:   h.HandleSessionNext,
			args:      map[string]any{"user_id": "alice"},
			errorCode: "INVALID_REQUEST",
		},
		{
			name:      "grade with bad rating",
			handler:   h.HandleSessionGrade,
			args:      map[string]any{"user_id": "alice", "topic_id": topicID, "rating": "meh"},
			errorCode: "INVALID_REQUEST",
		},
		{
			name:      "grade unknown question",
			handler:   h.HandleSessionGrade,
			args:      map[string]any{"user_id": "alice", "topic_id": topicID, "question_id": "nope", "rating": "good"},
			errorCode: "NOT_FOUND",
		},
		{
			name:      "notes on unknown question",
			handler:   h.HandleSessionNotes,
			args:      map[string]any{"user_id": "alice", "topic_id": topicID, "question_id": "nope", "notes": "x"},
			errorCode: "NOT_FOUND",
		},
		{
			name:      "stats without user",
			handler:   h.HandleSessionStats,
			args:      map[string]any{"topic_id": topicID},
			errorCode: "UNAUTHENTICATED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.handler(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if !result.IsError {
				t.Fatalf("expected error result, got success: %s", extractErrorMessage(result))
			}
			assertErrorCode(t, result, tt.errorCode)
		})
	}
}

func TestHandleSessionNotes_VirtualCard(t *testing.T) {
	h, _ := testSetup(t)
	ctx := context.Background()
	topicID := importTestBank(t, h)

	result, _ := h.HandleSessionLoad(ctx, makeRequest(map[string]any{"user_id": "alice", "topic_id": topicID}))
	questionID := parseOutput(t, result)["next"].(map[string]any)["question_id"].(string)

	result, err := h.HandleSessionNotes(ctx, makeRequest(map[string]any{
		"user_id": "alice", "topic_id": topicID, "question_id": questionID, "notes": "hint",
	}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "NOT_IMPLEMENTED")
}

func TestServerRegistration(t *testing.T) {
	h, cfg := testSetup(t)

	s := NewServer(h.store, h.registry, cfg, "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"topic_list",
		"topic_import",
		"session_load",
		"session_next",
		"session_grade",
		"session_notes",
		"session_stats",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}
	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	h, cfg := testSetup(t)

	cfg.DisabledTools = []string{"topic_import", "session_notes", "session_notes", "no_such_tool"}
	s := NewServer(h.store, h.registry, cfg, "test")
	tools := s.ListTools()

	if len(tools) != 5 {
		t.Errorf("registered tool count = %d, want 5", len(tools))
	}
	for _, name := range []string{"topic_import", "session_notes"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	h, cfg := testSetup(t)

	cfg.DisabledTools = AllToolNames()
	s := NewServer(h.store, h.registry, cfg, "test")
	if tools := s.ListTools(); len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{"all valid", []string{"topic_import", "session_notes"}, 0},
		{"one unknown", []string{"topic_import", "card_delete"}, 1},
		{"all unknown", []string{"foo", "bar", "baz"}, 3},
		{"empty list", []string{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if unknown := ValidateDisabledTools(tt.input); len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	if len(names) != 7 {
		t.Errorf("AllToolNames() returned %d names, want 7", len(names))
	}
	if names[0] != "session_grade" {
		t.Errorf("names should be sorted, got %v", names)
	}
	if unknown := ValidateDisabledTools(names); len(unknown) != 0 {
		t.Errorf("AllToolNames() returned invalid names: %v", unknown)
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")))
	errObj := errorObject(t, r)

	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if errObj["message"] != "an internal error occurred" {
		t.Errorf("message leaked: %v", errObj["message"])
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_StoreHidesDriverText(t *testing.T) {
	r := errorResult(errors.NewStore("upsert card", fmt.Errorf("database is locked")))
	errObj := errorObject(t, r)

	if errObj["code"] != string(errors.ErrStore) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrStore)
	}
	if errObj["message"] == "upsert card: database is locked" {
		t.Error("driver text should not be exposed")
	}
	details := errObj["details"].(map[string]any)
	if details["op"] != "upsert card" {
		t.Errorf("details.op = %v", details["op"])
	}
}

func TestErrorResult_WrappedErrorKeepsCode(t *testing.T) {
	r := errorResult(fmt.Errorf("grade: %w", errors.NewNotFound("card", "q1")))
	errObj := errorObject(t, r)

	if errObj["code"] != string(errors.ErrNotFound) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
	if _, ok := errObj["details"]; !ok {
		t.Fatal("expected non-INTERNAL errors to include details when present")
	}
}

func TestErrorResult_PlainError(t *testing.T) {
	errObj := errorObject(t, errorResult(fmt.Errorf("boom")))
	if errObj["code"] != "INTERNAL" {
		t.Errorf("code=%v, want INTERNAL", errObj["code"])
	}
}

// Helper functions

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func errorObject(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if !result.IsError {
		t.Fatal("expected IsError=true")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Fatal("no error object in payload")
	}
	return errObj
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()
	if code := errorObject(t, result)["code"]; code != expectedCode {
		t.Errorf("error code = %v, want %s", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}
	return text.Text
}
