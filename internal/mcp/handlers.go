package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pensum-app/pensum/internal/config"
	"github.com/pensum-app/pensum/internal/errors"
	"github.com/pensum-app/pensum/internal/ops"
	"github.com/pensum-app/pensum/internal/session"
	"github.com/pensum-app/pensum/internal/store"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	store    store.Store
	registry *session.Registry
	cfg      *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(st store.Store, reg *session.Registry, cfg *config.Config) *Handlers {
	return &Handlers{store: st, registry: reg, cfg: cfg}
}

// Request types for each tool

// ImportRequest represents the arguments for topic_import.
type ImportRequest struct {
	Path string `json:"path"`
}

// SessionRequest represents the arguments shared by the session tools.
type SessionRequest struct {
	UserID  string `json:"user_id"`
	TopicID string `json:"topic_id"`
}

func (r SessionRequest) input() ops.SessionInput {
	return ops.SessionInput{UserID: r.UserID, TopicID: r.TopicID}
}

// GradeRequest represents the arguments for session_grade.
type GradeRequest struct {
	SessionRequest
	QuestionID string `json:"question_id,omitempty"`
	Rating     string `json:"rating"`
}

// NotesRequest represents the arguments for session_notes.
type NotesRequest struct {
	SessionRequest
	QuestionID string `json:"question_id"`
	Notes      string `json:"notes"`
}

// Handler implementations

// HandleTopicList handles the topic_list tool call.
func (h *Handlers) HandleTopicList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.ListTopics(ctx, h.store)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleTopicImport handles the topic_import tool call.
func (h *Handlers) HandleTopicImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Import(ctx, h.store, h.cfg, ops.ImportInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSessionLoad handles the session_load tool call.
func (h *Handlers) HandleSessionLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.LoadSession(ctx, h.registry, input.input())
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSessionNext handles the session_next tool call.
func (h *Handlers) HandleSessionNext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.NextCard(ctx, h.registry, input.input())
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSessionGrade handles the session_grade tool call.
func (h *Handlers) HandleSessionGrade(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GradeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.GradeCard(ctx, h.registry, ops.GradeInput{
		SessionInput: input.input(),
		QuestionID:   input.QuestionID,
		Rating:       input.Rating,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSessionNotes handles the session_notes tool call.
func (h *Handlers) HandleSessionNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[NotesRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.UpdateNotes(ctx, h.registry, ops.NotesInput{
		SessionInput: input.input(),
		QuestionID:   input.QuestionID,
		Notes:        input.Notes,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSessionStats handles the session_stats tool call.
func (h *Handlers) HandleSessionStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SessionStats(ctx, h.registry.Engine(), input.input())
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// INTERNAL and STORE messages are replaced: they carry driver and path text.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if pErr, ok := errors.As(err); ok {
		errorObj := map[string]any{
			"code":    pErr.Code,
			"message": pErr.Message,
			"status":  pErr.Status,
		}
		switch pErr.Code {
		case errors.ErrInternal:
			errorObj["message"] = "an internal error occurred"
		case errors.ErrStore:
			errorObj["message"] = "the data store failed"
			if pErr.Details != nil {
				errorObj["details"] = pErr.Details
			}
		default:
			if pErr.Details != nil {
				errorObj["details"] = pErr.Details
			}
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
