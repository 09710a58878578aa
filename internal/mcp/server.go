package mcp

import (
	"log/slog"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pensum-app/pensum/internal/config"
	"github.com/pensum-app/pensum/internal/session"
	"github.com/pensum-app/pensum/internal/store"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"topic_list": {
		def:     topicListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTopicList },
	},
	"topic_import": {
		def:     topicImportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTopicImport },
	},
	"session_load": {
		def:     sessionLoadToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionLoad },
	},
	"session_next": {
		def:     sessionNextToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionNext },
	},
	"session_grade": {
		def:     sessionGradeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionGrade },
	},
	"session_notes": {
		def:     sessionNotesToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionNotes },
	},
	"session_stats": {
		def:     sessionStatsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionStats },
	},
}

// AllToolNames returns all valid tool names, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with pensum tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(st store.Store, reg *session.Registry, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"pensum",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(st, reg, cfg)

	disabled := make(map[string]bool, len(cfg.DisabledTools))
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}
	if unknown := ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		slog.Warn("unknown tools in disabled_tools", "tools", unknown)
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(st store.Store, reg *session.Registry, cfg *config.Config, version string) error {
	s := NewServer(st, reg, cfg, version)
	return server.ServeStdio(s)
}
