package mcp

import (
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/salawat/internal/ops"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"counter_total": {
		def:     totalToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTotal },
	},
	"counter_add": {
		def:     addToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAdd },
	},
}

var totalToolDef = mcp.NewTool("counter_total",
	mcp.WithDescription("Return the current shared running total."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var addToolDef = mcp.NewTool("counter_add",
	mcp.WithDescription("Add a signed integer contribution to the shared total. "+
		"Repeating an event_id applies nothing and reports duplicate=true."),
	mcp.WithString("amount",
		mcp.Required(),
		mcp.Description(`Signed integer as a string, e.g. "100" or "-30"`),
	),
	mcp.WithString("event_id",
		mcp.Description("Idempotency key. Defaults to a new ULID."),
	),
	mcp.WithIdempotentHintAnnotation(true),
)

// AllToolNames returns the registered tool names in sorted order.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewServer creates a new MCP server with the counter tools registered.
func NewServer(engine *ops.Engine, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"salawat",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(engine)
	for _, entry := range toolRegistry {
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(engine *ops.Engine, version string) error {
	s := NewServer(engine, version)
	return server.ServeStdio(s)
}
