package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/salawat/internal/errors"
	"github.com/hpungsan/salawat/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	engine *ops.Engine
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(engine *ops.Engine) *Handlers {
	return &Handlers{engine: engine}
}

// AddRequest represents the arguments for counter_add.
type AddRequest struct {
	Amount  string `json:"amount"`
	EventID string `json:"event_id,omitempty"`
}

// TotalResult is returned by counter_total.
type TotalResult struct {
	Total int64 `json:"total"`
}

// HandleTotal handles the counter_total tool call.
func (h *Handlers) HandleTotal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	total, err := h.engine.CurrentTotal(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(TotalResult{Total: total})
}

// HandleAdd handles the counter_add tool call.
func (h *Handlers) HandleAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AddRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	amount, err := ops.ParseAmount(input.Amount)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.engine.Add(ctx, ops.AddInput{Amount: amount, EventID: input.EventID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// errorResult creates an MCP error result from an error.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var sErr *errors.SalawatError
	if stderrors.As(err, &sErr) {
		errorObj := map[string]any{
			"code":    sErr.Code,
			"message": sErr.Message,
			"status":  sErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if sErr.Code != errors.ErrInternal && sErr.Code != errors.ErrCorruptState && sErr.Details != nil {
			errorObj["details"] = sErr.Details
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
