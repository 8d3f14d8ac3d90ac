package keeper

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/profkeeper/kit"
)

// RegisterMCP registers the profkeeper tools on an MCP server.
func (k *Keeper) RegisterMCP(srv *mcp.Server) {
	k.registerRunTool(srv)
	k.registerLookupTool(srv)
	k.registerRunsTool(srv)
	k.registerEnqueueTool(srv)
	k.registerForgetTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (k *Keeper) register(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	kit.RegisterMCPTool(srv, tool, kit.Logging(k.logger, tool.Name)(endpoint), decode)
}

// --- run ---

type runRequest struct{}

func (k *Keeper) registerRunTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "profkeeper_run",
		Description: "Run one reconciliation pass over the pending queue. Returns the run summary; skipped is true when another run is in progress.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return k.RunOnce(ctx, TriggerManual)
	}
	k.register(srv, tool, endpoint, kit.DecodeJSON[runRequest]())
}

// --- lookup ---

type lookupRequest struct {
	ID string `json:"id"`
}

func (k *Keeper) registerLookupTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "profkeeper_lookup",
		Description: "Return the stored profile record for an identity key.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Profile identity key"},
		}, []string{"id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return k.Lookup(ctx, req.(*lookupRequest).ID)
	}
	k.register(srv, tool, endpoint, kit.DecodeJSON[lookupRequest]())
}

// --- runs ---

type runsRequest struct {
	Limit int `json:"limit,omitempty"`
}

func (k *Keeper) registerRunsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "profkeeper_runs",
		Description: "List recent runs with their counts, newest first.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max runs (default 10)"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		n := req.(*runsRequest).Limit
		if n <= 0 {
			n = 10
		}
		return k.Runs(ctx, n)
	}
	k.register(srv, tool, endpoint, kit.DecodeJSON[runsRequest]())
}

// --- enqueue ---

type enqueueRequest struct {
	Target string `json:"target"`
}

func (k *Keeper) registerEnqueueTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "profkeeper_enqueue",
		Description: "Add a target (identity, display name or profile URL) to the queue as pending.",
		InputSchema: inputSchema(map[string]any{
			"target": map[string]any{"type": "string", "description": "Identity, display name or profile URL"},
		}, []string{"target"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*enqueueRequest)
		pos, err := k.Enqueue(ctx, r.Target)
		if err != nil {
			return nil, err
		}
		return map[string]any{"target": r.Target, "position": pos}, nil
	}
	k.register(srv, tool, endpoint, kit.DecodeJSON[enqueueRequest]())
}

// --- forget ---

type forgetRequest struct {
	ID string `json:"id"`
}

func (k *Keeper) registerForgetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "profkeeper_forget",
		Description: "Delete the stored row of an identity key. Fails while a run is in progress.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Profile identity key"},
		}, []string{"id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		id := req.(*forgetRequest).ID
		removed, err := k.Forget(ctx, id)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "removed": removed}, nil
	}
	k.register(srv, tool, endpoint, kit.DecodeJSON[forgetRequest]())
}
