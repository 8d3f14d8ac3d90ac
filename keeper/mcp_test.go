package keeper

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testImpl = &mcp.Implementation{Name: "profkeeper-test", Version: "0.1.0"}

// mcpSession registers the tools of h's Keeper and returns a connected
// client session.
func mcpSession(t *testing.T, h *harness) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testImpl, nil)
	h.k.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) *mcp.CallToolResult {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return result
}

// callJSON invokes a tool that must succeed and decodes its JSON text.
func callJSON(t *testing.T, session *mcp.ClientSession, name string, args any, out any) {
	t.Helper()
	result := callTool(t, session, name, args)
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	if err := json.Unmarshal([]byte(tc.Text), out); err != nil {
		t.Fatalf("CallTool(%s): decode %q: %v", name, tc.Text, err)
	}
}

func TestMCP_Tools(t *testing.T) {
	h := newHarness(t, nil)
	h.prod.bundles["101"] = sara("Lahore")
	session := mcpSession(t, h)

	var enq map[string]any
	callJSON(t, session, "profkeeper_enqueue", map[string]any{"target": "101"}, &enq)
	if enq["position"] != float64(0) {
		t.Fatalf("enqueue = %v", enq)
	}

	var sum map[string]any
	callJSON(t, session, "profkeeper_run", map[string]any{}, &sum)
	if sum["attempted"] != float64(1) || sum["new"] != float64(1) {
		t.Fatalf("run = %v", sum)
	}

	var rec map[string]string
	callJSON(t, session, "profkeeper_lookup", map[string]any{"id": "101"}, &rec)
	if rec["NAME"] != "Sara" || rec["STATUS"] != "Active" {
		t.Fatalf("lookup = %v", rec)
	}

	var runs []map[string]any
	callJSON(t, session, "profkeeper_runs", map[string]any{}, &runs)
	if len(runs) != 1 || runs[0]["trigger"] != "manual" {
		t.Fatalf("runs = %v", runs)
	}

	var forget map[string]any
	callJSON(t, session, "profkeeper_forget", map[string]any{"id": "101"}, &forget)
	if forget["removed"] != true {
		t.Fatalf("forget = %v", forget)
	}

	res := callTool(t, session, "profkeeper_lookup", map[string]any{"id": "101"})
	if !res.IsError {
		t.Fatal("lookup of a forgotten profile should be a tool error")
	}
}

func TestMCP_EnqueueEmptyTarget(t *testing.T) {
	h := newHarness(t, nil)
	session := mcpSession(t, h)
	res := callTool(t, session, "profkeeper_enqueue", map[string]any{"target": "  "})
	if !res.IsError {
		t.Fatal("empty target should be a tool error")
	}
}
