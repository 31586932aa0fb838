package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// --- Tool Definitions ---

func pingTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"game_ping",
		"Check that the game bridge is alive and answering requests.",
		json.RawMessage(`{"type": "object", "properties": {}}`),
	)
}

func screenshotTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"game_screenshot",
		"Capture the game viewport as a base64-encoded PNG with its dimensions.",
		json.RawMessage(`{"type": "object", "properties": {}}`),
	)
}

func sceneTreeTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"game_scene_tree",
		"Dump the scene tree as nested name/type/children records.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"max_depth": {
					"type": "integer",
					"description": "Depth at which children are truncated (default 10)"
				}
			}
		}`),
	)
}

func getPropertyTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"game_get_property",
		"Read one property from a scene node and return its JSON value.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"node": {
					"type": "string",
					"description": "Node path relative to the scene root, e.g. Main/Player"
				},
				"property": {
					"type": "string",
					"description": "Property name on the node"
				}
			},
			"required": ["node", "property"]
		}`),
	)
}

func runtimeInfoTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"game_runtime_info",
		"Report engine version, current scene, FPS, frame counters, node count, and diagnostics totals.",
		json.RawMessage(`{"type": "object", "properties": {}}`),
	)
}

func errorsTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"game_errors",
		"Fetch buffered engine errors and warnings. Pass the next_index from the previous call as since_index to read incrementally.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"since_index": {
					"type": "integer",
					"description": "Return only entries at or after this index (default 0)"
				}
			}
		}`),
	)
}

func findNodesTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"game_find_nodes",
		"Search the scene tree by name substring (case-insensitive, * matches all), exact type, or group membership. At least one predicate is required.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {
					"type": "string",
					"description": "Name substring to match, or * for any"
				},
				"type": {
					"type": "string",
					"description": "Exact node type, e.g. Button"
				},
				"group": {
					"type": "string",
					"description": "Group the node must belong to"
				},
				"limit": {
					"type": "integer",
					"description": "Maximum matches to return (default 50)"
				}
			}
		}`),
	)
}

func audioStateTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"game_audio_state",
		"Report the host audio snapshot: buses, volumes, and playing streams.",
		json.RawMessage(`{"type": "object", "properties": {}}`),
	)
}

func networkStateTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"game_network_state",
		"Report the multiplayer and network snapshot.",
		json.RawMessage(`{"type": "object", "properties": {}}`),
	)
}

func performanceTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"game_performance",
		"Report frame timing, memory, and object counters.",
		json.RawMessage(`{"type": "object", "properties": {}}`),
	)
}

func waitForTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"game_wait_for",
		"Wait until a node property equals a value, or time out. Returns matched plus elapsed_ms; on timeout also the last observed value.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"node": {
					"type": "string",
					"description": "Node path relative to the scene root"
				},
				"property": {
					"type": "string",
					"description": "Property to poll each frame"
				},
				"value": {
					"description": "JSON value the property must equal"
				},
				"timeout_ms": {
					"type": "integer",
					"description": "Give up after this many milliseconds (default 5000)"
				}
			},
			"required": ["node", "property", "value"]
		}`),
	)
}

// --- Tool Handlers ---

func (s *Server) handlePing(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.forward(ctx, "ping", nil)
}

func (s *Server) handleScreenshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.forward(ctx, "screenshot", nil)
}

// sceneTreeArgs mirrors the JSON schema for game_scene_tree.
type sceneTreeArgs struct {
	MaxDepth *int `json:"max_depth,omitempty"`
}

func (s *Server) handleSceneTree(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args sceneTreeArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	var fwd map[string]any
	if args.MaxDepth != nil {
		fwd = map[string]any{"max_depth": *args.MaxDepth}
	}
	return s.forward(ctx, "scene_tree", fwd)
}

// nodePropertyArgs is shared by game_get_property and game_wait_for's
// required pair.
type nodePropertyArgs struct {
	Node     string `json:"node"`
	Property string `json:"property"`
}

func (s *Server) handleGetProperty(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args nodePropertyArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Node == "" || args.Property == "" {
		return mcp.NewToolResultError("node and property are required"), nil
	}
	return s.forward(ctx, "get_property", map[string]any{
		"node":     args.Node,
		"property": args.Property,
	})
}

func (s *Server) handleRuntimeInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.forward(ctx, "runtime_info", nil)
}

// errorsArgs mirrors the JSON schema for game_errors.
type errorsArgs struct {
	SinceIndex *int `json:"since_index,omitempty"`
}

func (s *Server) handleErrors(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args errorsArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	var fwd map[string]any
	if args.SinceIndex != nil {
		fwd = map[string]any{"since_index": *args.SinceIndex}
	}
	return s.forward(ctx, "get_errors", fwd)
}

// findNodesArgs mirrors the JSON schema for game_find_nodes.
type findNodesArgs struct {
	Name  string `json:"name,omitempty"`
	Type  string `json:"type,omitempty"`
	Group string `json:"group,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

func (s *Server) handleFindNodes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args findNodesArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Name == "" && args.Type == "" && args.Group == "" {
		return mcp.NewToolResultError("at least one of name, type, group is required"), nil
	}
	fwd := map[string]any{}
	if args.Name != "" {
		fwd["name"] = args.Name
	}
	if args.Type != "" {
		fwd["type"] = args.Type
	}
	if args.Group != "" {
		fwd["group"] = args.Group
	}
	if args.Limit > 0 {
		fwd["limit"] = args.Limit
	}
	return s.forward(ctx, "find_nodes", fwd)
}

func (s *Server) handleAudioState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.forward(ctx, "audio_state", nil)
}

func (s *Server) handleNetworkState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.forward(ctx, "network_state", nil)
}

func (s *Server) handlePerformance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.forward(ctx, "grb_performance", nil)
}

// waitForArgs mirrors the JSON schema for game_wait_for. Value stays raw
// so an explicit null survives the round trip to the bridge.
type waitForArgs struct {
	Node      string          `json:"node"`
	Property  string          `json:"property"`
	Value     json.RawMessage `json:"value"`
	TimeoutMS int             `json:"timeout_ms,omitempty"`
}

func (s *Server) handleWaitFor(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args waitForArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Node == "" || args.Property == "" || len(args.Value) == 0 {
		return mcp.NewToolResultError("node, property, and value are required"), nil
	}
	fwd := map[string]any{
		"node":     args.Node,
		"property": args.Property,
		"value":    args.Value,
	}
	if args.TimeoutMS > 0 {
		fwd["timeout_ms"] = args.TimeoutMS
	}
	return s.forward(ctx, "wait_for", fwd)
}
