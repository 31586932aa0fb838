package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// --- Tool Definitions ---

func setPropertyTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"game_set_property",
		"Write one property on a scene node. The value is any JSON value, including null.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"node": {
					"type": "string",
					"description": "Node path relative to the scene root"
				},
				"property": {
					"type": "string",
					"description": "Property name on the node"
				},
				"value": {
					"description": "New JSON value for the property"
				}
			},
			"required": ["node", "property", "value"]
		}`),
	)
}

func callMethodTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"game_call_method",
		"Call a method on a scene node with JSON arguments and return its result.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"node": {
					"type": "string",
					"description": "Node path relative to the scene root"
				},
				"method": {
					"type": "string",
					"description": "Method name on the node"
				},
				"args": {
					"type": "array",
					"description": "Positional arguments (optional)"
				}
			},
			"required": ["node", "method"]
		}`),
	)
}

func customCommandTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"game_custom_command",
		"Invoke a command the game registered with the bridge at startup.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {
					"type": "string",
					"description": "Registered command name"
				},
				"args": {
					"type": "array",
					"description": "Positional arguments (optional)"
				}
			},
			"required": ["name"]
		}`),
	)
}

func quitTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"game_quit",
		"Ask the game to terminate after the current frame. The acknowledgement arrives before the process exits.",
		json.RawMessage(`{"type": "object", "properties": {}}`),
	)
}

func evalTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"game_eval",
		"Evaluate an expression inside the game and return its string form. Only offered when the session was started with the danger flag.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"expr": {
					"type": "string",
					"description": "Expression to evaluate"
				}
			},
			"required": ["expr"]
		}`),
	)
}

// --- Tool Handlers ---

// setPropertyArgs mirrors the JSON schema for game_set_property. Value
// stays raw so an explicit null survives the round trip.
type setPropertyArgs struct {
	Node     string          `json:"node"`
	Property string          `json:"property"`
	Value    json.RawMessage `json:"value"`
}

func (s *Server) handleSetProperty(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args setPropertyArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Node == "" || args.Property == "" || len(args.Value) == 0 {
		return mcp.NewToolResultError("node, property, and value are required"), nil
	}
	return s.forward(ctx, "set_property", map[string]any{
		"node":     args.Node,
		"property": args.Property,
		"value":    args.Value,
	})
}

// callMethodArgs mirrors the JSON schema for game_call_method.
type callMethodArgs struct {
	Node   string `json:"node"`
	Method string `json:"method"`
	Args   []any  `json:"args,omitempty"`
}

func (s *Server) handleCallMethod(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args callMethodArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Node == "" || args.Method == "" {
		return mcp.NewToolResultError("node and method are required"), nil
	}
	fwd := map[string]any{"node": args.Node, "method": args.Method}
	if args.Args != nil {
		fwd["args"] = args.Args
	}
	return s.forward(ctx, "call_method", fwd)
}

// customCommandArgs mirrors the JSON schema for game_custom_command.
type customCommandArgs struct {
	Name string `json:"name"`
	Args []any  `json:"args,omitempty"`
}

func (s *Server) handleCustomCommand(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args customCommandArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}
	fwd := map[string]any{"name": args.Name}
	if args.Args != nil {
		fwd["args"] = args.Args
	}
	return s.forward(ctx, "run_custom_command", fwd)
}

func (s *Server) handleQuit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.forward(ctx, "quit", nil)
}

// evalArgs mirrors the JSON schema for game_eval.
type evalArgs struct {
	Expr string `json:"expr"`
}

func (s *Server) handleEval(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args evalArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Expr == "" {
		return mcp.NewToolResultError("expr is required"), nil
	}
	return s.forward(ctx, "eval", map[string]any{"expr": args.Expr})
}
