package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// --- Tool Definitions ---

func clickTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"game_click",
		"Click the left mouse button at viewport coordinates. The press lands this frame and the release on the next one.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"x": {"type": "number", "description": "Viewport x coordinate"},
				"y": {"type": "number", "description": "Viewport y coordinate"}
			},
			"required": ["x", "y"]
		}`),
	)
}

func dragTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"game_drag",
		"Drag the left mouse button from one viewport point to another.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"from": {
					"type": "array",
					"items": {"type": "number"},
					"minItems": 2,
					"maxItems": 2,
					"description": "Start point as [x, y]"
				},
				"to": {
					"type": "array",
					"items": {"type": "number"},
					"minItems": 2,
					"maxItems": 2,
					"description": "End point as [x, y]"
				}
			},
			"required": ["from", "to"]
		}`),
	)
}

func scrollTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"game_scroll",
		"Scroll the mouse wheel at a viewport position. Negative delta scrolls down, positive up.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"x": {"type": "number", "description": "Viewport x coordinate"},
				"y": {"type": "number", "description": "Viewport y coordinate"},
				"delta": {"type": "number", "description": "Wheel steps, sign is direction (default -3)"}
			},
			"required": ["x", "y"]
		}`),
	)
}

func keyTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"game_key",
		"Tap a key, addressed by engine action name or raw keycode. Exactly one of action or keycode is required.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"action": {"type": "string", "description": "Engine input action, e.g. ui_accept"},
				"keycode": {"type": "integer", "description": "Raw key code"}
			}
		}`),
	)
}

func pressButtonTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"game_press_button",
		"Activate a named button node through the engine's own press entry point.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {"type": "string", "description": "Button node name, matched exactly"}
			},
			"required": ["name"]
		}`),
	)
}

func gestureTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"game_gesture",
		"Inject a touch gesture. pinch needs params.center and params.scale; swipe needs params.center and params.delta.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"type": {
					"type": "string",
					"enum": ["pinch", "swipe"],
					"description": "Gesture kind"
				},
				"params": {
					"type": "object",
					"description": "Gesture parameters: center [x,y], plus scale (pinch) or delta [x,y] (swipe)"
				}
			},
			"required": ["type", "params"]
		}`),
	)
}

func gamepadTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"game_gamepad",
		"Drive a virtual gamepad. button presses auto-release after 100ms unless pressed:false is sent explicitly; axis moves a stick; vibrate pulses the motors.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"action": {
					"type": "string",
					"enum": ["button", "axis", "vibrate"],
					"description": "What to do with the pad"
				},
				"button": {"type": "integer", "description": "Button index (action=button)"},
				"pressed": {"type": "boolean", "description": "Press or release (default true)"},
				"axis": {"type": "integer", "description": "Axis index (action=axis)"},
				"value": {"type": "number", "description": "Axis position, -1 to 1 (action=axis)"},
				"weak": {"type": "number", "description": "Weak motor strength 0-1 (action=vibrate)"},
				"strong": {"type": "number", "description": "Strong motor strength 0-1 (action=vibrate)"},
				"duration_ms": {"type": "integer", "description": "Vibration length (default 300)"}
			},
			"required": ["action"]
		}`),
	)
}

// --- Tool Handlers ---

// clickArgs mirrors the JSON schema for game_click. Coordinates are
// pointers so (0, 0) stays distinguishable from absent.
type clickArgs struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

func (s *Server) handleClick(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args clickArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.X == nil || args.Y == nil {
		return mcp.NewToolResultError("x and y are required"), nil
	}
	return s.forward(ctx, "click", map[string]any{"x": *args.X, "y": *args.Y})
}

// dragArgs mirrors the JSON schema for game_drag.
type dragArgs struct {
	From []float64 `json:"from"`
	To   []float64 `json:"to"`
}

func (s *Server) handleDrag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args dragArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if len(args.From) != 2 || len(args.To) != 2 {
		return mcp.NewToolResultError("from and to must each be a [x, y] pair"), nil
	}
	return s.forward(ctx, "drag", map[string]any{"from": args.From, "to": args.To})
}

// scrollArgs mirrors the JSON schema for game_scroll.
type scrollArgs struct {
	X     *float64 `json:"x"`
	Y     *float64 `json:"y"`
	Delta *float64 `json:"delta,omitempty"`
}

func (s *Server) handleScroll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args scrollArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.X == nil || args.Y == nil {
		return mcp.NewToolResultError("x and y are required"), nil
	}
	fwd := map[string]any{"x": *args.X, "y": *args.Y}
	if args.Delta != nil {
		fwd["delta"] = *args.Delta
	}
	return s.forward(ctx, "scroll", fwd)
}

// keyArgs mirrors the JSON schema for game_key.
type keyArgs struct {
	Action  string   `json:"action,omitempty"`
	Keycode *float64 `json:"keycode,omitempty"`
}

func (s *Server) handleKey(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args keyArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Action == "" && args.Keycode == nil {
		return mcp.NewToolResultError("one of action or keycode is required"), nil
	}
	fwd := map[string]any{}
	if args.Action != "" {
		fwd["action"] = args.Action
	}
	if args.Keycode != nil {
		fwd["keycode"] = *args.Keycode
	}
	return s.forward(ctx, "key", fwd)
}

// pressButtonArgs mirrors the JSON schema for game_press_button.
type pressButtonArgs struct {
	Name string `json:"name"`
}

func (s *Server) handlePressButton(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args pressButtonArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}
	return s.forward(ctx, "press_button", map[string]any{"name": args.Name})
}

// gestureArgs mirrors the JSON schema for game_gesture. Params pass
// through untyped; the bridge validates the per-gesture shape.
type gestureArgs struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params"`
}

func (s *Server) handleGesture(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args gestureArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Type == "" || args.Params == nil {
		return mcp.NewToolResultError("type and params are required"), nil
	}
	return s.forward(ctx, "gesture", map[string]any{"type": args.Type, "params": args.Params})
}

// gamepadArgs mirrors the JSON schema for game_gamepad. Optional fields
// are pointers so only what the caller sent reaches the bridge.
type gamepadArgs struct {
	Action     string   `json:"action"`
	Button     *int     `json:"button,omitempty"`
	Pressed    *bool    `json:"pressed,omitempty"`
	Axis       *int     `json:"axis,omitempty"`
	Value      *float64 `json:"value,omitempty"`
	Weak       *float64 `json:"weak,omitempty"`
	Strong     *float64 `json:"strong,omitempty"`
	DurationMS *int     `json:"duration_ms,omitempty"`
}

func (s *Server) handleGamepad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args gamepadArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Action == "" {
		return mcp.NewToolResultError("action is required"), nil
	}
	fwd := map[string]any{"action": args.Action}
	if args.Button != nil {
		fwd["button"] = *args.Button
	}
	if args.Pressed != nil {
		fwd["pressed"] = *args.Pressed
	}
	if args.Axis != nil {
		fwd["axis"] = *args.Axis
	}
	if args.Value != nil {
		fwd["value"] = *args.Value
	}
	if args.Weak != nil {
		fwd["weak"] = *args.Weak
	}
	if args.Strong != nil {
		fwd["strong"] = *args.Strong
	}
	if args.DurationMS != nil {
		fwd["duration_ms"] = *args.DurationMS
	}
	return s.forward(ctx, "gamepad", fwd)
}
