// Package mcpserver exposes bridge commands as MCP tools over stdio
// JSON-RPC. Each game_* tool forwards one grb/1 command to a live
// bridge; the tool list is assembled from the session tier, so an agent
// is only ever offered what the bridge would admit.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/openbracket/gdrb/internal/client"
	"github.com/openbracket/gdrb/internal/command"
	"github.com/openbracket/gdrb/internal/config"
)

// bridgeCaller is the slice of client.Client the tool handlers use.
// Tests substitute a scripted fake.
type bridgeCaller interface {
	Call(ctx context.Context, cmd string, args map[string]any) (client.Result, error)
}

// Server holds the bridge connection and the session authorization
// reported by auth_info.
type Server struct {
	bridge bridgeCaller
	tier   int
	danger bool
}

// NewServer wraps an established bridge connection. tier and danger are
// what the bridge reported for this session.
func NewServer(bridge bridgeCaller, tier int, danger bool) *Server {
	return &Server{bridge: bridge, tier: command.ClampTier(tier), danger: danger}
}

// Options selects how Run reaches a bridge. When Spec.Bin is set the
// host is launched and its banner session adopted; otherwise Run
// attaches to an already-running bridge on the loopback port.
type Options struct {
	Port  int
	Token string
	Spec  client.LaunchSpec
}

// Run connects to (or launches) a bridge, asks auth_info for the
// session tier, and serves MCP over stdio until stdin closes. In
// launch mode the host is asked to quit once the MCP session ends.
func Run(opts Options) error {
	ctx := context.Background()

	var (
		conn    *client.Client
		session *client.Session
	)
	if opts.Spec.Bin != "" {
		launcher := &client.Launcher{}
		sess, err := launcher.Launch(ctx, opts.Spec)
		if err != nil {
			return fmt.Errorf("launch host: %w", err)
		}
		session = sess
		conn = sess.Client
	} else {
		addr := fmt.Sprintf("127.0.0.1:%d", opts.Port)
		c, err := client.Dial(ctx, addr, opts.Token)
		if err != nil {
			return fmt.Errorf("attach to bridge at %s: %w", addr, err)
		}
		conn = c
	}

	s, err := probe(ctx, conn)
	if err != nil {
		if session != nil {
			session.Kill()
		} else {
			conn.Close()
		}
		return err
	}

	mcpServer := server.NewMCPServer(
		"gdrb",
		config.Version,
		server.WithToolCapabilities(true),
	)
	mcpServer.AddTools(s.tools()...)

	stdio := server.NewStdioServer(mcpServer)
	stdio.SetErrorLogger(log.New(os.Stderr, "[mcp] ", log.LstdFlags))

	err = stdio.Listen(ctx, os.Stdin, os.Stdout)

	if session != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := session.Shutdown(shutdownCtx); err == nil {
			err = serr
		}
	} else if cerr := conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// probe learns the session tier and danger flag from auth_info, the one
// command every session answers without a token.
func probe(ctx context.Context, conn bridgeCaller) (*Server, error) {
	res, err := conn.Call(ctx, "auth_info", nil)
	if err != nil {
		return nil, fmt.Errorf("auth_info: %w", err)
	}
	if res.Err != nil {
		return nil, fmt.Errorf("auth_info: %s: %s", res.Err.Code, res.Err.Message)
	}
	tier := command.TierObserve
	if v, ok := res.Field("tier").(float64); ok {
		tier = int(v)
	}
	danger, _ := res.Field("danger_enabled").(bool)
	return NewServer(conn, tier, danger), nil
}

// tools assembles the tool list for this session, mirroring what the
// bridge's capabilities command reports. eval additionally requires the
// danger flag, matching the bridge's own double gate.
func (s *Server) tools() []server.ServerTool {
	tools := []server.ServerTool{
		{Tool: pingTool(), Handler: s.handlePing},
		{Tool: screenshotTool(), Handler: s.handleScreenshot},
		{Tool: sceneTreeTool(), Handler: s.handleSceneTree},
		{Tool: getPropertyTool(), Handler: s.handleGetProperty},
		{Tool: runtimeInfoTool(), Handler: s.handleRuntimeInfo},
		{Tool: errorsTool(), Handler: s.handleErrors},
		{Tool: findNodesTool(), Handler: s.handleFindNodes},
		{Tool: audioStateTool(), Handler: s.handleAudioState},
		{Tool: networkStateTool(), Handler: s.handleNetworkState},
		{Tool: performanceTool(), Handler: s.handlePerformance},
		{Tool: waitForTool(), Handler: s.handleWaitFor},
	}
	if s.tier >= command.TierInput {
		tools = append(tools,
			server.ServerTool{Tool: clickTool(), Handler: s.handleClick},
			server.ServerTool{Tool: dragTool(), Handler: s.handleDrag},
			server.ServerTool{Tool: scrollTool(), Handler: s.handleScroll},
			server.ServerTool{Tool: keyTool(), Handler: s.handleKey},
			server.ServerTool{Tool: pressButtonTool(), Handler: s.handlePressButton},
			server.ServerTool{Tool: gestureTool(), Handler: s.handleGesture},
			server.ServerTool{Tool: gamepadTool(), Handler: s.handleGamepad},
		)
	}
	if s.tier >= command.TierControl {
		tools = append(tools,
			server.ServerTool{Tool: setPropertyTool(), Handler: s.handleSetProperty},
			server.ServerTool{Tool: callMethodTool(), Handler: s.handleCallMethod},
			server.ServerTool{Tool: customCommandTool(), Handler: s.handleCustomCommand},
			server.ServerTool{Tool: quitTool(), Handler: s.handleQuit},
		)
	}
	if s.tier >= command.TierDanger && s.danger {
		tools = append(tools, server.ServerTool{Tool: evalTool(), Handler: s.handleEval})
	}
	return tools
}

// forward sends one command to the bridge and folds both failure layers
// into the tool result: transport errors and bridge error replies each
// surface as an MCP tool error.
func (s *Server) forward(ctx context.Context, cmd string, args map[string]any) (*mcp.CallToolResult, error) {
	res, err := s.bridge.Call(ctx, cmd, args)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", cmd, err)), nil
	}
	if res.Err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s (%s)", cmd, res.Err.Message, res.Err.Code)), nil
	}
	return resultJSON(res.Data)
}

func resultJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
