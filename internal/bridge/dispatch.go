package bridge

import (
	"crypto/subtle"
	"fmt"

	"github.com/openbracket/gdrb/internal/command"
	"github.com/openbracket/gdrb/internal/protocol"
)

// Tick runs one frame of bridge work on the engine's main thread: honor a
// quit requested last frame, inject the deferred mouse release, fire due
// timed injections, poll pending waits, then drain and dispatch every
// request the worker has queued.
func (b *Bridge) Tick() {
	if b.quitPending {
		b.quitPending = false
		b.host.RequestQuit()
	}
	b.applyDeferredRelease()
	b.fireTimedInjections()
	b.pollWaits()
	for _, item := range b.in.drain() {
		b.dispatch(item)
	}
}

// dispatch routes one envelope through the authorization chain. Responses
// are enqueued in dispatch order; only wait_for resolves out of band.
func (b *Bridge) dispatch(item inbound) {
	if item.werr != nil {
		b.reply(protocol.Error(item.werr.ID, item.werr.Code, item.werr.Message))
		return
	}
	req := item.req
	spec, known := command.Lookup(req.Cmd)
	if !known {
		b.reply(protocol.Error(req.ID, protocol.CodeUnknownCmd, fmt.Sprintf("unknown command %q", req.Cmd)))
		return
	}
	if !spec.TokenExempt && !tokenMatches(req.Token, b.token) {
		b.reply(protocol.Error(req.ID, protocol.CodeBadToken, "missing or invalid token"))
		return
	}
	if spec.Tier > b.tier {
		b.reply(protocol.ErrorExtra(req.ID, protocol.CodeTierDenied,
			fmt.Sprintf("%s requires tier %d, session runs at tier %d", req.Cmd, spec.Tier, b.tier),
			map[string]any{"tier_required": spec.Tier}))
		return
	}
	if req.Cmd == "eval" && !b.danger {
		b.reply(protocol.Error(req.ID, protocol.CodeDangerDisabled, "eval is disabled; relaunch with GDRB_ENABLE_DANGER=1"))
		return
	}
	if req.Cmd == "wait_for" {
		b.scheduleWait(req)
		return
	}
	b.reply(b.invoke(req))
}

// invoke runs the handler for a fully authorized request. Handler panics
// are contained here so a buggy host adapter cannot take down the frame
// loop.
func (b *Bridge) invoke(req protocol.Request) (resp protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("handler panicked", "cmd", req.Cmd, "panic", r)
			resp = protocol.Error(req.ID, protocol.CodeInternal, fmt.Sprintf("internal fault handling %s", req.Cmd))
		}
	}()
	a := reqArgs(req.Args)
	switch req.Cmd {
	case "ping":
		return b.handlePing(req)
	case "auth_info":
		return b.handleAuthInfo(req)
	case "capabilities":
		return b.handleCapabilities(req)
	case "screenshot":
		return b.handleScreenshot(req)
	case "scene_tree":
		return b.handleSceneTree(req, a)
	case "get_property":
		return b.handleGetProperty(req, a)
	case "runtime_info":
		return b.handleRuntimeInfo(req)
	case "get_errors":
		return b.handleGetErrors(req, a)
	case "find_nodes":
		return b.handleFindNodes(req, a)
	case "audio_state":
		return b.handleTelemetry(req, b.host.AudioState)
	case "network_state":
		return b.handleTelemetry(req, b.host.NetworkState)
	case "grb_performance":
		return b.handleTelemetry(req, b.host.PerformanceMetrics)
	case "click":
		return b.handleClick(req, a)
	case "key":
		return b.handleKey(req, a)
	case "press_button":
		return b.handlePressButton(req, a)
	case "drag":
		return b.handleDrag(req, a)
	case "scroll":
		return b.handleScroll(req, a)
	case "gesture":
		return b.handleGesture(req, a)
	case "gamepad":
		return b.handleGamepad(req, a)
	case "set_property":
		return b.handleSetProperty(req, a)
	case "call_method":
		return b.handleCallMethod(req, a)
	case "quit":
		return b.handleQuit(req)
	case "run_custom_command":
		return b.handleRunCustomCommand(req, a)
	case "eval":
		return b.handleEval(req, a)
	}
	// Unreachable while the registry and this switch agree.
	return protocol.Error(req.ID, protocol.CodeInternal, fmt.Sprintf("no handler for %s", req.Cmd))
}

// reply serializes and enqueues one response line.
func (b *Bridge) reply(resp protocol.Response) {
	line, err := resp.MarshalLine()
	if err != nil {
		b.log.Error("response marshal failed", "id", resp.ID, "err", err)
		line, _ = protocol.Error(resp.ID, protocol.CodeInternal, "response serialization failed").MarshalLine()
	}
	b.out.push(line)
}

func tokenMatches(provided, session string) bool {
	return subtle.ConstantTimeCompare([]byte(provided), []byte(session)) == 1
}
