package bridge

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/openbracket/gdrb/internal/config"
	"github.com/openbracket/gdrb/internal/engine"
	"github.com/openbracket/gdrb/internal/protocol"
)

// inject tags the event synthetic and pushes it into the host input
// pipeline. In os mode, mouse events additionally warp the real cursor;
// hosts without cursor control report ErrUnsupported and the injection
// still proceeds.
func (b *Bridge) inject(ev engine.InputEvent) {
	ev.Synthetic = true
	if b.inputMode == config.InputModeOS &&
		(ev.Kind == engine.EventMouseMotion || ev.Kind == engine.EventMouseButton) {
		if err := b.host.Input().WarpCursor(ev.Pos.X, ev.Pos.Y); err != nil && !errors.Is(err, engine.ErrUnsupported) {
			b.log.Warn("cursor warp failed", "err", err)
		}
	}
	b.host.Input().Inject(ev)
}

func (b *Bridge) handleClick(req protocol.Request, a reqArgs) protocol.Response {
	x, xok := a.num("x")
	y, yok := a.num("y")
	if !xok {
		return badArgs(req.ID, "x")
	}
	if !yok {
		return badArgs(req.ID, "y")
	}
	pos := engine.Vec2{X: x, Y: y}
	b.inject(engine.InputEvent{Kind: engine.EventMouseMotion, Pos: pos})
	b.inject(engine.InputEvent{Kind: engine.EventMouseButton, Pos: pos, Button: engine.MouseLeft, Pressed: true})
	b.deferRelease(engine.InputEvent{Kind: engine.EventMouseButton, Pos: pos, Button: engine.MouseLeft})
	return protocol.Ok(req.ID, nil)
}

func (b *Bridge) handleDrag(req protocol.Request, a reqArgs) protocol.Response {
	from, ok := a.vec2("from")
	if !ok {
		return badArgs(req.ID, "from")
	}
	to, ok := a.vec2("to")
	if !ok {
		return badArgs(req.ID, "to")
	}
	b.inject(engine.InputEvent{Kind: engine.EventMouseMotion, Pos: from})
	b.inject(engine.InputEvent{Kind: engine.EventMouseButton, Pos: from, Button: engine.MouseLeft, Pressed: true})
	b.inject(engine.InputEvent{
		Kind:     engine.EventMouseMotion,
		Pos:      to,
		Relative: engine.Vec2{X: to.X - from.X, Y: to.Y - from.Y},
	})
	b.deferRelease(engine.InputEvent{Kind: engine.EventMouseButton, Pos: to, Button: engine.MouseLeft})
	return protocol.Ok(req.ID, nil)
}

func (b *Bridge) handleScroll(req protocol.Request, a reqArgs) protocol.Response {
	x, xok := a.num("x")
	y, yok := a.num("y")
	if !xok {
		return badArgs(req.ID, "x")
	}
	if !yok {
		return badArgs(req.ID, "y")
	}
	delta := a.numOr("delta", -3)
	button := engine.MouseWheelDown
	if delta > 0 {
		button = engine.MouseWheelUp
	}
	pos := engine.Vec2{X: x, Y: y}
	magnitude := math.Abs(delta)
	b.inject(engine.InputEvent{Kind: engine.EventMouseButton, Pos: pos, Button: button, Pressed: true, Factor: magnitude})
	b.inject(engine.InputEvent{Kind: engine.EventMouseButton, Pos: pos, Button: button, Factor: magnitude})
	return protocol.Ok(req.ID, nil)
}

func (b *Bridge) handleKey(req protocol.Request, a reqArgs) protocol.Response {
	if action, ok := a.str("action"); ok {
		b.inject(engine.InputEvent{Kind: engine.EventAction, Action: action, Pressed: true})
		b.inject(engine.InputEvent{Kind: engine.EventAction, Action: action})
		return protocol.Ok(req.ID, nil)
	}
	keycode, ok := a.num("keycode")
	if !ok || keycode < 0 {
		return protocol.Error(req.ID, protocol.CodeBadArgs, "key needs a non-empty action or a keycode >= 0")
	}
	b.inject(engine.InputEvent{Kind: engine.EventKey, Keycode: int(keycode), Pressed: true})
	b.inject(engine.InputEvent{Kind: engine.EventKey, Keycode: int(keycode)})
	return protocol.Ok(req.ID, nil)
}

func (b *Bridge) handlePressButton(req protocol.Request, a reqArgs) protocol.Response {
	name, ok := a.str("name")
	if !ok {
		return badArgs(req.ID, "name")
	}
	button := findButton(b.host.Root(), name)
	if button == nil {
		return protocol.Error(req.ID, protocol.CodeNotFound, fmt.Sprintf("no button named %q", name))
	}
	// Activate through the engine's own press entry point; some hosts
	// fail signal dispatch for hidden viewports, so fall back to firing
	// the registered listeners directly.
	if _, err := button.Call("press"); err != nil {
		if !errors.Is(err, engine.ErrNoSuchMethod) {
			return protocol.Error(req.ID, protocol.CodeInternal, fmt.Sprintf("press %s: %v", button.Path(), err))
		}
		if _, err := button.Call("emit_signal", "pressed"); err != nil {
			return protocol.Error(req.ID, protocol.CodeInternal, fmt.Sprintf("activate %s: %v", button.Path(), err))
		}
	}
	return protocol.Ok(req.ID, map[string]any{"pressed": button.Path()})
}

// findButton looks for a node whose type contains "Button" and whose name
// matches exactly, depth first.
func findButton(n engine.Node, name string) engine.Node {
	if strings.Contains(n.TypeName(), "Button") && n.Name() == name {
		return n
	}
	for _, c := range n.Children() {
		if found := findButton(c, name); found != nil {
			return found
		}
	}
	return nil
}

func (b *Bridge) handleGesture(req protocol.Request, a reqArgs) protocol.Response {
	gestureType, ok := a.str("type")
	if !ok {
		return badArgs(req.ID, "type")
	}
	params, ok := a.child("params")
	if !ok {
		return badArgs(req.ID, "params")
	}
	center, ok := params.vec2("center")
	if !ok {
		return badArgs(req.ID, "params.center")
	}
	switch gestureType {
	case "pinch":
		scale, ok := params.num("scale")
		if !ok {
			return badArgs(req.ID, "params.scale")
		}
		b.inject(engine.InputEvent{Kind: engine.EventMagnify, Pos: center, Factor: scale})
	case "swipe":
		delta, ok := params.vec2("delta")
		if !ok {
			return badArgs(req.ID, "params.delta")
		}
		b.inject(engine.InputEvent{Kind: engine.EventPan, Pos: center, Relative: delta})
	default:
		return protocol.Error(req.ID, protocol.CodeBadArgs, fmt.Sprintf("unknown gesture type %q", gestureType))
	}
	return protocol.Ok(req.ID, nil)
}

func (b *Bridge) handleGamepad(req protocol.Request, a reqArgs) protocol.Response {
	action, ok := a.str("action")
	if !ok {
		return badArgs(req.ID, "action")
	}
	switch action {
	case "button":
		buttonIdx, ok := a.num("button")
		if !ok {
			return badArgs(req.ID, "button")
		}
		pressed := a.boolOr("pressed", true)
		b.inject(engine.InputEvent{Kind: engine.EventPadButton, Button: int(buttonIdx), Pressed: pressed})
		if pressed {
			b.scheduleInjection(autoReleaseDelay, engine.InputEvent{Kind: engine.EventPadButton, Button: int(buttonIdx)})
		}
	case "axis":
		axis, ok := a.num("axis")
		if !ok {
			return badArgs(req.ID, "axis")
		}
		value, ok := a.num("value")
		if !ok {
			return badArgs(req.ID, "value")
		}
		b.inject(engine.InputEvent{Kind: engine.EventPadAxis, Axis: int(axis), Value: value})
	case "vibrate":
		weak := a.numOr("weak", 0.5)
		strong := a.numOr("strong", 0.5)
		duration := time.Duration(a.numOr("duration_ms", 300)) * time.Millisecond
		if err := b.host.Input().Vibrate(weak, strong, duration); err != nil && !errors.Is(err, engine.ErrUnsupported) {
			return protocol.Error(req.ID, protocol.CodeInternal, fmt.Sprintf("vibrate: %v", err))
		}
	default:
		return protocol.Error(req.ID, protocol.CodeBadArgs, fmt.Sprintf("unknown gamepad action %q", action))
	}
	return protocol.Ok(req.ID, nil)
}
