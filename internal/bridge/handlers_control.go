package bridge

import (
	"errors"
	"fmt"

	"github.com/openbracket/gdrb/internal/engine"
	"github.com/openbracket/gdrb/internal/protocol"
)

func (b *Bridge) handleSetProperty(req protocol.Request, a reqArgs) protocol.Response {
	n, failure, ok := b.lookupNode(req.ID, a)
	if !ok {
		return failure
	}
	prop, ok := a.str("property")
	if !ok {
		return badArgs(req.ID, "property")
	}
	value, ok := a.raw("value")
	if !ok {
		return badArgs(req.ID, "value")
	}
	if err := n.Set(prop, value); err != nil {
		if errors.Is(err, engine.ErrNoSuchProperty) {
			return protocol.Error(req.ID, protocol.CodeNotFound, fmt.Sprintf("node %q has no property %q", n.Path(), prop))
		}
		return protocol.Error(req.ID, protocol.CodeInternal, fmt.Sprintf("write %s.%s: %v", n.Path(), prop, err))
	}
	return protocol.Ok(req.ID, nil)
}

func (b *Bridge) handleCallMethod(req protocol.Request, a reqArgs) protocol.Response {
	n, failure, ok := b.lookupNode(req.ID, a)
	if !ok {
		return failure
	}
	method, ok := a.str("method")
	if !ok {
		return badArgs(req.ID, "method")
	}
	callArgs, _ := a.list("args")
	result, err := n.Call(method, callArgs...)
	if err != nil {
		if errors.Is(err, engine.ErrNoSuchMethod) {
			return protocol.Error(req.ID, protocol.CodeNotFound, fmt.Sprintf("node %q has no method %q", n.Path(), method))
		}
		return protocol.Error(req.ID, protocol.CodeInternal, fmt.Sprintf("call %s.%s: %v", n.Path(), method, err))
	}
	return protocol.Ok(req.ID, map[string]any{"result": engine.MarshalValue(result)})
}

// handleQuit arms termination for the next tick so this response reaches
// the socket before the host starts tearing down.
func (b *Bridge) handleQuit(req protocol.Request) protocol.Response {
	b.quitPending = true
	return protocol.Ok(req.ID, map[string]any{"quitting": true})
}

func (b *Bridge) handleRunCustomCommand(req protocol.Request, a reqArgs) protocol.Response {
	name, ok := a.str("name")
	if !ok {
		return badArgs(req.ID, "name")
	}
	fn, ok := b.host.CustomCommand(name)
	if !ok {
		return protocol.Error(req.ID, protocol.CodeNotFound, fmt.Sprintf("no custom command %q registered", name))
	}
	callArgs, _ := a.list("args")
	result, err := fn(callArgs)
	if err != nil {
		return protocol.Error(req.ID, protocol.CodeInternal, fmt.Sprintf("%s: %v", name, err))
	}
	return protocol.Ok(req.ID, map[string]any{"result": engine.MarshalValue(result)})
}

func (b *Bridge) handleEval(req protocol.Request, a reqArgs) protocol.Response {
	expr, ok := a.str("expr")
	if !ok {
		return badArgs(req.ID, "expr")
	}
	result, err := b.host.Eval(expr)
	if err != nil {
		return protocol.Error(req.ID, protocol.CodeInternal, fmt.Sprintf("eval: %v", err))
	}
	return protocol.Ok(req.ID, map[string]any{"result": result})
}
