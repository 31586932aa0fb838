package bridge

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/openbracket/gdrb/internal/command"
	"github.com/openbracket/gdrb/internal/engine"
	"github.com/openbracket/gdrb/internal/protocol"
)

func (b *Bridge) handlePing(req protocol.Request) protocol.Response {
	return protocol.Ok(req.ID, map[string]any{"pong": true})
}

func (b *Bridge) handleAuthInfo(req protocol.Request) protocol.Response {
	return protocol.Ok(req.ID, map[string]any{
		"proto":          protocol.ProtoVersion,
		"tier":           b.tier,
		"danger_enabled": b.danger,
	})
}

func (b *Bridge) handleCapabilities(req protocol.Request) protocol.Response {
	return protocol.Ok(req.ID, map[string]any{
		"tier":     b.tier,
		"commands": command.ForTier(b.tier),
	})
}

func (b *Bridge) handleScreenshot(req protocol.Request) protocol.Response {
	img, err := b.host.CapturePNG()
	if err != nil {
		return protocol.Error(req.ID, protocol.CodeInternal, fmt.Sprintf("viewport capture failed: %v", err))
	}
	return protocol.Ok(req.ID, map[string]any{
		"width":      img.Width,
		"height":     img.Height,
		"png_base64": base64.StdEncoding.EncodeToString(img.PNG),
	})
}

func (b *Bridge) handleSceneTree(req protocol.Request, a reqArgs) protocol.Response {
	depth := a.intOr("max_depth", 10)
	if depth < 0 {
		depth = 0
	}
	return protocol.Ok(req.ID, map[string]any{"tree": nodeTree(b.host.Root(), depth)})
}

// nodeTree walks the scene recursively. Children are truncated to an
// empty list once the depth budget runs out, so the shape of every node
// record stays uniform.
func nodeTree(n engine.Node, depth int) map[string]any {
	children := []any{}
	if depth > 0 {
		for _, c := range n.Children() {
			children = append(children, nodeTree(c, depth-1))
		}
	}
	return map[string]any{
		"name":     n.Name(),
		"type":     n.TypeName(),
		"children": children,
	}
}

func (b *Bridge) handleGetProperty(req protocol.Request, a reqArgs) protocol.Response {
	n, failure, ok := b.lookupNode(req.ID, a)
	if !ok {
		return failure
	}
	prop, ok := a.str("property")
	if !ok {
		return badArgs(req.ID, "property")
	}
	v, err := n.Get(prop)
	if err != nil {
		if errors.Is(err, engine.ErrNoSuchProperty) {
			return protocol.Error(req.ID, protocol.CodeNotFound, fmt.Sprintf("node %q has no property %q", n.Path(), prop))
		}
		return protocol.Error(req.ID, protocol.CodeInternal, fmt.Sprintf("read %s.%s: %v", n.Path(), prop, err))
	}
	return protocol.Ok(req.ID, map[string]any{"value": engine.MarshalValue(v)})
}

func (b *Bridge) handleRuntimeInfo(req protocol.Request) protocol.Response {
	info := b.host.Info()
	errCount, warnCount := b.ring.Counts()
	return protocol.Ok(req.ID, map[string]any{
		"engine_version":     info.EngineVersion,
		"fps":                info.FPS,
		"process_frames":     info.ProcessFrames,
		"time_scale":         info.TimeScale,
		"current_scene":      info.CurrentScene,
		"current_scene_name": info.CurrentSceneName,
		"node_count":         info.NodeCount,
		"input_mode":         b.inputMode,
		"error_count":        errCount,
		"warning_count":      warnCount,
	})
}

func (b *Bridge) handleGetErrors(req protocol.Request, a reqArgs) protocol.Response {
	since := a.intOr("since_index", 0)
	if since < 0 {
		since = 0
	}
	entries, next := b.ring.Since(uint64(since))
	errCount, warnCount := b.ring.Counts()
	return protocol.Ok(req.ID, map[string]any{
		"errors":        entries,
		"next_index":    next,
		"error_count":   errCount,
		"warning_count": warnCount,
	})
}

func (b *Bridge) handleFindNodes(req protocol.Request, a reqArgs) protocol.Response {
	name, hasName := a.str("name")
	typeName, hasType := a.str("type")
	group, hasGroup := a.str("group")
	if !hasName && !hasType && !hasGroup {
		return protocol.Error(req.ID, protocol.CodeBadArgs, "find_nodes needs at least one of name, type, group")
	}
	limit := a.intOr("limit", 50)
	if limit <= 0 {
		limit = 50
	}

	matches := []any{}
	queue := []engine.Node{b.host.Root()}
	for len(queue) > 0 && len(matches) < limit {
		n := queue[0]
		queue = queue[1:]
		if matchNode(n, name, hasName, typeName, hasType, group, hasGroup) {
			matches = append(matches, map[string]any{
				"name":   n.Name(),
				"type":   n.TypeName(),
				"path":   n.Path(),
				"groups": n.Groups(),
			})
		}
		queue = append(queue, n.Children()...)
	}
	return protocol.Ok(req.ID, map[string]any{
		"matches": matches,
		"count":   len(matches),
	})
}

// matchNode applies the provided predicates; every present predicate must
// hold. Name matching is a case-insensitive substring test, with "*"
// matching everything.
func matchNode(n engine.Node, name string, hasName bool, typeName string, hasType bool, group string, hasGroup bool) bool {
	if hasName && name != "*" &&
		!strings.Contains(strings.ToLower(n.Name()), strings.ToLower(name)) {
		return false
	}
	if hasType && n.TypeName() != typeName {
		return false
	}
	if hasGroup {
		found := false
		for _, g := range n.Groups() {
			if g == group {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// handleTelemetry serves audio_state, network_state and grb_performance:
// one flat mapping pulled from the host, normalized for transport.
func (b *Bridge) handleTelemetry(req protocol.Request, collect func() map[string]any) protocol.Response {
	m := collect()
	if m == nil {
		m = map[string]any{}
	}
	data, _ := engine.MarshalValue(m).(map[string]any)
	return protocol.Ok(req.ID, data)
}

// lookupNode resolves the "node" argument shared by property, method and
// wait commands.
func (b *Bridge) lookupNode(id string, a reqArgs) (engine.Node, protocol.Response, bool) {
	path, ok := a.str("node")
	if !ok {
		return nil, badArgs(id, "node"), false
	}
	n := b.host.FindNode(path)
	if n == nil {
		return nil, protocol.Error(id, protocol.CodeNotFound, fmt.Sprintf("no node at path %q", path)), false
	}
	return n, protocol.Response{}, true
}
