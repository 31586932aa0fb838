package bridge

import (
	"fmt"

	"github.com/openbracket/gdrb/internal/engine"
	"github.com/openbracket/gdrb/internal/protocol"
)

// reqArgs wraps a request's args mapping with typed extractors. JSON
// numbers arrive as float64; everything narrows from there.
type reqArgs map[string]any

func (a reqArgs) raw(key string) (any, bool) {
	v, ok := a[key]
	return v, ok
}

func (a reqArgs) str(key string) (string, bool) {
	s, ok := a[key].(string)
	return s, ok && s != ""
}

func (a reqArgs) num(key string) (float64, bool) {
	switch v := a[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func (a reqArgs) numOr(key string, def float64) float64 {
	if v, ok := a.num(key); ok {
		return v
	}
	return def
}

func (a reqArgs) intOr(key string, def int) int {
	if v, ok := a.num(key); ok {
		return int(v)
	}
	return def
}

func (a reqArgs) boolOr(key string, def bool) bool {
	if v, ok := a[key].(bool); ok {
		return v
	}
	return def
}

func (a reqArgs) list(key string) ([]any, bool) {
	l, ok := a[key].([]any)
	return l, ok
}

// vec2 reads a two-element [x, y] number array.
func (a reqArgs) vec2(key string) (engine.Vec2, bool) {
	l, ok := a[key].([]any)
	if !ok || len(l) != 2 {
		return engine.Vec2{}, false
	}
	x, xok := asFloat(l[0])
	y, yok := asFloat(l[1])
	if !xok || !yok {
		return engine.Vec2{}, false
	}
	return engine.Vec2{X: x, Y: y}, true
}

// child reads a nested mapping argument, such as gesture params.
func (a reqArgs) child(key string) (reqArgs, bool) {
	m, ok := a[key].(map[string]any)
	if !ok {
		return nil, false
	}
	return reqArgs(m), true
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	}
	return 0, false
}

// badArgs builds the uniform missing-or-invalid-argument error.
func badArgs(id, key string) protocol.Response {
	return protocol.Error(id, protocol.CodeBadArgs, fmt.Sprintf("missing or invalid %q argument", key))
}
