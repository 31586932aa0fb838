package protocol

import (
	"encoding/json"
	"fmt"
)

// ParseLine decodes one framed request line. On failure the returned
// WireError carries the error code, a human-readable message, and whatever
// request id could be recovered so the caller can mirror it.
//
// Unknown envelope fields are ignored. A non-object "args" value is treated
// as empty rather than rejected.
func ParseLine(line []byte) (Request, *WireError) {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil || raw == nil {
		return Request{}, &WireError{Code: CodeBadJSON, Message: "request must be a JSON object"}
	}
	req := Request{
		ID:    stringField(raw, "id"),
		Proto: stringField(raw, "proto"),
		Cmd:   stringField(raw, "cmd"),
		Token: stringField(raw, "token"),
		Args:  map[string]any{},
	}
	if m, ok := raw["args"].(map[string]any); ok {
		req.Args = m
	}
	if req.Cmd == "" {
		return Request{}, &WireError{ID: req.ID, Code: CodeBadJSON, Message: "missing cmd"}
	}
	if req.Proto != "" && req.Proto != ProtoVersion {
		return Request{}, &WireError{
			ID:      req.ID,
			Code:    CodeBadProto,
			Message: fmt.Sprintf("unsupported protocol %q, want %q", req.Proto, ProtoVersion),
		}
	}
	return req, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
