// Package protocol implements the grb/1 wire format: newline-delimited JSON
// request and response envelopes exchanged over a loopback TCP connection.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ProtoVersion is the protocol identifier clients may send in the "proto"
// field. Requests with any other value are rejected with bad_proto.
const ProtoVersion = "grb/1"

// Error codes carried in the "error.code" field of failure responses.
const (
	CodeBadJSON        = "bad_json"
	CodeBadProto       = "bad_proto"
	CodeUnknownCmd     = "unknown_cmd"
	CodeBadToken       = "bad_token"
	CodeTierDenied     = "tier_denied"
	CodeDangerDisabled = "danger_disabled"
	CodeBadArgs        = "bad_args"
	CodeNotFound       = "not_found"
	CodeInternal       = "internal_error"
)

// Request is one decoded command envelope.
type Request struct {
	ID    string
	Proto string
	Cmd   string
	Args  map[string]any
	Token string
}

// WireError is a request decoding failure destined for the wire. ID holds
// the request id when one could be recovered from the malformed payload.
type WireError struct {
	ID      string
	Code    string
	Message string
}

// Response is one outbound envelope. Success payload keys in Data are
// flattened into the envelope next to "id" and "ok"; failures carry a
// nested "error" object built from Code, Message and Extra.
type Response struct {
	ID      string
	OK      bool
	Data    map[string]any
	Code    string
	Message string
	Extra   map[string]any
}

// Ok builds a success response. data may be nil for commands with no
// payload beyond the envelope.
func Ok(id string, data map[string]any) Response {
	return Response{ID: id, OK: true, Data: data}
}

// Error builds a failure response with the given code and message.
func Error(id, code, message string) Response {
	return Response{ID: id, Code: code, Message: message}
}

// ErrorExtra builds a failure response whose error object carries extra
// fields beyond code and message (tier_denied adds tier_required).
func ErrorExtra(id, code, message string, extra map[string]any) Response {
	return Response{ID: id, Code: code, Message: message, Extra: extra}
}

// MarshalLine serializes the response as a single JSON line terminated by
// '\n'. Envelope fields win over colliding Data keys.
func (r Response) MarshalLine() ([]byte, error) {
	env := make(map[string]any, len(r.Data)+2)
	if r.OK {
		for k, v := range r.Data {
			env[k] = v
		}
	} else {
		errObj := map[string]any{"code": r.Code, "message": r.Message}
		for k, v := range r.Extra {
			errObj[k] = v
		}
		env["error"] = errObj
	}
	env["id"] = r.ID
	env["ok"] = r.OK
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal response %s: %w", r.ID, err)
	}
	return append(b, '\n'), nil
}
