package bridge

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/benbjohnson/clock"

	"github.com/openbracket/gdrb/internal/config"
	"github.com/openbracket/gdrb/internal/diag"
	"github.com/openbracket/gdrb/internal/enginetest"
	"github.com/openbracket/gdrb/internal/protocol"
)

const testToken = "abcDEF0123456789qrstuvwx"

// newTickBridge builds a bridge with no listener attached. Tests push
// envelopes straight onto the inbound queue, call Tick and read the
// outbound queue, so nothing here races the I/O worker.
func newTickBridge(t *testing.T, tier int, danger bool) (*Bridge, *enginetest.Sim, *clock.Mock) {
	t.Helper()
	sim := enginetest.NewSim()
	enginetest.PopulateQAScene(sim)
	mock := clock.NewMock()
	b := &Bridge{
		host:      sim,
		clk:       mock,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		ring:      diag.New(mock),
		token:     testToken,
		tier:      tier,
		danger:    danger,
		inputMode: config.InputModeSynthetic,
	}
	return b, sim, mock
}

func request(id, cmd string, args map[string]any) protocol.Request {
	return protocol.Request{ID: id, Cmd: cmd, Args: args, Token: testToken}
}

func anonymous(id, cmd string, args map[string]any) protocol.Request {
	return protocol.Request{ID: id, Cmd: cmd, Args: args}
}

func decodeResponses(t *testing.T, b *Bridge) []map[string]any {
	t.Helper()
	lines := b.out.drain()
	out := make([]map[string]any, 0, len(lines))
	for _, line := range lines {
		var m map[string]any
		if err := json.Unmarshal(line, &m); err != nil {
			t.Fatalf("undecodable response line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

// exec pushes one request, runs a tick and expects exactly one response.
func exec(t *testing.T, b *Bridge, req protocol.Request) map[string]any {
	t.Helper()
	b.in.push(inbound{req: req})
	b.Tick()
	rs := decodeResponses(t, b)
	if len(rs) != 1 {
		t.Fatalf("got %d responses, want 1: %v", len(rs), rs)
	}
	return rs[0]
}

func wantOK(t *testing.T, resp map[string]any, id string) {
	t.Helper()
	if resp["id"] != id {
		t.Fatalf("response id = %v, want %q", resp["id"], id)
	}
	if resp["ok"] != true {
		t.Fatalf("expected success, got %v", resp)
	}
}

func wantErrCode(t *testing.T, resp map[string]any, id, code string) map[string]any {
	t.Helper()
	if resp["id"] != id {
		t.Fatalf("response id = %v, want %q", resp["id"], id)
	}
	if resp["ok"] != false {
		t.Fatalf("expected failure, got %v", resp)
	}
	errObj, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("response has no error object: %v", resp)
	}
	if errObj["code"] != code {
		t.Fatalf("error code = %v, want %q", errObj["code"], code)
	}
	return errObj
}

func TestPingAnswersWithoutToken(t *testing.T) {
	b, _, _ := newTickBridge(t, 1, false)
	resp := exec(t, b, anonymous("a", "ping", nil))
	wantOK(t, resp, "a")
	if resp["pong"] != true {
		t.Fatalf("ping response = %v, want pong:true", resp)
	}
}

func TestAuthInfoAnswersWithoutToken(t *testing.T) {
	b, _, _ := newTickBridge(t, 2, true)
	resp := exec(t, b, anonymous("a", "auth_info", nil))
	wantOK(t, resp, "a")
	if resp["proto"] != protocol.ProtoVersion {
		t.Errorf("proto = %v, want %q", resp["proto"], protocol.ProtoVersion)
	}
	if resp["tier"] != float64(2) {
		t.Errorf("tier = %v, want 2", resp["tier"])
	}
	if resp["danger_enabled"] != true {
		t.Errorf("danger_enabled = %v, want true", resp["danger_enabled"])
	}
}

func TestMissingTokenRejected(t *testing.T) {
	b, _, _ := newTickBridge(t, 1, false)
	resp := exec(t, b, anonymous("b", "screenshot", nil))
	wantErrCode(t, resp, "b", protocol.CodeBadToken)
}

func TestWrongTokenRejected(t *testing.T) {
	b, _, _ := newTickBridge(t, 1, false)
	req := request("b", "screenshot", nil)
	req.Token = "abcDEF0123456789qrstuvwy"
	resp := exec(t, b, req)
	wantErrCode(t, resp, "b", protocol.CodeBadToken)
}

func TestTierDeniedNamesRequiredTier(t *testing.T) {
	b, _, _ := newTickBridge(t, 0, false)
	resp := exec(t, b, request("c", "click", map[string]any{"x": 1.0, "y": 1.0}))
	errObj := wantErrCode(t, resp, "c", protocol.CodeTierDenied)
	if errObj["tier_required"] != float64(1) {
		t.Fatalf("tier_required = %v, want 1", errObj["tier_required"])
	}
}

func TestEvalBelowTierReportsTierNotDanger(t *testing.T) {
	b, _, _ := newTickBridge(t, 1, false)
	resp := exec(t, b, request("c", "eval", map[string]any{"expr": "1+1"}))
	errObj := wantErrCode(t, resp, "c", protocol.CodeTierDenied)
	if errObj["tier_required"] != float64(3) {
		t.Fatalf("tier_required = %v, want 3", errObj["tier_required"])
	}
}

func TestEvalNeedsDangerFlag(t *testing.T) {
	b, _, _ := newTickBridge(t, 3, false)
	resp := exec(t, b, request("c", "eval", map[string]any{"expr": "1+1"}))
	wantErrCode(t, resp, "c", protocol.CodeDangerDisabled)
}

func TestEvalComputesWhenArmed(t *testing.T) {
	b, _, _ := newTickBridge(t, 3, true)
	resp := exec(t, b, request("c", "eval", map[string]any{"expr": "1+1"}))
	wantOK(t, resp, "c")
	if resp["result"] != "2" {
		t.Fatalf("eval result = %v, want \"2\"", resp["result"])
	}
}

func TestUnknownCommand(t *testing.T) {
	b, _, _ := newTickBridge(t, 1, false)
	resp := exec(t, b, request("d", "does_not_exist", nil))
	wantErrCode(t, resp, "d", protocol.CodeUnknownCmd)
}

func TestParseErrorAnsweredInlineAndServerStaysLive(t *testing.T) {
	b, _, _ := newTickBridge(t, 1, false)

	req, werr := protocol.ParseLine([]byte("not json"))
	if werr == nil {
		t.Fatal("expected a parse error for garbage input")
	}
	b.in.push(inbound{req: req, werr: werr})
	b.Tick()
	rs := decodeResponses(t, b)
	if len(rs) != 1 {
		t.Fatalf("got %d responses, want 1", len(rs))
	}
	wantErrCode(t, rs[0], "", protocol.CodeBadJSON)

	resp := exec(t, b, anonymous("e", "ping", nil))
	wantOK(t, resp, "e")
}

func TestResponsesFollowRequestOrder(t *testing.T) {
	b, _, _ := newTickBridge(t, 1, false)
	b.in.push(inbound{req: anonymous("a", "ping", nil)})
	b.in.push(inbound{req: request("b", "runtime_info", nil)})
	b.in.push(inbound{req: anonymous("c", "ping", nil)})
	b.Tick()

	rs := decodeResponses(t, b)
	if len(rs) != 3 {
		t.Fatalf("got %d responses, want 3", len(rs))
	}
	for i, id := range []string{"a", "b", "c"} {
		if rs[i]["id"] != id {
			t.Fatalf("response %d id = %v, want %q", i, rs[i]["id"], id)
		}
	}
}

func TestHandlerPanicContained(t *testing.T) {
	b, sim, _ := newTickBridge(t, 2, false)
	sim.RegisterCommand("explode", func([]any) (any, error) {
		panic("kaboom")
	})

	resp := exec(t, b, request("f", "run_custom_command", map[string]any{"name": "explode"}))
	wantErrCode(t, resp, "f", protocol.CodeInternal)

	resp = exec(t, b, anonymous("g", "ping", nil))
	wantOK(t, resp, "g")
}

func TestCapabilitiesMatchesTier(t *testing.T) {
	commandsAt := func(tier int) map[string]bool {
		b, _, _ := newTickBridge(t, tier, false)
		resp := exec(t, b, request("h", "capabilities", nil))
		wantOK(t, resp, "h")
		if resp["tier"] != float64(tier) {
			t.Fatalf("tier = %v, want %d", resp["tier"], tier)
		}
		names, ok := resp["commands"].([]any)
		if !ok {
			t.Fatalf("commands is %T, want list", resp["commands"])
		}
		set := map[string]bool{}
		for _, n := range names {
			set[n.(string)] = true
		}
		return set
	}

	at1 := commandsAt(1)
	for _, want := range []string{"click", "screenshot", "wait_for"} {
		if !at1[want] {
			t.Errorf("tier 1 capabilities missing %q", want)
		}
	}
	for _, tooHigh := range []string{"set_property", "call_method", "eval"} {
		if at1[tooHigh] {
			t.Errorf("tier 1 capabilities should not list %q", tooHigh)
		}
	}

	at2 := commandsAt(2)
	for _, want := range []string{"set_property", "call_method"} {
		if !at2[want] {
			t.Errorf("tier 2 capabilities missing %q", want)
		}
	}
	if at2["eval"] {
		t.Error("tier 2 capabilities should not list eval")
	}
}
