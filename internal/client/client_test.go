package client

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"
)

// fakeBridge serves scripted responses over a real loopback socket. The
// handler returns the full list of lines to write for each request, letting
// tests interleave stray responses ahead of the matching one.
func fakeBridge(t *testing.T, handler func(req map[string]any) []map[string]any) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				sc := bufio.NewScanner(c)
				for sc.Scan() {
					var req map[string]any
					if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
						continue
					}
					for _, resp := range handler(req) {
						line, _ := json.Marshal(resp)
						c.Write(append(line, '\n'))
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func echoOK(extra map[string]any) func(req map[string]any) []map[string]any {
	return func(req map[string]any) []map[string]any {
		resp := map[string]any{"id": req["id"], "ok": true}
		for k, v := range extra {
			resp[k] = v
		}
		return []map[string]any{resp}
	}
}

func TestCallRoundTrip(t *testing.T) {
	addr := fakeBridge(t, echoOK(map[string]any{"pong": true}))
	c, err := Dial(context.Background(), addr, "tok")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	res, err := c.Call(context.Background(), "ping", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK {
		t.Fatalf("result = %+v, want ok", res)
	}
	if res.Field("pong") != true {
		t.Fatalf("pong = %v, want true", res.Field("pong"))
	}
}

func TestCallSendsTokenAndArgs(t *testing.T) {
	var seen map[string]any
	addr := fakeBridge(t, func(req map[string]any) []map[string]any {
		seen = req
		return []map[string]any{{"id": req["id"], "ok": true}}
	})
	c, err := Dial(context.Background(), addr, "secret-token")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if _, err := c.Call(context.Background(), "get_property", map[string]any{"node": "Main/Foo", "property": "state"}); err != nil {
		t.Fatal(err)
	}
	if seen["token"] != "secret-token" {
		t.Fatalf("token on the wire = %v", seen["token"])
	}
	if seen["proto"] != "grb/1" {
		t.Fatalf("proto on the wire = %v", seen["proto"])
	}
	args, _ := seen["args"].(map[string]any)
	if args["node"] != "Main/Foo" {
		t.Fatalf("args on the wire = %v", seen["args"])
	}
}

func TestCallSurfacesWireError(t *testing.T) {
	addr := fakeBridge(t, func(req map[string]any) []map[string]any {
		return []map[string]any{{
			"id": req["id"], "ok": false,
			"error": map[string]any{"code": "tier_denied", "message": "needs tier 2", "tier_required": 2},
		}}
	})
	c, err := Dial(context.Background(), addr, "tok")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	res, err := c.Call(context.Background(), "set_property", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.OK {
		t.Fatalf("result = %+v, want failure", res)
	}
	if res.Err == nil || res.Err.Code != "tier_denied" {
		t.Fatalf("err = %+v, want tier_denied", res.Err)
	}
	if res.Field("tier_required") != float64(2) {
		t.Fatalf("tier_required = %v, want 2", res.Field("tier_required"))
	}
}

func TestCallParksForeignResponses(t *testing.T) {
	addr := fakeBridge(t, func(req map[string]any) []map[string]any {
		// A stray line first, as when an old wait_for resolves while
		// another command is in flight.
		return []map[string]any{
			{"id": "someone-else", "ok": true, "matched": true},
			{"id": req["id"], "ok": true, "pong": true},
		}
	})
	c, err := Dial(context.Background(), addr, "tok")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	res, err := c.Call(context.Background(), "ping", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Field("pong") != true {
		t.Fatalf("call consumed the wrong response: %+v", res)
	}
	if _, parked := c.pending["someone-else"]; !parked {
		t.Fatal("foreign response was dropped instead of parked")
	}
}

func TestDialFailsWhenNothingListens(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := Dial(ctx, addr, "tok", WithDialAttempts(2)); err == nil {
		t.Fatal("dial succeeded against a closed port")
	}
}

func TestDialRetriesUntilBridgeBinds(t *testing.T) {
	reserve, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := reserve.Addr().String()
	reserve.Close()

	go func() {
		time.Sleep(60 * time.Millisecond)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return
		}
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
		ln.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, addr, "tok")
	if err != nil {
		t.Fatalf("dial never caught the late listener: %v", err)
	}
	c.Close()
}

func TestRedactorMasksSecrets(t *testing.T) {
	r := NewRedactor(map[string]string{"GDRB_TOKEN": "s3cretvalue", "EMPTY": ""})
	got := r.Redact("token is s3cretvalue and again s3cretvalue end")
	want := "token is [REDACTED:GDRB_TOKEN] and again [REDACTED:GDRB_TOKEN] end"
	if got != want {
		t.Fatalf("redacted = %q, want %q", got, want)
	}
	if r.Redact("nothing to hide") != "nothing to hide" {
		t.Fatal("redactor altered a clean line")
	}
}
