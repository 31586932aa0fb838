// Package client speaks grb/1 from the outside: dialing the loopback
// bridge, correlating request/response lines, launching a host process and
// adopting the session its readiness banner announces. Everything here
// stays on the wire side of the protocol; nothing reaches into the bridge.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/openbracket/gdrb/internal/protocol"
)

// Err is a wire-level failure: the error object from an ok:false response.
type Err struct {
	Code    string
	Message string
}

func (e *Err) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Result is one decoded response. Data holds the flattened payload fields
// (everything except id/ok) for successes; Err is set for failures.
type Result struct {
	OK   bool
	Data map[string]any
	Err  *Err
}

// Field returns a payload field, nil when absent.
func (r Result) Field(key string) any {
	if r.Data == nil {
		return nil
	}
	return r.Data[key]
}

// Client is a single grb/1 connection. Calls are serialized; responses for
// other request ids (a wait_for resolving late) are parked and picked up by
// the call they belong to.
type Client struct {
	conn  net.Conn
	r     *bufio.Reader
	token string

	mu      sync.Mutex
	pending map[string]map[string]any
}

// DialOption adjusts Dial.
type DialOption func(*dialOptions)

type dialOptions struct {
	attempts uint
	delay    time.Duration
}

// WithDialAttempts overrides the retry budget.
func WithDialAttempts(n uint) DialOption {
	return func(o *dialOptions) { o.attempts = n }
}

// Dial connects to a bridge at addr ("127.0.0.1:<port>") and remembers the
// session token for every call. The bridge binds asynchronously from the
// host's point of view, so the dial retries with backoff for about two
// seconds before giving up.
func Dial(ctx context.Context, addr, token string, opts ...DialOption) (*Client, error) {
	o := dialOptions{attempts: 8, delay: 25 * time.Millisecond}
	for _, opt := range opts {
		opt(&o)
	}

	var conn net.Conn
	err := retry.Do(
		func() error {
			d := net.Dialer{Timeout: time.Second}
			c, err := d.DialContext(ctx, "tcp", addr)
			if err != nil {
				return err
			}
			conn = c
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(o.attempts),
		retry.Delay(o.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("dial bridge %s: %w", addr, err)
	}
	return &Client{
		conn:    conn,
		r:       bufio.NewReaderSize(conn, 64*1024),
		token:   token,
		pending: map[string]map[string]any{},
	}, nil
}

// Call sends one command and blocks until its response arrives. Responses
// belonging to other ids are parked, not dropped, so a long wait_for does
// not eat the answers to later calls.
func (c *Client) Call(ctx context.Context, cmd string, args map[string]any) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.NewString()
	req := map[string]any{
		"id":    id,
		"proto": protocol.ProtoVersion,
		"cmd":   cmd,
	}
	if len(args) > 0 {
		req["args"] = args
	}
	if c.token != "" {
		req["token"] = c.token
	}
	line, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("encode %s request: %w", cmd, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	} else {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	}
	if _, err := c.conn.Write(append(line, '\n')); err != nil {
		return Result{}, fmt.Errorf("send %s: %w", cmd, err)
	}
	return c.awaitLocked(ctx, cmd, id)
}

func (c *Client) awaitLocked(ctx context.Context, cmd, id string) (Result, error) {
	for {
		if raw, ok := c.pending[id]; ok {
			delete(c.pending, id)
			return decodeResult(raw), nil
		}
		if deadline, ok := ctx.Deadline(); ok {
			c.conn.SetReadDeadline(deadline)
		} else {
			c.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		}
		line, err := c.r.ReadBytes('\n')
		if err != nil {
			return Result{}, fmt.Errorf("await %s response: %w", cmd, err)
		}
		var raw map[string]any
		if err := json.Unmarshal(line, &raw); err != nil {
			return Result{}, fmt.Errorf("undecodable response line %q: %w", line, err)
		}
		respID, _ := raw["id"].(string)
		if respID == id {
			return decodeResult(raw), nil
		}
		// Someone else's response, most likely a resolving wait_for.
		c.pending[respID] = raw
	}
}

func decodeResult(raw map[string]any) Result {
	ok, _ := raw["ok"].(bool)
	res := Result{OK: ok, Data: map[string]any{}}
	for k, v := range raw {
		if k == "id" || k == "ok" || k == "error" {
			continue
		}
		res.Data[k] = v
	}
	if !ok {
		res.Err = &Err{Code: "internal_error", Message: "malformed error payload"}
		if errObj, isMap := raw["error"].(map[string]any); isMap {
			code, _ := errObj["code"].(string)
			msg, _ := errObj["message"].(string)
			res.Err = &Err{Code: code, Message: msg}
			for k, v := range errObj {
				if k == "code" || k == "message" {
					continue
				}
				res.Data[k] = v
			}
		}
	}
	return res
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
