package client

import (
	"bytes"
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openbracket/gdrb/internal/protocol"
)

// scriptedRunner plays back a fixed stdout stream instead of spawning a
// process.
type scriptedRunner struct {
	stdout  io.ReadCloser
	started bool
	waited  bool
}

func (r *scriptedRunner) Start(ctx context.Context, spec LaunchSpec) (io.ReadCloser, func() error, error) {
	r.started = true
	return r.stdout, func() error {
		r.waited = true
		return nil
	}, nil
}

// syncBuffer lets the echo goroutine and the test share a buffer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func bannerLine(t *testing.T, port int, token string) string {
	t.Helper()
	line, err := protocol.Banner{
		Proto:       protocol.ProtoVersion,
		Port:        port,
		Token:       token,
		TierDefault: 1,
		InputMode:   "synthetic",
	}.Encode()
	if err != nil {
		t.Fatal(err)
	}
	return line
}

func TestLaunchAdoptsBannerSession(t *testing.T) {
	addr := fakeBridge(t, echoOK(map[string]any{"pong": true}))
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}

	token := "tok0123456789abcdefghijx"
	stdout := "engine booting\n" +
		bannerLine(t, port, token) + "\n" +
		"level loaded, token " + token + " primed\n"

	runner := &scriptedRunner{stdout: io.NopCloser(strings.NewReader(stdout))}
	echo := &syncBuffer{}
	l := &Launcher{Runner: runner, Echo: echo}

	sess, err := l.Launch(context.Background(), LaunchSpec{Bin: "hostsim"})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	defer sess.Kill()

	if sess.Banner.Port != port || sess.Banner.Token != token {
		t.Fatalf("banner = %+v", sess.Banner)
	}

	res, err := sess.Client.Call(context.Background(), "ping", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Field("pong") != true {
		t.Fatalf("ping through session = %+v", res)
	}

	// The post-banner line streams through the redactor asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for {
		out := echo.String()
		if strings.Contains(out, "[REDACTED:GDRB_TOKEN]") && !strings.Contains(out, token) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("echoed output never redacted: %q", out)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLaunchTimesOutWithoutBanner(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	runner := &scriptedRunner{stdout: pr}
	l := &Launcher{Runner: runner, Echo: io.Discard}

	_, err := l.Launch(context.Background(), LaunchSpec{Bin: "hostsim", BannerTimeout: 50 * time.Millisecond})
	if err == nil {
		t.Fatal("Launch succeeded without a banner")
	}
	if !strings.Contains(err.Error(), "banner") {
		t.Fatalf("error = %v, want a banner timeout", err)
	}
}

func TestLaunchFailsWhenStdoutEndsEarly(t *testing.T) {
	runner := &scriptedRunner{stdout: io.NopCloser(strings.NewReader("crash on boot\n"))}
	l := &Launcher{Runner: runner, Echo: io.Discard}

	_, err := l.Launch(context.Background(), LaunchSpec{Bin: "hostsim"})
	if err == nil {
		t.Fatal("Launch succeeded with no banner before EOF")
	}
	if !runner.waited {
		t.Fatal("failed launch did not reap the host process")
	}
}

func TestLaunchSpecEnv(t *testing.T) {
	spec := LaunchSpec{
		Bin:       "hostsim",
		Token:     "tok",
		Tier:      2,
		Danger:    true,
		InputMode: "os",
		Port:      4455,
	}
	env := strings.Join(spec.env(), "\n")
	for _, want := range []string{
		"GDRB_TOKEN=tok",
		"GDRB_TIER=2",
		"GDRB_ENABLE_DANGER=1",
		"GDRB_INPUT_MODE=os",
		"GDRB_PORT=4455",
	} {
		if !strings.Contains(env, want) {
			t.Errorf("env missing %q", want)
		}
	}

	legacy := LaunchSpec{Bin: "hostsim", Tier: 1}
	env = strings.Join(legacy.env(), "\n")
	if strings.Contains(env, "GDRB_TOKEN=") {
		t.Error("tokenless spec still set GDRB_TOKEN")
	}
	if !strings.Contains(env, "GODOT_DEBUG_SERVER=1") {
		t.Error("tokenless spec did not arm the legacy flag")
	}
}

func TestSessionShutdownQuitsPolitely(t *testing.T) {
	addr := fakeBridge(t, echoOK(map[string]any{"quitting": true}))
	c, err := Dial(context.Background(), addr, "tok")
	if err != nil {
		t.Fatal(err)
	}
	reaped := false
	sess := &Session{
		Client: c,
		cancel: func() {},
		wait:   func() error { reaped = true; return nil },
	}
	if err := sess.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !reaped {
		t.Fatal("Shutdown never reaped the process")
	}
}
