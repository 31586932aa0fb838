package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/openbracket/gdrb/internal/protocol"
)

// LaunchSpec describes a host process to start with the bridge armed.
type LaunchSpec struct {
	Bin  string
	Args []string

	// Session knobs, translated into GDRB_* environment variables. An
	// empty Token arms the legacy flag instead; the host then generates
	// its own token and the banner carries it back.
	Token     string
	Tier      int
	Danger    bool
	InputMode string
	Port      int

	// BannerTimeout bounds the wait for GDRB_READY on stdout. Zero means
	// 10 seconds.
	BannerTimeout time.Duration
}

func (s LaunchSpec) env() []string {
	env := os.Environ()
	if s.Token != "" {
		env = append(env, "GDRB_TOKEN="+s.Token)
	} else {
		env = append(env, "GODOT_DEBUG_SERVER=1")
	}
	env = append(env, "GDRB_TIER="+strconv.Itoa(s.Tier))
	if s.Danger {
		env = append(env, "GDRB_ENABLE_DANGER=1")
	}
	if s.InputMode != "" {
		env = append(env, "GDRB_INPUT_MODE="+s.InputMode)
	}
	if s.Port != 0 {
		env = append(env, "GDRB_PORT="+strconv.Itoa(s.Port))
	}
	return env
}

// HostRunner abstracts the spawning of the host process so tests can
// substitute a scripted implementation.
type HostRunner interface {
	Start(ctx context.Context, spec LaunchSpec) (stdout io.ReadCloser, wait func() error, err error)
}

// ExecRunner implements HostRunner by spawning the real host binary.
type ExecRunner struct{}

// Start launches the host with the bridge environment applied. The host's
// stderr passes through untouched; stdout is returned for banner scanning.
func (ExecRunner) Start(ctx context.Context, spec LaunchSpec) (io.ReadCloser, func() error, error) {
	cmd := exec.CommandContext(ctx, spec.Bin, spec.Args...)
	cmd.Env = spec.env()
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	return stdout, cmd.Wait, nil
}

// Session is a launched host with a connected bridge client.
type Session struct {
	Banner protocol.Banner
	Client *Client

	cancel context.CancelFunc
	wait   func() error
}

// Shutdown asks the bridge to quit the host and reaps the process. When the
// polite path fails it falls back to killing via the launch context.
func (s *Session) Shutdown(ctx context.Context) error {
	_, callErr := s.Client.Call(ctx, "quit", nil)
	s.Client.Close()
	if callErr != nil {
		s.cancel()
	}
	err := s.wait()
	s.cancel()
	if callErr != nil && err != nil {
		return fmt.Errorf("host did not exit cleanly: %w", err)
	}
	return nil
}

// Kill force-terminates the host without the quit handshake.
func (s *Session) Kill() {
	s.Client.Close()
	s.cancel()
	_ = s.wait()
}

// Launcher starts host processes and adopts the sessions they announce.
type Launcher struct {
	Runner HostRunner
	// Echo receives redacted host stdout after the banner; nil means
	// stderr.
	Echo io.Writer
}

// Launch starts the host, scans its stdout for the readiness banner,
// connects to the announced port and returns the live session. Host output
// after the banner keeps streaming to Echo with the session token redacted.
func (l *Launcher) Launch(ctx context.Context, spec LaunchSpec) (*Session, error) {
	runner := l.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	echo := l.Echo
	if echo == nil {
		echo = os.Stderr
	}
	timeout := spec.BannerTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	procCtx, cancel := context.WithCancel(context.Background())
	stdout, wait, err := runner.Start(procCtx, spec)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start host %s: %w", spec.Bin, err)
	}

	banner, scanner, err := awaitBanner(stdout, timeout)
	if err != nil {
		cancel()
		_ = wait()
		return nil, err
	}

	// The rest of stdout is the host's own chatter; keep it visible but
	// never let the token through.
	redactor := NewRedactor(map[string]string{"GDRB_TOKEN": banner.Token})
	go func() {
		for scanner.Scan() {
			fmt.Fprintln(echo, redactor.Redact(scanner.Text()))
		}
	}()

	cl, err := Dial(ctx, fmt.Sprintf("127.0.0.1:%d", banner.Port), banner.Token)
	if err != nil {
		cancel()
		_ = wait()
		return nil, err
	}
	return &Session{Banner: banner, Client: cl, cancel: cancel, wait: wait}, nil
}

// awaitBanner scans stdout line by line until the readiness banner appears,
// echoing nothing: pre-banner output is startup noise. The returned scanner
// continues where the banner left off.
func awaitBanner(stdout io.Reader, timeout time.Duration) (protocol.Banner, *bufio.Scanner, error) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	type scanResult struct {
		banner protocol.Banner
		err    error
	}
	found := make(chan scanResult, 1)
	go func() {
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, protocol.BannerPrefix) {
				continue
			}
			banner, ok := protocol.ParseBanner(line)
			if !ok {
				found <- scanResult{err: fmt.Errorf("malformed readiness banner")}
				return
			}
			found <- scanResult{banner: banner}
			return
		}
		err := scanner.Err()
		if err == nil {
			err = fmt.Errorf("host stdout closed before the readiness banner")
		}
		found <- scanResult{err: err}
	}()

	select {
	case res := <-found:
		if res.err != nil {
			return protocol.Banner{}, nil, fmt.Errorf("banner scan: %w", res.err)
		}
		return res.banner, scanner, nil
	case <-time.After(timeout):
		return protocol.Banner{}, nil, fmt.Errorf("no readiness banner within %v", timeout)
	}
}
