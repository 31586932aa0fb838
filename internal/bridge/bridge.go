// Package bridge implements the in-process debug server a game host embeds:
// a loopback TCP listener speaking newline-delimited JSON, a background
// worker owning all socket I/O, and a per-frame dispatcher that executes
// commands against the live scene graph on the engine's main thread.
//
// Usage from a host:
//
//	b, err := bridge.Activate(host)
//	if err != nil { ... }        // bind failure
//	if b == nil { ... }          // activation gate closed, run without it
//	defer b.Close()
//	for gameRunning { b.Tick(); ... }
//
// Tick must be called from the same goroutine that owns the engine state;
// the bridge never touches engine objects from anywhere else.
package bridge

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/openbracket/gdrb/internal/config"
	"github.com/openbracket/gdrb/internal/diag"
	"github.com/openbracket/gdrb/internal/engine"
	"github.com/openbracket/gdrb/internal/protocol"
)

// Bridge is one activated debug session. Session identity (token, tier,
// flags, port) is fixed before the I/O worker starts and read-only after.
type Bridge struct {
	host engine.Host
	clk  clock.Clock
	log  *slog.Logger
	ring *diag.Ring

	token     string
	tier      int
	danger    bool
	inputMode string
	port      int

	in  requestQueue
	out lineQueue

	ln       net.Listener
	shutdown atomic.Bool
	closed   atomic.Bool
	done     chan struct{}

	// Frame-tick state. Owned by the goroutine calling Tick; never
	// locked.
	waits       []*pendingWait
	deferredRel *engine.InputEvent
	timed       []timedInjection
	quitPending bool

	restoreLog *slog.Logger
}

type options struct {
	clk    clock.Clock
	logger *slog.Logger
	ring   *diag.Ring
	banner io.Writer
	cfg    *config.Config
}

// Option adjusts activation. Hosts usually pass none; tests use these to
// control time, capture the banner and avoid process-global state.
type Option func(*options)

// WithClock substitutes the clock driving wait deadlines, input
// auto-release and diagnostic timestamps.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clk = clk }
}

// WithLogger routes the bridge's own logging through logger instead of
// slog.Default. When set, Activate leaves the process-default logger
// untouched.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRing uses an existing diagnostic ring the host has already wired
// into its logging pipeline instead of hooking slog.Default.
func WithRing(ring *diag.Ring) Option {
	return func(o *options) { o.ring = ring }
}

// WithBannerWriter redirects the readiness banner away from stdout.
func WithBannerWriter(w io.Writer) Option {
	return func(o *options) { o.banner = w }
}

// WithConfig bypasses the environment and activates with cfg directly.
func WithConfig(cfg config.Config) Option {
	return func(o *options) { o.cfg = &cfg }
}

// Activate runs the startup gate and, when it passes, binds the loopback
// listener, prints the readiness banner and starts the I/O worker.
//
// It returns (nil, nil) when either gate leg fails: no build-feature tag
// from {grb, debug, editor}, or no token and no legacy flag in the
// environment. That silence is the contract; a shipped build must behave
// identically with and without the bridge linked in. A non-nil error means
// the gate passed but the listener could not bind.
func Activate(host engine.Host, opts ...Option) (*Bridge, error) {
	o := options{clk: clock.New(), banner: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	if !host.HasFeature("grb") && !host.HasFeature("debug") && !host.HasFeature("editor") {
		return nil, nil
	}
	cfg := config.FromEnv()
	if o.cfg != nil {
		cfg = *o.cfg
	}
	if !cfg.Enabled() {
		return nil, nil
	}

	token := cfg.Token
	if token == "" {
		generated, err := generateToken()
		if err != nil {
			return nil, fmt.Errorf("generate session token: %w", err)
		}
		token = generated
	}

	b := &Bridge{
		host:      host,
		clk:       o.clk,
		ring:      o.ring,
		token:     token,
		tier:      cfg.Tier,
		danger:    cfg.DangerEnabled,
		inputMode: cfg.InputMode,
		done:      make(chan struct{}),
	}
	if b.ring == nil {
		b.ring = diag.New(o.clk)
		if o.logger == nil {
			// Hook the process logger so engine diagnostics flow
			// into the ring; Close puts the original back.
			prev := slog.Default()
			slog.SetDefault(slog.New(diag.NewHandler(b.ring, prev.Handler())))
			b.restoreLog = prev
		}
	}
	if o.logger != nil {
		b.log = o.logger.With("component", "gdrb")
	} else {
		b.log = slog.Default().With("component", "gdrb")
	}

	host.SetLowProcessorMode(false)
	if cfg.ForceWindowed {
		host.ForceWindowed()
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Port))
	if err != nil {
		b.ring.Report(diag.KindError, "bridge listener bind failed", err.Error())
		b.log.Error("bind failed, bridge not starting", "port", cfg.Port, "err", err)
		if b.restoreLog != nil {
			slog.SetDefault(b.restoreLog)
		}
		return nil, fmt.Errorf("bind 127.0.0.1:%d: %w", cfg.Port, err)
	}
	b.ln = ln
	b.port = ln.Addr().(*net.TCPAddr).Port

	if cfg.InputMode == config.InputModeSynthetic {
		host.Input().SetIsolation(true)
	}

	b.printBanner(o.banner, cfg.BannerFile)
	go b.ioLoop()
	b.log.Info("bridge ready", "port", b.port, "tier", b.tier, "danger", b.danger, "input_mode", b.inputMode)
	return b, nil
}

// printBanner writes the single readiness line, and mirrors it to the
// side-channel file when GDRB_BANNER_FILE names one (for hosts launched
// without a captured stdout).
func (b *Bridge) printBanner(w io.Writer, bannerFile string) {
	line, err := protocol.Banner{
		Proto:       protocol.ProtoVersion,
		Port:        b.port,
		Token:       b.token,
		TierDefault: b.tier,
		InputMode:   b.inputMode,
	}.Encode()
	if err != nil {
		b.log.Error("banner encode failed", "err", err)
		return
	}
	if _, err := fmt.Fprintln(w, line); err != nil {
		b.log.Warn("banner write failed", "err", err)
	}
	if bannerFile != "" {
		if err := os.WriteFile(bannerFile, []byte(line+"\n"), 0o600); err != nil {
			b.log.Warn("banner file write failed", "path", bannerFile, "err", err)
		}
	}
}

// Close stops the I/O worker, closes the listener and any client, lifts
// input isolation and restores the process logger. Safe on a nil Bridge
// so hosts can defer it regardless of the activation outcome.
func (b *Bridge) Close() {
	if b == nil || !b.closed.CompareAndSwap(false, true) {
		return
	}
	b.shutdown.Store(true)
	b.ln.Close()
	<-b.done
	if b.inputMode == config.InputModeSynthetic {
		b.host.Input().SetIsolation(false)
	}
	if b.restoreLog != nil {
		slog.SetDefault(b.restoreLog)
	}
	b.in.drain()
	b.out.drain()
	b.log.Info("bridge closed")
}

// Port returns the bound loopback port.
func (b *Bridge) Port() int { return b.port }

// Token returns the session secret.
func (b *Bridge) Token() string { return b.token }

// Tier returns the session capability tier.
func (b *Bridge) Tier() int { return b.tier }

// InputMode returns "synthetic" or "os".
func (b *Bridge) InputMode() string { return b.inputMode }

// DangerEnabled reports whether eval is permitted this session.
func (b *Bridge) DangerEnabled() bool { return b.danger }

// Ring returns the diagnostic ring so hosts can report engine errors
// directly.
func (b *Bridge) Ring() *diag.Ring { return b.ring }

// autoReleaseDelay is how long a gamepad button stays pressed before the
// scheduled release fires.
const autoReleaseDelay = 100 * time.Millisecond
