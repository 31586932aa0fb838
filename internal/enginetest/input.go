package enginetest

import (
	"time"

	"github.com/openbracket/gdrb/internal/engine"
)

// Vibration is one recorded rumble request.
type Vibration struct {
	Weak     float64
	Strong   float64
	Duration time.Duration
}

// SimInput is the simulated viewport input pipeline. Events injected while
// isolation is active are dropped unless tagged synthetic, mirroring the
// viewport filter a real host installs for the bridge.
type SimInput struct {
	isolation  bool
	delivered  []engine.InputEvent
	dropped    int
	handlers   []func(engine.InputEvent)
	warps      []engine.Vec2
	warpErr    error
	vibrations []Vibration
}

func (in *SimInput) Inject(ev engine.InputEvent) {
	if in.isolation && !ev.Synthetic {
		in.dropped++
		return
	}
	in.delivered = append(in.delivered, ev)
	for _, h := range in.handlers {
		h(ev)
	}
}

func (in *SimInput) SetIsolation(enabled bool) { in.isolation = enabled }

// Isolation reports whether the untagged-input filter is active.
func (in *SimInput) Isolation() bool { return in.isolation }

func (in *SimInput) WarpCursor(x, y float64) error {
	if in.warpErr != nil {
		return in.warpErr
	}
	in.warps = append(in.warps, engine.Vec2{X: x, Y: y})
	return nil
}

// SetWarpError makes WarpCursor fail, modeling hosts without OS cursor
// control.
func (in *SimInput) SetWarpError(err error) { in.warpErr = err }

// Warps returns every cursor warp performed.
func (in *SimInput) Warps() []engine.Vec2 { return in.warps }

func (in *SimInput) Vibrate(weak, strong float64, duration time.Duration) error {
	in.vibrations = append(in.vibrations, Vibration{Weak: weak, Strong: strong, Duration: duration})
	return nil
}

// Vibrations returns every rumble request received.
func (in *SimInput) Vibrations() []Vibration { return in.vibrations }

// OnEvent registers a game-side handler invoked for every event that
// passes the isolation filter.
func (in *SimInput) OnEvent(fn func(engine.InputEvent)) {
	in.handlers = append(in.handlers, fn)
}

// SimulateDevice injects an event the way a real keyboard or mouse would:
// untagged, subject to the isolation filter.
func (in *SimInput) SimulateDevice(ev engine.InputEvent) {
	ev.Synthetic = false
	in.Inject(ev)
}

// Delivered returns the events that reached game handlers, in order.
func (in *SimInput) Delivered() []engine.InputEvent { return in.delivered }

// Dropped returns how many untagged events the isolation filter consumed.
func (in *SimInput) Dropped() int { return in.dropped }

// Reset clears the recorded events, drops and warps.
func (in *SimInput) Reset() {
	in.delivered = nil
	in.dropped = 0
	in.warps = nil
	in.vibrations = nil
}
