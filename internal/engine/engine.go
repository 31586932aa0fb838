// Package engine defines the capability surface the bridge needs from its
// host game engine. The bridge owns no engine objects; everything it does
// to the running game goes through these interfaces, and every method here
// must be called from the engine's main thread.
package engine

import (
	"errors"
	"time"
)

// Sentinel errors host adapters return so handlers can map failures onto
// wire error codes.
var (
	ErrNoSuchProperty = errors.New("engine: no such property")
	ErrNoSuchMethod   = errors.New("engine: no such method")
	ErrUnsupported    = errors.New("engine: operation unsupported")
)

// Info is a snapshot of engine runtime telemetry.
type Info struct {
	EngineVersion    string
	FPS              float64
	ProcessFrames    int64
	TimeScale        float64
	CurrentScene     string
	CurrentSceneName string
	NodeCount        int
}

// Node is a handle on one live scene-graph node. Handles may outlive the
// node they point at; Valid reports whether the underlying object still
// exists, and every other method is undefined once it returns false.
type Node interface {
	Name() string
	TypeName() string
	Path() string
	Groups() []string
	Children() []Node
	Valid() bool

	// Get returns the named property, or ErrNoSuchProperty.
	Get(property string) (any, error)
	// Set writes the named property, or ErrNoSuchProperty.
	Set(property string, value any) error
	// Call invokes the named method, or ErrNoSuchMethod.
	Call(method string, args ...any) (any, error)
}

// CustomFunc is a game-registered callable exposed through
// run_custom_command.
type CustomFunc func(args []any) (any, error)

// InputSink is the engine's input pipeline as seen by the bridge.
type InputSink interface {
	// Inject pushes an event into the viewport input queue.
	Inject(ev InputEvent)
	// SetIsolation toggles the viewport filter that drops real-device
	// (non-synthetic) input while the bridge is driving the game.
	SetIsolation(enabled bool)
	// WarpCursor moves the OS cursor. Hosts without cursor control
	// return ErrUnsupported; injection proceeds regardless.
	WarpCursor(x, y float64) error
	// Vibrate triggers gamepad rumble.
	Vibrate(weak, strong float64, duration time.Duration) error
}

// Host is the full capability interface a game exposes to the bridge.
type Host interface {
	Info() Info
	Root() Node
	// FindNode resolves a hierarchical path ("Main/GestureTest") to a
	// node, or nil when no such node exists.
	FindNode(path string) Node
	// CapturePNG renders the current viewport and returns it PNG-encoded.
	CapturePNG() (Image, error)
	Input() InputSink

	AudioState() map[string]any
	NetworkState() map[string]any
	PerformanceMetrics() map[string]any

	// CustomCommand looks up a game-registered callable by name.
	CustomCommand(name string) (CustomFunc, bool)
	// Eval evaluates an expression against the scene root and returns
	// its string form. Parse and execution failures come back as errors.
	Eval(expr string) (string, error)

	// HasFeature reports whether the running build carries the named
	// build-feature tag.
	HasFeature(tag string) bool
	SetLowProcessorMode(enabled bool)
	ForceWindowed()
	// RequestQuit asks the host to terminate at its next safe point.
	RequestQuit()
}

// Image is one captured frame.
type Image struct {
	PNG    []byte
	Width  int
	Height int
}
