// Package enginetest provides Sim, an in-memory game engine implementing
// the bridge's host interface. It backs the package tests and the
// gdrb-hostsim binary that QA harnesses run missions against. Like a real
// engine, Sim is single-threaded: drive it from one goroutine only.
package enginetest

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/openbracket/gdrb/internal/engine"
)

// Sim is a miniature engine: a mutable scene tree, an input pipeline with
// viewport isolation, deterministic screenshots and canned telemetry.
type Sim struct {
	// Telemetry knobs, readable through Info. Tests tweak them directly.
	Version   string
	ScenePath string
	SceneName string
	FPS       float64
	TimeScale float64

	// Screenshot behavior.
	ViewportW   int
	ViewportH   int
	FailCapture bool

	root     *SimNode
	input    *SimInput
	frames   int64
	features map[string]bool
	commands map[string]engine.CustomFunc

	lowProcessor  bool
	forcedWindow  bool
	quitRequested bool
}

// NewSim returns a Sim with an empty scene tree and the debug feature tags
// set. Call ClearFeatures to model a retail build.
func NewSim() *Sim {
	s := &Sim{
		Version:   "sim-4.2.1",
		ScenePath: "res://main.tscn",
		SceneName: "Main",
		FPS:       60,
		TimeScale: 1,
		ViewportW: 320,
		ViewportH: 180,
		features:  map[string]bool{"grb": true, "debug": true},
		commands:  map[string]engine.CustomFunc{},
	}
	s.root = &SimNode{
		sim:       s,
		name:      "root",
		typeName:  "Node",
		props:     map[string]any{},
		methods:   map[string]engine.CustomFunc{},
		listeners: map[string][]func(){},
		valid:     true,
	}
	s.input = &SimInput{}
	return s
}

// AdvanceFrame moves the engine one process frame forward. The host's
// game loop calls this once per tick.
func (s *Sim) AdvanceFrame() { s.frames++ }

// Frames returns the process frame counter.
func (s *Sim) Frames() int64 { return s.frames }

func (s *Sim) Info() engine.Info {
	return engine.Info{
		EngineVersion:    s.Version,
		FPS:              s.FPS,
		ProcessFrames:    s.frames,
		TimeScale:        s.TimeScale,
		CurrentScene:     s.ScenePath,
		CurrentSceneName: s.SceneName,
		NodeCount:        s.root.countValid(),
	}
}

func (s *Sim) Root() engine.Node { return s.root }

// FindNode resolves a slash-separated path from the scene root. A leading
// segment equal to the root's own name is tolerated.
func (s *Sim) FindNode(path string) engine.Node {
	if path == "" {
		return nil
	}
	node := s.root.resolve(path)
	if node == nil {
		return nil
	}
	return node
}

func (s *Sim) Input() engine.InputSink { return s.input }

// SimInputs returns the concrete input pipeline for test inspection.
func (s *Sim) SimInputs() *SimInput { return s.input }

func (s *Sim) CapturePNG() (engine.Image, error) {
	if s.FailCapture {
		return engine.Image{}, errors.New("viewport texture unavailable")
	}
	img := image.NewRGBA(image.Rect(0, 0, s.ViewportW, s.ViewportH))
	// Gradient keyed by the frame counter so successive captures differ
	// in a predictable way.
	f := uint8(s.frames)
	for y := 0; y < s.ViewportH; y++ {
		for x := 0; x < s.ViewportW; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x) + f, G: uint8(y), B: f, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return engine.Image{}, fmt.Errorf("encode viewport: %w", err)
	}
	return engine.Image{PNG: buf.Bytes(), Width: s.ViewportW, Height: s.ViewportH}, nil
}

func (s *Sim) AudioState() map[string]any {
	return map[string]any{
		"bus_count":        2,
		"master_volume_db": 0.0,
		"playing_streams":  0,
	}
}

func (s *Sim) NetworkState() map[string]any {
	return map[string]any{
		"multiplayer_active": false,
		"peer_count":         0,
		"connection_status":  "disconnected",
	}
}

func (s *Sim) PerformanceMetrics() map[string]any {
	return map[string]any{
		"fps":                 s.FPS,
		"frame_time_ms":       1000.0 / s.FPS,
		"draw_calls":          12,
		"node_count":          s.root.countValid(),
		"memory_static_bytes": 16 << 20,
	}
}

// RegisterCommand exposes a game-defined callable through
// run_custom_command.
func (s *Sim) RegisterCommand(name string, fn engine.CustomFunc) {
	s.commands[name] = fn
}

func (s *Sim) CustomCommand(name string) (engine.CustomFunc, bool) {
	fn, ok := s.commands[name]
	return fn, ok
}

func (s *Sim) HasFeature(tag string) bool { return s.features[tag] }

// ClearFeatures drops every build-feature tag, modeling a retail build
// where the bridge must refuse to start.
func (s *Sim) ClearFeatures() { s.features = map[string]bool{} }

// AddFeature sets a build-feature tag.
func (s *Sim) AddFeature(tag string) { s.features[tag] = true }

func (s *Sim) SetLowProcessorMode(enabled bool) { s.lowProcessor = enabled }

// LowProcessorMode reports the last value passed to SetLowProcessorMode.
func (s *Sim) LowProcessorMode() bool { return s.lowProcessor }

func (s *Sim) ForceWindowed() { s.forcedWindow = true }

// ForcedWindowed reports whether ForceWindowed was called.
func (s *Sim) ForcedWindowed() bool { return s.forcedWindow }

func (s *Sim) RequestQuit() { s.quitRequested = true }

// QuitRequested reports whether the host was asked to terminate.
func (s *Sim) QuitRequested() bool { return s.quitRequested }

// SimNode is one scene-tree node.
type SimNode struct {
	sim       *Sim
	name      string
	typeName  string
	parent    *SimNode
	children  []*SimNode
	groups    []string
	props     map[string]any
	methods   map[string]engine.CustomFunc
	listeners map[string][]func()
	valid     bool
}

// AddNode creates a child under parent (nil means the scene root) with the
// given starting properties.
func (s *Sim) AddNode(parent *SimNode, name, typeName string, props map[string]any) *SimNode {
	if parent == nil {
		parent = s.root
	}
	if props == nil {
		props = map[string]any{}
	}
	n := &SimNode{
		sim:       s,
		name:      name,
		typeName:  typeName,
		parent:    parent,
		props:     props,
		methods:   map[string]engine.CustomFunc{},
		listeners: map[string][]func(){},
		valid:     true,
	}
	parent.children = append(parent.children, n)
	return n
}

// AddButton creates a Button node whose press method fires its pressed
// listeners, matching how engine buttons activate.
func (s *Sim) AddButton(parent *SimNode, name string) *SimNode {
	n := s.AddNode(parent, name, "Button", map[string]any{"disabled": false})
	n.methods["press"] = func([]any) (any, error) {
		n.EmitSignal("pressed")
		return nil, nil
	}
	return n
}

// Invalidate frees the node: it detaches from its parent and every handle
// to it reports Valid() == false from now on.
func (s *Sim) Invalidate(n *SimNode) {
	n.valid = false
	for _, c := range n.children {
		s.Invalidate(c)
	}
	if n.parent != nil {
		kept := n.parent.children[:0]
		for _, c := range n.parent.children {
			if c != n {
				kept = append(kept, c)
			}
		}
		n.parent.children = kept
	}
}

func (n *SimNode) Name() string     { return n.name }
func (n *SimNode) TypeName() string { return n.typeName }
func (n *SimNode) Valid() bool      { return n.valid }

func (n *SimNode) Path() string {
	if n.parent == nil {
		return n.name
	}
	segments := []string{}
	for cur := n; cur != nil && cur.parent != nil; cur = cur.parent {
		segments = append([]string{cur.name}, segments...)
	}
	return strings.Join(segments, "/")
}

func (n *SimNode) Groups() []string {
	out := make([]string, len(n.groups))
	copy(out, n.groups)
	return out
}

// AddToGroup tags the node with a group name.
func (n *SimNode) AddToGroup(group string) { n.groups = append(n.groups, group) }

func (n *SimNode) Children() []engine.Node {
	out := make([]engine.Node, 0, len(n.children))
	for _, c := range n.children {
		if c.valid {
			out = append(out, c)
		}
	}
	return out
}

func (n *SimNode) Get(property string) (any, error) {
	v, ok := n.props[property]
	if !ok {
		return nil, engine.ErrNoSuchProperty
	}
	return v, nil
}

func (n *SimNode) Set(property string, value any) error {
	if _, ok := n.props[property]; !ok {
		return engine.ErrNoSuchProperty
	}
	n.props[property] = value
	return nil
}

func (n *SimNode) Call(method string, args ...any) (any, error) {
	if fn, ok := n.methods[method]; ok {
		return fn(args)
	}
	if method == "emit_signal" && len(args) > 0 {
		if signal, ok := args[0].(string); ok {
			n.EmitSignal(signal)
			return nil, nil
		}
	}
	return nil, engine.ErrNoSuchMethod
}

// RegisterMethod attaches a callable method to the node.
func (n *SimNode) RegisterMethod(name string, fn engine.CustomFunc) {
	n.methods[name] = fn
}

// DefineProperty declares a property after node creation. Set refuses
// writes to undeclared properties, so tests declare them up front.
func (n *SimNode) DefineProperty(name string, value any) {
	n.props[name] = value
}

// OnSignal registers a listener fired when the named signal is emitted.
func (n *SimNode) OnSignal(signal string, fn func()) {
	n.listeners[signal] = append(n.listeners[signal], fn)
}

// OnPressed registers a pressed-signal listener, the activation path
// buttons use.
func (n *SimNode) OnPressed(fn func()) { n.OnSignal("pressed", fn) }

// EmitSignal fires every listener registered for the signal.
func (n *SimNode) EmitSignal(signal string) {
	for _, fn := range n.listeners[signal] {
		fn()
	}
}

func (n *SimNode) resolve(path string) *SimNode {
	segments := strings.Split(path, "/")
	cur := n
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if i == 0 && seg == n.name {
			continue
		}
		var next *SimNode
		for _, c := range cur.children {
			if c.valid && c.name == seg {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	if cur == n && path != "" && path != n.name {
		return nil
	}
	return cur
}

func (n *SimNode) countValid() int {
	if !n.valid {
		return 0
	}
	count := 1
	for _, c := range n.children {
		count += c.countValid()
	}
	return count
}
