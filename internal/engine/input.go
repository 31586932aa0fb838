package engine

// EventKind discriminates InputEvent payloads.
type EventKind int

const (
	EventMouseMotion EventKind = iota
	EventMouseButton
	EventKey
	EventAction
	EventMagnify
	EventPan
	EventPadButton
	EventPadAxis
)

// Mouse button indices follow the host engine's convention: wheel
// directions are buttons, not axes.
const (
	MouseLeft      = 1
	MouseRight     = 2
	MouseMiddle    = 3
	MouseWheelUp   = 4
	MouseWheelDown = 5
)

// Vec2 is a viewport-space coordinate pair.
type Vec2 struct {
	X float64
	Y float64
}

// InputEvent is one injected input record. Only the fields relevant to
// Kind are meaningful. Synthetic marks events originating from the bridge;
// the viewport isolation filter passes synthetic events and drops real
// device input while active.
type InputEvent struct {
	Kind      EventKind
	Synthetic bool

	Pos      Vec2 // mouse and gesture events
	Relative Vec2 // motion delta, pan delta

	Button  int     // mouse or pad button index
	Pressed bool    // button, key and action events
	Factor  float64 // wheel magnitude, magnify scale

	Keycode int
	Action  string

	Axis  int
	Value float64 // pad axis position
}

func (k EventKind) String() string {
	switch k {
	case EventMouseMotion:
		return "mouse_motion"
	case EventMouseButton:
		return "mouse_button"
	case EventKey:
		return "key"
	case EventAction:
		return "action"
	case EventMagnify:
		return "magnify"
	case EventPan:
		return "pan"
	case EventPadButton:
		return "pad_button"
	case EventPadAxis:
		return "pad_axis"
	default:
		return "unknown"
	}
}
